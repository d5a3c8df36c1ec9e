package config

import (
	"fmt"
	"strconv"

	"github.com/newtron-network/evc/pkg/evc/ids"
	"github.com/newtron-network/evc/pkg/evc/service"
	"github.com/newtron-network/evc/pkg/util"
)

// AttachmentCircuit binds a local interface or sub-interface.
type AttachmentCircuit struct {
	Name string
}

// Pseudowire reaches a remote device through its loopback address.
type Pseudowire struct {
	Neighbor string
	ID       int
}

// XConnect joins exactly two members: two attachment circuits (local) or one
// attachment circuit and one pseudowire (remote).
type XConnect struct {
	Name               string
	Description        string
	AttachmentCircuits []AttachmentCircuit
	Pseudowires        []Pseudowire
}

// Local reports whether the cross-connect switches between two local circuits.
func (x XConnect) Local() bool {
	return len(x.AttachmentCircuits) == 2 && len(x.Pseudowires) == 0
}

// XConnectGroup is the outer container of a point-to-point service.
type XConnectGroup struct {
	Name      string
	XConnects []XConnect
}

// Entries flattens the group, parents before children.
func (g *XConnectGroup) Entries() []Entry {
	entries := []Entry{{Table: TableXConnectGroup, Key: g.Name, Fields: map[string]string{}}}
	for _, xc := range g.XConnects {
		fields := map[string]string{"mode": "remote"}
		if xc.Local() {
			fields["mode"] = "local"
		}
		if xc.Description != "" {
			fields["description"] = xc.Description
		}
		entries = append(entries, Entry{Table: TableXConnect, Key: Key(g.Name, xc.Name), Fields: fields})
		for _, ac := range xc.AttachmentCircuits {
			entries = append(entries, Entry{Table: TableXConnectAC, Key: Key(g.Name, xc.Name, ac.Name), Fields: map[string]string{}})
		}
		for _, pw := range xc.Pseudowires {
			entries = append(entries, Entry{
				Table:  TableXConnectPW,
				Key:    Key(g.Name, xc.Name, pw.Neighbor, strconv.Itoa(pw.ID)),
				Fields: map[string]string{"neighbor": pw.Neighbor, "pw_id": strconv.Itoa(pw.ID)},
			})
		}
	}
	return entries
}

// Subtrees returns the subtrees that remove the whole group.
func (g *XConnectGroup) Subtrees() []Subtree {
	return []Subtree{
		{Table: TableXConnectPW, Key: g.Name},
		{Table: TableXConnectAC, Key: g.Name},
		{Table: TableXConnect, Key: g.Name},
		{Table: TableXConnectGroup, Key: g.Name},
	}
}

// XConnectBuilder accumulates the members of one cross-connect.
type XConnectBuilder struct {
	group       string
	name        string
	description string
	acs         []AttachmentCircuit
	pws         []Pseudowire
}

// NewXConnectBuilder starts a cross-connect named name inside group.
func NewXConnectBuilder(group, name string) *XConnectBuilder {
	return &XConnectBuilder{group: group, name: name}
}

// Description sets the cross-connect description.
func (b *XConnectBuilder) Description(desc string) *XConnectBuilder {
	b.description = desc
	return b
}

// AddAttachmentCircuit adds the attachment interface of an endpoint.
func (b *XConnectBuilder) AddAttachmentCircuit(ep service.Endpoint) *XConnectBuilder {
	b.acs = append(b.acs, AttachmentCircuit{Name: ep.AttachmentName()})
	return b
}

// AddPseudowire adds a pseudowire to neighbor.
func (b *XConnectBuilder) AddPseudowire(neighbor string, id int) *XConnectBuilder {
	b.pws = append(b.pws, Pseudowire{Neighbor: neighbor, ID: id})
	return b
}

// Build validates the member count and returns the finished group.
func (b *XConnectBuilder) Build() (*XConnectGroup, error) {
	v := &util.ValidationBuilder{}
	v.Add(b.group != "" && b.name != "", "cross-connect group and name are required")
	members := len(b.acs) + len(b.pws)
	v.Add(members == 2, fmt.Sprintf("cross-connect %s needs exactly 2 members, got %d", b.name, members))
	v.Add(len(b.acs) >= 1, fmt.Sprintf("cross-connect %s needs at least one attachment circuit", b.name))
	for _, pw := range b.pws {
		v.Add(pw.Neighbor != "", fmt.Sprintf("cross-connect %s: pseudowire neighbor is required", b.name))
		v.Add(pw.ID > 0, fmt.Sprintf("cross-connect %s: pseudowire id must be positive", b.name))
	}
	if err := v.Build(); err != nil {
		return nil, err
	}

	xc := XConnect{
		Name:               b.name,
		Description:        b.description,
		AttachmentCircuits: append([]AttachmentCircuit(nil), b.acs...),
		Pseudowires:        append([]Pseudowire(nil), b.pws...),
	}
	return &XConnectGroup{Name: b.group, XConnects: []XConnect{xc}}, nil
}

// BuildPointToPoint assembles the cross-connect for the local endpoint of a
// point-to-point service. When both endpoints resolve to the same device ID a
// local attachment-circuit pair is built and pw is ignored; otherwise pw must
// carry the remote loopback and pseudowire ID.
func BuildPointToPoint(serviceID string, local, remote service.Endpoint, pw *Pseudowire) (*XConnectGroup, error) {
	b := NewXConnectBuilder(ids.XConnectGroupName(serviceID), ids.XConnectName(serviceID)).
		Description(serviceID).
		AddAttachmentCircuit(local)

	if local.Device == remote.Device {
		return b.AddAttachmentCircuit(remote).Build()
	}

	if pw == nil || pw.Neighbor == "" {
		return nil, util.NewResourceError(local.Device, "pseudowire neighbor",
			fmt.Sprintf("no loopback address known for %s", remote.Device))
	}
	return b.AddPseudowire(pw.Neighbor, pw.ID).Build()
}
