package config

import (
	"fmt"
	"strconv"

	"github.com/newtron-network/evc/pkg/evc/ids"
	"github.com/newtron-network/evc/pkg/evc/service"
	"github.com/newtron-network/evc/pkg/util"
)

// BridgeDomain is a multipoint switching construct.
type BridgeDomain struct {
	Name               string
	AttachmentCircuits []AttachmentCircuit
	Pseudowires        []Pseudowire
}

// BridgeDomainGroup is the outer container of a multipoint service.
type BridgeDomainGroup struct {
	Name          string
	BridgeDomains []BridgeDomain
}

// Entries flattens the group, parents before children.
func (g *BridgeDomainGroup) Entries() []Entry {
	entries := []Entry{{Table: TableBridgeGroup, Key: g.Name, Fields: map[string]string{}}}
	for _, bd := range g.BridgeDomains {
		entries = append(entries, Entry{Table: TableBridgeDomain, Key: Key(g.Name, bd.Name), Fields: map[string]string{}})
		for _, ac := range bd.AttachmentCircuits {
			entries = append(entries, Entry{Table: TableBridgeAC, Key: Key(g.Name, bd.Name, ac.Name), Fields: map[string]string{}})
		}
		for _, pw := range bd.Pseudowires {
			entries = append(entries, Entry{
				Table:  TableBridgePW,
				Key:    Key(g.Name, bd.Name, pw.Neighbor, strconv.Itoa(pw.ID)),
				Fields: map[string]string{"neighbor": pw.Neighbor, "pw_id": strconv.Itoa(pw.ID)},
			})
		}
	}
	return entries
}

// Subtrees returns the subtrees that remove the whole group.
func (g *BridgeDomainGroup) Subtrees() []Subtree {
	return []Subtree{
		{Table: TableBridgePW, Key: g.Name},
		{Table: TableBridgeAC, Key: g.Name},
		{Table: TableBridgeDomain, Key: g.Name},
		{Table: TableBridgeGroup, Key: g.Name},
	}
}

// BridgeDomainBuilder accumulates the members of one bridge domain.
type BridgeDomainBuilder struct {
	group string
	name  string
	acs   []AttachmentCircuit
	pws   []Pseudowire
}

// NewBridgeDomainBuilder starts a bridge domain named name inside group.
func NewBridgeDomainBuilder(group, name string) *BridgeDomainBuilder {
	return &BridgeDomainBuilder{group: group, name: name}
}

// AddAttachmentCircuit adds the attachment interface of a local endpoint.
func (b *BridgeDomainBuilder) AddAttachmentCircuit(ep service.Endpoint) *BridgeDomainBuilder {
	b.acs = append(b.acs, AttachmentCircuit{Name: ep.AttachmentName()})
	return b
}

// AddPseudowire adds a pseudowire to a remote device.
func (b *BridgeDomainBuilder) AddPseudowire(neighbor string, id int) *BridgeDomainBuilder {
	b.pws = append(b.pws, Pseudowire{Neighbor: neighbor, ID: id})
	return b
}

// Build returns the finished group.
func (b *BridgeDomainBuilder) Build() (*BridgeDomainGroup, error) {
	v := &util.ValidationBuilder{}
	v.Add(b.group != "" && b.name != "", "bridge-domain group and name are required")
	v.Add(len(b.acs) > 0, fmt.Sprintf("bridge domain %s needs at least one attachment circuit", b.name))
	for _, pw := range b.pws {
		v.Add(pw.Neighbor != "" && pw.ID > 0, fmt.Sprintf("bridge domain %s: pseudowire needs neighbor and id", b.name))
	}
	if err := v.Build(); err != nil {
		return nil, err
	}
	bd := BridgeDomain{
		Name:               b.name,
		AttachmentCircuits: append([]AttachmentCircuit(nil), b.acs...),
		Pseudowires:        append([]Pseudowire(nil), b.pws...),
	}
	return &BridgeDomainGroup{Name: b.group, BridgeDomains: []BridgeDomain{bd}}, nil
}

// BuildMultipoint assembles the bridge domain for one device of a multipoint
// service: one attachment circuit per local endpoint and one pseudowire per
// entry of pws.
func BuildMultipoint(serviceID string, local []service.Endpoint, pws []Pseudowire) (*BridgeDomainGroup, error) {
	b := NewBridgeDomainBuilder(ids.BridgeDomainGroupName(serviceID), ids.BridgeDomainName(serviceID))
	for _, ep := range local {
		b.AddAttachmentCircuit(ep)
	}
	for _, pw := range pws {
		b.AddPseudowire(pw.Neighbor, pw.ID)
	}
	return b.Build()
}
