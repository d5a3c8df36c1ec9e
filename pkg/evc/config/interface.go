package config

import (
	"strconv"

	"github.com/newtron-network/evc/pkg/evc/service"
)

// MTU defaults for attachment interfaces.
const (
	DefaultInterfaceMTU    = 1522
	DefaultSubInterfaceMTU = 1508
)

// InterfaceConfig is the physical interface plus, for shared ports, the dot1q
// sub-interface carrying the service.
type InterfaceConfig struct {
	Name        string
	MTU         int
	Shutdown    bool
	Description string

	// Exclusive ports carry the service untagged on the whole interface.
	Exclusive bool

	SubInterface    string
	VLAN            int
	SubInterfaceMTU int
}

// BuildInterface derives the interface configuration of an endpoint.
func BuildInterface(ep service.Endpoint, attrs service.Attributes) InterfaceConfig {
	cfg := InterfaceConfig{
		Name:        ep.InterfaceName(),
		MTU:         DefaultInterfaceMTU,
		Description: attrs.Description,
		Exclusive:   !ep.Tagged(),
	}
	if attrs.MTU > 0 {
		cfg.MTU = attrs.MTU
	}
	if !cfg.Exclusive {
		cfg.SubInterface = ep.AttachmentName()
		cfg.VLAN = ep.VLAN
		cfg.SubInterfaceMTU = DefaultSubInterfaceMTU
		if attrs.MTU > 0 {
			cfg.SubInterfaceMTU = attrs.MTU
		}
	}
	return cfg
}

// Entries flattens the interface configuration.
func (c InterfaceConfig) Entries() []Entry {
	fields := map[string]string{
		"mtu":      strconv.Itoa(c.MTU),
		"shutdown": strconv.FormatBool(c.Shutdown),
	}
	if c.Description != "" {
		fields["description"] = c.Description
	}
	if c.Exclusive {
		fields["l2transport"] = "true"
		return []Entry{{Table: TableInterface, Key: c.Name, Fields: fields}}
	}
	return []Entry{
		{Table: TableInterface, Key: c.Name, Fields: fields},
		{Table: TableSubInterface, Key: c.SubInterface, Fields: map[string]string{
			"parent":        c.Name,
			"encapsulation": "dot1q",
			"vlan":          strconv.Itoa(c.VLAN),
			"mtu":           strconv.Itoa(c.SubInterfaceMTU),
			"l2transport":   "true",
		}},
	}
}

// AttachmentSubtree is the part removed when the service leaves the port:
// the sub-interface for shared ports, the interface itself for exclusive ones.
func (c InterfaceConfig) AttachmentSubtree() Subtree {
	if c.Exclusive {
		return Subtree{Table: TableInterface, Key: c.Name}
	}
	return Subtree{Table: TableSubInterface, Key: c.SubInterface}
}

// Attachment returns the identifier bound into the cross-connect or bridge domain.
func (c InterfaceConfig) Attachment() string {
	if c.Exclusive {
		return c.Name
	}
	return c.SubInterface
}
