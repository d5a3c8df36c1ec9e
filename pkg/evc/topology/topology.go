// Package topology loads the YAML inventory of nodes and service interface
// points (SIPs). The inventory answers every question the drivers ask about
// the network outside the devices themselves: which capabilities a node
// advertises, how to reach it, and which port and VLAN a SIP names.
package topology

import (
	"context"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/evc/pkg/auth"
	"github.com/newtron-network/evc/pkg/evc/capability"
	"github.com/newtron-network/evc/pkg/evc/device/configdb"
	"github.com/newtron-network/evc/pkg/evc/device/rest"
	"github.com/newtron-network/evc/pkg/evc/service"
	"github.com/newtron-network/evc/pkg/util"
)

// DefaultPath is where the inventory is looked up when settings name none.
var DefaultPath = "/etc/evc/inventory.yaml"

// DefaultRedisPort is used for direct configdb access without an explicit port.
const DefaultRedisPort = 6379

// Credentials are a username and password pair.
type Credentials struct {
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Port     int    `yaml:"port,omitempty"`
}

// ConfigDBAccess describes how to reach a node's configuration database.
// When SSH is set the database is reached through a tunnel to the node.
type ConfigDBAccess struct {
	Address  string       `yaml:"address,omitempty"`
	SSH      *Credentials `yaml:"ssh,omitempty"`
	ConfigDB int          `yaml:"config_db,omitempty"`
	StateDB  int          `yaml:"state_db,omitempty"`
}

// Node is one network element.
type Node struct {
	Address      string          `yaml:"address"`
	Capabilities []string        `yaml:"capabilities"`
	Topologies   []string        `yaml:"topologies,omitempty"`
	Loopback     string          `yaml:"loopback,omitempty"`
	REST         *Credentials    `yaml:"rest,omitempty"`
	ConfigDB     *ConfigDBAccess `yaml:"configdb,omitempty"`
}

// SIP is a service interface point: a named attachment on a node port.
type SIP struct {
	Node    string                    `yaml:"node"`
	Port    string                    `yaml:"port"`
	VLAN    int                       `yaml:"vlan,omitempty"`
	Ingress *service.BandwidthProfile `yaml:"ingress,omitempty"`
	Egress  *service.BandwidthProfile `yaml:"egress,omitempty"`
}

// Defaults fill in access settings a node leaves out.
type Defaults struct {
	REST Credentials `yaml:"rest,omitempty"`
	SSH  Credentials `yaml:"ssh,omitempty"`
}

// Inventory is the parsed inventory file.
type Inventory struct {
	Name     string          `yaml:"name,omitempty"`
	Defaults Defaults        `yaml:"defaults,omitempty"`
	Nodes    map[string]Node `yaml:"nodes"`
	SIPs     map[string]SIP  `yaml:"sips"`

	// Access restricts who may run service operations; absent means open.
	Access *auth.Policy `yaml:"access,omitempty"`
}

// Load reads and validates the inventory at path.
func Load(path string) (*Inventory, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}
	inv, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("inventory %s: %w", path, err)
	}
	return inv, nil
}

// Parse decodes and validates inventory YAML.
func Parse(data []byte) (*Inventory, error) {
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Validate checks addresses and cross-references.
func (inv *Inventory) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(len(inv.Nodes) > 0, "inventory has no nodes")

	for _, name := range inv.NodeNames() {
		n := inv.Nodes[name]
		v.Add(n.Address != "", fmt.Sprintf("node %s: address is required", name))
		if n.Loopback != "" && net.ParseIP(n.Loopback).To4() == nil {
			v.AddErrorf("node %s: loopback %q is not an IPv4 address", name, n.Loopback)
		}
		if n.ConfigDB != nil && n.ConfigDB.SSH == nil && n.ConfigDB.Address == "" && n.Address == "" {
			v.AddErrorf("node %s: configdb needs an address or ssh access", name)
		}
	}

	sips := make([]string, 0, len(inv.SIPs))
	for name := range inv.SIPs {
		sips = append(sips, name)
	}
	sort.Strings(sips)
	for _, name := range sips {
		s := inv.SIPs[name]
		if _, ok := inv.Nodes[s.Node]; !ok {
			v.AddErrorf("sip %s: unknown node %q", name, s.Node)
		}
		v.Add(s.Port != "", fmt.Sprintf("sip %s: port is required", name))
		if s.VLAN < 0 || s.VLAN > 4094 {
			v.AddErrorf("sip %s: vlan %d out of range", name, s.VLAN)
		}
	}
	return v.Build()
}

// NodeNames returns the node names in sorted order.
func (inv *Inventory) NodeNames() []string {
	names := make([]string, 0, len(inv.Nodes))
	for name := range inv.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (inv *Inventory) node(name string) (Node, error) {
	n, ok := inv.Nodes[name]
	if !ok {
		return Node{}, fmt.Errorf("node %s: %w", name, util.ErrNotFound)
	}
	return n, nil
}

// Snapshot implements capability.Source.
func (inv *Inventory) Snapshot(_ context.Context, name string) (capability.Snapshot, error) {
	n, err := inv.node(name)
	if err != nil {
		return capability.Snapshot{}, err
	}
	return capability.Snapshot{
		Node:         name,
		Capabilities: append([]string(nil), n.Capabilities...),
		Topologies:   append([]string(nil), n.Topologies...),
	}, nil
}

// Loopback returns the loopback recorded for a node.
func (inv *Inventory) Loopback(name string) (string, bool) {
	n, ok := inv.Nodes[name]
	if !ok || n.Loopback == "" {
		return "", false
	}
	return n.Loopback, true
}

// RESTTarget implements rest.Targets. Unset fields come from the defaults.
func (inv *Inventory) RESTTarget(name string) (rest.Target, error) {
	n, err := inv.node(name)
	if err != nil {
		return rest.Target{}, err
	}
	creds := inv.Defaults.REST
	if n.REST != nil {
		creds = merge(*n.REST, creds)
	}
	return rest.Target{Address: n.Address, Port: creds.Port, Username: creds.Username, Password: creds.Password}, nil
}

// ConfigDBTarget implements configdb.Targets.
func (inv *Inventory) ConfigDBTarget(name string) (configdb.Target, error) {
	n, err := inv.node(name)
	if err != nil {
		return configdb.Target{}, err
	}
	access := ConfigDBAccess{}
	if n.ConfigDB != nil {
		access = *n.ConfigDB
	}

	t := configdb.Target{ConfigDB: access.ConfigDB, StateDB: access.StateDB}
	if access.SSH != nil {
		ssh := merge(*access.SSH, inv.Defaults.SSH)
		t.SSHHost = n.Address
		t.SSHPort = ssh.Port
		t.SSHUser = ssh.Username
		t.SSHPass = ssh.Password
		t.RedisURL = access.Address
		return t, nil
	}

	t.Address = access.Address
	if t.Address == "" {
		t.Address = net.JoinHostPort(n.Address, strconv.Itoa(DefaultRedisPort))
	}
	return t, nil
}

// ResolveSIP returns the endpoint named by sip. An explicit vlan overrides
// the SIP's own VLAN when positive.
func (inv *Inventory) ResolveSIP(sip string, vlan int) (service.Endpoint, error) {
	s, ok := inv.SIPs[sip]
	if !ok {
		return service.Endpoint{}, fmt.Errorf("sip %s: %w", sip, util.ErrNotFound)
	}
	ep := service.Endpoint{
		SIP:     sip,
		Device:  s.Node,
		Port:    s.Port,
		VLAN:    s.VLAN,
		Ingress: s.Ingress,
		Egress:  s.Egress,
	}
	if vlan > 0 {
		ep.VLAN = vlan
	}
	if n, ok := inv.Nodes[s.Node]; ok && len(n.Topologies) > 0 {
		ep.Topology = n.Topologies[0]
	}
	return ep, nil
}

// Endpoints resolves several SIPs in order.
func (inv *Inventory) Endpoints(sips []string, vlan int) ([]service.Endpoint, error) {
	out := make([]service.Endpoint, 0, len(sips))
	for _, sip := range sips {
		ep, err := inv.ResolveSIP(sip, vlan)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, nil
}

func merge(c, defaults Credentials) Credentials {
	if c.Username == "" {
		c.Username = defaults.Username
	}
	if c.Password == "" {
		c.Password = defaults.Password
	}
	if c.Port == 0 {
		c.Port = defaults.Port
	}
	return c
}
