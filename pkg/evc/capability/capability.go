// Package capability decides whether a driver family applies to a device by
// evaluating named predicates over the device's advertised capabilities and
// topology membership.
package capability

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Capability URNs advertised by devices in the inventory.
const (
	CapRESTCLI  = "urn:evc:cap:rest-cli"
	CapConfigDB = "urn:evc:cap:configdb"
	CapL2VPN    = "urn:evc:cap:l2vpn"
	CapQoS      = "urn:evc:cap:qos"
)

// TopologyMPLS is the topology every pseudowire-capable device belongs to.
const TopologyMPLS = "mpls"

// Predicate names carried by the default registry.
const (
	RESTCLI      = "rest-cli"
	ConfigDB     = "configdb"
	L2VPNModel   = "l2vpn-model"
	QoSModel     = "qos-model"
	MPLSTopology = "mpls-topology"
)

// Mode combines the results of several predicates.
type Mode int

const (
	And Mode = iota
	Or
)

func (m Mode) String() string {
	if m == Or {
		return "OR"
	}
	return "AND"
}

// Snapshot is the capability view of one node at evaluation time.
type Snapshot struct {
	Node         string   `json:"node"`
	Capabilities []string `json:"capabilities"`
	Topologies   []string `json:"topologies"`
}

// Advertises reports whether the node lists capability.
func (s Snapshot) Advertises(capability string) bool {
	return slices.Contains(s.Capabilities, capability)
}

// MemberOf reports whether the node belongs to topology.
func (s Snapshot) MemberOf(topology string) bool {
	return slices.Contains(s.Topologies, topology)
}

// Source produces snapshots for nodes.
type Source interface {
	Snapshot(ctx context.Context, node string) (Snapshot, error)
}

// Predicate tests one property of a snapshot.
type Predicate func(Snapshot) bool

// Advertises returns a predicate matching nodes that list capability.
func Advertises(capability string) Predicate {
	return func(s Snapshot) bool { return s.Advertises(capability) }
}

// InTopology returns a predicate matching members of topology.
func InTopology(topology string) Predicate {
	return func(s Snapshot) bool { return s.MemberOf(topology) }
}

// Registry holds named predicates.
type Registry struct {
	mu         sync.RWMutex
	predicates map[string]Predicate
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{predicates: make(map[string]Predicate)}
}

// DefaultRegistry returns a registry with the built-in predicates.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(RESTCLI, Advertises(CapRESTCLI))
	r.Register(ConfigDB, Advertises(CapConfigDB))
	r.Register(L2VPNModel, Advertises(CapL2VPN))
	r.Register(QoSModel, Advertises(CapQoS))
	r.Register(MPLSTopology, InTopology(TopologyMPLS))
	return r
}

// Register adds or replaces a predicate.
func (r *Registry) Register(name string, p Predicate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predicates[name] = p
}

// Names returns the registered predicate names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.predicates))
	for name := range r.predicates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Supports evaluates the named predicates against snap. With And every
// predicate must hold; with Or at least one. An empty name list is vacuously
// true under And and false under Or. Unknown names are an error.
func (r *Registry) Supports(snap Snapshot, names []string, mode Mode) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	preds := make([]Predicate, 0, len(names))
	var unknown []string
	for _, name := range names {
		p, ok := r.predicates[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		preds = append(preds, p)
	}
	if len(unknown) > 0 {
		return false, fmt.Errorf("unknown capability predicate(s): %s", strings.Join(unknown, ", "))
	}

	switch mode {
	case And:
		for _, p := range preds {
			if !p(snap) {
				return false, nil
			}
		}
		return true, nil
	case Or:
		for _, p := range preds {
			if p(snap) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("unknown capability mode %d", mode)
}

// Evaluate runs every registered predicate against snap.
func (r *Registry) Evaluate(snap Snapshot) map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.predicates))
	for name, p := range r.predicates {
		out[name] = p(snap)
	}
	return out
}
