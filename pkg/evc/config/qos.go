package config

import (
	"strconv"

	"github.com/newtron-network/evc/pkg/evc/ids"
	"github.com/newtron-network/evc/pkg/evc/service"
	"github.com/newtron-network/evc/pkg/util"
)

// Service-policy directions.
const (
	DirectionInput  = "input"
	DirectionOutput = "output"
)

// PolicyMap is a single-class policer derived from a bandwidth profile.
type PolicyMap struct {
	Name string
	CIR  uint64
	CBS  uint64
	EIR  uint64
	EBS  uint64
}

// ServicePolicy binds a policy-map to an attachment interface.
type ServicePolicy struct {
	Interface string
	Direction string
	PolicyMap string
}

// QoSConfig holds the policy-maps and bindings of one endpoint.
type QoSConfig struct {
	PolicyMaps []PolicyMap
	Policies   []ServicePolicy
}

// BuildQoS derives ingress and egress policy-maps from the endpoint's
// bandwidth profiles. It returns nil when the endpoint has none.
func BuildQoS(serviceID string, ep service.Endpoint) (*QoSConfig, error) {
	if ep.Ingress == nil && ep.Egress == nil {
		return nil, nil
	}

	attachment := ep.AttachmentName()
	cfg := &QoSConfig{}
	add := func(bp *service.BandwidthProfile, dir, suffix string) error {
		if bp == nil {
			return nil
		}
		if bp.CIR == 0 && bp.EIR == 0 {
			return util.NewValidationError("bandwidth profile of " + ep.String() + " has neither CIR nor EIR")
		}
		name := ids.PolicyMapName(serviceID, attachment, suffix)
		cfg.PolicyMaps = append(cfg.PolicyMaps, PolicyMap{Name: name, CIR: bp.CIR, CBS: bp.CBS, EIR: bp.EIR, EBS: bp.EBS})
		cfg.Policies = append(cfg.Policies, ServicePolicy{Interface: attachment, Direction: dir, PolicyMap: name})
		return nil
	}
	if err := add(ep.Ingress, DirectionInput, "in"); err != nil {
		return nil, err
	}
	if err := add(ep.Egress, DirectionOutput, "out"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Entries flattens policy-maps before their bindings.
func (q *QoSConfig) Entries() []Entry {
	if q == nil {
		return nil
	}
	var entries []Entry
	for _, pm := range q.PolicyMaps {
		fields := map[string]string{"cir": strconv.FormatUint(pm.CIR, 10)}
		if pm.CBS > 0 {
			fields["cbs"] = strconv.FormatUint(pm.CBS, 10)
		}
		if pm.EIR > 0 {
			fields["eir"] = strconv.FormatUint(pm.EIR, 10)
		}
		if pm.EBS > 0 {
			fields["ebs"] = strconv.FormatUint(pm.EBS, 10)
		}
		entries = append(entries, Entry{Table: TablePolicyMap, Key: pm.Name, Fields: fields})
	}
	for _, sp := range q.Policies {
		entries = append(entries, Entry{
			Table:  TableServicePolicy,
			Key:    Key(sp.Interface, sp.Direction),
			Fields: map[string]string{"policy_map": sp.PolicyMap},
		})
	}
	return entries
}

// Subtrees removes bindings before policy-maps.
func (q *QoSConfig) Subtrees() []Subtree {
	if q == nil {
		return nil
	}
	var out []Subtree
	for _, sp := range q.Policies {
		out = append(out, Subtree{Table: TableServicePolicy, Key: Key(sp.Interface, sp.Direction)})
	}
	for _, pm := range q.PolicyMaps {
		out = append(out, Subtree{Table: TablePolicyMap, Key: pm.Name})
	}
	return out
}
