// Package service defines the vendor-neutral description of a Carrier-Ethernet
// service: its end-points and attributes.
package service

import (
	"fmt"

	"github.com/newtron-network/evc/pkg/util"
)

// Type is the connectivity model of a service.
type Type string

const (
	PointToPoint Type = "point-to-point"
	Multipoint   Type = "multipoint"
)

// ParseType accepts the long names and the p2p/mp shorthands.
func ParseType(s string) (Type, error) {
	switch s {
	case "p2p", string(PointToPoint), "":
		return PointToPoint, nil
	case "mp", string(Multipoint):
		return Multipoint, nil
	}
	return "", fmt.Errorf("unknown service type %q (want p2p or mp)", s)
}

// BandwidthProfile carries committed and excess rates in bits per second and
// burst sizes in bytes.
type BandwidthProfile struct {
	CIR uint64 `json:"cir" yaml:"cir"`
	CBS uint64 `json:"cbs,omitempty" yaml:"cbs,omitempty"`
	EIR uint64 `json:"eir,omitempty" yaml:"eir,omitempty"`
	EBS uint64 `json:"ebs,omitempty" yaml:"ebs,omitempty"`
}

// Endpoint is one attachment point of a service. It is built once per
// activation attempt and not modified afterwards.
type Endpoint struct {
	SIP      string            `json:"sip"`
	Topology string            `json:"topology"`
	Device   string            `json:"device"`
	Port     string            `json:"port"`
	VLAN     int               `json:"vlan,omitempty"`
	Ingress  *BandwidthProfile `json:"ingress,omitempty"`
	Egress   *BandwidthProfile `json:"egress,omitempty"`
}

// Tagged reports whether the endpoint uses a dot1q sub-interface rather than
// the whole port.
func (e Endpoint) Tagged() bool {
	return e.VLAN > 0
}

// InterfaceName returns the physical interface name derived from the port.
func (e Endpoint) InterfaceName() string {
	return util.InterfaceName(e.Port)
}

// AttachmentName returns the interface that is bound into a cross-connect or
// bridge domain: the VLAN sub-interface when tagged, the port otherwise.
func (e Endpoint) AttachmentName() string {
	return util.SubInterfaceName(e.InterfaceName(), e.VLAN)
}

func (e Endpoint) String() string {
	if e.Tagged() {
		return fmt.Sprintf("%s:%s.%d", e.Device, e.Port, e.VLAN)
	}
	return fmt.Sprintf("%s:%s", e.Device, e.Port)
}

// Attributes are the optional service-wide settings.
type Attributes struct {
	MTU         int    `json:"mtu,omitempty"`
	Description string `json:"description,omitempty"`
}

// Request is one activation or deactivation call for a service.
type Request struct {
	ServiceID  string     `json:"service_id"`
	Type       Type       `json:"type"`
	Endpoints  []Endpoint `json:"endpoints"`
	Attributes Attributes `json:"attributes"`
}

// Validate checks the structural invariants of a request.
func (r *Request) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(r.ServiceID != "", "service id is required")
	v.Add(len(r.Endpoints) >= 2, fmt.Sprintf("service needs at least 2 endpoints, got %d", len(r.Endpoints)))
	if r.Type == PointToPoint {
		v.Add(len(r.Endpoints) <= 2, fmt.Sprintf("point-to-point service takes exactly 2 endpoints, got %d", len(r.Endpoints)))
	} else if r.Type != Multipoint {
		v.AddErrorf("unknown service type %q", r.Type)
	}
	for i, ep := range r.Endpoints {
		v.Add(ep.Device != "", fmt.Sprintf("endpoint %d: device is required", i))
		v.Add(ep.Port != "", fmt.Sprintf("endpoint %d: port is required", i))
		if ep.VLAN < 0 || ep.VLAN > 4094 {
			v.AddErrorf("endpoint %d: vlan %d out of range", i, ep.VLAN)
		}
	}
	return v.Build()
}

// Devices returns the distinct device IDs of the request in endpoint order.
func (r *Request) Devices() []string {
	seen := make(map[string]bool)
	var out []string
	for _, ep := range r.Endpoints {
		if !seen[ep.Device] {
			seen[ep.Device] = true
			out = append(out, ep.Device)
		}
	}
	return out
}

// Peers returns the endpoints of the request that are not on device.
func (r *Request) Peers(device string) []Endpoint {
	var out []Endpoint
	for _, ep := range r.Endpoints {
		if ep.Device != device {
			out = append(out, ep)
		}
	}
	return out
}
