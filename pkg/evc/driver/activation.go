package driver

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/newtron-network/evc/pkg/evc/capability"
	"github.com/newtron-network/evc/pkg/evc/device"
	"github.com/newtron-network/evc/pkg/evc/ids"
	"github.com/newtron-network/evc/pkg/evc/service"
	"github.com/newtron-network/evc/pkg/util"
)

// Activation is the state shared by every driver of one request: the
// request, its session pool, the identifiers every end of the service must
// agree on, and the visited-object lists that keep deactivation from removing
// objects another endpoint still uses.
type Activation struct {
	Request   *service.Request
	ServiceID string
	Op        Op
	Sessions  *device.Pool

	vcids *ids.VCIDAllocator
	pws   *ids.PseudowireAllocator

	mu                sync.Mutex
	snapshots         map[string]capability.Snapshot
	vcidInUse         map[int]bool
	pwInUse           map[int]bool
	vcid              int
	pwid              int
	loopbacks         map[string]string
	visitedDevices    map[string]bool
	visitedInterfaces map[string]bool
}

// NewActivation prepares the shared state of one request.
func NewActivation(req *service.Request, op Op, vcids *ids.VCIDAllocator, pws *ids.PseudowireAllocator) *Activation {
	if vcids == nil {
		vcids = ids.NewVCIDAllocator()
	}
	if pws == nil {
		pws = ids.NewPseudowireAllocator(ids.PseudowireSeed)
	}
	return &Activation{
		Request:           req,
		ServiceID:         ids.CanonicalServiceID(req.ServiceID),
		Op:                op,
		Sessions:          device.NewPool(),
		vcids:             vcids,
		pws:               pws,
		snapshots:         make(map[string]capability.Snapshot),
		vcidInUse:         make(map[int]bool),
		pwInUse:           make(map[int]bool),
		loopbacks:         make(map[string]string),
		visitedDevices:    make(map[string]bool),
		visitedInterfaces: make(map[string]bool),
	}
}

// Log returns a logger scoped to the service.
func (a *Activation) Log() *logrus.Entry {
	return util.WithService(a.ServiceID)
}

// SetSnapshot records the capability snapshot used to select drivers.
func (a *Activation) SetSnapshot(s capability.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshots[s.Node] = s
}

// Snapshot returns the capability snapshot of device.
func (a *Activation) Snapshot(device string) (capability.Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.snapshots[device]
	return s, ok
}

// ObserveVCIDs adds VC-IDs scraped from a device to the in-use set.
func (a *Activation) ObserveVCIDs(inUse map[int]bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id := range inUse {
		a.vcidInUse[id] = true
	}
	if a.vcid != 0 && inUse[a.vcid] {
		a.Log().Warnf("vc-id %d observed on a device after allocation", a.vcid)
	}
}

// ObservePseudowireIDs adds pseudowire IDs scraped from a device to the
// in-use set.
func (a *Activation) ObservePseudowireIDs(inUse map[int]bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id := range inUse {
		a.pwInUse[id] = true
	}
}

// VCID returns the VC-ID of the service, allocating it on first call from
// the union of every in-use set observed so far. Drivers call it after all
// drivers have initialized, so both ends of a pseudowire agree on a value
// that is free on each of them.
func (a *Activation) VCID() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.vcid != 0 {
		return a.vcid, nil
	}
	id, err := a.vcids.Allocate(a.vcidInUse)
	if err != nil {
		return 0, err
	}
	a.vcid = id
	a.Log().Debugf("allocated vc-id %d (%d in use)", id, len(a.vcidInUse))
	return id, nil
}

// PseudowireID returns the pseudowire ID of the service, allocating it on
// first call.
func (a *Activation) PseudowireID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pwid == 0 {
		a.pwid = a.pws.Next(a.pwInUse)
		a.Log().Debugf("allocated pseudowire id %d", a.pwid)
	}
	return a.pwid
}

// ObserveLoopback records the loopback address of device.
func (a *Activation) ObserveLoopback(device, ip string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loopbacks[device] = ip
}

// Loopback returns the loopback address recorded for device.
func (a *Activation) Loopback(device string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ip, ok := a.loopbacks[device]
	return ip, ok
}

// VisitDevice marks device as handled and reports whether this is the first
// visit. Device-level objects are removed only by the first visitor.
func (a *Activation) VisitDevice(device string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.visitedDevices[device] {
		return false
	}
	a.visitedDevices[device] = true
	return true
}

// VisitInterface marks an interface of device as handled and reports whether
// this is the first visit.
func (a *Activation) VisitInterface(device, ifname string) bool {
	key := fmt.Sprintf("%s:%s", device, ifname)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.visitedInterfaces[key] {
		return false
	}
	a.visitedInterfaces[key] = true
	return true
}

// OtherEndpoints returns the endpoints of the request not on device.
func (a *Activation) OtherEndpoints(device string) []service.Endpoint {
	return a.Request.Peers(device)
}
