// Package clidriver provisions point-to-point services on devices configured
// with CLI text over the token-authenticated REST API. Each attachment
// becomes an Ethernet service instance cross-connected over MPLS to the peer
// device's Loopback0.
package clidriver

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/newtron-network/evc/pkg/evc/capability"
	"github.com/newtron-network/evc/pkg/evc/config"
	"github.com/newtron-network/evc/pkg/evc/config/scrape"
	"github.com/newtron-network/evc/pkg/evc/device"
	"github.com/newtron-network/evc/pkg/evc/device/rest"
	"github.com/newtron-network/evc/pkg/evc/driver"
	"github.com/newtron-network/evc/pkg/evc/service"
	"github.com/newtron-network/evc/pkg/util"
)

// Family is the driver family name.
const Family = "rest-cli"

// DefaultPriority orders CLI drivers after structured-config drivers.
const DefaultPriority = 20

// LoopbackInterface is the interface whose address terminates pseudowires.
const LoopbackInterface = "Loopback0"

// Options tune the generated CLI.
type Options struct {
	// RestoreInterface makes removal also reset interface MTU and shut the
	// port down.
	RestoreInterface bool
}

// Builder creates one CLI driver per device.
type Builder struct {
	Executor device.Executor
	Options  Options
	Priority int
}

// NewBuilder returns a builder opening sessions with exec.
func NewBuilder(exec device.Executor, opts Options) *Builder {
	return &Builder{Executor: exec, Options: opts, Priority: DefaultPriority}
}

// Family implements driver.Builder.
func (b *Builder) Family() string { return Family }

// Requires implements driver.Builder.
func (b *Builder) Requires() ([]string, capability.Mode) {
	return []string{capability.RESTCLI, capability.MPLSTopology}, capability.And
}

// Build implements driver.Builder.
func (b *Builder) Build(act *driver.Activation, owned []service.Endpoint) ([]driver.ActivationDriver, error) {
	if act.Request.Type != service.PointToPoint {
		return nil, util.NewResourceError(owned[0].Device, "multipoint service",
			"CLI devices support point-to-point cross-connects only")
	}

	var order []string
	byDevice := make(map[string][]service.Endpoint)
	for _, ep := range owned {
		if _, ok := byDevice[ep.Device]; !ok {
			order = append(order, ep.Device)
		}
		byDevice[ep.Device] = append(byDevice[ep.Device], ep)
	}

	drivers := make([]driver.ActivationDriver, 0, len(order))
	for _, dev := range order {
		drivers = append(drivers, &Driver{
			Base:      driver.NewBase(Family, dev, b.Priority),
			exec:      b.Executor,
			opts:      b.Options,
			endpoints: byDevice[dev],
		})
	}
	return drivers, nil
}

// Driver applies the service to one CLI device.
type Driver struct {
	driver.Base
	exec      device.Executor
	opts      Options
	endpoints []service.Endpoint

	act           *driver.Activation
	session       *rest.Session
	runningConfig string

	// undo is sent on rollback.
	undo string
}

func (d *Driver) log() *logrus.Entry {
	return util.WithDriver(d.act.ServiceID, d.Name(), d.Device())
}

// Initialize opens the session and scrapes the running configuration for
// VC-IDs already in use and the device loopback.
func (d *Driver) Initialize(ctx context.Context, act *driver.Activation) error {
	if err := d.Begin(driver.OpInitialize); err != nil {
		return err
	}
	d.act = act

	s, err := device.Acquire[*rest.Session](ctx, act.Sessions, d.Device(), d.exec)
	if err != nil {
		return err
	}
	text, err := s.RunningConfig(ctx)
	if err != nil {
		return err
	}
	d.session = s
	d.runningConfig = text

	act.ObserveVCIDs(scrape.VCIDs(text))
	if ip, ok := scrape.Loopback(text, LoopbackInterface); ok {
		act.ObserveLoopback(d.Device(), ip)
	}
	d.Complete(driver.OpInitialize)
	d.log().Debugf("initialized with %d endpoint(s)", len(d.endpoints))
	return nil
}

// Activate creates one service instance per endpoint.
func (d *Driver) Activate(ctx context.Context) error {
	if err := d.Begin(driver.OpActivate); err != nil {
		return err
	}
	apply, undo, err := d.plan(driver.OpActivate)
	if err != nil {
		return err
	}
	if err := d.session.Send(ctx, apply); err != nil {
		return err
	}
	d.undo = undo
	d.Complete(driver.OpActivate)
	return nil
}

// Deactivate removes the service instances of the endpoints.
func (d *Driver) Deactivate(ctx context.Context) error {
	if err := d.Begin(driver.OpDeactivate); err != nil {
		return err
	}
	apply, undo, err := d.plan(driver.OpDeactivate)
	if err != nil {
		return err
	}
	if err := d.session.Send(ctx, apply); err != nil {
		return err
	}
	d.undo = undo
	d.Complete(driver.OpDeactivate)
	return nil
}

// Commit is bookkeeping only: CLI text takes effect when applied.
func (d *Driver) Commit(context.Context) error {
	if err := d.Begin(driver.OpCommit); err != nil {
		return err
	}
	d.undo = ""
	d.Complete(driver.OpCommit)
	d.log().Info("committed")
	return nil
}

// Rollback sends the inverse of what Activate or Deactivate applied.
func (d *Driver) Rollback(ctx context.Context) error {
	if err := d.Begin(driver.OpRollback); err != nil {
		return err
	}
	if err := d.session.Send(ctx, d.undo); err != nil {
		return err
	}
	d.undo = ""
	d.Complete(driver.OpRollback)
	d.log().Warn("rolled back")
	return nil
}

// Preview implements driver.Previewer.
func (d *Driver) Preview(_ context.Context, op driver.Op) (string, error) {
	apply, _, err := d.plan(op)
	return apply, err
}

// plan renders the text for op and the text that undoes it.
func (d *Driver) plan(op driver.Op) (apply, undo string, err error) {
	var applies, undos []string
	for _, ep := range d.endpoints {
		var a, u string
		if op == driver.OpDeactivate {
			a, u, err = d.planRemoval(ep)
		} else {
			a, u, err = d.planCreation(ep)
		}
		if err != nil {
			return "", "", err
		}
		if a != "" {
			applies = append(applies, a)
			undos = append(undos, u)
		}
	}
	return strings.Join(applies, "\n"), strings.Join(undos, "\n"), nil
}

func (d *Driver) planCreation(ep service.Endpoint) (string, string, error) {
	peer, ok := peerOf(d.act.Request, ep)
	if !ok {
		return "", "", util.NewResourceError(d.Device(), "peer endpoint", "no remote endpoint for "+ep.String())
	}
	if peer.Device == ep.Device {
		return "", "", util.NewResourceError(d.Device(), "local switching",
			fmt.Sprintf("%s and %s are on the same device", ep, peer))
	}
	peerIP, ok := d.act.Loopback(peer.Device)
	if !ok {
		return "", "", util.NewResourceError(peer.Device, LoopbackInterface+" address", "needed as pseudowire neighbor of "+ep.String())
	}
	vcid, err := d.act.VCID()
	if err != nil {
		return "", "", err
	}

	id, prior := d.serviceInstance(ep)
	params := config.CLIParams{
		Interface:        ep.InterfaceName(),
		ServiceInstance:  id,
		VLAN:             ep.VLAN,
		PeerIP:           peerIP,
		VCID:             vcid,
		RestoreInterface: d.opts.RestoreInterface,
	}
	apply, err := config.RenderServiceInstance(params)
	if err != nil {
		return "", "", err
	}
	undo, err := d.undoCreation(params, prior)
	if err != nil {
		return "", "", err
	}
	return apply, undo, nil
}

// undoCreation re-renders the instance the creation stanza replaces, or
// removes the new one when it replaces nothing.
func (d *Driver) undoCreation(params config.CLIParams, prior *scrape.Instance) (string, error) {
	if prior == nil {
		return config.RenderServiceInstanceRemoval(params)
	}
	if prior.Peer == "" || prior.VCID == 0 {
		d.log().Warnf("service instance %d on %s has no xconnect; rollback removes it", prior.ID, params.Interface)
		return config.RenderServiceInstanceRemoval(params)
	}
	return config.RenderServiceInstance(config.CLIParams{
		Interface:       params.Interface,
		ServiceInstance: prior.ID,
		VLAN:            prior.VLAN(),
		PeerIP:          prior.Peer,
		VCID:            prior.VCID,
	})
}

func (d *Driver) planRemoval(ep service.Endpoint) (string, string, error) {
	if !d.act.VisitInterface(d.Device(), ep.AttachmentName()) {
		d.log().Debugf("%s already handled in this request, skipping removal", ep.AttachmentName())
		return "", "", nil
	}

	ifname := ep.InterfaceName()
	var inst scrape.Instance
	var found bool
	if ep.Tagged() {
		inst, found = scrape.FindTaggedInstance(d.runningConfig, ifname, ep.VLAN)
	} else {
		inst, found = scrape.FindUntaggedInstance(d.runningConfig, ifname)
	}
	if !found {
		d.log().Warnf("no service instance for %s, nothing to remove", ep)
		return "", "", nil
	}

	params := config.CLIParams{
		Interface:        ifname,
		ServiceInstance:  inst.ID,
		VLAN:             inst.VLAN(),
		PeerIP:           inst.Peer,
		VCID:             inst.VCID,
		RestoreInterface: d.opts.RestoreInterface,
	}
	apply, err := config.RenderServiceInstanceRemoval(params)
	if err != nil {
		return "", "", err
	}
	if inst.Peer == "" || inst.VCID == 0 {
		d.log().Warnf("service instance %d on %s has no xconnect; removal cannot be rolled back", inst.ID, ifname)
		return apply, "", nil
	}
	undo, err := config.RenderServiceInstance(params)
	if err != nil {
		return "", "", err
	}
	return apply, undo, nil
}

// serviceInstance picks the instance ID for ep and returns the existing
// instance it replaces, if any. An existing instance is reused only when its
// encapsulation matches ep. Tagged endpoints otherwise take the VLAN as ID
// when free; everything else takes the lowest free ID on the interface.
func (d *Driver) serviceInstance(ep service.Endpoint) (int, *scrape.Instance) {
	ifname := ep.InterfaceName()
	var inst scrape.Instance
	var found bool
	if ep.Tagged() {
		inst, found = scrape.FindTaggedInstance(d.runningConfig, ifname, ep.VLAN)
	} else {
		inst, found = scrape.FindUntaggedInstance(d.runningConfig, ifname)
	}
	if found {
		return inst.ID, &inst
	}

	inUse := scrape.ServiceInstances(d.runningConfig, ifname)
	if ep.Tagged() && !inUse[ep.VLAN] {
		return ep.VLAN, nil
	}
	id := 1
	for inUse[id] {
		id++
	}
	return id, nil
}

// peerOf returns the other endpoint of a point-to-point request.
func peerOf(req *service.Request, ep service.Endpoint) (service.Endpoint, bool) {
	for _, other := range req.Endpoints {
		if other.Device == ep.Device && other.Port == ep.Port && other.VLAN == ep.VLAN {
			continue
		}
		return other, true
	}
	return service.Endpoint{}, false
}
