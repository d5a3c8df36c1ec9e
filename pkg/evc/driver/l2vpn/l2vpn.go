// Package l2vpn provisions services on devices with a structured
// configuration model. Point-to-point services become a cross-connect group,
// multipoint services a bridge-domain group; attachment interfaces and QoS
// policies are written in the same transaction.
package l2vpn

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/newtron-network/evc/pkg/evc/capability"
	"github.com/newtron-network/evc/pkg/evc/config"
	"github.com/newtron-network/evc/pkg/evc/device"
	"github.com/newtron-network/evc/pkg/evc/device/configdb"
	"github.com/newtron-network/evc/pkg/evc/driver"
	"github.com/newtron-network/evc/pkg/evc/ids"
	"github.com/newtron-network/evc/pkg/evc/service"
	"github.com/newtron-network/evc/pkg/util"
)

// Family is the driver family name.
const Family = "l2vpn"

// DefaultPriority runs structured-config drivers first.
const DefaultPriority = 10

// LoopbackInterface is the interface whose address terminates pseudowires.
const LoopbackInterface = "Loopback0"

// Loopbacks supplies loopback addresses known outside the device, such as
// from the inventory.
type Loopbacks interface {
	Loopback(device string) (string, bool)
}

// Options tune loopback resolution.
type Options struct {
	// Loopbacks is consulted when a device has no loopback entry.
	Loopbacks Loopbacks

	// DefaultLoopback is the last resort when neither the device nor
	// Loopbacks know an address.
	DefaultLoopback string
}

// Builder creates one driver per device.
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
	return []string{capability.ConfigDB, capability.L2VPNModel}, capability.And
}

// Build implements driver.Builder.
func (b *Builder) Build(act *driver.Activation, owned []service.Endpoint) ([]driver.ActivationDriver, error) {
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

// Driver applies the service to one structured-config device.
type Driver struct {
	driver.Base
	exec      device.Executor
	opts      Options
	endpoints []service.Endpoint

	act     *driver.Activation
	session *configdb.Session
	undo    *configdb.Undo
}

func (d *Driver) log() *logrus.Entry {
	return util.WithDriver(d.act.ServiceID, d.Name(), d.Device())
}

// Initialize mounts the device, collects the pseudowire IDs it already uses
// and resolves its loopback.
func (d *Driver) Initialize(ctx context.Context, act *driver.Activation) error {
	if err := d.Begin(driver.OpInitialize); err != nil {
		return err
	}
	d.act = act

	s, err := device.Acquire[*configdb.Session](ctx, act.Sessions, d.Device(), d.exec)
	if err != nil {
		return err
	}
	d.session = s

	inUse := make(map[int]bool)
	for _, table := range []string{config.TableXConnectPW, config.TableBridgePW} {
		entries, err := s.Scan(ctx, table)
		if err != nil {
			return err
		}
		for _, fields := range entries {
			if id, err := strconv.Atoi(fields["pw_id"]); err == nil && id > 0 {
				inUse[id] = true
			}
		}
	}
	// Cross-connect pseudowires carry the service VC-ID, so scraped IDs
	// constrain both allocators.
	act.ObserveVCIDs(inUse)
	act.ObservePseudowireIDs(inUse)

	ip, err := d.loopback(ctx)
	if err != nil {
		return err
	}
	if ip != "" {
		act.ObserveLoopback(d.Device(), ip)
	}

	d.Complete(driver.OpInitialize)
	d.log().Debugf("initialized: %d pseudowire id(s) in use", len(inUse))
	return nil
}

// loopback prefers the device's own entry, then Options.Loopbacks, then
// Options.DefaultLoopback.
func (d *Driver) loopback(ctx context.Context) (string, error) {
	fields, ok, err := d.session.Get(ctx, config.TableLoopback, LoopbackInterface)
	if err != nil {
		return "", err
	}
	if ok {
		if ip, _, _ := strings.Cut(fields["ipv4_address"], "/"); ip != "" {
			return ip, nil
		}
	}
	if d.opts.Loopbacks != nil {
		if ip, ok := d.opts.Loopbacks.Loopback(d.Device()); ok && ip != "" {
			return ip, nil
		}
	}
	if d.opts.DefaultLoopback != "" {
		util.WithDevice(d.Device()).Warnf("no %s address, using default %s", LoopbackInterface, d.opts.DefaultLoopback)
	}
	return d.opts.DefaultLoopback, nil
}

// Activate writes interfaces, QoS and the switching group in one transaction,
// replacing any earlier copy of the group.
func (d *Driver) Activate(ctx context.Context) error {
	if err := d.Begin(driver.OpActivate); err != nil {
		return err
	}
	delta, err := d.plan(driver.OpActivate)
	if err != nil {
		return err
	}
	undo, err := d.session.Send(ctx, delta)
	if err != nil {
		return err
	}
	d.undo = undo
	d.Complete(driver.OpActivate)
	return nil
}

// Deactivate removes the switching group and the attachments of the
// endpoints, skipping objects already removed for this request.
func (d *Driver) Deactivate(ctx context.Context) error {
	if err := d.Begin(driver.OpDeactivate); err != nil {
		return err
	}
	delta, err := d.plan(driver.OpDeactivate)
	if err != nil {
		return err
	}
	undo, err := d.session.Send(ctx, delta)
	if err != nil {
		return err
	}
	d.undo = undo
	d.Complete(driver.OpDeactivate)
	return nil
}

// Commit drops the undo record; the transaction is already durable.
func (d *Driver) Commit(context.Context) error {
	if err := d.Begin(driver.OpCommit); err != nil {
		return err
	}
	d.undo = nil
	d.Complete(driver.OpCommit)
	d.log().Info("committed")
	return nil
}

// Rollback restores every key the transaction touched.
func (d *Driver) Rollback(ctx context.Context) error {
	if err := d.Begin(driver.OpRollback); err != nil {
		return err
	}
	if err := d.session.Restore(ctx, d.undo); err != nil {
		return err
	}
	d.undo = nil
	d.Complete(driver.OpRollback)
	d.log().Warn("rolled back")
	return nil
}

// Preview implements driver.Previewer.
func (d *Driver) Preview(_ context.Context, op driver.Op) (string, error) {
	delta, err := d.plan(op)
	if err != nil {
		return "", err
	}
	return delta.String(), nil
}

func (d *Driver) plan(op driver.Op) (*config.Delta, error) {
	if op == driver.OpDeactivate {
		return d.planRemoval(), nil
	}
	return d.planCreation()
}

func (d *Driver) planCreation() (*config.Delta, error) {
	req := d.act.Request
	delta := config.NewDelta(d.Device())

	for _, ep := range d.endpoints {
		delta.Add(config.BuildInterface(ep, req.Attributes).Entries()...)
		qos, err := d.qos(ep)
		if err != nil {
			return nil, err
		}
		delta.Add(qos.Entries()...)
	}

	// Pseudowire keys carry the ID; replace the group so re-activation keeps
	// a single pseudowire per peer.
	if req.Type == service.Multipoint {
		group, err := d.bridgeDomain()
		if err != nil {
			return nil, err
		}
		return delta.Remove(group.Subtrees()...).Add(group.Entries()...), nil
	}

	group, err := d.crossConnect()
	if err != nil {
		return nil, err
	}
	return delta.Remove(group.Subtrees()...).Add(group.Entries()...), nil
}

// crossConnect builds the group for the single local endpoint, or the local
// pair when both endpoints are on this device.
func (d *Driver) crossConnect() (*config.XConnectGroup, error) {
	local := d.endpoints[0]
	if len(d.endpoints) == 2 {
		return config.BuildPointToPoint(d.act.ServiceID, local, d.endpoints[1], nil)
	}

	peers := d.act.OtherEndpoints(d.Device())
	if len(peers) != 1 {
		return nil, util.NewResourceError(d.Device(), "peer endpoint",
			fmt.Sprintf("point-to-point service has %d remote endpoints", len(peers)))
	}
	remote := peers[0]
	neighbor, _ := d.act.Loopback(remote.Device)
	vcid, err := d.act.VCID()
	if err != nil {
		return nil, err
	}
	return config.BuildPointToPoint(d.act.ServiceID, local, remote, &config.Pseudowire{Neighbor: neighbor, ID: vcid})
}

// bridgeDomain builds one pseudowire per remote device.
func (d *Driver) bridgeDomain() (*config.BridgeDomainGroup, error) {
	var pws []config.Pseudowire
	seen := make(map[string]bool)
	for _, ep := range d.act.OtherEndpoints(d.Device()) {
		if seen[ep.Device] {
			continue
		}
		seen[ep.Device] = true
		neighbor, ok := d.act.Loopback(ep.Device)
		if !ok || neighbor == "" {
			return nil, util.NewResourceError(d.Device(), "pseudowire neighbor",
				fmt.Sprintf("no loopback address known for %s", ep.Device))
		}
		pws = append(pws, config.Pseudowire{Neighbor: neighbor, ID: d.act.PseudowireID()})
	}
	return config.BuildMultipoint(d.act.ServiceID, d.endpoints, pws)
}

// qos builds the policies of ep, failing when the device has no QoS model.
func (d *Driver) qos(ep service.Endpoint) (*config.QoSConfig, error) {
	q, err := config.BuildQoS(d.act.ServiceID, ep)
	if err != nil || q == nil {
		return nil, err
	}
	if snap, ok := d.act.Snapshot(d.Device()); !ok || !snap.Advertises(capability.CapQoS) {
		return nil, util.NewResourceError(d.Device(), "QoS model",
			"bandwidth profile requested on "+ep.String())
	}
	return q, nil
}

func (d *Driver) planRemoval() *config.Delta {
	req := d.act.Request
	delta := config.NewDelta(d.Device())

	if d.act.VisitDevice(d.Device()) {
		if req.Type == service.Multipoint {
			group := &config.BridgeDomainGroup{Name: ids.BridgeDomainGroupName(d.act.ServiceID)}
			delta.Remove(group.Subtrees()...)
		} else {
			group := &config.XConnectGroup{Name: ids.XConnectGroupName(d.act.ServiceID)}
			delta.Remove(group.Subtrees()...)
		}
	}

	for _, ep := range d.endpoints {
		if !d.act.VisitInterface(d.Device(), ep.AttachmentName()) {
			d.log().Debugf("%s already handled in this request, skipping removal", ep.AttachmentName())
			continue
		}
		ifc := config.BuildInterface(ep, req.Attributes)
		q, err := config.BuildQoS(d.act.ServiceID, ep)
		if err != nil {
			d.log().Warnf("QoS of %s: %v", ep, err)
		}
		delta.Remove(q.Subtrees()...)
		delta.Remove(ifc.AttachmentSubtree())
	}
	return delta
}
