package driver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/evc/pkg/audit"
	"github.com/newtron-network/evc/pkg/evc/capability"
	"github.com/newtron-network/evc/pkg/evc/service"
	"github.com/newtron-network/evc/pkg/util"
)

type nodeMap map[string]capability.Snapshot

func (m nodeMap) Snapshot(_ context.Context, node string) (capability.Snapshot, error) {
	s, ok := m[node]
	if !ok {
		return capability.Snapshot{}, fmt.Errorf("node %s: %w", node, util.ErrNotFound)
	}
	return s, nil
}

// recorder collects "op driver" lines across drivers.
type recorder struct {
	calls []string
}

type fakeDriver struct {
	Base
	rec    *recorder
	failOn Op
}

func (f *fakeDriver) step(op Op) error {
	if err := f.Begin(op); err != nil {
		return err
	}
	f.rec.calls = append(f.rec.calls, fmt.Sprintf("%s %s", op, f.Name()))
	if op == f.failOn {
		return fmt.Errorf("%s failed on %s", op, f.Device())
	}
	f.Complete(op)
	return nil
}

func (f *fakeDriver) Initialize(context.Context, *Activation) error { return f.step(OpInitialize) }
func (f *fakeDriver) Activate(context.Context) error                { return f.step(OpActivate) }
func (f *fakeDriver) Deactivate(context.Context) error              { return f.step(OpDeactivate) }
func (f *fakeDriver) Commit(context.Context) error                  { return f.step(OpCommit) }
func (f *fakeDriver) Rollback(context.Context) error                { return f.step(OpRollback) }

func (f *fakeDriver) Preview(context.Context, Op) (string, error) {
	return "change on " + f.Device(), nil
}

type fakeBuilder struct {
	family   string
	requires []string
	priority int
	rec      *recorder
	failOn   map[string]Op
	built    [][]service.Endpoint
}

func (b *fakeBuilder) Family() string { return b.family }

func (b *fakeBuilder) Requires() ([]string, capability.Mode) {
	return b.requires, capability.And
}

func (b *fakeBuilder) Build(_ *Activation, owned []service.Endpoint) ([]ActivationDriver, error) {
	b.built = append(b.built, owned)
	var out []ActivationDriver
	seen := make(map[string]bool)
	for _, ep := range owned {
		if seen[ep.Device] {
			continue
		}
		seen[ep.Device] = true
		out = append(out, &fakeDriver{
			Base:   NewBase(b.family, ep.Device, b.priority),
			rec:    b.rec,
			failOn: b.failOn[ep.Device],
		})
	}
	return out, nil
}

var nodes = nodeMap{
	"pe1":  {Node: "pe1", Capabilities: []string{capability.CapConfigDB, capability.CapL2VPN}},
	"pe2":  {Node: "pe2", Capabilities: []string{capability.CapConfigDB, capability.CapL2VPN}},
	"csr1": {Node: "csr1", Capabilities: []string{capability.CapRESTCLI}},
	"sw9":  {Node: "sw9"},
}

func newTestDispatcher(rec *recorder, failOn map[string]Op) (*Dispatcher, *fakeBuilder, *fakeBuilder) {
	structured := &fakeBuilder{family: "l2vpn", requires: []string{capability.ConfigDB, capability.L2VPNModel},
		priority: 10, rec: rec, failOn: failOn}
	cli := &fakeBuilder{family: "cli", requires: []string{capability.RESTCLI}, priority: 20, rec: rec, failOn: failOn}
	return NewDispatcher(nodes, cli, structured), structured, cli
}

func request(devices ...string) *service.Request {
	req := &service.Request{ServiceID: "svc", Type: service.Multipoint}
	if len(devices) == 2 {
		req.Type = service.PointToPoint
	}
	for i, d := range devices {
		req.Endpoints = append(req.Endpoints, service.Endpoint{Device: d, Port: fmt.Sprintf("Gi%d", i+1), VLAN: 100})
	}
	return req
}

func TestDispatcherActivateOrdersByPriority(t *testing.T) {
	rec := &recorder{}
	d, structured, cli := newTestDispatcher(rec, nil)

	res, err := d.Activate(context.Background(), request("csr1", "pe1", "pe2"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"initialize l2vpn/pe1", "initialize l2vpn/pe2", "initialize cli/csr1",
		"activate l2vpn/pe1", "activate l2vpn/pe2", "activate cli/csr1",
		"commit l2vpn/pe1", "commit l2vpn/pe2", "commit cli/csr1",
	}, rec.calls)
	require.Len(t, structured.built, 1)
	assert.Len(t, structured.built[0], 2)
	require.Len(t, cli.built, 1)
	assert.Len(t, cli.built[0], 1)

	require.Len(t, res.Drivers, 3)
	for _, st := range res.Drivers {
		assert.Equal(t, Committed, st.State)
	}
	assert.Equal(t, "svc", res.ServiceID)
	assert.NotEmpty(t, res.RequestID)
}

func TestDispatcherRollbackInReverse(t *testing.T) {
	rec := &recorder{}
	d, _, _ := newTestDispatcher(rec, map[string]Op{"csr1": OpActivate})

	res, err := d.Activate(context.Background(), request("pe1", "pe2", "csr1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "activate failed on csr1")

	assert.Equal(t, []string{
		"initialize l2vpn/pe1", "initialize l2vpn/pe2", "initialize cli/csr1",
		"activate l2vpn/pe1", "activate l2vpn/pe2", "activate cli/csr1",
		"rollback l2vpn/pe2", "rollback l2vpn/pe1",
	}, rec.calls)

	states := map[string]State{}
	for _, st := range res.Drivers {
		states[st.Name] = st.State
	}
	assert.Equal(t, map[string]State{
		"l2vpn/pe1": RolledBack,
		"l2vpn/pe2": RolledBack,
		"cli/csr1":  Initialized,
	}, states, "the failed driver is not rolled back")
}

func TestDispatcherRollbackFailureReported(t *testing.T) {
	rec := &recorder{}
	d, _, _ := newTestDispatcher(rec, map[string]Op{"pe1": OpRollback, "pe2": OpActivate})

	_, err := d.Activate(context.Background(), request("pe1", "pe2"))
	require.Error(t, err)

	var rb *util.RollbackError
	require.True(t, errors.As(err, &rb))
	require.Len(t, rb.RollbackErrs, 1)
	assert.Contains(t, rb.Error(), "rollback failed")
	assert.Contains(t, rb.Cause.Error(), "activate failed on pe2")
}

func TestDispatcherDeactivate(t *testing.T) {
	rec := &recorder{}
	d, _, _ := newTestDispatcher(rec, map[string]Op{"pe2": OpDeactivate})

	_, err := d.Deactivate(context.Background(), request("pe1", "pe2"))
	require.Error(t, err)
	assert.Equal(t, []string{
		"initialize l2vpn/pe1", "initialize l2vpn/pe2",
		"deactivate l2vpn/pe1", "deactivate l2vpn/pe2",
		"rollback l2vpn/pe1",
	}, rec.calls)
}

func TestDispatcherInitializeFailureTouchesNothing(t *testing.T) {
	rec := &recorder{}
	d, _, _ := newTestDispatcher(rec, map[string]Op{"pe2": OpInitialize})

	_, err := d.Activate(context.Background(), request("pe1", "pe2"))
	require.Error(t, err)
	assert.Equal(t, []string{"initialize l2vpn/pe1", "initialize l2vpn/pe2"}, rec.calls)
}

func TestDispatcherNoDriver(t *testing.T) {
	rec := &recorder{}
	d, _, _ := newTestDispatcher(rec, nil)

	_, err := d.Activate(context.Background(), request("pe1", "sw9"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, util.ErrNoDriver))
	assert.Empty(t, rec.calls)
}

func TestDispatcherUnknownNode(t *testing.T) {
	d, _, _ := newTestDispatcher(&recorder{}, nil)
	_, err := d.Activate(context.Background(), request("pe1", "ghost"))
	assert.True(t, errors.Is(err, util.ErrNotFound))
}

func TestDispatcherInvalidRequest(t *testing.T) {
	d, _, _ := newTestDispatcher(&recorder{}, nil)
	_, err := d.Activate(context.Background(), request("pe1"))
	assert.True(t, errors.Is(err, util.ErrValidationFailed))
}

func TestDispatcherPreview(t *testing.T) {
	rec := &recorder{}
	d, _, _ := newTestDispatcher(rec, nil)

	previews, err := d.Preview(context.Background(), request("csr1", "pe1"), OpActivate)
	require.NoError(t, err)
	assert.Equal(t, []DriverPreview{
		{Name: "l2vpn/pe1", Device: "pe1", Changes: "change on pe1"},
		{Name: "cli/csr1", Device: "csr1", Changes: "change on csr1"},
	}, previews)
	assert.Equal(t, []string{"initialize l2vpn/pe1", "initialize cli/csr1"}, rec.calls, "preview writes nothing")
}

func TestDispatcherAudit(t *testing.T) {
	logger, err := audit.NewFileLogger(filepath.Join(t.TempDir(), "audit.log"), audit.RotationConfig{})
	require.NoError(t, err)
	defer logger.Close()

	d, _, _ := newTestDispatcher(&recorder{}, map[string]Op{"pe2": OpActivate})
	d.Audit = logger
	d.User = "alice"

	res, err := d.Activate(context.Background(), request("pe1", "pe2"))
	require.Error(t, err)

	events, err := logger.Query(audit.Filter{RequestID: res.RequestID})
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, "alice", ev.User)
		assert.Equal(t, "activate", ev.Operation)
		assert.False(t, ev.Success)
	}
	assert.True(t, events[0].RolledBack)
}
