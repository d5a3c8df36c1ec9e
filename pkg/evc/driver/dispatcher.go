package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/newtron-network/evc/pkg/audit"
	"github.com/newtron-network/evc/pkg/evc/capability"
	"github.com/newtron-network/evc/pkg/evc/ids"
	"github.com/newtron-network/evc/pkg/evc/service"
	"github.com/newtron-network/evc/pkg/util"
)

// Dispatcher selects and runs the drivers of a service request.
type Dispatcher struct {
	Nodes        capability.Source
	Capabilities *capability.Registry
	Builders     []Builder

	VCIDs       *ids.VCIDAllocator
	Pseudowires *ids.PseudowireAllocator

	// Audit receives one event per driver; nil disables auditing.
	Audit audit.Logger
	User  string
}

// NewDispatcher creates a dispatcher with the default capability registry
// and process-wide allocators. Builders are consulted in order; the first
// one whose requirements a device meets claims its endpoints.
func NewDispatcher(nodes capability.Source, builders ...Builder) *Dispatcher {
	return &Dispatcher{
		Nodes:        nodes,
		Capabilities: capability.DefaultRegistry(),
		Builders:     builders,
		VCIDs:        ids.NewVCIDAllocator(),
		Pseudowires:  ids.NewPseudowireAllocator(ids.PseudowireSeed),
	}
}

// DriverStatus is the outcome of one driver.
type DriverStatus struct {
	Name     string
	Device   string
	Priority int
	State    State
}

// Result summarizes a request.
type Result struct {
	RequestID string
	ServiceID string
	Op        Op
	Drivers   []DriverStatus
	Duration  time.Duration
}

// Activate provisions the service on every device of req.
func (d *Dispatcher) Activate(ctx context.Context, req *service.Request) (*Result, error) {
	return d.run(ctx, req, OpActivate)
}

// Deactivate removes the service from every device of req.
func (d *Dispatcher) Deactivate(ctx context.Context, req *service.Request) (*Result, error) {
	return d.run(ctx, req, OpDeactivate)
}

// Select resolves the drivers for act.Request, sorted by ascending priority.
// Endpoints whose device satisfies no builder fail with util.ErrNoDriver.
func (d *Dispatcher) Select(ctx context.Context, act *Activation) ([]ActivationDriver, error) {
	claims := make([][]service.Endpoint, len(d.Builders))

	for _, ep := range act.Request.Endpoints {
		snap, ok := act.Snapshot(ep.Device)
		if !ok {
			var err error
			snap, err = d.Nodes.Snapshot(ctx, ep.Device)
			if err != nil {
				return nil, fmt.Errorf("capabilities of %s: %w", ep.Device, err)
			}
			act.SetSnapshot(snap)
		}

		claimed := false
		for i, b := range d.Builders {
			names, mode := b.Requires()
			ok, err := d.Capabilities.Supports(snap, names, mode)
			if err != nil {
				return nil, fmt.Errorf("driver family %s: %w", b.Family(), err)
			}
			if ok {
				claims[i] = append(claims[i], ep)
				claimed = true
				break
			}
		}
		if !claimed {
			return nil, fmt.Errorf("%w: %s (capabilities: %s)",
				util.ErrNoDriver, ep, strings.Join(snap.Capabilities, ", "))
		}
	}

	var drivers []ActivationDriver
	for i, b := range d.Builders {
		if len(claims[i]) == 0 {
			continue
		}
		built, err := b.Build(act, claims[i])
		if err != nil {
			return nil, fmt.Errorf("building %s drivers: %w", b.Family(), err)
		}
		drivers = append(drivers, built...)
	}
	sort.SliceStable(drivers, func(i, j int) bool {
		return drivers[i].Priority() < drivers[j].Priority()
	})
	return drivers, nil
}

// Preview initializes the drivers of req and returns the change each would
// make, keyed by driver name in execution order. Nothing is written, and the
// pseudowire counter is left where it was.
func (d *Dispatcher) Preview(ctx context.Context, req *service.Request, op Op) ([]DriverPreview, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	act := NewActivation(req, op, d.VCIDs, d.Pseudowires.Fork())
	defer d.release(act)

	drivers, err := d.Select(ctx, act)
	if err != nil {
		return nil, err
	}
	if err := initializeAll(ctx, act, drivers); err != nil {
		return nil, err
	}

	out := make([]DriverPreview, 0, len(drivers))
	for _, drv := range drivers {
		p := DriverPreview{Name: drv.Name(), Device: drv.Device()}
		if pv, ok := drv.(Previewer); ok {
			text, err := pv.Preview(ctx, op)
			if err != nil {
				return nil, fmt.Errorf("preview %s: %w", drv.Name(), err)
			}
			p.Changes = text
		}
		out = append(out, p)
	}
	return out, nil
}

// DriverPreview is the pending change of one driver.
type DriverPreview struct {
	Name    string
	Device  string
	Changes string
}

func (d *Dispatcher) run(ctx context.Context, req *service.Request, op Op) (*Result, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	act := NewActivation(req, op, d.VCIDs, d.Pseudowires)
	result := &Result{RequestID: uuid.NewString(), ServiceID: act.ServiceID, Op: op}
	log := act.Log().WithField("request", result.RequestID)
	defer d.release(act)

	drivers, err := d.Select(ctx, act)
	if err != nil {
		return nil, err
	}
	log.Infof("%s: %d driver(s) selected", op, len(drivers))

	err = execute(ctx, act, drivers)

	result.Duration = time.Since(start)
	for _, drv := range drivers {
		result.Drivers = append(result.Drivers, DriverStatus{
			Name: drv.Name(), Device: drv.Device(), Priority: drv.Priority(), State: drv.State(),
		})
	}
	d.record(result, err)

	if err != nil {
		log.Errorf("%s failed: %v", op, err)
		return result, err
	}
	log.Infof("%s committed in %s", op, result.Duration.Round(time.Millisecond))
	return result, nil
}

func initializeAll(ctx context.Context, act *Activation, drivers []ActivationDriver) error {
	for _, drv := range drivers {
		if err := drv.Initialize(ctx, act); err != nil {
			return fmt.Errorf("initialize %s: %w", drv.Name(), err)
		}
	}
	return nil
}

// execute runs the lifecycle over drivers in order. Nothing is written to a
// device before every driver has initialized.
func execute(ctx context.Context, act *Activation, drivers []ActivationDriver) error {
	if err := initializeAll(ctx, act, drivers); err != nil {
		return err
	}

	var applied []ActivationDriver
	for _, drv := range drivers {
		var err error
		if act.Op == OpDeactivate {
			err = drv.Deactivate(ctx)
		} else {
			err = drv.Activate(ctx)
		}
		if err != nil {
			cause := fmt.Errorf("%s %s: %w", act.Op, drv.Name(), err)
			if rbErrs := rollback(ctx, act, applied); len(rbErrs) > 0 {
				return &util.RollbackError{Cause: cause, RollbackErrs: rbErrs}
			}
			return cause
		}
		applied = append(applied, drv)
	}

	var errs []error
	for _, drv := range drivers {
		if err := drv.Commit(ctx); err != nil {
			act.Log().Errorf("commit %s: %v", drv.Name(), err)
			errs = append(errs, fmt.Errorf("commit %s: %w", drv.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// rollback undoes applied drivers in reverse order. Every driver is
// attempted; failures are collected, not retried.
func rollback(ctx context.Context, act *Activation, applied []ActivationDriver) []error {
	var errs []error
	for i := len(applied) - 1; i >= 0; i-- {
		drv := applied[i]
		act.Log().Warnf("rolling back %s", drv.Name())
		if err := drv.Rollback(ctx); err != nil {
			act.Log().Errorf("rollback %s: %v", drv.Name(), err)
			errs = append(errs, fmt.Errorf("rollback %s: %w", drv.Name(), err))
		}
	}
	return errs
}

func (d *Dispatcher) release(act *Activation) {
	if err := act.Sessions.Release(); err != nil {
		act.Log().Warnf("releasing sessions: %v", err)
	}
}

func (d *Dispatcher) record(result *Result, err error) {
	if d.Audit == nil {
		return
	}
	for _, st := range result.Drivers {
		ev := audit.NewEvent(d.User, st.Device, string(result.Op)).
			WithRequest(result.RequestID).
			WithService(result.ServiceID).
			WithDriver(st.Name, st.State.String()).
			WithDuration(result.Duration).
			WithExecuteMode(true)
		if err != nil {
			ev.WithError(err)
		} else {
			ev.WithSuccess()
		}
		if lerr := d.Audit.Log(ev); lerr != nil {
			util.Warnf("audit: %v", lerr)
		}
	}
}
