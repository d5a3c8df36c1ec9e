// Package driver coordinates the activation of one service across the
// devices it touches.
//
// A Dispatcher selects drivers by device capability, then runs every driver
// through Initialize, Activate (or Deactivate) and Commit in ascending
// priority order. When any driver fails to activate, the drivers that already
// did are rolled back in reverse order before the error is returned.
package driver

import (
	"context"

	"github.com/newtron-network/evc/pkg/evc/capability"
	"github.com/newtron-network/evc/pkg/evc/service"
)

// ActivationDriver applies one service to one device. An instance serves a
// single request and is discarded once it reaches a terminal state.
type ActivationDriver interface {
	Name() string
	Device() string
	Priority() int
	State() State

	// Initialize reads device state needed by later steps. It must not
	// change the device.
	Initialize(ctx context.Context, act *Activation) error
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Previewer is implemented by drivers that can describe the change they
// would make after Initialize, without making it.
type Previewer interface {
	Preview(ctx context.Context, op Op) (string, error)
}

// Builder creates the drivers of one family for the endpoints it claims.
type Builder interface {
	Family() string

	// Requires names the capability predicates a device must satisfy for
	// this family to claim its endpoints.
	Requires() ([]string, capability.Mode)

	// Build returns the drivers serving owned, typically one per device.
	Build(act *Activation, owned []service.Endpoint) ([]ActivationDriver, error)
}

// Base carries the identity and lifecycle shared by driver implementations.
type Base struct {
	*Lifecycle
	name     string
	device   string
	priority int
}

// NewBase creates the common part of a driver for device.
func NewBase(family, device string, priority int) Base {
	name := family + "/" + device
	return Base{Lifecycle: NewLifecycle(name), name: name, device: device, priority: priority}
}

func (b Base) Name() string   { return b.name }
func (b Base) Device() string { return b.device }
func (b Base) Priority() int  { return b.priority }
