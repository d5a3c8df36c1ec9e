// Package device defines the per-device session contract shared by the REST
// and structured-config transports, and the per-request session pool.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/newtron-network/evc/pkg/util"
)

// Session is an authenticated channel to one device. It is scoped to a single
// activation request and must be closed on every exit path.
type Session interface {
	Device() string
	Close() error
}

// Executor opens sessions for one transport.
type Executor interface {
	Open(ctx context.Context, device string) (Session, error)
}

// Pool opens at most one session per device, on first use, and closes all of
// them on Release.
type Pool struct {
	mu       sync.Mutex
	sessions map[string]Session
	order    []string
	released bool
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{sessions: make(map[string]Session)}
}

// Get returns the open session for device, opening one with exec if needed.
func (p *Pool) Get(ctx context.Context, device string, exec Executor) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return nil, fmt.Errorf("session pool already released")
	}
	if s, ok := p.sessions[device]; ok {
		return s, nil
	}

	s, err := exec.Open(ctx, device)
	if err != nil {
		return nil, err
	}
	p.sessions[device] = s
	p.order = append(p.order, device)
	util.WithDevice(device).Debug("session opened")
	return s, nil
}

// Open returns the number of sessions currently held.
func (p *Pool) Open() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Release closes every session in reverse opening order. It is safe to call
// more than once.
func (p *Pool) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for i := len(p.order) - 1; i >= 0; i-- {
		name := p.order[i]
		if err := p.sessions[name].Close(); err != nil {
			util.WithDevice(name).Warnf("closing session: %v", err)
			errs = append(errs, fmt.Errorf("closing session to %s: %w", name, err))
		}
		delete(p.sessions, name)
	}
	p.order = nil
	p.released = true
	return errors.Join(errs...)
}

// Acquire fetches the session for device from the pool and asserts its
// concrete type.
func Acquire[T Session](ctx context.Context, p *Pool, device string, exec Executor) (T, error) {
	var zero T
	s, err := p.Get(ctx, device, exec)
	if err != nil {
		return zero, err
	}
	typed, ok := s.(T)
	if !ok {
		return zero, fmt.Errorf("session to %s is %T, want %T", device, s, zero)
	}
	return typed, nil
}
