// Package configdb is the mount-point transport for devices configured
// through a structured configuration database (redis hashes keyed
// "TABLE|key").
//
// A Registry mounts devices: it resolves each device to a redis handle,
// directly or through an SSH tunnel, and keeps the mount for later sessions.
// A Session delivers one config.Delta per call as a single MULTI/EXEC
// transaction and returns the pre-images needed to undo it.
package configdb

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/evc/pkg/util"
)

// Database numbers on the device.
const (
	DefaultConfigDB = 4
	DefaultStateDB  = 6
)

// Target describes how to reach one device's configuration database.
type Target struct {
	// Address is host:port of redis when reachable directly.
	Address string

	// SSH access, used when SSHHost is set.
	SSHHost  string
	SSHPort  int
	SSHUser  string
	SSHPass  string
	RedisURL string // redis address inside the device, DefaultRemoteRedis if empty

	ConfigDB int
	StateDB  int
}

// Targets resolves device names to database targets.
type Targets interface {
	ConfigDBTarget(device string) (Target, error)
}

// Mount is a live handle to one device.
type Mount struct {
	Device string
	config *redis.Client
	state  *redis.Client
	tunnel *SSHTunnel
}

func (m *Mount) close() error {
	var firstErr error
	if err := m.config.Close(); err != nil {
		firstErr = err
	}
	if err := m.state.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if m.tunnel != nil {
		if err := m.tunnel.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Registry mounts devices on demand and caches the mounts.
type Registry struct {
	targets Targets

	mu     sync.Mutex
	mounts map[string]*Mount
}

// NewRegistry creates a registry resolving devices through targets.
func NewRegistry(targets Targets) *Registry {
	return &Registry{targets: targets, mounts: make(map[string]*Mount)}
}

// Mount returns the handle for device, connecting on first use. It fails
// fast with util.ErrNotMounted when the device is unknown or unreachable.
func (r *Registry) Mount(ctx context.Context, device string) (*Mount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.mounts[device]; ok {
		return m, nil
	}

	target, err := r.targets.ConfigDBTarget(device)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", util.ErrNotMounted, device, err)
	}

	addr := target.Address
	var tunnel *SSHTunnel
	if target.SSHHost != "" {
		tunnel, err = NewSSHTunnel(target.SSHHost, target.SSHPort, target.SSHUser, target.SSHPass, target.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", util.ErrNotMounted, device, err)
		}
		addr = tunnel.LocalAddr()
	}
	if addr == "" {
		return nil, fmt.Errorf("%w: %s: no database address", util.ErrNotMounted, device)
	}

	configDB, stateDB := target.ConfigDB, target.StateDB
	if configDB == 0 {
		configDB = DefaultConfigDB
	}
	if stateDB == 0 {
		stateDB = DefaultStateDB
	}
	m := &Mount{
		Device: device,
		config: redis.NewClient(&redis.Options{Addr: addr, DB: configDB}),
		state:  redis.NewClient(&redis.Options{Addr: addr, DB: stateDB}),
		tunnel: tunnel,
	}
	if err := m.config.Ping(ctx).Err(); err != nil {
		m.close()
		return nil, fmt.Errorf("%w: %s: %v", util.ErrNotMounted, device, err)
	}

	r.mounts[device] = m
	util.WithDevice(device).Debugf("mounted configuration database at %s", addr)
	return m, nil
}

// Mounted reports whether device has a live mount.
func (r *Registry) Mounted(device string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.mounts[device]
	return ok
}

// Unmount closes and forgets the mount of device.
func (r *Registry) Unmount(device string) error {
	r.mu.Lock()
	m, ok := r.mounts[device]
	delete(r.mounts, device)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return m.close()
}

// Close unmounts every device.
func (r *Registry) Close() error {
	r.mu.Lock()
	mounts := r.mounts
	r.mounts = make(map[string]*Mount)
	r.mu.Unlock()

	var firstErr error
	for _, m := range mounts {
		if err := m.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
