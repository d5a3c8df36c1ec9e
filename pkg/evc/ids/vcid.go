// Package ids allocates the numeric and textual identifiers that device
// configuration objects need: VC-IDs, pseudowire IDs and service names.
//
// Numeric allocators never trust in-process history alone. Callers pass the
// set of identifiers scraped from the device's running configuration, because
// the device may have been configured by someone else.
package ids

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// MaxVCID is the largest VC-ID handed out; values lie in [1, 2^31).
const MaxVCID = 1<<31 - 1

// VCIDAllocator draws VC-IDs uniformly at random and rejects values already
// present on the device. Retries are unbounded: the ID space is large
// relative to any realistic in-use set.
type VCIDAllocator struct {
	mu   sync.Mutex
	intn func(n int) int
}

// NewVCIDAllocator returns an allocator backed by the runtime-seeded source.
func NewVCIDAllocator() *VCIDAllocator {
	return &VCIDAllocator{intn: rand.IntN}
}

// NewSeededVCIDAllocator returns a deterministic allocator for tests and
// reproducible dry runs.
func NewSeededVCIDAllocator(seed uint64) *VCIDAllocator {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return &VCIDAllocator{intn: r.IntN}
}

// Allocate returns a VC-ID in [1, 2^31) that is not in inUse.
func (a *VCIDAllocator) Allocate(inUse map[int]bool) (int, error) {
	if len(inUse) >= MaxVCID {
		return 0, fmt.Errorf("vc-id space exhausted (%d in use)", len(inUse))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for {
		id := a.intn(MaxVCID) + 1
		if !inUse[id] {
			return id, nil
		}
	}
}
