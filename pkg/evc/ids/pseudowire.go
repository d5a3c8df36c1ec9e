package ids

import "sync"

// PseudowireSeed is the first pseudowire ID issued by a fresh process.
const PseudowireSeed = 2000

// PseudowireAllocator issues increasing pseudowire IDs from a process-local
// counter, skipping IDs found in the scraped device configuration.
//
// The counter restarts at the seed on every process start and is not shared
// between controller instances, so uniqueness across restarts or concurrent
// controllers holds only as far as the scraped in-use set reflects the device.
type PseudowireAllocator struct {
	mu   sync.Mutex
	next int
}

// NewPseudowireAllocator returns an allocator starting at seed.
func NewPseudowireAllocator(seed int) *PseudowireAllocator {
	if seed <= 0 {
		seed = PseudowireSeed
	}
	return &PseudowireAllocator{next: seed}
}

// Next returns the next counter value that is not in inUse.
func (a *PseudowireAllocator) Next(inUse map[int]bool) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	for {
		id := a.next
		a.next++
		if a.next > MaxVCID {
			a.next = 1
		}
		if !inUse[id] {
			return id
		}
	}
}

// Fork returns an independent allocator continuing from a's counter. IDs
// drawn from the fork do not advance a.
func (a *PseudowireAllocator) Fork() *PseudowireAllocator {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return &PseudowireAllocator{next: a.next}
}
