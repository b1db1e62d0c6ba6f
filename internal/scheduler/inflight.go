package scheduler

import (
	"sync"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// InFlight ensures only one check per target runs in this process at a time.
type InFlight struct {
	mu      sync.Mutex
	targets map[domain.TargetID]struct{}
}

func NewInFlight() *InFlight {
	return &InFlight{targets: make(map[domain.TargetID]struct{})}
}

// Acquire returns false if a check for id is already running.
func (f *InFlight) Acquire(id domain.TargetID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.targets[id]; busy {
		return false
	}
	f.targets[id] = struct{}{}
	return true
}

func (f *InFlight) Release(id domain.TargetID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.targets, id)
}

func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.targets)
}
