// Package quarantine tracks consecutive connect failures per destination
// and excludes a destination from routing once its failure count reaches
// the configured threshold. Quarantine is process-lifetime: nothing in this
// package clears it on a timer, only a successful connect does.
package quarantine

import (
	"sync"
	"sync/atomic"

	"github.com/shmel1k/mysqlrouter/internal/cluster"
)

type entry struct {
	failures    atomic.Uint32
	quarantined atomic.Bool
}

// Registry is a shared destination -> failure-count map. It is safe for
// concurrent use: the dispatcher writes to it on every connect attempt, the
// selector reads from it on every Candidates call.
type Registry struct {
	maxConnectErrors uint32

	mu      sync.Mutex
	entries map[cluster.Destination]*entry
}

// New builds a Registry that quarantines a destination once its consecutive
// failure count reaches maxConnectErrors.
func New(maxConnectErrors uint32) *Registry {
	return &Registry{
		maxConnectErrors: maxConnectErrors,
		entries:          make(map[cluster.Destination]*entry),
	}
}

func (r *Registry) entryFor(d cluster.Destination) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[d]
	if !ok {
		e = &entry{}
		r.entries[d] = e
	}
	return e
}

// RecordFailure increments d's consecutive-failure counter and quarantines
// it once the counter reaches the configured threshold. Concurrent failures
// against the same destination are commutative: the counter is monotonic
// and race-free against IsQuarantined readers.
func (r *Registry) RecordFailure(d cluster.Destination) {
	e := r.entryFor(d)
	n := e.failures.Add(1)
	if n >= r.maxConnectErrors {
		e.quarantined.Store(true)
	}
}

// RecordSuccess resets d's failure counter and clears quarantine.
func (r *Registry) RecordSuccess(d cluster.Destination) {
	e := r.entryFor(d)
	e.failures.Store(0)
	e.quarantined.Store(false)
}

// IsQuarantined reports whether d is currently excluded from rotation.
func (r *Registry) IsQuarantined(d cluster.Destination) bool {
	r.mu.Lock()
	e, ok := r.entries[d]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return e.quarantined.Load()
}

// Snapshot returns a point-in-time copy of every tracked entry, used by the
// audit log and debug endpoints.
func (r *Registry) Snapshot() map[cluster.Destination]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[cluster.Destination]Entry, len(r.entries))
	for d, e := range r.entries {
		out[d] = Entry{
			ConsecutiveFailures: e.failures.Load(),
			Quarantined:         e.quarantined.Load(),
		}
	}
	return out
}

// Entry is a read-only view of one destination's quarantine state.
type Entry struct {
	ConsecutiveFailures uint32
	Quarantined         bool
}
