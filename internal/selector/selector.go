// Package selector implements the policy-driven destination iterator the
// dispatcher pulls from once per incoming connection: a static round-robin
// list, or a metadata-cache-backed list filtered by role. Both consult the
// quarantine registry to skip destinations currently excluded from
// rotation.
package selector

import "github.com/shmel1k/mysqlrouter/internal/cluster"

// Selector produces an ordered list of candidate destinations for one
// dispatch. Implementations must be safe for concurrent use: many
// connections dispatch concurrently against the same Selector.
type Selector interface {
	// Candidates returns the destinations to try, in order, for one
	// connection. An empty result means the dispatcher should close the
	// client immediately.
	Candidates() []cluster.Destination
}

// QuarantineChecker is the read-only view of the quarantine registry the
// selectors need. *quarantine.Registry satisfies it.
type QuarantineChecker interface {
	IsQuarantined(cluster.Destination) bool
}
