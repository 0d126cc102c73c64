package selector

import (
	"sync/atomic"

	"github.com/shmel1k/mysqlrouter/internal/cluster"
)

// Static is a fixed, configured list of destinations. Each dispatch starts
// from wherever the previous dispatch's round robin left off — the pointer
// is shared across dispatches — and offers every non-quarantined
// destination once.
type Static struct {
	destinations []cluster.Destination
	quarantine   QuarantineChecker
	next         atomic.Uint64
}

// NewStatic builds a Static selector over destinations.
func NewStatic(destinations []cluster.Destination, quarantine QuarantineChecker) *Static {
	return &Static{destinations: destinations, quarantine: quarantine}
}

func (s *Static) Candidates() []cluster.Destination {
	n := len(s.destinations)
	if n == 0 {
		return nil
	}

	start := int(s.next.Add(1)-1) % n

	out := make([]cluster.Destination, 0, n)
	for i := 0; i < n; i++ {
		d := s.destinations[(start+i)%n]
		if s.quarantine != nil && s.quarantine.IsQuarantined(d) {
			continue
		}
		out = append(out, d)
	}
	return out
}
