package quarantine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shmel1k/mysqlrouter/internal/cluster"
)

func TestRegistryQuarantinesAfterThreshold(t *testing.T) {
	d := cluster.Destination{Host: "10.0.0.1", Port: 3306}
	r := New(3)

	assert.False(t, r.IsQuarantined(d))

	r.RecordFailure(d)
	r.RecordFailure(d)
	assert.False(t, r.IsQuarantined(d))

	r.RecordFailure(d)
	assert.True(t, r.IsQuarantined(d))
}

func TestRegistrySuccessClearsQuarantine(t *testing.T) {
	d := cluster.Destination{Host: "10.0.0.1", Port: 3306}
	r := New(1)

	r.RecordFailure(d)
	assert.True(t, r.IsQuarantined(d))

	r.RecordSuccess(d)
	assert.False(t, r.IsQuarantined(d))
}

func TestRegistryTracksDestinationsIndependently(t *testing.T) {
	a := cluster.Destination{Host: "10.0.0.1", Port: 3306}
	b := cluster.Destination{Host: "10.0.0.2", Port: 3306}
	r := New(1)

	r.RecordFailure(a)
	assert.True(t, r.IsQuarantined(a))
	assert.False(t, r.IsQuarantined(b))
}

func TestRegistryUnknownDestinationIsNotQuarantined(t *testing.T) {
	r := New(1)
	assert.False(t, r.IsQuarantined(cluster.Destination{Host: "unseen", Port: 3306}))
}

func TestRegistrySnapshot(t *testing.T) {
	d := cluster.Destination{Host: "10.0.0.1", Port: 3306}
	r := New(2)

	r.RecordFailure(d)

	snap := r.Snapshot()
	entry, ok := snap[d]
	assert.True(t, ok)
	assert.Equal(t, uint32(1), entry.ConsecutiveFailures)
	assert.False(t, entry.Quarantined)
}
