// Package metrics exposes the prometheus collectors for refresh, quarantine
// and relay activity: a small set of *Vec collectors plus a Transaction
// timer helper for timing one refresh cycle.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	refreshDurations    = "refresh_durations"
	refreshFailures     = "refresh_failures"
	quarantinedGauge    = "quarantined_destinations"
	activeConnsGauge    = "active_connections"
	relayedBytesCounter = "relayed_bytes"
)

var (
	refreshDurationsSum = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Subsystem:  "cache",
		Name:       refreshDurations,
		Help:       "Metadata refresh cycle latencies in seconds",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"replicaset"})

	refreshFailuresCnt = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "cache",
		Name:      refreshFailures,
		Help:      "Total number of failed metadata refresh cycles",
	}, []string{"replicaset"})

	quarantinedGaugeVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "quarantine",
		Name:      quarantinedGauge,
		Help:      "Number of destinations currently quarantined",
	}, []string{"listener"})

	activeConnsGaugeVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "dispatcher",
		Name:      activeConnsGauge,
		Help:      "Number of connections currently being relayed",
	}, []string{"listener"})

	relayedBytesCnt = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "relay",
		Name:      relayedBytesCounter,
		Help:      "Total bytes relayed",
	}, []string{"listener", "direction"})
)

func init() {
	prometheus.MustRegister(refreshDurationsSum)
	prometheus.MustRegister(refreshFailuresCnt)
	prometheus.MustRegister(quarantinedGaugeVec)
	prometheus.MustRegister(activeConnsGaugeVec)
	prometheus.MustRegister(relayedBytesCnt)
}

// Transaction is a started timer that records its duration on End.
type Transaction interface {
	End()
}

type timeTransaction struct {
	timer *prometheus.Timer
}

func (t *timeTransaction) End() {
	t.timer.ObserveDuration()
}

// StartRefresh begins timing one metadata refresh cycle for replicaSetName.
func StartRefresh(replicaSetName string) Transaction {
	return &timeTransaction{timer: prometheus.NewTimer(refreshDurationsSum.WithLabelValues(replicaSetName))}
}

// RefreshFailed records a failed refresh cycle for replicaSetName.
func RefreshFailed(replicaSetName string) {
	refreshFailuresCnt.WithLabelValues(replicaSetName).Inc()
}

// SetQuarantinedCount records how many destinations are currently
// quarantined for a listener.
func SetQuarantinedCount(listener string, n int) {
	quarantinedGaugeVec.WithLabelValues(listener).Set(float64(n))
}

// IncActiveConnections and DecActiveConnections track the dispatcher's
// current relay count for a listener.
func IncActiveConnections(listener string) {
	activeConnsGaugeVec.WithLabelValues(listener).Inc()
}

func DecActiveConnections(listener string) {
	activeConnsGaugeVec.WithLabelValues(listener).Dec()
}

// AddRelayedBytes records n bytes relayed in one direction
// ("client_to_backend" or "backend_to_client") for a listener.
func AddRelayedBytes(listener, direction string, n int) {
	relayedBytesCnt.WithLabelValues(listener, direction).Add(float64(n))
}
