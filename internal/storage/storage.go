// Package storage is the audit trail: the latest published cluster snapshot
// per replica set (each save replaces the previous one) and every
// quarantine transition a listener records, appended in order. It sits
// behind a narrow interface satisfied by a sqlite-backed implementation and
// a MockedStorage no-op for configurations that don't need persistence.
package storage

import (
	"context"
	"errors"

	"github.com/shmel1k/mysqlrouter/internal/cluster"
)

// ErrEmptyResult is returned by the Get* methods when no row matches.
var ErrEmptyResult = errors.New("empty result")

// QuarantineTransition is one row of the quarantine audit log: a
// destination entering or leaving quarantine on a given listener.
type QuarantineTransition struct {
	ListenerName string
	Host         string
	Port         uint16
	Quarantined  bool
	RecordedAt   int64
}

// Storage persists the audit trail the coordinator produces: the
// ClusterSnapshot a metadata cache publishes on every refresh, and the
// quarantine transitions a dispatcher's registry records.
type Storage interface {
	SaveSnapshot(ctx context.Context, replicaSetName string, snapshot cluster.ClusterSnapshot) error
	SaveQuarantineTransition(ctx context.Context, t QuarantineTransition) error
	GetLastSnapshot(ctx context.Context, replicaSetName string) (cluster.ClusterSnapshot, error)
	GetQuarantineTransitions(ctx context.Context, listenerName string) ([]QuarantineTransition, error)
}
