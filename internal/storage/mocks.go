package storage

import (
	"context"

	"github.com/shmel1k/mysqlrouter/internal/cluster"
)

// MockedStorage satisfies Storage without persisting anything, for
// configurations that don't name an audit database.
type MockedStorage struct{}

func (MockedStorage) SaveSnapshot(_ context.Context, _ string, _ cluster.ClusterSnapshot) error {
	return nil
}

func (MockedStorage) SaveQuarantineTransition(_ context.Context, _ QuarantineTransition) error {
	return nil
}

func (MockedStorage) GetLastSnapshot(_ context.Context, _ string) (cluster.ClusterSnapshot, error) {
	return cluster.ClusterSnapshot{}, ErrEmptyResult
}

func (MockedStorage) GetQuarantineTransitions(_ context.Context, _ string) ([]QuarantineTransition, error) {
	return nil, nil
}
