package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shmel1k/mysqlrouter/internal/cluster"
	"github.com/shmel1k/mysqlrouter/internal/metadata"
)

type fakeSession struct {
	primary string
	status  []metadata.StatusRow
}

func (f *fakeSession) Connect(ctx context.Context, user, password string, timeout time.Duration) error {
	return nil
}
func (f *fakeSession) Connected() bool { return true }
func (f *fakeSession) Close() error    { return nil }
func (f *fakeSession) Topology(ctx context.Context) ([]metadata.TopologyRow, error) {
	return []metadata.TopologyRow{
		{ReplicaSetName: "rs1", ServerUUID: "u1", ClassicAddr: "10.0.0.1:3306"},
		{ReplicaSetName: "rs1", ServerUUID: "u2", ClassicAddr: "10.0.0.2:3306"},
	}, nil
}
func (f *fakeSession) Primary(ctx context.Context) (string, error) { return f.primary, nil }
func (f *fakeSession) Status(ctx context.Context) ([]metadata.StatusRow, error) {
	return f.status, nil
}

func TestCacheRefreshPublishesSnapshot(t *testing.T) {
	session := &fakeSession{
		primary: "u1",
		status: []metadata.StatusRow{
			{UUID: "u1", State: "ONLINE"},
			{UUID: "u2", State: "ONLINE"},
		},
	}
	factory := func(host string, port uint16) cluster.Session { return session }
	resolver := cluster.NewResolver("user", "pass", time.Second, factory, zerolog.Nop())

	c := New(resolver, []cluster.Destination{{Host: "meta", Port: 3306}}, "rs1", time.Hour, zerolog.Nop())

	c.refresh(context.Background())

	snap := c.Snapshot()
	rs, ok := snap.ReplicaSet("rs1")
	require.True(t, ok)
	assert.Equal(t, cluster.StatusAvailableWritable, rs.Status)
	assert.Equal(t, uint64(1), snap.Generation)

	members, ok := c.Lookup("rs1", cluster.RolePrimaryOnly)
	require.True(t, ok)
	require.Len(t, members, 1)
	assert.Equal(t, "u1", members[0].ServerUUID)

	secondaries, ok := c.Lookup("rs1", cluster.RoleSecondaryOnly)
	require.True(t, ok)
	require.Len(t, secondaries, 1)
	assert.Equal(t, "u2", secondaries[0].ServerUUID)
}

func TestCacheLookupUnknownReplicaSet(t *testing.T) {
	resolver := cluster.NewResolver("user", "pass", time.Second, func(host string, port uint16) cluster.Session {
		return &fakeSession{}
	}, zerolog.Nop())
	c := New(resolver, nil, "rs1", time.Hour, zerolog.Nop())

	_, ok := c.Lookup("unknown", cluster.RolePrimaryOnly)
	assert.False(t, ok)
}

func TestCacheRetainsPreviousSnapshotOnFailedConnect(t *testing.T) {
	resolver := cluster.NewResolver("user", "pass", time.Second, func(host string, port uint16) cluster.Session {
		return &failingConnectSession{}
	}, zerolog.Nop())
	c := New(resolver, []cluster.Destination{{Host: "meta", Port: 3306}}, "rs1", time.Hour, zerolog.Nop())

	c.refresh(context.Background())

	snap := c.Snapshot()
	assert.Equal(t, uint64(0), snap.Generation)
}

type failingConnectSession struct{}

func (f *failingConnectSession) Connect(ctx context.Context, user, password string, timeout time.Duration) error {
	return assertError{}
}
func (f *failingConnectSession) Connected() bool { return false }
func (f *failingConnectSession) Close() error    { return nil }
func (f *failingConnectSession) Topology(ctx context.Context) ([]metadata.TopologyRow, error) {
	return nil, nil
}
func (f *failingConnectSession) Primary(ctx context.Context) (string, error) { return "", nil }
func (f *failingConnectSession) Status(ctx context.Context) ([]metadata.StatusRow, error) {
	return nil, nil
}

type assertError struct{}

func (assertError) Error() string { return "connect refused" }

func TestSubscribeReceivesNotificationAfterRefresh(t *testing.T) {
	session := &fakeSession{
		primary: "u1",
		status: []metadata.StatusRow{
			{UUID: "u1", State: "ONLINE"},
			{UUID: "u2", State: "ONLINE"},
		},
	}
	resolver := cluster.NewResolver("user", "pass", time.Second, func(host string, port uint16) cluster.Session {
		return session
	}, zerolog.Nop())
	c := New(resolver, []cluster.Destination{{Host: "meta", Port: 3306}}, "rs1", time.Hour, zerolog.Nop())

	ch := c.Subscribe()
	c.refresh(context.Background())

	select {
	case <-ch:
	default:
		t.Fatal("expected a notification after refresh")
	}
}
