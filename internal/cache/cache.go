// Package cache owns the periodically refreshed ClusterSnapshot and exposes
// a concurrent read API for the destination selector.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shmel1k/mysqlrouter/internal/cluster"
	"github.com/shmel1k/mysqlrouter/internal/metrics"
)

// Cache holds the current ClusterSnapshot and refreshes it on a ticker.
type Cache struct {
	resolver        *cluster.Resolver
	metadataServers []cluster.Destination
	replicaSetName  string
	ttl             time.Duration

	logger zerolog.Logger

	mu       sync.RWMutex
	snapshot cluster.ClusterSnapshot

	subMu       sync.Mutex
	subscribers []chan struct{}

	stop chan struct{}
	done chan struct{}
}

// New builds a Cache. Call Start to begin the background refresher.
func New(resolver *cluster.Resolver, metadataServers []cluster.Destination, replicaSetName string, ttl time.Duration, logger zerolog.Logger) *Cache {
	return &Cache{
		resolver:        resolver,
		metadataServers: metadataServers,
		replicaSetName:  replicaSetName,
		ttl:             ttl,
		logger:          logger,
		snapshot: cluster.ClusterSnapshot{
			ReplicaSets: map[string]cluster.ReplicaSetSnapshot{},
		},
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start launches the background refresher goroutine. It runs one refresh
// cycle immediately, then one every ttl, until Shutdown is called.
func (c *Cache) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Cache) run(ctx context.Context) {
	defer close(c.done)

	c.refresh(ctx)

	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refresh(ctx)
		}
	}
}

// Shutdown stops the refresher after its current cycle completes.
func (c *Cache) Shutdown() {
	close(c.stop)
	<-c.done
}

// refresh runs one connect/fetch/update/publish cycle: it reconnects to a
// metadata server, fetches the declared topology, resolves each replica
// set's live status, and publishes the result as a new snapshot.
func (c *Cache) refresh(ctx context.Context) {
	txn := metrics.StartRefresh(c.replicaSetName)
	defer txn.End()

	if !c.resolver.Connect(ctx, c.metadataServers) {
		c.logger.Error().Str("replicaset", c.replicaSetName).Msg("all metadata server candidates refused a connection; keeping previous snapshot")
		metrics.RefreshFailed(c.replicaSetName)
		return
	}
	defer c.resolver.Close()

	topology, err := c.resolver.FetchTopology(ctx, c.replicaSetName)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to fetch cluster topology; keeping previous snapshot")
		metrics.RefreshFailed(c.replicaSetName)
		return
	}

	c.mu.RLock()
	previous := c.snapshot
	c.mu.RUnlock()

	replicaSets := make(map[string]cluster.ReplicaSetSnapshot, len(topology))
	for name, members := range topology {
		status, err := c.resolver.UpdateReplicaSetStatus(ctx, name, members)
		if err != nil {
			c.logger.Warn().Err(err).Str("replicaset", name).Msg("failed to update replica set status; retaining its previous snapshot")
			metrics.RefreshFailed(name)
			if old, ok := previous.ReplicaSet(name); ok {
				replicaSets[name] = old
			}
			continue
		}
		replicaSets[name] = cluster.ReplicaSetSnapshot{
			Name:    name,
			Members: members,
			Status:  status,
		}
	}
	// Replica sets present in the previous snapshot but absent from this
	// cycle's topology result are retained rather than dropped, so a
	// transient metadata gap never silently empties the cache.
	for name, rs := range previous.ReplicaSets {
		if _, ok := replicaSets[name]; !ok {
			replicaSets[name] = rs
		}
	}

	next := cluster.ClusterSnapshot{
		ReplicaSets: replicaSets,
		Generation:  previous.Generation + 1,
		AcquiredAt:  time.Now(),
	}

	c.mu.Lock()
	c.snapshot = next
	c.mu.Unlock()

	c.notifySubscribers()
}

// Snapshot returns the currently published ClusterSnapshot. The returned
// value must not be mutated: snapshots are shared-readable and replaced
// wholesale, never edited in place.
func (c *Cache) Snapshot() cluster.ClusterSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Lookup returns the members of replicaSetName matching role from the
// current snapshot, in the metadata's declared order. It returns
// (nil, false) when the replica set is unknown or Unavailable.
func (c *Cache) Lookup(replicaSetName string, role cluster.Role) ([]cluster.ManagedInstance, bool) {
	c.mu.RLock()
	rs, ok := c.snapshot.ReplicaSet(replicaSetName)
	c.mu.RUnlock()
	if !ok || rs.Status == cluster.StatusUnavailable {
		return nil, false
	}
	return rs.Filter(role), true
}

// Subscribe returns a channel that receives a value after every successful
// publish. The channel is buffered (capacity 1) so a slow subscriber never
// blocks the refresher; subscribers are expected to re-read Snapshot rather
// than trust the notification's payload.
func (c *Cache) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	c.subMu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.subMu.Unlock()
	return ch
}

func (c *Cache) notifySubscribers() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
