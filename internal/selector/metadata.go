package selector

import "github.com/shmel1k/mysqlrouter/internal/cluster"

// SnapshotSource is the read-only view of the metadata cache the selector
// needs. *cache.Cache satisfies it.
type SnapshotSource interface {
	Lookup(replicaSetName string, role cluster.Role) ([]cluster.ManagedInstance, bool)
}

// Cache is the metadata-cache-backed selector: it filters the cache's
// current snapshot by replica set and role, in the snapshot's declared
// order, skipping quarantined destinations. It returns no candidates
// immediately when the cache reports the replica set Unavailable.
type Cache struct {
	source         SnapshotSource
	replicaSetName string
	role           cluster.Role
	quarantine     QuarantineChecker
}

// NewCache builds a metadata-cache-backed selector for one replica set and
// role.
func NewCache(source SnapshotSource, replicaSetName string, role cluster.Role, quarantine QuarantineChecker) *Cache {
	return &Cache{source: source, replicaSetName: replicaSetName, role: role, quarantine: quarantine}
}

func (c *Cache) Candidates() []cluster.Destination {
	members, ok := c.source.Lookup(c.replicaSetName, c.role)
	if !ok {
		return nil
	}

	out := make([]cluster.Destination, 0, len(members))
	for _, m := range members {
		if c.quarantine != nil && c.quarantine.IsQuarantined(m.Destination) {
			continue
		}
		out = append(out, m.Destination)
	}
	return out
}
