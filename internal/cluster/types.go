// Package cluster holds the data model the metadata cache publishes and the
// resolver/quorum logic that produces it: destinations, managed instances as
// declared by the metadata server, live group-replication members, and the
// replica-set/cluster snapshots assembled from both.
package cluster

import (
	"fmt"
	"time"
)

// Destination is an immutable (host, port, xport) value. xport is the X
// Protocol port, conventionally 10x the classic port when the metadata
// server didn't report one explicitly.
type Destination struct {
	Host  string
	Port  uint16
	XPort uint16
}

// Valid reports whether d can be routed to. A zero port is never routable.
func (d Destination) Valid() bool {
	return d.Port > 0
}

// Equal compares the routable identity of two destinations: host and
// classic port. xport is derived data, not part of identity.
func (d Destination) Equal(other Destination) bool {
	return d.Host == other.Host && d.Port == other.Port
}

func (d Destination) String() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// Mode is the routing role of a managed instance, computed by the quorum
// algorithm from live group-replication state.
type Mode int

const (
	ModeUnavailable Mode = iota
	ModeReadOnly
	ModeReadWrite
)

func (m Mode) String() string {
	switch m {
	case ModeReadOnly:
		return "read-only"
	case ModeReadWrite:
		return "read-write"
	default:
		return "unavailable"
	}
}

// MarshalJSON renders the mode as its String() form.
func (m Mode) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON parses the String() form written by MarshalJSON.
func (m *Mode) UnmarshalJSON(data []byte) error {
	for _, v := range []Mode{ModeUnavailable, ModeReadOnly, ModeReadWrite} {
		if string(data) == `"`+v.String()+`"` {
			*m = v
			return nil
		}
	}
	return fmt.Errorf("cluster: unknown mode %s", data)
}

// ManagedInstance is a member of a replica set as reported by the metadata
// server's topology query (Q1), later labelled with a Mode by the quorum
// computation.
type ManagedInstance struct {
	ReplicaSetName string
	ServerUUID     string
	RoleText       string
	Mode           Mode
	Weight         float32
	VersionToken   uint32
	Location       string
	Destination    Destination
}

// MemberState is the group-replication state of a live cluster member, as
// reported by the status query (Q3).
type MemberState int

const (
	StateOnline MemberState = iota
	StateOffline
	StateRecovering
	StateUnreachable
	StateOther
)

func ParseMemberState(s string) MemberState {
	switch s {
	case "ONLINE":
		return StateOnline
	case "OFFLINE":
		return StateOffline
	case "RECOVERING":
		return StateRecovering
	case "UNREACHABLE":
		return StateUnreachable
	default:
		return StateOther
	}
}

// MemberRole is the group-replication role of a live cluster member.
type MemberRole int

const (
	RoleSecondary MemberRole = iota
	RolePrimary
)

// GroupMember is live state for one cluster node, learned by connecting to
// it and issuing the primary (Q2) and status (Q3) queries.
type GroupMember struct {
	UUID  string
	Host  string
	Port  uint16
	State MemberState
	Role  MemberRole
}

// ReplicaSetStatus is the quorum verdict for a replica set.
type ReplicaSetStatus int

const (
	StatusUnavailable ReplicaSetStatus = iota
	StatusAvailableReadOnly
	StatusAvailableWritable
)

func (s ReplicaSetStatus) String() string {
	switch s {
	case StatusAvailableWritable:
		return "available-writable"
	case StatusAvailableReadOnly:
		return "available-read-only"
	default:
		return "unavailable"
	}
}

// MarshalJSON renders the status as its String() form, so debug endpoints
// serving a ClusterSnapshot read naturally without a separate view type.
func (s ReplicaSetStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses the String() form written by MarshalJSON, so a
// persisted ClusterSnapshot decodes back into the same value.
func (s *ReplicaSetStatus) UnmarshalJSON(data []byte) error {
	for _, v := range []ReplicaSetStatus{StatusUnavailable, StatusAvailableReadOnly, StatusAvailableWritable} {
		if string(data) == `"`+v.String()+`"` {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("cluster: unknown replica set status %s", data)
}

// ReplicaSetSnapshot is the labelled, quorum-verified view of one replica
// set at one refresh instant. Members preserve the order Q1 returned them
// in, which must be stable across refreshes keyed by ServerUUID.
type ReplicaSetSnapshot struct {
	Name    string
	Members []ManagedInstance
	Status  ReplicaSetStatus
}

// ClusterSnapshot is the published, immutable view of the whole cluster.
// Generation increases monotonically on every successful publish. Once
// published a snapshot is never mutated in place; a new one replaces it.
type ClusterSnapshot struct {
	ReplicaSets map[string]ReplicaSetSnapshot
	Generation  uint64
	AcquiredAt  time.Time
}

// ReplicaSet looks up one replica set's snapshot by name.
func (s ClusterSnapshot) ReplicaSet(name string) (ReplicaSetSnapshot, bool) {
	rs, ok := s.ReplicaSets[name]
	return rs, ok
}

// Role is the selector-facing read/write policy, distinct from the
// per-instance Mode computed by quorum: a selector is configured once with
// a Role and filters every snapshot read by it.
type Role int

const (
	RolePrimaryOnly Role = iota
	RoleSecondaryOnly
)

// Filter returns the members of rs matching role: RolePrimaryOnly selects
// ModeReadWrite members, RoleSecondaryOnly selects ModeReadOnly members.
func (rs ReplicaSetSnapshot) Filter(role Role) []ManagedInstance {
	want := ModeReadOnly
	if role == RolePrimaryOnly {
		want = ModeReadWrite
	}

	out := make([]ManagedInstance, 0, len(rs.Members))
	for _, m := range rs.Members {
		if m.Mode == want {
			out = append(out, m)
		}
	}
	return out
}
