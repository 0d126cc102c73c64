package cluster

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shmel1k/mysqlrouter/internal/metadata"
)

// Session is the narrow capability the resolver needs from a metadata
// client: open, run the three queries, close. metadata.Client satisfies it;
// tests substitute a fake.
type Session interface {
	Connect(ctx context.Context, user, password string, timeout time.Duration) error
	Connected() bool
	Close() error
	Topology(ctx context.Context) ([]metadata.TopologyRow, error)
	Primary(ctx context.Context) (string, error)
	Status(ctx context.Context) ([]metadata.StatusRow, error)
}

// SessionFactory creates an unconnected Session bound to (host, port).
// Production code binds this to metadata.New; tests substitute a fake
// session factory — passing the capability in directly keeps the resolver
// from needing any shared or global session registry.
type SessionFactory func(host string, port uint16) Session

func defaultSessionFactory(host string, port uint16) Session {
	return metadata.New(host, port)
}

// Resolver connects to metadata servers and assembles ClusterSnapshot data.
// A Resolver owns at most one active session at a time and is not safe for
// concurrent use; the metadata cache's refresher goroutine owns it
// exclusively.
type Resolver struct {
	User, Password string
	ConnectTimeout  time.Duration

	NewSession SessionFactory

	logger zerolog.Logger

	active     Session
	activeHost string
	activePort uint16
}

// NewResolver builds a Resolver. If factory is nil, production metadata
// sessions are used.
func NewResolver(user, password string, connectTimeout time.Duration, factory SessionFactory, logger zerolog.Logger) *Resolver {
	if factory == nil {
		factory = defaultSessionFactory
	}
	return &Resolver{
		User:           user,
		Password:       password,
		ConnectTimeout: connectTimeout,
		NewSession:     factory,
		logger:         logger,
	}
}

// Connect iterates candidates in order, attempting to open a session to
// each. It stops and keeps the first session that connects successfully.
// A new session is created for every candidate tried, so a Connect whose
// first candidates refuse creates several sessions; only the one that
// connected is kept.
func (r *Resolver) Connect(ctx context.Context, candidates []Destination) bool {
	r.closeActive()

	for _, d := range candidates {
		session := r.NewSession(d.Host, d.Port)
		if err := session.Connect(ctx, r.User, r.Password, r.ConnectTimeout); err != nil {
			r.logger.Warn().Err(err).Str("host", d.Host).Msg("metadata server did not accept a connection, trying next candidate")
			continue
		}

		r.active = session
		r.activeHost = d.Host
		r.activePort = d.Port
		return true
	}

	return false
}

func (r *Resolver) closeActive() {
	if r.active != nil {
		_ = r.active.Close()
		r.active = nil
	}
}

// Close releases the active session, if any.
func (r *Resolver) Close() {
	r.closeActive()
}

// FetchTopology issues Q1 on the active session and returns every replica
// set found, grouped by name — not only replicaSetName. replicaSetName does
// not narrow the result and is not otherwise used; warnings are tagged with
// each row's own replica set name.
func (r *Resolver) FetchTopology(ctx context.Context, replicaSetName string) (map[string][]ManagedInstance, error) {
	if r.active == nil {
		return nil, MetadataError{Detail: "no active metadata session"}
	}

	rows, err := r.active.Topology(ctx)
	if err != nil {
		return nil, MetadataError{Detail: err.Error()}
	}

	out := make(map[string][]ManagedInstance)
	for _, row := range rows {
		inst, warn := parseTopologyRow(row)
		if warn != "" {
			r.logger.Warn().
				Str("replicaset", row.ReplicaSetName).
				Str("server_uuid", row.ServerUUID).
				Msg(warn)
		}
		if row.ServerUUID != "" {
			if _, err := uuid.Parse(row.ServerUUID); err != nil {
				r.logger.Warn().
					Str("replicaset", row.ReplicaSetName).
					Str("server_uuid", row.ServerUUID).
					Msg("server_uuid is not a well-formed UUID; keeping it as an opaque identifier")
			}
		}
		out[row.ReplicaSetName] = append(out[row.ReplicaSetName], inst)
	}
	return out, nil
}

// parseTopologyRow parses one Q1 row into a ManagedInstance: classic addr
// defaults to port 3306 when absent, xport defaults to 10x the classic port
// when the metadata server reported none, and numeric nulls read as zero
// (already handled by metadata.Client). An empty host is kept, not dropped,
// and reported back as a warning string for the caller to log with cluster
// context.
func parseTopologyRow(row metadata.TopologyRow) (ManagedInstance, string) {
	host, port := splitHostPort(row.ClassicAddr)

	warn := ""
	if host == "" {
		warn = "topology row has an empty host; routing to this instance will not be possible"
	}

	xport := uint16(port) * 10
	if row.XAddr.Valid {
		if _, xp := splitHostPort(row.XAddr.String); xp != 0 {
			xport = xp
		}
	}

	return ManagedInstance{
		ReplicaSetName: row.ReplicaSetName,
		ServerUUID:     row.ServerUUID,
		RoleText:       row.RoleText,
		Weight:         row.Weight,
		VersionToken:   row.VersionToken,
		Location:       row.Location,
		Destination: Destination{
			Host:  host,
			Port:  port,
			XPort: xport,
		},
	}, warn
}

func splitHostPort(addr string) (string, uint16) {
	if addr == "" {
		return "", 3306
	}

	host, portStr, err := splitAddr(addr)
	if err != nil {
		return addr, 3306
	}
	if portStr == "" {
		return host, 3306
	}

	p, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return host, 3306
	}
	return host, uint16(p)
}

func splitAddr(addr string) (host, port string, err error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, "", nil
	}
	return addr[:idx], addr[idx+1:], nil
}

// UpdateReplicaSetStatus resolves the live group-replication view of a
// replica set: iterate members in declared order, opening/reusing sessions
// as needed, issuing Q2 then Q3 on each candidate, and falling over to the
// next declared member on any failure. On the first successful (Q2, Q3)
// pair it builds the live member map, runs the quorum computation and
// returns.
func (r *Resolver) UpdateReplicaSetStatus(ctx context.Context, name string, members []ManagedInstance) (ReplicaSetStatus, error) {
	for i := range members {
		candidate := &members[i]
		d := candidate.Destination
		if !d.Valid() {
			continue
		}

		session, owned := r.sessionFor(d)
		if session == nil {
			if err := r.connectSessionFor(ctx, d); err != nil {
				r.logger.Warn().Err(err).Str("host", d.Host).Msg("failed to connect to replica set member")
				continue
			}
			session = r.active
			owned = true
		}

		primaryUUID, err := session.Primary(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Str("host", d.Host).Msg("failed to read primary status from replica set member")
			r.closeOwnedIfInactive(session, owned)
			continue
		}

		rows, err := session.Status(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Str("host", d.Host).Msg("failed to read group status from replica set member")
			r.closeOwnedIfInactive(session, owned)
			continue
		}

		live := buildLiveMap(rows, primaryUUID, r.logger)
		logMissingMembers(members, live, r.logger, name)
		return CheckReplicaSetStatus(members, live), nil
	}

	return StatusUnavailable, MetadataError{
		Detail: fmt.Sprintf("Unable to fetch live group_replication member data from any server in replicaset '%s'", name),
	}
}

// sessionFor returns the resolver's already-open session if it happens to be
// connected to d, so the session opened by Connect can be reused as the
// first UpdateReplicaSetStatus candidate instead of reconnecting to it.
func (r *Resolver) sessionFor(d Destination) (Session, bool) {
	if r.active != nil && r.activeHost == d.Host && r.activePort == d.Port {
		return r.active, true
	}
	return nil, false
}

func (r *Resolver) connectSessionFor(ctx context.Context, d Destination) error {
	r.closeActive()

	session := r.NewSession(d.Host, d.Port)
	if err := session.Connect(ctx, r.User, r.Password, r.ConnectTimeout); err != nil {
		return err
	}
	r.active = session
	r.activeHost = d.Host
	r.activePort = d.Port
	return nil
}

// closeOwnedIfInactive closes session on failure only if it is the
// resolver's tracked active session, keeping Resolver's bookkeeping
// consistent with what actually got closed.
func (r *Resolver) closeOwnedIfInactive(session Session, owned bool) {
	if owned && session == r.active {
		r.closeActive()
	}
}

func buildLiveMap(rows []metadata.StatusRow, primaryUUID string, logger zerolog.Logger) map[string]GroupMember {
	out := make(map[string]GroupMember, len(rows))
	for _, row := range rows {
		if _, err := uuid.Parse(row.UUID); err != nil {
			logger.Warn().Str("uuid", row.UUID).Msg("group_replication member UUID is not well-formed; keeping it as an opaque identifier")
		}

		role := RoleSecondary
		if row.UUID == primaryUUID && primaryUUID != "" {
			role = RolePrimary
		}
		out[row.UUID] = GroupMember{
			UUID:  row.UUID,
			Host:  row.Host,
			Port:  row.Port,
			State: ParseMemberState(row.State),
			Role:  role,
		}
	}
	return out
}

func logMissingMembers(members []ManagedInstance, live map[string]GroupMember, logger zerolog.Logger, replicaSet string) {
	for i := range members {
		if _, ok := live[members[i].ServerUUID]; !ok {
			logger.Warn().
				Str("replicaset", replicaSet).
				Str("host", members[i].Destination.Host).
				Msg("declared member missing from live group_replication status")
		}
	}
}
