// Package metadata wraps the three opaque queries a MySQL Group Replication
// metadata/backend server answers: cluster topology (Q1), current primary
// (Q2) and live member status (Q3). The SQL text itself is opaque and
// identified only by its literal prefix; column layout and null-handling
// are fixed by the server-side schema.
package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // registers the "mysql" database/sql driver
)

// Q1/Q2/Q3 literal prefixes, a stable external contract operators and
// proxies further down the chain can match on.
const (
	topologyQuery = `SELECT R.replicaset_name, I.mysql_server_uuid, I.role, I.weight, I.version_token, I.location, I.addresses->>'$.mysqlClassic' as classic_addr, I.addresses->>'$.mysqlX' as x_addr FROM mysql_innodb_cluster_metadata.instances I JOIN mysql_innodb_cluster_metadata.replicasets R ON I.replicaset_id = R.replicaset_id`
	primaryQuery  = `show status like 'group_replication_primary_member'`
	statusQuery   = `SELECT member_id, member_host, member_port, member_state, @@global.group_replication_single_primary_mode as single_primary_mode FROM performance_schema.replication_group_members`
)

// TopologyRow is one row of Q1.
type TopologyRow struct {
	ReplicaSetName string
	ServerUUID     string
	RoleText       string
	Weight         float32
	VersionToken   uint32
	Location       string
	ClassicAddr    string
	XAddr          sql.NullString
}

// StatusRow is one row of Q3.
type StatusRow struct {
	UUID          string
	Host          string
	Port          uint16
	State         string
	SinglePrimary bool
}

// Client owns a single connection to one candidate host. It is not safe for
// concurrent use; the resolver owns one Client per active session.
type Client struct {
	host string
	port uint16
	db   *sql.DB
}

// New creates an unconnected Client for (host, port).
func New(host string, port uint16) *Client {
	return &Client{host: host, port: port}
}

// Connect opens the session with the given credentials and timeout. It maps
// any failure to a ConnectError carrying the operator-facing detail.
func (c *Client) Connect(ctx context.Context, user, password string, timeout time.Duration) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/?timeout=%s", user, password, c.host, c.port, timeout)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return ConnectError{Host: c.host, Port: c.port, Detail: err.Error()}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return ConnectError{Host: c.host, Port: c.port, Detail: err.Error()}
	}

	c.db = db
	return nil
}

// Connected reports whether Connect succeeded and Close hasn't been called.
func (c *Client) Connected() bool {
	return c.db != nil
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Topology runs Q1 and returns the raw rows, unparsed — parsing into
// ManagedInstance values is the resolver's job since it needs to log
// warnings using cluster-level context this package doesn't have.
func (c *Client) Topology(ctx context.Context) ([]TopologyRow, error) {
	if c.db == nil {
		return nil, ErrNotConnected
	}

	rows, err := c.db.QueryContext(ctx, topologyQuery)
	if err != nil {
		return nil, QueryError{Detail: err.Error()}
	}
	defer rows.Close()

	var out []TopologyRow
	for rows.Next() {
		var r TopologyRow
		var weight, versionToken sql.NullFloat64
		if err := rows.Scan(&r.ReplicaSetName, &r.ServerUUID, &r.RoleText, &weight, &versionToken, &r.Location, &r.ClassicAddr, &r.XAddr); err != nil {
			return nil, QueryError{Detail: err.Error()}
		}
		if weight.Valid {
			r.Weight = float32(weight.Float64)
		}
		if versionToken.Valid {
			r.VersionToken = uint32(versionToken.Float64)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, QueryError{Detail: err.Error()}
	}
	return out, nil
}

// Primary runs Q2 and returns the UUID of the current primary, or "" if
// group replication reports none.
func (c *Client) Primary(ctx context.Context) (string, error) {
	if c.db == nil {
		return "", ErrNotConnected
	}

	row := c.db.QueryRowContext(ctx, primaryQuery)
	var variableName, value string
	if err := row.Scan(&variableName, &value); err != nil {
		return "", QueryError{Detail: err.Error()}
	}
	return value, nil
}

// Status runs Q3 and returns the live member rows.
func (c *Client) Status(ctx context.Context) ([]StatusRow, error) {
	if c.db == nil {
		return nil, ErrNotConnected
	}

	rows, err := c.db.QueryContext(ctx, statusQuery)
	if err != nil {
		return nil, QueryError{Detail: err.Error()}
	}
	defer rows.Close()

	var out []StatusRow
	for rows.Next() {
		var r StatusRow
		var port int64
		if err := rows.Scan(&r.UUID, &r.Host, &port, &r.State, &r.SinglePrimary); err != nil {
			return nil, QueryError{Detail: err.Error()}
		}
		if port < 0 || port > 65535 {
			return nil, QueryError{Detail: fmt.Sprintf("invalid member_port %d", port)}
		}
		r.Port = uint16(port)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, QueryError{Detail: err.Error()}
	}
	return out, nil
}
