// Package sqlite is the Storage implementation backing the audit trail: a
// single-connection *sql.DB, an ON CONFLICT upsert for the latest-snapshot
// table, and an append-only insert for the transition log.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	// sqlite3 driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/shmel1k/mysqlrouter/internal/cluster"
	"github.com/shmel1k/mysqlrouter/internal/storage"
)

const (
	querySaveSnapshot = `INSERT INTO snapshots(replicaset_name, generation, data)
							VALUES(?, ?, ?)
							ON CONFLICT(replicaset_name) DO UPDATE SET
								generation = excluded.generation,
								data = excluded.data`
	querySaveTransition = `INSERT INTO quarantine_transitions(listener_name, host, port, quarantined, recorded_at)
							VALUES(?, ?, ?, ?, ?)`
	initDatabaseQueries = `CREATE TABLE IF NOT EXISTS snapshots (
		"id" integer NOT NULL PRIMARY KEY AUTOINCREMENT,
		"replicaset_name" TEXT UNIQUE,
		"generation" INTEGER,
		"data" BLOB
	  );
	CREATE TABLE IF NOT EXISTS quarantine_transitions (
		"id" integer NOT NULL PRIMARY KEY AUTOINCREMENT,
		"listener_name" TEXT,
		"host" TEXT,
		"port" INTEGER,
		"quarantined" INTEGER,
		"recorded_at" INTEGER
	  )`
	queryGetLastSnapshot = `SELECT data
		FROM snapshots
		WHERE replicaset_name = ?
		ORDER BY id DESC LIMIT 1`
	queryGetTransitions = `SELECT listener_name, host, port, quarantined, recorded_at
		FROM quarantine_transitions
		WHERE listener_name = ?
		ORDER BY id ASC`
)

// Config bounds a Storage's connection and per-query behavior.
type Config struct {
	FileName       string
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
}

type sqliteStorage struct {
	db     *sql.DB
	config Config
}

// New opens (or creates) the sqlite database at cfg.FileName and ensures its
// tables exist.
func New(cfg Config) (storage.Storage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	db, err := sql.Open("sqlite3", cfg.FileName)
	if err != nil {
		return nil, err
	}

	// group replication topology churns slowly; one writer avoids SQLITE_BUSY
	// without a connection pool to manage.
	db.SetMaxOpenConns(1)

	if err := createTables(ctx, db); err != nil {
		return nil, err
	}

	return &sqliteStorage{db: db, config: cfg}, nil
}

func (s *sqliteStorage) SaveSnapshot(ctx context.Context, replicaSetName string, snapshot cluster.ClusterSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, querySaveSnapshot, replicaSetName, snapshot.Generation, data)
	return err
}

func (s *sqliteStorage) SaveQuarantineTransition(ctx context.Context, t storage.QuarantineTransition) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, querySaveTransition, t.ListenerName, t.Host, t.Port, t.Quarantined, t.RecordedAt)
	return err
}

func (s *sqliteStorage) GetLastSnapshot(ctx context.Context, replicaSetName string) (cluster.ClusterSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	var data []byte
	row := s.db.QueryRowContext(ctx, queryGetLastSnapshot, replicaSetName)

	var snap cluster.ClusterSnapshot
	err := row.Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, storage.ErrEmptyResult
	}
	if err != nil {
		return snap, err
	}

	err = json.Unmarshal(data, &snap)
	return snap, err
}

func (s *sqliteStorage) GetQuarantineTransitions(ctx context.Context, listenerName string) ([]storage.QuarantineTransition, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryGetTransitions, listenerName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]storage.QuarantineTransition, 0)
	for rows.Next() {
		var t storage.QuarantineTransition
		if err := rows.Scan(&t.ListenerName, &t.Host, &t.Port, &t.Quarantined, &t.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, initDatabaseQueries)
	return err
}
