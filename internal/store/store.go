// Package store wraps a single pgx connection to one Postgres cluster,
// adapted from the teacher's own thin pgx wrapper (internal/store/store.go)
// down to what this program actually needs: running an arbitrary,
// version-routed query and getting back generically-typed rows (Query), and
// one-off scalar lookups (QueryRowScalar).
package store

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v4"

	"github.com/lesovsky/pgview/internal/pgvlog"
)

// DB wraps one live connection to a Postgres cluster.
type DB struct {
	Config *pgx.ConnConfig
	Conn   *pgx.Conn
}

// New connects using connString, preferring the simple query protocol so
// the same code path also works against a pgbouncer-fronted socket, as the
// teacher's wrapper does.
func New(ctx context.Context, connString string) (*DB, error) {
	config, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(ctx, config)
}

// NewWithConfig connects using an already-parsed config, used by the
// cluster resolver once it has determined host/port from /proc.
func NewWithConfig(ctx context.Context, config *pgx.ConnConfig) (*DB, error) {
	config.PreferSimpleProtocol = true

	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	return &DB{Config: config, Conn: conn}, nil
}

// Close releases the connection; failures are logged, not propagated,
// since callers are generally tearing down anyway.
func (db *DB) Close() {
	if err := db.Conn.Close(context.Background()); err != nil {
		pgvlog.Warnf("store: close connection failed: %s; ignore", err)
	}
}

// QueryResult holds a generic query result: column names in order and rows
// of nullable strings, letting the Postgres collector map columns by name
// regardless of the version-routed query's exact shape.
type QueryResult struct {
	Columns []string
	Rows    [][]sql.NullString
}

// Row returns row i as a map keyed by column name, skipping NULLs.
func (r *QueryResult) Row(i int) map[string]string {
	out := make(map[string]string, len(r.Columns))
	for j, col := range r.Columns {
		v := r.Rows[i][j]
		if v.Valid {
			out[col] = v.String
		}
	}
	return out
}

// Query runs query and captures the result generically: every column is
// scanned into a sql.NullString regardless of its Postgres type, mirroring
// the teacher's GetStats (read for grounding), which exists for exactly
// this reason — the version-routed activity queries return different
// column sets across server versions and the caller needs to address them
// by name, not by a fixed Go struct.
func (db *DB) Query(ctx context.Context, query string, args ...interface{}) (*QueryResult, error) {
	rows, err := db.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, fd := range fields {
		cols[i] = string(fd.Name)
	}

	var result [][]sql.NullString
	for rows.Next() {
		ptrs := make([]interface{}, len(cols))
		vals := make([]sql.NullString, len(cols))
		for i := range ptrs {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			pgvlog.Warnf("store: skip row, scan failed: %s", err)
			continue
		}
		result = append(result, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &QueryResult{Columns: cols, Rows: result}, nil
}

// QueryRowScalar runs query and scans a single scalar result, for
// one-off lookups like server_version_num or pg_is_in_recovery().
func (db *DB) QueryRowScalar(ctx context.Context, query string, dest interface{}) error {
	return db.Conn.QueryRow(ctx, query).Scan(dest)
}
