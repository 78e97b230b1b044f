// Package store owns the PostgreSQL layer of the fulfillment engine: the
// connection pool, the relational schema, the serializable transaction
// runner, cluster-wide advisory locks, and the launch-control flags table.
//
// The database is the only shared mutable store of the system. Process-local
// caches exist (launch flags, notification dedup) but are never the source
// of truth for correctness.
package store

import (
	"context"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Querier is the subset of pgx which data-access code requires. Both
// pgx.Tx and *pgxpool.Pool satisfy it, so the same store methods run inside
// a caller's transaction or directly against the pool, and engine tests
// substitute fakes without a live database.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

var _ Querier = (pgx.Tx)(nil)
var _ Querier = (*pgxpool.Pool)(nil)

// DB wraps the shared connection pool. One DB is opened at process start and
// closed at shutdown; it is passed explicitly to every component which
// touches the database.
type DB struct {
	Pool *pgxpool.Pool
}

// Open connects to PostgreSQL at |url| and verifies the connection.
func Open(ctx context.Context, url string) (*DB, error) {
	var cfg, err = pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing postgres URL")
	}

	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to postgres")
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "pinging postgres")
	}

	log.WithFields(log.Fields{
		"host":     cfg.ConnConfig.Host,
		"database": cfg.ConnConfig.Database,
	}).Info("opened database")

	return &DB{Pool: pool}, nil
}

// Close releases the pool. Outstanding acquired connections are allowed to
// finish before the pool shuts down.
func (db *DB) Close() { db.Pool.Close() }
