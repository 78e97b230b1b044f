package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const lockReleaseTimeout = 5 * time.Second

// TryAdvisoryLock attempts to take the cluster-wide advisory lock named
// |name|, pinning a pool connection for as long as the lock is held. It
// returns ok=false without error if another session holds the lock.
//
// Sweeper tasks use these locks so that exactly one replica runs a given
// sweep at a time, while every replica serves the webhook ingress.
func (db *DB) TryAdvisoryLock(ctx context.Context, name string) (release func(), ok bool, err error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, false, errors.Wrapf(err, "acquiring connection for lock %s", name)
	}

	if err = conn.QueryRow(ctx,
		`SELECT pg_try_advisory_lock(hashtext($1))`, name).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, errors.Wrapf(err, "taking advisory lock %s", name)
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}

	release = func() {
		// Unlock on a fresh context; the caller's may already be done.
		var unlockCtx, cancel = context.WithTimeout(context.Background(), lockReleaseTimeout)
		defer cancel()

		if _, err := conn.Exec(unlockCtx,
			`SELECT pg_advisory_unlock(hashtext($1))`, name); err != nil {
			log.WithFields(log.Fields{"lock": name, "err": err}).
				Warn("failed to release advisory lock (connection will be closed)")
		}
		conn.Release()
	}
	return release, true, nil
}
