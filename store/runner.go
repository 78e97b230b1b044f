package store

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	log "github.com/sirupsen/logrus"

	"github.com/soukworks/souk/fault"
)

// Transactor runs a closure inside a serializable database transaction.
// It's the narrow interface components depend on, described as an interface
// for easy mocking.
type Transactor interface {
	// Transact invokes |fn| within a SERIALIZABLE transaction, retrying on
	// serialization conflicts and deadlocks. |op| names the operation and
	// |entity| the primary entity, both for logs and the failure journal.
	Transact(ctx context.Context, op, entity string, fn func(Querier) error) error
}

// Runner is the production Transactor. Every state mutation of the engine
// flows through exactly one Transact call, so a conflict anywhere in the
// read or write set rolls back and replays the whole decision.
type Runner struct {
	DB         *DB
	MaxRetries int           // Further attempts after the first (default 3).
	Timeout    time.Duration // Per-attempt deadline (default 10s).
}

// NewRunner returns a Runner with the given bounds, applying defaults for
// zero values.
func NewRunner(db *DB, maxRetries int, timeout time.Duration) *Runner {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Runner{DB: db, MaxRetries: maxRetries, Timeout: timeout}
}

// Transact implements Transactor. On terminal failure it journals the
// attempt to webhook_failure_log in a separate transaction and returns a
// classified fault.
func (r *Runner) Transact(ctx context.Context, op, entity string, fn func(Querier) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if attempt != 0 {
			select {
			case <-time.After(RetryBackoff(attempt - 1)):
			case <-ctx.Done():
				return fault.Wrap(ctx.Err(), fault.Timeout, "transaction %s canceled", op)
			}
			txRetries.WithLabelValues(op).Inc()
		}

		lastErr = r.attempt(ctx, op, fn)
		if lastErr == nil {
			txCommits.WithLabelValues(op).Inc()
			return nil
		}
		// A parent cancellation is never retried; a per-attempt timeout or
		// serialization conflict is, until attempts run out.
		if ctx.Err() != nil {
			break
		}
		if !Retryable(lastErr) {
			txFailures.WithLabelValues(op, "terminal").Inc()
			return lastErr
		}

		log.WithFields(log.Fields{
			"op":      op,
			"entity":  entity,
			"attempt": attempt,
			"err":     lastErr,
		}).Warn("retrying serializable transaction")
	}

	txFailures.WithLabelValues(op, "exhausted").Inc()
	r.journalFailure(op, entity, r.MaxRetries+1, lastErr)

	if isTimeout(lastErr) {
		return fault.Wrap(lastErr, fault.Timeout, "transaction %s timed out after %d attempts", op, r.MaxRetries+1)
	}
	return fault.Wrap(lastErr, fault.TransientTx, "transaction %s exhausted %d attempts", op, r.MaxRetries+1)
}

func (r *Runner) attempt(ctx context.Context, op string, fn func(Querier) error) error {
	var attemptCtx, cancel = context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var began = time.Now()
	defer func() { txDuration.WithLabelValues(op).Observe(time.Since(began).Seconds()) }()

	tx, err := r.DB.Pool.BeginTx(attemptCtx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(attemptCtx)

	if err = fn(txQuerier{tx, attemptCtx}); err != nil {
		return err
	}
	return tx.Commit(attemptCtx)
}

// txQuerier pins every statement of an attempt to the attempt's deadline,
// regardless of the context data-access code threads through.
type txQuerier struct {
	tx  pgx.Tx
	ctx context.Context
}

func (q txQuerier) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return q.tx.Exec(q.ctx, sql, args...)
}
func (q txQuerier) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return q.tx.Query(q.ctx, sql, args...)
}
func (q txQuerier) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	return q.tx.QueryRow(q.ctx, sql, args...)
}

// journalFailure records a terminally failed operation. It runs on a fresh
// context and an implicit (read committed) transaction: the journal must
// survive even when the parent context is already dead.
func (r *Runner) journalFailure(op, entity string, attempts int, cause error) {
	var ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var _, err = r.DB.Pool.Exec(ctx,
		`INSERT INTO webhook_failure_log (operation, entity_ref, error, attempts)
		 VALUES ($1, $2, $3, $4)`,
		op, entity, cause.Error(), attempts)

	if err != nil {
		log.WithFields(log.Fields{"op": op, "entity": entity, "err": err}).
			Error("failed to journal transaction failure")
	}
}

// Retryable reports whether |err| is a transient conflict worth replaying:
// a serialization failure (40001), a deadlock (40P01), or a per-attempt
// timeout. Unrecognized drivers are matched by message as a fallback.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if isTimeout(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}

	var msg = strings.ToLower(err.Error())
	return strings.Contains(msg, "serialization") || strings.Contains(msg, "deadlock")
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// RetryBackoff returns the sleep before retry |attempt| (zero-based):
// 100ms doubling per attempt, capped at one second, with 10% jitter.
func RetryBackoff(attempt int) time.Duration {
	var d = retryBase
	for i := 0; i < attempt && d < retryCap; i++ {
		d *= 2
	}
	if d > retryCap {
		d = retryCap
	}
	// Jitter within ±10% so herds of conflicting transactions spread out.
	var jitter = time.Duration(rand.Int63n(int64(d)/5+1)) - d/10
	return d + jitter
}

const (
	retryBase = 100 * time.Millisecond
	retryCap  = time.Second
)
