// Package idempotency gives inbound webhooks at-most-once semantics: the
// first request bearing a key executes its handler, every later request
// within the TTL replays the recorded response byte for byte.
package idempotency

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	log "github.com/sirupsen/logrus"

	"github.com/soukworks/souk/fault"
	"github.com/soukworks/souk/store"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,255}$`)

// ValidateKey enforces the key format before any database work.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fault.New(fault.InvalidInput,
			"idempotency key must be 1-255 characters of [A-Za-z0-9_-]")
	}
	return nil
}

// Replay is a previously recorded response.
type Replay struct {
	Status int
	Body   []byte
}

// Store coordinates first-writer-wins execution through the
// idempotency_records table. It issues its own short transactions: the
// in-flight marker must be visible to concurrent requests immediately, not
// at the handler transaction's commit.
type Store struct {
	DB  *store.DB
	TTL time.Duration

	// PollInterval and WaitBudget bound how long a duplicate request waits
	// for the first request to complete before giving up.
	PollInterval time.Duration
	WaitBudget   time.Duration
	// StaleAfter is the age at which an in-flight marker is presumed
	// abandoned by a crashed handler and may be taken over.
	StaleAfter time.Duration
}

// New returns a Store with the given TTL and default wait bounds.
func New(db *store.DB, ttl time.Duration) *Store {
	return &Store{
		DB:           db,
		TTL:          ttl,
		PollInterval: 100 * time.Millisecond,
		WaitBudget:   8 * time.Second,
		StaleAfter:   15 * time.Minute,
	}
}

// Begin claims |key| for execution. Exactly one of three things happens:
// the claim succeeds (nil, true, nil) and the caller must run the handler
// and then Complete or Abandon the key; a completed response is found and
// returned for replay; or an error is returned (bad key, body mismatch, or
// the first request is still running past the wait budget).
func (s *Store) Begin(ctx context.Context, key, webhookType string, body []byte) (*Replay, bool, error) {
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}
	var fingerprint = Fingerprint(webhookType, body)

	var _, err = s.DB.Pool.Exec(ctx,
		`INSERT INTO idempotency_records (idempotency_key, webhook_type, request_hash, request_body)
		 VALUES ($1, $2, $3, $4)`,
		key, webhookType, fingerprint, body)

	if err == nil {
		misses.Inc()
		return nil, true, nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil, false, fault.Wrap(err, fault.Internal, "claiming idempotency key")
	}

	// Lost the insert race, or the key is a genuine duplicate. Wait for the
	// winning row to complete, replaying its response once it does.
	var deadline = time.Now().Add(s.WaitBudget)
	for {
		replay, inFlight, err := s.check(ctx, key, fingerprint)
		if err != nil {
			return nil, false, err
		}
		if replay != nil {
			hits.Inc()
			return replay, false, nil
		}
		if !inFlight {
			// The in-flight marker went stale and we took it over.
			takeovers.Inc()
			return nil, true, nil
		}

		if time.Now().After(deadline) {
			return nil, false, fault.New(fault.Timeout,
				"request with key %s is still being processed", key)
		}
		select {
		case <-time.After(s.PollInterval):
		case <-ctx.Done():
			return nil, false, fault.Wrap(ctx.Err(), fault.Timeout,
				"canceled while waiting on key %s", key)
		}
	}
}

// check inspects the winning row. It returns a completed replay, or
// inFlight=true while the winner is still running, or inFlight=false after
// successfully taking over a stale marker.
func (s *Store) check(ctx context.Context, key, fingerprint string) (*Replay, bool, error) {
	var storedHash string
	var status *int
	var body []byte
	var createdAt time.Time

	var err = s.DB.Pool.QueryRow(ctx,
		`SELECT request_hash, response_status, response_body, created_at
		 FROM idempotency_records WHERE idempotency_key = $1`, key).
		Scan(&storedHash, &status, &body, &createdAt)

	if err == pgx.ErrNoRows {
		// The winner was abandoned and swept between our insert and this
		// read; surface as in flight so the loop retries the claim path.
		return nil, true, nil
	} else if err != nil {
		return nil, false, fault.Wrap(err, fault.Internal, "reading idempotency record")
	}

	if storedHash != fingerprint {
		return nil, false, fault.New(fault.InvalidInput,
			"key %s was already used for a different request", key)
	}

	if status != nil {
		return &Replay{Status: *status, Body: body}, false, nil
	}

	if time.Since(createdAt) > s.StaleAfter {
		tag, err := s.DB.Pool.Exec(ctx,
			`UPDATE idempotency_records SET created_at = now()
			 WHERE idempotency_key = $1 AND response_status IS NULL AND created_at = $2`,
			key, createdAt)
		if err != nil {
			return nil, false, fault.Wrap(err, fault.Internal, "taking over stale idempotency record")
		}
		if tag.RowsAffected() == 1 {
			log.WithField("key", key).Warn("took over stale in-flight idempotency record")
			return nil, false, nil
		}
	}
	return nil, true, nil
}

// Complete records the handler's response against the key, starting the
// replay TTL.
func (s *Store) Complete(ctx context.Context, key string, status int, body []byte) error {
	tag, err := s.DB.Pool.Exec(ctx,
		`UPDATE idempotency_records
		 SET response_status = $2, response_body = $3, completed_at = now(), expires_at = $4
		 WHERE idempotency_key = $1`,
		key, status, body, time.Now().UTC().Add(s.TTL))
	if err != nil {
		return fault.Wrap(err, fault.Internal, "completing idempotency record")
	}
	if tag.RowsAffected() == 0 {
		log.WithField("key", key).Warn("idempotency record vanished before completion")
	}
	return nil
}

// Abandon withdraws an in-flight claim whose handler failed transiently,
// letting the provider's retry execute afresh.
func (s *Store) Abandon(ctx context.Context, key string) {
	if _, err := s.DB.Pool.Exec(ctx,
		`DELETE FROM idempotency_records
		 WHERE idempotency_key = $1 AND response_status IS NULL`, key); err != nil {
		log.WithFields(log.Fields{"key": key, "err": err}).
			Warn("failed to abandon idempotency record")
	}
}

// SweepExpired deletes completed records past their TTL and in-flight
// markers stale enough to be crash leftovers. It reports rows deleted.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	tag, err := s.DB.Pool.Exec(ctx,
		`DELETE FROM idempotency_records
		 WHERE (expires_at IS NOT NULL AND expires_at < now())
			OR (response_status IS NULL AND created_at < $1)`,
		time.Now().UTC().Add(-s.StaleAfter))
	if err != nil {
		return 0, fault.Wrap(err, fault.Internal, "sweeping idempotency records")
	}
	var n = int(tag.RowsAffected())
	swept.Add(float64(n))
	return n, nil
}
