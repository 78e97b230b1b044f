// Package notify publishes order events to the outbound channel consumed
// by the messaging adapter. Emission happens after the owning transaction
// commits and is best-effort: a lost event is repaired by the recovery
// sweeps, never by blocking or failing the commit.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Channel is the pub/sub channel order events are published on.
const Channel = "souk.order-events"

// Event is one committed order state change.
type Event struct {
	OrderID   uuid.UUID `json:"orderId"`
	NewState  string    `json:"newState"`
	Timestamp time.Time `json:"timestamp"`
}

// Emitter publishes events. Implementations must be safe for concurrent
// use and must not block on slow consumers.
type Emitter interface {
	Emit(ctx context.Context, orderID uuid.UUID, newState string)
}

// Redis publishes events over Redis pub/sub.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to |url| and verifies the connection.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	var client = redis.NewClient(opts)
	if err = client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Emit(ctx context.Context, orderID uuid.UUID, newState string) {
	var payload, err = json.Marshal(Event{
		OrderID:   orderID,
		NewState:  newState,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		panic(err) // Cannot fail.
	}

	if err = r.client.Publish(ctx, Channel, payload).Err(); err != nil {
		emitFailures.Inc()
		log.WithFields(log.Fields{
			"order": orderID,
			"state": newState,
			"err":   err,
		}).Warn("failed to publish order event")
		return
	}
	emitted.Inc()
}

// Close releases the Redis connection.
func (r *Redis) Close() error { return r.client.Close() }

// Inline is the degraded emitter used when no Redis is configured: events
// are logged for operators instead of fanned out.
type Inline struct{}

func (Inline) Emit(_ context.Context, orderID uuid.UUID, newState string) {
	emitted.Inc()
	log.WithFields(log.Fields{
		"order": orderID,
		"state": newState,
	}).Info("order event")
}

// Deduped wraps an Emitter and drops repeat emissions of the same
// (order, state) pair, making after-commit notification idempotent across
// command retries and recovery sweeps.
type Deduped struct {
	inner Emitter
	seen  *expirable.LRU[string, struct{}]
}

// NewDeduped wraps |inner| with a dedup window.
func NewDeduped(inner Emitter) *Deduped {
	return &Deduped{
		inner: inner,
		seen:  expirable.NewLRU[string, struct{}](dedupSize, nil, dedupTTL),
	}
}

func (d *Deduped) Emit(ctx context.Context, orderID uuid.UUID, newState string) {
	var key = orderID.String() + "|" + newState
	if _, dup := d.seen.Get(key); dup {
		return
	}
	d.seen.Add(key, struct{}{})
	d.inner.Emit(ctx, orderID, newState)
}

const (
	dedupSize = 4096
	dedupTTL  = time.Hour
)
