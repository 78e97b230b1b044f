// Package workers hosts the periodic sweeps that advance orders no
// inbound command will touch again: closed bidding windows, winners who
// never confirmed, orders stuck before award, idempotency GC, and the
// nightly ledger reconciliation.
package workers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.gazette.dev/core/task"
	"golang.org/x/sync/errgroup"

	"github.com/soukworks/souk/bids"
	"github.com/soukworks/souk/decision"
	"github.com/soukworks/souk/fault"
	"github.com/soukworks/souk/idempotency"
	"github.com/soukworks/souk/ledger"
	"github.com/soukworks/souk/notify"
	"github.com/soukworks/souk/orders"
	"github.com/soukworks/souk/store"
)

// drainGrace is how long an in-flight sweep keeps running after a
// shutdown signal before it is cancelled outright.
const drainGrace = 20 * time.Second

// reconcileParallelism bounds concurrent chain verifications.
const reconcileParallelism = 4

// Config carries the sweep cadences. Zero fields take defaults.
type Config struct {
	BiddingTick        time.Duration // Bid-window expiry sweep.
	ConfirmationTick   time.Duration // Winner-confirmation timeout sweep.
	PendingTick        time.Duration // Stale CREATED/PENDING_BIDS sweep.
	IdempotencyGCTick  time.Duration // Idempotency record GC.
	ReconcileTick      time.Duration // Ledger chain reconciliation.
	ConfirmationWindow time.Duration // How long a winner may take to confirm.
	PendingCutoff      time.Duration // Age at which an unawarded order fails.
	BatchLimit         int           // Orders per sweep run.
}

func (c Config) withDefaults() Config {
	if c.BiddingTick == 0 {
		c.BiddingTick = 2 * time.Minute
	}
	if c.ConfirmationTick == 0 {
		c.ConfirmationTick = 2 * time.Minute
	}
	if c.PendingTick == 0 {
		c.PendingTick = 6 * time.Hour
	}
	if c.IdempotencyGCTick == 0 {
		c.IdempotencyGCTick = time.Hour
	}
	if c.ReconcileTick == 0 {
		c.ReconcileTick = 24 * time.Hour
	}
	if c.ConfirmationWindow == 0 {
		c.ConfirmationWindow = 15 * time.Minute
	}
	if c.PendingCutoff == 0 {
		c.PendingCutoff = 24 * time.Hour
	}
	if c.BatchLimit == 0 {
		c.BatchLimit = 100
	}
	return c
}

// Narrow views of collaborators, described as interfaces for easy mocking.

type awarder interface {
	Award(ctx context.Context, orderID uuid.UUID, exclude []uuid.UUID) (decision.Result, error)
	Reaward(ctx context.Context, orderID uuid.UUID, reason string) (decision.Result, error)
}

type orderStore interface {
	DueBidExpiry(ctx context.Context, q store.Querier, now time.Time, limit int) ([]uuid.UUID, error)
	DueConfirmationTimeout(ctx context.Context, q store.Querier, cutoff time.Time, limit int) ([]uuid.UUID, error)
	DuePendingExpiry(ctx context.Context, q store.Querier, cutoff time.Time, limit int) ([]uuid.UUID, error)
	GetForUpdate(ctx context.Context, q store.Querier, id uuid.UUID) (orders.Order, error)
	Transition(ctx context.Context, q store.Querier, id uuid.UUID, to orders.State, actor, reason string) (orders.Order, error)
}

type offerStore interface {
	RejectOpenOffers(ctx context.Context, q store.Querier, orderID, except uuid.UUID) (int, error)
}

type chainVerifier interface {
	Pairs(ctx context.Context, q store.Querier) ([]ledger.Pair, error)
	VerifyPair(ctx context.Context, q store.Querier, retailer, wholesaler uuid.UUID) (ledger.VerifyReport, error)
}

type recordGC interface {
	SweepExpired(ctx context.Context) (int, error)
}

type locker interface {
	TryAdvisoryLock(ctx context.Context, name string) (func(), bool, error)
}

// Sweeper owns the periodic sweep tasks. Each task holds a cluster-wide
// advisory lock while it runs so exactly one replica sweeps at a time.
type Sweeper struct {
	cfg     Config
	locks   locker
	pool    store.Querier
	runner  store.Transactor
	engine  awarder
	orders  orderStore
	offers  offerStore
	chains  chainVerifier
	idem    recordGC
	emitter notify.Emitter
}

// NewSweeper builds a Sweeper over the production stores.
func NewSweeper(cfg Config, db *store.DB, runner store.Transactor,
	engine *decision.Engine, idem *idempotency.Store, em notify.Emitter) *Sweeper {

	return &Sweeper{
		cfg:     cfg.withDefaults(),
		locks:   db,
		pool:    db.Pool,
		runner:  runner,
		engine:  engine,
		orders:  orders.Store{},
		offers:  bids.Store{},
		chains:  ledger.Ledger{},
		idem:    idem,
		emitter: em,
	}
}

// QueueTasks registers every sweep loop with |tasks|.
func (s *Sweeper) QueueTasks(tasks *task.Group) {
	s.queueEvery(tasks, "bidding", s.cfg.BiddingTick, s.sweepBidExpiry)
	s.queueEvery(tasks, "confirmation", s.cfg.ConfirmationTick, s.sweepConfirmationTimeouts)
	s.queueEvery(tasks, "pending", s.cfg.PendingTick, s.sweepPendingExpiry)
	s.queueEvery(tasks, "idempotency", s.cfg.IdempotencyGCTick, s.sweepIdempotency)
	s.queueEvery(tasks, "reconcile", s.cfg.ReconcileTick, s.reconcile)
}

func (s *Sweeper) queueEvery(tasks *task.Group, name string, tick time.Duration, fn func(context.Context) error) {
	tasks.Queue("workers."+name, func() error {
		var ctx = tasks.Context()
		var ticker = time.NewTicker(tick)
		defer ticker.Stop()

		log.WithFields(log.Fields{"task": name, "tick": tick}).Info("sweep task started")
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			if err := s.run(ctx, name, fn); err != nil && ctx.Err() == nil {
				sweepErrors.WithLabelValues(name).Inc()
				log.WithFields(log.Fields{"task": name, "err": err}).Error("sweep failed")
			}
		}
	})
}

// run executes one sweep under the task's advisory lock. The sweep's
// context outlives a shutdown signal by drainGrace so in-flight work
// can finish cleanly before the loop exits.
func (s *Sweeper) run(ctx context.Context, name string, fn func(context.Context) error) error {
	var runCtx, cancel = context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-runCtx.Done():
		case <-ctx.Done():
			var t = time.NewTimer(drainGrace)
			defer t.Stop()
			select {
			case <-t.C:
				cancel()
			case <-runCtx.Done():
			}
		}
	}()

	release, ok, err := s.locks.TryAdvisoryLock(runCtx, "sweep."+name)
	if err != nil {
		return err
	} else if !ok {
		return nil
	}
	defer release()

	sweepRuns.WithLabelValues(name).Inc()
	return fn(runCtx)
}

// decisionSettled reports whether an award attempt reached a decision,
// even an adverse one. A concurrently settled or winner-less order is a
// completed sweep item, not a sweep failure.
func decisionSettled(err error) bool {
	return err == nil ||
		fault.IsStatus(err, fault.NoEligibleWinner) ||
		fault.IsStatus(err, fault.DecisionConflict)
}

func (s *Sweeper) sweepBidExpiry(ctx context.Context) error {
	var ids []uuid.UUID
	var err = s.runner.Transact(ctx, "sweep-bidding", "orders", func(q store.Querier) error {
		var err error
		ids, err = s.orders.DueBidExpiry(ctx, q, time.Now().UTC(), s.cfg.BatchLimit)
		return err
	})
	if err != nil {
		return err
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return nil
		}
		if _, err = s.engine.Award(ctx, id, nil); !decisionSettled(err) {
			sweepErrors.WithLabelValues("bidding").Inc()
			log.WithFields(log.Fields{"order": id, "err": err}).Warn("awarding expired bidding window failed")
			continue
		}
		sweptOrders.WithLabelValues("bidding").Inc()
	}
	return nil
}

func (s *Sweeper) sweepConfirmationTimeouts(ctx context.Context) error {
	var cutoff = time.Now().UTC().Add(-s.cfg.ConfirmationWindow)

	var ids []uuid.UUID
	var err = s.runner.Transact(ctx, "sweep-confirmation", "orders", func(q store.Querier) error {
		var err error
		ids, err = s.orders.DueConfirmationTimeout(ctx, q, cutoff, s.cfg.BatchLimit)
		return err
	})
	if err != nil {
		return err
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return nil
		}
		if _, err = s.engine.Reaward(ctx, id, "confirmation timeout"); !decisionSettled(err) {
			sweepErrors.WithLabelValues("confirmation").Inc()
			log.WithFields(log.Fields{"order": id, "err": err}).Warn("re-awarding unconfirmed order failed")
			continue
		}
		sweptOrders.WithLabelValues("confirmation").Inc()
	}
	return nil
}

func (s *Sweeper) sweepPendingExpiry(ctx context.Context) error {
	var cutoff = time.Now().UTC().Add(-s.cfg.PendingCutoff)

	var ids []uuid.UUID
	var err = s.runner.Transact(ctx, "sweep-pending", "orders", func(q store.Querier) error {
		var err error
		ids, err = s.orders.DuePendingExpiry(ctx, q, cutoff, s.cfg.BatchLimit)
		return err
	})
	if err != nil {
		return err
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return nil
		}
		var expired bool
		err = s.runner.Transact(ctx, "expire-order", "orders", func(q store.Querier) error {
			expired = false

			o, err := s.orders.GetForUpdate(ctx, q, id)
			if err != nil {
				return err
			}
			// The order may have advanced between listing and locking.
			if o.State != orders.Created && o.State != orders.PendingBids {
				return nil
			}
			if _, err = s.offers.RejectOpenOffers(ctx, q, id, uuid.Nil); err != nil {
				return err
			}
			if _, err = s.orders.Transition(ctx, q, id, orders.Failed, orders.ActorSystem, "expired without award"); err != nil {
				return err
			}
			expired = true
			return nil
		})
		if err != nil {
			sweepErrors.WithLabelValues("pending").Inc()
			log.WithFields(log.Fields{"order": id, "err": err}).Warn("expiring stale order failed")
			continue
		}
		if expired {
			sweptOrders.WithLabelValues("pending").Inc()
			log.WithFields(log.Fields{"order": id, "cutoff": cutoff}).Info("order expired without award")
			s.emitter.Emit(ctx, id, string(orders.Failed))
		}
	}
	return nil
}

func (s *Sweeper) sweepIdempotency(ctx context.Context) error {
	var n, err = s.idem.SweepExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.WithField("records", n).Info("swept expired idempotency records")
	}
	return nil
}

func (s *Sweeper) reconcile(ctx context.Context) error {
	var pairs []ledger.Pair
	var err = s.runner.Transact(ctx, "reconcile-pairs", "ledger", func(q store.Querier) error {
		var err error
		pairs, err = s.chains.Pairs(ctx, q)
		return err
	})
	if err != nil {
		return err
	}

	var mismatches atomic.Int64
	var grp, grpCtx = errgroup.WithContext(ctx)
	grp.SetLimit(reconcileParallelism)

	for _, p := range pairs {
		grp.Go(func() error {
			if _, err := s.chains.VerifyPair(grpCtx, s.pool, p.RetailerID, p.WholesalerID); err != nil {
				mismatches.Add(1)
				reconcileMismatches.Inc()
				log.WithFields(log.Fields{
					"retailer":   p.RetailerID,
					"wholesaler": p.WholesalerID,
					"err":        err,
				}).Error("ledger chain failed reconciliation")
			}
			return nil
		})
	}
	if err = grp.Wait(); err != nil {
		return err
	}

	log.WithFields(log.Fields{"pairs": len(pairs), "mismatches": mismatches.Load()}).
		Info("ledger reconciliation complete")
	return nil
}
