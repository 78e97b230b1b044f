package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/soukworks/souk/decision"
	"github.com/soukworks/souk/fault"
	"github.com/soukworks/souk/ledger"
	"github.com/soukworks/souk/orders"
	"github.com/soukworks/souk/store"
)

type fakeTx struct{}

func (fakeTx) Transact(_ context.Context, _, _ string, fn func(store.Querier) error) error {
	return fn(nil)
}

type fakeLock struct {
	held  bool
	names []string
}

func (f *fakeLock) TryAdvisoryLock(_ context.Context, name string) (func(), bool, error) {
	f.names = append(f.names, name)
	if f.held {
		return nil, false, nil
	}
	return func() {}, true, nil
}

type fakeEngine struct {
	err      error
	awards   []uuid.UUID
	excludes [][]uuid.UUID
	reawards []uuid.UUID
	reasons  []string
}

func (f *fakeEngine) Award(_ context.Context, id uuid.UUID, exclude []uuid.UUID) (decision.Result, error) {
	f.awards = append(f.awards, id)
	f.excludes = append(f.excludes, exclude)
	return decision.Result{OrderID: id}, f.err
}

func (f *fakeEngine) Reaward(_ context.Context, id uuid.UUID, reason string) (decision.Result, error) {
	f.reawards = append(f.reawards, id)
	f.reasons = append(f.reasons, reason)
	return decision.Result{OrderID: id}, f.err
}

type fakeOrderStore struct {
	due       []uuid.UUID
	sawCutoff time.Time
	rows      map[uuid.UUID]*orders.Order
	audit     []string
}

func (f *fakeOrderStore) DueBidExpiry(_ context.Context, _ store.Querier, now time.Time, _ int) ([]uuid.UUID, error) {
	f.sawCutoff = now
	return f.due, nil
}

func (f *fakeOrderStore) DueConfirmationTimeout(_ context.Context, _ store.Querier, cutoff time.Time, _ int) ([]uuid.UUID, error) {
	f.sawCutoff = cutoff
	return f.due, nil
}

func (f *fakeOrderStore) DuePendingExpiry(_ context.Context, _ store.Querier, cutoff time.Time, _ int) ([]uuid.UUID, error) {
	f.sawCutoff = cutoff
	return f.due, nil
}

func (f *fakeOrderStore) GetForUpdate(_ context.Context, _ store.Querier, id uuid.UUID) (orders.Order, error) {
	if o, ok := f.rows[id]; ok {
		return *o, nil
	}
	return orders.Order{}, fault.New(fault.InvalidInput, "order %s not found", id)
}

func (f *fakeOrderStore) Transition(_ context.Context, _ store.Querier, id uuid.UUID, to orders.State, _, reason string) (orders.Order, error) {
	var o = f.rows[id]
	if err := orders.ValidateTransition(o.State, to); err != nil {
		return orders.Order{}, err
	}
	f.audit = append(f.audit, fmt.Sprintf("%s:%s>%s", id, o.State, to))
	o.State = to
	if to == orders.Failed {
		o.FailureReason = reason
	}
	return *o, nil
}

type fakeOfferStore struct{ rejected []uuid.UUID }

func (f *fakeOfferStore) RejectOpenOffers(_ context.Context, _ store.Querier, orderID, _ uuid.UUID) (int, error) {
	f.rejected = append(f.rejected, orderID)
	return 1, nil
}

type fakeChains struct {
	pairs []ledger.Pair
	bad   map[ledger.Pair]bool

	mu       sync.Mutex
	verified []ledger.Pair
}

func (f *fakeChains) Pairs(context.Context, store.Querier) ([]ledger.Pair, error) {
	return f.pairs, nil
}

func (f *fakeChains) VerifyPair(_ context.Context, _ store.Querier, r, w uuid.UUID) (ledger.VerifyReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var p = ledger.Pair{RetailerID: r, WholesalerID: w}
	f.verified = append(f.verified, p)
	if f.bad[p] {
		return ledger.VerifyReport{}, errors.New("prev_hash does not match predecessor hash")
	}
	return ledger.VerifyReport{Entries: 2}, nil
}

type fakeGC struct {
	n     int
	err   error
	calls int
}

func (f *fakeGC) SweepExpired(context.Context) (int, error) {
	f.calls++
	return f.n, f.err
}

type captureEmitter struct{ events []string }

func (c *captureEmitter) Emit(_ context.Context, _ uuid.UUID, state string) {
	c.events = append(c.events, state)
}

type sweeperFixture struct {
	sweeper *Sweeper
	locks   *fakeLock
	engine  *fakeEngine
	orders  *fakeOrderStore
	offers  *fakeOfferStore
	chains  *fakeChains
	gc      *fakeGC
	emitted *captureEmitter
}

func newSweeperFixture() *sweeperFixture {
	var f = &sweeperFixture{
		locks:   &fakeLock{},
		engine:  &fakeEngine{},
		orders:  &fakeOrderStore{rows: make(map[uuid.UUID]*orders.Order)},
		offers:  &fakeOfferStore{},
		chains:  &fakeChains{},
		gc:      &fakeGC{},
		emitted: &captureEmitter{},
	}
	f.sweeper = &Sweeper{
		cfg:     Config{}.withDefaults(),
		locks:   f.locks,
		runner:  fakeTx{},
		engine:  f.engine,
		orders:  f.orders,
		offers:  f.offers,
		chains:  f.chains,
		idem:    f.gc,
		emitter: f.emitted,
	}
	return f
}

func TestBidExpiryAwardsDueOrders(t *testing.T) {
	var f = newSweeperFixture()
	var a, b = uuid.New(), uuid.New()
	f.orders.due = []uuid.UUID{a, b}

	require.NoError(t, f.sweeper.sweepBidExpiry(context.Background()))

	require.Equal(t, []uuid.UUID{a, b}, f.engine.awards)
	require.Nil(t, f.engine.excludes[0])
	require.WithinDuration(t, time.Now().UTC(), f.orders.sawCutoff, 5*time.Second)
}

func TestBidExpiryToleratesDecidedOrders(t *testing.T) {
	var f = newSweeperFixture()
	f.orders.due = []uuid.UUID{uuid.New(), uuid.New()}
	f.engine.err = fault.New(fault.NoEligibleWinner, "no eligible winner")

	require.NoError(t, f.sweeper.sweepBidExpiry(context.Background()))
	require.Len(t, f.engine.awards, 2)
}

func TestConfirmationSweepReawards(t *testing.T) {
	var f = newSweeperFixture()
	var a = uuid.New()
	f.orders.due = []uuid.UUID{a}

	require.NoError(t, f.sweeper.sweepConfirmationTimeouts(context.Background()))

	require.Equal(t, []uuid.UUID{a}, f.engine.reawards)
	require.Equal(t, []string{"confirmation timeout"}, f.engine.reasons)
	require.WithinDuration(t,
		time.Now().UTC().Add(-15*time.Minute), f.orders.sawCutoff, 5*time.Second)
}

func TestPendingExpiryFailsStaleOrders(t *testing.T) {
	var f = newSweeperFixture()
	var stale, advanced = uuid.New(), uuid.New()
	f.orders.rows[stale] = &orders.Order{ID: stale, State: orders.PendingBids}
	f.orders.rows[advanced] = &orders.Order{ID: advanced, State: orders.Confirmed}
	f.orders.due = []uuid.UUID{stale, advanced}

	require.NoError(t, f.sweeper.sweepPendingExpiry(context.Background()))

	require.Equal(t, orders.Failed, f.orders.rows[stale].State)
	require.Equal(t, "expired without award", f.orders.rows[stale].FailureReason)
	require.Equal(t, []uuid.UUID{stale}, f.offers.rejected)
	require.Equal(t, []string{string(orders.Failed)}, f.emitted.events)

	// The order which advanced past bidding between listing and locking
	// is left alone.
	require.Equal(t, orders.Confirmed, f.orders.rows[advanced].State)
	require.Len(t, f.orders.audit, 1)
}

func TestRunSkipsWhenLockIsHeld(t *testing.T) {
	var f = newSweeperFixture()
	f.locks.held = true

	var ran bool
	require.NoError(t, f.sweeper.run(context.Background(), "bidding", func(context.Context) error {
		ran = true
		return nil
	}))

	require.False(t, ran)
	require.Equal(t, []string{"sweep.bidding"}, f.locks.names)
}

func TestRunDrainsThroughShutdown(t *testing.T) {
	var f = newSweeperFixture()
	var ctx, cancel = context.WithCancel(context.Background())
	cancel()

	// A sweep already in flight when shutdown arrives keeps its context
	// for the drain grace period.
	require.NoError(t, f.sweeper.run(ctx, "bidding", func(runCtx context.Context) error {
		require.NoError(t, runCtx.Err())
		return nil
	}))
}

func TestReconcileVerifiesEveryPair(t *testing.T) {
	var f = newSweeperFixture()
	var good = ledger.Pair{RetailerID: uuid.New(), WholesalerID: uuid.New()}
	var broken = ledger.Pair{RetailerID: uuid.New(), WholesalerID: uuid.New()}
	f.chains.pairs = []ledger.Pair{good, broken}
	f.chains.bad = map[ledger.Pair]bool{broken: true}

	// A broken chain is reported, not fatal: the remaining pairs still
	// get verified.
	require.NoError(t, f.sweeper.reconcile(context.Background()))
	require.ElementsMatch(t, []ledger.Pair{good, broken}, f.chains.verified)
}

func TestIdempotencyGCSweeps(t *testing.T) {
	var f = newSweeperFixture()
	f.gc.n = 3

	require.NoError(t, f.sweeper.sweepIdempotency(context.Background()))
	require.Equal(t, 1, f.gc.calls)

	f.gc.err = errors.New("connection refused")
	require.Error(t, f.sweeper.sweepIdempotency(context.Background()))
}

func TestConfigDefaults(t *testing.T) {
	var c = Config{}.withDefaults()

	require.Equal(t, 2*time.Minute, c.BiddingTick)
	require.Equal(t, 2*time.Minute, c.ConfirmationTick)
	require.Equal(t, 6*time.Hour, c.PendingTick)
	require.Equal(t, time.Hour, c.IdempotencyGCTick)
	require.Equal(t, 24*time.Hour, c.ReconcileTick)
	require.Equal(t, 15*time.Minute, c.ConfirmationWindow)
	require.Equal(t, 24*time.Hour, c.PendingCutoff)
	require.Equal(t, 100, c.BatchLimit)

	c = Config{BiddingTick: time.Second, BatchLimit: 5}.withDefaults()
	require.Equal(t, time.Second, c.BiddingTick)
	require.Equal(t, 5, c.BatchLimit)
}
