package decision

import (
	"context"
	"maps"
	"slices"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/soukworks/souk/bids"
	"github.com/soukworks/souk/fault"
	"github.com/soukworks/souk/ledger"
	"github.com/soukworks/souk/money"
	"github.com/soukworks/souk/orders"
	"github.com/soukworks/souk/stock"
	"github.com/soukworks/souk/store"
)

type stockKey struct{ wholesaler, product uuid.UUID }
type pairKey struct{ retailer, wholesaler uuid.UUID }

type stockRow struct {
	stock, reserved int
	available       bool
}

type hold struct {
	order, wholesaler, product uuid.UUID
	qty                        int
	status                     string
}

// world is an in-memory stand-in for the database. The fake transactor
// snapshots it before running a transaction body and restores the
// snapshot when the body errors, mirroring a rollback.
type world struct {
	order    orders.Order
	items    []orders.Item
	offers   map[uuid.UUID]bids.Offer
	declined map[uuid.UUID]bool
	active   map[uuid.UUID]bool
	meta     map[uuid.UUID][2]float64 // reliability, rating
	stock    map[stockKey]stockRow
	holds    []hold
	chains   map[pairKey][]ledger.Entry
	terms    map[pairKey]ledger.Terms
	audit    []string
	emitted  []string

	// beforeAttempt runs just before an award attempt's transaction,
	// standing in for a concurrent writer.
	beforeAttempt func(*world)
}

func (w *world) snapshot() world {
	var s = *w
	s.items = slices.Clone(w.items)
	s.offers = maps.Clone(w.offers)
	s.declined = maps.Clone(w.declined)
	s.active = maps.Clone(w.active)
	s.meta = maps.Clone(w.meta)
	s.stock = maps.Clone(w.stock)
	s.holds = slices.Clone(w.holds)
	s.chains = make(map[pairKey][]ledger.Entry, len(w.chains))
	for k, v := range w.chains {
		s.chains[k] = slices.Clone(v)
	}
	s.terms = maps.Clone(w.terms)
	s.audit = slices.Clone(w.audit)
	s.emitted = slices.Clone(w.emitted)
	return s
}

type fakeTx struct{ w *world }

func (t fakeTx) Transact(_ context.Context, op, _ string, fn func(store.Querier) error) error {
	if op == "award-order" && t.w.beforeAttempt != nil {
		t.w.beforeAttempt(t.w)
	}
	var snap = t.w.snapshot()
	if err := fn(nil); err != nil {
		*t.w = snap
		return err
	}
	return nil
}

type fakeOrders struct{ w *world }

func (f fakeOrders) Get(_ context.Context, _ store.Querier, id uuid.UUID) (orders.Order, error) {
	if f.w.order.ID != id {
		return orders.Order{}, fault.New(fault.InvalidInput, "order %s not found", id)
	}
	return f.w.order, nil
}

func (f fakeOrders) GetForUpdate(ctx context.Context, q store.Querier, id uuid.UUID) (orders.Order, error) {
	return f.Get(ctx, q, id)
}

func (f fakeOrders) Transition(ctx context.Context, q store.Querier, id uuid.UUID, to orders.State, actor, reason string) (orders.Order, error) {
	var o, err = f.Get(ctx, q, id)
	if err != nil {
		return orders.Order{}, err
	}
	if err = orders.ValidateTransition(o.State, to); err != nil {
		return orders.Order{}, err
	}
	f.w.order.State = to
	if to == orders.Failed {
		f.w.order.FailureReason = reason
	}
	f.w.audit = append(f.w.audit, string(o.State)+">"+string(to))
	return f.w.order, nil
}

func (f fakeOrders) SetFinalWholesaler(_ context.Context, _ store.Querier, _ uuid.UUID, wholesaler *uuid.UUID) error {
	f.w.order.FinalWholesaler = wholesaler
	return nil
}

func (f fakeOrders) Items(_ context.Context, _ store.Querier, _ uuid.UUID) ([]orders.Item, error) {
	return slices.Clone(f.w.items), nil
}

type fakeOffers struct{ w *world }

func (f fakeOffers) sorted() []bids.Offer {
	var out = make([]bids.Offer, 0, len(f.w.offers))
	for _, o := range f.w.offers {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (f fakeOffers) Candidates(_ context.Context, _ store.Querier, orderID uuid.UUID) ([]bids.Candidate, error) {
	var out []bids.Candidate
	for _, o := range f.sorted() {
		if o.OrderID != orderID || o.Status != bids.Pending {
			continue
		}
		var m, ok = f.w.meta[o.WholesalerID]
		if !ok {
			m = [2]float64{bids.DefaultReliability, bids.DefaultRating}
		}
		out = append(out, bids.Candidate{
			Offer:            o,
			WholesalerActive: f.w.active[o.WholesalerID],
			Reliability:      m[0],
			Rating:           m[1],
		})
	}
	return out, nil
}

func (f fakeOffers) AcceptedFor(_ context.Context, _ store.Querier, orderID uuid.UUID) (*bids.Offer, error) {
	for _, o := range f.w.offers {
		if o.OrderID == orderID && o.Status == bids.Accepted {
			return &o, nil
		}
	}
	return nil, nil
}

func (f fakeOffers) SetStatus(_ context.Context, _ store.Querier, offerID uuid.UUID, from, to bids.Status) error {
	var o, ok = f.w.offers[offerID]
	if !ok || o.Status != from {
		return fault.New(fault.DecisionConflict, "offer %s is no longer %s", offerID, from)
	}
	o.Status = to
	f.w.offers[offerID] = o
	return nil
}

func (f fakeOffers) RejectOpenOffers(_ context.Context, _ store.Querier, orderID, except uuid.UUID) (int, error) {
	var n int
	for id, o := range f.w.offers {
		if o.OrderID == orderID && o.Status == bids.Pending && id != except {
			o.Status = bids.Rejected
			f.w.offers[id] = o
			n++
		}
	}
	return n, nil
}

func (f fakeOffers) ReviveRejected(_ context.Context, _ store.Querier, orderID uuid.UUID) (int, error) {
	var n int
	for id, o := range f.w.offers {
		if o.OrderID == orderID && o.Status == bids.Rejected && !f.w.declined[id] {
			o.Status = bids.Pending
			f.w.offers[id] = o
			n++
		}
	}
	return n, nil
}

func (f fakeOffers) WholesalerActive(_ context.Context, _ store.Querier, wholesalerID uuid.UUID) (bool, error) {
	return f.w.active[wholesalerID], nil
}

type fakeStock struct{ w *world }

func (f fakeStock) Reserve(_ context.Context, _ store.Querier, orderID, wholesaler uuid.UUID, lines []stock.Line) error {
	for _, ln := range lines {
		var key = stockKey{wholesaler, ln.ProductID}
		var row, ok = f.w.stock[key]
		if !ok || !row.available || row.stock-row.reserved < ln.Quantity {
			var avail int
			if ok && row.available {
				avail = row.stock - row.reserved
			}
			return fault.New(fault.InsufficientStock,
				"wholesaler %s has %d of product %s, need %d",
				wholesaler, avail, ln.ProductID, ln.Quantity)
		}
		row.reserved += ln.Quantity
		f.w.stock[key] = row
		f.w.holds = append(f.w.holds, hold{orderID, wholesaler, ln.ProductID, ln.Quantity, "ACTIVE"})
	}
	return nil
}

func (f fakeStock) Release(_ context.Context, _ store.Querier, orderID uuid.UUID) (int, error) {
	var n int
	for i, h := range f.w.holds {
		if h.order == orderID && h.status == "ACTIVE" {
			var key = stockKey{h.wholesaler, h.product}
			var row = f.w.stock[key]
			row.reserved -= h.qty
			f.w.stock[key] = row
			f.w.holds[i].status = "RELEASED"
			n++
		}
	}
	return n, nil
}

type fakeLedger struct{ w *world }

func (f fakeLedger) AppendEntry(_ context.Context, _ store.Querier, req ledger.Append) (ledger.Entry, error) {
	var key = pairKey{req.RetailerID, req.WholesalerID}
	var terms = f.w.terms[key]
	var chain = f.w.chains[key]

	var balance = money.Zero()
	if n := len(chain); n > 0 {
		balance = chain[n-1].BalanceAfter
	}
	var delta = req.Amount
	if req.Type == ledger.Credit {
		delta = req.Amount.Neg()
	}
	balance = balance.Add(delta)

	if delta.IsPositive() {
		if terms.Paused {
			return ledger.Entry{}, fault.New(fault.CreditPaused,
				"credit for retailer %s with wholesaler %s is paused", req.RetailerID, req.WholesalerID)
		}
		if balance.GreaterThan(terms.Limit) {
			return ledger.Entry{}, fault.New(fault.CreditLimitExceeded,
				"balance %s exceeds limit %s", money.String(balance), money.String(terms.Limit))
		}
	}

	var entry = ledger.Entry{
		ID:           uuid.New(),
		RetailerID:   req.RetailerID,
		WholesalerID: req.WholesalerID,
		Seq:          int64(len(chain) + 1),
		Type:         req.Type,
		Amount:       req.Amount.Abs(),
		BalanceAfter: balance,
		OrderID:      req.OrderID,
		CreatedBy:    ledger.CreatorSystem,
		CreatedAt:    time.Now().UTC(),
	}
	f.w.chains[key] = append(chain, entry)
	return entry, nil
}

type fakeEmit struct{ w *world }

func (f fakeEmit) Emit(_ context.Context, _ uuid.UUID, newState string) {
	f.w.emitted = append(f.w.emitted, newState)
}

// fixture builds the two-wholesaler world used throughout: retailer R1
// orders ten units of P1 at 95 (total 950); W1 quotes 95 with a fast ETA
// and strong metadata, W2 quotes 90 with a slow ETA.
type fixture struct {
	w                *world
	o1, r1, w1, w2   uuid.UUID
	p1               uuid.UUID
	offerW1, offerW2 uuid.UUID
}

func newFixture() *fixture {
	var f = &fixture{
		o1: uuid.New(), r1: uuid.New(), w1: uuid.New(), w2: uuid.New(),
		p1: uuid.New(), offerW1: uuid.New(), offerW2: uuid.New(),
	}
	var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	f.w = &world{
		order: orders.Order{
			ID:         f.o1,
			RetailerID: f.r1,
			State:      orders.PendingBids,
			Total:      money.FromInt(950),
		},
		items: []orders.Item{
			{ID: uuid.New(), OrderID: f.o1, ProductID: f.p1, Quantity: 10, UnitPrice: money.FromInt(95)},
		},
		offers: map[uuid.UUID]bids.Offer{
			f.offerW1: {
				ID: f.offerW1, OrderID: f.o1, WholesalerID: f.w1,
				PriceQuote: money.FromInt(95), StockConfirmed: true, ETA: "2H",
				Status: bids.Pending, CreatedAt: t0,
			},
			f.offerW2: {
				ID: f.offerW2, OrderID: f.o1, WholesalerID: f.w2,
				PriceQuote: money.FromInt(90), StockConfirmed: true, ETA: "1D",
				Status: bids.Pending, CreatedAt: t0.Add(time.Second),
			},
		},
		declined: map[uuid.UUID]bool{},
		active:   map[uuid.UUID]bool{f.w1: true, f.w2: true},
		meta: map[uuid.UUID][2]float64{
			f.w1: {80, 4},
			f.w2: {50, 3},
		},
		stock: map[stockKey]stockRow{
			{f.w1, f.p1}: {stock: 100, available: true},
			{f.w2, f.p1}: {stock: 100, available: true},
		},
		chains: map[pairKey][]ledger.Entry{},
		terms: map[pairKey]ledger.Terms{
			{f.r1, f.w1}: {Limit: money.FromInt(10000)},
			{f.r1, f.w2}: {Limit: money.FromInt(10000)},
		},
	}
	return f
}

func newTestEngine(w *world) *Engine {
	return &Engine{
		Runner:  fakeTx{w},
		Orders:  fakeOrders{w},
		Offers:  fakeOffers{w},
		Stock:   fakeStock{w},
		Ledger:  fakeLedger{w},
		Emitter: fakeEmit{w},
	}
}

func TestAwardPicksBestOffer(t *testing.T) {
	var f = newFixture()
	var eng = newTestEngine(f.w)

	var res, err = eng.Award(context.Background(), f.o1, nil)
	require.NoError(t, err)
	require.Equal(t, f.w1, res.Winner)
	require.Equal(t, f.offerW1, res.OfferID)
	// 1000 + (500 - 95/200) + (300 - 4*2) + 80*1.5 + 4*10.
	require.InDelta(t, 1951.525, res.Score, 1e-9)
	require.Equal(t, 1, res.Rejected)

	require.Equal(t, orders.WholesalerAccepted, f.w.order.State)
	require.NotNil(t, f.w.order.FinalWholesaler)
	require.Equal(t, f.w1, *f.w.order.FinalWholesaler)

	var chain = f.w.chains[pairKey{f.r1, f.w1}]
	require.Len(t, chain, 1)
	require.Equal(t, ledger.Debit, chain[0].Type)
	require.Equal(t, "950.00", money.String(chain[0].Amount))
	require.Empty(t, f.w.chains[pairKey{f.r1, f.w2}])

	require.Equal(t, 10, f.w.stock[stockKey{f.w1, f.p1}].reserved)
	require.Equal(t, 0, f.w.stock[stockKey{f.w2, f.p1}].reserved)
	require.Equal(t, bids.Accepted, f.w.offers[f.offerW1].Status)
	require.Equal(t, bids.Rejected, f.w.offers[f.offerW2].Status)

	require.Equal(t, []string{"PENDING_BIDS>WHOLESALER_ACCEPTED"}, f.w.audit)
	require.Equal(t, []string{string(orders.WholesalerAccepted)}, f.w.emitted)
}

func TestAwardFailsOverOnInsufficientStock(t *testing.T) {
	var f = newFixture()
	f.w.stock[stockKey{f.w1, f.p1}] = stockRow{stock: 5, available: true}
	var eng = newTestEngine(f.w)

	var res, err = eng.Award(context.Background(), f.o1, nil)
	require.NoError(t, err)
	require.Equal(t, f.w2, res.Winner)

	// W1's failed attempt rolled back entirely.
	require.Equal(t, 0, f.w.stock[stockKey{f.w1, f.p1}].reserved)
	require.Empty(t, f.w.chains[pairKey{f.r1, f.w1}])

	require.Equal(t, 10, f.w.stock[stockKey{f.w2, f.p1}].reserved)
	var chain = f.w.chains[pairKey{f.r1, f.w2}]
	require.Len(t, chain, 1)
	require.Equal(t, "950.00", money.String(chain[0].Amount))

	require.Equal(t, bids.Rejected, f.w.offers[f.offerW1].Status)
	require.Equal(t, bids.Accepted, f.w.offers[f.offerW2].Status)
}

func TestAwardExhaustsCandidatesOnCreditLimit(t *testing.T) {
	var f = newFixture()
	f.w.terms[pairKey{f.r1, f.w1}] = ledger.Terms{Limit: money.FromInt(500)}
	f.w.terms[pairKey{f.r1, f.w2}] = ledger.Terms{Limit: money.FromInt(500)}
	var eng = newTestEngine(f.w)

	var _, err = eng.Award(context.Background(), f.o1, nil)
	require.True(t, fault.IsStatus(err, fault.NoEligibleWinner), "got %v", err)

	require.Equal(t, orders.Failed, f.w.order.State)
	require.Equal(t, "no eligible winner", f.w.order.FailureReason)
	require.Nil(t, f.w.order.FinalWholesaler)

	// No residue from the rolled-back attempts.
	require.Empty(t, f.w.holds)
	require.Equal(t, 0, f.w.stock[stockKey{f.w1, f.p1}].reserved)
	require.Equal(t, 0, f.w.stock[stockKey{f.w2, f.p1}].reserved)
	require.Empty(t, f.w.chains[pairKey{f.r1, f.w1}])
	require.Empty(t, f.w.chains[pairKey{f.r1, f.w2}])

	require.Equal(t, bids.Rejected, f.w.offers[f.offerW1].Status)
	require.Equal(t, bids.Rejected, f.w.offers[f.offerW2].Status)
	require.Equal(t, []string{string(orders.Failed)}, f.w.emitted)
}

func TestAwardSkipsPausedCredit(t *testing.T) {
	var f = newFixture()
	f.w.terms[pairKey{f.r1, f.w1}] = ledger.Terms{Limit: money.FromInt(10000), Paused: true}
	var eng = newTestEngine(f.w)

	var res, err = eng.Award(context.Background(), f.o1, nil)
	require.NoError(t, err)
	require.Equal(t, f.w2, res.Winner)
	require.Empty(t, f.w.chains[pairKey{f.r1, f.w1}])
}

func TestAwardFiltersInactiveWholesaler(t *testing.T) {
	var f = newFixture()
	f.w.active[f.w1] = false
	var eng = newTestEngine(f.w)

	var res, err = eng.Award(context.Background(), f.o1, nil)
	require.NoError(t, err)
	require.Equal(t, f.w2, res.Winner)
}

func TestAwardRechecksWholesalerInsideTransaction(t *testing.T) {
	var f = newFixture()
	// W1 deactivates after candidates are loaded but before its attempt.
	f.w.beforeAttempt = func(w *world) {
		w.beforeAttempt = nil
		w.active[f.w1] = false
	}
	var eng = newTestEngine(f.w)

	var res, err = eng.Award(context.Background(), f.o1, nil)
	require.NoError(t, err)
	require.Equal(t, f.w2, res.Winner)
	require.Empty(t, f.w.chains[pairKey{f.r1, f.w1}])
}

func TestAwardSkipsOfferSettledConcurrently(t *testing.T) {
	var f = newFixture()
	f.w.beforeAttempt = func(w *world) {
		w.beforeAttempt = nil
		var o = w.offers[f.offerW1]
		o.Status = bids.Rejected
		w.offers[f.offerW1] = o
		w.declined[f.offerW1] = true
	}
	var eng = newTestEngine(f.w)

	var res, err = eng.Award(context.Background(), f.o1, nil)
	require.NoError(t, err)
	require.Equal(t, f.w2, res.Winner)
	require.Equal(t, 0, f.w.stock[stockKey{f.w1, f.p1}].reserved)
	require.Empty(t, f.w.chains[pairKey{f.r1, f.w1}])
	require.Equal(t, bids.Rejected, f.w.offers[f.offerW1].Status)
}

func TestAwardConflictsWithConcurrentAward(t *testing.T) {
	var f = newFixture()
	f.w.beforeAttempt = func(w *world) {
		w.beforeAttempt = nil
		w.order.State = orders.WholesalerAccepted
		w.order.FinalWholesaler = &f.w2
	}
	var eng = newTestEngine(f.w)

	var _, err = eng.Award(context.Background(), f.o1, nil)
	require.True(t, fault.IsStatus(err, fault.DecisionConflict), "got %v", err)
	require.Empty(t, f.w.chains[pairKey{f.r1, f.w1}])
	require.Empty(t, f.w.holds)
}

func TestAwardFailsWithNoOpenOffers(t *testing.T) {
	var f = newFixture()
	f.w.offers = map[uuid.UUID]bids.Offer{}
	var eng = newTestEngine(f.w)

	var _, err = eng.Award(context.Background(), f.o1, nil)
	require.True(t, fault.IsStatus(err, fault.NoEligibleWinner), "got %v", err)
	require.Equal(t, orders.Failed, f.w.order.State)
	require.Equal(t, []string{string(orders.Failed)}, f.w.emitted)
}

func TestReawardPicksNextOffer(t *testing.T) {
	var f = newFixture()
	var eng = newTestEngine(f.w)

	var res, err = eng.Award(context.Background(), f.o1, nil)
	require.NoError(t, err)
	require.Equal(t, f.w1, res.Winner)
	f.w.emitted = nil

	res, err = eng.Reaward(context.Background(), f.o1, "confirmation timeout")
	require.NoError(t, err)
	require.Equal(t, f.w2, res.Winner)

	// The (R1, W1) chain nets to zero: the award DEBIT plus its
	// reversing CREDIT.
	var w1Chain = f.w.chains[pairKey{f.r1, f.w1}]
	require.Len(t, w1Chain, 2)
	require.Equal(t, ledger.Debit, w1Chain[0].Type)
	require.Equal(t, ledger.Credit, w1Chain[1].Type)
	require.Equal(t, "950.00", money.String(w1Chain[1].Amount))
	require.True(t, w1Chain[1].BalanceAfter.IsZero())

	var w2Chain = f.w.chains[pairKey{f.r1, f.w2}]
	require.Len(t, w2Chain, 1)
	require.Equal(t, ledger.Debit, w2Chain[0].Type)
	require.Equal(t, "950.00", money.String(w2Chain[0].Amount))

	require.Equal(t, 0, f.w.stock[stockKey{f.w1, f.p1}].reserved)
	require.Equal(t, 10, f.w.stock[stockKey{f.w2, f.p1}].reserved)

	require.Equal(t, bids.Expired, f.w.offers[f.offerW1].Status)
	require.Equal(t, bids.Accepted, f.w.offers[f.offerW2].Status)

	require.Equal(t, orders.WholesalerAccepted, f.w.order.State)
	require.Equal(t, f.w2, *f.w.order.FinalWholesaler)
	require.Equal(t, "confirmation timeout", f.w.order.FailureReason)

	require.Equal(t, []string{
		"PENDING_BIDS>WHOLESALER_ACCEPTED",
		"WHOLESALER_ACCEPTED>FAILED",
		"FAILED>PENDING_BIDS",
		"PENDING_BIDS>WHOLESALER_ACCEPTED",
	}, f.w.audit)
	require.Equal(t, []string{
		string(orders.PendingBids),
		string(orders.WholesalerAccepted),
	}, f.w.emitted)
}

func TestReawardRequiresAwaitingConfirmation(t *testing.T) {
	var f = newFixture()
	f.w.order.State = orders.Confirmed
	var eng = newTestEngine(f.w)

	var _, err = eng.Reaward(context.Background(), f.o1, "confirmation timeout")
	require.True(t, fault.IsStatus(err, fault.DecisionConflict), "got %v", err)
	require.Equal(t, orders.Confirmed, f.w.order.State)
}

func TestForceAwardRevivesFailedOrder(t *testing.T) {
	var f = newFixture()
	f.w.terms[pairKey{f.r1, f.w1}] = ledger.Terms{Limit: money.FromInt(500)}
	f.w.terms[pairKey{f.r1, f.w2}] = ledger.Terms{Limit: money.FromInt(500)}
	var eng = newTestEngine(f.w)

	var _, err = eng.Award(context.Background(), f.o1, nil)
	require.True(t, fault.IsStatus(err, fault.NoEligibleWinner))
	require.Equal(t, orders.Failed, f.w.order.State)

	f.w.terms[pairKey{f.r1, f.w2}] = ledger.Terms{Limit: money.FromInt(10000)}

	var res, err2 = eng.ForceAward(context.Background(), f.o1, f.w2)
	require.NoError(t, err2)
	require.Equal(t, f.w2, res.Winner)

	require.Equal(t, orders.WholesalerAccepted, f.w.order.State)
	require.Equal(t, f.w2, *f.w.order.FinalWholesaler)
	require.Equal(t, bids.Accepted, f.w.offers[f.offerW2].Status)
	require.Equal(t, bids.Rejected, f.w.offers[f.offerW1].Status)

	var chain = f.w.chains[pairKey{f.r1, f.w2}]
	require.Len(t, chain, 1)
	require.Equal(t, "950.00", money.String(chain[0].Amount))
}

func TestForceAwardRequiresOpenOffer(t *testing.T) {
	var f = newFixture()
	var eng = newTestEngine(f.w)

	var _, err = eng.ForceAward(context.Background(), f.o1, uuid.New())
	require.True(t, fault.IsStatus(err, fault.InvalidInput), "got %v", err)
	require.Equal(t, orders.PendingBids, f.w.order.State)
}

func TestAwardDeterministic(t *testing.T) {
	var f = newFixture()
	var eng = newTestEngine(f.w)
	var snap = f.w.snapshot()

	var first, err = eng.Award(context.Background(), f.o1, nil)
	require.NoError(t, err)

	*f.w = snap
	var second, err2 = eng.Award(context.Background(), f.o1, nil)
	require.NoError(t, err2)

	require.Equal(t, first.Winner, second.Winner)
	require.Equal(t, first.OfferID, second.OfferID)
	require.Equal(t, first.Score, second.Score)
}
