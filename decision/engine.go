// Package decision implements winner selection: given an order whose
// bidding window has closed, it ranks open offers and commits the award
// (credit debit, stock hold, offer acceptance, state transition) as one
// serializable transaction per candidate attempt.
package decision

import (
	"context"
	"errors"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/soukworks/souk/bids"
	"github.com/soukworks/souk/fault"
	"github.com/soukworks/souk/ledger"
	"github.com/soukworks/souk/notify"
	"github.com/soukworks/souk/orders"
	"github.com/soukworks/souk/stock"
	"github.com/soukworks/souk/store"
)

// The subsets of each collaborator the engine requires, described as
// interfaces for easy mocking.

type orderStore interface {
	Get(ctx context.Context, q store.Querier, id uuid.UUID) (orders.Order, error)
	GetForUpdate(ctx context.Context, q store.Querier, id uuid.UUID) (orders.Order, error)
	Transition(ctx context.Context, q store.Querier, id uuid.UUID, to orders.State, actor, reason string) (orders.Order, error)
	SetFinalWholesaler(ctx context.Context, q store.Querier, id uuid.UUID, wholesaler *uuid.UUID) error
	Items(ctx context.Context, q store.Querier, id uuid.UUID) ([]orders.Item, error)
}

type offerStore interface {
	Candidates(ctx context.Context, q store.Querier, orderID uuid.UUID) ([]bids.Candidate, error)
	AcceptedFor(ctx context.Context, q store.Querier, orderID uuid.UUID) (*bids.Offer, error)
	SetStatus(ctx context.Context, q store.Querier, offerID uuid.UUID, from, to bids.Status) error
	RejectOpenOffers(ctx context.Context, q store.Querier, orderID, except uuid.UUID) (int, error)
	ReviveRejected(ctx context.Context, q store.Querier, orderID uuid.UUID) (int, error)
	WholesalerActive(ctx context.Context, q store.Querier, wholesalerID uuid.UUID) (bool, error)
}

type stockLedger interface {
	Reserve(ctx context.Context, q store.Querier, orderID, wholesaler uuid.UUID, lines []stock.Line) error
	Release(ctx context.Context, q store.Querier, orderID uuid.UUID) (int, error)
}

type creditLedger interface {
	AppendEntry(ctx context.Context, q store.Querier, req ledger.Append) (ledger.Entry, error)
}

type emitter interface {
	Emit(ctx context.Context, orderID uuid.UUID, newState string)
}

// Engine awards orders. All fields are required.
type Engine struct {
	Runner  store.Transactor
	Orders  orderStore
	Offers  offerStore
	Stock   stockLedger
	Ledger  creditLedger
	Emitter emitter
}

// NewEngine wires an Engine to the production stores.
func NewEngine(runner store.Transactor, em notify.Emitter) *Engine {
	return &Engine{
		Runner:  runner,
		Orders:  orders.Store{},
		Offers:  bids.Store{},
		Stock:   stock.Ledger{},
		Ledger:  ledger.Ledger{},
		Emitter: em,
	}
}

// Result describes a committed award.
type Result struct {
	OrderID  uuid.UUID
	Winner   uuid.UUID
	OfferID  uuid.UUID
	Score    float64
	DebitID  uuid.UUID
	Rejected int
}

// errCandidateLost marks a candidate which became unusable between ranking
// and award (offer settled, wholesaler deactivated). The award loop moves
// on to the next candidate.
var errCandidateLost = errors.New("candidate is no longer available")

// Award selects and commits a winner for |orderID|, skipping wholesalers
// in |exclude|. Candidates are attempted best-score first, each in its own
// serializable transaction; a candidate failing on stock or credit rolls
// its transaction back entirely and the next candidate is tried. With no
// candidate left the order fails with NO_ELIGIBLE_WINNER.
func (e *Engine) Award(ctx context.Context, orderID uuid.UUID, exclude []uuid.UUID) (Result, error) {
	var ranked []bids.Ranked

	var err = e.Runner.Transact(ctx, "award-load", orderID.String(), func(q store.Querier) error {
		o, err := e.Orders.Get(ctx, q, orderID)
		if err != nil {
			return err
		}
		if err = verifyAwardable(o); err != nil {
			return err
		}

		candidates, err := e.Offers.Candidates(ctx, q, orderID)
		if err != nil {
			return err
		}
		ranked = bids.Rank(filterCandidates(candidates, exclude))
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	for _, cand := range ranked {
		res, err := e.tryCandidate(ctx, orderID, cand)
		if err == nil {
			awardsTotal.WithLabelValues("won").Inc()
			log.WithFields(log.Fields{
				"order":  orderID,
				"winner": res.Winner,
				"score":  res.Score,
			}).Info("awarded order")

			e.Emitter.Emit(ctx, orderID, string(orders.WholesalerAccepted))
			return res, nil
		}

		var reason, skip = classifyCandidateFailure(err)
		if !skip {
			awardsTotal.WithLabelValues("error").Inc()
			return Result{}, err
		}
		candidateSkips.WithLabelValues(reason).Inc()
		log.WithFields(log.Fields{
			"order":      orderID,
			"wholesaler": cand.WholesalerID,
			"reason":     reason,
			"err":        err,
		}).Info("award candidate skipped")
	}

	return Result{}, e.failNoWinner(ctx, orderID)
}

func verifyAwardable(o orders.Order) error {
	if !o.State.PreAward() || o.FinalWholesaler != nil {
		return fault.New(fault.DecisionConflict,
			"order %s is %s and cannot be awarded", o.ID, o.State).
			WithDetail("state", string(o.State))
	}
	return nil
}

func filterCandidates(candidates []bids.Candidate, exclude []uuid.UUID) []bids.Candidate {
	var excluded = make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	var out = candidates[:0]
	for _, c := range candidates {
		if !excluded[c.WholesalerID] && c.WholesalerActive {
			out = append(out, c)
		}
	}
	return out
}

// classifyCandidateFailure decides whether an award attempt's failure is
// specific to the candidate (try the next one) or terminal for the whole
// decision.
func classifyCandidateFailure(err error) (reason string, skip bool) {
	if errors.Is(err, errCandidateLost) {
		return "candidate_lost", true
	}
	switch fault.StatusOf(err) {
	case fault.InsufficientStock:
		return "insufficient_stock", true
	case fault.CreditLimitExceeded:
		return "credit_limit", true
	case fault.CreditPaused:
		return "credit_paused", true
	}
	return "", false
}

// tryCandidate runs one award attempt as one serializable transaction,
// in order: re-verify the order, re-check the wholesaler, reserve stock,
// debit credit, settle offers, set the winner and transition the order.
// Any error rolls the whole attempt back.
func (e *Engine) tryCandidate(ctx context.Context, orderID uuid.UUID, cand bids.Ranked) (Result, error) {
	var res = Result{OrderID: orderID, Winner: cand.WholesalerID, OfferID: cand.ID, Score: cand.Score}

	var err = e.Runner.Transact(ctx, "award-order", orderID.String(), func(q store.Querier) error {
		o, err := e.Orders.GetForUpdate(ctx, q, orderID)
		if err != nil {
			return err
		}
		if err = verifyAwardable(o); err != nil {
			return err
		}

		active, err := e.Offers.WholesalerActive(ctx, q, cand.WholesalerID)
		if err != nil {
			return err
		} else if !active {
			return errCandidateLost
		}

		items, err := e.Orders.Items(ctx, q, orderID)
		if err != nil {
			return err
		}
		var lines = make([]stock.Line, 0, len(items))
		for _, item := range items {
			lines = append(lines, stock.Line{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		if err = e.Stock.Reserve(ctx, q, orderID, cand.WholesalerID, lines); err != nil {
			return err
		}

		entry, err := e.Ledger.AppendEntry(ctx, q, ledger.Append{
			RetailerID:   o.RetailerID,
			WholesalerID: cand.WholesalerID,
			Type:         ledger.Debit,
			Amount:       o.Total,
			OrderID:      &orderID,
			CreatedBy:    ledger.CreatorSystem,
		})
		if err != nil {
			return err
		}
		res.DebitID = entry.ID

		if err = e.Offers.SetStatus(ctx, q, cand.ID, bids.Pending, bids.Accepted); err != nil {
			if fault.IsStatus(err, fault.DecisionConflict) {
				return errCandidateLost
			}
			return err
		}
		if res.Rejected, err = e.Offers.RejectOpenOffers(ctx, q, orderID, cand.ID); err != nil {
			return err
		}

		if err = e.Orders.SetFinalWholesaler(ctx, q, orderID, &cand.WholesalerID); err != nil {
			return err
		}
		_, err = e.Orders.Transition(ctx, q, orderID, orders.WholesalerAccepted,
			orders.ActorSystem, "awarded to best offer")
		return err
	})
	return res, err
}

// failNoWinner settles an order no candidate could win: remaining offers
// are rejected and the order fails, in one transaction. The order is
// re-verified first, since a concurrent award may have landed after the
// last candidate was skipped.
func (e *Engine) failNoWinner(ctx context.Context, orderID uuid.UUID) error {
	var err = e.Runner.Transact(ctx, "award-exhausted", orderID.String(), func(q store.Querier) error {
		o, err := e.Orders.GetForUpdate(ctx, q, orderID)
		if err != nil {
			return err
		}
		if err = verifyAwardable(o); err != nil {
			return err
		}
		if _, err = e.Offers.RejectOpenOffers(ctx, q, orderID, uuid.Nil); err != nil {
			return err
		}
		_, err = e.Orders.Transition(ctx, q, orderID, orders.Failed,
			orders.ActorSystem, "no eligible winner")
		return err
	})
	if err != nil {
		return err
	}

	awardsTotal.WithLabelValues("no_winner").Inc()
	log.WithField("order", orderID).Warn("no eligible winner for order")
	e.Emitter.Emit(ctx, orderID, string(orders.Failed))

	return fault.New(fault.NoEligibleWinner, "no eligible winner for order %s", orderID)
}
