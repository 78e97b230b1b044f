package decision

import (
	"context"
	"errors"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/soukworks/souk/bids"
	"github.com/soukworks/souk/fault"
	"github.com/soukworks/souk/ledger"
	"github.com/soukworks/souk/orders"
	"github.com/soukworks/souk/store"
)

// Reaward unwinds an award whose winner never confirmed and picks a new
// one. The undo is a single transaction: the accepted offer expires,
// stock holds release, a CREDIT reverses the award DEBIT, offers the
// award had rejected reopen, and the order returns to bidding through a
// FAILED hop carrying |reason|. Award then runs with the prior winner
// excluded.
func (e *Engine) Reaward(ctx context.Context, orderID uuid.UUID, reason string) (Result, error) {
	var prior uuid.UUID

	var err = e.Runner.Transact(ctx, "reaward-undo", orderID.String(), func(q store.Querier) error {
		o, err := e.Orders.GetForUpdate(ctx, q, orderID)
		if err != nil {
			return err
		}
		if o.State != orders.WholesalerAccepted {
			return fault.New(fault.DecisionConflict,
				"order %s is %s, not awaiting confirmation", orderID, o.State).
				WithDetail("state", string(o.State))
		}

		accepted, err := e.Offers.AcceptedFor(ctx, q, orderID)
		if err != nil {
			return err
		} else if accepted == nil {
			return fault.New(fault.DecisionConflict, "order %s has no accepted offer", orderID)
		}
		prior = accepted.WholesalerID

		if err = e.Offers.SetStatus(ctx, q, accepted.ID, bids.Accepted, bids.Expired); err != nil {
			return err
		}
		if _, err = e.Stock.Release(ctx, q, orderID); err != nil {
			return err
		}
		if _, err = e.Ledger.AppendEntry(ctx, q, ledger.Append{
			RetailerID:   o.RetailerID,
			WholesalerID: prior,
			Type:         ledger.Credit,
			Amount:       o.Total,
			OrderID:      &orderID,
			CreatedBy:    ledger.CreatorSystem,
		}); err != nil {
			return err
		}
		if err = e.Orders.SetFinalWholesaler(ctx, q, orderID, nil); err != nil {
			return err
		}
		if _, err = e.Offers.ReviveRejected(ctx, q, orderID); err != nil {
			return err
		}
		if _, err = e.Orders.Transition(ctx, q, orderID, orders.Failed,
			orders.ActorSystem, reason); err != nil {
			return err
		}
		_, err = e.Orders.Transition(ctx, q, orderID, orders.PendingBids,
			orders.ActorSystem, "re-opened for bidding")
		return err
	})
	if err != nil {
		return Result{}, err
	}

	reawardsTotal.Inc()
	log.WithFields(log.Fields{
		"order":  orderID,
		"prior":  prior,
		"reason": reason,
	}).Info("unwound award, re-opening bidding")
	e.Emitter.Emit(ctx, orderID, string(orders.PendingBids))

	return e.Award(ctx, orderID, []uuid.UUID{prior})
}

// ForceAward awards the order to one specific wholesaler, bypassing
// ranking. FAILED orders are first re-opened for bidding. The wholesaler
// must still hold an open offer and pass the usual stock and credit
// checks.
func (e *Engine) ForceAward(ctx context.Context, orderID, wholesalerID uuid.UUID) (Result, error) {
	var cand bids.Ranked

	var err = e.Runner.Transact(ctx, "force-award-load", orderID.String(), func(q store.Querier) error {
		o, err := e.Orders.Get(ctx, q, orderID)
		if err != nil {
			return err
		}
		if o.State == orders.Failed {
			if _, err = e.Offers.ReviveRejected(ctx, q, orderID); err != nil {
				return err
			}
			if _, err = e.Orders.Transition(ctx, q, orderID, orders.PendingBids,
				orders.ActorAdmin, "force award"); err != nil {
				return err
			}
		} else if err = verifyAwardable(o); err != nil {
			return err
		}

		candidates, err := e.Offers.Candidates(ctx, q, orderID)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			if c.WholesalerID == wholesalerID {
				cand = bids.Ranked{Candidate: c, Score: bids.Score(c)}
				return nil
			}
		}
		return fault.New(fault.InvalidInput,
			"wholesaler %s has no open offer on order %s", wholesalerID, orderID)
	})
	if err != nil {
		return Result{}, err
	}

	res, err := e.tryCandidate(ctx, orderID, cand)
	if errors.Is(err, errCandidateLost) {
		return Result{}, fault.New(fault.DecisionConflict,
			"offer of wholesaler %s on order %s is no longer open", wholesalerID, orderID)
	} else if err != nil {
		return Result{}, err
	}

	awardsTotal.WithLabelValues("forced").Inc()
	log.WithFields(log.Fields{"order": orderID, "winner": wholesalerID}).
		Info("force-awarded order")
	e.Emitter.Emit(ctx, orderID, string(orders.WholesalerAccepted))
	return res, nil
}
