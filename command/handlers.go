package command

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/soukworks/souk/bids"
	"github.com/soukworks/souk/fault"
	"github.com/soukworks/souk/ledger"
	"github.com/soukworks/souk/money"
	"github.com/soukworks/souk/orders"
	"github.com/soukworks/souk/store"
)

func (x *Executor) createOrder(ctx context.Context, c CreateOrder) (orders.Order, error) {
	if cap, ok := x.orderValueCap(ctx); ok && c.Total().GreaterThan(cap) {
		return orders.Order{}, fault.New(fault.InvalidInput,
			"order total %s exceeds the configured cap %s", money.String(c.Total()), money.String(cap)).
			WithDetail("cap", money.String(cap))
	}

	var window = time.Duration(c.BiddingSec) * time.Second
	if window <= 0 {
		window = DefaultBiddingWindow
	}
	var expires = time.Now().UTC().Add(window)
	var id = uuid.New()

	var o orders.Order
	var err = x.Runner.Transact(ctx, "create-order", id.String(), func(q store.Querier) error {
		var items = make([]orders.Item, 0, len(c.Items))
		for _, spec := range c.Items {
			items = append(items, orders.Item{
				ID:        uuid.New(),
				OrderID:   id,
				ProductID: spec.ProductID,
				Quantity:  spec.Quantity,
				UnitPrice: spec.UnitPrice,
			})
		}
		var err error
		if _, err = x.Orders.Create(ctx, q, orders.Order{
			ID:          id,
			RetailerID:  c.RetailerID,
			PaymentMode: c.PaymentMode,
			ExpiresAt:   &expires,
		}, items); err != nil {
			return err
		}
		o, err = x.Orders.Transition(ctx, q, id, orders.PendingBids,
			orders.ActorRetailer, "opened for bidding")
		return err
	})
	if err != nil {
		return orders.Order{}, err
	}

	x.Emitter.Emit(ctx, id, string(orders.PendingBids))
	return o, nil
}

func (x *Executor) addItem(ctx context.Context, c AddItem) (orders.Order, error) {
	var o orders.Order
	var err = x.Runner.Transact(ctx, "add-item", c.OrderID.String(), func(q store.Querier) error {
		var cur, err = x.Orders.GetForUpdate(ctx, q, c.OrderID)
		if err != nil {
			return err
		}
		if cur.State != orders.Created && cur.State != orders.PendingBids {
			return fault.New(fault.InvalidTransition,
				"items cannot be added to order %s in state %s", c.OrderID, cur.State).
				WithDetail("state", string(cur.State))
		}
		if cur.ExpiresAt != nil && time.Now().UTC().After(*cur.ExpiresAt) {
			return fault.New(fault.InvalidTransition,
				"bidding window of order %s has closed", c.OrderID)
		}

		var add = c.UnitPrice.Mul(decimal.NewFromInt(int64(c.Quantity)))
		if cap, ok := x.orderValueCap(ctx); ok && cur.Total.Add(add).GreaterThan(cap) {
			return fault.New(fault.InvalidInput,
				"order total would exceed the configured cap %s", money.String(cap))
		}

		if err = x.Orders.AddItem(ctx, q, orders.Item{
			ID:        uuid.New(),
			OrderID:   c.OrderID,
			ProductID: c.ProductID,
			Quantity:  c.Quantity,
			UnitPrice: c.UnitPrice,
		}); err != nil {
			return err
		}
		o, err = x.Orders.Get(ctx, q, c.OrderID)
		return err
	})
	return o, err
}

func (x *Executor) confirmOrder(ctx context.Context, c ConfirmOrder) (orders.Order, error) {
	var o orders.Order
	var err = x.Runner.Transact(ctx, "confirm-order", c.OrderID.String(), func(q store.Querier) error {
		var cur, err = x.Orders.GetForUpdate(ctx, q, c.OrderID)
		if err != nil {
			return err
		}
		if cur.FinalWholesaler == nil || *cur.FinalWholesaler != c.WholesalerID {
			return fault.New(fault.DecisionConflict,
				"wholesaler %s is not the awarded winner of order %s", c.WholesalerID, c.OrderID)
		}
		o, err = x.Orders.Transition(ctx, q, c.OrderID, orders.Confirmed,
			orders.ActorWholesaler, "")
		return err
	})
	if err != nil {
		return orders.Order{}, err
	}

	x.Emitter.Emit(ctx, c.OrderID, string(orders.Confirmed))
	return o, nil
}

func (x *Executor) submitOffer(ctx context.Context, c SubmitOffer) (orders.Order, error) {
	var o orders.Order
	var err = x.Runner.Transact(ctx, "submit-offer", c.OrderID.String(), func(q store.Querier) error {
		// The order row is locked so submission serializes against a
		// concurrent award of the same order.
		var cur, err = x.Orders.GetForUpdate(ctx, q, c.OrderID)
		if err != nil {
			return err
		}
		if cur.State != orders.PendingBids {
			return fault.New(fault.InvalidTransition,
				"order %s is not accepting offers in state %s", c.OrderID, cur.State).
				WithDetail("state", string(cur.State))
		}
		if cur.ExpiresAt != nil && time.Now().UTC().After(*cur.ExpiresAt) {
			return fault.New(fault.InvalidTransition,
				"bidding window of order %s has closed", c.OrderID)
		}

		active, err := x.Offers.WholesalerActive(ctx, q, c.WholesalerID)
		if err != nil {
			return err
		} else if !active {
			return fault.New(fault.InvalidInput, "wholesaler %s is not active", c.WholesalerID)
		}

		if err = x.Offers.Submit(ctx, q, bids.Offer{
			ID:             uuid.New(),
			OrderID:        c.OrderID,
			WholesalerID:   c.WholesalerID,
			PriceQuote:     c.PriceQuote,
			StockConfirmed: c.StockConfirmed,
			ETA:            c.ETA,
		}); err != nil {
			return err
		}
		o = cur
		return nil
	})
	return o, err
}

func (x *Executor) vendorReject(ctx context.Context, c VendorReject) (orders.Order, error) {
	var postAward bool
	var o orders.Order

	var err = x.Runner.Transact(ctx, "vendor-reject", c.OrderID.String(), func(q store.Querier) error {
		var cur, err = x.Orders.GetForUpdate(ctx, q, c.OrderID)
		if err != nil {
			return err
		}
		if cur.State == orders.WholesalerAccepted && cur.FinalWholesaler != nil &&
			*cur.FinalWholesaler == c.WholesalerID {
			postAward = true
			o = cur
			return nil
		}
		if err = x.Offers.Decline(ctx, q, c.OrderID, c.WholesalerID); err != nil {
			return err
		}
		o = cur
		return nil
	})
	if err != nil || !postAward {
		return o, err
	}

	// The awarded winner backed out. Unwind the award and pick the next
	// offer; exhausting candidates fails the order, which is still a
	// completed decision for this request.
	if _, err = x.Engine.Reaward(ctx, c.OrderID, "vendor rejected"); err != nil &&
		!fault.IsStatus(err, fault.NoEligibleWinner) {
		return orders.Order{}, err
	}
	return x.reload(ctx, c.OrderID)
}

func (x *Executor) cancelOrder(ctx context.Context, c CancelOrder) (orders.Order, error) {
	var o orders.Order
	var err = x.Runner.Transact(ctx, "cancel-order", c.OrderID.String(), func(q store.Querier) error {
		var cur, err = x.Orders.GetForUpdate(ctx, q, c.OrderID)
		if err != nil {
			return err
		}

		released, err := x.Stock.Release(ctx, q, c.OrderID)
		if err != nil {
			return err
		}
		if released > 0 {
			// An award was committed for this order; reverse its DEBIT.
			accepted, err := x.Offers.AcceptedFor(ctx, q, c.OrderID)
			if err != nil {
				return err
			}
			if accepted != nil {
				if _, err = x.Ledger.AppendEntry(ctx, q, ledger.Append{
					RetailerID:   cur.RetailerID,
					WholesalerID: accepted.WholesalerID,
					Type:         ledger.Credit,
					Amount:       cur.Total,
					OrderID:      &c.OrderID,
					CreatedBy:    ledger.CreatorSystem,
				}); err != nil {
					return err
				}
			}
		}

		o, err = x.Orders.Transition(ctx, q, c.OrderID, orders.Cancelled,
			c.ActorOrDefault(), c.Reason)
		return err
	})
	if err != nil {
		return orders.Order{}, err
	}

	x.Emitter.Emit(ctx, c.OrderID, string(orders.Cancelled))
	return o, nil
}

func (x *Executor) markDelivered(ctx context.Context, c MarkDelivered) (orders.Order, error) {
	var o orders.Order
	var err = x.Runner.Transact(ctx, "mark-delivered", c.OrderID.String(), func(q store.Querier) error {
		var err error
		if o, err = x.Orders.Transition(ctx, q, c.OrderID, orders.Delivered,
			orders.ActorWholesaler, ""); err != nil {
			return err
		}
		_, err = x.Stock.Fulfil(ctx, q, c.OrderID)
		return err
	})
	if err != nil {
		return orders.Order{}, err
	}

	x.Emitter.Emit(ctx, c.OrderID, string(orders.Delivered))
	return o, nil
}

func (x *Executor) forceAward(ctx context.Context, c ForceAwardWinner) (orders.Order, error) {
	if _, err := x.Engine.ForceAward(ctx, c.OrderID, c.WholesalerID); err != nil {
		return orders.Order{}, err
	}
	return x.reload(ctx, c.OrderID)
}

func (x *Executor) reload(ctx context.Context, id uuid.UUID) (orders.Order, error) {
	return x.Orders.Get(ctx, x.DB.Pool, id)
}

func (x *Executor) orderValueCap(ctx context.Context) (money.Amount, bool) {
	var v, ok = x.Flags.Cap(ctx, store.FlagOrderValueCap)
	if !ok {
		return money.Zero(), false
	}
	return money.FromInt(v), true
}
