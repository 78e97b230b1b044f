package bids

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"

	"github.com/soukworks/souk/fault"
	"github.com/soukworks/souk/money"
	"github.com/soukworks/souk/store"
)

// Status of a vendor offer.
type Status string

const (
	Pending  Status = "PENDING"
	Accepted Status = "ACCEPTED"
	Rejected Status = "REJECTED"
	Expired  Status = "EXPIRED"
)

// Offer is one wholesaler's bid on an order.
type Offer struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	WholesalerID   uuid.UUID
	PriceQuote     money.Amount
	StockConfirmed bool
	ETA            string
	Status         Status
	CreatedAt      time.Time
}

// Store persists vendor offers.
type Store struct{}

// Submit inserts an offer, or revises the quote of the wholesaler's
// existing PENDING offer for the same order. A settled offer cannot be
// revised.
func (Store) Submit(ctx context.Context, q store.Querier, o Offer) error {
	if !o.PriceQuote.IsPositive() {
		return fault.New(fault.InvalidInput, "price quote must be positive")
	}

	tag, err := q.Exec(ctx,
		`INSERT INTO vendor_offers
			(offer_id, order_id, wholesaler_id, price_quote, stock_confirmed, estimated_eta, status)
		 VALUES ($1::uuid, $2::uuid, $3::uuid, $4::numeric, $5, NULLIF($6, ''), 'PENDING')
		 ON CONFLICT (order_id, wholesaler_id) DO UPDATE
		 SET price_quote = EXCLUDED.price_quote,
			stock_confirmed = EXCLUDED.stock_confirmed,
			estimated_eta = EXCLUDED.estimated_eta,
			created_at = now()
		 WHERE vendor_offers.status = 'PENDING'`,
		o.ID.String(), o.OrderID.String(), o.WholesalerID.String(),
		money.String(o.PriceQuote), o.StockConfirmed, o.ETA)
	if err != nil {
		return fault.Wrap(err, fault.Internal, "submitting offer on order %s", o.OrderID)
	}
	if tag.RowsAffected() == 0 {
		return fault.New(fault.InvalidInput,
			"wholesaler %s's offer on order %s is already settled", o.WholesalerID, o.OrderID)
	}
	return nil
}

// ListForOrder loads every offer on an order, oldest first.
func (Store) ListForOrder(ctx context.Context, q store.Querier, orderID uuid.UUID) ([]Offer, error) {
	rows, err := q.Query(ctx, offerSelect+`
		 WHERE o.order_id = $1::uuid ORDER BY o.created_at, o.offer_id`,
		orderID.String())
	if err != nil {
		return nil, fault.Wrap(err, fault.Internal, "loading offers of order %s", orderID)
	}
	defer rows.Close()
	return scanOffers(rows)
}

// Candidates loads an order's PENDING offers joined with wholesaler
// metadata, applying scoring defaults where metadata is unset. Exclusion
// sets are applied by the caller.
func (Store) Candidates(ctx context.Context, q store.Querier, orderID uuid.UUID) ([]Candidate, error) {
	rows, err := q.Query(ctx,
		`SELECT o.offer_id::text, o.wholesaler_id::text, o.price_quote::text,
			o.stock_confirmed, COALESCE(o.estimated_eta, ''), o.created_at,
			w.is_active,
			COALESCE(w.reliability_score, $2)::float8,
			COALESCE(w.average_rating, $3)::float8
		 FROM vendor_offers o
		 JOIN wholesalers w ON w.wholesaler_id = o.wholesaler_id
		 WHERE o.order_id = $1::uuid AND o.status = 'PENDING'
		 ORDER BY o.created_at, o.offer_id`,
		orderID.String(), DefaultReliability, DefaultRating)
	if err != nil {
		return nil, fault.Wrap(err, fault.Internal, "loading candidates of order %s", orderID)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c = Candidate{Offer: Offer{OrderID: orderID, Status: Pending}}
		var id, wholesaler, quote string

		if err = rows.Scan(&id, &wholesaler, &quote, &c.StockConfirmed, &c.ETA,
			&c.CreatedAt, &c.WholesalerActive, &c.Reliability, &c.Rating); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "scanning candidate of order %s", orderID)
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "parsing offer id")
		}
		if c.WholesalerID, err = uuid.Parse(wholesaler); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "parsing offer wholesaler")
		}
		if c.PriceQuote, err = decimal.NewFromString(quote); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "parsing offer quote")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AcceptedFor returns the order's ACCEPTED offer, or nil.
func (Store) AcceptedFor(ctx context.Context, q store.Querier, orderID uuid.UUID) (*Offer, error) {
	rows, err := q.Query(ctx, offerSelect+`
		 WHERE o.order_id = $1::uuid AND o.status = 'ACCEPTED'`,
		orderID.String())
	if err != nil {
		return nil, fault.Wrap(err, fault.Internal, "loading accepted offer of order %s", orderID)
	}
	defer rows.Close()

	offers, err := scanOffers(rows)
	if err != nil || len(offers) == 0 {
		return nil, err
	}
	return &offers[0], nil
}

// SetStatus moves one offer from |from| to |to|, failing with
// DECISION_CONFLICT if the offer is no longer in |from|.
func (Store) SetStatus(ctx context.Context, q store.Querier, offerID uuid.UUID, from, to Status) error {
	tag, err := q.Exec(ctx,
		`UPDATE vendor_offers SET status = $3 WHERE offer_id = $1::uuid AND status = $2`,
		offerID.String(), string(from), string(to))
	if err != nil {
		return fault.Wrap(err, fault.Internal, "updating offer %s", offerID)
	}
	if tag.RowsAffected() == 0 {
		return fault.New(fault.DecisionConflict, "offer %s is no longer %s", offerID, from)
	}
	return nil
}

// Decline rejects a wholesaler's own open offer. Vendor-declined offers
// are marked as such and stay rejected across re-awards, unlike offers
// rejected by the award itself.
func (Store) Decline(ctx context.Context, q store.Querier, orderID, wholesalerID uuid.UUID) error {
	tag, err := q.Exec(ctx,
		`UPDATE vendor_offers SET status = 'REJECTED', vendor_declined = TRUE
		 WHERE order_id = $1::uuid AND wholesaler_id = $2::uuid AND status = 'PENDING'`,
		orderID.String(), wholesalerID.String())
	if err != nil {
		return fault.Wrap(err, fault.Internal, "declining offer of wholesaler %s", wholesalerID)
	}
	if tag.RowsAffected() == 0 {
		return fault.New(fault.DecisionConflict,
			"wholesaler %s has no open offer on order %s", wholesalerID, orderID)
	}
	return nil
}

// ReviveRejected reopens the order's offers which were rejected when a
// winner was picked, so a re-award can consider them again. Offers the
// vendor itself declined stay rejected.
func (Store) ReviveRejected(ctx context.Context, q store.Querier, orderID uuid.UUID) (int, error) {
	tag, err := q.Exec(ctx,
		`UPDATE vendor_offers SET status = 'PENDING'
		 WHERE order_id = $1::uuid AND status = 'REJECTED' AND NOT vendor_declined`,
		orderID.String())
	if err != nil {
		return 0, fault.Wrap(err, fault.Internal, "reviving offers of order %s", orderID)
	}
	return int(tag.RowsAffected()), nil
}

// WholesalerActive re-reads a wholesaler's is_active flag. Award
// attempts call it inside their transaction, since the flag may have
// flipped since candidates were loaded.
func (Store) WholesalerActive(ctx context.Context, q store.Querier, wholesalerID uuid.UUID) (bool, error) {
	var active bool
	var err = q.QueryRow(ctx,
		`SELECT is_active FROM wholesalers WHERE wholesaler_id = $1::uuid`,
		wholesalerID.String()).Scan(&active)
	if err == pgx.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, fault.Wrap(err, fault.Internal, "checking wholesaler %s", wholesalerID)
	}
	return active, nil
}

// RejectOpenOffers rejects every still-PENDING offer of the order except
// |except| (which may be uuid.Nil to reject all), and reports how many
// offers were rejected.
func (Store) RejectOpenOffers(ctx context.Context, q store.Querier, orderID, except uuid.UUID) (int, error) {
	tag, err := q.Exec(ctx,
		`UPDATE vendor_offers SET status = 'REJECTED'
		 WHERE order_id = $1::uuid AND status = 'PENDING' AND offer_id <> $2::uuid`,
		orderID.String(), except.String())
	if err != nil {
		return 0, fault.Wrap(err, fault.Internal, "rejecting open offers of order %s", orderID)
	}
	return int(tag.RowsAffected()), nil
}

const offerSelect = `SELECT o.offer_id::text, o.order_id::text, o.wholesaler_id::text,
	o.price_quote::text, o.stock_confirmed, COALESCE(o.estimated_eta, ''),
	o.status, o.created_at
	FROM vendor_offers o`

func scanOffers(rows pgx.Rows) ([]Offer, error) {
	var out []Offer
	for rows.Next() {
		var o Offer
		var id, orderID, wholesaler, quote, status string

		if err := rows.Scan(&id, &orderID, &wholesaler, &quote,
			&o.StockConfirmed, &o.ETA, &status, &o.CreatedAt); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "scanning offer")
		}

		var err error
		if o.ID, err = uuid.Parse(id); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "parsing offer id")
		}
		if o.OrderID, err = uuid.Parse(orderID); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "parsing offer order")
		}
		if o.WholesalerID, err = uuid.Parse(wholesaler); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "parsing offer wholesaler")
		}
		if o.PriceQuote, err = decimal.NewFromString(quote); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "parsing offer quote")
		}
		o.Status = Status(status)
		out = append(out, o)
	}
	return out, rows.Err()
}
