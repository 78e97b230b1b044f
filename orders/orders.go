package orders

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

// Order is a retailer's order. FinalWholesaler is set only at award time
// and cleared only by an explicit re-award or cancellation path.
type Order struct {
	ID              uuid.UUID
	RetailerID      uuid.UUID
	State           State
	FinalWholesaler *uuid.UUID
	Total           money.Amount
	PaymentMode     string
	FailureReason   string
	ExpiresAt       *time.Time
	ConfirmedAt     *time.Time
	DeliveredAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Item is one order line. UnitPrice is captured when the line is added.
type Item struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	UnitPrice money.Amount
}

// Transition is one audit-log row.
type Transition struct {
	OrderID uuid.UUID
	From    State
	To      State
	Actor   string
	Reason  string
	At      time.Time
}

// Store persists orders, items and the transition log. All methods run
// against the caller's Querier, which is a transaction for every mutation.
type Store struct{}

const orderColumns = `order_id::text, retailer_id::text, state,
	final_wholesaler_id::text, total_amount::text,
	COALESCE(payment_mode, ''), COALESCE(failure_reason, ''),
	expires_at, confirmed_at, delivered_at, created_at, updated_at`

// Create inserts |o| and its initial |items| in state CREATED, computing
// the order total from the items. The caller opens bidding with a separate
// Transition in the same transaction.
func (Store) Create(ctx context.Context, q store.Querier, o Order, items []Item) (Order, error) {
	o.State = Created
	o.Total = money.Zero()
	for _, item := range items {
		o.Total = o.Total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	var _, err = q.Exec(ctx,
		`INSERT INTO orders (order_id, retailer_id, state, total_amount, payment_mode, expires_at)
		 VALUES ($1::uuid, $2::uuid, $3, $4::numeric, NULLIF($5, ''), $6)`,
		o.ID.String(), o.RetailerID.String(), string(o.State),
		money.String(o.Total), o.PaymentMode, o.ExpiresAt)
	if err != nil {
		return Order{}, fault.Wrap(err, fault.Internal, "inserting order %s", o.ID)
	}

	for _, item := range items {
		if _, err = q.Exec(ctx,
			`INSERT INTO order_items (order_item_id, order_id, product_id, quantity, unit_price)
			 VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5::numeric)`,
			item.ID.String(), o.ID.String(), item.ProductID.String(),
			item.Quantity, money.String(item.UnitPrice)); err != nil {
			return Order{}, fault.Wrap(err, fault.Internal, "inserting item of order %s", o.ID)
		}
	}
	return o, nil
}

// Get loads an order by id.
func (Store) Get(ctx context.Context, q store.Querier, id uuid.UUID) (Order, error) {
	return getOrder(ctx, q, id, false)
}

// GetForUpdate loads an order under a row lock, serializing it against
// concurrent awards and transitions for the rest of the transaction.
func (Store) GetForUpdate(ctx context.Context, q store.Querier, id uuid.UUID) (Order, error) {
	return getOrder(ctx, q, id, true)
}

func getOrder(ctx context.Context, q store.Querier, id uuid.UUID, forUpdate bool) (Order, error) {
	var sql = `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1::uuid`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var o, err = scanOrder(q.QueryRow(ctx, sql, id.String()))
	if err == pgx.ErrNoRows {
		return Order{}, fault.New(fault.InvalidInput, "order %s not found", id)
	} else if err != nil {
		return Order{}, fault.Wrap(err, fault.Internal, "loading order %s", id)
	}
	return o, nil
}

// Transition moves an order to |to|, validating against the allowed set of
// its current state, and appends the audit row in the same transaction. The
// order row is locked first so concurrent transitions serialize.
func (s Store) Transition(ctx context.Context, q store.Querier, id uuid.UUID, to State, actor, reason string) (Order, error) {
	var o, err = s.GetForUpdate(ctx, q, id)
	if err != nil {
		return Order{}, err
	}
	if err = ValidateTransition(o.State, to); err != nil {
		return Order{}, err
	}

	if _, err = q.Exec(ctx,
		`UPDATE orders SET state = $2, updated_at = now(),
			failure_reason = CASE WHEN $2 = 'FAILED' THEN NULLIF($3, '') ELSE failure_reason END,
			confirmed_at   = CASE WHEN $2 = 'CONFIRMED' THEN now() ELSE confirmed_at END,
			delivered_at   = CASE WHEN $2 = 'DELIVERED' THEN now() ELSE delivered_at END
		 WHERE order_id = $1::uuid`,
		id.String(), string(to), reason); err != nil {
		return Order{}, fault.Wrap(err, fault.Internal, "updating state of order %s", id)
	}
	if _, err = q.Exec(ctx,
		`INSERT INTO order_transitions (order_id, from_state, to_state, actor, reason)
		 VALUES ($1::uuid, $2, $3, $4, NULLIF($5, ''))`,
		id.String(), string(o.State), string(to), actor, reason); err != nil {
		return Order{}, fault.Wrap(err, fault.Internal, "logging transition of order %s", id)
	}

	transitionsApplied.WithLabelValues(string(to)).Inc()

	o.State = to
	if to == Failed {
		o.FailureReason = reason
	}
	return o, nil
}

// SetFinalWholesaler sets (or clears, with nil) an order's awarded
// wholesaler.
func (Store) SetFinalWholesaler(ctx context.Context, q store.Querier, id uuid.UUID, wholesaler *uuid.UUID) error {
	var arg *string
	if wholesaler != nil {
		var s = wholesaler.String()
		arg = &s
	}
	var _, err = q.Exec(ctx,
		`UPDATE orders SET final_wholesaler_id = $2::uuid, updated_at = now()
		 WHERE order_id = $1::uuid`, id.String(), arg)
	if err != nil {
		return fault.Wrap(err, fault.Internal, "setting winner of order %s", id)
	}
	return nil
}

// AddItem upserts one line onto an order, incrementing quantity if the
// product is already present (the originally captured price stands), and
// bumps the order total by the delta.
func (Store) AddItem(ctx context.Context, q store.Querier, item Item) error {
	var captured string
	var err = q.QueryRow(ctx,
		`INSERT INTO order_items (order_item_id, order_id, product_id, quantity, unit_price)
		 VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5::numeric)
		 ON CONFLICT (order_id, product_id) DO UPDATE
		 SET quantity = order_items.quantity + EXCLUDED.quantity
		 RETURNING unit_price::text`,
		item.ID.String(), item.OrderID.String(), item.ProductID.String(),
		item.Quantity, money.String(item.UnitPrice)).Scan(&captured)
	if err != nil {
		return fault.Wrap(err, fault.Internal, "adding item to order %s", item.OrderID)
	}

	capturedPrice, err := decimal.NewFromString(captured)
	if err != nil {
		return fault.Wrap(err, fault.Internal, "parsing captured price of order %s", item.OrderID)
	}
	var delta = capturedPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))

	if _, err = q.Exec(ctx,
		`UPDATE orders SET total_amount = total_amount + $2::numeric, updated_at = now()
		 WHERE order_id = $1::uuid`,
		item.OrderID.String(), money.String(delta)); err != nil {
		return fault.Wrap(err, fault.Internal, "updating total of order %s", item.OrderID)
	}
	return nil
}

// Items loads an order's lines.
func (Store) Items(ctx context.Context, q store.Querier, orderID uuid.UUID) ([]Item, error) {
	rows, err := q.Query(ctx,
		`SELECT order_item_id::text, product_id::text, quantity, unit_price::text
		 FROM order_items WHERE order_id = $1::uuid ORDER BY order_item_id`,
		orderID.String())
	if err != nil {
		return nil, fault.Wrap(err, fault.Internal, "loading items of order %s", orderID)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item = Item{OrderID: orderID}
		var id, product, price string
		if err = rows.Scan(&id, &product, &item.Quantity, &price); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "scanning item of order %s", orderID)
		}
		if item.ID, err = uuid.Parse(id); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "parsing item id")
		}
		if item.ProductID, err = uuid.Parse(product); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "parsing product id")
		}
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "parsing item price")
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Transitions loads an order's audit log in application order.
func (Store) Transitions(ctx context.Context, q store.Querier, orderID uuid.UUID) ([]Transition, error) {
	rows, err := q.Query(ctx,
		`SELECT from_state, to_state, actor, COALESCE(reason, ''), created_at
		 FROM order_transitions WHERE order_id = $1::uuid ORDER BY transition_id`,
		orderID.String())
	if err != nil {
		return nil, fault.Wrap(err, fault.Internal, "loading transitions of order %s", orderID)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t = Transition{OrderID: orderID}
		var from, to string
		if err = rows.Scan(&from, &to, &t.Actor, &t.Reason, &t.At); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "scanning transition of order %s", orderID)
		}
		t.From, t.To = State(from), State(to)
		out = append(out, t)
	}
	return out, rows.Err()
}

// DueBidExpiry lists orders whose bidding window has closed without an
// award, oldest first.
func (Store) DueBidExpiry(ctx context.Context, q store.Querier, now time.Time, limit int) ([]uuid.UUID, error) {
	return listIDs(ctx, q,
		`SELECT order_id::text FROM orders
		 WHERE state = 'PENDING_BIDS' AND final_wholesaler_id IS NULL
			AND expires_at IS NOT NULL AND expires_at <= $1
		 ORDER BY expires_at LIMIT $2`, now, limit)
}

// DueConfirmationTimeout lists awarded orders whose winner has not
// confirmed since |cutoff|.
func (Store) DueConfirmationTimeout(ctx context.Context, q store.Querier, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	return listIDs(ctx, q,
		`SELECT order_id::text FROM orders
		 WHERE state = 'WHOLESALER_ACCEPTED' AND updated_at <= $1
		 ORDER BY updated_at LIMIT $2`, cutoff, limit)
}

// DuePendingExpiry lists orders which never left CREATED or PENDING_BIDS
// before |cutoff|.
func (Store) DuePendingExpiry(ctx context.Context, q store.Querier, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	return listIDs(ctx, q,
		`SELECT order_id::text FROM orders
		 WHERE state IN ('CREATED', 'PENDING_BIDS') AND created_at <= $1
		 ORDER BY created_at LIMIT $2`, cutoff, limit)
}

func listIDs(ctx context.Context, q store.Querier, sql string, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, sql, cutoff, limit)
	if err != nil {
		return nil, fault.Wrap(err, fault.Internal, "listing due orders")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var s string
		if err = rows.Scan(&s); err != nil {
			return nil, fault.Wrap(err, fault.Internal, "scanning due order")
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fault.Wrap(err, fault.Internal, "parsing due order id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var id, retailer, state, total string
	var finalW *string

	var err = row.Scan(&id, &retailer, &state, &finalW, &total,
		&o.PaymentMode, &o.FailureReason,
		&o.ExpiresAt, &o.ConfirmedAt, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}

	if o.ID, err = uuid.Parse(id); err != nil {
		return Order{}, err
	}
	if o.RetailerID, err = uuid.Parse(retailer); err != nil {
		return Order{}, err
	}
	if finalW != nil {
		w, err := uuid.Parse(*finalW)
		if err != nil {
			return Order{}, err
		}
		o.FinalWholesaler = &w
	}
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return Order{}, err
	}
	o.State = State(state)
	return o, nil
}
