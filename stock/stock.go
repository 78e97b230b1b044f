// Package stock tracks per-(wholesaler, product) inventory and the
// reservations held against it. All mutations run inside the caller's
// serializable transaction and lock product rows in a deterministic order.
package stock

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/soukworks/souk/fault"
	"github.com/soukworks/souk/store"
)

// Line is a requested quantity of one product.
type Line struct {
	ProductID uuid.UUID
	Quantity  int
}

// Availability is one product's standing with a wholesaler.
type Availability struct {
	ProductID   uuid.UUID `json:"productId"`
	Stock       int       `json:"stock"`
	Reserved    int       `json:"reserved"`
	Available   int       `json:"available"`
	Required    int       `json:"required"`
	MinOrderQty int       `json:"minOrderQty"`
}

// Report is a full availability check for one wholesaler.
type Report struct {
	Items      []Availability `json:"items"`
	Sufficient bool           `json:"sufficient"`
}

// Ledger issues, releases and fulfils stock reservations.
type Ledger struct{}

// normalizeLines merges duplicate products and orders lines by product id,
// which is also the row-lock order taken by Reserve.
func normalizeLines(lines []Line) ([]Line, error) {
	var byProduct = make(map[uuid.UUID]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, fault.New(fault.InvalidInput, "quantity for product %s must be positive", l.ProductID)
		}
		byProduct[l.ProductID] += l.Quantity
	}
	if len(byProduct) == 0 {
		return nil, fault.New(fault.InvalidInput, "no items to reserve")
	}

	var out = make([]Line, 0, len(byProduct))
	for id, qty := range byProduct {
		out = append(out, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProductID.String() < out[j].ProductID.String()
	})
	return out, nil
}

// CheckAvailability reports, per line, the wholesaler's stock position and
// whether every line can currently be covered. A product the wholesaler
// does not carry, or has marked unavailable, counts as zero available.
func (Ledger) CheckAvailability(ctx context.Context, q store.Querier, wholesaler uuid.UUID, lines []Line) (Report, error) {
	lines, err := normalizeLines(lines)
	if err != nil {
		return Report{}, err
	}

	var report = Report{Sufficient: true}
	for _, l := range lines {
		var a = Availability{ProductID: l.ProductID, Required: l.Quantity}
		var available bool

		err = q.QueryRow(ctx,
			`SELECT stock, reserved, min_order_qty, is_available
			 FROM wholesaler_products
			 WHERE wholesaler_id = $1::uuid AND product_id = $2::uuid`,
			wholesaler.String(), l.ProductID.String()).
			Scan(&a.Stock, &a.Reserved, &a.MinOrderQty, &available)

		if err == pgx.ErrNoRows {
			// Not carried; zero available.
		} else if err != nil {
			return Report{}, fault.Wrap(err, fault.Internal, "checking stock of product %s", l.ProductID)
		} else if available {
			a.Available = a.Stock - a.Reserved
		}

		if a.Available < a.Required {
			report.Sufficient = false
		}
		report.Items = append(report.Items, a)
	}
	return report, nil
}

// Reserve places a hold on every line against |wholesaler| for |orderID|.
// Product rows are locked FOR UPDATE in product-id order; the first
// shortfall fails the whole call with INSUFFICIENT_STOCK, and the caller's
// transaction rollback discards any increments already applied.
func (Ledger) Reserve(ctx context.Context, q store.Querier, orderID, wholesaler uuid.UUID, lines []Line) error {
	lines, err := normalizeLines(lines)
	if err != nil {
		return err
	}

	for _, l := range lines {
		var stock, reserved int
		var available bool

		err = q.QueryRow(ctx,
			`SELECT stock, reserved, is_available FROM wholesaler_products
			 WHERE wholesaler_id = $1::uuid AND product_id = $2::uuid
			 FOR UPDATE`,
			wholesaler.String(), l.ProductID.String()).Scan(&stock, &reserved, &available)

		if err == pgx.ErrNoRows {
			return insufficient(l.ProductID, 0, l.Quantity)
		} else if err != nil {
			return fault.Wrap(err, fault.Internal, "locking stock of product %s", l.ProductID)
		}

		if !available || stock-reserved < l.Quantity {
			var have = stock - reserved
			if !available {
				have = 0
			}
			return insufficient(l.ProductID, have, l.Quantity)
		}

		if _, err = q.Exec(ctx,
			`UPDATE wholesaler_products SET reserved = reserved + $3, updated_at = now()
			 WHERE wholesaler_id = $1::uuid AND product_id = $2::uuid`,
			wholesaler.String(), l.ProductID.String(), l.Quantity); err != nil {
			return fault.Wrap(err, fault.Internal, "reserving product %s", l.ProductID)
		}
		if _, err = q.Exec(ctx,
			`INSERT INTO stock_reservations
				(reservation_id, order_id, wholesaler_id, product_id, quantity, status)
			 VALUES ($1::uuid, $2::uuid, $3::uuid, $4::uuid, $5, 'ACTIVE')`,
			uuid.New().String(), orderID.String(), wholesaler.String(),
			l.ProductID.String(), l.Quantity); err != nil {
			return fault.Wrap(err, fault.Internal, "recording hold on product %s", l.ProductID)
		}
	}

	holdsTotal.WithLabelValues("reserve").Inc()
	return nil
}

func insufficient(product uuid.UUID, available, required int) error {
	return fault.New(fault.InsufficientStock,
		"product %s has %d available, %d required", product, available, required).
		WithDetail("productId", product.String()).
		WithDetail("available", available).
		WithDetail("required", required)
}

// Release returns all of the order's ACTIVE holds to the pool and reports
// how many holds were released.
func (l Ledger) Release(ctx context.Context, q store.Querier, orderID uuid.UUID) (int, error) {
	return l.settle(ctx, q, orderID, "RELEASED", false)
}

// Fulfil consumes all of the order's ACTIVE holds, decrementing both stock
// and reserved, and reports how many holds were fulfilled.
func (l Ledger) Fulfil(ctx context.Context, q store.Querier, orderID uuid.UUID) (int, error) {
	return l.settle(ctx, q, orderID, "FULFILLED", true)
}

func (Ledger) settle(ctx context.Context, q store.Querier, orderID uuid.UUID, status string, consume bool) (int, error) {
	type hold struct {
		id, wholesaler, product string
		quantity                int
	}

	rows, err := q.Query(ctx,
		`SELECT reservation_id::text, wholesaler_id::text, product_id::text, quantity
		 FROM stock_reservations
		 WHERE order_id = $1::uuid AND status = 'ACTIVE'
		 FOR UPDATE`, orderID.String())
	if err != nil {
		return 0, fault.Wrap(err, fault.Internal, "loading holds of order %s", orderID)
	}

	var holds []hold
	for rows.Next() {
		var h hold
		if err = rows.Scan(&h.id, &h.wholesaler, &h.product, &h.quantity); err != nil {
			rows.Close()
			return 0, fault.Wrap(err, fault.Internal, "scanning hold of order %s", orderID)
		}
		holds = append(holds, h)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, fault.Wrap(err, fault.Internal, "loading holds of order %s", orderID)
	}

	var stockDelta = ""
	if consume {
		stockDelta = `stock = stock - $3, `
	}
	for _, h := range holds {
		if _, err = q.Exec(ctx,
			`UPDATE wholesaler_products SET `+stockDelta+`reserved = reserved - $3, updated_at = now()
			 WHERE wholesaler_id = $1::uuid AND product_id = $2::uuid`,
			h.wholesaler, h.product, h.quantity); err != nil {
			return 0, fault.Wrap(err, fault.Internal, "settling hold on product %s", h.product)
		}
		if _, err = q.Exec(ctx,
			`UPDATE stock_reservations SET status = $2, updated_at = now()
			 WHERE reservation_id = $1::uuid`, h.id, status); err != nil {
			return 0, fault.Wrap(err, fault.Internal, "closing hold %s", h.id)
		}
	}

	if len(holds) != 0 {
		var action = "release"
		if consume {
			action = "fulfil"
		}
		holdsTotal.WithLabelValues(action).Inc()
	}
	return len(holds), nil
}
