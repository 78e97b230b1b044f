package ingress

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/soukworks/souk/bids"
	"github.com/soukworks/souk/money"
	"github.com/soukworks/souk/orders"
	"github.com/soukworks/souk/store"
)

// Reader assembles order detail views from storage. Reads run outside
// the transaction runner: a point-in-time snapshot is enough here.
type Reader struct {
	DB     *store.DB
	Orders orders.Store
	Offers bids.Store
}

// OrderDetail is the read model of a single order.
type OrderDetail struct {
	Order       OrderView        `json:"order"`
	Items       []ItemView       `json:"items"`
	Offers      []OfferView      `json:"offers"`
	Transitions []TransitionView `json:"transitions"`
}

// OrderView mirrors the command response view, plus the lifecycle
// timestamps that only matter to readers.
type OrderView struct {
	ID              string     `json:"orderId"`
	RetailerID      string     `json:"retailerId"`
	State           string     `json:"state"`
	Total           string     `json:"totalAmount"`
	PaymentMode     string     `json:"paymentMode,omitempty"`
	FinalWholesaler string     `json:"finalWholesaler,omitempty"`
	FailureReason   string     `json:"failureReason,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	ConfirmedAt     *time.Time `json:"confirmedAt,omitempty"`
	DeliveredAt     *time.Time `json:"deliveredAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type ItemView struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	LineTotal string `json:"lineTotal"`
}

type OfferView struct {
	WholesalerID   string    `json:"wholesalerId"`
	PriceQuote     string    `json:"priceQuote"`
	ETA            string    `json:"estimatedEta,omitempty"`
	StockConfirmed bool      `json:"stockConfirmed"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

type TransitionView struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Actor  string    `json:"actor"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Detail loads the order, its items, offers, and transition audit.
func (r Reader) Detail(ctx context.Context, id uuid.UUID) (OrderDetail, error) {
	var q = r.DB.Pool

	var o, err = r.Orders.Get(ctx, q, id)
	if err != nil {
		return OrderDetail{}, err
	}
	items, err := r.Orders.Items(ctx, q, id)
	if err != nil {
		return OrderDetail{}, err
	}
	offers, err := r.Offers.ListForOrder(ctx, q, id)
	if err != nil {
		return OrderDetail{}, err
	}
	transitions, err := r.Orders.Transitions(ctx, q, id)
	if err != nil {
		return OrderDetail{}, err
	}

	var d = OrderDetail{
		Order: OrderView{
			ID:            o.ID.String(),
			RetailerID:    o.RetailerID.String(),
			State:         string(o.State),
			Total:         money.String(o.Total),
			PaymentMode:   o.PaymentMode,
			FailureReason: o.FailureReason,
			ExpiresAt:     o.ExpiresAt,
			ConfirmedAt:   o.ConfirmedAt,
			DeliveredAt:   o.DeliveredAt,
			CreatedAt:     o.CreatedAt,
			UpdatedAt:     o.UpdatedAt,
		},
		Items:       make([]ItemView, 0, len(items)),
		Offers:      make([]OfferView, 0, len(offers)),
		Transitions: make([]TransitionView, 0, len(transitions)),
	}
	if o.FinalWholesaler != nil {
		d.Order.FinalWholesaler = o.FinalWholesaler.String()
	}
	for _, it := range items {
		d.Items = append(d.Items, ItemView{
			ProductID: it.ProductID.String(),
			Quantity:  it.Quantity,
			UnitPrice: money.String(it.UnitPrice),
			LineTotal: money.String(it.UnitPrice.Mul(money.FromInt(int64(it.Quantity)))),
		})
	}
	for _, of := range offers {
		d.Offers = append(d.Offers, OfferView{
			WholesalerID:   of.WholesalerID.String(),
			PriceQuote:     money.String(of.PriceQuote),
			ETA:            of.ETA,
			StockConfirmed: of.StockConfirmed,
			Status:         string(of.Status),
			CreatedAt:      of.CreatedAt,
		})
	}
	for _, tr := range transitions {
		d.Transitions = append(d.Transitions, TransitionView{
			From:   string(tr.From),
			To:     string(tr.To),
			Actor:  tr.Actor,
			Reason: tr.Reason,
			At:     tr.At,
		})
	}
	return d, nil
}
