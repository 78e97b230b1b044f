// Package command defines the typed inbound commands of the engine and the
// executor which runs them behind idempotency and launch controls. Inbound
// payloads are loosely typed JSON; Parse closes them into this package's
// variants with field validation at the boundary.
package command

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/soukworks/souk/fault"
	"github.com/soukworks/souk/money"
	"github.com/soukworks/souk/orders"
)

// Wire-level command kinds, matching the webhook event names.
const (
	KindCreateOrder   = "create-order"
	KindAddItem       = "add-item"
	KindConfirmOrder  = "confirm-order"
	KindSubmitOffer   = "submit-offer"
	KindVendorAccept  = "vendor-accept" // provider alias of submit-offer
	KindVendorReject  = "vendor-reject"
	KindCancelOrder   = "cancel-order"
	KindMarkDelivered = "mark-delivered"
	KindForceAward    = "force-award-winner"
)

// Admin reports whether |kind| names an operator command, which passes the
// MAINTENANCE_MODE gate.
func Admin(kind string) bool { return kind == KindForceAward }

// Command is one typed inbound command. The set is closed: every variant
// lives in this package and is produced only by Parse.
type Command interface {
	Kind() string
	Validate() error

	isCommand()
}

// ItemSpec is one order line of a create-order or add-item payload.
type ItemSpec struct {
	ProductID uuid.UUID    `json:"productId"`
	Quantity  int          `json:"quantity"`
	UnitPrice money.Amount `json:"unitPrice"`
}

func (s ItemSpec) validate() error {
	if s.ProductID == uuid.Nil {
		return fault.New(fault.InvalidInput, "productId is required")
	}
	if s.Quantity < 1 {
		return fault.New(fault.InvalidInput, "quantity must be at least 1")
	}
	if s.UnitPrice.IsNegative() {
		return fault.New(fault.InvalidInput, "unitPrice must not be negative")
	}
	return nil
}

// CreateOrder opens a new order and its bidding window.
type CreateOrder struct {
	RetailerID  uuid.UUID  `json:"retailerId"`
	PaymentMode string     `json:"paymentMode"`
	BiddingSec  int        `json:"biddingWindowSec"`
	Items       []ItemSpec `json:"items"`
}

func (CreateOrder) Kind() string { return KindCreateOrder }
func (CreateOrder) isCommand()   {}

func (c CreateOrder) Validate() error {
	if c.RetailerID == uuid.Nil {
		return fault.New(fault.InvalidInput, "retailerId is required")
	}
	if len(c.Items) == 0 {
		return fault.New(fault.InvalidInput, "an order requires at least one item")
	}
	for _, item := range c.Items {
		if err := item.validate(); err != nil {
			return err
		}
	}
	if c.BiddingSec < 0 {
		return fault.New(fault.InvalidInput, "biddingWindowSec must not be negative")
	}
	return nil
}

// Total is the order total implied by the payload items.
func (c CreateOrder) Total() money.Amount {
	var total = money.Zero()
	for _, item := range c.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// AddItem appends a line to an order still in its bidding window.
type AddItem struct {
	OrderID   uuid.UUID    `json:"orderId"`
	ProductID uuid.UUID    `json:"productId"`
	Quantity  int          `json:"quantity"`
	UnitPrice money.Amount `json:"unitPrice"`
}

func (AddItem) Kind() string { return KindAddItem }
func (AddItem) isCommand()   {}

func (c AddItem) Validate() error {
	if c.OrderID == uuid.Nil {
		return fault.New(fault.InvalidInput, "orderId is required")
	}
	return ItemSpec{ProductID: c.ProductID, Quantity: c.Quantity, UnitPrice: c.UnitPrice}.validate()
}

// ConfirmOrder is the awarded wholesaler accepting the order.
type ConfirmOrder struct {
	OrderID      uuid.UUID `json:"orderId"`
	WholesalerID uuid.UUID `json:"wholesalerId"`
}

func (ConfirmOrder) Kind() string { return KindConfirmOrder }
func (ConfirmOrder) isCommand()   {}

func (c ConfirmOrder) Validate() error {
	if c.OrderID == uuid.Nil || c.WholesalerID == uuid.Nil {
		return fault.New(fault.InvalidInput, "orderId and wholesalerId are required")
	}
	return nil
}

// SubmitOffer is a wholesaler bidding on an open order.
type SubmitOffer struct {
	OrderID        uuid.UUID    `json:"orderId"`
	WholesalerID   uuid.UUID    `json:"wholesalerId"`
	PriceQuote     money.Amount `json:"priceQuote"`
	ETA            string       `json:"estimatedEta"`
	StockConfirmed bool         `json:"stockConfirmed"`
}

func (SubmitOffer) Kind() string { return KindSubmitOffer }
func (SubmitOffer) isCommand()   {}

func (c SubmitOffer) Validate() error {
	if c.OrderID == uuid.Nil || c.WholesalerID == uuid.Nil {
		return fault.New(fault.InvalidInput, "orderId and wholesalerId are required")
	}
	if !c.PriceQuote.IsPositive() {
		return fault.New(fault.InvalidInput, "priceQuote must be positive")
	}
	return nil
}

// VendorReject is a wholesaler backing out: of its own open offer before
// the award, or of the whole order after winning it.
type VendorReject struct {
	OrderID      uuid.UUID `json:"orderId"`
	WholesalerID uuid.UUID `json:"wholesalerId"`
	Reason       string    `json:"reason"`
}

func (VendorReject) Kind() string { return KindVendorReject }
func (VendorReject) isCommand()   {}

func (c VendorReject) Validate() error {
	if c.OrderID == uuid.Nil || c.WholesalerID == uuid.Nil {
		return fault.New(fault.InvalidInput, "orderId and wholesalerId are required")
	}
	return nil
}

// CancelOrder cancels an order, releasing any active stock holds and
// reversing the award debit if one was committed.
type CancelOrder struct {
	OrderID uuid.UUID `json:"orderId"`
	Actor   string    `json:"actor"`
	Reason  string    `json:"reason"`
}

func (CancelOrder) Kind() string { return KindCancelOrder }
func (CancelOrder) isCommand()   {}

func (c CancelOrder) Validate() error {
	if c.OrderID == uuid.Nil {
		return fault.New(fault.InvalidInput, "orderId is required")
	}
	switch c.Actor {
	case "", orders.ActorRetailer, orders.ActorAdmin:
		return nil
	}
	return fault.New(fault.InvalidInput, "actor %q cannot cancel orders", c.Actor)
}

// ActorOrDefault returns the cancelling actor, defaulting to the retailer.
func (c CancelOrder) ActorOrDefault() string {
	if c.Actor == "" {
		return orders.ActorRetailer
	}
	return c.Actor
}

// MarkDelivered records delivery of a shipped order and consumes its
// stock holds.
type MarkDelivered struct {
	OrderID uuid.UUID `json:"orderId"`
}

func (MarkDelivered) Kind() string { return KindMarkDelivered }
func (MarkDelivered) isCommand()   {}

func (c MarkDelivered) Validate() error {
	if c.OrderID == uuid.Nil {
		return fault.New(fault.InvalidInput, "orderId is required")
	}
	return nil
}

// ForceAwardWinner is the operator command awarding an order to a chosen
// wholesaler, bypassing ranking but not stock or credit checks.
type ForceAwardWinner struct {
	OrderID      uuid.UUID `json:"orderId"`
	WholesalerID uuid.UUID `json:"wholesalerId"`
}

func (ForceAwardWinner) Kind() string { return KindForceAward }
func (ForceAwardWinner) isCommand()   {}

func (c ForceAwardWinner) Validate() error {
	if c.OrderID == uuid.Nil || c.WholesalerID == uuid.Nil {
		return fault.New(fault.InvalidInput, "orderId and wholesalerId are required")
	}
	return nil
}

// Parse decodes |payload| into the typed command named by |kind| and
// validates its fields. Unknown kinds and malformed payloads fail with
// INVALID_INPUT.
func Parse(kind string, payload []byte) (Command, error) {
	var cmd Command
	switch kind {
	case KindCreateOrder:
		cmd = new(CreateOrder)
	case KindAddItem:
		cmd = new(AddItem)
	case KindConfirmOrder:
		cmd = new(ConfirmOrder)
	case KindSubmitOffer, KindVendorAccept:
		cmd = new(SubmitOffer)
	case KindVendorReject:
		cmd = new(VendorReject)
	case KindCancelOrder:
		cmd = new(CancelOrder)
	case KindMarkDelivered:
		cmd = new(MarkDelivered)
	case KindForceAward:
		cmd = new(ForceAwardWinner)
	default:
		return nil, fault.New(fault.InvalidInput, "unknown command kind %q", kind)
	}

	if len(payload) != 0 {
		if err := json.Unmarshal(payload, cmd); err != nil {
			return nil, fault.Wrap(err, fault.InvalidInput, "decoding %s payload", kind)
		}
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}
