package command

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/soukworks/souk/bids"
	"github.com/soukworks/souk/decision"
	"github.com/soukworks/souk/fault"
	"github.com/soukworks/souk/idempotency"
	"github.com/soukworks/souk/ledger"
	"github.com/soukworks/souk/money"
	"github.com/soukworks/souk/notify"
	"github.com/soukworks/souk/orders"
	"github.com/soukworks/souk/stock"
	"github.com/soukworks/souk/store"
)

// DefaultBiddingWindow is how long orders accept offers when the payload
// does not say.
const DefaultBiddingWindow = time.Hour

// Executor runs typed commands through launch-control gates, the
// idempotency store, and serializable handler transactions.
type Executor struct {
	DB      *store.DB
	Runner  store.Transactor
	Idem    *idempotency.Store
	Flags   *store.Flags
	Engine  *decision.Engine
	Emitter notify.Emitter

	Orders orders.Store
	Offers bids.Store
	Stock  stock.Ledger
	Ledger ledger.Ledger
}

// Outcome is the wire-level result of a command execution.
type Outcome struct {
	Code   int
	Body   []byte
	Replay bool
}

// Response is the JSON body of every command outcome.
type Response struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
	Order   *OrderView             `json:"order,omitempty"`
}

// OrderView is the order snapshot returned with command responses.
type OrderView struct {
	ID              string     `json:"orderId"`
	RetailerID      string     `json:"retailerId"`
	State           string     `json:"state"`
	Total           string     `json:"totalAmount"`
	PaymentMode     string     `json:"paymentMode,omitempty"`
	FinalWholesaler string     `json:"finalWholesaler,omitempty"`
	FailureReason   string     `json:"failureReason,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func viewOf(o orders.Order) *OrderView {
	var v = &OrderView{
		ID:            o.ID.String(),
		RetailerID:    o.RetailerID.String(),
		State:         string(o.State),
		Total:         money.String(o.Total),
		PaymentMode:   o.PaymentMode,
		FailureReason: o.FailureReason,
		ExpiresAt:     o.ExpiresAt,
		CreatedAt:     o.CreatedAt,
	}
	if o.FinalWholesaler != nil {
		v.FinalWholesaler = o.FinalWholesaler.String()
	}
	return v
}

// Execute runs one idempotent command. Replayed keys return the stored
// response byte-for-byte. Deterministic decisions (including validation
// failures) are recorded against the key; transient failures abandon the
// claim so the provider's retry re-executes.
func (x *Executor) Execute(ctx context.Context, key, kind string, payload []byte) Outcome {
	commandsTotal.WithLabelValues(kind).Inc()

	if x.Flags.Enabled(ctx, store.FlagEmergencyStop) {
		return x.refuse(kind, "emergency stop is active")
	}

	var replay, _, err = x.Idem.Begin(ctx, key, kind, payload)
	if err != nil {
		return outcomeFor(err, nil)
	}
	if replay != nil {
		replaysTotal.Inc()
		return Outcome{Code: replay.Status, Body: replay.Body, Replay: true}
	}

	if x.Flags.Enabled(ctx, store.FlagReadonlyMode) {
		x.Idem.Abandon(ctx, key)
		return x.refuse(kind, "service is in read-only mode")
	}
	if !Admin(kind) && x.Flags.Enabled(ctx, store.FlagMaintenanceMode) {
		x.Idem.Abandon(ctx, key)
		return x.refuse(kind, "service is in maintenance")
	}

	cmd, err := Parse(kind, payload)
	if err != nil {
		// A malformed payload is a deterministic decision: record it so
		// replays of the same request observe the same refusal.
		var out = outcomeFor(err, nil)
		x.complete(ctx, key, out)
		return out
	}

	var o, execErr = x.dispatch(ctx, cmd)
	if fault.Transient(execErr) {
		x.Idem.Abandon(ctx, key)
		return outcomeFor(execErr, nil)
	}
	if execErr != nil {
		log.WithFields(log.Fields{
			"kind":   kind,
			"key":    key,
			"status": fault.StatusOf(execErr),
			"err":    execErr,
		}).Warn("command failed")
	}

	var out = outcomeFor(execErr, &o)
	x.complete(ctx, key, out)
	return out
}

func (x *Executor) dispatch(ctx context.Context, cmd Command) (orders.Order, error) {
	switch c := cmd.(type) {
	case *CreateOrder:
		return x.createOrder(ctx, *c)
	case *AddItem:
		return x.addItem(ctx, *c)
	case *ConfirmOrder:
		return x.confirmOrder(ctx, *c)
	case *SubmitOffer:
		return x.submitOffer(ctx, *c)
	case *VendorReject:
		return x.vendorReject(ctx, *c)
	case *CancelOrder:
		return x.cancelOrder(ctx, *c)
	case *MarkDelivered:
		return x.markDelivered(ctx, *c)
	case *ForceAwardWinner:
		return x.forceAward(ctx, *c)
	}
	return orders.Order{}, fault.New(fault.Internal, "unhandled command %s", cmd.Kind())
}

func (x *Executor) complete(ctx context.Context, key string, out Outcome) {
	if err := x.Idem.Complete(ctx, key, out.Code, out.Body); err != nil {
		log.WithFields(log.Fields{"key": key, "err": err}).
			Warn("failed to store idempotent response")
	}
}

func (x *Executor) refuse(kind, msg string) Outcome {
	refusalsTotal.WithLabelValues(kind).Inc()
	return outcomeFor(fault.New(fault.Unavailable, "%s", msg), nil)
}

// outcomeFor renders an error (or success, when nil) as the wire outcome.
// |o| is included as the order view when it names a real order.
func outcomeFor(err error, o *orders.Order) Outcome {
	var resp Response
	var code int

	if err == nil {
		code, resp.Status = http.StatusOK, string(fault.OK)
	} else {
		var status = fault.StatusOf(err)
		code = fault.HTTPCode(status)
		resp.Status = string(status)
		resp.Message = publicMessage(err)
		resp.Detail = fault.DetailOf(err)
	}
	if o != nil && o.ID != uuid.Nil {
		resp.Order = viewOf(*o)
	}

	var body, mErr = json.Marshal(resp)
	if mErr != nil {
		return Outcome{Code: http.StatusInternalServerError, Body: []byte(`{"status":"INTERNAL"}`)}
	}
	return Outcome{Code: code, Body: body}
}

// publicMessage keeps unclassified error text out of wire responses.
func publicMessage(err error) string {
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Status != fault.Internal {
		return fe.Msg
	}
	return "internal error"
}
