// Package fault defines the stable error taxonomy of the fulfillment engine.
//
// Every error which crosses a component boundary is classified with a Status.
// The command API maps Status values to wire responses, and the transaction
// runner uses them to distinguish transient failures (retried internally)
// from terminal ones (surfaced to the caller).
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Status enumerates the failure classes of the engine.
type Status string

const (
	// OK is the success status. It never appears inside an Error.
	OK Status = "OK"
	// InvalidInput marks payload or idempotency-key format violations.
	InvalidInput Status = "INVALID_INPUT"
	// InvalidTransition marks a state-machine transition not in the allowed set.
	InvalidTransition Status = "INVALID_TRANSITION"
	// TerminalState marks an attempted transition out of CANCELLED.
	TerminalState Status = "TERMINAL_STATE"
	// InsufficientStock marks a reservation shortfall. Detail carries the
	// per-item breakdown.
	InsufficientStock Status = "INSUFFICIENT_STOCK"
	// CreditLimitExceeded marks a ledger append which would breach the
	// effective credit limit.
	CreditLimitExceeded Status = "CREDIT_LIMIT_EXCEEDED"
	// CreditPaused marks a blocked (retailer, wholesaler) credit pair.
	CreditPaused Status = "CREDIT_PAUSED"
	// DecisionConflict marks an award whose preconditions no longer hold.
	// Callers may retry.
	DecisionConflict Status = "DECISION_CONFLICT"
	// NoEligibleWinner marks an exhausted candidate list.
	NoEligibleWinner Status = "NO_ELIGIBLE_WINNER"
	// Unavailable marks a command refused by a launch-control flag, such as
	// EMERGENCY_STOP or READONLY_MODE. Callers should retry later.
	Unavailable Status = "UNAVAILABLE"
	// TransientTx marks a serialization or deadlock failure. It is recovered
	// by the transaction runner and observed by callers only after retries
	// are exhausted.
	TransientTx Status = "TRANSIENT_TX"
	// Timeout marks an exceeded per-attempt transaction deadline.
	Timeout Status = "TIMEOUT"
	// Internal marks any unclassified failure.
	Internal Status = "INTERNAL"
)

// Error is a classified engine error. Detail is optional structured context,
// serialized into command responses (for example the per-item stock
// breakdown of an INSUFFICIENT_STOCK failure).
type Error struct {
	Status Status
	Msg    string
	Detail map[string]interface{}

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Status, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with |status| and a formatted message.
func New(status Status, format string, args ...interface{}) *Error {
	return &Error{Status: status, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error with |status| which wraps |cause|.
func Wrap(cause error, status Status, format string, args ...interface{}) *Error {
	return &Error{Status: status, Msg: fmt.Sprintf(format, args...), cause: cause}
}

// WithDetail attaches a structured detail key to the Error and returns it.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]interface{})
	}
	e.Detail[key] = value
	return e
}

// StatusOf classifies an arbitrary error. A nil error is OK, a wrapped *Error
// reports its Status, and everything else is Internal.
func StatusOf(err error) Status {
	if err == nil {
		return OK
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status
	}
	return Internal
}

// DetailOf returns the structured detail of a classified error, or nil.
func DetailOf(err error) map[string]interface{} {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Detail
	}
	return nil
}

// IsStatus reports whether |err| classifies as |status|.
func IsStatus(err error, status Status) bool { return StatusOf(err) == status }

// Transient reports whether |err| should be retried by the transaction
// runner rather than surfaced.
func Transient(err error) bool {
	switch StatusOf(err) {
	case TransientTx, Timeout:
		return true
	}
	return false
}

// HTTPCode maps a Status to the response code used by the webhook ingress.
// Transient statuses map to 503 so that the provider retries delivery.
func HTTPCode(status Status) int {
	switch status {
	case OK:
		return http.StatusOK
	case InvalidInput:
		return http.StatusBadRequest
	case InvalidTransition, TerminalState, DecisionConflict:
		return http.StatusConflict
	case InsufficientStock, CreditLimitExceeded, CreditPaused, NoEligibleWinner:
		return http.StatusUnprocessableEntity
	case Unavailable, TransientTx, Timeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
