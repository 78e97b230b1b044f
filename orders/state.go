// Package orders implements the order aggregate: its state machine, its
// persistence, and the append-only transition log which audits every state
// change.
package orders

import (
	"github.com/soukworks/souk/fault"
)

// State is an order's lifecycle state.
type State string

const (
	Created            State = "CREATED"
	PendingBids        State = "PENDING_BIDS"
	CreditApproved     State = "CREDIT_APPROVED"
	StockReserved      State = "STOCK_RESERVED"
	WholesalerAccepted State = "WHOLESALER_ACCEPTED"
	Confirmed          State = "CONFIRMED"
	Processing         State = "PROCESSING"
	Packed             State = "PACKED"
	OutForDelivery     State = "OUT_FOR_DELIVERY"
	Shipped            State = "SHIPPED"
	Delivered          State = "DELIVERED"
	Failed             State = "FAILED"
	Cancelled          State = "CANCELLED"
	Returned           State = "RETURNED"
)

// Actors recorded against transitions in the audit log.
const (
	ActorSystem     = "SYSTEM"
	ActorRetailer   = "RETAILER"
	ActorWholesaler = "WHOLESALER"
	ActorAdmin      = "ADMIN"
)

// transitions is the allowed-transition table. A state absent from a
// source's target list is unreachable from it; CANCELLED reaches nothing.
var transitions = map[State][]State{
	Created:            {PendingBids, Cancelled},
	PendingBids:        {CreditApproved, StockReserved, WholesalerAccepted, Cancelled, Failed},
	CreditApproved:     {StockReserved, WholesalerAccepted, Cancelled, Failed},
	StockReserved:      {WholesalerAccepted, Cancelled, Failed},
	WholesalerAccepted: {Confirmed, Cancelled, Failed},
	Confirmed:          {Processing, Cancelled, Failed},
	Processing:         {Packed, Cancelled, Failed},
	Packed:             {OutForDelivery, Cancelled, Failed},
	OutForDelivery:     {Shipped, Delivered, Cancelled, Failed},
	Shipped:            {Delivered, Returned, Cancelled, Failed},
	Delivered:          {Returned},
	Failed:             {Cancelled, PendingBids},
	Cancelled:          {},
	Returned:           {Cancelled, PendingBids},
}

// ParseState maps |s| onto a known State.
func ParseState(s string) (State, error) {
	if _, ok := transitions[State(s)]; !ok {
		return "", fault.New(fault.InvalidInput, "unknown order state %q", s)
	}
	return State(s), nil
}

// CanReach reports whether a single transition from |s| to |to| is allowed.
func (s State) CanReach(to State) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Terminal reports whether |s| admits no further transition.
func (s State) Terminal() bool { return len(transitions[s]) == 0 }

// PreAward reports whether an order in |s| may still be awarded a winner.
func (s State) PreAward() bool {
	switch s {
	case PendingBids, CreditApproved, StockReserved:
		return true
	}
	return false
}

// ValidateTransition returns nil if |from| → |to| is allowed, a
// TERMINAL_STATE fault if |from| is terminal, and INVALID_TRANSITION
// otherwise.
func ValidateTransition(from, to State) error {
	if from.Terminal() {
		return fault.New(fault.TerminalState, "order is %s and cannot change state", from).
			WithDetail("from", string(from)).
			WithDetail("to", string(to))
	}
	if !from.CanReach(to) {
		return fault.New(fault.InvalidTransition, "cannot transition %s to %s", from, to).
			WithDetail("from", string(from)).
			WithDetail("to", string(to))
	}
	return nil
}
