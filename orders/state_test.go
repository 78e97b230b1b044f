package orders

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soukworks/souk/fault"
)

func TestAllowedTransitions(t *testing.T) {
	var cases = []struct {
		from, to State
		ok       bool
	}{
		{Created, PendingBids, true},
		{Created, Cancelled, true},
		{Created, Confirmed, false},
		{PendingBids, WholesalerAccepted, true},
		{PendingBids, CreditApproved, true},
		{PendingBids, Delivered, false},
		{CreditApproved, StockReserved, true},
		{StockReserved, WholesalerAccepted, true},
		{WholesalerAccepted, Confirmed, true},
		{WholesalerAccepted, PendingBids, false}, // Re-award goes through FAILED.
		{WholesalerAccepted, Failed, true},
		{Confirmed, Processing, true},
		{Processing, Packed, true},
		{Packed, OutForDelivery, true},
		{OutForDelivery, Shipped, true},
		{OutForDelivery, Delivered, true},
		{Shipped, Delivered, true},
		{Shipped, Returned, true},
		{Delivered, Returned, true},
		{Delivered, Processing, false},
		{Failed, PendingBids, true},
		{Failed, Cancelled, true},
		{Returned, PendingBids, true},
		{Returned, Cancelled, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, tc.from.CanReach(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCancelledIsTerminal(t *testing.T) {
	require.True(t, Cancelled.Terminal())

	// No other state is terminal, and no state reaches out of CANCELLED.
	for from := range transitions {
		if from != Cancelled {
			require.False(t, from.Terminal(), "%s", from)
		}
		require.False(t, Cancelled.CanReach(from), "CANCELLED -> %s", from)
	}

	var err = ValidateTransition(Cancelled, PendingBids)
	require.Equal(t, fault.TerminalState, fault.StatusOf(err))
}

func TestValidateTransitionFaults(t *testing.T) {
	require.NoError(t, ValidateTransition(PendingBids, WholesalerAccepted))

	var err = ValidateTransition(Delivered, Processing)
	require.Equal(t, fault.InvalidTransition, fault.StatusOf(err))
	require.Equal(t, "DELIVERED", fault.DetailOf(err)["from"])
	require.Equal(t, "PROCESSING", fault.DetailOf(err)["to"])
}

func TestPreAwardStates(t *testing.T) {
	for from, preAward := range map[State]bool{
		Created:            false,
		PendingBids:        true,
		CreditApproved:     true,
		StockReserved:      true,
		WholesalerAccepted: false,
		Confirmed:          false,
		Delivered:          false,
		Cancelled:          false,
	} {
		require.Equal(t, preAward, from.PreAward(), "%s", from)
	}
}

func TestParseState(t *testing.T) {
	s, err := ParseState("PENDING_BIDS")
	require.NoError(t, err)
	require.Equal(t, PendingBids, s)

	_, err = ParseState("SHOPPING")
	require.Equal(t, fault.InvalidInput, fault.StatusOf(err))
}

func TestEveryStateReachesOnlyKnownStates(t *testing.T) {
	for from, targets := range transitions {
		for _, to := range targets {
			_, ok := transitions[to]
			require.True(t, ok, "%s -> %s targets an unknown state", from, to)
		}
	}
}
