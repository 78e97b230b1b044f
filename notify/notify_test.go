package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []string
}

func (c *captureEmitter) Emit(_ context.Context, orderID uuid.UUID, newState string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, orderID.String()+"->"+newState)
}

func TestDedupedDropsRepeats(t *testing.T) {
	var inner captureEmitter
	var emitter = NewDeduped(&inner)
	var ctx = context.Background()

	var o1, o2 = uuid.New(), uuid.New()
	emitter.Emit(ctx, o1, "WHOLESALER_ACCEPTED")
	emitter.Emit(ctx, o1, "WHOLESALER_ACCEPTED")
	emitter.Emit(ctx, o1, "CONFIRMED")
	emitter.Emit(ctx, o2, "WHOLESALER_ACCEPTED")
	emitter.Emit(ctx, o1, "CONFIRMED")

	require.Equal(t, []string{
		o1.String() + "->WHOLESALER_ACCEPTED",
		o1.String() + "->CONFIRMED",
		o2.String() + "->WHOLESALER_ACCEPTED",
	}, inner.events)
}

func TestEventPayloadShape(t *testing.T) {
	var e = Event{OrderID: uuid.MustParse("e7a2f1c0-0000-4000-8000-000000000001"), NewState: "CONFIRMED"}
	payload, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, "e7a2f1c0-0000-4000-8000-000000000001", decoded["orderId"])
	require.Equal(t, "CONFIRMED", decoded["newState"])
	require.Contains(t, decoded, "timestamp")
}
