package ingress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/soukworks/souk/command"
	"github.com/soukworks/souk/fault"
)

type stubExec struct {
	key, kind string
	payload   []byte
	out       command.Outcome
}

func (s *stubExec) Execute(_ context.Context, key, kind string, payload []byte) command.Outcome {
	s.key, s.kind, s.payload = key, kind, payload
	return s.out
}

type stubReader struct {
	detail OrderDetail
	err    error
}

func (s stubReader) Detail(context.Context, uuid.UUID) (OrderDetail, error) {
	return s.detail, s.err
}

type stubPing struct{ err error }

func (s stubPing) Ping(context.Context) error { return s.err }

func serve(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	var rec = httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhookDispatchesEnvelope(t *testing.T) {
	var exec = &stubExec{out: command.Outcome{
		Code: http.StatusOK,
		Body: []byte(`{"status":"OK"}`),
	}}
	var srv = NewServer(":0", exec, stubReader{}, stubPing{})

	var body = `{"type":"create-order","idempotencyKey":"evt-1","payload":{"retailerId":"r1"}}`
	var req = httptest.NewRequest("POST", "/v1/webhooks/orders", strings.NewReader(body))
	var rec = serve(t, srv, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, `{"status":"OK"}`, rec.Body.String())
	require.Empty(t, rec.Header().Get("Idempotent-Replay"))

	require.Equal(t, "evt-1", exec.key)
	require.Equal(t, "create-order", exec.kind)
	require.JSONEq(t, `{"retailerId":"r1"}`, string(exec.payload))
}

func TestWebhookPrefersHeaderKey(t *testing.T) {
	var exec = &stubExec{out: command.Outcome{Code: http.StatusOK, Body: []byte(`{}`)}}
	var srv = NewServer(":0", exec, stubReader{}, stubPing{})

	var body = `{"type":"confirm-order","idempotencyKey":"env-key","payload":{}}`
	var req = httptest.NewRequest("POST", "/v1/webhooks/orders", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "hdr-key")
	serve(t, srv, req)

	require.Equal(t, "hdr-key", exec.key)
}

func TestWebhookMarksReplays(t *testing.T) {
	var exec = &stubExec{out: command.Outcome{
		Code:   http.StatusUnprocessableEntity,
		Body:   []byte(`{"status":"INSUFFICIENT_STOCK"}`),
		Replay: true,
	}}
	var srv = NewServer(":0", exec, stubReader{}, stubPing{})

	var body = `{"type":"create-order","idempotencyKey":"evt-9","payload":{}}`
	var rec = serve(t, srv, httptest.NewRequest("POST", "/v1/webhooks/orders", strings.NewReader(body)))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "true", rec.Header().Get("Idempotent-Replay"))
}

func TestWebhookRejectsMalformedEnvelope(t *testing.T) {
	var exec = &stubExec{}
	var srv = NewServer(":0", exec, stubReader{}, stubPing{})

	var rec = serve(t, srv, httptest.NewRequest("POST", "/v1/webhooks/orders", strings.NewReader("{not json")))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_INPUT")
	require.Empty(t, exec.kind)
}

func TestOrderDetailRoute(t *testing.T) {
	var id = uuid.New()
	var reader = stubReader{detail: OrderDetail{
		Order: OrderView{
			ID:        id.String(),
			State:     "CONFIRMED",
			Total:     "950.00",
			CreatedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		},
		Items:       []ItemView{{ProductID: uuid.NewString(), Quantity: 10, UnitPrice: "95.00", LineTotal: "950.00"}},
		Offers:      []OfferView{},
		Transitions: []TransitionView{},
	}}
	var srv = NewServer(":0", &stubExec{}, reader, stubPing{})

	var rec = serve(t, srv, httptest.NewRequest("GET", "/v1/orders/"+id.String(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"state":"CONFIRMED"`)
	require.Contains(t, rec.Body.String(), `"totalAmount":"950.00"`)
}

func TestOrderNotFoundMapsTo404(t *testing.T) {
	var id = uuid.New()
	var reader = stubReader{err: fault.New(fault.InvalidInput, "order %s not found", id)}
	var srv = NewServer(":0", &stubExec{}, reader, stubPing{})

	var rec = serve(t, srv, httptest.NewRequest("GET", "/v1/orders/"+id.String(), nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "not found")
}

func TestOrderRejectsMalformedID(t *testing.T) {
	var srv = NewServer(":0", &stubExec{}, stubReader{}, stubPing{})

	var rec = serve(t, srv, httptest.NewRequest("GET", "/v1/orders/not-a-uuid", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "malformed order id")
}

func TestHealthReflectsStorage(t *testing.T) {
	var srv = NewServer(":0", &stubExec{}, stubReader{}, stubPing{})
	var rec = serve(t, srv, httptest.NewRequest("GET", "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	srv = NewServer(":0", &stubExec{}, stubReader{}, stubPing{err: context.DeadlineExceeded})
	rec = serve(t, srv, httptest.NewRequest("GET", "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "unhealthy")
}
