// Package ingress is the HTTP face of the engine: webhook events in,
// order views and health out. All command semantics live in the command
// executor; handlers here only move bytes and map statuses.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.gazette.dev/core/task"

	"github.com/soukworks/souk/command"
	"github.com/soukworks/souk/fault"
)

const (
	// maxBodyBytes bounds inbound webhook payloads.
	maxBodyBytes = 1 << 20
	// requestBudget bounds handler work so responses beat the webhook
	// provider's delivery timeout.
	requestBudget = 10 * time.Second
)

// commandRunner is the slice of the executor the ingress needs, described
// as an interface for easy mocking.
type commandRunner interface {
	Execute(ctx context.Context, key, kind string, payload []byte) command.Outcome
}

// orderReader loads order detail views.
type orderReader interface {
	Detail(ctx context.Context, id uuid.UUID) (OrderDetail, error)
}

// pinger reports storage liveness.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server serves webhook ingress and read APIs.
type Server struct {
	srv *http.Server
}

type args struct {
	exec   commandRunner
	reader orderReader
	ping   pinger
}

// NewServer builds the ingress server bound to |addr|.
func NewServer(addr string, exec commandRunner, reader orderReader, ping pinger) *Server {
	var a = args{exec: exec, reader: reader, ping: ping}
	var router = mux.NewRouter()

	router.
		Path("/v1/webhooks/orders").
		Methods("POST").
		HandlerFunc(a.serveWebhook)
	router.
		Path("/v1/orders/{id}").
		Methods("GET").
		HandlerFunc(a.serveOrder)
	router.
		Path("/healthz").
		Methods("GET").
		HandlerFunc(a.serveHealth)
	router.
		Path("/metrics").
		Methods("GET").
		Handler(promhttp.Handler())

	return &Server{srv: &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: requestBudget + 5*time.Second,
		IdleTimeout:  time.Minute,
	}}
}

// QueueTasks starts the server under |tasks| and closes it gracefully
// when the group is cancelled.
func (s *Server) QueueTasks(tasks *task.Group) {
	tasks.Queue("ingress.Serve", func() error {
		log.WithField("addr", s.srv.Addr).Info("serving webhook ingress")

		var err = s.srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	tasks.Queue("ingress.Shutdown", func() error {
		<-tasks.Context().Done()

		var ctx, cancel = context.WithTimeout(context.Background(), requestBudget)
		defer cancel()
		return s.srv.Shutdown(ctx)
	})
}

// envelope is the wire form of an inbound webhook event.
type envelope struct {
	Type           string          `json:"type"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Payload        json.RawMessage `json:"payload"`
}

func (a args) serveWebhook(w http.ResponseWriter, r *http.Request) {
	requestsTotal.WithLabelValues("webhook").Inc()

	var ctx, cancel = context.WithTimeout(r.Context(), requestBudget)
	defer cancel()

	var body, err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeFault(w, fault.Wrap(err, fault.InvalidInput, "reading event body"))
		return
	}
	var env envelope
	if err = json.Unmarshal(body, &env); err != nil {
		writeFault(w, fault.Wrap(err, fault.InvalidInput, "decoding event envelope"))
		return
	}

	var key = r.Header.Get("Idempotency-Key")
	if key == "" {
		key = env.IdempotencyKey
	}

	var out = a.exec.Execute(ctx, key, env.Type, env.Payload)
	if out.Replay {
		w.Header().Set("Idempotent-Replay", "true")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(out.Code)
	if _, err = w.Write(out.Body); err != nil {
		log.WithFields(log.Fields{"err": err, "client": r.RemoteAddr}).
			Warn("writing webhook response failed")
	}
}

func (a args) serveOrder(w http.ResponseWriter, r *http.Request) {
	requestsTotal.WithLabelValues("order").Inc()

	var id, err = uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeFault(w, fault.New(fault.InvalidInput, "malformed order id"))
		return
	}

	detail, err := a.reader.Detail(r.Context(), id)
	if fault.IsStatus(err, fault.InvalidInput) {
		// Reads report a missing order as 404 rather than the command
		// API's 400.
		writeJSON(w, http.StatusNotFound, errBody(err))
		return
	} else if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a args) serveHealth(w http.ResponseWriter, r *http.Request) {
	var ctx, cancel = context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.ping.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type faultBody struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
}

func errBody(err error) faultBody {
	var msg = "internal error"
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Status != fault.Internal {
		msg = fe.Msg
	}
	return faultBody{Status: string(fault.StatusOf(err)), Message: msg, Detail: fault.DetailOf(err)}
}

func writeFault(w http.ResponseWriter, err error) {
	writeJSON(w, fault.HTTPCode(fault.StatusOf(err)), errBody(err))
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("err", err).Warn("writing response failed")
	}
}
