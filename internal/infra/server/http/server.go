// Package httpserver exposes the inbound webhook delivery endpoint and maps
// engine outcomes onto the response contract the payment processor's retry
// policy depends on.
package httpserver

import (
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hostwell/paygate/errs"
	"github.com/hostwell/paygate/internal/dispatch"
	"github.com/hostwell/paygate/internal/domain/event"
	"github.com/hostwell/paygate/internal/engine"
	"github.com/hostwell/paygate/internal/observability"
)

const (
	maxBodyBytes int64 = 1 << 20 // 1 MiB

	webhookPath = "/webhooks/payment"
	healthPath  = "/healthz"

	signatureHeader = "Stripe-Signature"
)

// errEngineUnconfigured is returned while dependencies are still being wired;
// 503 keeps the processor retrying instead of dropping the delivery.
var errEngineUnconfigured = errs.New("webhook/server", errs.CodeUnavailable,
	errs.WithHTTP(http.StatusServiceUnavailable),
	errs.WithMessage("webhook engine not configured"))

// Deps wires the webhook endpoint's collaborators.
type Deps struct {
	Verifier    Verifier
	Coordinator *engine.Coordinator
	Router      *dispatch.Router
	Recorder    *engine.Recorder
	StaleAfter  time.Duration
	// Limiter throttles inbound deliveries; nil disables rate limiting.
	Limiter *rate.Limiter
}

type webhookServer struct {
	deps Deps
}

// NewHandler creates the HTTP handler serving webhook deliveries.
func NewHandler(deps Deps) http.Handler {
	server := &webhookServer{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc(webhookPath, server.handleWebhook)
	mux.HandleFunc(healthPath, server.handleHealth)
	return mux
}

func (s *webhookServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *webhookServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Limiter != nil && !s.deps.Limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "delivery rate exceeded")
		return
	}
	if s.deps.Verifier == nil || s.deps.Coordinator == nil || s.deps.Router == nil || s.deps.Recorder == nil {
		writeError(w, errs.HTTPStatus(errEngineUnconfigured, http.StatusInternalServerError), errEngineUnconfigured.Message)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	evt, err := s.deps.Verifier.Verify(payload, r.Header.Get(signatureHeader))
	if err != nil {
		observability.Log().Info("webhook delivery rejected",
			observability.Err(err))
		writeError(w, errs.HTTPStatus(err, http.StatusBadRequest), "signature verification failed")
		return
	}

	correlationID := uuid.NewString()
	ctx := r.Context()

	duplicate, err := s.deps.Coordinator.TryClaim(ctx, evt, correlationID, s.deps.StaleAfter)
	if err != nil {
		observability.Log().Error("webhook claim failed",
			observability.String("event_id", evt.ID),
			observability.String("correlation_id", correlationID),
			observability.Err(err))
		writeError(w, http.StatusInternalServerError, "claim failed")
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":         "duplicate",
			"event_id":       evt.ID,
			"correlation_id": correlationID,
		})
		return
	}

	start := time.Now()
	handlerErr := s.routeSafely(r, evt)
	duration := time.Since(start)

	if handlerErr != nil {
		if dispatch.IsUnroutable(handlerErr) {
			// Unknown event types are acknowledged so the processor stops
			// redelivering something we will never handle.
			observability.Log().Info("webhook event unroutable",
				observability.String("event_id", evt.ID),
				observability.String("event_type", evt.Type),
				observability.String("correlation_id", correlationID))
			s.deps.Recorder.MarkProcessed(ctx, evt, correlationID, duration)
			writeJSON(w, http.StatusOK, map[string]string{
				"status":         "ignored",
				"event_id":       evt.ID,
				"correlation_id": correlationID,
			})
			return
		}
		s.deps.Recorder.MarkFailed(ctx, evt, correlationID, handlerErr)
		writeError(w, http.StatusInternalServerError, "event handling failed")
		return
	}

	s.deps.Recorder.MarkProcessed(ctx, evt, correlationID, duration)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "processed",
		"event_id":       evt.ID,
		"correlation_id": correlationID,
	})
}

// routeSafely converts handler panics into errors so the claim always reaches
// a terminal state instead of dangling in processing.
func (s *webhookServer) routeSafely(r *http.Request, evt event.Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = errs.New("webhook/handler", errs.CodeHandler,
				errs.WithMessage(fmt.Sprintf("handler panic: %v", recovered)),
				errs.WithEventID(evt.ID))
		}
	}()
	return s.deps.Router.Route(r.Context(), evt)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoded, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = w.Write(encoded)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}
