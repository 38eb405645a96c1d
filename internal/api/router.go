package api

import (
	"net/http"

	"github.com/triage-ai/palisade/services/action_guard/internal/auth"
	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
	"github.com/triage-ai/palisade/services/action_guard/internal/metrics"
	"github.com/triage-ai/palisade/services/action_guard/internal/storage"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Pipeline  *engine.Pipeline
	Previewer engine.Previewer
	Auth      auth.Authenticator
	Writer    storage.EventWriter
	Metrics   *metrics.Metrics // nil disables /metrics
	Logger    *zap.Logger
	// Currency is the preview currency when a request names none.
	Currency string
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Guardrail endpoints (auth required via Bearer agk_ token)
	mux.HandleFunc("POST /v1/tool-calls/process", deps.authMiddleware(deps.handleProcess))
	mux.HandleFunc("POST /v1/tool-calls/check", deps.authMiddleware(deps.handleCheck))
	mux.HandleFunc("POST /v1/tool-calls/preview", deps.authMiddleware(deps.handlePreview))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
