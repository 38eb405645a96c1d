package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/triage-ai/palisade/services/action_guard/internal/auth"
	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
	"github.com/triage-ai/palisade/services/action_guard/internal/storage"
)

// handleProcess implements POST /v1/tool-calls/process.
func (d *Dependencies) handleProcess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ProcessRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	for i, call := range req.ToolCalls {
		if call.ToolName == "" {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: fmt.Sprintf("tool_calls[%d].tool_name is required", i)})
			return
		}
	}

	p := auth.PrincipalFromContext(r.Context())
	preq := &engine.Request{
		UserID:  userID(req.UserID, p),
		Rules:   req.Rules,
		Backend: req.Backend,
	}

	results := d.Pipeline.ProcessTools(r.Context(), req.ToolCalls, preq)
	if results == nil {
		results = []engine.ProcessedToolCall{}
	}

	requestID := uuid.New().String()
	latency := time.Since(start)
	d.writeEvents(r.Context(), requestID, preq, latency, results)

	writeJSON(w, http.StatusOK, ProcessResponse{
		RequestID: requestID,
		Results:   results,
		LatencyMs: millis(latency),
	})
}

// handleCheck implements POST /v1/tool-calls/check.
func (d *Dependencies) handleCheck(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req CheckRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.ToolCall.ToolName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tool_call.tool_name is required"})
		return
	}

	p := auth.PrincipalFromContext(r.Context())
	preq := &engine.Request{
		UserID:  userID(req.UserID, p),
		Rules:   req.Rules,
		Backend: req.Backend,
	}

	result := d.Pipeline.ExecuteTool(r.Context(), req.ToolCall, preq)

	requestID := uuid.New().String()
	latency := time.Since(start)
	d.writeEvents(r.Context(), requestID, preq, latency, []engine.ProcessedToolCall{result})

	writeJSON(w, http.StatusOK, CheckResponse{
		RequestID: requestID,
		Result:    result,
		LatencyMs: millis(latency),
	})
}

// handlePreview implements POST /v1/tool-calls/preview.
func (d *Dependencies) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.ToolCall.ToolName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tool_call.tool_name is required"})
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = d.Currency
	}
	if currency == "" {
		currency = engine.DefaultCurrency
	}
	diff := d.Previewer.Generate(req.ToolCall, engine.PreviewContext{Currency: currency})
	writeJSON(w, http.StatusOK, PreviewResponse{DiffPreview: diff})
}

// writeEvents hands one audit event per guarded call to the event writer.
func (d *Dependencies) writeEvents(ctx context.Context, requestID string, req *engine.Request, latency time.Duration, results []engine.ProcessedToolCall) {
	if d.Writer == nil {
		return
	}
	meta := storage.EventMeta{
		RequestID: requestID,
		UserID:    req.UserID,
		Provider:  providerName(req.Backend),
		Source:    "http",
		Latency:   latency,
	}
	if p := auth.PrincipalFromContext(ctx); p != nil {
		meta.TenantID = p.TenantID
		meta.PrincipalUserID = p.UserID
	}
	for _, ev := range storage.EventsFromResults(meta, results) {
		d.Writer.Write(ev)
	}
}

// userID prefers the caller-supplied end-user id and falls back to the
// authenticated principal.
func userID(requested string, p *auth.Principal) string {
	if requested != "" {
		return requested
	}
	if p != nil {
		return p.UserID
	}
	return ""
}

func providerName(b engine.BackendConfig) string {
	if b.Provider == "" {
		return "demo"
	}
	return b.Provider
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
