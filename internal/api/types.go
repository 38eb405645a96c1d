package api

import "github.com/triage-ai/palisade/services/action_guard/internal/engine"

// --- POST /v1/tool-calls/process ---

// ProcessRequest is the JSON body for POST /v1/tool-calls/process.
type ProcessRequest struct {
	UserID    string               `json:"user_id,omitempty"`
	ToolCalls []engine.ToolCall    `json:"tool_calls"`
	Rules     []engine.Rule        `json:"rules,omitempty"`
	Backend   engine.BackendConfig `json:"backend,omitempty"`
}

// ProcessResponse carries the processed entries in input order, with
// verification reads preceding the call they ground.
type ProcessResponse struct {
	RequestID string                     `json:"request_id"`
	Results   []engine.ProcessedToolCall `json:"results"`
	LatencyMs float64                    `json:"latency_ms"`
}

// --- POST /v1/tool-calls/check ---

// CheckRequest is the JSON body for POST /v1/tool-calls/check.
type CheckRequest struct {
	UserID   string               `json:"user_id,omitempty"`
	ToolCall engine.ToolCall      `json:"tool_call"`
	Rules    []engine.Rule        `json:"rules,omitempty"`
	Backend  engine.BackendConfig `json:"backend,omitempty"`
}

// CheckResponse is the final entry for a single call, without verification reads.
type CheckResponse struct {
	RequestID string                   `json:"request_id"`
	Result    engine.ProcessedToolCall `json:"result"`
	LatencyMs float64                  `json:"latency_ms"`
}

// --- POST /v1/tool-calls/preview ---

// PreviewRequest is the JSON body for POST /v1/tool-calls/preview.
type PreviewRequest struct {
	ToolCall engine.ToolCall `json:"tool_call"`
	Currency string          `json:"currency,omitempty"`
}

// PreviewResponse holds the diff preview; DiffPreview is null when the tool
// has no preview.
type PreviewResponse struct {
	DiffPreview *engine.DiffPreview `json:"diff_preview"`
}

// ErrorResp is the body of every non-2xx response.
type ErrorResp struct {
	Detail string `json:"detail"`
}
