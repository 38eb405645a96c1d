package engine

import "context"

// ExecutionContext is passed to a tool when the pipeline executes it.
type ExecutionContext struct {
	ToolCallID string
	UserID     string
}

// VerificationCallID is the synthetic tool call id used for verification reads.
const VerificationCallID = "verification"

// Tool is an executable handle from the tool registry.
type Tool interface {
	Name() string
	ReadOnly() bool
	Execute(ctx context.Context, args map[string]any, ec ExecutionContext) (any, error)
}

// ToolSet is the per-request view of available tools.
type ToolSet interface {
	Lookup(name string) (Tool, bool)
	// Catalog returns a live record lookup, or nil when the back-end has none.
	Catalog() Catalog
}

// BackendConfig selects and configures the ERP back-end for a request.
type BackendConfig struct {
	Provider string `json:"provider,omitempty"` // "demo" or "postgres"
	DSN      string `json:"dsn,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// ToolProvider resolves the tool set for a user and back-end.
type ToolProvider interface {
	Tools(ctx context.Context, userID string, backend BackendConfig) (ToolSet, error)
}
