package engine

import "context"

// Action is the guardrail outcome attached to every processed tool call.
type Action string

const (
	ActionAllow               Action = "allow"
	ActionReject              Action = "reject"
	ActionWarn                Action = "warn"
	ActionRequireConfirmation Action = "require_confirmation"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionAllow, ActionReject, ActionWarn, ActionRequireConfirmation:
		return true
	}
	return false
}

// ToolCall is a tool invocation proposed by the agent. Read-only to the pipeline.
type ToolCall struct {
	ToolCallID    string         `json:"tool_call_id"`
	ToolName      string         `json:"tool_name"`
	Args          map[string]any `json:"args"`
	ResultSummary string         `json:"result_summary,omitempty"`
}

// Decision is the merged outcome of rule and semantic checks for one call.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Action  Action `json:"action"`
	Message string `json:"message,omitempty"`
}

// SemanticLevel qualifies a semantic validation result.
type SemanticLevel string

const (
	LevelWarning SemanticLevel = "warning"
	LevelError   SemanticLevel = "error"
)

// SemanticResult is the outcome of built-in, tool-specific validation.
// Valid with LevelWarning means allowed but flagged for confirmation.
type SemanticResult struct {
	Valid   bool          `json:"valid"`
	Level   SemanticLevel `json:"level,omitempty"`
	Message string        `json:"message,omitempty"`
}

// SemanticRequest carries everything a semantic check may look at.
type SemanticRequest struct {
	ToolName string
	Args     map[string]any
	Catalog  Catalog // nil when no back-end is reachable
}

// SemanticValidator applies built-in business checks that generic rules cannot express.
type SemanticValidator interface {
	Validate(ctx context.Context, req *SemanticRequest) (SemanticResult, error)
}

// Catalog is a live, read-only view of back-end records used by semantic checks.
type Catalog interface {
	ProductExists(ctx context.Context, productID string) (bool, error)
	ProductNameKnown(ctx context.Context, name string) (bool, error)
}

// DiffPreview is a before/after projection of a call's effect.
// Either both maps are populated or the preview is nil.
type DiffPreview struct {
	Before map[string]any `json:"before"`
	After  map[string]any `json:"after"`
}

// PreviewContext holds presentation settings for diff previews.
type PreviewContext struct {
	Currency string
}

// Previewer produces diff previews. A nil result means no preview is available.
type Previewer interface {
	Generate(call ToolCall, pctx PreviewContext) *DiffPreview
}

// VerificationStep is a read-only call executed before a mutating call.
type VerificationStep struct {
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args"`
}

// Planner maps mutating tools to the read-only calls that ground them.
type Planner interface {
	NeedsVerification(toolName string) bool
	VerificationSteps(toolName string, args map[string]any) []VerificationStep
}

// ProcessedToolCall is the pipeline's unit of output.
type ProcessedToolCall struct {
	ToolCallID     string         `json:"tool_call_id,omitempty"`
	ToolName       string         `json:"tool_name"`
	Args           map[string]any `json:"args"`
	ResultSummary  string         `json:"result_summary"`
	Confidence     float64        `json:"confidence"`
	Action         Action         `json:"action"`
	Message        string         `json:"message,omitempty"`
	DiffPreview    *DiffPreview   `json:"diff_preview,omitempty"`
	IsVerification bool           `json:"is_verification,omitempty"`
}
