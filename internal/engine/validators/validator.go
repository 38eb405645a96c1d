package validators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
	"go.uber.org/zap"
)

// DefaultLargeInvoiceThreshold is the invoice total above which a
// confirmation is required.
const DefaultLargeInvoiceThreshold = 1_000_000

// Config tunes the built-in checks.
type Config struct {
	LargeInvoiceThreshold float64
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{LargeInvoiceThreshold: DefaultLargeInvoiceThreshold}
}

// CheckFunc validates normalized arguments (numbers as json.Number) for one tool.
type CheckFunc func(ctx context.Context, v *Validator, doc map[string]any, catalog engine.Catalog) (engine.SemanticResult, error)

type toolCheck struct {
	schema *jsonschema.Schema // nil when the tool has no argument schema
	check  CheckFunc
}

// Validator runs tool-specific business checks. Tools without a registered
// check are always valid.
type Validator struct {
	cfg    Config
	checks map[string]toolCheck
	logger *zap.Logger
}

// New creates a Validator with the built-in ERP checks registered.
func New(cfg Config, logger *zap.Logger) (*Validator, error) {
	if cfg.LargeInvoiceThreshold <= 0 {
		cfg.LargeInvoiceThreshold = DefaultLargeInvoiceThreshold
	}
	v := &Validator{
		cfg:    cfg,
		checks: make(map[string]toolCheck),
		logger: logger,
	}

	builtins := []struct {
		tool   string
		schema string
		check  CheckFunc
	}{
		{"create_invoice", createInvoiceSchema, checkCreateInvoice},
		{"update_product", updateProductSchema, checkUpdateProduct},
		{"delete_document", deleteDocumentSchema, checkDeleteDocument},
	}
	for _, b := range builtins {
		if err := v.Register(b.tool, b.schema, b.check); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Register adds or replaces the check for a tool. An empty schema skips
// argument shape validation.
func (v *Validator) Register(toolName, schema string, check CheckFunc) error {
	tc := toolCheck{check: check}
	if schema != "" {
		sch, err := compileSchema(toolName, schema)
		if err != nil {
			return fmt.Errorf("Register %s: %w", toolName, err)
		}
		tc.schema = sch
	}
	v.checks[toolName] = tc
	return nil
}

// Validate implements engine.SemanticValidator. It returns an error only when
// ctx is done.
func (v *Validator) Validate(ctx context.Context, req *engine.SemanticRequest) (engine.SemanticResult, error) {
	if err := ctx.Err(); err != nil {
		return engine.SemanticResult{}, err
	}

	tc, ok := v.checks[req.ToolName]
	if !ok {
		return engine.SemanticResult{Valid: true}, nil
	}

	doc, err := normalize(req.Args)
	if err != nil {
		return invalid(fmt.Sprintf("Arguments for %s are not valid JSON: %v", req.ToolName, err)), nil
	}

	if tc.check == nil {
		if res, ok := v.validateShape(req.ToolName, doc); !ok {
			return res, nil
		}
		return engine.SemanticResult{Valid: true}, nil
	}
	return tc.check(ctx, v, doc, req.Catalog)
}

// validateShape checks doc against the tool's schema, if any.
func (v *Validator) validateShape(toolName string, doc map[string]any) (engine.SemanticResult, bool) {
	tc := v.checks[toolName]
	if tc.schema == nil {
		return engine.SemanticResult{}, true
	}
	if err := tc.schema.Validate(any(doc)); err != nil {
		return invalid(fmt.Sprintf("Invalid arguments for %s: %s", toolName, flattenError(err))), false
	}
	return engine.SemanticResult{}, true
}

// lookupFailed logs a catalog error. It returns ctx's error if the lookup
// failed because the request is gone, so the caller can stop.
func (v *Validator) lookupFailed(ctx context.Context, toolName string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	v.logger.Warn("catalog lookup failed, skipping check",
		zap.String("tool_name", toolName),
		zap.Error(err),
	)
	return nil
}

func compileSchema(name, schema string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schema))
	if err != nil {
		return nil, fmt.Errorf("schema unmarshal: %w", err)
	}
	url := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("schema add resource: %w", err)
	}
	return c.Compile(url)
}

// normalize re-decodes args so every number is a json.Number, which is what
// the schema validator and the checks below expect.
func normalize(args map[string]any) (map[string]any, error) {
	if args == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	decoded, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	doc, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("arguments must be an object")
	}
	return doc, nil
}

func flattenError(err error) string {
	lines := strings.Split(strings.TrimSpace(err.Error()), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.Join(lines, "; ")
}

func invalid(msg string) engine.SemanticResult {
	return engine.SemanticResult{Valid: false, Level: engine.LevelError, Message: msg}
}

func warning(msg string) engine.SemanticResult {
	return engine.SemanticResult{Valid: true, Level: engine.LevelWarning, Message: msg}
}

func number(v any) (float64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	return f, err == nil
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
