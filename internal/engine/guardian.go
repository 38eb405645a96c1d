package engine

import (
	"context"
	"fmt"
)

// CheckRequest is the input to a Guardian check.
type CheckRequest struct {
	UserID   string
	ToolName string
	Args     map[string]any
	Rules    []Rule
	Catalog  Catalog
}

// Guardian merges caller rules and built-in semantic checks into one decision.
type Guardian struct {
	rulebook  *Rulebook
	validator SemanticValidator
}

// NewGuardian creates a Guardian.
func NewGuardian(rulebook *Rulebook, validator SemanticValidator) *Guardian {
	return &Guardian{
		rulebook:  rulebook,
		validator: validator,
	}
}

// Check decides whether a tool call may run.
//
// Policy (applied in order, first applicable wins):
//  1. A rule rejects → reject
//  2. Semantic validation fails → reject
//  3. Semantic warning → require_confirmation
//  4. A rule warns or requires confirmation → that action
//  5. Otherwise → allow
func (g *Guardian) Check(ctx context.Context, req *CheckRequest) (Decision, error) {
	verdict := g.rulebook.Evaluate(req.Rules, req.ToolName, req.Args)
	if !verdict.Allowed {
		return Decision{Allowed: false, Action: ActionReject, Message: verdict.Message}, nil
	}

	semantic := SemanticResult{Valid: true}
	if g.validator != nil {
		res, err := g.validator.Validate(ctx, &SemanticRequest{
			ToolName: req.ToolName,
			Args:     req.Args,
			Catalog:  req.Catalog,
		})
		if err != nil {
			return Decision{}, fmt.Errorf("Check: semantic validation: %w", err)
		}
		semantic = res
	}

	if !semantic.Valid {
		return Decision{Allowed: false, Action: ActionReject, Message: semantic.Message}, nil
	}

	if semantic.Level == LevelWarning && semantic.Message != "" {
		return Decision{Allowed: true, Action: ActionRequireConfirmation, Message: semantic.Message}, nil
	}

	if verdict.Action == ActionWarn || verdict.Action == ActionRequireConfirmation {
		return Decision{Allowed: true, Action: verdict.Action, Message: verdict.Message}, nil
	}

	return Decision{Allowed: true, Action: ActionAllow}, nil
}
