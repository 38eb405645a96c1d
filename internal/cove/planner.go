// Package cove plans chain-of-verification reads: the read-only tool calls
// that ground a mutating call in current back-end state before it runs.
package cove

import (
	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
)

// Step is one planned read.
type Step = engine.VerificationStep

// PlanFunc derives the reads for one mutating call. It must not execute
// anything.
type PlanFunc func(args map[string]any) []Step

// Planner maps mutating tool names to their verification plans. A Planner
// is not safe for Register calls concurrent with planning; register at
// startup.
type Planner struct {
	plans map[string]PlanFunc
}

// NewPlanner returns a planner with no plans registered.
func NewPlanner() *Planner {
	return &Planner{plans: make(map[string]PlanFunc)}
}

// NewDefaultPlanner returns a planner with plans for the built-in ERP
// mutations.
func NewDefaultPlanner() *Planner {
	p := NewPlanner()
	p.Register("create_invoice", planCreateInvoice)
	p.Register("update_product", planUpdateProduct)
	p.Register("delete_document", planDeleteDocument)
	return p
}

// Register adds or replaces the plan for toolName.
func (p *Planner) Register(toolName string, fn PlanFunc) {
	p.plans[toolName] = fn
}

// NeedsVerification reports whether toolName has a plan.
func (p *Planner) NeedsVerification(toolName string) bool {
	_, ok := p.plans[toolName]
	return ok
}

// VerificationSteps returns the planned reads for a call, or nil when the
// tool has no plan.
func (p *Planner) VerificationSteps(toolName string, args map[string]any) []Step {
	fn, ok := p.plans[toolName]
	if !ok || fn == nil {
		return nil
	}
	return fn(args)
}

var _ engine.Planner = (*Planner)(nil)

// One stock check per distinct product name, in item order.
func planCreateInvoice(args map[string]any) []Step {
	items, _ := args["items"].([]any)
	seen := make(map[string]struct{}, len(items))
	var steps []Step
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := item["product_name"].(string)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		steps = append(steps, Step{
			ToolName: "get_stock",
			Args:     map[string]any{"product_name": name},
		})
	}
	return steps
}

func planUpdateProduct(args map[string]any) []Step {
	id, ok := args["product_id"]
	if !ok || isBlank(id) {
		return nil
	}
	return []Step{{
		ToolName: "get_products",
		Args:     map[string]any{"product_id": id},
	}}
}

func planDeleteDocument(args map[string]any) []Step {
	id, ok := args["document_id"]
	if !ok || isBlank(id) {
		return nil
	}
	return []Step{{
		ToolName: "get_document",
		Args:     map[string]any{"document_id": id},
	}}
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}
