// Package preview renders before/after projections of tool calls so a user
// can see what a mutation will change before confirming it.
package preview

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
)

type (
	Diff    = engine.DiffPreview
	Context = engine.PreviewContext
)

// HandlerFunc builds the preview for one tool. Returning nil means the call
// has nothing to preview.
type HandlerFunc func(call engine.ToolCall, pctx Context) *Diff

// Previewer dispatches on tool name to a registered handler.
type Previewer struct {
	handlers map[string]HandlerFunc
}

// New returns a previewer with the built-in ERP handlers registered.
func New() *Previewer {
	p := &Previewer{handlers: make(map[string]HandlerFunc)}
	p.Register("create_invoice", previewCreateInvoice)
	p.Register("get_stock", previewGetStock)
	p.Register("update_product", previewUpdateProduct)
	p.Register("delete_document", previewDeleteDocument)
	return p
}

// Register adds or replaces the handler for toolName. Register at startup;
// it is not safe to call concurrently with Generate.
func (p *Previewer) Register(toolName string, fn HandlerFunc) {
	p.handlers[toolName] = fn
}

// Generate returns the preview for call, or nil for unknown tools and calls
// missing the arguments a preview needs.
func (p *Previewer) Generate(call engine.ToolCall, pctx Context) *Diff {
	fn, ok := p.handlers[call.ToolName]
	if !ok || fn == nil {
		return nil
	}
	if pctx.Currency == "" {
		pctx.Currency = engine.DefaultCurrency
	}
	return fn(call, pctx)
}

var _ engine.Previewer = (*Previewer)(nil)

func previewCreateInvoice(call engine.ToolCall, pctx Context) *Diff {
	items, _ := call.Args["items"].([]any)
	if len(items) == 0 {
		return nil
	}

	d := &Diff{Before: map[string]any{}, After: map[string]any{}}
	for i, raw := range items {
		item, _ := raw.(map[string]any)
		key := "item_" + strconv.Itoa(i)
		d.Before[key] = "Not created"
		d.After[key] = fmt.Sprintf("%s: %s × %s %s",
			render(item["product_name"]),
			render(item["quantity"]),
			render(item["price"]),
			pctx.Currency,
		)
	}

	if customer, ok := call.Args["customer_name"]; ok && truthy(customer) {
		d.Before["customer"] = "Not set"
		d.After["customer"] = customer
	}
	return d
}

// Reads are always previewed.
func previewGetStock(call engine.ToolCall, _ Context) *Diff {
	query := any("N/A")
	if name, ok := call.Args["product_name"]; ok && truthy(name) {
		query = name
	}
	result := call.ResultSummary
	if result == "" {
		result = "No results"
	}
	return &Diff{
		Before: map[string]any{"query": query},
		After:  map[string]any{"result": result},
	}
}

func previewUpdateProduct(call engine.ToolCall, _ Context) *Diff {
	if id, ok := call.Args["product_id"]; !ok || !truthy(id) {
		return nil
	}
	d := &Diff{Before: map[string]any{}, After: map[string]any{}}
	for k, v := range call.Args {
		if k == "product_id" {
			continue
		}
		d.Before[k] = "(existing value)"
		d.After[k] = v
	}
	return d
}

func previewDeleteDocument(call engine.ToolCall, _ Context) *Diff {
	id, ok := call.Args["document_id"]
	if !ok || !truthy(id) {
		return nil
	}
	docType := any("Unknown")
	if t, ok := call.Args["document_type"]; ok && truthy(t) {
		docType = t
	}
	return &Diff{
		Before: map[string]any{"status": "Document exists", "id": id, "type": docType},
		After:  map[string]any{"status": "DELETED", "id": id, "type": docType},
	}
}

// truthy treats nil, false, zero and "" as absent.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case json.Number:
		return t.String() != "0"
	}
	return true
}

func render(v any) string {
	switch t := v.(type) {
	case nil:
		return "N/A"
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return t.String()
	}
	return fmt.Sprint(v)
}
