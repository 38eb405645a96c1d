package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
	"github.com/triage-ai/palisade/services/action_guard/internal/erp"
)

type executeFunc func(ctx context.Context, a erp.Adapter, args map[string]any) (any, error)

type tool struct {
	name     string
	readOnly bool
	adapter  erp.Adapter
	exec     executeFunc
}

func (t *tool) Name() string   { return t.name }
func (t *tool) ReadOnly() bool { return t.readOnly }

func (t *tool) Execute(ctx context.Context, args map[string]any, _ engine.ExecutionContext) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	out, err := t.exec(ctx, t.adapter, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.name, err)
	}
	return out, nil
}

var builtinTools = []struct {
	name     string
	readOnly bool
	exec     executeFunc
}{
	{"get_stock", true, execGetStock},
	{"get_products", true, execGetProducts},
	{"get_document", true, execGetDocument},
	{"create_invoice", false, execCreateInvoice},
	{"update_product", false, execUpdateProduct},
	{"delete_document", false, execDeleteDocument},
}

// ToolSet is the set of ERP tools bound to one adapter.
type ToolSet struct {
	adapter erp.Adapter
	tools   map[string]engine.Tool
}

// NewToolSet binds the built-in ERP tools to adapter.
func NewToolSet(adapter erp.Adapter) *ToolSet {
	s := &ToolSet{adapter: adapter, tools: make(map[string]engine.Tool, len(builtinTools))}
	for _, b := range builtinTools {
		s.tools[b.name] = &tool{name: b.name, readOnly: b.readOnly, adapter: adapter, exec: b.exec}
	}
	return s
}

func (s *ToolSet) Lookup(name string) (engine.Tool, bool) {
	t, ok := s.tools[name]
	return t, ok
}

func (s *ToolSet) Catalog() engine.Catalog {
	return erp.Catalog{Adapter: s.adapter}
}

// Execute runs a tool from set by name.
func Execute(ctx context.Context, set engine.ToolSet, name string, args map[string]any, ec engine.ExecutionContext) (any, error) {
	t, ok := set.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t.Execute(ctx, args, ec)
}

var _ engine.ToolSet = (*ToolSet)(nil)

func execGetStock(ctx context.Context, a erp.Adapter, args map[string]any) (any, error) {
	items, err := a.GetStock(ctx, argString(args, "product_name"))
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []erp.StockItem{}
	}
	return items, nil
}

func execGetProducts(ctx context.Context, a erp.Adapter, args map[string]any) (any, error) {
	name := argString(args, "name")
	if name == "" {
		name = argString(args, "filter")
	}
	products, err := a.GetProducts(ctx, erp.Filter{ID: argString(args, "product_id"), Name: name})
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []erp.Product{}
	}
	return products, nil
}

func execGetDocument(ctx context.Context, a erp.Adapter, args map[string]any) (any, error) {
	id := argString(args, "document_id")
	if id == "" {
		return nil, fmt.Errorf("document_id is required")
	}
	return a.GetDocument(ctx, id)
}

func execCreateInvoice(ctx context.Context, a erp.Adapter, args map[string]any) (any, error) {
	raw, _ := args["items"].([]any)
	if len(raw) == 0 {
		return nil, fmt.Errorf("items are required")
	}
	lines := make([]erp.InvoiceLine, 0, len(raw))
	for i, r := range raw {
		item, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item %d is not an object", i+1)
		}
		qty, _ := argFloat(item, "quantity")
		price, _ := argFloat(item, "price")
		lines = append(lines, erp.InvoiceLine{
			ProductName: argString(item, "product_name"),
			Quantity:    qty,
			Price:       price,
		})
	}
	return a.CreateInvoice(ctx, erp.CreateInvoiceRequest{
		CustomerName: argString(args, "customer_name"),
		Items:        lines,
		Comment:      argString(args, "comment"),
	})
}

func execUpdateProduct(ctx context.Context, a erp.Adapter, args map[string]any) (any, error) {
	upd := erp.ProductUpdate{ID: argString(args, "product_id")}
	if upd.ID == "" {
		return nil, fmt.Errorf("product_id is required")
	}
	upd.Name = optString(args, "name")
	upd.SKU = optString(args, "sku")
	upd.Unit = optString(args, "unit")
	if f, ok := argFloat(args, "price"); ok {
		upd.Price = &f
	}
	if f, ok := argFloat(args, "quantity"); ok {
		upd.Quantity = &f
	}
	return a.UpdateProduct(ctx, upd)
}

func execDeleteDocument(ctx context.Context, a erp.Adapter, args map[string]any) (any, error) {
	id := argString(args, "document_id")
	if id == "" {
		return nil, fmt.Errorf("document_id is required")
	}
	if err := a.DeleteDocument(ctx, id); err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "deleted": true}, nil
}

func argString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

func optString(args map[string]any, key string) *string {
	if _, ok := args[key]; !ok {
		return nil
	}
	s := argString(args, key)
	return &s
}

func argFloat(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}
