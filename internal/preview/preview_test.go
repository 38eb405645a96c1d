package preview

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
)

func TestGetStockPreview(t *testing.T) {
	p := New()
	got := p.Generate(engine.ToolCall{
		ToolName:      "get_stock",
		Args:          map[string]any{"product_name": "Widget"},
		ResultSummary: "Widget: 50 units in stock",
	}, Context{})

	want := &Diff{
		Before: map[string]any{"query": "Widget"},
		After:  map[string]any{"result": "Widget: 50 units in stock"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("preview mismatch (-want +got):\n%s", diff)
	}
}

func TestGetStockPreview_Defaults(t *testing.T) {
	got := New().Generate(engine.ToolCall{ToolName: "get_stock", Args: map[string]any{}}, Context{})
	want := &Diff{
		Before: map[string]any{"query": "N/A"},
		After:  map[string]any{"result": "No results"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("preview mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteDocumentPreview(t *testing.T) {
	p := New()
	got := p.Generate(engine.ToolCall{
		ToolName: "delete_document",
		Args:     map[string]any{"document_id": "doc-456", "document_type": "Invoice"},
	}, Context{})

	want := &Diff{
		Before: map[string]any{"status": "Document exists", "id": "doc-456", "type": "Invoice"},
		After:  map[string]any{"status": "DELETED", "id": "doc-456", "type": "Invoice"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("preview mismatch (-want +got):\n%s", diff)
	}

	got = p.Generate(engine.ToolCall{
		ToolName: "delete_document",
		Args:     map[string]any{"document_id": "doc-1"},
	}, Context{})
	if got.Before["type"] != "Unknown" || got.After["type"] != "Unknown" {
		t.Fatalf("expected type to default to Unknown, got %v", got)
	}

	if d := p.Generate(engine.ToolCall{ToolName: "delete_document", Args: map[string]any{}}, Context{}); d != nil {
		t.Fatalf("expected nil preview without document_id, got %v", d)
	}
}

func TestCreateInvoicePreview(t *testing.T) {
	p := New()
	got := p.Generate(engine.ToolCall{
		ToolName: "create_invoice",
		Args: map[string]any{
			"customer_name": "ACME",
			"items": []any{
				map[string]any{"product_name": "Widget", "quantity": float64(10), "price": float64(100)},
				map[string]any{"product_name": "Bolt", "quantity": json.Number("2"), "price": 0.5},
			},
		},
	}, Context{})

	want := &Diff{
		Before: map[string]any{"item_0": "Not created", "item_1": "Not created", "customer": "Not set"},
		After: map[string]any{
			"item_0":   "Widget: 10 × 100 ₽",
			"item_1":   "Bolt: 2 × 0.5 ₽",
			"customer": "ACME",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("preview mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateInvoicePreview_CurrencyAndNoCustomer(t *testing.T) {
	got := New().Generate(engine.ToolCall{
		ToolName: "create_invoice",
		Args: map[string]any{
			"items": []any{map[string]any{"product_name": "Widget", "quantity": 3, "price": 12.25}},
		},
	}, Context{Currency: "USD"})

	if got.After["item_0"] != "Widget: 3 × 12.25 USD" {
		t.Fatalf("unexpected item line: %v", got.After["item_0"])
	}
	if _, ok := got.Before["customer"]; ok {
		t.Fatal("expected no customer pair")
	}
	if len(got.Before) != 1 || len(got.After) != 1 {
		t.Fatalf("expected exactly one pair per item, got %v", got)
	}
}

func TestCreateInvoicePreview_NilWithoutItems(t *testing.T) {
	p := New()
	for _, args := range []map[string]any{
		{},
		{"items": []any{}},
		{"items": nil},
		{"customer_name": "ACME"},
	} {
		if d := p.Generate(engine.ToolCall{ToolName: "create_invoice", Args: args}, Context{}); d != nil {
			t.Fatalf("expected nil preview for %v, got %v", args, d)
		}
	}
}

func TestUpdateProductPreview(t *testing.T) {
	p := New()
	got := p.Generate(engine.ToolCall{
		ToolName: "update_product",
		Args:     map[string]any{"product_id": "p-1", "price": 120.0, "name": "Widget Pro"},
	}, Context{})

	want := &Diff{
		Before: map[string]any{"price": "(existing value)", "name": "(existing value)"},
		After:  map[string]any{"price": 120.0, "name": "Widget Pro"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("preview mismatch (-want +got):\n%s", diff)
	}

	if d := p.Generate(engine.ToolCall{ToolName: "update_product", Args: map[string]any{"price": 1.0}}, Context{}); d != nil {
		t.Fatalf("expected nil preview without product_id, got %v", d)
	}
}

func TestUnknownToolHasNoPreview(t *testing.T) {
	if d := New().Generate(engine.ToolCall{ToolName: "frobnicate", Args: map[string]any{"x": 1}}, Context{}); d != nil {
		t.Fatalf("expected nil preview, got %v", d)
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	p := New()
	call := engine.ToolCall{
		ToolName: "create_invoice",
		Args: map[string]any{
			"customer_name": "ACME",
			"items":         []any{map[string]any{"product_name": "Widget", "quantity": 1.0, "price": 9.99}},
		},
	}

	first := p.Generate(call, Context{})
	second := p.Generate(call, Context{})
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("Generate not idempotent (-first +second):\n%s", diff)
	}

	first.After["item_0"] = "mutated"
	if second.After["item_0"] == "mutated" {
		t.Fatal("previews share maps across calls")
	}
}

func TestRegisterCustomHandler(t *testing.T) {
	p := New()
	p.Register("archive_product", func(call engine.ToolCall, _ Context) *Diff {
		return &Diff{
			Before: map[string]any{"status": "active"},
			After:  map[string]any{"status": "archived"},
		}
	})

	got := p.Generate(engine.ToolCall{ToolName: "archive_product"}, Context{})
	if got == nil || got.After["status"] != "archived" {
		t.Fatalf("unexpected preview: %v", got)
	}
}
