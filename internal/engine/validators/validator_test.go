package validators

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
	"go.uber.org/zap"
)

type fakeCatalog struct {
	ids   map[string]bool
	names map[string]bool
	err   error
}

func (f *fakeCatalog) ProductExists(_ context.Context, id string) (bool, error) {
	return f.ids[id], f.err
}

func (f *fakeCatalog) ProductNameKnown(_ context.Context, name string) (bool, error) {
	return f.names[name], f.err
}

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New(DefaultConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func validate(t *testing.T, v *Validator, tool string, args map[string]any, cat engine.Catalog) engine.SemanticResult {
	t.Helper()
	res, err := v.Validate(context.Background(), &engine.SemanticRequest{ToolName: tool, Args: args, Catalog: cat})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return res
}

func item(name string, qty, price float64) map[string]any {
	return map[string]any{"product_name": name, "quantity": qty, "price": price}
}

func TestUnknownToolIsValid(t *testing.T) {
	res := validate(t, newValidator(t), "frobnicate", map[string]any{"x": -1}, nil)
	if !res.Valid || res.Message != "" {
		t.Fatalf("expected valid, got %+v", res)
	}
}

func TestCreateInvoice(t *testing.T) {
	v := newValidator(t)
	tests := []struct {
		name    string
		args    map[string]any
		valid   bool
		level   engine.SemanticLevel
		message string
	}{
		{"no items", map[string]any{}, false, engine.LevelError, "Invoice must contain at least one item"},
		{"empty items", map[string]any{"items": []any{}}, false, engine.LevelError, "Invoice must contain at least one item"},
		{"negative quantity", map[string]any{"items": []any{item("Widget", -1, 100)}}, false, engine.LevelError, "Quantity cannot be negative (item 1: Widget)"},
		{"zero quantity", map[string]any{"items": []any{item("Milk 1L", 1, 90), item("Widget", 0, 100)}}, false, engine.LevelError, "Quantity must be greater than zero (item 2: Widget)"},
		{"negative price", map[string]any{"items": []any{item("Widget", 1, -5)}}, false, engine.LevelError, "Price cannot be negative (item 1: Widget)"},
		{"zero price warns", map[string]any{"items": []any{item("Widget", 1, 0)}}, true, engine.LevelWarning, "Item Widget has zero price"},
		{"large total warns", map[string]any{"items": []any{item("Coffee", 1000, 1200)}}, true, engine.LevelWarning, "Invoice total 1200000 exceeds 1000000"},
		{"clean", map[string]any{"customer_name": "ACME", "items": []any{item("Milk 1L", 2, 90)}}, true, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := validate(t, v, "create_invoice", tt.args, nil)
			if res.Valid != tt.valid || res.Level != tt.level || res.Message != tt.message {
				t.Fatalf("expected {%v %q %q}, got %+v", tt.valid, tt.level, tt.message, res)
			}
		})
	}
}

func TestCreateInvoice_ShapeErrors(t *testing.T) {
	v := newValidator(t)
	res := validate(t, v, "create_invoice", map[string]any{
		"items": []any{map[string]any{"product_name": "Widget", "quantity": "ten", "price": 1.0}},
	}, nil)
	if res.Valid || !strings.HasPrefix(res.Message, "Invalid arguments for create_invoice: ") {
		t.Fatalf("expected shape rejection, got %+v", res)
	}

	res = validate(t, v, "create_invoice", map[string]any{
		"items": []any{map[string]any{"quantity": 1.0, "price": 1.0}},
	}, nil)
	if res.Valid {
		t.Fatalf("expected missing product_name to be rejected, got %+v", res)
	}
}

func TestCreateInvoice_CatalogWarnings(t *testing.T) {
	v := newValidator(t)
	cat := &fakeCatalog{names: map[string]bool{"Milk 1L": true}}
	res := validate(t, v, "create_invoice", map[string]any{
		"items": []any{item("Milk 1L", 1, 90), item("Widget", 1, 10)},
	}, cat)
	if !res.Valid || res.Level != engine.LevelWarning || res.Message != `Product "Widget" not found in catalog` {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCreateInvoice_CatalogErrorIsSkipped(t *testing.T) {
	v := newValidator(t)
	res := validate(t, v, "create_invoice", map[string]any{"items": []any{item("Widget", 1, 10)}},
		&fakeCatalog{err: errors.New("timeout")})
	if !res.Valid || res.Message != "" {
		t.Fatalf("expected lookup failure to be ignored, got %+v", res)
	}
}

func TestUpdateProduct(t *testing.T) {
	v := newValidator(t)
	cat := &fakeCatalog{ids: map[string]bool{"prod-1": true}}

	if res := validate(t, v, "update_product", map[string]any{"price": 10.0}, cat); res.Valid {
		t.Fatalf("expected missing product_id to be rejected, got %+v", res)
	}
	if res := validate(t, v, "update_product", map[string]any{"product_id": "prod-1", "price": -1.0}, cat); res.Valid || res.Message != "Price cannot be negative" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res := validate(t, v, "update_product", map[string]any{"product_id": "prod-1", "quantity": -3.0}, cat); res.Valid || res.Message != "Quantity cannot be negative" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res := validate(t, v, "update_product", map[string]any{"product_id": "prod-9", "price": 1.0}, cat); res.Valid || res.Message != "Product prod-9 not found" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res := validate(t, v, "update_product", map[string]any{"product_id": "prod-1", "price": 1.0}, cat); !res.Valid || res.Message != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res := validate(t, v, "update_product", map[string]any{"product_id": "prod-9"}, nil); !res.Valid {
		t.Fatalf("expected pass without catalog, got %+v", res)
	}
}

func TestUpdateProduct_CanceledLookup(t *testing.T) {
	v := newValidator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cat := &cancelingCatalog{cancel: cancel}

	_, err := v.Validate(ctx, &engine.SemanticRequest{
		ToolName: "update_product",
		Args:     map[string]any{"product_id": "prod-1"},
		Catalog:  cat,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type cancelingCatalog struct{ cancel context.CancelFunc }

func (c *cancelingCatalog) ProductExists(ctx context.Context, _ string) (bool, error) {
	c.cancel()
	return false, ctx.Err()
}

func (c *cancelingCatalog) ProductNameKnown(ctx context.Context, _ string) (bool, error) {
	c.cancel()
	return false, ctx.Err()
}

func TestDeleteDocument(t *testing.T) {
	v := newValidator(t)
	if res := validate(t, v, "delete_document", map[string]any{}, nil); res.Valid {
		t.Fatalf("expected rejection without document_id, got %+v", res)
	}
	res := validate(t, v, "delete_document", map[string]any{"document_id": "doc-456", "document_type": "Invoice"}, nil)
	if !res.Valid || res.Level != engine.LevelWarning || res.Message != "Deleting document doc-456 cannot be undone" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRegister_CustomCheckAndSchemaOnly(t *testing.T) {
	v := newValidator(t)
	err := v.Register("transfer_stock", `{"type":"object","required":["from","to"]}`, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res := validate(t, v, "transfer_stock", map[string]any{"from": "A"}, nil); res.Valid {
		t.Fatalf("expected schema rejection, got %+v", res)
	}
	if res := validate(t, v, "transfer_stock", map[string]any{"from": "A", "to": "B"}, nil); !res.Valid {
		t.Fatalf("expected valid, got %+v", res)
	}

	err = v.Register("close_period", "", func(_ context.Context, _ *Validator, doc map[string]any, _ engine.Catalog) (engine.SemanticResult, error) {
		if text(doc["period"]) == "" {
			return invalid("period is required"), nil
		}
		return engine.SemanticResult{Valid: true}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if res := validate(t, v, "close_period", map[string]any{}, nil); res.Valid || res.Message != "period is required" {
		t.Fatalf("unexpected result: %+v", res)
	}

	if err := v.Register("broken", `{"type": 42}`, nil); err == nil {
		t.Fatal("expected invalid schema to fail registration")
	}
}

func TestLargeInvoiceThresholdConfigurable(t *testing.T) {
	v, err := New(Config{LargeInvoiceThreshold: 100}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	res := validate(t, v, "create_invoice", map[string]any{"items": []any{item("Milk 1L", 2, 90)}}, nil)
	if res.Level != engine.LevelWarning || res.Message != "Invoice total 180 exceeds 100" {
		t.Fatalf("unexpected result: %+v", res)
	}
}
