package validators

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
)

const createInvoiceSchema = `{
	"type": "object",
	"properties": {
		"customer_name": {"type": "string"},
		"comment": {"type": "string"},
		"items": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"product_name": {"type": "string", "minLength": 1},
					"quantity": {"type": "number"},
					"price": {"type": "number"}
				},
				"required": ["product_name", "quantity", "price"]
			}
		}
	}
}`

func checkCreateInvoice(ctx context.Context, v *Validator, doc map[string]any, catalog engine.Catalog) (engine.SemanticResult, error) {
	items, _ := doc["items"].([]any)
	if len(items) == 0 {
		return invalid("Invoice must contain at least one item"), nil
	}

	if res, ok := v.validateShape("create_invoice", doc); !ok {
		return res, nil
	}

	var warnings []string
	var total float64
	names := make([]string, 0, len(items))
	for i, raw := range items {
		item, _ := raw.(map[string]any)
		name := text(item["product_name"])
		qty, _ := number(item["quantity"])
		price, _ := number(item["price"])

		switch {
		case qty < 0:
			return invalid(fmt.Sprintf("Quantity cannot be negative (item %d: %s)", i+1, name)), nil
		case qty == 0:
			return invalid(fmt.Sprintf("Quantity must be greater than zero (item %d: %s)", i+1, name)), nil
		case price < 0:
			return invalid(fmt.Sprintf("Price cannot be negative (item %d: %s)", i+1, name)), nil
		}

		if price == 0 {
			warnings = append(warnings, fmt.Sprintf("Item %s has zero price", name))
		}
		total += qty * price
		names = append(names, name)
	}

	if total > v.cfg.LargeInvoiceThreshold {
		warnings = append(warnings, fmt.Sprintf("Invoice total %s exceeds %s",
			strconv.FormatFloat(total, 'f', -1, 64),
			strconv.FormatFloat(v.cfg.LargeInvoiceThreshold, 'f', -1, 64),
		))
	}

	if catalog != nil {
		for _, name := range names {
			known, err := catalog.ProductNameKnown(ctx, name)
			if err != nil {
				if ctxErr := v.lookupFailed(ctx, "create_invoice", err); ctxErr != nil {
					return engine.SemanticResult{}, ctxErr
				}
				break
			}
			if !known {
				warnings = append(warnings, fmt.Sprintf("Product %q not found in catalog", name))
			}
		}
	}

	if len(warnings) > 0 {
		return warning(strings.Join(warnings, "; ")), nil
	}
	return engine.SemanticResult{Valid: true}, nil
}
