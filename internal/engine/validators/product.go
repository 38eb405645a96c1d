package validators

import (
	"context"
	"fmt"

	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
)

const updateProductSchema = `{
	"type": "object",
	"properties": {
		"product_id": {"type": ["string", "number"]},
		"name": {"type": "string", "minLength": 1},
		"sku": {"type": "string"},
		"price": {"type": "number"},
		"quantity": {"type": "number"},
		"unit": {"type": "string"}
	}
}`

func checkUpdateProduct(ctx context.Context, v *Validator, doc map[string]any, catalog engine.Catalog) (engine.SemanticResult, error) {
	id := text(doc["product_id"])
	if id == "" {
		return invalid("product_id is required to update a product"), nil
	}

	if res, ok := v.validateShape("update_product", doc); !ok {
		return res, nil
	}

	if price, ok := number(doc["price"]); ok && price < 0 {
		return invalid("Price cannot be negative"), nil
	}
	if qty, ok := number(doc["quantity"]); ok && qty < 0 {
		return invalid("Quantity cannot be negative"), nil
	}

	if catalog != nil {
		exists, err := catalog.ProductExists(ctx, id)
		if err != nil {
			if ctxErr := v.lookupFailed(ctx, "update_product", err); ctxErr != nil {
				return engine.SemanticResult{}, ctxErr
			}
		} else if !exists {
			return invalid(fmt.Sprintf("Product %s not found", id)), nil
		}
	}

	return engine.SemanticResult{Valid: true}, nil
}
