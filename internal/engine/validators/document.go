package validators

import (
	"context"
	"fmt"

	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
)

const deleteDocumentSchema = `{
	"type": "object",
	"properties": {
		"document_id": {"type": "string", "minLength": 1},
		"document_type": {"type": "string"}
	}
}`

// Deletions are always allowed through to a confirmation prompt; they are
// never silently executed.
func checkDeleteDocument(_ context.Context, v *Validator, doc map[string]any, _ engine.Catalog) (engine.SemanticResult, error) {
	id := text(doc["document_id"])
	if id == "" {
		return invalid("document_id is required to delete a document"), nil
	}

	if res, ok := v.validateShape("delete_document", doc); !ok {
		return res, nil
	}

	return warning(fmt.Sprintf("Deleting document %s cannot be undone", id)), nil
}
