package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
	"go.uber.org/zap"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ACTION_GUARD_CONFIG", "")
	cmd := NewRootCmd(zap.NewNop())
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const batch = `{
  "tool_calls": [
    {"tool_call_id": "c1", "tool_name": "create_invoice",
     "args": {"customer_name": "Cafe Aroma", "items": [{"product_name": "Milk 1L", "quantity": 1, "price": 90}]}},
    {"tool_call_id": "c2", "tool_name": "delete_document", "args": {"document_id": "doc-123"}}
  ]
}`

func TestProcess_FromStdin(t *testing.T) {
	stdout, err := run(t, batch, "process")
	if err != nil {
		t.Fatal(err)
	}

	var out ProcessOutput
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	var names []string
	for _, r := range out.Results {
		names = append(names, r.ToolName)
	}
	want := "get_stock,create_invoice,get_document,delete_document"
	if got := strings.Join(names, ","); got != want {
		t.Fatalf("unexpected order: %s", got)
	}
	if len(out.Executions) != 0 {
		t.Fatal("nothing should execute without --execute")
	}
}

func TestProcess_ExecuteRunsOnlyAllowedCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.json")
	if err := os.WriteFile(path, []byte(batch), 0o600); err != nil {
		t.Fatal(err)
	}

	stdout, err := run(t, "", "process", "--execute", "--user", "u-9", path)
	if err != nil {
		t.Fatal(err)
	}

	var out ProcessOutput
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Executions) != 1 {
		t.Fatalf("expected only the invoice to execute, got %+v", out.Executions)
	}
	exec := out.Executions[0]
	if exec.ToolCallID != "c1" || exec.Error != "" {
		t.Fatalf("unexpected execution: %+v", exec)
	}
	invoice, _ := exec.Output.(map[string]any)
	if number, _ := invoice["number"].(string); !strings.HasPrefix(number, "INV-") {
		t.Fatalf("unexpected invoice output: %#v", exec.Output)
	}

	final := out.Results[len(out.Results)-1]
	if final.Action != engine.ActionRequireConfirmation {
		t.Fatalf("deletion should need confirmation, got %s", final.Action)
	}
}

func TestProcess_InvalidInput(t *testing.T) {
	if _, err := run(t, "{", "process"); err == nil || !strings.Contains(err.Error(), "invalid JSON input") {
		t.Fatalf("expected JSON error, got %v", err)
	}
	if _, err := run(t, `{"tool_calls":[{"args":{}}]}`, "process"); err == nil {
		t.Fatal("expected missing tool_name error")
	}
}

func TestPreview(t *testing.T) {
	stdout, err := run(t, `{"tool_name":"get_stock","args":{"product_name":"Milk"}}`, "preview", "--currency", "USD")
	if err != nil {
		t.Fatal(err)
	}
	var diff engine.DiffPreview
	if err := json.Unmarshal([]byte(stdout), &diff); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	if diff.Before["query"] != "Milk" {
		t.Fatalf("unexpected preview query: %+v", diff)
	}
	if diff.After["result"] != "No results" {
		t.Fatalf("unexpected preview result: %+v", diff)
	}

	stdout, err = run(t, `{"tool_name":"frobnicate"}`, "preview")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(stdout) != "null" {
		t.Fatalf("expected null preview, got %q", stdout)
	}
}
