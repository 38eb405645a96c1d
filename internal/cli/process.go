package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/triage-ai/palisade/services/action_guard/internal/api"
	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
	"github.com/triage-ai/palisade/services/action_guard/internal/registry"
)

// Execution is the outcome of running an allowed call against the back-end.
type Execution struct {
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name"`
	Output     any    `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ProcessOutput is what the process command prints.
type ProcessOutput struct {
	Results    []engine.ProcessedToolCall `json:"results"`
	Executions []Execution                `json:"executions,omitempty"`
}

func newProcessCommand(build buildFunc) *cobra.Command {
	var (
		userID  string
		execute bool
	)

	cmd := &cobra.Command{
		Use:   "process [file]",
		Short: "Guard a batch of tool calls read from a JSON file or stdin",
		Long: "Reads a request of the form {\"tool_calls\": [...], \"rules\": [...], \"backend\": {...}}\n" +
			"and prints the processed entries. With --execute, calls that were allowed\n" +
			"are then run against the configured back-end.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req api.ProcessRequest
			if err := readInput(cmd, args, &req); err != nil {
				return err
			}
			for i, call := range req.ToolCalls {
				if call.ToolName == "" {
					return fmt.Errorf("tool_calls[%d].tool_name is required", i)
				}
			}
			if userID != "" {
				req.UserID = userID
			}

			c, err := build()
			if err != nil {
				return err
			}

			preq := &engine.Request{UserID: req.UserID, Rules: req.Rules, Backend: req.Backend}
			out := ProcessOutput{Results: c.Pipeline.ProcessTools(cmd.Context(), req.ToolCalls, preq)}
			if out.Results == nil {
				out.Results = []engine.ProcessedToolCall{}
			}

			if execute {
				execs, err := executeAllowed(cmd, c.Provider, preq, out.Results)
				if err != nil {
					return err
				}
				out.Executions = execs
			}
			return writeOutput(cmd, out)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "end-user id to attribute the calls to")
	cmd.Flags().BoolVar(&execute, "execute", false, "run allowed calls against the back-end")
	return cmd
}

// executeAllowed runs every non-verification entry whose action is allow.
// Calls needing confirmation or rejected are never executed.
func executeAllowed(cmd *cobra.Command, provider *registry.ERPProvider, req *engine.Request, results []engine.ProcessedToolCall) ([]Execution, error) {
	set, err := provider.Tools(cmd.Context(), req.UserID, req.Backend)
	if err != nil {
		return nil, err
	}

	var execs []Execution
	for _, r := range results {
		if r.IsVerification || r.Action != engine.ActionAllow {
			continue
		}
		exec := Execution{ToolCallID: r.ToolCallID, ToolName: r.ToolName}
		output, err := registry.Execute(cmd.Context(), set, r.ToolName, r.Args, engine.ExecutionContext{
			ToolCallID: r.ToolCallID,
			UserID:     req.UserID,
		})
		if err != nil {
			exec.Error = err.Error()
		} else {
			exec.Output = output
		}
		execs = append(execs, exec)
	}
	return execs, nil
}
