package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
)

func newPreviewCommand(build buildFunc) *cobra.Command {
	var currency string

	cmd := &cobra.Command{
		Use:   "preview [file]",
		Short: "Print the diff preview for one tool call",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var call engine.ToolCall
			if err := readInput(cmd, args, &call); err != nil {
				return err
			}
			if call.ToolName == "" {
				return fmt.Errorf("tool_name is required")
			}

			c, err := build()
			if err != nil {
				return err
			}
			if currency == "" {
				currency = engine.DefaultCurrency
			}
			return writeOutput(cmd, c.Previewer.Generate(call, engine.PreviewContext{Currency: currency}))
		},
	}

	cmd.Flags().StringVar(&currency, "currency", "", "currency label for amounts")
	return cmd
}
