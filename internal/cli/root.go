// Package cli implements the action-guard command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/triage-ai/palisade/services/action_guard/internal/app"
	"github.com/triage-ai/palisade/services/action_guard/internal/config"
	"go.uber.org/zap"
)

// NewRootCmd wires the cobra root command. The pipeline is built lazily so
// that --help works without a valid configuration.
func NewRootCmd(logger *zap.Logger) *cobra.Command {
	var components *app.Components

	build := func() (*app.Components, error) {
		if components != nil {
			return components, nil
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		c, err := app.Build(app.Options{
			VerifyTimeout:         cfg.VerifyTimeout(),
			MaxConcurrency:        cfg.MaxConcurrency,
			Currency:              cfg.DefaultCurrency,
			LargeInvoiceThreshold: cfg.LargeInvoiceThreshold,
			AdapterCacheTTL:       cfg.AdapterCacheTTL(),
			MaxAdapters:           cfg.MaxAdapters,
		}, logger)
		if err != nil {
			return nil, err
		}
		components = c
		return c, nil
	}

	root := &cobra.Command{
		Use:   "action-guard",
		Short: "Guard and verify ERP agent tool calls",
		Long: "action-guard runs proposed ERP tool calls through verification reads,\n" +
			"guardrail rules, confidence scoring and diff previews.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			if components != nil {
				components.Provider.Close()
			}
		},
	}

	root.AddCommand(newProcessCommand(build))
	root.AddCommand(newPreviewCommand(build))
	return root
}

type buildFunc func() (*app.Components, error)

// readInput decodes JSON from the named file, or from stdin when the name
// is empty or "-".
func readInput(cmd *cobra.Command, args []string, v any) error {
	var r io.Reader = cmd.InOrStdin()
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON input: %w", err)
	}
	return nil
}

func writeOutput(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
