// Package app assembles the guardrail pipeline shared by the server and CLI.
package app

import (
	"time"

	"github.com/triage-ai/palisade/services/action_guard/internal/cove"
	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
	"github.com/triage-ai/palisade/services/action_guard/internal/engine/validators"
	"github.com/triage-ai/palisade/services/action_guard/internal/metrics"
	"github.com/triage-ai/palisade/services/action_guard/internal/preview"
	"github.com/triage-ai/palisade/services/action_guard/internal/registry"
	"go.uber.org/zap"
)

// Options selects the pipeline's tunables.
type Options struct {
	VerifyTimeout         time.Duration
	MaxConcurrency        int
	Currency              string
	LargeInvoiceThreshold float64
	AdapterCacheTTL       time.Duration
	MaxAdapters           int
	Metrics               *metrics.Metrics // may be nil
}

// Components are the wired collaborators. Close Provider when done.
type Components struct {
	Pipeline  *engine.Pipeline
	Previewer *preview.Previewer
	Provider  *registry.ERPProvider
}

// Build wires the default ERP pipeline: built-in validators, verification
// planner, scorer, previews and the demo/postgres tool registry.
func Build(opts Options, logger *zap.Logger) (*Components, error) {
	v, err := validators.New(validators.Config{LargeInvoiceThreshold: opts.LargeInvoiceThreshold}, logger)
	if err != nil {
		return nil, err
	}

	prev := preview.New()
	provider := registry.NewERPProvider(registry.ERPProviderConfig{
		CacheTTL:    opts.AdapterCacheTTL,
		MaxAdapters: opts.MaxAdapters,
		Logger:      logger,
	})

	pipeline := engine.NewPipeline(engine.PipelineDeps{
		Guardian:  engine.NewGuardian(engine.NewRulebook(logger), v),
		Planner:   cove.NewDefaultPlanner(),
		Scorer:    engine.NewScorer(engine.DefaultScorerConfig(), engine.DefaultToolProfiles()),
		Previewer: prev,
		Tools:     provider,
		Metrics:   opts.Metrics,
		Logger:    logger,
	}, engine.PipelineConfig{
		VerifyTimeout:  opts.VerifyTimeout,
		MaxConcurrency: opts.MaxConcurrency,
		Currency:       opts.Currency,
	})

	return &Components{Pipeline: pipeline, Previewer: prev, Provider: provider}, nil
}
