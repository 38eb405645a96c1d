package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/triage-ai/palisade/services/action_guard/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/triage-ai/palisade/services/action_guard/internal/engine")

// Request carries the per-invocation inputs shared by every call in a batch.
type Request struct {
	UserID  string
	Rules   []Rule
	Backend BackendConfig
}

// PipelineConfig tunes verification execution.
type PipelineConfig struct {
	VerifyTimeout  time.Duration
	MaxConcurrency int
	// Currency is used in previews when the request's back-end sets none.
	Currency string
}

// DefaultPipelineConfig returns the default execution limits.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		VerifyTimeout:  DefaultVerifyTimeout,
		MaxConcurrency: DefaultMaxConcurrency,
		Currency:       DefaultCurrency,
	}
}

// Pipeline runs each proposed tool call through
// verification → guardian → confidence → diff preview.
// It holds no per-user state; everything request-specific arrives in Request.
type Pipeline struct {
	guardian  *Guardian
	planner   Planner
	scorer    *Scorer
	previewer Previewer
	tools     ToolProvider
	metrics   *metrics.Metrics
	cfg       PipelineConfig
	logger    *zap.Logger
}

// PipelineDeps lists the pipeline's collaborators. Metrics may be nil.
type PipelineDeps struct {
	Guardian  *Guardian
	Planner   Planner
	Scorer    *Scorer
	Previewer Previewer
	Tools     ToolProvider
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// NewPipeline wires a pipeline from explicit collaborators.
func NewPipeline(deps PipelineDeps, cfg PipelineConfig) *Pipeline {
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = DefaultVerifyTimeout
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	return &Pipeline{
		guardian:  deps.Guardian,
		planner:   deps.Planner,
		scorer:    deps.Scorer,
		previewer: deps.Previewer,
		tools:     deps.Tools,
		metrics:   deps.Metrics,
		cfg:       cfg,
		logger:    deps.Logger,
	}
}

// ProcessTools processes a batch. Calls run concurrently; the output
// concatenates each call's entries in input order.
func (p *Pipeline) ProcessTools(ctx context.Context, calls []ToolCall, req *Request) []ProcessedToolCall {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "pipeline.process_tools",
		trace.WithAttributes(attribute.Int("batch.size", len(calls))),
	)
	defer span.End()

	resolve := p.resolver(ctx, req)
	perCall := make([][]ProcessedToolCall, len(calls))

	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrency)
	for i, call := range calls {
		g.Go(func() error {
			perCall[i] = p.processTool(ctx, call, req, resolve)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	var out []ProcessedToolCall
	for _, entries := range perCall {
		out = append(out, entries...)
	}

	p.metrics.ObserveBatch(time.Since(start))
	return out
}

// ProcessTool runs one call through the full pipeline. Verification entries,
// if any, precede the entry for the call itself.
func (p *Pipeline) ProcessTool(ctx context.Context, call ToolCall, req *Request) []ProcessedToolCall {
	return p.processTool(ctx, call, req, p.resolver(ctx, req))
}

// ExecuteTool runs guardian, scorer and previewer for one call without
// verification reads.
func (p *Pipeline) ExecuteTool(ctx context.Context, call ToolCall, req *Request) ProcessedToolCall {
	return p.executeTool(ctx, call, req, p.resolver(ctx, req))
}

type toolSetResolver func() (ToolSet, error)

type resolved struct {
	set ToolSet
	err error
}

// resolver returns a lazy, once-only tool set lookup shared by a batch.
// The lookup is bounded by VerifyTimeout like any other verification read.
func (p *Pipeline) resolver(ctx context.Context, req *Request) toolSetResolver {
	return sync.OnceValues(func() (ToolSet, error) {
		if p.tools == nil {
			return nil, fmt.Errorf("no tool registry configured")
		}

		ctx, cancel := context.WithTimeout(ctx, p.cfg.VerifyTimeout)
		defer cancel()

		done := make(chan resolved, 1)
		go func() {
			set, err := p.tools.Tools(ctx, req.UserID, req.Backend)
			done <- resolved{set: set, err: err}
		}()

		var res resolved
		select {
		case res = <-done:
		case <-ctx.Done():
			res.err = fmt.Errorf("resolve tool set: %w", ctx.Err())
		}

		if res.err != nil {
			p.logger.Warn("tool registry resolution failed",
				zap.String("user_id", req.UserID),
				zap.String("provider", req.Backend.Provider),
				zap.Error(res.err),
			)
			return nil, res.err
		}
		return res.set, nil
	})
}

// toolLabel keeps metric cardinality bounded: call names come from the
// agent, so only tools the scorer knows get their own label.
func (p *Pipeline) toolLabel(name string) string {
	if p.scorer.Known(name) {
		return name
	}
	return metrics.OtherTool
}

func (p *Pipeline) processTool(ctx context.Context, call ToolCall, req *Request, resolve toolSetResolver) []ProcessedToolCall {
	ctx, span := tracer.Start(ctx, "pipeline.process_tool",
		trace.WithAttributes(attribute.String("tool.name", call.ToolName)),
	)
	defer span.End()

	var out []ProcessedToolCall
	if p.planner != nil && p.planner.NeedsVerification(call.ToolName) {
		steps := p.planner.VerificationSteps(call.ToolName, call.Args)
		span.SetAttributes(attribute.Int("verification.steps", len(steps)))
		out = append(out, p.verify(ctx, steps, req, resolve)...)
	}

	final := p.executeTool(ctx, call, req, resolve)
	span.SetAttributes(
		attribute.String("guardian.action", string(final.Action)),
		attribute.Float64("confidence", final.Confidence),
	)
	if final.Action == ActionReject {
		span.SetStatus(codes.Error, "rejected")
	}
	return append(out, final)
}

// verify executes the planned reads concurrently and returns one entry per
// step in plan order. Failures become textual results; they never abort.
func (p *Pipeline) verify(ctx context.Context, steps []VerificationStep, req *Request, resolve toolSetResolver) []ProcessedToolCall {
	results := make([]ProcessedToolCall, len(steps))

	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrency)
	for i, step := range steps {
		g.Go(func() error {
			results[i] = ProcessedToolCall{
				ToolName:       step.ToolName,
				Args:           step.Args,
				ResultSummary:  p.runVerification(ctx, step, req, resolve),
				Confidence:     1.0,
				Action:         ActionAllow,
				IsVerification: true,
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

type execOutcome struct {
	output any
	err    error
}

func (p *Pipeline) runVerification(ctx context.Context, step VerificationStep, req *Request, resolve toolSetResolver) string {
	set, err := resolve()
	if err != nil {
		p.metrics.RecordVerification(p.toolLabel(step.ToolName), metrics.OutcomeFailed)
		return "Verification failed: " + err.Error()
	}

	tool, ok := set.Lookup(step.ToolName)
	if !ok || tool == nil {
		p.metrics.RecordVerification(p.toolLabel(step.ToolName), metrics.OutcomeNotFound)
		return fmt.Sprintf("Tool '%s' not found or not executable", step.ToolName)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.VerifyTimeout)
	defer cancel()

	done := make(chan execOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- execOutcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		out, err := tool.Execute(ctx, step.Args, ExecutionContext{
			ToolCallID: VerificationCallID,
			UserID:     req.UserID,
		})
		done <- execOutcome{output: out, err: err}
	}()

	var res execOutcome
	select {
	case res = <-done:
	case <-ctx.Done():
		res = execOutcome{err: ctx.Err()}
	}

	if res.err != nil {
		p.logger.Warn("verification failed",
			zap.String("tool_name", step.ToolName),
			zap.String("user_id", req.UserID),
			zap.Error(res.err),
		)
		p.metrics.RecordVerification(p.toolLabel(step.ToolName), metrics.OutcomeFailed)
		return "Verification failed: " + res.err.Error()
	}

	p.metrics.RecordVerification(p.toolLabel(step.ToolName), metrics.OutcomeOK)
	return stringifyOutput(res.output)
}

func (p *Pipeline) executeTool(ctx context.Context, call ToolCall, req *Request, resolve toolSetResolver) ProcessedToolCall {
	var catalog Catalog
	if set, err := resolve(); err == nil && set != nil {
		catalog = set.Catalog()
	}

	decision, err := p.guardian.Check(ctx, &CheckRequest{
		UserID:   req.UserID,
		ToolName: call.ToolName,
		Args:     call.Args,
		Rules:    req.Rules,
		Catalog:  catalog,
	})
	if err != nil {
		p.logger.Error("guardian check failed",
			zap.String("tool_name", call.ToolName),
			zap.Error(err),
		)
		decision = Decision{Allowed: false, Action: ActionReject, Message: "Guardian check failed: " + err.Error()}
	}

	confidence := p.scorer.Score(ScoreInput{
		ToolName:       call.ToolName,
		Args:           call.Args,
		ResultSummary:  call.ResultSummary,
		GuardianAction: decision.Action,
	})

	var diff *DiffPreview
	if p.previewer != nil {
		diff = p.previewer.Generate(call, p.previewContext(req))
	}

	p.metrics.RecordDecision(p.toolLabel(call.ToolName), string(decision.Action), confidence)

	return ProcessedToolCall{
		ToolCallID:    call.ToolCallID,
		ToolName:      call.ToolName,
		Args:          call.Args,
		ResultSummary: call.ResultSummary,
		Confidence:    confidence,
		Action:        decision.Action,
		Message:       decision.Message,
		DiffPreview:   diff,
	}
}

func (p *Pipeline) previewContext(req *Request) PreviewContext {
	if req.Backend.Currency != "" {
		return PreviewContext{Currency: req.Backend.Currency}
	}
	return PreviewContext{Currency: p.cfg.Currency}
}

func stringifyOutput(out any) string {
	switch v := out.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	b, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprint(out)
	}
	return string(b)
}
