package engine

import (
	"strings"
)

// RiskTier classifies a tool by the blast radius of its effect.
type RiskTier string

const (
	TierRead        RiskTier = "read"
	TierWrite       RiskTier = "write"
	TierDestructive RiskTier = "destructive"
)

// ToolProfile describes what the scorer knows about a tool.
type ToolProfile struct {
	Tier         RiskTier
	RequiredArgs []string
}

// DefaultToolProfiles covers the built-in ERP tools.
func DefaultToolProfiles() map[string]ToolProfile {
	return map[string]ToolProfile{
		"get_stock":       {Tier: TierRead},
		"get_products":    {Tier: TierRead},
		"get_document":    {Tier: TierRead, RequiredArgs: []string{"document_id"}},
		"create_invoice":  {Tier: TierWrite, RequiredArgs: []string{"items"}},
		"update_product":  {Tier: TierWrite, RequiredArgs: []string{"product_id"}},
		"delete_document": {Tier: TierDestructive, RequiredArgs: []string{"document_id"}},
	}
}

// ScorerConfig holds the heuristic weights. Every penalty is subtracted from
// the tier base, so more risk signals never raise the score.
type ScorerConfig struct {
	BaseRead        float64
	BaseWrite       float64
	BaseDestructive float64
	BaseUnknown     float64

	EmptyArgsPenalty    float64
	MissingArgPenalty   float64
	MalformedArgPenalty float64
	ErrorSummaryPenalty float64
	WarnPenalty         float64
	ConfirmationPenalty float64
	RejectPenalty       float64
}

// DefaultScorerConfig returns the default weights.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		BaseRead:        1.0,
		BaseWrite:       0.9,
		BaseDestructive: 0.85,
		BaseUnknown:     0.7,

		EmptyArgsPenalty:    0.2,
		MissingArgPenalty:   0.15,
		MalformedArgPenalty: 0.1,
		ErrorSummaryPenalty: 0.15,
		WarnPenalty:         0.1,
		ConfirmationPenalty: 0.25,
		RejectPenalty:       0.5,
	}
}

// ScoreInput is the feature set for one call.
type ScoreInput struct {
	ToolName       string
	Args           map[string]any
	ResultSummary  string
	GuardianAction Action // empty when the guardian was not consulted
}

// Scorer computes a heuristic confidence in [0,1] for a tool call.
type Scorer struct {
	cfg      ScorerConfig
	profiles map[string]ToolProfile
}

// NewScorer creates a Scorer. A nil profiles map uses DefaultToolProfiles.
func NewScorer(cfg ScorerConfig, profiles map[string]ToolProfile) *Scorer {
	if profiles == nil {
		profiles = DefaultToolProfiles()
	}
	return &Scorer{cfg: cfg, profiles: profiles}
}

// Known reports whether name has a profile.
func (s *Scorer) Known(name string) bool {
	_, ok := s.profiles[name]
	return ok
}

var errorMarkers = []string{"error", "failed", "not found"}

// Score returns the confidence for in. Deterministic, no I/O.
func (s *Scorer) Score(in ScoreInput) float64 {
	profile, known := s.profiles[in.ToolName]

	score := s.cfg.BaseUnknown
	if known {
		switch profile.Tier {
		case TierRead:
			score = s.cfg.BaseRead
		case TierWrite:
			score = s.cfg.BaseWrite
		case TierDestructive:
			score = s.cfg.BaseDestructive
		}
	}

	if len(in.Args) == 0 && (!known || len(profile.RequiredArgs) > 0) {
		score -= s.cfg.EmptyArgsPenalty
	}

	for _, name := range profile.RequiredArgs {
		v, ok := in.Args[name]
		if !ok {
			score -= s.cfg.MissingArgPenalty
			continue
		}
		if isBlank(v) {
			score -= s.cfg.MalformedArgPenalty
		}
	}

	summary := strings.ToLower(in.ResultSummary)
	for _, marker := range errorMarkers {
		if strings.Contains(summary, marker) {
			score -= s.cfg.ErrorSummaryPenalty
			break
		}
	}

	switch in.GuardianAction {
	case ActionWarn:
		score -= s.cfg.WarnPenalty
	case ActionRequireConfirmation:
		score -= s.cfg.ConfirmationPenalty
	case ActionReject:
		score -= s.cfg.RejectPenalty
	}

	return clamp01(score)
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
