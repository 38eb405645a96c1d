package storage

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
)

// EventWriter is the interface for writing decision events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *DecisionEvent)
	Close()
}

// DecisionEvent is the audit record for one guarded tool call.
type DecisionEvent struct {
	RequestID            string
	Timestamp            time.Time
	TenantID             string
	UserID               string // end user the call acts for, as requested
	PrincipalUserID      string // user behind the authenticated API key
	ToolCallID           string
	ToolName             string
	ArgumentsJSON        string
	Action               string // "allow", "reject", "warn", "require_confirmation"
	Message              string
	Confidence           float32
	VerificationCount    int32
	VerificationFailures int32
	HasPreview           bool
	Provider             string
	LatencyMs            float32
	Source               string // "http", "grpc", "cli"
}

// EventMeta carries the request-level fields shared by a batch's events.
type EventMeta struct {
	RequestID       string
	TenantID        string
	UserID          string
	PrincipalUserID string
	Provider        string
	Source          string
	Latency         time.Duration
}

// EventsFromResults builds one event per guarded call. Verification entries
// are folded into the call they precede.
func EventsFromResults(meta EventMeta, results []engine.ProcessedToolCall) []*DecisionEvent {
	now := time.Now().UTC()
	latencyMs := float32(meta.Latency.Microseconds()) / 1000

	var events []*DecisionEvent
	var verifications, failures int32
	for _, r := range results {
		if r.IsVerification {
			verifications++
			if isFailedVerification(r.ResultSummary) {
				failures++
			}
			continue
		}

		argsJSON, err := json.Marshal(r.Args)
		if err != nil {
			argsJSON = []byte("{}")
		}
		events = append(events, &DecisionEvent{
			RequestID:            meta.RequestID,
			Timestamp:            now,
			TenantID:             meta.TenantID,
			UserID:               meta.UserID,
			PrincipalUserID:      meta.PrincipalUserID,
			ToolCallID:           r.ToolCallID,
			ToolName:             r.ToolName,
			ArgumentsJSON:        string(argsJSON),
			Action:               string(r.Action),
			Message:              r.Message,
			Confidence:           float32(r.Confidence),
			VerificationCount:    verifications,
			VerificationFailures: failures,
			HasPreview:           r.DiffPreview != nil,
			Provider:             meta.Provider,
			LatencyMs:            latencyMs,
			Source:               meta.Source,
		})
		verifications, failures = 0, 0
	}
	return events
}

func isFailedVerification(summary string) bool {
	return strings.HasPrefix(summary, "Verification failed: ") ||
		strings.HasSuffix(summary, "not found or not executable")
}
