package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/triage-ai/palisade/services/action_guard/internal/api"
	"github.com/triage-ai/palisade/services/action_guard/internal/auth"
	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
	"github.com/triage-ai/palisade/services/action_guard/internal/storage"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ActionGuardServer implements ActionGuardService on top of the pipeline.
type ActionGuardServer struct {
	pipeline *engine.Pipeline
	auth     auth.Authenticator
	writer   storage.EventWriter
	logger   *zap.Logger
}

// NewActionGuardServer creates a new ActionGuardServer with the given dependencies.
func NewActionGuardServer(
	pipeline *engine.Pipeline,
	authenticator auth.Authenticator,
	writer storage.EventWriter,
	logger *zap.Logger,
) *ActionGuardServer {
	return &ActionGuardServer{
		pipeline: pipeline,
		auth:     authenticator,
		writer:   writer,
		logger:   logger,
	}
}

// Process runs a batch of tool calls, verification reads included.
func (s *ActionGuardServer) Process(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()

	p, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	var req api.ProcessRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	for _, call := range req.ToolCalls {
		if call.ToolName == "" {
			return nil, status.Error(codes.InvalidArgument, "tool_name is required")
		}
	}

	preq := &engine.Request{UserID: userID(req.UserID, p), Rules: req.Rules, Backend: req.Backend}
	results := s.pipeline.ProcessTools(ctx, req.ToolCalls, preq)
	if results == nil {
		results = []engine.ProcessedToolCall{}
	}

	requestID := uuid.New().String()
	latency := time.Since(start)
	s.writeEvents(p, requestID, preq, latency, results)

	return encodeStruct(api.ProcessResponse{
		RequestID: requestID,
		Results:   results,
		LatencyMs: float64(latency) / float64(time.Millisecond),
	})
}

// Check runs a single call through guardian, scorer and previewer.
func (s *ActionGuardServer) Check(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()

	p, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	var req api.CheckRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if req.ToolCall.ToolName == "" {
		return nil, status.Error(codes.InvalidArgument, "tool_call.tool_name is required")
	}

	preq := &engine.Request{UserID: userID(req.UserID, p), Rules: req.Rules, Backend: req.Backend}
	result := s.pipeline.ExecuteTool(ctx, req.ToolCall, preq)

	requestID := uuid.New().String()
	latency := time.Since(start)
	s.writeEvents(p, requestID, preq, latency, []engine.ProcessedToolCall{result})

	return encodeStruct(api.CheckResponse{
		RequestID: requestID,
		Result:    result,
		LatencyMs: float64(latency) / float64(time.Millisecond),
	})
}

func (s *ActionGuardServer) authenticate(ctx context.Context) (*auth.Principal, error) {
	token, err := auth.TokenFromMetadata(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization metadata")
	}
	p, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			return nil, status.Error(codes.Unauthenticated, "invalid API key")
		}
		s.logger.Error("auth backend failed", zap.Error(err))
		return nil, status.Error(codes.Unavailable, "authentication unavailable")
	}
	return p, nil
}

func (s *ActionGuardServer) writeEvents(p *auth.Principal, requestID string, req *engine.Request, latency time.Duration, results []engine.ProcessedToolCall) {
	provider := req.Backend.Provider
	if provider == "" {
		provider = "demo"
	}
	meta := storage.EventMeta{
		RequestID:       requestID,
		TenantID:        p.TenantID,
		UserID:          req.UserID,
		PrincipalUserID: p.UserID,
		Provider:        provider,
		Source:          "grpc",
		Latency:         latency,
	}
	for _, ev := range storage.EventsFromResults(meta, results) {
		s.writer.Write(ev)
	}
}

func userID(requested string, p *auth.Principal) string {
	if requested != "" {
		return requested
	}
	return p.UserID
}

// decodeStruct converts a Struct into the JSON request shape v.
func decodeStruct(in *structpb.Struct, v any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// encodeStruct converts a JSON response shape into a Struct.
func encodeStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}
