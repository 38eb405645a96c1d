package storage

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// DecisionEventsDDL creates the table ClickHouseWriter inserts into.
const DecisionEventsDDL = `
CREATE TABLE IF NOT EXISTS decision_events (
	request_id            String,
	timestamp             DateTime64(3),
	tenant_id             LowCardinality(String),
	user_id               String,
	principal_user_id     String,
	tool_call_id          String,
	tool_name             LowCardinality(String),
	arguments_json        String,
	action                LowCardinality(String),
	message               String,
	confidence            Float32,
	verification_count    Int32,
	verification_failures Int32,
	has_preview           UInt8,
	provider              LowCardinality(String),
	latency_ms            Float32,
	source                LowCardinality(String)
) ENGINE = MergeTree
ORDER BY (tenant_id, timestamp)
`

type insertFunc func(ctx context.Context, events []*DecisionEvent) error

// ClickHouseWriter writes decision events to ClickHouse asynchronously.
// Write() is non-blocking; events are buffered and batch-inserted in a background goroutine.
type ClickHouseWriter struct {
	insert  insertFunc
	buffer  chan *DecisionEvent
	done    chan struct{}
	flushed chan struct{}
	logger  *zap.Logger
}

// NewClickHouseWriter connects, ensures the events table exists and starts
// the background flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, err
	}
	if err := conn.Exec(ctx, DecisionEventsDDL); err != nil {
		return nil, err
	}

	return newWriter(func(ctx context.Context, events []*DecisionEvent) error {
		return insertBatch(ctx, conn, events)
	}, logger), nil
}

func newWriter(insert insertFunc, logger *zap.Logger) *ClickHouseWriter {
	w := &ClickHouseWriter{
		insert:  insert,
		buffer:  make(chan *DecisionEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
	go w.flushLoop()
	return w
}

// Write queues an event for async insertion.
// Non-blocking: drops the event if the buffer is full.
func (w *ClickHouseWriter) Write(event *DecisionEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("request_id", event.RequestID),
		)
	}
}

// Close signals the flush loop to drain remaining events and waits for it.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*DecisionEvent, 0, flushBatch)

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			deadline := time.After(drainTimeout)
		drain:
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
				case <-deadline:
					break drain
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(events []*DecisionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.insert(ctx, events); err != nil {
		w.logger.Error("clickhouse batch insert failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

func insertBatch(ctx context.Context, conn driver.Conn, events []*DecisionEvent) error {
	batch, err := conn.PrepareBatch(ctx, `
		INSERT INTO decision_events (
			request_id, timestamp, tenant_id, user_id, principal_user_id,
			tool_call_id, tool_name, arguments_json,
			action, message, confidence,
			verification_count, verification_failures, has_preview,
			provider, latency_ms, source
		)
	`)
	if err != nil {
		return err
	}

	for _, e := range events {
		var hasPreview uint8
		if e.HasPreview {
			hasPreview = 1
		}
		if err := batch.Append(
			e.RequestID,
			e.Timestamp,
			e.TenantID,
			e.UserID,
			e.PrincipalUserID,
			e.ToolCallID,
			e.ToolName,
			e.ArgumentsJSON,
			e.Action,
			e.Message,
			e.Confidence,
			e.VerificationCount,
			e.VerificationFailures,
			hasPreview,
			e.Provider,
			e.LatencyMs,
			e.Source,
		); err != nil {
			return err
		}
	}
	return batch.Send()
}

// LogWriter is a fallback EventWriter for local development.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *DecisionEvent) {
	w.logger.Info("decision_event",
		zap.String("request_id", event.RequestID),
		zap.String("tenant_id", event.TenantID),
		zap.String("user_id", event.UserID),
		zap.String("principal_user_id", event.PrincipalUserID),
		zap.String("tool_name", event.ToolName),
		zap.String("action", event.Action),
		zap.String("message", event.Message),
		zap.Float32("confidence", event.Confidence),
		zap.Int32("verification_count", event.VerificationCount),
		zap.Float32("latency_ms", event.LatencyMs),
		zap.String("source", event.Source),
	)
}

func (w *LogWriter) Close() {}
