// Package ingest implements the Telemetry Ingest Core component: validating
// and persisting batches of logs, metrics, and spans.
package ingest

import (
	"context"
	"time"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/infrastructure/metrics"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
)

// Config bounds how large a single ingest batch may be.
type Config struct {
	MaxBatchSize int
}

// Service validates and persists telemetry batches.
type Service struct {
	repo    telemetry.Repository
	cfg     Config
	metrics *metrics.Metrics
}

// NewService constructs the ingest service.
func NewService(repo telemetry.Repository, cfg Config, m *metrics.Metrics) *Service {
	return &Service{repo: repo, cfg: cfg, metrics: m}
}

// LogInput is a single log line as received from a client, before
// normalization and an ID/timestamp assignment.
type LogInput struct {
	Timestamp time.Time
	Level     telemetry.LogLevel
	Source    string
	Message   string
	Metadata  map[string]interface{}
	TraceID   string
	SpanID    string
}

// IngestLogs validates and stores a batch of log lines. Invalid lines are
// reported in the returned BatchResult rather than failing the whole batch,
// since log ingestion is partial-failure tolerant.
func (s *Service) IngestLogs(ctx context.Context, projectID project.ID, inputs []LogInput) (*telemetry.BatchResult, error) {
	if err := s.checkBatchSize(len(inputs)); err != nil {
		return nil, err
	}
	start := time.Now()

	now := time.Now()
	entries := make([]*telemetry.LogEntry, 0, len(inputs))
	for _, in := range inputs {
		ts := in.Timestamp
		if ts.IsZero() {
			ts = now
		}
		entries = append(entries, &telemetry.LogEntry{
			ID:        telemetry.NewLogID(),
			ProjectID: projectID,
			Timestamp: ts,
			Level:     in.Level,
			Source:    in.Source,
			Message:   in.Message,
			Metadata:  in.Metadata,
			TraceID:   in.TraceID,
			SpanID:    in.SpanID,
			CreatedAt: now,
		})
	}

	result, err := s.repo.InsertLogs(ctx, entries)
	if s.metrics != nil {
		s.metrics.RecordIngestBatch("ingest", "logs", ingestStatus(err), time.Since(start))
	}
	if err != nil {
		return nil, serrors.DatabaseError("insert_logs", err)
	}
	return result, nil
}

// MetricInput is a single metric sample as received from a client.
type MetricInput struct {
	Timestamp    time.Time
	Name         string
	Type         telemetry.MetricType
	Value        float64
	BucketBounds []float64
	BucketCounts []uint64
	Labels       map[string]string
}

// IngestMetrics validates and stores a batch of metric points. Metric
// ingestion is all-or-nothing: a single invalid histogram fails the batch.
func (s *Service) IngestMetrics(ctx context.Context, projectID project.ID, inputs []MetricInput) error {
	if err := s.checkBatchSize(len(inputs)); err != nil {
		return err
	}
	start := time.Now()

	now := time.Now()
	points := make([]*telemetry.MetricPoint, 0, len(inputs))
	for _, in := range inputs {
		if in.Name == "" {
			return serrors.MissingParameter("name")
		}
		ts := in.Timestamp
		if ts.IsZero() {
			ts = now
		}
		p := &telemetry.MetricPoint{
			ID:           telemetry.NewMetricID(),
			ProjectID:    projectID,
			Timestamp:    ts,
			Name:         in.Name,
			Type:         in.Type,
			Value:        in.Value,
			BucketBounds: in.BucketBounds,
			BucketCounts: in.BucketCounts,
			Labels:       in.Labels,
			CreatedAt:    now,
		}
		if p.Type == telemetry.MetricHistogram {
			if err := p.ValidateHistogram(); err != nil {
				return serrors.InvalidInput("bucket_counts", err.Error())
			}
		}
		points = append(points, p)
	}

	err := s.repo.InsertMetrics(ctx, points)
	if s.metrics != nil {
		s.metrics.RecordIngestBatch("ingest", "metrics", ingestStatus(err), time.Since(start))
	}
	if err != nil {
		return serrors.DatabaseError("insert_metrics", err)
	}
	return nil
}

// SpanInput is a single span as received from a client.
type SpanInput struct {
	TraceID       string
	SpanID        string
	ParentSpanID  string
	Name          string
	Kind          telemetry.SpanKind
	StartTime     time.Time
	EndTime       time.Time
	Status        telemetry.SpanStatus
	StatusMessage string
	Attributes    map[string]interface{}
	ServiceName   string
}

// IngestSpans validates and stores a batch of spans, idempotently: spans
// that collide on (project, start_time, span_id) with an existing row are
// silently dropped rather than erroring, so retried batches are safe.
func (s *Service) IngestSpans(ctx context.Context, projectID project.ID, inputs []SpanInput) (*telemetry.BatchResult, error) {
	if err := s.checkBatchSize(len(inputs)); err != nil {
		return nil, err
	}
	start := time.Now()

	now := time.Now()
	spans := make([]*telemetry.Span, 0, len(inputs))
	for _, in := range inputs {
		if in.TraceID == "" || in.SpanID == "" {
			return nil, serrors.MissingParameter("trace_id/span_id")
		}
		spans = append(spans, &telemetry.Span{
			ID:            telemetry.NewLogID(),
			ProjectID:     projectID,
			TraceID:       in.TraceID,
			SpanID:        in.SpanID,
			ParentSpanID:  in.ParentSpanID,
			Name:          in.Name,
			Kind:          in.Kind,
			StartTime:     in.StartTime,
			EndTime:       in.EndTime,
			Status:        in.Status,
			StatusMessage: in.StatusMessage,
			Attributes:    in.Attributes,
			ServiceName:   in.ServiceName,
			CreatedAt:     now,
		})
	}

	result, err := s.repo.InsertSpans(ctx, spans)
	if s.metrics != nil {
		s.metrics.RecordIngestBatch("ingest", "spans", ingestStatus(err), time.Since(start))
	}
	if err != nil {
		return nil, serrors.DatabaseError("insert_spans", err)
	}
	return result, nil
}

func ingestStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "accepted"
}

func (s *Service) checkBatchSize(n int) error {
	if s.cfg.MaxBatchSize > 0 && n > s.cfg.MaxBatchSize {
		return serrors.OutOfRange("batch_size", 1, s.cfg.MaxBatchSize)
	}
	if n == 0 {
		return serrors.InvalidInput("batch", "must not be empty")
	}
	return nil
}
