// Package telemetry models the three ingested signal types: logs, metrics,
// and spans, all scoped to a project.
package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sobshdev/altenia/internal/domain/project"
)

// LogLevel is the severity of a log entry, normalized across native and
// OTLP-derived ingestion paths.
type LogLevel string

const (
	LevelTrace LogLevel = "trace"
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

// ValidLevels enumerates the accepted log levels in ascending severity order.
var ValidLevels = []LogLevel{LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal}

// IsValid reports whether l is one of the recognized levels.
func (l LogLevel) IsValid() bool {
	for _, v := range ValidLevels {
		if v == l {
			return true
		}
	}
	return false
}

// LogEntry is a single ingested log line.
type LogEntry struct {
	ID        string
	ProjectID project.ID
	Timestamp time.Time
	Level     LogLevel
	Source    string
	Message   string
	Metadata  map[string]interface{}
	TraceID   string
	SpanID    string
	CreatedAt time.Time
}

// NewLogID generates a fresh log entry ID.
func NewLogID() string { return uuid.New().String() }

// MetricType distinguishes the shape of a metric point.
type MetricType string

const (
	MetricGauge     MetricType = "gauge"
	MetricCounter   MetricType = "counter"
	MetricHistogram MetricType = "histogram"
)

// MetricPoint is a single ingested metric sample. Value is used for gauge
// and counter points; BucketBounds/BucketCounts are used for histograms.
type MetricPoint struct {
	ID           string
	ProjectID    project.ID
	Timestamp    time.Time
	Name         string
	Type         MetricType
	Value        float64
	BucketBounds []float64
	BucketCounts []uint64
	Labels       map[string]string
	CreatedAt    time.Time
}

// NewMetricID generates a fresh metric point ID.
func NewMetricID() string { return uuid.New().String() }

// ValidateHistogram checks the bucket-bounds/bucket-counts invariant: bounds
// must be strictly ascending, and counts must have length len(bounds) (no
// overflow bucket) or len(bounds)+1 (with an overflow bucket for values
// greater than the last bound).
func (m *MetricPoint) ValidateHistogram() error {
	for i := 1; i < len(m.BucketBounds); i++ {
		if m.BucketBounds[i] <= m.BucketBounds[i-1] {
			return errBucketBoundsNotAscending
		}
	}
	n := len(m.BucketCounts)
	if n != len(m.BucketBounds) && n != len(m.BucketBounds)+1 {
		return errBucketCountsLength
	}
	return nil
}

var (
	errBucketBoundsNotAscending = errInvalid("histogram bucket bounds must be strictly ascending")
	errBucketCountsLength       = errInvalid("histogram bucket_counts length must equal len(bounds) or len(bounds)+1")
)

type errInvalid string

func (e errInvalid) Error() string { return string(e) }

// SpanKind mirrors the OTLP span kind enumeration.
type SpanKind string

const (
	SpanKindUnspecified SpanKind = "unspecified"
	SpanKindInternal    SpanKind = "internal"
	SpanKindServer      SpanKind = "server"
	SpanKindClient      SpanKind = "client"
	SpanKindProducer    SpanKind = "producer"
	SpanKindConsumer    SpanKind = "consumer"
)

// SpanStatus mirrors the OTLP span status code.
type SpanStatus string

const (
	StatusUnset SpanStatus = "unset"
	StatusOK    SpanStatus = "ok"
	StatusError SpanStatus = "error"
)

// Span is a single ingested distributed-trace span.
type Span struct {
	ID             string
	ProjectID      project.ID
	TraceID        string
	SpanID         string
	ParentSpanID   string
	Name           string
	Kind           SpanKind
	StartTime      time.Time
	EndTime        time.Time
	Status         SpanStatus
	StatusMessage  string
	Attributes     map[string]interface{}
	ServiceName    string
	CreatedAt      time.Time
}

// Duration returns the span's wall-clock duration.
func (s *Span) Duration() time.Duration { return s.EndTime.Sub(s.StartTime) }

// BatchResult reports per-item outcomes for a batch ingest call.
type BatchResult struct {
	Accepted int
	Rejected int
	Errors   []string
}

// Repository persists telemetry signals.
type Repository interface {
	InsertLogs(ctx context.Context, entries []*LogEntry) (*BatchResult, error)
	QueryLogs(ctx context.Context, q LogQuery) ([]*LogEntry, error)
	CountLogs(ctx context.Context, q LogQuery) (int, error)
	LogStats(ctx context.Context, projectID project.ID, since time.Time) (map[LogLevel]int, error)
	DeleteLogsOlderThan(ctx context.Context, projectID project.ID, cutoff time.Time) (int64, error)

	InsertMetrics(ctx context.Context, points []*MetricPoint) error
	QueryMetrics(ctx context.Context, q MetricQuery) ([]*MetricPoint, error)
	DeleteMetricsOlderThan(ctx context.Context, projectID project.ID, cutoff time.Time) (int64, error)

	InsertSpans(ctx context.Context, spans []*Span) (*BatchResult, error)
	QuerySpans(ctx context.Context, q SpanQuery) ([]*Span, error)
	GetTrace(ctx context.Context, projectID project.ID, traceID string) ([]*Span, error)
	DeleteSpansOlderThan(ctx context.Context, projectID project.ID, cutoff time.Time) (int64, error)
}

// LogQuery filters a log read.
type LogQuery struct {
	ProjectID project.ID
	Levels    []LogLevel
	Source    string
	Search    string
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// RollupLevel selects the time-bucket width a metrics query is aggregated
// at, or "raw" for unaggregated points.
type RollupLevel string

const (
	RollupRaw RollupLevel = "raw"
	Rollup1m  RollupLevel = "1m"
	Rollup1h  RollupLevel = "1h"
	Rollup1d  RollupLevel = "1d"
)

// Duration returns the bucket width for aggregate levels, or zero for raw.
func (r RollupLevel) Duration() time.Duration {
	switch r {
	case Rollup1m:
		return time.Minute
	case Rollup1h:
		return time.Hour
	case Rollup1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// MetricQuery filters a metric read.
type MetricQuery struct {
	ProjectID project.ID
	Name      string
	Rollup    RollupLevel
	Since     time.Time
	Until     time.Time
	Limit     int
}

// SpanQuery filters a span/trace search.
type SpanQuery struct {
	ProjectID   project.ID
	ServiceName string
	Name        string
	Since       time.Time
	Until       time.Time
	MinDuration time.Duration
	Limit       int
}
