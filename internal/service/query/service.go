// Package query implements the Query & Aggregation component: filtered log
// reads, log-level statistics, metric rollups, and trace search/detail.
package query

import (
	"context"
	"sort"
	"time"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Service answers read queries over ingested telemetry.
type Service struct {
	repo telemetry.Repository
}

// NewService constructs the query service.
func NewService(repo telemetry.Repository) *Service {
	return &Service{repo: repo}
}

// LogQueryResult is a page of log lines plus the total count of matching
// lines, so a caller can render pagination without issuing a second request.
type LogQueryResult struct {
	Entries  []*telemetry.LogEntry
	Total    int
	HasMore  bool
}

// QueryLogs returns a page of log lines matching q, clamping the page size,
// alongside the total count of matching lines and whether more remain.
func (s *Service) QueryLogs(ctx context.Context, q telemetry.LogQuery) (*LogQueryResult, error) {
	q.Limit = clampLimit(q.Limit)
	for _, lvl := range q.Levels {
		if !lvl.IsValid() {
			return nil, serrors.InvalidInput("levels", "unrecognized log level: "+string(lvl))
		}
	}
	entries, err := s.repo.QueryLogs(ctx, q)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.CountLogs(ctx, q)
	if err != nil {
		return nil, err
	}
	return &LogQueryResult{
		Entries: entries,
		Total:   total,
		HasMore: q.Offset+len(entries) < total,
	}, nil
}

// LogStats returns a count of log lines per level since a cutoff.
func (s *Service) LogStats(ctx context.Context, projectID project.ID, since time.Time) (map[telemetry.LogLevel]int, error) {
	return s.repo.LogStats(ctx, projectID, since)
}

// QueryMetrics returns metric points matching q.
func (s *Service) QueryMetrics(ctx context.Context, q telemetry.MetricQuery) ([]*telemetry.MetricPoint, error) {
	q.Limit = clampLimit(q.Limit)
	if q.Name == "" {
		return nil, serrors.MissingParameter("name")
	}
	return s.repo.QueryMetrics(ctx, q)
}

// MetricSeries is a named sequence of metric samples, as consumed by a
// dashboard chart. A raw query (or one with no Rollup set) populates Points;
// an aggregate query (1m/1h/1d) populates Buckets instead, one per
// time-bucket, ordered by bucket descending.
type MetricSeries struct {
	Name    string
	Type    telemetry.MetricType
	Rollup  telemetry.RollupLevel
	Points  []*telemetry.MetricPoint
	Buckets []MetricBucket
}

// MetricBucket is a single time-bucketed aggregate over raw metric points,
// mirroring the continuous-aggregate views' (bucket, avg, min, max, sum,
// sample_count) shape.
type MetricBucket struct {
	Bucket      time.Time
	Avg         float64
	Min         float64
	Max         float64
	Sum         float64
	SampleCount int
}

// RollupMetrics groups a metric query's results into a single named series.
// With Rollup unset or "raw" the series carries the raw points ordered by
// timestamp ascending; with Rollup set to 1m/1h/1d it carries time-bucketed
// aggregates ordered by bucket descending.
func (s *Service) RollupMetrics(ctx context.Context, q telemetry.MetricQuery) (*MetricSeries, error) {
	points, err := s.QueryMetrics(ctx, q)
	if err != nil {
		return nil, err
	}
	series := &MetricSeries{Name: q.Name, Rollup: q.Rollup}
	if len(points) > 0 {
		series.Type = points[0].Type
	}
	width := q.Rollup.Duration()
	if width <= 0 {
		series.Points = points
		return series, nil
	}
	series.Buckets = bucketizeMetrics(points, width)
	return series, nil
}

// bucketizeMetrics groups points into fixed-width time buckets and computes
// avg/min/max/sum/sample_count per bucket, returning buckets ordered newest
// first.
func bucketizeMetrics(points []*telemetry.MetricPoint, width time.Duration) []MetricBucket {
	byKey := make(map[int64]*MetricBucket)
	var keys []int64
	for _, p := range points {
		bucketStart := p.Timestamp.Truncate(width)
		key := bucketStart.Unix()
		b, ok := byKey[key]
		if !ok {
			b = &MetricBucket{Bucket: bucketStart, Min: p.Value, Max: p.Value}
			byKey[key] = b
			keys = append(keys, key)
		}
		if p.Value < b.Min {
			b.Min = p.Value
		}
		if p.Value > b.Max {
			b.Max = p.Value
		}
		b.Sum += p.Value
		b.SampleCount++
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	out := make([]MetricBucket, 0, len(keys))
	for _, key := range keys {
		b := byKey[key]
		b.Avg = b.Sum / float64(b.SampleCount)
		out = append(out, *b)
	}
	return out
}

// QuerySpans searches spans/traces matching q.
func (s *Service) QuerySpans(ctx context.Context, q telemetry.SpanQuery) ([]*telemetry.Span, error) {
	q.Limit = clampLimit(q.Limit)
	return s.repo.QuerySpans(ctx, q)
}

// GetTrace returns every span belonging to a single trace, ordered by the
// repository as an assembled call tree would expect (root spans first).
func (s *Service) GetTrace(ctx context.Context, projectID project.ID, traceID string) ([]*telemetry.Span, error) {
	if traceID == "" {
		return nil, serrors.MissingParameter("trace_id")
	}
	spans, err := s.repo.GetTrace(ctx, projectID, traceID)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, serrors.NotFound("trace", traceID)
	}
	return spans, nil
}

func clampLimit(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}
