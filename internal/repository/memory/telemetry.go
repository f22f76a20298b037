package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
)

// TelemetryRepository is an in-memory telemetry.Repository implementation.
// Span inserts are idempotent on (ProjectID, StartTime, SpanID) to mirror the
// Postgres ON CONFLICT DO NOTHING behavior.
type TelemetryRepository struct {
	mu      sync.RWMutex
	logs    []*telemetry.LogEntry
	metrics []*telemetry.MetricPoint
	spans   []*telemetry.Span
	spanKey map[string]struct{}
}

func NewTelemetryRepository() *TelemetryRepository {
	return &TelemetryRepository{spanKey: make(map[string]struct{})}
}

func (r *TelemetryRepository) InsertLogs(_ context.Context, entries []*telemetry.LogEntry) (*telemetry.BatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := &telemetry.BatchResult{}
	for _, e := range entries {
		if !e.Level.IsValid() {
			res.Rejected++
			res.Errors = append(res.Errors, "invalid level: "+string(e.Level))
			continue
		}
		cp := *e
		r.logs = append(r.logs, &cp)
		res.Accepted++
	}
	return res, nil
}

func matchesLogQuery(e *telemetry.LogEntry, q telemetry.LogQuery) bool {
	if e.ProjectID != q.ProjectID {
		return false
	}
	if len(q.Levels) > 0 && !containsLevel(q.Levels, e.Level) {
		return false
	}
	if q.Source != "" && e.Source != q.Source {
		return false
	}
	if q.Search != "" && !strings.Contains(strings.ToLower(e.Message), strings.ToLower(q.Search)) {
		return false
	}
	if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
		return false
	}
	return true
}

func (r *TelemetryRepository) QueryLogs(_ context.Context, q telemetry.LogQuery) ([]*telemetry.LogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*telemetry.LogEntry
	for _, e := range r.logs {
		if !matchesLogQuery(e, q) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if q.Offset > 0 && q.Offset < len(out) {
		out = out[q.Offset:]
	} else if q.Offset >= len(out) {
		out = nil
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

// CountLogs reports the total number of log lines matching q, ignoring its
// Limit/Offset — used to compute the query service's total/has_more fields.
func (r *TelemetryRepository) CountLogs(_ context.Context, q telemetry.LogQuery) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, e := range r.logs {
		if matchesLogQuery(e, q) {
			count++
		}
	}
	return count, nil
}

func (r *TelemetryRepository) LogStats(_ context.Context, projectID project.ID, since time.Time) (map[telemetry.LogLevel]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[telemetry.LogLevel]int)
	for _, e := range r.logs {
		if e.ProjectID == projectID && (since.IsZero() || !e.Timestamp.Before(since)) {
			out[e.Level]++
		}
	}
	return out, nil
}

func (r *TelemetryRepository) DeleteLogsOlderThan(_ context.Context, projectID project.ID, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*telemetry.LogEntry
	var deleted int64
	for _, e := range r.logs {
		if e.ProjectID == projectID && e.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.logs = kept
	return deleted, nil
}

func (r *TelemetryRepository) InsertMetrics(_ context.Context, points []*telemetry.MetricPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range points {
		if err := p.ValidateHistogram(); err != nil {
			return err
		}
	}
	for _, p := range points {
		cp := *p
		r.metrics = append(r.metrics, &cp)
	}
	return nil
}

func (r *TelemetryRepository) QueryMetrics(_ context.Context, q telemetry.MetricQuery) ([]*telemetry.MetricPoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*telemetry.MetricPoint
	for _, p := range r.metrics {
		if p.ProjectID != q.ProjectID {
			continue
		}
		if q.Name != "" && p.Name != q.Name {
			continue
		}
		if !q.Since.IsZero() && p.Timestamp.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && p.Timestamp.After(q.Until) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *TelemetryRepository) DeleteMetricsOlderThan(_ context.Context, projectID project.ID, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*telemetry.MetricPoint
	var deleted int64
	for _, p := range r.metrics {
		if p.ProjectID == projectID && p.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, p)
	}
	r.metrics = kept
	return deleted, nil
}

func spanConflictKey(s *telemetry.Span) string {
	return string(s.ProjectID) + "|" + s.StartTime.Format(time.RFC3339Nano) + "|" + s.SpanID
}

func (r *TelemetryRepository) InsertSpans(_ context.Context, spans []*telemetry.Span) (*telemetry.BatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := &telemetry.BatchResult{}
	for _, s := range spans {
		key := spanConflictKey(s)
		if _, exists := r.spanKey[key]; exists {
			continue // ON CONFLICT DO NOTHING: silently idempotent, not a rejection
		}
		cp := *s
		r.spans = append(r.spans, &cp)
		r.spanKey[key] = struct{}{}
		res.Accepted++
	}
	return res, nil
}

func (r *TelemetryRepository) QuerySpans(_ context.Context, q telemetry.SpanQuery) ([]*telemetry.Span, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*telemetry.Span
	for _, s := range r.spans {
		if s.ProjectID != q.ProjectID {
			continue
		}
		if q.ServiceName != "" && s.ServiceName != q.ServiceName {
			continue
		}
		if q.Name != "" && s.Name != q.Name {
			continue
		}
		if !q.Since.IsZero() && s.StartTime.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && s.StartTime.After(q.Until) {
			continue
		}
		if q.MinDuration > 0 && s.Duration() < q.MinDuration {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *TelemetryRepository) GetTrace(_ context.Context, projectID project.ID, traceID string) ([]*telemetry.Span, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*telemetry.Span
	for _, s := range r.spans {
		if s.ProjectID == projectID && s.TraceID == traceID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *TelemetryRepository) DeleteSpansOlderThan(_ context.Context, projectID project.ID, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*telemetry.Span
	var deleted int64
	for _, s := range r.spans {
		if s.ProjectID == projectID && s.StartTime.Before(cutoff) {
			delete(r.spanKey, spanConflictKey(s))
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	r.spans = kept
	return deleted, nil
}

func containsLevel(levels []telemetry.LogLevel, l telemetry.LogLevel) bool {
	for _, v := range levels {
		if v == l {
			return true
		}
	}
	return false
}
