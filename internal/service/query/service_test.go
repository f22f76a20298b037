package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
	"github.com/sobshdev/altenia/internal/repository/memory"
)

func seedTelemetry(t *testing.T) (*Service, project.ID) {
	t.Helper()
	repo := memory.NewTelemetryRepository()
	projectID := project.NewID()
	now := time.Now()

	_, err := repo.InsertLogs(context.Background(), []*telemetry.LogEntry{
		{ID: telemetry.NewLogID(), ProjectID: projectID, Timestamp: now, Level: telemetry.LevelInfo, Message: "hello"},
		{ID: telemetry.NewLogID(), ProjectID: projectID, Timestamp: now, Level: telemetry.LevelError, Message: "boom"},
	})
	require.NoError(t, err)

	err = repo.InsertMetrics(context.Background(), []*telemetry.MetricPoint{
		{ID: telemetry.NewMetricID(), ProjectID: projectID, Timestamp: now, Name: "latency_ms", Type: telemetry.MetricGauge, Value: 12.5},
	})
	require.NoError(t, err)

	_, err = repo.InsertSpans(context.Background(), []*telemetry.Span{
		{ID: telemetry.NewLogID(), ProjectID: projectID, TraceID: "trace-1", SpanID: "span-1", Name: "handler", StartTime: now, EndTime: now.Add(5 * time.Millisecond)},
	})
	require.NoError(t, err)

	return NewService(repo), projectID
}

func TestQueryLogs_FiltersByLevel(t *testing.T) {
	svc, projectID := seedTelemetry(t)
	result, err := svc.QueryLogs(context.Background(), telemetry.LogQuery{
		ProjectID: projectID,
		Levels:    []telemetry.LogLevel{telemetry.LevelError},
	})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	require.Equal(t, "boom", result.Entries[0].Message)
	require.Equal(t, 1, result.Total)
	require.False(t, result.HasMore)
}

func TestQueryLogs_RejectsUnknownLevel(t *testing.T) {
	svc, projectID := seedTelemetry(t)
	_, err := svc.QueryLogs(context.Background(), telemetry.LogQuery{
		ProjectID: projectID,
		Levels:    []telemetry.LogLevel{"bogus"},
	})
	require.Error(t, err)
}

func TestQueryLogs_HasMore(t *testing.T) {
	svc, projectID := seedTelemetry(t)
	result, err := svc.QueryLogs(context.Background(), telemetry.LogQuery{ProjectID: projectID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	require.Equal(t, 2, result.Total)
	require.True(t, result.HasMore)
}

func TestRollupMetrics_Raw(t *testing.T) {
	svc, projectID := seedTelemetry(t)
	series, err := svc.RollupMetrics(context.Background(), telemetry.MetricQuery{ProjectID: projectID, Name: "latency_ms"})
	require.NoError(t, err)
	require.Equal(t, telemetry.MetricGauge, series.Type)
	require.Len(t, series.Points, 1)
	require.Empty(t, series.Buckets)
}

func TestRollupMetrics_Buckets(t *testing.T) {
	svc, projectID := seedTelemetry(t)
	repo := memory.NewTelemetryRepository()
	now := time.Now().Truncate(time.Minute)
	require.NoError(t, repo.InsertMetrics(context.Background(), []*telemetry.MetricPoint{
		{ID: telemetry.NewMetricID(), ProjectID: projectID, Timestamp: now, Name: "latency_ms", Type: telemetry.MetricGauge, Value: 10},
		{ID: telemetry.NewMetricID(), ProjectID: projectID, Timestamp: now.Add(10 * time.Second), Name: "latency_ms", Type: telemetry.MetricGauge, Value: 20},
		{ID: telemetry.NewMetricID(), ProjectID: projectID, Timestamp: now.Add(time.Hour), Name: "latency_ms", Type: telemetry.MetricGauge, Value: 100},
	}))
	svc = NewService(repo)
	series, err := svc.RollupMetrics(context.Background(), telemetry.MetricQuery{ProjectID: projectID, Name: "latency_ms", Rollup: telemetry.Rollup1m})
	require.NoError(t, err)
	require.Len(t, series.Buckets, 2)
	require.True(t, series.Buckets[0].Bucket.After(series.Buckets[1].Bucket))
	newest, oldest := series.Buckets[0], series.Buckets[1]
	require.Equal(t, 100.0, newest.Avg)
	require.Equal(t, 1, newest.SampleCount)
	require.Equal(t, 15.0, oldest.Avg)
	require.Equal(t, 10.0, oldest.Min)
	require.Equal(t, 20.0, oldest.Max)
	require.Equal(t, 2, oldest.SampleCount)
}

func TestGetTrace(t *testing.T) {
	svc, projectID := seedTelemetry(t)
	spans, err := svc.GetTrace(context.Background(), projectID, "trace-1")
	require.NoError(t, err)
	require.Len(t, spans, 1)

	_, err = svc.GetTrace(context.Background(), projectID, "missing-trace")
	require.Error(t, err)
}
