package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
	"github.com/sobshdev/altenia/internal/repository/memory"
)

func newTestService() (*Service, project.ID) {
	repo := memory.NewTelemetryRepository()
	svc := NewService(repo, Config{MaxBatchSize: 100}, nil)
	return svc, project.NewID()
}

func TestIngestLogs_PartialFailureReporting(t *testing.T) {
	svc, projectID := newTestService()
	result, err := svc.IngestLogs(context.Background(), projectID, []LogInput{
		{Level: telemetry.LevelInfo, Message: "ok"},
		{Level: "bogus", Message: "bad level"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Accepted)
	require.Equal(t, 1, result.Rejected)
}

func TestIngestMetrics_HistogramValidation(t *testing.T) {
	svc, projectID := newTestService()
	err := svc.IngestMetrics(context.Background(), projectID, []MetricInput{
		{
			Name:         "request_duration",
			Type:         telemetry.MetricHistogram,
			BucketBounds: []float64{0.1, 0.5, 1.0},
			BucketCounts: []uint64{5, 3, 1, 0},
		},
	})
	require.NoError(t, err)

	err = svc.IngestMetrics(context.Background(), projectID, []MetricInput{
		{
			Name:         "bad_histogram",
			Type:         telemetry.MetricHistogram,
			BucketBounds: []float64{1.0, 0.5},
			BucketCounts: []uint64{1, 2},
		},
	})
	require.Error(t, err)
}

func TestIngestSpans_IdempotentBatch(t *testing.T) {
	svc, projectID := newTestService()
	start := time.Now()
	input := []SpanInput{
		{TraceID: "t1", SpanID: "s1", Name: "op", StartTime: start, EndTime: start.Add(time.Millisecond)},
	}

	result1, err := svc.IngestSpans(context.Background(), projectID, input)
	require.NoError(t, err)
	require.Equal(t, 1, result1.Accepted)

	result2, err := svc.IngestSpans(context.Background(), projectID, input)
	require.NoError(t, err)
	require.Equal(t, 0, result2.Accepted, "retried batch should be idempotent")
}

func TestIngestLogs_RejectsOversizedBatch(t *testing.T) {
	svc, projectID := newTestService()
	inputs := make([]LogInput, 101)
	for i := range inputs {
		inputs[i] = LogInput{Level: telemetry.LevelInfo, Message: "x"}
	}
	_, err := svc.IngestLogs(context.Background(), projectID, inputs)
	require.Error(t, err)
}
