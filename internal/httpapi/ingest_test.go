package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sobshdev/altenia/infrastructure/logging"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
)

func withProject(projectID string) func(*http.Request) *http.Request {
	return func(r *http.Request) *http.Request {
		return r.WithContext(logging.WithProjectID(r.Context(), projectID))
	}
}

func TestIngestLogsHandler(t *testing.T) {
	d := testDeps(t)

	body, _ := json.Marshal(logsBatchRequest{Logs: []logEntryRequest{
		{Level: string(telemetry.LevelInfo), Source: "api", Message: "request handled"},
	}})
	req := httptest.NewRequest(http.MethodPost, "/ingest/logs", bytes.NewReader(body))
	req = withProject("proj-1")(req)
	rr := httptest.NewRecorder()

	ingestLogsHandler(d).ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	var result telemetry.BatchResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.Equal(t, 1, result.Accepted)
}

func TestIngestMetricsHandler(t *testing.T) {
	d := testDeps(t)

	body, _ := json.Marshal(metricsBatchRequest{Metrics: []metricPointRequest{
		{Name: "request_count", Type: string(telemetry.MetricCounter), Value: 1},
	}})
	req := httptest.NewRequest(http.MethodPost, "/ingest/metrics", bytes.NewReader(body))
	req = withProject("proj-1")(req)
	rr := httptest.NewRecorder()

	ingestMetricsHandler(d).ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestIngestSpansHandler(t *testing.T) {
	d := testDeps(t)

	body, _ := json.Marshal(spansBatchRequest{Spans: []spanRequest{
		{TraceID: "trace-1", SpanID: "span-1", Name: "GET /", ServiceName: "api"},
	}})
	req := httptest.NewRequest(http.MethodPost, "/ingest/traces", bytes.NewReader(body))
	req = withProject("proj-1")(req)
	rr := httptest.NewRecorder()

	ingestSpansHandler(d).ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
}
