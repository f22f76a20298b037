package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sobshdev/altenia/infrastructure/httputil"
	"github.com/sobshdev/altenia/infrastructure/logging"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
	"github.com/sobshdev/altenia/internal/service/ingest"
	"github.com/sobshdev/altenia/internal/service/otlp"
)

func registerIngestRoutes(router *mux.Router, d *Deps) {
	in := router.PathPrefix("/ingest").Subrouter()
	in.Use(requireAPIKey(d))
	in.HandleFunc("/logs", ingestLogsHandler(d)).Methods(http.MethodPost)
	in.HandleFunc("/metrics", ingestMetricsHandler(d)).Methods(http.MethodPost)
	in.HandleFunc("/traces", ingestSpansHandler(d)).Methods(http.MethodPost)

	otlpRouter := router.PathPrefix("/v1").Subrouter()
	otlpRouter.Use(requireAPIKey(d))
	otlpRouter.HandleFunc("/logs", otlpLogsHandler(d)).Methods(http.MethodPost)
	otlpRouter.HandleFunc("/metrics", otlpMetricsHandler(d)).Methods(http.MethodPost)
	otlpRouter.HandleFunc("/traces", otlpSpansHandler(d)).Methods(http.MethodPost)
}

func ingestProjectID(r *http.Request) project.ID {
	return project.ID(logging.GetProjectID(r.Context()))
}

type logEntryRequest struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Source    string                 `json:"source"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata"`
	TraceID   string                 `json:"trace_id"`
	SpanID    string                 `json:"span_id"`
}

type logsBatchRequest struct {
	Logs []logEntryRequest `json:"logs"`
}

func ingestLogsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req logsBatchRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		inputs := make([]ingest.LogInput, len(req.Logs))
		for i, l := range req.Logs {
			inputs[i] = ingest.LogInput{
				Timestamp: l.Timestamp,
				Level:     telemetry.LogLevel(l.Level),
				Source:    l.Source,
				Message:   l.Message,
				Metadata:  l.Metadata,
				TraceID:   l.TraceID,
				SpanID:    l.SpanID,
			}
		}
		result, err := d.Ingest.IngestLogs(r.Context(), ingestProjectID(r), inputs)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, result)
	}
}

type metricPointRequest struct {
	Timestamp    time.Time         `json:"timestamp"`
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	Value        float64           `json:"value"`
	BucketBounds []float64         `json:"bucket_bounds"`
	BucketCounts []uint64          `json:"bucket_counts"`
	Labels       map[string]string `json:"labels"`
}

type metricsBatchRequest struct {
	Metrics []metricPointRequest `json:"metrics"`
}

func ingestMetricsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req metricsBatchRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		inputs := make([]ingest.MetricInput, len(req.Metrics))
		for i, m := range req.Metrics {
			inputs[i] = ingest.MetricInput{
				Timestamp:    m.Timestamp,
				Name:         m.Name,
				Type:         telemetry.MetricType(m.Type),
				Value:        m.Value,
				BucketBounds: m.BucketBounds,
				BucketCounts: m.BucketCounts,
				Labels:       m.Labels,
			}
		}
		if err := d.Ingest.IngestMetrics(r.Context(), ingestProjectID(r), inputs); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

type spanRequest struct {
	TraceID       string                 `json:"trace_id"`
	SpanID        string                 `json:"span_id"`
	ParentSpanID  string                 `json:"parent_span_id"`
	Name          string                 `json:"name"`
	Kind          string                 `json:"kind"`
	StartTime     time.Time              `json:"start_time"`
	EndTime       time.Time              `json:"end_time"`
	Status        string                 `json:"status"`
	StatusMessage string                 `json:"status_message"`
	Attributes    map[string]interface{} `json:"attributes"`
	ServiceName   string                 `json:"service_name"`
}

type spansBatchRequest struct {
	Spans []spanRequest `json:"spans"`
}

func ingestSpansHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req spansBatchRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		inputs := make([]ingest.SpanInput, len(req.Spans))
		for i, s := range req.Spans {
			inputs[i] = ingest.SpanInput{
				TraceID:       s.TraceID,
				SpanID:        s.SpanID,
				ParentSpanID:  s.ParentSpanID,
				Name:          s.Name,
				Kind:          telemetry.SpanKind(s.Kind),
				StartTime:     s.StartTime,
				EndTime:       s.EndTime,
				Status:        telemetry.SpanStatus(s.Status),
				StatusMessage: s.StatusMessage,
				Attributes:    s.Attributes,
				ServiceName:   s.ServiceName,
			}
		}
		result, err := d.Ingest.IngestSpans(r.Context(), ingestProjectID(r), inputs)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, result)
	}
}

func otlpLogsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			httputil.BadRequest(w, "failed to read request body")
			return
		}
		inputs := otlp.ConvertLogs(body)
		result, err := d.Ingest.IngestLogs(r.Context(), ingestProjectID(r), inputs)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, result)
	}
}

func otlpMetricsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			httputil.BadRequest(w, "failed to read request body")
			return
		}
		inputs := otlp.ConvertMetrics(body)
		if err := d.Ingest.IngestMetrics(r.Context(), ingestProjectID(r), inputs); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

func otlpSpansHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			httputil.BadRequest(w, "failed to read request body")
			return
		}
		inputs := otlp.ConvertSpans(body)
		result, err := d.Ingest.IngestSpans(r.Context(), ingestProjectID(r), inputs)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, result)
	}
}
