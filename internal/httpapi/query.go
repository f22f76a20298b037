package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/sobshdev/altenia/infrastructure/httputil"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
	"github.com/sobshdev/altenia/internal/service/stream"
)

func registerQueryRoutes(api *mux.Router, d *Deps) {
	scoped := api.PathPrefix("/projects/{projectId}").Subrouter()
	scoped.Use(requireUser(d))

	scoped.HandleFunc("/logs", queryLogsHandler(d)).Methods(http.MethodGet)
	scoped.HandleFunc("/logs/stats", logStatsHandler(d)).Methods(http.MethodGet)
	scoped.HandleFunc("/logs/stream", logStreamHandler(d)).Methods(http.MethodGet)
	scoped.HandleFunc("/metrics", queryMetricsHandler(d)).Methods(http.MethodGet)
	scoped.HandleFunc("/traces", querySpansHandler(d)).Methods(http.MethodGet)
	scoped.HandleFunc("/traces/{traceId}", getTraceHandler(d)).Methods(http.MethodGet)
}

func parseLevels(raw string) []telemetry.LogLevel {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]telemetry.LogLevel, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, telemetry.LogLevel(p))
		}
	}
	return out
}

func parseTimeParam(r *http.Request, key string) time.Time {
	raw := httputil.QueryString(r, key, "")
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func queryLogsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := project.ID(mux.Vars(r)["projectId"])
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		offset, limit := httputil.PaginationParams(r, 100, 1000)
		q := telemetry.LogQuery{
			ProjectID: projectID,
			Levels:    parseLevels(httputil.QueryString(r, "levels", "")),
			Source:    httputil.QueryString(r, "source", ""),
			Search:    httputil.QueryString(r, "search", ""),
			Since:     parseTimeParam(r, "since"),
			Until:     parseTimeParam(r, "until"),
			Limit:     limit,
			Offset:    offset,
		}
		result, err := d.Query.QueryLogs(r.Context(), q)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, result)
	}
}

func logStatsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := project.ID(mux.Vars(r)["projectId"])
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		since := parseTimeParam(r, "since")
		if since.IsZero() {
			since = time.Now().Add(-24 * time.Hour)
		}
		stats, err := d.Query.LogStats(r.Context(), projectID, since)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, stats)
	}
}

// logStreamHandler serves log entries as a server-sent-events stream,
// scoped to a single project and filtered server-side by the Hub before
// delivery.
func logStreamHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := project.ID(mux.Vars(r)["projectId"])
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			httputil.InternalError(w, "streaming unsupported")
			return
		}

		filter := stream.Filter{
			Levels: parseLevels(httputil.QueryString(r, "levels", "")),
			Source: httputil.QueryString(r, "source", ""),
		}
		ch, unsubscribe := d.Stream.HubFor(projectID).Subscribe(filter)
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := r.Context()
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			case entry, open := <-ch:
				if !open {
					return
				}
				payload, err := json.Marshal(entry)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", payload)
				flusher.Flush()
			}
		}
	}
}

func queryMetricsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := project.ID(mux.Vars(r)["projectId"])
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		q := telemetry.MetricQuery{
			ProjectID: projectID,
			Name:      httputil.QueryString(r, "name", ""),
			Rollup:    telemetry.RollupLevel(httputil.QueryString(r, "rollup", string(telemetry.RollupRaw))),
			Since:     parseTimeParam(r, "since"),
			Until:     parseTimeParam(r, "until"),
			Limit:     httputil.QueryInt(r, "limit", 0),
		}
		series, err := d.Query.RollupMetrics(r.Context(), q)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, series)
	}
}

func querySpansHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := project.ID(mux.Vars(r)["projectId"])
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		q := telemetry.SpanQuery{
			ProjectID:   projectID,
			ServiceName: httputil.QueryString(r, "service_name", ""),
			Name:        httputil.QueryString(r, "name", ""),
			Since:       parseTimeParam(r, "since"),
			Until:       parseTimeParam(r, "until"),
			MinDuration: time.Duration(httputil.QueryInt(r, "min_duration_ms", 0)) * time.Millisecond,
			Limit:       httputil.QueryInt(r, "limit", 0),
		}
		spans, err := d.Query.QuerySpans(r.Context(), q)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, spans)
	}
}

func getTraceHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := project.ID(mux.Vars(r)["projectId"])
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		spans, err := d.Query.GetTrace(r.Context(), projectID, mux.Vars(r)["traceId"])
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, spans)
	}
}
