package stream

import (
	"fmt"
	"time"

	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
)

// DecodeLogRow converts the row_to_json(NEW) payload of an INSERT on the
// logs table (as delivered by the "new_log" trigger) into a LogEntry. It is
// the default decode function wired into NewManager against the Postgres
// schema's column names.
func DecodeLogRow(row map[string]interface{}) (*telemetry.LogEntry, error) {
	id, _ := row["id"].(string)
	projectID, _ := row["project_id"].(string)
	message, _ := row["message"].(string)
	level, _ := row["level"].(string)
	source, _ := row["source"].(string)
	traceID, _ := row["trace_id"].(string)
	spanID, _ := row["span_id"].(string)

	if projectID == "" {
		return nil, fmt.Errorf("stream: new_log row missing project_id")
	}

	ts, err := parseRowTimestamp(row["timestamp"])
	if err != nil {
		return nil, err
	}

	return &telemetry.LogEntry{
		ID:        id,
		ProjectID: project.ID(projectID),
		Timestamp: ts,
		Level:     telemetry.LogLevel(level),
		Source:    source,
		Message:   message,
		TraceID:   traceID,
		SpanID:    spanID,
	}, nil
}

func parseRowTimestamp(v interface{}) (time.Time, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Now().UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("stream: parse new_log timestamp: %w", err)
	}
	return ts, nil
}
