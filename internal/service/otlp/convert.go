// Package otlp translates OTLP JSON payloads (logs, metrics, traces) into
// the internal ingest shapes, per the OpenTelemetry protocol's JSON
// encoding of protobuf messages.
package otlp

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/sobshdev/altenia/internal/domain/telemetry"
	"github.com/sobshdev/altenia/internal/service/ingest"
)

// severityToLevel maps an OTLP severity number (1-24) to an internal log
// level, per the OpenTelemetry log data model's severity ranges.
func severityToLevel(n int64) telemetry.LogLevel {
	switch {
	case n >= 1 && n <= 4:
		return telemetry.LevelTrace
	case n >= 5 && n <= 8:
		return telemetry.LevelDebug
	case n >= 9 && n <= 12:
		return telemetry.LevelInfo
	case n >= 13 && n <= 16:
		return telemetry.LevelWarn
	case n >= 17 && n <= 20:
		return telemetry.LevelError
	case n >= 21 && n <= 24:
		return telemetry.LevelFatal
	default:
		return telemetry.LevelInfo
	}
}

// AnyValue translates an OTLP AnyValue JSON object to a Go value, walking
// its polymorphic fields in precedence order: string > bool > int > double
// > array > kv-list > bytes. Exactly one field is expected to be set on a
// well-formed payload; the precedence order only matters for malformed
// inputs carrying more than one.
func AnyValue(v gjson.Result) interface{} {
	if s := v.Get("stringValue"); s.Exists() {
		return s.String()
	}
	if b := v.Get("boolValue"); b.Exists() {
		return b.Bool()
	}
	if i := v.Get("intValue"); i.Exists() {
		return i.Int()
	}
	if d := v.Get("doubleValue"); d.Exists() {
		return d.Float()
	}
	if arr := v.Get("arrayValue.values"); arr.Exists() {
		out := make([]interface{}, 0)
		arr.ForEach(func(_, item gjson.Result) bool {
			out = append(out, AnyValue(item))
			return true
		})
		return out
	}
	if kv := v.Get("kvlistValue.values"); kv.Exists() {
		out := make(map[string]interface{})
		kv.ForEach(func(_, item gjson.Result) bool {
			out[item.Get("key").String()] = AnyValue(item.Get("value"))
			return true
		})
		return out
	}
	if by := v.Get("bytesValue"); by.Exists() {
		return by.String()
	}
	return nil
}

func attributesToMap(attrs gjson.Result) map[string]interface{} {
	out := make(map[string]interface{})
	attrs.ForEach(func(_, item gjson.Result) bool {
		out[item.Get("key").String()] = AnyValue(item.Get("value"))
		return true
	})
	return out
}

// parseUnixNano parses an OTLP nanosecond-string timestamp field.
func parseUnixNano(field gjson.Result) time.Time {
	nanos := field.Int()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

// ConvertLogs translates an OTLP ExportLogsServiceRequest JSON body into a
// flat batch of log ingest inputs.
func ConvertLogs(body []byte) []ingest.LogInput {
	var out []ingest.LogInput
	root := gjson.ParseBytes(body)
	root.Get("resourceLogs").ForEach(func(_, rl gjson.Result) bool {
		resourceAttrs := attributesToMap(rl.Get("resource.attributes"))
		serviceName := resourceServiceName(rl.Get("resource.attributes"))
		rl.Get("scopeLogs").ForEach(func(_, sl gjson.Result) bool {
			scopeName := sl.Get("scope.name").String()
			sl.Get("logRecords").ForEach(func(_, rec gjson.Result) bool {
				meta := attributesToMap(rec.Get("attributes"))
				for k, v := range resourceAttrs {
					if _, exists := meta[k]; !exists {
						meta[k] = v
					}
				}
				out = append(out, ingest.LogInput{
					Timestamp: parseUnixNano(rec.Get("timeUnixNano")),
					Level:     severityToLevel(rec.Get("severityNumber").Int()),
					Source:    logSource(serviceName, scopeName),
					Message:   bodyToMessage(rec.Get("body")),
					Metadata:  meta,
					TraceID:   rec.Get("traceId").String(),
					SpanID:    rec.Get("spanId").String(),
				})
				return true
			})
			return true
		})
		return true
	})
	return out
}

// logSource prefers the resource's service.name, as the natural identifier
// of what produced the log line; the instrumentation scope name is a
// fallback when no service.name attribute was set.
func logSource(serviceName, scopeName string) string {
	if serviceName != "" {
		return serviceName
	}
	return scopeName
}

func bodyToMessage(body gjson.Result) string {
	if v := AnyValue(body); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return body.String()
}

// ConvertMetrics translates an OTLP ExportMetricsServiceRequest JSON body
// into a flat batch of metric ingest inputs.
func ConvertMetrics(body []byte) []ingest.MetricInput {
	var out []ingest.MetricInput
	root := gjson.ParseBytes(body)
	root.Get("resourceMetrics").ForEach(func(_, rm gjson.Result) bool {
		rm.Get("scopeMetrics").ForEach(func(_, sm gjson.Result) bool {
			sm.Get("metrics").ForEach(func(_, m gjson.Result) bool {
				name := m.Get("name").String()
				if gauge := m.Get("gauge.dataPoints"); gauge.Exists() {
					convertNumberPoints(gauge, name, telemetry.MetricGauge, &out)
				}
				if sum := m.Get("sum.dataPoints"); sum.Exists() {
					convertNumberPoints(sum, name, telemetry.MetricCounter, &out)
				}
				if hist := m.Get("histogram.dataPoints"); hist.Exists() {
					convertHistogramPoints(hist, name, &out)
				}
				return true
			})
			return true
		})
		return true
	})
	return out
}

func convertNumberPoints(points gjson.Result, name string, typ telemetry.MetricType, out *[]ingest.MetricInput) {
	points.ForEach(func(_, dp gjson.Result) bool {
		labels := make(map[string]string)
		dp.Get("attributes").ForEach(func(_, a gjson.Result) bool {
			labels[a.Get("key").String()] = a.Get("value.stringValue").String()
			return true
		})
		value := dp.Get("asDouble").Float()
		if dp.Get("asInt").Exists() {
			value = dp.Get("asInt").Float()
		}
		*out = append(*out, ingest.MetricInput{
			Timestamp: parseUnixNano(dp.Get("timeUnixNano")),
			Name:      name,
			Type:      typ,
			Value:     value,
			Labels:    labels,
		})
		return true
	})
}

func convertHistogramPoints(points gjson.Result, name string, out *[]ingest.MetricInput) {
	points.ForEach(func(_, dp gjson.Result) bool {
		var bounds []float64
		dp.Get("explicitBounds").ForEach(func(_, b gjson.Result) bool {
			bounds = append(bounds, b.Float())
			return true
		})
		var counts []uint64
		dp.Get("bucketCounts").ForEach(func(_, c gjson.Result) bool {
			counts = append(counts, uint64(c.Int()))
			return true
		})
		*out = append(*out, ingest.MetricInput{
			Timestamp:    parseUnixNano(dp.Get("timeUnixNano")),
			Name:         name,
			Type:         telemetry.MetricHistogram,
			BucketBounds: bounds,
			BucketCounts: counts,
		})
		return true
	})
}

// otlpSpanKinds maps the OTLP numeric span kind enum to the internal kind.
var otlpSpanKinds = map[int64]telemetry.SpanKind{
	0: telemetry.SpanKindUnspecified,
	1: telemetry.SpanKindInternal,
	2: telemetry.SpanKindServer,
	3: telemetry.SpanKindClient,
	4: telemetry.SpanKindProducer,
	5: telemetry.SpanKindConsumer,
}

// otlpStatusCodes maps the OTLP numeric status code enum (0=UNSET,
// 1=OK, 2=ERROR) to the internal status.
var otlpStatusCodes = map[int64]telemetry.SpanStatus{
	0: telemetry.StatusUnset,
	1: telemetry.StatusOK,
	2: telemetry.StatusError,
}

// ConvertSpans translates an OTLP ExportTraceServiceRequest JSON body into a
// flat batch of span ingest inputs.
func ConvertSpans(body []byte) []ingest.SpanInput {
	var out []ingest.SpanInput
	root := gjson.ParseBytes(body)
	root.Get("resourceSpans").ForEach(func(_, rs gjson.Result) bool {
		serviceName := resourceServiceName(rs.Get("resource.attributes"))
		rs.Get("scopeSpans").ForEach(func(_, ss gjson.Result) bool {
			ss.Get("spans").ForEach(func(_, sp gjson.Result) bool {
				out = append(out, ingest.SpanInput{
					TraceID:       sp.Get("traceId").String(),
					SpanID:        sp.Get("spanId").String(),
					ParentSpanID:  sp.Get("parentSpanId").String(),
					Name:          sp.Get("name").String(),
					Kind:          otlpSpanKinds[sp.Get("kind").Int()],
					StartTime:     parseUnixNano(sp.Get("startTimeUnixNano")),
					EndTime:       parseUnixNano(sp.Get("endTimeUnixNano")),
					Status:        otlpStatusCodes[sp.Get("status.code").Int()],
					StatusMessage: sp.Get("status.message").String(),
					Attributes:    attributesToMap(sp.Get("attributes")),
					ServiceName:   serviceName,
				})
				return true
			})
			return true
		})
		return true
	})
	return out
}

func resourceServiceName(attrs gjson.Result) string {
	var name string
	attrs.ForEach(func(_, item gjson.Result) bool {
		if item.Get("key").String() == "service.name" {
			name = item.Get("value.stringValue").String()
			return false
		}
		return true
	})
	return name
}
