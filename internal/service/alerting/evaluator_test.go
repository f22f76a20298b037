package alerting

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sobshdev/altenia/internal/domain/alerting"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
	"github.com/sobshdev/altenia/internal/repository/memory"
)

func TestEvaluator_FiresAndResolvesErrorRateRule(t *testing.T) {
	var deliveries int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, notifierUserAgent, r.Header.Get("User-Agent"))
		atomic.AddInt32(&deliveries, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rules := memory.NewAlertingRepository()
	telemetryRepo := memory.NewTelemetryRepository()
	ctx := context.Background()

	projectID := project.NewID()
	channel := &alerting.Channel{
		ID: alerting.NewChannelID(), ProjectID: projectID, Type: alerting.ChannelWebhook,
		URL: server.URL, Enabled: true,
	}
	require.NoError(t, rules.CreateChannel(ctx, channel))

	rule := &alerting.Rule{
		ID: alerting.NewRuleID(), ProjectID: projectID, Kind: alerting.RuleErrorRate,
		Threshold: 0.5, WindowSeconds: 60, ChannelIDs: []alerting.ChannelID{channel.ID}, Enabled: true,
	}
	require.NoError(t, rules.CreateRule(ctx, rule))

	_, err := telemetryRepo.InsertLogs(ctx, []*telemetry.LogEntry{
		{ID: telemetry.NewLogID(), ProjectID: projectID, Timestamp: time.Now(), Level: telemetry.LevelError, Message: "e1"},
		{ID: telemetry.NewLogID(), ProjectID: projectID, Timestamp: time.Now(), Level: telemetry.LevelError, Message: "e2"},
		{ID: telemetry.NewLogID(), ProjectID: projectID, Timestamp: time.Now(), Level: telemetry.LevelInfo, Message: "ok"},
	})
	require.NoError(t, err)

	notifier, err := NewNotifier(nil)
	require.NoError(t, err)
	projects := memory.NewProjectRepository()
	evaluator := NewEvaluator(rules, telemetryRepo, projects, notifier, nil)

	require.NoError(t, evaluator.Tick(ctx))
	require.EqualValues(t, 1, atomic.LoadInt32(&deliveries))

	alerts, err := rules.ListAlerts(ctx, projectID, alerting.StateFiring, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	// A second tick with the same firing condition should not create a new alert.
	require.NoError(t, evaluator.Tick(ctx))
	require.EqualValues(t, 1, atomic.LoadInt32(&deliveries))

	// Now tip the balance back to healthy and expect a resolve notification.
	telemetryRepo2 := memory.NewTelemetryRepository()
	evaluator = NewEvaluator(rules, telemetryRepo2, projects, notifier, nil)
	require.NoError(t, evaluator.Tick(ctx))
	require.EqualValues(t, 2, atomic.LoadInt32(&deliveries))

	resolved, err := rules.ListAlerts(ctx, projectID, alerting.StateResolved, 10)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
}

func TestEvaluator_LogCountRule(t *testing.T) {
	rules := memory.NewAlertingRepository()
	telemetryRepo := memory.NewTelemetryRepository()
	ctx := context.Background()
	projectID := project.NewID()

	rule := &alerting.Rule{
		ID: alerting.NewRuleID(), ProjectID: projectID, Kind: alerting.RuleLogCount,
		Threshold: 2, WindowSeconds: 60, Enabled: true,
	}
	require.NoError(t, rules.CreateRule(ctx, rule))

	_, err := telemetryRepo.InsertLogs(ctx, []*telemetry.LogEntry{
		{ID: telemetry.NewLogID(), ProjectID: projectID, Timestamp: time.Now(), Level: telemetry.LevelInfo, Message: "a"},
		{ID: telemetry.NewLogID(), ProjectID: projectID, Timestamp: time.Now(), Level: telemetry.LevelInfo, Message: "b"},
	})
	require.NoError(t, err)

	evaluator := NewEvaluator(rules, telemetryRepo, memory.NewProjectRepository(), nil, nil)
	require.NoError(t, evaluator.Tick(ctx))

	alerts, err := rules.ListAlerts(ctx, projectID, alerting.StateFiring, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
}
