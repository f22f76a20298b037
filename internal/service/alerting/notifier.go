package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sobshdev/altenia/infrastructure/httputil"
	"github.com/sobshdev/altenia/infrastructure/logging"
	"github.com/sobshdev/altenia/internal/domain/alerting"
)

// notifierUserAgent identifies the evaluator to webhook receivers.
const notifierUserAgent = "altenia-alert-evaluator/1"

// webhookPayload is the JSON body posted to a channel's URL, per the
// alerting component's webhook contract.
type webhookPayload struct {
	AlertID       string                 `json:"alert_id"`
	RuleID        string                 `json:"rule_id"`
	RuleName      string                 `json:"rule_name"`
	ProjectID     string                 `json:"project_id"`
	ProjectName   string                 `json:"project_name"`
	Status        string                 `json:"status"`
	TriggeredAt   time.Time              `json:"triggered_at"`
	TriggerValue  float64                `json:"trigger_value"`
	Threshold     float64                `json:"threshold"`
	Operator      string                 `json:"operator"`
	Message       string                 `json:"message"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Notifier delivers alert state transitions to configured channels. Delivery
// is single-attempt: a failed webhook is logged and surfaced to the caller,
// never retried, so one unreachable receiver cannot back up the evaluator.
type Notifier struct {
	client *http.Client
	logger *logging.Logger
}

// NewNotifier constructs a webhook notifier.
func NewNotifier(logger *logging.Logger) (*Notifier, error) {
	client, err := httputil.NewClient(httputil.ClientConfig{
		ServiceID: "alert-evaluator",
		Timeout:   10 * time.Second,
	}, httputil.ClientDefaults{Timeout: 10 * time.Second, MaxBodyBytes: 1 << 16})
	if err != nil {
		return nil, err
	}
	return &Notifier{client: client, logger: logger}, nil
}

// Dispatch delivers a single alert to a single channel, identifying the rule
// and project that produced it in the payload.
func (n *Notifier) Dispatch(ctx context.Context, channel *alerting.Channel, rule *alerting.Rule, projectName string, alert *alerting.Alert) error {
	triggeredAt := alert.FiredAt
	if alert.State == alerting.StateResolved && alert.ResolvedAt != nil {
		triggeredAt = *alert.ResolvedAt
	}
	body, err := json.Marshal(webhookPayload{
		AlertID:      string(alert.ID),
		RuleID:       string(alert.RuleID),
		RuleName:     rule.Name,
		ProjectID:    string(alert.ProjectID),
		ProjectName:  projectName,
		Status:       string(alert.State),
		TriggeredAt:  triggeredAt,
		TriggerValue: alert.Value,
		Threshold:    rule.Threshold,
		Operator:     string(rule.Operator),
		Message:      alert.Message,
	})
	if err != nil {
		return fmt.Errorf("alerting: marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, channel.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alerting: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", notifierUserAgent)
	for k, v := range channel.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if n.logger != nil {
		n.logger.LogWebhookDispatch(ctx, string(channel.ID), string(alert.RuleID), err)
	}
	if err != nil {
		return fmt.Errorf("alerting: webhook dispatch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alerting: webhook receiver returned status %d", resp.StatusCode)
	}
	return nil
}
