// Package alerting implements the Alert Evaluator component: periodic
// rule evaluation over ingested telemetry, firing/resolving alerts and
// dispatching webhook notifications.
package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/infrastructure/logging"
	"github.com/sobshdev/altenia/internal/domain/alerting"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
)

// Evaluator runs each enabled rule on a fixed tick, transitioning alerts
// between firing and resolved and notifying configured channels on change.
type Evaluator struct {
	rules     alerting.Repository
	telemetry telemetry.Repository
	projects  project.Repository
	notifier  *Notifier
	logger    *logging.Logger
}

// NewEvaluator constructs the alert evaluator.
func NewEvaluator(rules alerting.Repository, telemetryRepo telemetry.Repository, projects project.Repository, notifier *Notifier, logger *logging.Logger) *Evaluator {
	return &Evaluator{rules: rules, telemetry: telemetryRepo, projects: projects, notifier: notifier, logger: logger}
}

// Tick evaluates every enabled rule once. A failure evaluating one rule does
// not stop the others from being evaluated.
func (e *Evaluator) Tick(ctx context.Context) error {
	rules, err := e.rules.ListEnabledRules(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	now := time.Now()
	for _, rule := range rules {
		if err := e.evaluateRule(ctx, rule, now); err != nil && firstErr == nil {
			firstErr = err
		}
		_ = e.rules.TouchLastEvaluated(ctx, rule.ID, now)
	}
	return firstErr
}

func (e *Evaluator) evaluateRule(ctx context.Context, rule *alerting.Rule, now time.Time) error {
	window := time.Duration(rule.WindowSeconds) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	since := now.Add(-window)

	value, message, err := e.measure(ctx, rule, since)
	if err != nil {
		return err
	}

	operator := rule.Operator
	if operator == "" {
		operator = alerting.OpGreaterThanOrEqual
	}
	firing := operator.Compare(value, rule.Threshold)
	latest, err := e.rules.GetLatestAlert(ctx, rule.ID)
	if err != nil && !serrors.IsServiceError(err) {
		return err
	}
	currentlyFiring := latest != nil && latest.State == alerting.StateFiring

	switch {
	case firing && !currentlyFiring:
		return e.fire(ctx, rule, value, message, now)
	case !firing && currentlyFiring:
		return e.resolve(ctx, rule, latest, now)
	default:
		return nil
	}
}

// measure computes the rule's observed value and a human-readable message
// describing it, per rule kind.
func (e *Evaluator) measure(ctx context.Context, rule *alerting.Rule, since time.Time) (float64, string, error) {
	switch rule.Kind {
	case alerting.RuleErrorRate:
		return e.measureErrorRate(ctx, rule, since)
	case alerting.RuleLogCount:
		return e.measureLogCount(ctx, rule, since)
	case alerting.RulePatternMatch:
		return e.measurePatternMatch(ctx, rule, since)
	default:
		return 0, "", fmt.Errorf("alerting: unknown rule kind %q", rule.Kind)
	}
}

// defaultErrorRateLevels is the numerator's level set when a rule doesn't
// override it via config.levels.
var defaultErrorRateLevels = []telemetry.LogLevel{telemetry.LevelError, telemetry.LevelFatal}

// measureErrorRate computes errors/total*100 over the window; the numerator
// defaults to {error, fatal} and may be overridden by rule.Levels. Division
// by zero (no log volume) yields 0, not firing.
func (e *Evaluator) measureErrorRate(ctx context.Context, rule *alerting.Rule, since time.Time) (float64, string, error) {
	stats, err := e.telemetry.LogStats(ctx, rule.ProjectID, since)
	if err != nil {
		return 0, "", err
	}
	total := 0
	for _, count := range stats {
		total += count
	}
	if total == 0 {
		return 0, "no log volume in window", nil
	}
	levels := rule.Levels
	if len(levels) == 0 {
		levels = defaultErrorRateLevels
	}
	errorCount := 0
	for _, lvl := range levels {
		errorCount += stats[lvl]
	}
	rate := float64(errorCount) / float64(total) * 100
	return rate, fmt.Sprintf("%d/%d log lines at the configured level(s)", errorCount, total), nil
}

// measureLogCount counts logs in the window matching rule.Levels/rule.Source,
// both optional.
func (e *Evaluator) measureLogCount(ctx context.Context, rule *alerting.Rule, since time.Time) (float64, string, error) {
	count, err := e.telemetry.CountLogs(ctx, telemetry.LogQuery{
		ProjectID: rule.ProjectID,
		Levels:    rule.Levels,
		Source:    rule.Source,
		Since:     since,
	})
	if err != nil {
		return 0, "", err
	}
	return float64(count), fmt.Sprintf("%d log lines in window", count), nil
}

func (e *Evaluator) measurePatternMatch(ctx context.Context, rule *alerting.Rule, since time.Time) (float64, string, error) {
	if rule.Pattern == "" {
		return 0, "empty pattern", nil
	}
	entries, err := e.telemetry.QueryLogs(ctx, telemetry.LogQuery{
		ProjectID: rule.ProjectID,
		Since:     since,
		Search:    rule.Pattern,
		Limit:     1000,
	})
	if err != nil {
		return 0, "", err
	}
	pattern := strings.ToLower(rule.Pattern)
	matches := 0
	for _, entry := range entries {
		if strings.Contains(strings.ToLower(entry.Message), pattern) {
			matches++
		}
	}
	return float64(matches), fmt.Sprintf("%d lines matched %q", matches, rule.Pattern), nil
}

func (e *Evaluator) fire(ctx context.Context, rule *alerting.Rule, value float64, message string, now time.Time) error {
	alert := &alerting.Alert{
		ID:        alerting.NewAlertID(),
		RuleID:    rule.ID,
		ProjectID: rule.ProjectID,
		State:     alerting.StateFiring,
		Value:     value,
		Message:   message,
		FiredAt:   now,
	}
	if err := e.rules.CreateAlert(ctx, alert); err != nil {
		return err
	}
	return e.notifyChannels(ctx, rule, alert)
}

func (e *Evaluator) resolve(ctx context.Context, rule *alerting.Rule, latest *alerting.Alert, now time.Time) error {
	if err := e.rules.ResolveAlert(ctx, latest.ID, now); err != nil {
		return err
	}
	resolved := *latest
	resolved.State = alerting.StateResolved
	resolved.ResolvedAt = &now
	return e.notifyChannels(ctx, rule, &resolved)
}

func (e *Evaluator) notifyChannels(ctx context.Context, rule *alerting.Rule, alert *alerting.Alert) error {
	if e.notifier == nil {
		return nil
	}
	projectName := string(rule.ProjectID)
	if e.projects != nil {
		if p, err := e.projects.Get(ctx, rule.ProjectID); err == nil {
			projectName = p.Name
		}
	}
	var firstErr error
	for _, channelID := range rule.ChannelIDs {
		channel, err := e.rulesChannel(ctx, channelID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !channel.Enabled {
			continue
		}
		if err := e.notifier.Dispatch(ctx, channel, rule, projectName, alert); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Evaluator) rulesChannel(ctx context.Context, id alerting.ChannelID) (*alerting.Channel, error) {
	return e.rules.GetChannel(ctx, id)
}
