// Package alerting implements the Alert Evaluator component: channel/rule
// CRUD (this file) plus the periodic evaluator and webhook notifier
// (evaluator.go, notifier.go).
package alerting

import (
	"context"
	"strings"
	"time"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/internal/domain/alerting"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
)

// Service implements alert channel and rule CRUD, plus read access to fired
// alert instances. Rule/channel mutations never touch Alert rows directly —
// those are owned exclusively by the Evaluator.
type Service struct {
	repo alerting.Repository
}

// NewService constructs the alerting CRUD service.
func NewService(repo alerting.Repository) *Service {
	return &Service{repo: repo}
}

// CreateChannel registers a new notification channel for a project.
func (s *Service) CreateChannel(ctx context.Context, projectID project.ID, name string, typ alerting.ChannelType, url, secret string, headers map[string]string) (*alerting.Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, serrors.InvalidInput("name", "must not be empty")
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, serrors.MissingParameter("url")
	}
	c := &alerting.Channel{
		ID:        alerting.NewChannelID(),
		ProjectID: projectID,
		Name:      name,
		Type:      typ,
		URL:       url,
		Secret:    secret,
		Headers:   headers,
		Enabled:   true,
		CreatedAt: time.Now(),
	}
	if err := s.repo.CreateChannel(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetChannel fetches a single channel by ID.
func (s *Service) GetChannel(ctx context.Context, id alerting.ChannelID) (*alerting.Channel, error) {
	return s.repo.GetChannel(ctx, id)
}

// ListChannels lists a project's notification channels.
func (s *Service) ListChannels(ctx context.Context, projectID project.ID) ([]*alerting.Channel, error) {
	return s.repo.ListChannels(ctx, projectID)
}

// UpdateChannel modifies an existing channel's name/url/headers/enabled flag.
func (s *Service) UpdateChannel(ctx context.Context, id alerting.ChannelID, name, url string, headers map[string]string, enabled bool) (*alerting.Channel, error) {
	c, err := s.repo.GetChannel(ctx, id)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name != "" {
		c.Name = name
	}
	if url = strings.TrimSpace(url); url != "" {
		c.URL = url
	}
	if headers != nil {
		c.Headers = headers
	}
	c.Enabled = enabled
	if err := s.repo.UpdateChannel(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteChannel removes a notification channel.
func (s *Service) DeleteChannel(ctx context.Context, id alerting.ChannelID) error {
	return s.repo.DeleteChannel(ctx, id)
}

// CreateRule registers a new alert rule for a project, disabled-by-default
// fields left zero where the rule kind does not use them.
func (s *Service) CreateRule(ctx context.Context, projectID project.ID, name string, kind alerting.RuleKind, op alerting.Operator, threshold float64, windowSeconds int, pattern string, levels []telemetry.LogLevel, source string, channelIDs []alerting.ChannelID) (*alerting.Rule, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, serrors.InvalidInput("name", "must not be empty")
	}
	if windowSeconds <= 0 {
		return nil, serrors.InvalidInput("window_seconds", "must be positive")
	}
	now := time.Now()
	r := &alerting.Rule{
		ID:            alerting.NewRuleID(),
		ProjectID:     projectID,
		Name:          name,
		Kind:          kind,
		Operator:      op,
		Threshold:     threshold,
		WindowSeconds: windowSeconds,
		Pattern:       pattern,
		Levels:        levels,
		Source:        source,
		ChannelIDs:    channelIDs,
		Enabled:       true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateRule(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// GetRule fetches a single rule by ID.
func (s *Service) GetRule(ctx context.Context, id alerting.RuleID) (*alerting.Rule, error) {
	return s.repo.GetRule(ctx, id)
}

// ListRules lists a project's alert rules.
func (s *Service) ListRules(ctx context.Context, projectID project.ID) ([]*alerting.Rule, error) {
	return s.repo.ListRules(ctx, projectID)
}

// UpdateRule modifies an existing rule's condition and channel bindings.
func (s *Service) UpdateRule(ctx context.Context, id alerting.RuleID, name string, op alerting.Operator, threshold float64, windowSeconds int, pattern string, levels []telemetry.LogLevel, source string, channelIDs []alerting.ChannelID, enabled bool) (*alerting.Rule, error) {
	r, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name != "" {
		r.Name = name
	}
	r.Operator = op
	r.Threshold = threshold
	if windowSeconds > 0 {
		r.WindowSeconds = windowSeconds
	}
	r.Pattern = pattern
	r.Levels = levels
	r.Source = source
	r.ChannelIDs = channelIDs
	r.Enabled = enabled
	r.UpdatedAt = time.Now()
	if err := s.repo.UpdateRule(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteRule removes an alert rule.
func (s *Service) DeleteRule(ctx context.Context, id alerting.RuleID) error {
	return s.repo.DeleteRule(ctx, id)
}

// ListAlerts lists fired/resolved alert instances for a project, optionally
// filtered by state; an empty state lists every instance.
func (s *Service) ListAlerts(ctx context.Context, projectID project.ID, state alerting.State, limit int) ([]*alerting.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListAlerts(ctx, projectID, state, limit)
}
