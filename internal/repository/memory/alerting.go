package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/internal/domain/alerting"
	"github.com/sobshdev/altenia/internal/domain/project"
)

// AlertingRepository is an in-memory alerting.Repository implementation.
type AlertingRepository struct {
	mu       sync.RWMutex
	channels map[alerting.ChannelID]*alerting.Channel
	rules    map[alerting.RuleID]*alerting.Rule
	alerts   map[alerting.AlertID]*alerting.Alert
}

func NewAlertingRepository() *AlertingRepository {
	return &AlertingRepository{
		channels: make(map[alerting.ChannelID]*alerting.Channel),
		rules:    make(map[alerting.RuleID]*alerting.Rule),
		alerts:   make(map[alerting.AlertID]*alerting.Alert),
	}
}

func (r *AlertingRepository) CreateChannel(_ context.Context, c *alerting.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.channels[c.ID] = &cp
	return nil
}

func (r *AlertingRepository) GetChannel(_ context.Context, id alerting.ChannelID) (*alerting.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[id]
	if !ok {
		return nil, serrors.NotFound("alert_channel", string(id))
	}
	cp := *c
	return &cp, nil
}

func (r *AlertingRepository) ListChannels(_ context.Context, projectID project.ID) ([]*alerting.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*alerting.Channel
	for _, c := range r.channels {
		if c.ProjectID == projectID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *AlertingRepository) UpdateChannel(_ context.Context, c *alerting.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[c.ID]; !ok {
		return serrors.NotFound("alert_channel", string(c.ID))
	}
	cp := *c
	r.channels[c.ID] = &cp
	return nil
}

func (r *AlertingRepository) DeleteChannel(_ context.Context, id alerting.ChannelID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, id)
	return nil
}

func (r *AlertingRepository) CreateRule(_ context.Context, rule *alerting.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rule
	r.rules[rule.ID] = &cp
	return nil
}

func (r *AlertingRepository) GetRule(_ context.Context, id alerting.RuleID) (*alerting.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, serrors.NotFound("alert_rule", string(id))
	}
	cp := *rule
	return &cp, nil
}

func (r *AlertingRepository) UpdateRule(_ context.Context, rule *alerting.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[rule.ID]; !ok {
		return serrors.NotFound("alert_rule", string(rule.ID))
	}
	cp := *rule
	r.rules[rule.ID] = &cp
	return nil
}

func (r *AlertingRepository) DeleteRule(_ context.Context, id alerting.RuleID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rules, id)
	return nil
}

func (r *AlertingRepository) ListRules(_ context.Context, projectID project.ID) ([]*alerting.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*alerting.Rule
	for _, rule := range r.rules {
		if rule.ProjectID == projectID {
			cp := *rule
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *AlertingRepository) ListEnabledRules(_ context.Context) ([]*alerting.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*alerting.Rule
	for _, rule := range r.rules {
		if rule.Enabled {
			cp := *rule
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *AlertingRepository) TouchLastEvaluated(_ context.Context, id alerting.RuleID, when time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return serrors.NotFound("alert_rule", string(id))
	}
	rule.LastEvaluatedAt = &when
	return nil
}

func (r *AlertingRepository) CreateAlert(_ context.Context, a *alerting.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.alerts[a.ID] = &cp
	return nil
}

func (r *AlertingRepository) GetLatestAlert(_ context.Context, ruleID alerting.RuleID) (*alerting.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *alerting.Alert
	for _, a := range r.alerts {
		if a.RuleID != ruleID {
			continue
		}
		if latest == nil || a.FiredAt.After(latest.FiredAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, serrors.NotFound("alert", string(ruleID))
	}
	cp := *latest
	return &cp, nil
}

func (r *AlertingRepository) ResolveAlert(_ context.Context, id alerting.AlertID, when time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return serrors.NotFound("alert", string(id))
	}
	a.State = alerting.StateResolved
	a.ResolvedAt = &when
	return nil
}

func (r *AlertingRepository) ListAlerts(_ context.Context, projectID project.ID, state alerting.State, limit int) ([]*alerting.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*alerting.Alert
	for _, a := range r.alerts {
		if a.ProjectID != projectID {
			continue
		}
		if state != "" && a.State != state {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
