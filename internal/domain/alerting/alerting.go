// Package alerting models alert channels, rules, and the firing/resolved
// alert instances produced by the evaluator.
package alerting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
)

// ChannelID uniquely identifies a notification channel.
type ChannelID string

func NewChannelID() ChannelID { return ChannelID(uuid.New().String()) }

// RuleID uniquely identifies an alert rule.
type RuleID string

func NewRuleID() RuleID { return RuleID(uuid.New().String()) }

// AlertID uniquely identifies a firing/resolved alert instance.
type AlertID string

func NewAlertID() AlertID { return AlertID(uuid.New().String()) }

// ChannelType is the delivery mechanism for a notification channel.
type ChannelType string

const (
	ChannelWebhook ChannelType = "webhook"
)

// Channel is a configured notification destination.
type Channel struct {
	ID        ChannelID
	ProjectID project.ID
	Name      string
	Type      ChannelType
	URL       string
	Secret    string // reserved for a future signature scheme; never used to sign today
	Headers   map[string]string
	Enabled   bool
	CreatedAt time.Time
}

// RuleKind is the condition evaluated on each tick.
type RuleKind string

const (
	RuleErrorRate    RuleKind = "error_rate"
	RuleLogCount     RuleKind = "log_count"
	RulePatternMatch RuleKind = "pattern_match"
)

// Operator is the comparison applied between a rule's measured value and its
// threshold.
type Operator string

const (
	OpGreaterThan        Operator = ">"
	OpGreaterThanOrEqual Operator = ">="
	OpLessThan           Operator = "<"
	OpLessThanOrEqual    Operator = "<="
)

// Compare applies the operator between a measured value and the threshold.
// An unrecognized operator falls back to >=, matching the field's default.
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OpGreaterThan:
		return value > threshold
	case OpLessThan:
		return value < threshold
	case OpLessThanOrEqual:
		return value <= threshold
	default:
		return value >= threshold
	}
}

// Rule is a user-configured alert condition evaluated on a fixed interval.
type Rule struct {
	ID              RuleID
	ProjectID       project.ID
	Name            string
	Kind            RuleKind
	Operator        Operator
	Threshold       float64
	WindowSeconds   int
	Pattern         string               // used by RulePatternMatch only
	Levels          []telemetry.LogLevel // used by RuleErrorRate (numerator override) and RuleLogCount
	Source          string               // used by RuleLogCount only
	ChannelIDs      []ChannelID
	Enabled         bool
	LastEvaluatedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// State is the evaluator's state-machine status for a rule.
type State string

const (
	StateFiring   State = "firing"
	StateResolved State = "resolved"
)

// Alert is a single firing/resolved instance produced by evaluating a rule.
type Alert struct {
	ID          AlertID
	RuleID      RuleID
	ProjectID   project.ID
	State       State
	Value       float64
	Message     string
	FiredAt     time.Time
	ResolvedAt  *time.Time
}

// Repository persists channels, rules, and alert instances.
type Repository interface {
	CreateChannel(ctx context.Context, c *Channel) error
	GetChannel(ctx context.Context, id ChannelID) (*Channel, error)
	ListChannels(ctx context.Context, projectID project.ID) ([]*Channel, error)
	UpdateChannel(ctx context.Context, c *Channel) error
	DeleteChannel(ctx context.Context, id ChannelID) error

	CreateRule(ctx context.Context, r *Rule) error
	GetRule(ctx context.Context, id RuleID) (*Rule, error)
	UpdateRule(ctx context.Context, r *Rule) error
	DeleteRule(ctx context.Context, id RuleID) error
	ListRules(ctx context.Context, projectID project.ID) ([]*Rule, error)
	ListEnabledRules(ctx context.Context) ([]*Rule, error)
	TouchLastEvaluated(ctx context.Context, id RuleID, when time.Time) error

	CreateAlert(ctx context.Context, a *Alert) error
	GetLatestAlert(ctx context.Context, ruleID RuleID) (*Alert, error)
	ResolveAlert(ctx context.Context, id AlertID, when time.Time) error
	ListAlerts(ctx context.Context, projectID project.ID, state State, limit int) ([]*Alert, error)
}
