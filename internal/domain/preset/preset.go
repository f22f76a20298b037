// Package preset models saved log-query filter configurations, scoped to a
// project and the user who owns them.
package preset

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sobshdev/altenia/internal/domain/identity"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
)

// ID uniquely identifies a filter preset.
type ID string

func NewID() ID { return ID(uuid.New().String()) }

// Filter is the saved query shape a preset captures.
type Filter struct {
	Levels []telemetry.LogLevel
	Source string
	Search string
}

// Preset is a saved, named filter scoped to (project, user). At most one
// preset per scope may have Default set.
type Preset struct {
	ID        ID
	ProjectID project.ID
	UserID    identity.UserID
	Name      string
	Filter    Filter
	Default   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository persists filter presets.
type Repository interface {
	Create(ctx context.Context, p *Preset) error
	Get(ctx context.Context, id ID) (*Preset, error)
	Update(ctx context.Context, p *Preset) error
	Delete(ctx context.Context, id ID) error
	ListByScope(ctx context.Context, projectID project.ID, userID identity.UserID) ([]*Preset, error)
	GetByNameCI(ctx context.Context, projectID project.ID, userID identity.UserID, name string) (*Preset, error)
	GetDefault(ctx context.Context, projectID project.ID, userID identity.UserID) (*Preset, error)
	ClearDefault(ctx context.Context, projectID project.ID, userID identity.UserID) error
}
