package preset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sobshdev/altenia/internal/domain/identity"
	presetdomain "github.com/sobshdev/altenia/internal/domain/preset"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
	"github.com/sobshdev/altenia/internal/repository/memory"
)

func newTestService() (*Service, project.ID, identity.UserID) {
	repo := memory.NewPresetRepository()
	return NewService(repo), project.NewID(), identity.NewUserID()
}

func TestCreate_DefaultFlagExclusive(t *testing.T) {
	svc, projectID, userID := newTestService()
	ctx := context.Background()

	first, err := svc.Create(ctx, projectID, userID, "Errors only",
		presetdomain.Filter{Levels: []telemetry.LogLevel{telemetry.LevelError}}, true)
	require.NoError(t, err)
	require.True(t, first.Default)

	second, err := svc.Create(ctx, projectID, userID, "Warnings and up",
		presetdomain.Filter{Levels: []telemetry.LogLevel{telemetry.LevelWarn, telemetry.LevelError}}, true)
	require.NoError(t, err)
	require.True(t, second.Default)

	refreshedFirst, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	require.False(t, refreshedFirst.Default, "creating a new default preset should clear the old one")
}

func TestCreate_RejectsDuplicateNameCaseInsensitive(t *testing.T) {
	svc, projectID, userID := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, projectID, userID, "My Filter", presetdomain.Filter{}, false)
	require.NoError(t, err)

	_, err = svc.Create(ctx, projectID, userID, "my filter", presetdomain.Filter{}, false)
	require.Error(t, err)
}

func TestGetDefault(t *testing.T) {
	svc, projectID, userID := newTestService()
	ctx := context.Background()

	_, err := svc.GetDefault(ctx, projectID, userID)
	require.Error(t, err, "no default preset yet")

	created, err := svc.Create(ctx, projectID, userID, "Errors only",
		presetdomain.Filter{Levels: []telemetry.LogLevel{telemetry.LevelError}}, true)
	require.NoError(t, err)

	def, err := svc.GetDefault(ctx, projectID, userID)
	require.NoError(t, err)
	require.Equal(t, created.ID, def.ID)
}

func TestListByScope(t *testing.T) {
	svc, projectID, userID := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, projectID, userID, "A", presetdomain.Filter{}, false)
	require.NoError(t, err)
	_, err = svc.Create(ctx, projectID, userID, "B", presetdomain.Filter{}, false)
	require.NoError(t, err)

	others, err := svc.ListByScope(ctx, project.NewID(), userID)
	require.NoError(t, err)
	require.Empty(t, others)

	mine, err := svc.ListByScope(ctx, projectID, userID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
}
