package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sobshdev/altenia/infrastructure/logging"
	"github.com/sobshdev/altenia/internal/domain/identity"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/tenancy"
	"github.com/sobshdev/altenia/internal/repository/memory"
	"github.com/sobshdev/altenia/internal/service/alerting"
	authsvc "github.com/sobshdev/altenia/internal/service/auth"
	ingestsvc "github.com/sobshdev/altenia/internal/service/ingest"
	presetsvc "github.com/sobshdev/altenia/internal/service/preset"
	projectsvc "github.com/sobshdev/altenia/internal/service/project"
	querysvc "github.com/sobshdev/altenia/internal/service/query"
	tenancysvc "github.com/sobshdev/altenia/internal/service/tenancy"
)

// testDeps builds a Deps wired to in-memory repositories, grounded on the
// repository/memory fakes every service package already uses in its own
// tests. Stream and Cfg are left nil/zero: no handler test here exercises
// the SSE stream or reads config directly.
func testDeps(t *testing.T) *Deps {
	t.Helper()
	logger := logging.New("test", "error", "text")

	tenancyRepo := memory.NewTenancyRepository()
	projectRepo := memory.NewProjectRepository()
	presetRepo := memory.NewPresetRepository()
	alertingRepo := memory.NewAlertingRepository()
	telemetryRepo := memory.NewTelemetryRepository()
	identityRepo := memory.NewIdentityRepository()

	tenancySvc := tenancysvc.NewService(tenancyRepo, logger)
	tokenSvc := authsvc.NewTokenService("test-access-secret", "test-refresh-secret", time.Minute*15, time.Hour*24*30)

	return &Deps{
		Logger:   logger,
		Auth:     authsvc.NewService(identityRepo, identityRepo.Tokens(), tenancySvc, authsvc.NewPasswordHasher(), tokenSvc, logger),
		Tokens:   tokenSvc,
		Tenancy:  tenancySvc,
		Project:  projectsvc.NewService(projectRepo, tenancyRepo, projectsvc.Config{DefaultRetentionDays: 30, MinRetentionDays: 1, MaxRetentionDays: 365}),
		Preset:   presetsvc.NewService(presetRepo),
		Alerting: alerting.NewService(alertingRepo),
		Query:    querysvc.NewService(telemetryRepo),
		Ingest:   ingestsvc.NewService(telemetryRepo, ingestsvc.Config{MaxBatchSize: 1000}, nil),
	}
}

// withUser returns a context carrying userID the way requireUser middleware
// attaches it, so handler tests can call factories directly without
// round-tripping through the middleware chain.
func withUser(userID identity.UserID) context.Context {
	return logging.WithUserID(context.Background(), string(userID))
}

// newOrgWithOwner creates an organization and returns it alongside the
// owning user's ID, a starting point shared by every org-/project-scoped
// handler test.
func newOrgWithOwner(t *testing.T, d *Deps, name string) (*tenancy.Organization, identity.UserID) {
	t.Helper()
	owner := identity.UserID(name + "-owner")
	org, err := d.Tenancy.CreateOrg(withUser(owner), name, owner)
	require.NoError(t, err)
	return org, owner
}

func newProjectInOrg(t *testing.T, d *Deps, orgID tenancy.OrgID, name string) *project.Project {
	t.Helper()
	p, err := d.Project.Create(context.Background(), orgID, name, "", project.RetentionDays{})
	require.NoError(t, err)
	return p
}
