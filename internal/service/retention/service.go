// Package retention implements the Retention Enforcer component: a single
// combined per-project sweep that deletes logs, metrics, and spans older
// than each signal's configured retention window.
package retention

import (
	"context"
	"time"

	"github.com/sobshdev/altenia/infrastructure/logging"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
)

// Result reports the rows removed for a single project's sweep.
type Result struct {
	ProjectID    project.ID
	LogsDeleted  int64
	MetricsDeleted int64
	SpansDeleted int64
}

// Service enforces per-project retention windows on ingested telemetry.
type Service struct {
	telemetry telemetry.Repository
	projects  project.Repository
	logger    *logging.Logger
}

// NewService constructs the retention enforcer.
func NewService(telemetryRepo telemetry.Repository, projectRepo project.Repository, logger *logging.Logger) *Service {
	return &Service{telemetry: telemetryRepo, projects: projectRepo, logger: logger}
}

// SweepAll runs one retention pass across every project, deleting logs,
// metrics, and spans older than that project's configured windows. A
// failure on one project's signal does not abort the sweep of the rest;
// every attempted result is returned alongside the first error encountered.
func (s *Service) SweepAll(ctx context.Context) ([]Result, error) {
	projects, err := s.projects.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var results []Result
	var firstErr error
	for _, p := range projects {
		res, err := s.sweepProject(ctx, p)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		results = append(results, res)
	}
	return results, firstErr
}

func (s *Service) sweepProject(ctx context.Context, p *project.Project) (Result, error) {
	now := time.Now()
	result := Result{ProjectID: p.ID}

	var firstErr error

	logsDeleted, err := s.telemetry.DeleteLogsOlderThan(ctx, p.ID, now.AddDate(0, 0, -p.Retention.Logs))
	if err != nil {
		firstErr = err
	}
	result.LogsDeleted = logsDeleted

	metricsDeleted, err := s.telemetry.DeleteMetricsOlderThan(ctx, p.ID, now.AddDate(0, 0, -p.Retention.Metrics))
	if err != nil && firstErr == nil {
		firstErr = err
	}
	result.MetricsDeleted = metricsDeleted

	spansDeleted, err := s.telemetry.DeleteSpansOlderThan(ctx, p.ID, now.AddDate(0, 0, -p.Retention.Traces))
	if err != nil && firstErr == nil {
		firstErr = err
	}
	result.SpansDeleted = spansDeleted

	if s.logger != nil {
		s.logger.Info(ctx, "retention sweep completed", map[string]interface{}{
			"project_id":      string(p.ID),
			"logs_deleted":    result.LogsDeleted,
			"metrics_deleted": result.MetricsDeleted,
			"spans_deleted":   result.SpansDeleted,
		})
	}

	return result, firstErr
}
