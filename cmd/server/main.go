// Package main is the altenia telemetry service's entry point: it wires
// configuration, persistence, the service layer, and the HTTP API into a
// single process, alongside the alert evaluator and retention sweeper cron
// jobs.
package main

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sobshdev/altenia/infrastructure/logging"
	"github.com/sobshdev/altenia/infrastructure/metrics"
	"github.com/sobshdev/altenia/infrastructure/middleware"
	"github.com/sobshdev/altenia/internal/config"
	"github.com/sobshdev/altenia/internal/httpapi"
	"github.com/sobshdev/altenia/internal/platform/database"
	"github.com/sobshdev/altenia/internal/platform/migrations"
	"github.com/sobshdev/altenia/internal/repository/postgres"
	"github.com/sobshdev/altenia/internal/service/alerting"
	"github.com/sobshdev/altenia/internal/service/auth"
	"github.com/sobshdev/altenia/internal/service/ingest"
	"github.com/sobshdev/altenia/internal/service/preset"
	"github.com/sobshdev/altenia/internal/service/project"
	"github.com/sobshdev/altenia/internal/service/query"
	"github.com/sobshdev/altenia/internal/service/retention"
	"github.com/sobshdev/altenia/internal/service/stream"
	"github.com/sobshdev/altenia/internal/service/tenancy"
	"github.com/sobshdev/altenia/pkg/pgnotify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := logging.New("altenia", cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	sqlDB, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(cfg.DBMaxConnections)
	sqlDB.SetConnMaxIdleTime(cfg.DBIdleTimeout)

	if err := migrations.Apply(ctx, sqlDB); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	db, err := database.OpenX(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open sqlx connection: %v", err)
	}

	identityRepo := postgres.NewIdentityRepository(db)
	tenancyRepo := postgres.NewTenancyRepository(db)
	projectRepo := postgres.NewProjectRepository(db)
	telemetryRepo := postgres.NewTelemetryRepository(db)
	presetRepo := postgres.NewPresetRepository(db)
	alertingRepo := postgres.NewAlertingRepository(db)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New("altenia")
	}

	hasher := auth.NewPasswordHasher()
	tokenSvc := auth.NewTokenService(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	tenancySvc := tenancy.NewService(tenancyRepo, logger)
	authSvc := auth.NewService(identityRepo, identityRepo.Tokens(), tenancySvc, hasher, tokenSvc, logger)
	projectSvc := project.NewService(projectRepo, tenancyRepo, project.Config{
		DefaultRetentionDays: cfg.DefaultRetentionDays,
		MinRetentionDays:     cfg.MinRetentionDays,
		MaxRetentionDays:     cfg.MaxRetentionDays,
	})
	ingestSvc := ingest.NewService(telemetryRepo, ingest.Config{MaxBatchSize: cfg.IngestMaxBatchSize}, m)
	querySvc := query.NewService(telemetryRepo)
	presetSvc := preset.NewService(presetRepo)
	alertingSvc := alerting.NewService(alertingRepo)
	retentionSvc := retention.NewService(telemetryRepo, projectRepo, logger)

	notifier, err := alerting.NewNotifier(logger)
	if err != nil {
		log.Fatalf("failed to create alert notifier: %v", err)
	}
	evaluator := alerting.NewEvaluator(alertingRepo, telemetryRepo, projectRepo, notifier, logger)

	bus, err := pgnotify.NewWithDB(sqlDB, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to start notification bus: %v", err)
	}
	defer bus.Close()
	streamMgr, err := stream.NewManager(bus, logger, stream.DecodeLogRow)
	if err != nil {
		log.Fatalf("failed to start log stream manager: %v", err)
	}
	defer streamMgr.Close()

	router := httpapi.NewRouter(&httpapi.Deps{
		Cfg:      cfg,
		Logger:   logger,
		Auth:     authSvc,
		Tokens:   tokenSvc,
		Tenancy:  tenancySvc,
		Project:  projectSvc,
		Ingest:   ingestSvc,
		Query:    querySvc,
		Preset:   presetSvc,
		Alerting: alertingSvc,
		Stream:   streamMgr,
		Metrics:  m,
	})

	c := cron.New()
	if _, err := c.AddFunc("@every "+cfg.AlertEvalInterval.String(), func() {
		tickCtx, cancel := context.WithTimeout(context.Background(), cfg.AlertEvalInterval)
		defer cancel()
		if err := evaluator.Tick(tickCtx); err != nil {
			logger.WithError(err).Error("alert evaluator tick failed")
		}
	}); err != nil {
		log.Fatalf("failed to schedule alert evaluator: %v", err)
	}
	if _, err := c.AddFunc("@every "+cfg.RetentionSweepInterval.String(), func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), cfg.RetentionSweepInterval)
		defer cancel()
		if _, err := retentionSvc.SweepAll(sweepCtx); err != nil {
			logger.WithError(err).Error("retention sweep failed")
		}
	}); err != nil {
		log.Fatalf("failed to schedule retention sweeper: %v", err)
	}
	if _, err := c.AddFunc("@every 10m", func() {
		if _, err := tenancySvc.ExpireStaleInvites(context.Background()); err != nil {
			logger.WithError(err).Error("invite expiry sweep failed")
		}
	}); err != nil {
		log.Fatalf("failed to schedule invite expiry sweeper: %v", err)
	}
	c.Start()
	defer c.Stop()

	server := &http.Server{
		Addr:              cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	shutdown := middleware.NewGracefulShutdown(server, 30*time.Second)
	shutdown.OnShutdown(func() { c.Stop() })
	shutdown.ListenForSignals()

	logger.Info(ctx, "altenia server starting", map[string]interface{}{"addr": server.Addr, "env": string(cfg.Env)})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	shutdown.Wait()
}
