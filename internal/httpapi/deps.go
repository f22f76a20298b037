// Package httpapi wires the HTTP surface described by the service's external
// interface: auth, organizations, projects, telemetry ingest, and query
// routes, on top of the gorilla/mux router and infrastructure/middleware
// stack.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sobshdev/altenia/infrastructure/logging"
	"github.com/sobshdev/altenia/infrastructure/metrics"
	"github.com/sobshdev/altenia/infrastructure/middleware"
	"github.com/sobshdev/altenia/internal/config"
	"github.com/sobshdev/altenia/internal/service/alerting"
	"github.com/sobshdev/altenia/internal/service/auth"
	"github.com/sobshdev/altenia/internal/service/ingest"
	"github.com/sobshdev/altenia/internal/service/preset"
	"github.com/sobshdev/altenia/internal/service/project"
	"github.com/sobshdev/altenia/internal/service/query"
	"github.com/sobshdev/altenia/internal/service/stream"
	"github.com/sobshdev/altenia/internal/service/tenancy"
)

// Deps collects every service the HTTP layer dispatches to. A single struct
// keeps handler factories to one argument instead of threading a dozen.
type Deps struct {
	Cfg    *config.Config
	Logger *logging.Logger

	Auth     *auth.Service
	Tokens   *auth.TokenService
	Tenancy  *tenancy.Service
	Project  *project.Service
	Ingest   *ingest.Service
	Query    *query.Service
	Preset   *preset.Service
	Alerting *alerting.Service
	Stream   *stream.Manager
	Metrics  *metrics.Metrics
}

// NewRouter builds the full route tree: public health/metrics endpoints,
// bearer-authenticated human routes, and API-key-authenticated ingest
// routes, each behind the shared ambient middleware chain.
func NewRouter(d *Deps) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.LoggingMiddleware(d.Logger))
	router.Use(middleware.NewRecoveryMiddleware(d.Logger).Handler)
	router.Use(middleware.NewBodyLimitMiddleware(0).Handler)
	router.Use(middleware.NewCORSMiddleware(&middleware.CORSConfig{
		AllowedOrigins: d.Cfg.CORSOrigins,
	}).Handler)
	if d.Cfg.MetricsEnabled && d.Metrics != nil {
		router.Use(middleware.MetricsMiddleware("altenia", d.Metrics))
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	health := middleware.NewHealthChecker("1.0.0")
	router.HandleFunc("/health", health.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/ready", health.Handler()).Methods(http.MethodGet)

	var loginLimiter *middleware.RateLimiter
	if d.Cfg.RateLimitEnabled {
		loginLimiter = middleware.NewRateLimiterWithWindow(5, time.Minute, 5, d.Logger)
		go loginLimiter.StartCleanup(10 * time.Minute)
	}

	api := router.PathPrefix("/api").Subrouter()
	registerAuthRoutes(api, d, loginLimiter)
	registerOrgRoutes(api, d)
	registerProjectRoutes(api, d)
	registerPresetRoutes(api, d)
	registerAlertingRoutes(api, d)
	registerQueryRoutes(api, d)

	registerIngestRoutes(router, d)

	return router
}
