// Package httpapi wires the HTTP transport (Gin) to the forecast services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, body limits, replay detection and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-forecast-backend/internal/admission"
	"github.com/tbourn/go-forecast-backend/internal/captcha"
	"github.com/tbourn/go-forecast-backend/internal/chart"
	"github.com/tbourn/go-forecast-backend/internal/config"
	"github.com/tbourn/go-forecast-backend/internal/domain"
	"github.com/tbourn/go-forecast-backend/internal/http/handlers"
	"github.com/tbourn/go-forecast-backend/internal/http/middleware"
	"github.com/tbourn/go-forecast-backend/internal/lookup"
	"github.com/tbourn/go-forecast-backend/internal/repo"
	"github.com/tbourn/go-forecast-backend/internal/services"
	"github.com/tbourn/go-forecast-backend/internal/theme"
)

// repoShim adapts the repository free functions to the repository
// interfaces expected by the services, keeping services decoupled from the
// concrete repo package.
type repoShim struct{}

// CreateFreeForecast proxies repo.CreateFreeForecast.
func (repoShim) CreateFreeForecast(ctx context.Context, db *gorm.DB, rec *domain.FreeForecast) (*domain.FreeForecast, error) {
	return repo.CreateFreeForecast(ctx, db, rec)
}

// GetFreeForecast proxies repo.GetFreeForecast.
func (repoShim) GetFreeForecast(ctx context.Context, db *gorm.DB, id string) (*domain.FreeForecast, error) {
	return repo.GetFreeForecast(ctx, db, id)
}

// UpdateFreeForecastEmail proxies repo.UpdateFreeForecastEmail.
func (repoShim) UpdateFreeForecastEmail(ctx context.Context, db *gorm.DB, id, email string) error {
	return repo.UpdateFreeForecastEmail(ctx, db, id, email)
}

// UpsertPaidForecast proxies repo.UpsertPaidForecast.
func (repoShim) UpsertPaidForecast(ctx context.Context, db *gorm.DB, rec *domain.PaidForecast) (*domain.PaidForecast, error) {
	return repo.UpsertPaidForecast(ctx, db, rec)
}

// GetPaidForecastBySession proxies repo.GetPaidForecastBySession.
func (repoShim) GetPaidForecastBySession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.PaidForecast, error) {
	return repo.GetPaidForecastBySession(ctx, db, sessionID)
}

// GetPaidForecast proxies repo.GetPaidForecast.
func (repoShim) GetPaidForecast(ctx context.Context, db *gorm.DB, id string) (*domain.PaidForecast, error) {
	return repo.GetPaidForecast(ctx, db, id)
}

// CountPaidForecastsByStatus proxies repo.CountPaidForecastsByStatus.
func (repoShim) CountPaidForecastsByStatus(ctx context.Context, db *gorm.DB, status string) (int64, error) {
	return repo.CountPaidForecastsByStatus(ctx, db, status)
}

// ListPaidForecastsByStatusPage proxies repo.ListPaidForecastsByStatusPage.
func (repoShim) ListPaidForecastsByStatusPage(ctx context.Context, db *gorm.DB, status string, offset, limit int) ([]domain.PaidForecast, error) {
	return repo.ListPaidForecastsByStatusPage(ctx, db, status, offset, limit)
}

// ListAbuseEvents proxies repo.ListAbuseEvents.
func (repoShim) ListAbuseEvents(ctx context.Context, db *gorm.DB, limit int) ([]domain.AbuseEvent, error) {
	return repo.ListAbuseEvents(ctx, db, limit)
}

// Deps carries the collaborators built by the entrypoint. Nil Admission,
// Lookups and Themes fall back to in-process defaults; the others stay
// optional or are required only by the route that uses them.
type Deps struct {
	Admission services.Admitter
	Captcha   captcha.Verifier
	Chart     chart.Fetcher
	Lookups   services.TraitResolver
	Themes    services.ThemeResolver
	Generator services.SectionGenerator
	Verifier  services.PaymentVerifier
	Runner    services.Runner
	FreeAbuse services.AbuseRecorder
	PaidAbuse services.AbuseRecorder
}

func (d Deps) withDefaults(db *gorm.DB, cfg config.Config) Deps {
	if d.Admission == nil {
		d.Admission = admission.NewController(
			admission.NewMemoryStore(cfg.Admission.MaxTrackedKeys),
			AdmissionLimits(cfg.Admission),
		)
	}
	if d.Lookups == nil {
		d.Lookups = lookup.NewResolver(lookup.DBSource{DB: db})
	}
	if d.Themes == nil {
		d.Themes = theme.NewResolver(repo.ThemeStore{DB: db})
	}
	return d
}

// AdmissionLimits maps the admission config onto controller limits.
func AdmissionLimits(a config.AdmissionConfig) admission.Limits {
	return admission.Limits{
		BurstLimit:     a.BurstLimit,
		BurstWindow:    a.BurstWindow,
		DailyIPLimit:   a.DailyIPLimit,
		DailyDevLimit:  a.DailyDevLimit,
		DailyWindow:    a.DailyWindow,
		CaptchaAfter:   a.CaptchaAfter,
		SpikeWindow:    a.SpikeWindow,
		SpikeThreshold: a.SpikeThreshold,
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: request-scoped logger for handlers and services
//  4. RedactingLogger: access log with PII scrubbing
//  5. Recovery: capture panics after logger
//  6. Metrics
//  7. CORS and Security headers
//
// Body limits, replay detection and rate limiters are attached per route.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	deps = deps.withDefaults(db, cfg)

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	useCORS(r, cfg.CORS.AllowedOrigins)

	// Forecast responses carry guest tokens; never cache them.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/collaborators
	shim := repoShim{}
	freeSvc := &services.FreeService{
		DB:        db,
		Repo:      shim,
		Admission: deps.Admission,
		Captcha:   deps.Captcha,
		Chart:     deps.Chart,
		Lookups:   deps.Lookups,
		Themes:    deps.Themes,
		Generator: deps.Generator,
		Abuse:     deps.FreeAbuse,
	}
	paidSvc := &services.PaidService{
		DB:       db,
		Paid:     shim,
		Free:     shim,
		Verifier: deps.Verifier,
		Chart:    deps.Chart,
		Runner:   deps.Runner,
		Abuse:    deps.PaidAbuse,
	}
	readSvc := services.NewForecastService(db, shim)
	h := handlers.New(freeSvc, paidSvc, readSvc)

	paidLimiter := middleware.NewRateLimiter(cfg.Admission.PaidPerMinute, int(cfg.Admission.PaidPerMinute), middleware.KeyByIP())
	lookupLimiter := middleware.NewRateLimiter(cfg.Admission.LookupPerMinute, int(cfg.Admission.LookupPerMinute), middleware.KeyByIP())

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/forecasts/free",
			middleware.BodyLimit(cfg.Admission.FreeBodyLimit),
			h.PostFreeForecast)
		api.POST("/forecasts/paid",
			middleware.BodyLimit(cfg.Admission.PaidBodyLimit),
			middleware.SessionReplay(completedSession(db)),
			paidLimiter.Handler(),
			h.PostPaidForecast)
		api.GET("/forecasts/:id", lookupLimiter.Handler(), h.GetForecast)

		if cfg.Secrets.AdminToken != "" {
			admin := api.Group("/admin", middleware.AdminAuth(cfg.Secrets.AdminToken))
			admin.GET("/paid-forecasts", h.ListPaidForecasts)
			admin.GET("/abuse-events", h.ListAbuseEvents)
		}
	}
}

// completedSession reports whether a paid record for the session already
// reached the complete state.
func completedSession(db *gorm.DB) middleware.CompletedSessionLookup {
	return func(ctx context.Context, sessionID string) (bool, error) {
		rec, err := repo.GetPaidForecastBySession(ctx, db, sessionID)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return rec.GenerationStatus == domain.StatusComplete, nil
	}
}

// useCORS applies the CORS posture: allow all origins when none are
// configured, otherwise echo allowlisted origins.
func useCORS(r *gin.Engine, origins []string) {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderAdminToken},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		base.AllowAllOrigins = true
		r.Use(cors.New(base))
		return
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	})
	base.AllowOrigins = origins
	r.Use(cors.New(base))
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
