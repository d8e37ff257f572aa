package main

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-forecast-backend/internal/abuse"
	"github.com/tbourn/go-forecast-backend/internal/admission"
	"github.com/tbourn/go-forecast-backend/internal/captcha"
	"github.com/tbourn/go-forecast-backend/internal/chart"
	"github.com/tbourn/go-forecast-backend/internal/config"
	httpapi "github.com/tbourn/go-forecast-backend/internal/http"
	"github.com/tbourn/go-forecast-backend/internal/llm"
	"github.com/tbourn/go-forecast-backend/internal/lookup"
	"github.com/tbourn/go-forecast-backend/internal/observability"
	"github.com/tbourn/go-forecast-backend/internal/orchestrator"
	"github.com/tbourn/go-forecast-backend/internal/payment"
	"github.com/tbourn/go-forecast-backend/internal/repo"
	"github.com/tbourn/go-forecast-backend/internal/theme"
)

const captchaTimeout = 10 * time.Second

// buildDeps constructs the collaborators of the HTTP layer. Shared state
// lives in Redis when rdb is non-nil, otherwise in process memory or the
// database.
func buildDeps(cfg config.Config, db *gorm.DB, rdb goredis.Cmdable) httpapi.Deps {
	var (
		counters admission.CounterStore
		themes   theme.Store = repo.ThemeStore{DB: db}
	)
	if rdb != nil {
		counters = admission.NewRedisStore(rdb, "forecast:admission:")
		themes = theme.NewRedisStore(rdb, "forecast:theme:")
	} else {
		counters = admission.NewMemoryStore(cfg.Admission.MaxTrackedKeys)
	}

	llmClient := llm.NewClient(cfg.LLM.BaseURL, cfg.Secrets.OpenAIKey, observability.NewHTTPClient(cfg.LLM.Timeout))

	deps := httpapi.Deps{
		Admission: admission.NewController(counters, httpapi.AdmissionLimits(cfg.Admission)),
		Captcha:   captcha.NewTurnstileVerifier(cfg.Secrets.TurnstileSecret, observability.NewHTTPClient(captchaTimeout)),
		Lookups:   lookup.NewResolver(lookup.DBSource{DB: db}),
		Themes:    theme.NewResolver(themes),
		Generator: llm.NewForecastGenerator(llmClient, cfg.LLM.FreeModel),
		Verifier: payment.NewVerifier(
			payment.NewStripeGateway(cfg.Secrets.StripeSecretKey, cfg.Payment.ExpectedPriceID != ""),
			replayStore(cfg, db, rdb),
			payment.Options{
				MinAmount:       cfg.Payment.MinAmount,
				MaxAge:          cfg.Payment.MaxAge,
				ExpectedPriceID: cfg.Payment.ExpectedPriceID,
			},
		),
		Runner: orchestrator.New(llmClient, orchestrator.Config{
			PrimaryModel:   cfg.LLM.PrimaryModel,
			FallbackModel:  cfg.LLM.FallbackModel,
			MaxAttempts:    cfg.LLM.MaxAttempts,
			InitialBackoff: backoff(cfg.LLM.InitialBackoff),
		}),
		FreeAbuse: abuse.NewMonitor(abuse.Config{
			EventType: abuse.EventFreeThreshold,
			Function:  "generate-free-forecast",
			Threshold: cfg.Abuse.FreeHourlyThreshold,
			Cooldown:  cfg.Abuse.Cooldown,
		}, repo.AbuseSink{DB: db}),
		PaidAbuse: abuse.NewMonitor(abuse.Config{
			EventType: abuse.EventPaidThreshold,
			Function:  "generate-strategic-forecast",
			Threshold: cfg.Abuse.PaidHourlyThreshold,
			Cooldown:  cfg.Abuse.Cooldown,
		}, repo.AbuseSink{DB: db}),
	}
	if cfg.Chart.URL != "" {
		deps.Chart = chart.NewClient(cfg.Chart.URL, cfg.Secrets.ChartAPIKey, observability.NewHTTPClient(cfg.Chart.Timeout))
	} else {
		log.Warn().Msg("CHART_API_URL not set; forecasts are generated without chart attributes")
	}
	return deps
}

func replayStore(cfg config.Config, db *gorm.DB, rdb goredis.Cmdable) payment.ReplayStore {
	switch cfg.Payment.ReplayBackend {
	case "redis":
		if rdb != nil {
			return payment.NewRedisReplayStore(rdb, "forecast:replay:", cfg.Payment.ReplayRetention)
		}
	case "db":
		return repo.ReplayStore{DB: db}
	}
	return payment.NewMemoryReplayStore()
}

// backoff maps the config value, where zero means no backoff, onto the
// orchestrator's convention, where zero means the default.
func backoff(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}

// runReplayJanitor purges consumed-session rows older than the retention
// window until ctx is cancelled.
func runReplayJanitor(ctx context.Context, db *gorm.DB, retention, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeConsumedSessions(ctx, db, now.Add(-retention))
			if err != nil {
				log.Warn().Err(err).Msg("purge consumed sessions")
				continue
			}
			if n > 0 {
				log.Info().Int64("purged", n).Msg("purged consumed sessions")
			}
		}
	}
}
