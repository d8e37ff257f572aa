// Package services – FreeService
//
// FreeService owns the free-tier pipeline: admission, validation, the
// captcha gate, chart enrichment, trait lookups and theme resolution, the
// single model call and best-effort persistence.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-forecast-backend/internal/admission"
	"github.com/tbourn/go-forecast-backend/internal/captcha"
	"github.com/tbourn/go-forecast-backend/internal/chart"
	"github.com/tbourn/go-forecast-backend/internal/domain"
	"github.com/tbourn/go-forecast-backend/internal/observability"
	"github.com/tbourn/go-forecast-backend/internal/prompt"
	"github.com/tbourn/go-forecast-backend/internal/theme"
	"github.com/tbourn/go-forecast-backend/internal/validation"
)

// MsgCaptchaRequired is returned with a captcha-required result.
const MsgCaptchaRequired = "Please complete the verification to continue."

// FreeForecastRepo is the persistence contract of FreeService.
type FreeForecastRepo interface {
	CreateFreeForecast(ctx context.Context, db *gorm.DB, rec *domain.FreeForecast) (*domain.FreeForecast, error)
}

// Admitter charges admission counters.
type Admitter interface {
	Admit(ctx context.Context, req admission.Request) admission.Decision
}

// TraitResolver maps chart attributes to trait profiles.
type TraitResolver interface {
	Resolve(ctx context.Context, attrs domain.ChartAttributes) domain.TraitProfiles
}

// ThemeResolver returns the pivotal theme for a birth instant.
type ThemeResolver interface {
	Resolve(ctx context.Context, birthInstantUTC string, targetYear, age int, seed string) (theme.Result, error)
}

// SectionGenerator produces the five-section free artifact.
type SectionGenerator interface {
	Generate(ctx context.Context, system, user string) (domain.ForecastSections, *domain.TokenUsage, error)
	Model() string
}

// AbuseRecorder counts generations for hourly abuse alerts.
type AbuseRecorder interface {
	Record(ctx context.Context, ip, deviceID string) bool
}

// FreeRequest is the raw input of a free generation.
type FreeRequest struct {
	Body      []byte
	IP        string
	UserAgent string
}

// FreeResult is either a captcha challenge or a generated preview.
type FreeResult struct {
	CaptchaRequired bool
	Message         string

	Forecast       string
	Sections       domain.ForecastSections
	PivotalTheme   string
	FreeForecastID string
	GuestToken     string
	ModelUsed      string
	Usage          *domain.TokenUsage
}

// FreeService generates free-tier previews.
type FreeService struct {
	DB   *gorm.DB
	Repo FreeForecastRepo

	Admission Admitter
	Captcha   captcha.Verifier
	Chart     chart.Fetcher
	Lookups   TraitResolver
	Themes    ThemeResolver
	Generator SectionGenerator
	Abuse     AbuseRecorder

	Now func() time.Time
}

// Generate runs the free pipeline for one request. Admission counters are
// charged before the body is validated.
func (s *FreeService) Generate(ctx context.Context, in FreeRequest) (*FreeResult, error) {
	tr := otel.Tracer("services/FreeService")
	ctx, span := tr.Start(ctx, "Generate", trace.WithAttributes(attribute.String("client.ip", in.IP)))
	defer span.End()
	lg := zerolog.Ctx(ctx)

	decision := s.Admission.Admit(ctx, admission.Request{
		IP:        in.IP,
		DeviceID:  validation.LenientDeviceID(in.Body),
		UserAgent: in.UserAgent,
	})
	if decision.Outcome == admission.Deny {
		s.count("rate_limited")
		return nil, &RateLimitError{Message: decision.Reason, RetryAfter: decision.RetryAfter}
	}

	req, err := validation.ParseFree(in.Body)
	if err != nil {
		s.count("invalid")
		return nil, err
	}

	if decision.CaptchaRequired() && req.CaptchaToken == "" {
		lg.Info().
			Bool("suspicious_ua", decision.SuspiciousUA).
			Bool("traffic_spike", decision.TrafficSpike).
			Int("ip_daily_count", decision.IPDailyCount).
			Msg("captcha required")
		s.count("captcha_required")
		return &FreeResult{CaptchaRequired: true, Message: MsgCaptchaRequired}, nil
	}
	if req.CaptchaToken != "" && s.Captcha != nil {
		ok, err := s.Captcha.Verify(ctx, req.CaptchaToken, in.IP)
		if err != nil {
			lg.Warn().Err(err).Msg("captcha verification error")
		}
		if !ok {
			s.count("captcha_failed")
			return nil, ErrCaptchaFailed
		}
	}

	if s.Generator == nil {
		s.count("unavailable")
		return nil, fmt.Errorf("%w: no section generator configured", ErrUpstream)
	}

	now := s.now()
	targetYear := now.Year()
	birth := req.BirthTimeUTC
	if birth == "" {
		birth = req.BirthDate
	}
	age := theme.Age(birth, targetYear)
	seed := theme.Seed(req.BirthTimeUTC, req.BirthDate, req.BirthTime, req.BirthPlace)

	var attrs domain.ChartAttributes
	if s.Chart != nil {
		attrs = s.Chart.Fetch(ctx, chart.Moment{UTC: req.BirthTimeUTC, Latitude: req.Latitude, Longitude: req.Longitude})
	}

	var (
		profiles domain.TraitProfiles
		themeRes theme.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if s.Lookups != nil {
			profiles = s.Lookups.Resolve(gctx, attrs)
		}
		return nil
	})
	g.Go(func() error {
		res, err := s.Themes.Resolve(gctx, req.BirthTimeUTC, targetYear, age, seed)
		if err != nil {
			lg.Warn().Err(err).Msg("theme resolution degraded")
			res = theme.Result{Theme: theme.Select(age, seed)}
		}
		themeRes = res
		return nil
	})
	_ = g.Wait()

	user := prompt.FreeUser(prompt.FreeInput{Profiles: profiles, AnimalSign: attrs.AnimalSign, Theme: themeRes.Theme})
	sections, usage, err := s.Generator.Generate(ctx, prompt.FreeSystem(), user)
	if err != nil {
		s.count("failed")
		lg.Error().Err(err).Str("model", s.Generator.Model()).Msg("free generation failed")
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if !sections.Complete() {
		s.count("failed")
		lg.Error().Str("model", s.Generator.Model()).Msg("free generation returned incomplete sections")
		return nil, fmt.Errorf("%w: incomplete sections", ErrGeneration)
	}

	out := &FreeResult{
		Forecast:     sections.Markdown(targetYear),
		Sections:     sections,
		PivotalTheme: themeRes.Theme,
		ModelUsed:    s.Generator.Model(),
		Usage:        usage,
	}

	rec := &domain.FreeForecast{
		BirthDate:    req.BirthDate,
		BirthTime:    req.BirthTime,
		BirthPlace:   req.BirthPlace,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		ChartColumns: attrs.Columns(),
		ForecastText: out.Forecast,
		PivotalTheme: themeRes.Theme,
		ZodiacSign:   zodiacFromDate(req.BirthDate),
		ModelUsed:    out.ModelUsed,
	}
	if req.BirthTimeUTC != "" {
		rec.BirthTimeUTC = &req.BirthTimeUTC
	}
	if req.DeviceID != "" {
		rec.DeviceID = &req.DeviceID
	}
	if saved, err := s.Repo.CreateFreeForecast(ctx, s.DB, rec); err != nil {
		lg.Error().Err(err).Msg("persist free forecast")
	} else {
		out.FreeForecastID = saved.ID
		out.GuestToken = saved.GuestToken
	}

	if s.Abuse != nil {
		s.Abuse.Record(ctx, in.IP, req.DeviceID)
	}
	s.count("ok")
	lg.Info().
		Str("model", out.ModelUsed).
		Str("forecast_id", out.FreeForecastID).
		Bool("theme_cache_hit", themeRes.CacheHit).
		Msg("free forecast generated")
	return out, nil
}

func (s *FreeService) count(outcome string) {
	observability.ForecastGenerations.WithLabelValues("free", outcome).Inc()
}

func (s *FreeService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func zodiacFromDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return ""
	}
	return domain.WesternZodiacSign(t)
}
