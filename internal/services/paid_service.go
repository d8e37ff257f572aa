// Package services – PaidService
//
// PaidService owns the paid-tier pipeline. A session that already has a
// complete record is answered from storage without touching the payment
// gateway or the model. Otherwise the payment is verified, birth data is
// completed from the linked free forecast, a pending record is written and
// the resilient orchestrator produces the strategic artifact.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-forecast-backend/internal/chart"
	"github.com/tbourn/go-forecast-backend/internal/domain"
	"github.com/tbourn/go-forecast-backend/internal/observability"
	"github.com/tbourn/go-forecast-backend/internal/orchestrator"
	"github.com/tbourn/go-forecast-backend/internal/payment"
	"github.com/tbourn/go-forecast-backend/internal/prompt"
	"github.com/tbourn/go-forecast-backend/internal/repo"
	"github.com/tbourn/go-forecast-backend/internal/sysutil"
)

const defaultSeekerName = "the seeker"

// PaidForecastRepo is the paid-record contract of PaidService.
type PaidForecastRepo interface {
	UpsertPaidForecast(ctx context.Context, db *gorm.DB, rec *domain.PaidForecast) (*domain.PaidForecast, error)
	GetPaidForecastBySession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.PaidForecast, error)
}

// FreeRecordRepo gives PaidService access to linked free forecasts.
type FreeRecordRepo interface {
	GetFreeForecast(ctx context.Context, db *gorm.DB, id string) (*domain.FreeForecast, error)
	UpdateFreeForecastEmail(ctx context.Context, db *gorm.DB, id, email string) error
}

// PaymentVerifier checks a payment session.
type PaymentVerifier interface {
	Verify(ctx context.Context, sessionID string) (*payment.Verified, error)
	VerifyRetry(ctx context.Context, sessionID string) (*payment.Verified, error)
}

// Runner produces a strategic artifact with retries and fallback.
type Runner interface {
	Run(ctx context.Context, system, user string) orchestrator.Outcome
}

// PaidResult is the response of a paid generation.
type PaidResult struct {
	ForecastID    string
	Forecast      json.RawMessage
	CustomerEmail string
	GuestToken    string
	ModelUsed     string
	TotalAttempts int
	Usage         *domain.TokenUsage
	Cached        bool
}

// PaidService generates paid strategic forecasts.
type PaidService struct {
	DB       *gorm.DB
	Paid     PaidForecastRepo
	Free     FreeRecordRepo
	Verifier PaymentVerifier
	Chart    chart.Fetcher
	Runner   Runner
	Abuse    AbuseRecorder

	// TargetYear is the forecast year; zero means the current year.
	TargetYear int
	Now        func() time.Time
}

// Generate runs the paid pipeline for a validated request.
func (s *PaidService) Generate(ctx context.Context, req domain.PaidGenerationRequest, ip string) (*PaidResult, error) {
	tr := otel.Tracer("services/PaidService")
	ctx, span := tr.Start(ctx, "Generate", trace.WithAttributes(attribute.String("client.ip", ip)))
	defer span.End()
	lg := zerolog.Ctx(ctx)

	res, prior := s.existing(ctx, req.SessionID)
	if res != nil {
		s.count("cached")
		return res, nil
	}

	if s.Verifier == nil || s.Runner == nil {
		s.count("unavailable")
		return nil, fmt.Errorf("%w: payment verifier or runner not configured", ErrUpstream)
	}

	verify := s.Verifier.Verify
	if prior != nil {
		// The session was consumed by the attempt that left this record.
		verify = s.Verifier.VerifyRetry
	}
	verified, err := verify(ctx, req.SessionID)
	if err != nil {
		s.count("payment_invalid")
		return nil, err
	}

	in, err := s.complete(ctx, req, verified.Metadata)
	if err != nil {
		s.count("birth_data")
		return nil, err
	}
	targetYear := s.targetYear()

	attrs := in.chart
	if attrs.Empty() && s.Chart != nil {
		attrs = s.Chart.Fetch(ctx, chart.Moment{UTC: in.birthUTC, Latitude: in.lat, Longitude: in.lon})
	}

	rec := &domain.PaidForecast{
		StripeSessionID:  req.SessionID,
		CustomerEmail:    verified.Email,
		BirthTimeUTC:     in.birthUTC,
		BirthPlace:       fmt.Sprintf("%v,%v", *in.lat, *in.lon),
		FreeForecast:     in.freeText,
		AmountPaid:       verified.AmountTotal,
		GenerationStatus: domain.StatusPending,
		ZodiacSign:       zodiacFromInstant(in.birthUTC),
	}
	rec.BirthDate, rec.BirthTime = splitInstant(in.birthUTC)
	if prior != nil {
		rec.ID, rec.GuestToken, rec.CreatedAt = prior.ID, prior.GuestToken, prior.CreatedAt
	}
	if in.name != defaultSeekerName {
		rec.CustomerName = in.name
	}
	if req.DeviceID != "" {
		rec.DeviceID = &req.DeviceID
	}

	pending, err := s.Paid.UpsertPaidForecast(ctx, s.DB, rec)
	if err != nil {
		s.count("failed")
		lg.Error().Err(err).Msg("write pending paid forecast")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	user := prompt.PaidUser(prompt.PaidInput{
		Name:         in.name,
		BirthUTC:     in.birthUTC,
		Latitude:     in.lat,
		Longitude:    in.lon,
		Chart:        attrs,
		TargetYear:   targetYear,
		PivotalTheme: in.theme,
	})
	out := s.Runner.Run(ctx, prompt.PaidSystem(), user)

	rec.ModelUsed = out.ModelUsed
	rec.RetryCount = out.TotalAttempts
	setUsage(rec, out.Usage)

	if out.Err != nil {
		msg := out.Err.Error()
		rec.GenerationStatus = domain.StatusFailed
		rec.GenerationError = &msg
		if _, err := s.Paid.UpsertPaidForecast(ctx, s.DB, rec); err != nil {
			lg.Error().Err(err).Msg("record failed paid forecast")
		}
		s.count("failed")
		lg.Error().
			Err(out.Err).
			Str("model", out.ModelUsed).
			Int("total_attempts", out.TotalAttempts).
			Msg("paid generation failed")
		return nil, fmt.Errorf("%w: %w", ErrGeneration, out.Err)
	}

	rec.GenerationStatus = domain.StatusComplete
	rec.GenerationError = nil
	rec.StrategicForecast = []byte(out.Artifact)
	saved, err := s.Paid.UpsertPaidForecast(ctx, s.DB, rec)
	if err != nil {
		// The customer paid and the artifact exists; hand it over anyway.
		lg.Error().Err(err).Msg("persist complete paid forecast")
		saved = pending
	}

	if in.freeID != "" && verified.Email != "" && s.Free != nil {
		if err := s.Free.UpdateFreeForecastEmail(ctx, s.DB, in.freeID, verified.Email); err != nil {
			lg.Warn().Err(err).Msg("link email to free forecast")
		}
	}
	if s.Abuse != nil {
		s.Abuse.Record(ctx, ip, req.DeviceID)
	}

	s.count("ok")
	lg.Info().
		Str("forecast_id", saved.ID).
		Str("model", out.ModelUsed).
		Int("total_attempts", out.TotalAttempts).
		Bool("used_fallback", out.UsedFallback).
		Str("email", payment.MaskEmail(verified.Email)).
		Msg("paid forecast generated")

	return &PaidResult{
		ForecastID:    saved.ID,
		Forecast:      out.Artifact,
		CustomerEmail: verified.Email,
		GuestToken:    saved.GuestToken,
		ModelUsed:     out.ModelUsed,
		TotalAttempts: out.TotalAttempts,
		Usage:         out.Usage,
	}, nil
}

// existing returns the stored result when the session already completed.
// A failed or pending record is returned as prior so it can be regenerated.
func (s *PaidService) existing(ctx context.Context, sessionID string) (res *PaidResult, prior *domain.PaidForecast) {
	rec, err := s.Paid.GetPaidForecastBySession(ctx, s.DB, sessionID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("lookup existing paid forecast")
		}
		return nil, nil
	}
	if rec.GenerationStatus != domain.StatusComplete || len(rec.StrategicForecast) == 0 {
		zerolog.Ctx(ctx).Info().Str("status", rec.GenerationStatus).Msg("previous attempt found, regenerating")
		return nil, rec
	}
	return &PaidResult{
		ForecastID:    rec.ID,
		Forecast:      json.RawMessage(rec.StrategicForecast),
		CustomerEmail: rec.CustomerEmail,
		GuestToken:    rec.GuestToken,
		ModelUsed:     rec.ModelUsed,
		TotalAttempts: rec.RetryCount,
		Usage:         usageOf(rec),
		Cached:        true,
	}, nil
}

type paidInput struct {
	birthUTC string
	lat, lon *float64
	name     string
	freeText string
	theme    string
	freeID   string
	chart    domain.ChartAttributes
}

// complete fills missing birth data from the linked free forecast.
func (s *PaidService) complete(ctx context.Context, req domain.PaidGenerationRequest, meta map[string]string) (paidInput, error) {
	in := paidInput{
		birthUTC: req.BirthDateTimeUTC,
		lat:      req.Lat,
		lon:      req.Lon,
		name:     req.Name,
		freeText: req.FreeForecast,
		theme:    req.PivotalTheme,
		freeID:   sysutil.FirstNonEmpty(req.FreeForecastID, meta["freeForecastId"], meta["free_forecast_id"]),
	}

	missing := in.birthUTC == "" || in.lat == nil || in.lon == nil
	if missing && in.freeID != "" && s.Free != nil {
		ff, err := s.Free.GetFreeForecast(ctx, s.DB, in.freeID)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("free_forecast_id", in.freeID).Msg("free forecast not found")
			return in, ErrBirthDataNotFound
		}
		if in.birthUTC == "" && ff.BirthTimeUTC != nil {
			in.birthUTC = *ff.BirthTimeUTC
		}
		if in.lat == nil {
			in.lat = ff.Latitude
		}
		if in.lon == nil {
			in.lon = ff.Longitude
		}
		in.name = sysutil.FirstNonEmpty(in.name, ff.BirthPlace)
		in.freeText = sysutil.FirstNonEmpty(in.freeText, ff.ForecastText)
		in.theme = sysutil.FirstNonEmpty(in.theme, ff.PivotalTheme)
		if ff.MoonSign != nil {
			in.chart = ff.ChartColumns.Attributes()
		}
	}

	if in.birthUTC == "" || in.lat == nil || in.lon == nil {
		return in, ErrBirthDataMissing
	}
	in.name = strings.TrimSpace(sysutil.FirstNonEmpty(in.name, meta["name"], defaultSeekerName))
	return in, nil
}

func (s *PaidService) count(outcome string) {
	observability.ForecastGenerations.WithLabelValues("paid", outcome).Inc()
}

func (s *PaidService) targetYear() int {
	if s.TargetYear > 0 {
		return s.TargetYear
	}
	if s.Now != nil {
		return s.Now().Year()
	}
	return time.Now().Year()
}

// splitInstant returns the date and HH:MM parts of an ISO instant.
func splitInstant(instant string) (date, hhmm string) {
	date, rest, _ := strings.Cut(instant, "T")
	hhmm = "00:00"
	if len(rest) >= 5 {
		hhmm = rest[:5]
	}
	return date, hhmm
}

func zodiacFromInstant(instant string) string {
	if t, err := time.Parse(time.RFC3339Nano, instant); err == nil {
		return domain.WesternZodiacSign(t.UTC())
	}
	date, _ := splitInstant(instant)
	return zodiacFromDate(date)
}

func setUsage(rec *domain.PaidForecast, u *domain.TokenUsage) {
	if u == nil {
		return
	}
	rec.PromptTokens = intOrNil(u.PromptTokens)
	rec.CompletionTokens = intOrNil(u.CompletionTokens)
	rec.TotalTokens = intOrNil(u.TotalTokens)
	rec.CachedTokens = intOrNil(u.CachedTokens)
}

func usageOf(rec *domain.PaidForecast) *domain.TokenUsage {
	if rec.TotalTokens == nil {
		return nil
	}
	u := &domain.TokenUsage{TotalTokens: *rec.TotalTokens}
	if rec.PromptTokens != nil {
		u.PromptTokens = *rec.PromptTokens
	}
	if rec.CompletionTokens != nil {
		u.CompletionTokens = *rec.CompletionTokens
	}
	if rec.CachedTokens != nil {
		u.CachedTokens = *rec.CachedTokens
	}
	return u
}

func intOrNil(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
