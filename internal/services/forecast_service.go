// Package services – ForecastService
//
// ForecastService serves stored forecasts to anonymous holders of the
// guest token minted at generation time, and lists paid records by status
// and recent abuse events for support tooling.
package services

import (
	"context"
	"crypto/subtle"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-forecast-backend/internal/domain"
	"github.com/tbourn/go-forecast-backend/internal/repo"
	"github.com/tbourn/go-forecast-backend/internal/utils"
)

// ForecastRepo defines the read contract of ForecastService.
type ForecastRepo interface {
	GetFreeForecast(ctx context.Context, db *gorm.DB, id string) (*domain.FreeForecast, error)
	GetPaidForecast(ctx context.Context, db *gorm.DB, id string) (*domain.PaidForecast, error)
	CountPaidForecastsByStatus(ctx context.Context, db *gorm.DB, status string) (int64, error)
	ListPaidForecastsByStatusPage(ctx context.Context, db *gorm.DB, status string, offset, limit int) ([]domain.PaidForecast, error)
	ListAbuseEvents(ctx context.Context, db *gorm.DB, limit int) ([]domain.AbuseEvent, error)
}

// ForecastService reads stored forecasts.
type ForecastService struct {
	DB   *gorm.DB
	Repo ForecastRepo

	// MaxPageSize caps ListPaidByStatus page sizes.
	MaxPageSize int
}

// NewForecastService constructs a ForecastService with a page size cap of 100.
func NewForecastService(db *gorm.DB, r ForecastRepo) *ForecastService {
	return &ForecastService{DB: db, Repo: r, MaxPageSize: 100}
}

// GetFree returns a free forecast when guestToken matches. Missing records
// and token mismatches are indistinguishable.
func (s *ForecastService) GetFree(ctx context.Context, id, guestToken string) (*domain.FreeForecast, error) {
	ctx, span := otel.Tracer("services/ForecastService").Start(ctx, "GetFree",
		trace.WithAttributes(attribute.String("forecast.id", id)))
	defer span.End()

	rec, err := s.Repo.GetFreeForecast(ctx, s.DB, id)
	if err != nil {
		return nil, notFound(err)
	}
	if !tokenMatches(rec.GuestToken, guestToken) {
		return nil, ErrNotFound
	}
	return rec, nil
}

// GetPaid returns a paid forecast when guestToken matches.
func (s *ForecastService) GetPaid(ctx context.Context, id, guestToken string) (*domain.PaidForecast, error) {
	ctx, span := otel.Tracer("services/ForecastService").Start(ctx, "GetPaid",
		trace.WithAttributes(attribute.String("forecast.id", id)))
	defer span.End()

	rec, err := s.Repo.GetPaidForecast(ctx, s.DB, id)
	if err != nil {
		return nil, notFound(err)
	}
	if !tokenMatches(rec.GuestToken, guestToken) {
		return nil, ErrNotFound
	}
	return rec, nil
}

// ListPaidByStatus returns a page of paid records with status and the total
// count. Invalid page values fall back to page 1 and 20 items.
func (s *ForecastService) ListPaidByStatus(ctx context.Context, status string, page, pageSize int) ([]domain.PaidForecast, int64, error) {
	ctx, span := otel.Tracer("services/ForecastService").Start(ctx, "ListPaidByStatus",
		trace.WithAttributes(
			attribute.String("status", status),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		))
	defer span.End()

	switch status {
	case domain.StatusPending, domain.StatusComplete, domain.StatusFailed:
	default:
		return nil, 0, &statusError{status: status}
	}
	page, pageSize = utils.ClampPage(page, pageSize, 20, s.MaxPageSize)

	total, err := s.Repo.CountPaidForecastsByStatus(ctx, s.DB, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.PaidForecast{}, 0, nil
	}
	items, err := s.Repo.ListPaidForecastsByStatusPage(ctx, s.DB, status, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

// RecentAbuseEvents returns the newest abuse events, at most limit of them.
// Non-positive limits mean 50; limits above MaxPageSize are capped.
func (s *ForecastService) RecentAbuseEvents(ctx context.Context, limit int) ([]domain.AbuseEvent, error) {
	ctx, span := otel.Tracer("services/ForecastService").Start(ctx, "RecentAbuseEvents")
	defer span.End()

	_, limit = utils.ClampPage(1, limit, 50, s.MaxPageSize)
	span.SetAttributes(attribute.Int("limit", limit))

	out, err := s.Repo.ListAbuseEvents(ctx, s.DB, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.AbuseEvent{}
	}
	return out, nil
}

type statusError struct{ status string }

func (e *statusError) Error() string {
	return "Invalid input: status must be pending, complete or failed"
}

func (e *statusError) Is(target error) bool { return target == ErrValidation }

func tokenMatches(stored, given string) bool {
	if stored == "" || given == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

func notFound(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
