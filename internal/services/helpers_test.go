package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-forecast-backend/internal/chart"
	"github.com/tbourn/go-forecast-backend/internal/domain"
	"github.com/tbourn/go-forecast-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.FreeForecast{}, &domain.PaidForecast{}, &domain.AbuseEvent{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// sqliteRepo forwards to the repo package functions.
type sqliteRepo struct{}

func (sqliteRepo) CreateFreeForecast(ctx context.Context, db *gorm.DB, rec *domain.FreeForecast) (*domain.FreeForecast, error) {
	return repo.CreateFreeForecast(ctx, db, rec)
}

func (sqliteRepo) GetFreeForecast(ctx context.Context, db *gorm.DB, id string) (*domain.FreeForecast, error) {
	return repo.GetFreeForecast(ctx, db, id)
}

func (sqliteRepo) UpdateFreeForecastEmail(ctx context.Context, db *gorm.DB, id, email string) error {
	return repo.UpdateFreeForecastEmail(ctx, db, id, email)
}

func (sqliteRepo) UpsertPaidForecast(ctx context.Context, db *gorm.DB, rec *domain.PaidForecast) (*domain.PaidForecast, error) {
	return repo.UpsertPaidForecast(ctx, db, rec)
}

func (sqliteRepo) GetPaidForecastBySession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.PaidForecast, error) {
	return repo.GetPaidForecastBySession(ctx, db, sessionID)
}

func (sqliteRepo) GetPaidForecast(ctx context.Context, db *gorm.DB, id string) (*domain.PaidForecast, error) {
	return repo.GetPaidForecast(ctx, db, id)
}

func (sqliteRepo) CountPaidForecastsByStatus(ctx context.Context, db *gorm.DB, status string) (int64, error) {
	return repo.CountPaidForecastsByStatus(ctx, db, status)
}

func (sqliteRepo) ListAbuseEvents(ctx context.Context, db *gorm.DB, limit int) ([]domain.AbuseEvent, error) {
	return repo.ListAbuseEvents(ctx, db, limit)
}

func (sqliteRepo) ListPaidForecastsByStatusPage(ctx context.Context, db *gorm.DB, status string, offset, limit int) ([]domain.PaidForecast, error) {
	return repo.ListPaidForecastsByStatusPage(ctx, db, status, offset, limit)
}

type stubChart struct {
	attrs domain.ChartAttributes
	calls int
}

func (c *stubChart) Fetch(context.Context, chart.Moment) domain.ChartAttributes {
	c.calls++
	return c.attrs
}

type countingAbuse struct{ calls int }

func (a *countingAbuse) Record(context.Context, string, string) bool {
	a.calls++
	return false
}

func f64(v float64) *float64 { return &v }
