package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-forecast-backend/internal/domain"
	"github.com/tbourn/go-forecast-backend/internal/repo"
)

func TestForecastService_GuestTokenGate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := NewForecastService(db, sqliteRepo{})

	ff, err := repo.CreateFreeForecast(ctx, db, &domain.FreeForecast{
		BirthDate: "1990-05-20", BirthTime: "14:35", BirthPlace: "Mumbai",
		ForecastText: "text", PivotalTheme: "career",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	pf, err := repo.UpsertPaidForecast(ctx, db, &domain.PaidForecast{
		StripeSessionID: "cs_test_get", GenerationStatus: domain.StatusComplete,
		StrategicForecast: []byte(`{"year":"2026"}`),
	})
	if err != nil {
		t.Fatalf("seed paid: %v", err)
	}

	if got, err := s.GetFree(ctx, ff.ID, ff.GuestToken); err != nil || got.ID != ff.ID {
		t.Fatalf("GetFree with token: got %v err=%v", got, err)
	}
	if got, err := s.GetPaid(ctx, pf.ID, pf.GuestToken); err != nil || got.ID != pf.ID {
		t.Fatalf("GetPaid with token: got %v err=%v", got, err)
	}

	cases := []struct {
		name string
		call func() error
	}{
		{"free wrong token", func() error { _, err := s.GetFree(ctx, ff.ID, "nope"); return err }},
		{"free empty token", func() error { _, err := s.GetFree(ctx, ff.ID, ""); return err }},
		{"free missing", func() error { _, err := s.GetFree(ctx, "missing", ff.GuestToken); return err }},
		{"paid wrong token", func() error { _, err := s.GetPaid(ctx, pf.ID, ff.GuestToken); return err }},
		{"paid missing", func() error { _, err := s.GetPaid(ctx, "missing", pf.GuestToken); return err }},
	}
	for _, tc := range cases {
		if err := tc.call(); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: want ErrNotFound, got %v", tc.name, err)
		}
	}
}

func TestForecastService_ListPaidByStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := NewForecastService(db, sqliteRepo{})

	for _, id := range []string{"cs_test_a", "cs_test_b", "cs_test_c"} {
		if _, err := repo.UpsertPaidForecast(ctx, db, &domain.PaidForecast{StripeSessionID: id, GenerationStatus: domain.StatusFailed}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	items, total, err := s.ListPaidByStatus(ctx, domain.StatusFailed, 2, 2)
	if err != nil || total != 3 || len(items) != 1 {
		t.Fatalf("page 2: items=%d total=%d err=%v", len(items), total, err)
	}

	items, total, err = s.ListPaidByStatus(ctx, domain.StatusComplete, 0, 0)
	if err != nil || total != 0 || items == nil || len(items) != 0 {
		t.Fatalf("empty status: items=%v total=%d err=%v", items, total, err)
	}

	if _, _, err := s.ListPaidByStatus(ctx, "bogus", 1, 10); !errors.Is(err, ErrValidation) {
		t.Fatalf("want ErrValidation for unknown status, got %v", err)
	}
}

type pageRecorder struct {
	sqliteRepo
	offset, limit int
}

func (r *pageRecorder) CountPaidForecastsByStatus(context.Context, *gorm.DB, string) (int64, error) {
	return 1000, nil
}

func (r *pageRecorder) ListPaidForecastsByStatusPage(_ context.Context, _ *gorm.DB, _ string, offset, limit int) ([]domain.PaidForecast, error) {
	r.offset, r.limit = offset, limit
	return nil, nil
}

func TestForecastService_PageSizeCapped(t *testing.T) {
	r := &pageRecorder{}
	s := NewForecastService(nil, r)
	if _, _, err := s.ListPaidByStatus(context.Background(), domain.StatusFailed, 3, 500); err != nil {
		t.Fatalf("ListPaidByStatus: %v", err)
	}
	if r.limit != 100 || r.offset != 200 {
		t.Fatalf("want offset=200 limit=100, got offset=%d limit=%d", r.offset, r.limit)
	}
}

func TestForecastService_RecentAbuseEvents(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ev := &domain.AbuseEvent{EventType: "paid_forecast_threshold", HourlyCount: 50 + i, Threshold: 50, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.CreateAbuseEvent(ctx, db, ev); err != nil {
			t.Fatal(err)
		}
	}
	s := NewForecastService(db, sqliteRepo{})

	got, err := s.RecentAbuseEvents(ctx, 2)
	if err != nil {
		t.Fatalf("RecentAbuseEvents: %v", err)
	}
	if len(got) != 2 || got[0].HourlyCount != 52 {
		t.Fatalf("want newest two, got %+v", got)
	}

	all, err := s.RecentAbuseEvents(ctx, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("default limit: len=%d err=%v", len(all), err)
	}
}

func TestForecastService_RecentAbuseEventsEmpty(t *testing.T) {
	s := NewForecastService(newTestDB(t), sqliteRepo{})
	got, err := s.RecentAbuseEvents(context.Background(), 10)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil slice, got %v err=%v", got, err)
	}
}
