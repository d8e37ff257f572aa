package abuse

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-forecast-backend/internal/domain"
	"github.com/tbourn/go-forecast-backend/internal/repo"
)

type recordingSink struct {
	events []*domain.AbuseEvent
	err    error
}

func (s *recordingSink) Save(_ context.Context, ev *domain.AbuseEvent) error {
	s.events = append(s.events, ev)
	return s.err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestMonitor(threshold int, sink Sink) (*Monitor, *clock) {
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := NewMonitor(Config{EventType: EventFreeThreshold, Function: "generate-forecast", Threshold: threshold}, sink)
	m.now = clk.now
	return m, clk
}

func TestRecord_FiresAtThresholdOncePerCooldown(t *testing.T) {
	sink := &recordingSink{}
	m, clk := newTestMonitor(3, sink)
	ctx := context.Background()

	if m.Record(ctx, "1.2.3.4", "") || m.Record(ctx, "1.2.3.4", "") {
		t.Fatalf("below threshold should not fire")
	}
	if !m.Record(ctx, "1.2.3.4", "dev-1") {
		t.Fatalf("third record should fire")
	}
	clk.t = clk.t.Add(10 * time.Minute)
	if m.Record(ctx, "1.2.3.4", "") {
		t.Fatalf("cooldown should suppress a second alert")
	}

	if len(sink.events) != 1 {
		t.Fatalf("want 1 event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.EventType != EventFreeThreshold || ev.HourlyCount != 3 || ev.Threshold != 3 {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.DeviceID == nil || *ev.DeviceID != "dev-1" || ev.Details["function"] != "generate-forecast" {
		t.Fatalf("unexpected event details %+v", ev)
	}
}

func TestRecord_WindowResetsAfterAnHour(t *testing.T) {
	m, clk := newTestMonitor(2, nil)
	ctx := context.Background()

	m.Record(ctx, "ip", "")
	clk.t = clk.t.Add(61 * time.Minute)
	if m.Record(ctx, "ip", "") {
		t.Fatalf("count should restart in the new hour")
	}
	if !m.Record(ctx, "ip", "") {
		t.Fatalf("second record of the new hour should fire")
	}
}

func TestRecord_SinkFailureIsSwallowed(t *testing.T) {
	m, _ := newTestMonitor(1, &recordingSink{err: errors.New("db down")})
	if !m.Record(context.Background(), "ip", "") {
		t.Fatalf("alert should still fire")
	}
}

func TestRecord_PersistsThroughRepo(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.AbuseEvent{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	m := NewMonitor(Config{EventType: EventPaidThreshold, Function: "generate-paid-forecast", Threshold: 1}, repo.AbuseSink{DB: db})
	m.Record(context.Background(), "203.0.113.7", "")

	got, err := repo.ListAbuseEvents(context.Background(), db, 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("want 1 persisted event, got %d err=%v", len(got), err)
	}
	if got[0].EventType != EventPaidThreshold || got[0].IPAddress != "203.0.113.7" || got[0].DeviceID != nil {
		t.Fatalf("unexpected persisted event %+v", got[0])
	}
}
