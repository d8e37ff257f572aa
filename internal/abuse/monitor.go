// Package abuse watches hourly generation volume and records an abuse event
// when it crosses a threshold.
package abuse

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/tbourn/go-forecast-backend/internal/domain"
)

// Event types.
const (
	EventFreeThreshold = "hourly_threshold_exceeded"
	EventPaidThreshold = "paid_hourly_threshold_exceeded"
)

// Sink persists abuse events.
type Sink interface {
	Save(ctx context.Context, ev *domain.AbuseEvent) error
}

// Config describes one monitored endpoint.
type Config struct {
	EventType string
	Function  string // recorded in the event details
	Threshold int
	Cooldown  time.Duration // minimum gap between alerts, default 1h
}

// Monitor counts generations in a fixed hourly window. It is safe for
// concurrent use.
type Monitor struct {
	cfg  Config
	sink Sink
	now  func() time.Time

	mu        sync.Mutex
	count     int
	hourStart time.Time
	lastAlert time.Time
}

// NewMonitor returns a monitor. A nil sink only logs.
func NewMonitor(cfg Config, sink Sink) *Monitor {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Hour
	}
	return &Monitor{cfg: cfg, sink: sink, now: time.Now}
}

// Record counts one generation and reports whether an alert fired.
func (m *Monitor) Record(ctx context.Context, ip, deviceID string) bool {
	now := m.now()

	m.mu.Lock()
	if m.hourStart.IsZero() || now.Sub(m.hourStart) > time.Hour {
		m.count = 0
		m.hourStart = now
	}
	m.count++
	count := m.count
	fire := m.cfg.Threshold > 0 && count >= m.cfg.Threshold &&
		(m.lastAlert.IsZero() || now.Sub(m.lastAlert) > m.cfg.Cooldown)
	if fire {
		m.lastAlert = now
	}
	m.mu.Unlock()

	if !fire {
		return false
	}

	lg := zerolog.Ctx(ctx)
	lg.Warn().
		Str("event", m.cfg.EventType).
		Int("hourly_count", count).
		Int("threshold", m.cfg.Threshold).
		Msg("abuse threshold exceeded")

	if m.sink == nil {
		return true
	}
	ev := &domain.AbuseEvent{
		EventType:   m.cfg.EventType,
		IPAddress:   ip,
		HourlyCount: count,
		Threshold:   m.cfg.Threshold,
		Details: datatypes.JSONMap{
			"function":  m.cfg.Function,
			"timestamp": now.UTC().Format(time.RFC3339),
		},
		CreatedAt: now.UTC(),
	}
	if deviceID != "" {
		ev.DeviceID = &deviceID
	}
	if err := m.sink.Save(ctx, ev); err != nil {
		lg.Error().Err(err).Msg("persist abuse event")
	}
	return true
}
