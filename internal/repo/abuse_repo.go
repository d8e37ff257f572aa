package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-forecast-backend/internal/domain"
)

// CreateAbuseEvent inserts an abuse event, assigning ID and CreatedAt when empty.
func CreateAbuseEvent(ctx context.Context, db *gorm.DB, ev *domain.AbuseEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(ev).Error
}

// ListAbuseEvents returns the most recent events, newest first.
func ListAbuseEvents(ctx context.Context, db *gorm.DB, limit int) ([]domain.AbuseEvent, error) {
	var out []domain.AbuseEvent
	err := db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&out).Error
	return out, err
}

// AbuseSink adapts CreateAbuseEvent to abuse.Sink.
type AbuseSink struct{ DB *gorm.DB }

// Save persists ev.
func (s AbuseSink) Save(ctx context.Context, ev *domain.AbuseEvent) error {
	return CreateAbuseEvent(ctx, s.DB, ev)
}
