// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the durable replay set for payment
// sessions: a session id can be consumed exactly once.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-forecast-backend/internal/domain"
)

// IsSessionConsumed reports whether sessionID was already consumed.
func IsSessionConsumed(ctx context.Context, db *gorm.DB, sessionID string) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, nil
	}
	var rec domain.ConsumedSession
	err := db.WithContext(ctx).Where("session_id = ?", sessionID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ConsumeSession records sessionID as consumed and returns ErrDuplicate when
// it already was.
func ConsumeSession(ctx context.Context, db *gorm.DB, sessionID string, now time.Time) error {
	rec := &domain.ConsumedSession{SessionID: sessionID, ConsumedAt: now.UTC()}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// PurgeConsumedSessions deletes entries consumed before cutoff and returns
// the number of rows removed.
func PurgeConsumedSessions(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("consumed_at < ?", cutoff.UTC()).Delete(&domain.ConsumedSession{})
	return res.RowsAffected, res.Error
}

// ReplayStore adapts the functions above to payment.ReplayStore.
type ReplayStore struct {
	DB  *gorm.DB
	Now func() time.Time
}

// Seen proxies IsSessionConsumed.
func (s ReplayStore) Seen(ctx context.Context, sessionID string) (bool, error) {
	return IsSessionConsumed(ctx, s.DB, sessionID)
}

// MarkConsumed proxies ConsumeSession. A concurrent consumer that won the
// race surfaces as ErrDuplicate.
func (s ReplayStore) MarkConsumed(ctx context.Context, sessionID string) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return ConsumeSession(ctx, s.DB, sessionID, now())
}
