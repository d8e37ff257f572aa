// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// FreeForecast model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-forecast-backend/internal/domain"
)

// CreateFreeForecast inserts rec, assigning its ID and GuestToken when empty.
func CreateFreeForecast(ctx context.Context, db *gorm.DB, rec *domain.FreeForecast) (*domain.FreeForecast, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.GuestToken == "" {
		rec.GuestToken = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// GetFreeForecast fetches a free forecast by id or returns ErrNotFound.
func GetFreeForecast(ctx context.Context, db *gorm.DB, id string) (*domain.FreeForecast, error) {
	var rec domain.FreeForecast
	if err := db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateFreeForecastEmail links a verified customer email to a free
// forecast. It returns ErrNotFound when no row matched.
func UpdateFreeForecastEmail(ctx context.Context, db *gorm.DB, id, email string) error {
	res := db.WithContext(ctx).
		Model(&domain.FreeForecast{}).
		Where("id = ?", id).
		Updates(map[string]any{"customer_email": email, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
