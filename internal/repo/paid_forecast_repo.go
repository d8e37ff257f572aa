// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// PaidForecast model.
//
// Paid forecasts are keyed by the payment session id. UpsertPaidForecast is
// the only write path: repeated calls for the same session converge on one
// row whose primary key and guest token never change.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-forecast-backend/internal/domain"
)

// paidUpsertColumns are overwritten when a row for the session exists.
// id, guest_token and created_at are deliberately absent.
var paidUpsertColumns = []string{
	"customer_email", "customer_name",
	"birth_date", "birth_time", "birth_time_utc", "birth_place",
	"free_forecast", "strategic_forecast", "amount_paid",
	"model_used", "generation_status", "generation_error", "retry_count",
	"prompt_tokens", "completion_tokens", "total_tokens", "cached_tokens",
	"zodiac_sign", "device_id", "updated_at",
}

// UpsertPaidForecast inserts rec or updates the existing row with the same
// StripeSessionID, and returns the stored row. Missing ID and GuestToken are
// generated for the insert case.
func UpsertPaidForecast(ctx context.Context, db *gorm.DB, rec *domain.PaidForecast) (*domain.PaidForecast, error) {
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.GuestToken == "" {
		rec.GuestToken = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	var out domain.PaidForecast
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_session_id"}},
			DoUpdates: clause.AssignmentColumns(paidUpsertColumns),
		}).Create(rec).Error; err != nil {
			return err
		}
		return tx.Where("stripe_session_id = ?", rec.StripeSessionID).First(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPaidForecastBySession returns the record for a payment session or
// ErrNotFound.
func GetPaidForecastBySession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.PaidForecast, error) {
	var rec domain.PaidForecast
	if err := db.WithContext(ctx).Where("stripe_session_id = ?", sessionID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetPaidForecast returns a record by id or ErrNotFound.
func GetPaidForecast(ctx context.Context, db *gorm.DB, id string) (*domain.PaidForecast, error) {
	var rec domain.PaidForecast
	if err := db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// CountPaidForecastsByStatus returns the number of records with status.
func CountPaidForecastsByStatus(ctx context.Context, db *gorm.DB, status string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.PaidForecast{}).
		Where("generation_status = ?", status).
		Count(&total).Error
	return total, err
}

// ListPaidForecastsByStatusPage returns a page of records with status,
// most recently updated first.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListPaidForecastsByStatusPage(ctx context.Context, db *gorm.DB, status string, offset, limit int) ([]domain.PaidForecast, error) {
	var out []domain.PaidForecast
	err := db.WithContext(ctx).
		Where("generation_status = ?", status).
		Order("updated_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
