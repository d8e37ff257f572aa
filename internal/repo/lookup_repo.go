// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides read-only lookups against the trait
// reference tables. Keys are matched case-insensitively; a missing row is
// reported as ErrNotFound.
package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-forecast-backend/internal/domain"
)

// FindSunOrientation returns the profile for sunSign.
func FindSunOrientation(ctx context.Context, db *gorm.DB, sunSign string) (*domain.SunOrientation, error) {
	var row domain.SunOrientation
	if err := db.WithContext(ctx).Where("LOWER(sun_sign) = ?", normKey(sunSign)).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// FindMoonPacing returns the profile for moonSign.
func FindMoonPacing(ctx context.Context, db *gorm.DB, moonSign string) (*domain.MoonPacing, error) {
	var row domain.MoonPacing
	if err := db.WithContext(ctx).Where("LOWER(moon_sign) = ?", normKey(moonSign)).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// FindNakshatraPressure returns the profile for nakshatra.
func FindNakshatraPressure(ctx context.Context, db *gorm.DB, nakshatra string) (*domain.NakshatraPressure, error) {
	var row domain.NakshatraPressure
	if err := db.WithContext(ctx).Where("LOWER(nakshatra) = ?", normKey(nakshatra)).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func normKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
