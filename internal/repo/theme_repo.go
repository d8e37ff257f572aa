package repo

import (
	"context"
	"errors"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-forecast-backend/internal/domain"
)

// ThemeStore persists memoized pivotal themes in the theme_cache table.
// It satisfies theme.Store.
type ThemeStore struct {
	DB *gorm.DB
}

// Get returns the cached theme for (normalizedUTC, targetYear).
func (s ThemeStore) Get(ctx context.Context, normalizedUTC string, targetYear int) (string, bool, error) {
	var row domain.ThemeCacheEntry
	err := s.DB.WithContext(ctx).
		Where("birth_datetime_utc = ? AND target_year = ?", normalizedUTC, strconv.Itoa(targetYear)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.PivotalTheme, true, nil
}

// Put inserts the theme for the key. A row that already exists for the key
// is left untouched and no error is returned.
func (s ThemeStore) Put(ctx context.Context, normalizedUTC string, targetYear int, theme string) error {
	row := domain.ThemeCacheEntry{
		BirthDatetimeUTC: normalizedUTC,
		TargetYear:       strconv.Itoa(targetYear),
		PivotalTheme:     theme,
	}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if isUniqueViolation(err) {
		return nil
	}
	return err
}
