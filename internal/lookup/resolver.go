// Package lookup resolves the trait profiles for a chart's sun sign, moon
// sign and nakshatra. The three reads run concurrently; a missing key, a
// missing row or a read error leaves that profile nil.
package lookup

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-forecast-backend/internal/domain"
	"github.com/tbourn/go-forecast-backend/internal/repo"
)

// Source reads the reference tables.
type Source interface {
	FindSunOrientation(ctx context.Context, sunSign string) (*domain.SunOrientation, error)
	FindMoonPacing(ctx context.Context, moonSign string) (*domain.MoonPacing, error)
	FindNakshatraPressure(ctx context.Context, nakshatra string) (*domain.NakshatraPressure, error)
}

// DBSource is the gorm-backed Source.
type DBSource struct {
	DB *gorm.DB
}

func (s DBSource) FindSunOrientation(ctx context.Context, sunSign string) (*domain.SunOrientation, error) {
	return repo.FindSunOrientation(ctx, s.DB, sunSign)
}

func (s DBSource) FindMoonPacing(ctx context.Context, moonSign string) (*domain.MoonPacing, error) {
	return repo.FindMoonPacing(ctx, s.DB, moonSign)
}

func (s DBSource) FindNakshatraPressure(ctx context.Context, nakshatra string) (*domain.NakshatraPressure, error) {
	return repo.FindNakshatraPressure(ctx, s.DB, nakshatra)
}

// Resolver fans out the three lookups.
type Resolver struct {
	src Source
}

// NewResolver returns a resolver reading from src.
func NewResolver(src Source) *Resolver { return &Resolver{src: src} }

// Resolve never fails; see the package doc.
func (r *Resolver) Resolve(ctx context.Context, attrs domain.ChartAttributes) domain.TraitProfiles {
	var out domain.TraitProfiles
	if r == nil || r.src == nil {
		return out
	}
	lg := zerolog.Ctx(ctx)

	g, gctx := errgroup.WithContext(ctx)
	if attrs.SunSign != "" {
		g.Go(func() error {
			out.Sun = keep[domain.SunOrientation](lg, "sun", attrs.SunSign)(r.src.FindSunOrientation(gctx, attrs.SunSign))
			return nil
		})
	}
	if attrs.MoonSign != "" {
		g.Go(func() error {
			out.Moon = keep[domain.MoonPacing](lg, "moon", attrs.MoonSign)(r.src.FindMoonPacing(gctx, attrs.MoonSign))
			return nil
		})
	}
	if attrs.Nakshatra != "" {
		g.Go(func() error {
			out.Nakshatra = keep[domain.NakshatraPressure](lg, "nakshatra", attrs.Nakshatra)(r.src.FindNakshatraPressure(gctx, attrs.Nakshatra))
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// keep returns a function that drops the row on error, logging anything but
// a plain miss.
func keep[T any](lg *zerolog.Logger, table, key string) func(*T, error) *T {
	return func(row *T, err error) *T {
		if err == nil {
			return row
		}
		if !errors.Is(err, repo.ErrNotFound) {
			lg.Warn().Err(err).Str("table", table).Str("key", key).Msg("trait lookup failed")
		}
		return nil
	}
}
