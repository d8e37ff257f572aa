package theme

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tbourn/go-forecast-backend/internal/observability"
)

// Store persists themes keyed by (normalized instant, target year).
// Put must treat an existing key as success and keep the first value.
type Store interface {
	Get(ctx context.Context, normalizedUTC string, targetYear int) (string, bool, error)
	Put(ctx context.Context, normalizedUTC string, targetYear int, theme string) error
}

// Result is the outcome of Resolve.
type Result struct {
	Theme         string
	NormalizedUTC string
	CacheHit      bool
}

// Resolver resolves themes through a Store. Concurrent misses for the same
// key share one computation.
type Resolver struct {
	store Store
	group singleflight.Group
}

// NewResolver returns a resolver backed by store. A nil store disables
// memoization.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the theme for the given birth instant. Store failures are
// logged and the computed theme is returned.
func (r *Resolver) Resolve(ctx context.Context, birthInstantUTC string, targetYear, age int, seed string) (Result, error) {
	if birthInstantUTC == "" || r.store == nil {
		return Result{Theme: Select(age, seed)}, nil
	}
	norm, err := Normalize(birthInstantUTC)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("theme: unparseable birth instant")
		return Result{Theme: Select(age, seed)}, nil
	}

	key := norm + "|" + strconv.Itoa(targetYear)
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.lookup(ctx, norm, targetYear, age, seed), nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (r *Resolver) lookup(ctx context.Context, norm string, targetYear, age int, seed string) Result {
	lg := zerolog.Ctx(ctx)
	theme, ok, err := r.store.Get(ctx, norm, targetYear)
	switch {
	case err != nil:
		lg.Warn().Err(err).Msg("theme cache read failed")
		observability.ThemeCacheLookups.WithLabelValues("error").Inc()
	case ok && theme != "":
		observability.ThemeCacheLookups.WithLabelValues("hit").Inc()
		return Result{Theme: theme, NormalizedUTC: norm, CacheHit: true}
	default:
		observability.ThemeCacheLookups.WithLabelValues("miss").Inc()
	}

	theme = Select(age, seed)
	if err := r.store.Put(ctx, norm, targetYear, theme); err != nil {
		lg.Warn().Err(err).Msg("theme cache write failed")
	}
	return Result{Theme: theme, NormalizedUTC: norm}
}
