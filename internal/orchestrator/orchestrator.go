package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-forecast-backend/internal/domain"
	"github.com/tbourn/go-forecast-backend/internal/llm"
	"github.com/tbourn/go-forecast-backend/internal/observability"
	"github.com/tbourn/go-forecast-backend/internal/prompt"
)

// ErrExhausted is wrapped by Outcome.Err when both models failed.
var ErrExhausted = errors.New("orchestrator: primary and fallback models failed")

// RequiredFields are the top-level keys a strategic artifact must carry.
var RequiredFields = []string{
	"strategic_character",
	"comparison_to_prior_year",
	"why_this_year_affects_you_differently",
	"life_area_prioritization",
	"deeper_arc",
	"seasonal_map",
	"crossroads_moment",
	"operating_principles",
}

// Config tunes a run. Zero values take the defaults noted.
type Config struct {
	PrimaryModel   string
	FallbackModel  string
	MaxAttempts    int           // primary attempts, 3
	InitialBackoff time.Duration // 1s; negative disables
	MaxJitter      time.Duration // 300ms; negative disables
}

// Outcome is the single result of Run; failures are reported in Err.
type Outcome struct {
	Artifact      json.RawMessage
	ModelUsed     string
	TotalAttempts int
	UsedFallback  bool
	Usage         *domain.TokenUsage
	Err           error
}

// Orchestrator runs the retry and fallback policy. Safe for concurrent use.
type Orchestrator struct {
	c     llm.Completer
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns an orchestrator calling c.
func New(c llm.Completer, cfg Config) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	switch {
	case cfg.InitialBackoff == 0:
		cfg.InitialBackoff = time.Second
	case cfg.InitialBackoff < 0:
		cfg.InitialBackoff = 0
	}
	switch {
	case cfg.MaxJitter == 0:
		cfg.MaxJitter = 300 * time.Millisecond
	case cfg.MaxJitter < 0:
		cfg.MaxJitter = 0
	}
	return &Orchestrator{c: c, cfg: cfg, sleep: sleepCtx}
}

// Backoff returns initial * 2^(attempt-1).
func Backoff(initial time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return initial << (attempt - 1)
}

func (o *Orchestrator) backoff(attempt int) time.Duration {
	d := Backoff(o.cfg.InitialBackoff, attempt)
	if o.cfg.MaxJitter > 0 {
		d += rand.N(o.cfg.MaxJitter)
	}
	return d
}

// Run generates the artifact for the given prompts.
func (o *Orchestrator) Run(ctx context.Context, system, user string) Outcome {
	ctx, span := otel.Tracer("orchestrator").Start(ctx, "Run",
		trace.WithAttributes(
			attribute.String("llm.primary", o.cfg.PrimaryModel),
			attribute.String("llm.fallback", o.cfg.FallbackModel),
		),
	)
	defer span.End()
	lg := zerolog.Ctx(ctx)

	var (
		out     Outcome
		lastErr error
		attempt int
	)
	state := Next(Idle, 0, o.cfg.MaxAttempts, Success).To
	for state != Terminal {
		switch state {
		case AttemptingPrimary, AttemptingFallback:
			if err := ctx.Err(); err != nil {
				out.Err = err
				return out
			}
			model := o.cfg.PrimaryModel
			if state == AttemptingFallback {
				model = o.cfg.FallbackModel
			}
			attempt++
			out.TotalAttempts++

			res, artifact, usage, err := o.attempt(ctx, model, attempt, system, user)
			if usage != nil {
				out.Usage = usage
			}
			if res == Success {
				out.Artifact, out.ModelUsed = artifact, model
			} else {
				lastErr = err
			}

			tr := Next(state, attempt, o.cfg.MaxAttempts, res)
			if tr.Sleep {
				if err := o.sleep(ctx, o.backoff(attempt)); err != nil {
					out.Err = err
					return out
				}
			}
			state = tr.To

		case PrimaryExhausted:
			lg.Warn().Str("model", o.cfg.PrimaryModel).Int("attempts", attempt).Err(lastErr).Msg("primary model exhausted, trying fallback")
			out.UsedFallback = true
			attempt = 0
			state = Next(state, 0, 1, Fatal).To

		case FallbackFailed:
			out.ModelUsed = o.cfg.FallbackModel
			out.Err = fmt.Errorf("%w: %v", ErrExhausted, lastErr)
			state = Next(state, 0, 0, Fatal).To

		default:
			state = Next(state, 0, 0, Success).To
		}
	}
	span.SetAttributes(
		attribute.String("llm.model_used", out.ModelUsed),
		attribute.Int("llm.attempts", out.TotalAttempts),
		attribute.Bool("llm.used_fallback", out.UsedFallback),
	)
	return out
}

// attempt performs one model call and classifies it. Payloads are never
// logged.
func (o *Orchestrator) attempt(ctx context.Context, model string, n int, system, user string) (Result, json.RawMessage, *domain.TokenUsage, error) {
	start := time.Now()
	resp, err := o.c.Complete(ctx, llm.Request{
		Model:               model,
		Messages:            []llm.Message{{Role: "system", Content: system}, {Role: "user", Content: user}},
		ResponseFormat:      &llm.ResponseFormat{Type: "json_object"},
		MaxCompletionTokens: 8000,
		PromptCacheRetain:   "24h",
		PromptCacheKey:      prompt.CacheKey,
	})
	elapsed := time.Since(start)

	ev := zerolog.Ctx(ctx).Info().Str("model", model).Int("attempt", n).Dur("elapsed", elapsed)
	var res Result
	var artifact json.RawMessage
	var usage *domain.TokenUsage
	switch {
	case err != nil:
		res = Fatal
		if llm.IsRetryable(err) {
			res = Retryable
		}
		var he *llm.HTTPError
		if errors.As(err, &he) {
			ev = ev.Int("status", he.Status)
			// Provider bodies can echo request content; keep them out of
			// the outcome, which ends up in storage.
			zerolog.Ctx(ctx).Debug().Str("model", model).Int("status", he.Status).Str("body", he.Body).Msg("model error body")
			err = fmt.Errorf("%w (%s)", he.Redacted(), res)
		}
	default:
		usage = resp.Usage
		ev = ev.Int("status", resp.Status)
		artifact, err = validateArtifact(resp.Content)
		res = Success
		if err != nil {
			res = ContentFailure
		}
	}
	ev.Str("result", res.String()).Msg("model attempt")
	observability.LLMAttempts.WithLabelValues(model, res.String()).Inc()
	return res, artifact, usage, err
}

// Content errors.
var (
	ErrEmptyContent  = errors.New("orchestrator: empty content")
	ErrMissingFields = errors.New("orchestrator: artifact missing required fields")
)

func validateArtifact(content string) (json.RawMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	obj, err := llm.ExtractFirstJSONObject(content)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(obj, &fields); err != nil {
		return nil, err
	}
	var missing []string
	for _, k := range RequiredFields {
		if v, ok := fields[k]; !ok || string(v) == "null" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}
	return obj, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
