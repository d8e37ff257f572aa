// Package payment verifies that a paid generation request is backed by a
// genuine, paid, recent and unconsumed checkout session.
package payment

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-forecast-backend/internal/observability"
	"github.com/tbourn/go-forecast-backend/internal/repo"
)

// ErrInvalid matches every verification failure via errors.Is.
var ErrInvalid = errors.New("payment verification failed")

// ErrAlreadyConsumed is returned by ReplayStore.MarkConsumed when the
// session id was consumed before.
var ErrAlreadyConsumed = errors.New("payment: session already consumed")

// Reason explains a rejection. Reasons are logged, never shown to clients.
type Reason string

const (
	ReasonReplay         Reason = "replay"
	ReasonReplayStore    Reason = "replay_store_unavailable"
	ReasonRetrieveFailed Reason = "retrieve_failed"
	ReasonNotPaid        Reason = "not_paid"
	ReasonAmountTooLow   Reason = "amount_too_low"
	ReasonWrongProduct   Reason = "wrong_product"
	ReasonExpired        Reason = "expired"
)

// Error is a rejected verification.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment rejected (%s): %v", e.Reason, e.Err)
	}
	return "payment rejected (" + string(e.Reason) + ")"
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes every *Error match ErrInvalid.
func (e *Error) Is(target error) bool { return target == ErrInvalid }

// Session is the gateway's view of a checkout session.
type Session struct {
	ID            string
	PaymentStatus string
	AmountTotal   int64
	Currency      string
	Created       time.Time
	Email         string
	Metadata      map[string]string
	PriceIDs      []string // only populated when line items were requested
}

// Gateway retrieves checkout sessions.
type Gateway interface {
	RetrieveSession(ctx context.Context, sessionID string) (*Session, error)
}

// ReplayStore remembers consumed session ids.
type ReplayStore interface {
	Seen(ctx context.Context, sessionID string) (bool, error)
	MarkConsumed(ctx context.Context, sessionID string) error
}

// Verified is a successfully verified payment.
type Verified struct {
	SessionID   string
	Email       string
	Metadata    map[string]string
	AmountTotal int64
	Currency    string
	Created     time.Time
}

// Options tunes the checks. Zero MaxAge means one hour.
type Options struct {
	MinAmount       int64
	MaxAge          time.Duration
	ExpectedPriceID string
}

// Verifier runs the checks in order: replay, retrieval, paid status, amount,
// product, age; then marks the session consumed.
type Verifier struct {
	gw     Gateway
	replay ReplayStore
	opts   Options
	now    func() time.Time
}

// NewVerifier returns a verifier.
func NewVerifier(gw Gateway, replay ReplayStore, opts Options) *Verifier {
	if opts.MaxAge <= 0 {
		opts.MaxAge = time.Hour
	}
	return &Verifier{gw: gw, replay: replay, opts: opts, now: time.Now}
}

// Verify checks sessionID. Every failure is an *Error.
func (v *Verifier) Verify(ctx context.Context, sessionID string) (*Verified, error) {
	return v.run(ctx, sessionID, false)
}

// VerifyRetry re-checks a session that was already consumed by an earlier
// attempt whose generation did not complete. The gateway checks still run;
// the replay check is skipped. Callers must only use it when they hold an
// unfinished record for sessionID.
func (v *Verifier) VerifyRetry(ctx context.Context, sessionID string) (*Verified, error) {
	return v.run(ctx, sessionID, true)
}

func (v *Verifier) run(ctx context.Context, sessionID string, retry bool) (*Verified, error) {
	out, err := v.verify(ctx, sessionID, retry)
	lg := zerolog.Ctx(ctx)
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			observability.PaymentVerifications.WithLabelValues(string(pe.Reason)).Inc()
			lg.Warn().Str("reason", string(pe.Reason)).Str("session", shortID(sessionID)).Msg("payment rejected")
		}
		return nil, err
	}
	observability.PaymentVerifications.WithLabelValues("ok").Inc()
	lg.Info().
		Int64("amount", out.AmountTotal).
		Str("currency", out.Currency).
		Str("email", MaskEmail(out.Email)).
		Dur("session_age", v.now().Sub(out.Created)).
		Bool("retry", retry).
		Msg("payment verified")
	return out, nil
}

func (v *Verifier) verify(ctx context.Context, sessionID string, retry bool) (*Verified, error) {
	if !retry {
		seen, err := v.replay.Seen(ctx, sessionID)
		if err != nil {
			return nil, &Error{Reason: ReasonReplayStore, Err: err}
		}
		if seen {
			return nil, &Error{Reason: ReasonReplay}
		}
	}

	s, err := v.gw.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, &Error{Reason: ReasonRetrieveFailed, Err: err}
	}
	if s.PaymentStatus != "paid" {
		return nil, &Error{Reason: ReasonNotPaid, Err: fmt.Errorf("status %q", s.PaymentStatus)}
	}
	if s.AmountTotal < v.opts.MinAmount {
		return nil, &Error{Reason: ReasonAmountTooLow, Err: fmt.Errorf("amount %d < %d", s.AmountTotal, v.opts.MinAmount)}
	}
	if v.opts.ExpectedPriceID != "" && !slices.Contains(s.PriceIDs, v.opts.ExpectedPriceID) {
		return nil, &Error{Reason: ReasonWrongProduct}
	}
	if age := v.now().Sub(s.Created); age > v.opts.MaxAge {
		return nil, &Error{Reason: ReasonExpired, Err: fmt.Errorf("age %s", age.Round(time.Second))}
	}

	if err := v.replay.MarkConsumed(ctx, sessionID); err != nil {
		if !errors.Is(err, ErrAlreadyConsumed) && !errors.Is(err, repo.ErrDuplicate) {
			return nil, &Error{Reason: ReasonReplayStore, Err: err}
		}
		if !retry {
			return nil, &Error{Reason: ReasonReplay}
		}
	}
	return &Verified{
		SessionID:   s.ID,
		Email:       s.Email,
		Metadata:    s.Metadata,
		AmountTotal: s.AmountTotal,
		Currency:    s.Currency,
		Created:     s.Created,
	}, nil
}

// MaskEmail keeps the first three characters: "abc***".
func MaskEmail(email string) string {
	if email == "" {
		return "none"
	}
	if len(email) <= 3 {
		return email[:1] + "***"
	}
	return email[:3] + "***"
}

func shortID(id string) string {
	if len(id) > 20 {
		return id[:20] + "..."
	}
	return id
}
