package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-forecast-backend/internal/domain"
	"github.com/tbourn/go-forecast-backend/internal/repo"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubGateway struct {
	sessions map[string]*Session
	err      error
	calls    int
}

func (g *stubGateway) RetrieveSession(_ context.Context, id string) (*Session, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	s, ok := g.sessions[id]
	if !ok {
		return nil, errors.New("no such checkout session")
	}
	return s, nil
}

func paidSession(id string) *Session {
	return &Session{
		ID:            id,
		PaymentStatus: "paid",
		AmountTotal:   1999,
		Currency:      "usd",
		Created:       testNow.Add(-10 * time.Minute),
		Email:         "buyer@example.com",
		Metadata:      map[string]string{"freeForecastId": "f1"},
		PriceIDs:      []string{"price_annual"},
	}
}

func newTestVerifier(gw Gateway, opts Options) (*Verifier, *MemoryReplayStore) {
	rs := NewMemoryReplayStore()
	v := NewVerifier(gw, rs, opts)
	v.now = func() time.Time { return testNow }
	return v, rs
}

func TestVerify_Rejections(t *testing.T) {
	unpaid := paidSession("cs_unpaid")
	unpaid.PaymentStatus = "unpaid"
	old := paidSession("cs_old")
	old.Created = testNow.Add(-61 * time.Minute)
	cheap := paidSession("cs_cheap")
	cheap.AmountTotal = 100
	other := paidSession("cs_other")
	other.PriceIDs = []string{"price_monthly"}

	gw := &stubGateway{sessions: map[string]*Session{
		unpaid.ID: unpaid, old.ID: old, cheap.ID: cheap, other.ID: other,
	}}

	tests := []struct {
		name string
		id   string
		opts Options
		want Reason
	}{
		{"unpaid", "cs_unpaid", Options{}, ReasonNotPaid},
		{"older than an hour", "cs_old", Options{}, ReasonExpired},
		{"below minimum", "cs_cheap", Options{MinAmount: 500}, ReasonAmountTooLow},
		{"wrong product", "cs_other", Options{ExpectedPriceID: "price_annual"}, ReasonWrongProduct},
		{"unknown session", "cs_missing", Options{}, ReasonRetrieveFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, rs := newTestVerifier(gw, tc.opts)
			_, err := v.Verify(context.Background(), tc.id)
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("want ErrInvalid, got %v", err)
			}
			var pe *Error
			if !errors.As(err, &pe) || pe.Reason != tc.want {
				t.Fatalf("want reason %q, got %v", tc.want, err)
			}
			if rs.Len() != 0 {
				t.Fatalf("rejected session must not be consumed")
			}
		})
	}
}

func TestVerify_SuccessConsumesAndReplayIsRejected(t *testing.T) {
	gw := &stubGateway{sessions: map[string]*Session{"cs_ok": paidSession("cs_ok")}}
	v, rs := newTestVerifier(gw, Options{MinAmount: 500, ExpectedPriceID: "price_annual"})
	ctx := context.Background()

	got, err := v.Verify(ctx, "cs_ok")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.Email != "buyer@example.com" || got.AmountTotal != 1999 || got.Metadata["freeForecastId"] != "f1" {
		t.Fatalf("unexpected verified payment %+v", got)
	}
	if seen, _ := rs.Seen(ctx, "cs_ok"); !seen {
		t.Fatalf("session should be consumed")
	}

	_, err = v.Verify(ctx, "cs_ok")
	var pe *Error
	if !errors.As(err, &pe) || pe.Reason != ReasonReplay {
		t.Fatalf("second use should be a replay, got %v", err)
	}
	if gw.calls != 1 {
		t.Fatalf("replay must be rejected before the gateway, calls=%d", gw.calls)
	}
}

func TestVerify_ZeroAmountAllowedByDefault(t *testing.T) {
	s := paidSession("cs_promo")
	s.AmountTotal = 0
	v, _ := newTestVerifier(&stubGateway{sessions: map[string]*Session{s.ID: s}}, Options{})
	if _, err := v.Verify(context.Background(), s.ID); err != nil {
		t.Fatalf("promo session should verify: %v", err)
	}
}

func TestVerifyRetry_SkipsReplayButKeepsGatewayChecks(t *testing.T) {
	ok := paidSession("cs_ok")
	unpaid := paidSession("cs_refunded")
	unpaid.PaymentStatus = "unpaid"
	gw := &stubGateway{sessions: map[string]*Session{ok.ID: ok, unpaid.ID: unpaid}}
	v, rs := newTestVerifier(gw, Options{MinAmount: 500})
	ctx := context.Background()

	if _, err := v.Verify(ctx, "cs_ok"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	got, err := v.VerifyRetry(ctx, "cs_ok")
	if err != nil {
		t.Fatalf("VerifyRetry after consumption: %v", err)
	}
	if got.Email != "buyer@example.com" || gw.calls != 2 {
		t.Fatalf("retry should re-read the session, got %+v calls=%d", got, gw.calls)
	}
	if rs.Len() != 1 {
		t.Fatalf("session should stay consumed once, len=%d", rs.Len())
	}

	if err := rs.MarkConsumed(ctx, "cs_refunded"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err = v.VerifyRetry(ctx, "cs_refunded")
	var pe *Error
	if !errors.As(err, &pe) || pe.Reason != ReasonNotPaid {
		t.Fatalf("retry must still check payment status, got %v", err)
	}
}

type failingReplay struct{ seenErr, markErr error }

func (f failingReplay) Seen(context.Context, string) (bool, error) { return false, f.seenErr }
func (f failingReplay) MarkConsumed(context.Context, string) error { return f.markErr }

func TestVerify_ReplayStoreFailuresReject(t *testing.T) {
	gw := &stubGateway{sessions: map[string]*Session{"cs_ok": paidSession("cs_ok")}}
	down := errors.New("store down")

	for _, rs := range []failingReplay{{seenErr: down}, {markErr: down}} {
		v := NewVerifier(gw, rs, Options{})
		v.now = func() time.Time { return testNow }
		_, err := v.Verify(context.Background(), "cs_ok")
		var pe *Error
		if !errors.As(err, &pe) || pe.Reason != ReasonReplayStore || !errors.Is(err, down) {
			t.Fatalf("want replay store rejection wrapping cause, got %v", err)
		}
	}
}

func TestVerify_DurableReplayStoreRaceIsReplay(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.ConsumedSession{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	ctx := context.Background()
	// Another instance consumed the session between Seen and MarkConsumed.
	rs := raceReplay{ReplayStore: repo.ReplayStore{DB: db}}
	if err := repo.ConsumeSession(ctx, db, "cs_ok", testNow); err != nil {
		t.Fatalf("seed: %v", err)
	}

	gw := &stubGateway{sessions: map[string]*Session{"cs_ok": paidSession("cs_ok")}}
	v := NewVerifier(gw, rs, Options{})
	v.now = func() time.Time { return testNow }
	_, err = v.Verify(ctx, "cs_ok")
	var pe *Error
	if !errors.As(err, &pe) || pe.Reason != ReasonReplay {
		t.Fatalf("want replay, got %v", err)
	}
}

type raceReplay struct{ repo.ReplayStore }

func (raceReplay) Seen(context.Context, string) (bool, error) { return false, nil }

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"":                  "none",
		"ab":                "a***",
		"buyer@example.com": "buy***",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Fatalf("MaskEmail(%q)=%q want %q", in, got, want)
		}
	}
}
