package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbourn/go-forecast-backend/internal/domain"
	"github.com/tbourn/go-forecast-backend/internal/llm"
	"github.com/tbourn/go-forecast-backend/internal/orchestrator"
	"github.com/tbourn/go-forecast-backend/internal/payment"
	"github.com/tbourn/go-forecast-backend/internal/repo"
)

type stubGateway struct {
	sessions map[string]*payment.Session
	calls    int
}

func (g *stubGateway) RetrieveSession(_ context.Context, id string) (*payment.Session, error) {
	g.calls++
	if s, ok := g.sessions[id]; ok {
		return s, nil
	}
	return nil, errors.New("no such session")
}

type stubRunner struct {
	out   orchestrator.Outcome
	calls atomic.Int32
	user  string
}

func (r *stubRunner) Run(_ context.Context, _, user string) orchestrator.Outcome {
	r.calls.Add(1)
	r.user = user
	return r.out
}

const artifactJSON = `{"year":"2026","strategic_character":"steady","comparison_to_prior_year":"x","why_this_year_affects_you_differently":"y","life_area_prioritization":[],"deeper_arc":"z","seasonal_map":[],"crossroads_moment":"c","operating_principles":[]}`

func paidSession(id, status string) *payment.Session {
	return &payment.Session{
		ID:            id,
		PaymentStatus: status,
		AmountTotal:   1999,
		Currency:      "usd",
		Created:       time.Now().Add(-5 * time.Minute),
		Email:         "buyer@example.com",
		Metadata:      map[string]string{},
	}
}

type paidFixture struct {
	svc    *PaidService
	gw     *stubGateway
	runner *stubRunner
	chart  *stubChart
	abuse  *countingAbuse
}

func newPaidFixture(t *testing.T, out orchestrator.Outcome, sessions ...*payment.Session) *paidFixture {
	t.Helper()
	gw := &stubGateway{sessions: map[string]*payment.Session{}}
	for _, s := range sessions {
		gw.sessions[s.ID] = s
	}
	f := &paidFixture{
		gw:     gw,
		runner: &stubRunner{out: out},
		chart:  &stubChart{attrs: domain.ChartAttributes{MoonSign: "Rohini-fetched"}},
		abuse:  &countingAbuse{},
	}
	f.svc = &PaidService{
		DB:         newTestDB(t),
		Paid:       sqliteRepo{},
		Free:       sqliteRepo{},
		Verifier:   payment.NewVerifier(gw, payment.NewMemoryReplayStore(), payment.Options{}),
		Chart:      f.chart,
		Runner:     f.runner,
		Abuse:      f.abuse,
		TargetYear: 2026,
	}
	return f
}

func okOutcome(model string, attempts int, fallback bool) orchestrator.Outcome {
	return orchestrator.Outcome{
		Artifact:      json.RawMessage(artifactJSON),
		ModelUsed:     model,
		TotalAttempts: attempts,
		UsedFallback:  fallback,
		Usage:         &domain.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150, CachedTokens: 80},
	}
}

func paidRequest(session string) domain.PaidGenerationRequest {
	return domain.PaidGenerationRequest{
		SessionID:        session,
		BirthDateTimeUTC: "1990-05-20T09:05:00Z",
		Lat:              f64(19.07),
		Lon:              f64(72.88),
		Name:             "Ada",
	}
}

func TestPaidGenerate_IdempotentForCompletedSession(t *testing.T) {
	f := newPaidFixture(t, okOutcome("gpt-5-2025-08-07", 1, false), paidSession("cs_test_0001", "paid"))
	ctx := context.Background()

	first, err := f.svc.Generate(ctx, paidRequest("cs_test_0001"), "203.0.113.7")
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	if first.Cached || first.ForecastID == "" || first.GuestToken == "" {
		t.Fatalf("unexpected first result %+v", first)
	}

	second, err := f.svc.Generate(ctx, paidRequest("cs_test_0001"), "203.0.113.7")
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if !second.Cached || second.ForecastID != first.ForecastID {
		t.Fatalf("second call should return the stored record, got %+v", second)
	}
	if string(second.Forecast) != artifactJSON && !jsonEqual(second.Forecast, []byte(artifactJSON)) {
		t.Fatalf("artifact mismatch: %s", second.Forecast)
	}
	if n := f.runner.calls.Load(); n != 1 {
		t.Fatalf("model should be called once, got %d", n)
	}
	if f.gw.calls != 1 {
		t.Fatalf("gateway should be called once, got %d", f.gw.calls)
	}

	rec, err := repo.GetPaidForecastBySession(ctx, f.svc.DB, "cs_test_0001")
	if err != nil {
		t.Fatalf("readback: %v", err)
	}
	if rec.GenerationStatus != domain.StatusComplete || rec.CustomerName != "Ada" || rec.BirthPlace != "19.07,72.88" {
		t.Fatalf("unexpected stored record %+v", rec)
	}
	if rec.BirthDate != "1990-05-20" || rec.BirthTime != "09:05" || rec.ZodiacSign != "Taurus" {
		t.Fatalf("unexpected birth fields %+v", rec)
	}
	if rec.CachedTokens == nil || *rec.CachedTokens != 80 || rec.RetryCount != 1 {
		t.Fatalf("usage not stored: %+v", rec)
	}
}

func TestPaidGenerate_UnpaidSessionRejectedWithoutModelCall(t *testing.T) {
	f := newPaidFixture(t, okOutcome("m", 1, false), paidSession("cs_test_unpaid", "unpaid"))

	_, err := f.svc.Generate(context.Background(), paidRequest("cs_test_unpaid"), "ip")
	if !errors.Is(err, ErrPaymentInvalid) {
		t.Fatalf("want ErrPaymentInvalid, got %v", err)
	}
	if n := f.runner.calls.Load(); n != 0 {
		t.Fatalf("model must not be called, got %d", n)
	}
	if _, err := repo.GetPaidForecastBySession(context.Background(), f.svc.DB, "cs_test_unpaid"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("no record should exist, err=%v", err)
	}
}

func TestPaidGenerate_ExpiredSessionRejected(t *testing.T) {
	s := paidSession("cs_test_old", "paid")
	s.Created = time.Now().Add(-2 * time.Hour)
	f := newPaidFixture(t, okOutcome("m", 1, false), s)

	_, err := f.svc.Generate(context.Background(), paidRequest("cs_test_old"), "ip")
	var pe *payment.Error
	if !errors.As(err, &pe) || pe.Reason != payment.ReasonExpired {
		t.Fatalf("want expired rejection, got %v", err)
	}
}

func TestPaidGenerate_FallbackModelPersisted(t *testing.T) {
	f := newPaidFixture(t, okOutcome("gpt-5-mini-2025-08-07", 4, true), paidSession("cs_test_fallback", "paid"))

	res, err := f.svc.Generate(context.Background(), paidRequest("cs_test_fallback"), "ip")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.ModelUsed != "gpt-5-mini-2025-08-07" || res.TotalAttempts != 4 {
		t.Fatalf("unexpected result %+v", res)
	}
	rec, _ := repo.GetPaidForecastBySession(context.Background(), f.svc.DB, "cs_test_fallback")
	if rec == nil || rec.ModelUsed != "gpt-5-mini-2025-08-07" || rec.RetryCount != 4 {
		t.Fatalf("stored record should show the fallback model, got %+v", rec)
	}
}

func TestPaidGenerate_FailureRecordedThenRegenerated(t *testing.T) {
	f := newPaidFixture(t, orchestrator.Outcome{ModelUsed: "fb", TotalAttempts: 4, UsedFallback: true, Err: orchestrator.ErrExhausted},
		paidSession("cs_test_fail", "paid"))
	ctx := context.Background()

	_, err := f.svc.Generate(ctx, paidRequest("cs_test_fail"), "ip")
	if !errors.Is(err, ErrGeneration) || !errors.Is(err, orchestrator.ErrExhausted) {
		t.Fatalf("want ErrGeneration wrapping ErrExhausted, got %v", err)
	}
	rec, _ := repo.GetPaidForecastBySession(ctx, f.svc.DB, "cs_test_fail")
	if rec == nil || rec.GenerationStatus != domain.StatusFailed || rec.GenerationError == nil || rec.RetryCount != 4 {
		t.Fatalf("failure not recorded: %+v", rec)
	}
	if f.abuse.calls != 0 {
		t.Fatalf("failed generation should not count toward abuse volume")
	}

	f.runner.out = okOutcome("gpt-5-2025-08-07", 1, false)
	res, err := f.svc.Generate(ctx, paidRequest("cs_test_fail"), "ip")
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if res.Cached || res.ForecastID != rec.ID || res.GuestToken != rec.GuestToken {
		t.Fatalf("retry should regenerate the same record, got %+v want id %s", res, rec.ID)
	}
	if n := f.runner.calls.Load(); n != 2 {
		t.Fatalf("model should run again on retry, calls=%d", n)
	}
	if f.gw.calls != 2 {
		t.Fatalf("retry must re-check the session with the gateway, calls=%d", f.gw.calls)
	}
	done, _ := repo.GetPaidForecastBySession(ctx, f.svc.DB, "cs_test_fail")
	if done == nil || done.GenerationStatus != domain.StatusComplete || done.GenerationError != nil || done.ID != rec.ID {
		t.Fatalf("status should move from failed to complete, got %+v", done)
	}
}

// leakyCompleter fails every call with a provider body that echoes input.
type leakyCompleter struct{}

func (leakyCompleter) Complete(context.Context, llm.Request) (*llm.Response, error) {
	return nil, &llm.HTTPError{Status: 400, Body: "invalid request: Ada born 1990-05-20"}
}

func TestPaidGenerate_StoredErrorOmitsProviderBody(t *testing.T) {
	f := newPaidFixture(t, orchestrator.Outcome{}, paidSession("cs_test_body", "paid"))
	f.svc.Runner = orchestrator.New(leakyCompleter{}, orchestrator.Config{
		PrimaryModel: "p", FallbackModel: "fb", InitialBackoff: -1, MaxJitter: -1,
	})
	ctx := context.Background()

	_, err := f.svc.Generate(ctx, paidRequest("cs_test_body"), "ip")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("want ErrGeneration, got %v", err)
	}
	rec, _ := repo.GetPaidForecastBySession(ctx, f.svc.DB, "cs_test_body")
	if rec == nil || rec.GenerationError == nil {
		t.Fatalf("failure not recorded: %+v", rec)
	}
	if stored := *rec.GenerationError; strings.Contains(stored, "Ada") || !strings.Contains(stored, "http 400") {
		t.Fatalf("stored error should keep only status and class, got %q", stored)
	}
	if strings.Contains(err.Error(), "Ada") {
		t.Fatalf("returned error leaks provider body: %v", err)
	}
}

func TestPaidGenerate_ConsumedSessionWithoutRecordIsReplay(t *testing.T) {
	f := newPaidFixture(t, okOutcome("m", 1, false), paidSession("cs_test_replay", "paid"))
	ctx := context.Background()
	if _, err := f.svc.Verifier.Verify(ctx, "cs_test_replay"); err != nil {
		t.Fatalf("seed consumption: %v", err)
	}

	_, err := f.svc.Generate(ctx, paidRequest("cs_test_replay"), "ip")
	var pe *payment.Error
	if !errors.As(err, &pe) || pe.Reason != payment.ReasonReplay {
		t.Fatalf("want replay rejection, got %v", err)
	}
	if n := f.runner.calls.Load(); n != 0 {
		t.Fatalf("model must not be called, got %d", n)
	}
}

func TestPaidGenerate_CompletesBirthDataFromFreeRecord(t *testing.T) {
	s := paidSession("cs_test_complete", "paid")
	f := newPaidFixture(t, okOutcome("m", 1, false), s)
	ctx := context.Background()

	moon := "Rohini"
	utc := "1990-05-20T09:05:00Z"
	ff, err := repo.CreateFreeForecast(ctx, f.svc.DB, &domain.FreeForecast{
		BirthDate: "1990-05-20", BirthTime: "14:35", BirthPlace: "Mumbai",
		BirthTimeUTC: &utc, Latitude: f64(19.07), Longitude: f64(72.88),
		ChartColumns: domain.ChartColumns{MoonSign: &moon},
		ForecastText: "free text", PivotalTheme: "career",
	})
	if err != nil {
		t.Fatalf("seed free forecast: %v", err)
	}
	s.Metadata["freeForecastId"] = ff.ID

	if _, err := f.svc.Generate(ctx, domain.PaidGenerationRequest{SessionID: s.ID}, "ip"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if f.chart.calls != 0 {
		t.Fatalf("cached chart should be reused, chart calls=%d", f.chart.calls)
	}
	if !strings.Contains(f.runner.user, "Rohini") || !strings.Contains(f.runner.user, "career") {
		t.Fatalf("prompt should carry cached chart and theme")
	}

	rec, _ := repo.GetPaidForecastBySession(ctx, f.svc.DB, s.ID)
	if rec.FreeForecast != "free text" || rec.BirthTimeUTC != utc {
		t.Fatalf("birth data not completed: %+v", rec)
	}
	linked, _ := repo.GetFreeForecast(ctx, f.svc.DB, ff.ID)
	if linked.CustomerEmail == nil || *linked.CustomerEmail != "buyer@example.com" {
		t.Fatalf("email not linked to free forecast: %+v", linked.CustomerEmail)
	}
}

func TestPaidGenerate_BirthDataErrors(t *testing.T) {
	missing := paidSession("cs_test_missing", "paid")
	unknown := paidSession("cs_test_unknown", "paid")
	f := newPaidFixture(t, okOutcome("m", 1, false), missing, unknown)
	ctx := context.Background()

	if _, err := f.svc.Generate(ctx, domain.PaidGenerationRequest{SessionID: missing.ID}, "ip"); !errors.Is(err, ErrBirthDataMissing) {
		t.Fatalf("want ErrBirthDataMissing, got %v", err)
	}
	req := domain.PaidGenerationRequest{SessionID: unknown.ID, FreeForecastID: "7b0c6a36-6d5c-4d6e-9f0e-1a2b3c4d5e6f"}
	if _, err := f.svc.Generate(ctx, req, "ip"); !errors.Is(err, ErrBirthDataNotFound) {
		t.Fatalf("want ErrBirthDataNotFound, got %v", err)
	}
	if n := f.runner.calls.Load(); n != 0 {
		t.Fatalf("model must not be called, got %d", n)
	}
}

func TestSplitInstant(t *testing.T) {
	cases := []struct{ in, date, hhmm string }{
		{"1990-05-20T09:05:00Z", "1990-05-20", "09:05"},
		{"1990-05-20", "1990-05-20", "00:00"},
		{"1990-05-20T9", "1990-05-20", "00:00"},
	}
	for _, tc := range cases {
		d, h := splitInstant(tc.in)
		if d != tc.date || h != tc.hhmm {
			t.Fatalf("splitInstant(%q) = (%q, %q)", tc.in, d, h)
		}
	}
}

func jsonEqual(a, b []byte) bool {
	var x, y any
	if json.Unmarshal(a, &x) != nil || json.Unmarshal(b, &y) != nil {
		return false
	}
	ax, _ := json.Marshal(x)
	by, _ := json.Marshal(y)
	return string(ax) == string(by)
}

func TestPaidGenerate_UnconfiguredVerifierIsUpstreamError(t *testing.T) {
	f := newPaidFixture(t, okOutcome("m", 1, false), paidSession("cs_test_noverifier", "paid"))
	f.svc.Verifier = nil

	_, err := f.svc.Generate(context.Background(), paidRequest("cs_test_noverifier"), "ip")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("want ErrUpstream, got %v", err)
	}
	if n := f.runner.calls.Load(); n != 0 {
		t.Fatalf("model must not be called, got %d", n)
	}
}
