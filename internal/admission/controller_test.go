package admission

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/go-forecast-backend/internal/observability"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestController(limits Limits) (*Controller, *clock) {
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewController(NewMemoryStore(0), limits)
	c.now = clk.now
	return c, clk
}

func TestAdmit_BurstDeniesSecondRequestWithinWindow(t *testing.T) {
	c, clk := newTestController(Limits{})
	ctx := context.Background()
	req := Request{IP: "203.0.113.7"}

	if d := c.Admit(ctx, req); d.Outcome != Allow {
		t.Fatalf("first request: got %+v", d)
	}

	clk.advance(20 * time.Second)
	d := c.Admit(ctx, req)
	if d.Outcome != Deny {
		t.Fatalf("second request inside window should be denied, got %+v", d)
	}
	if d.Reason != "Please wait 40 seconds before generating another forecast." {
		t.Fatalf("unexpected reason %q", d.Reason)
	}
	if d.RetryAfter != 40*time.Second {
		t.Fatalf("unexpected RetryAfter %v", d.RetryAfter)
	}

	// Exactly at reset the window is still active.
	clk.advance(40 * time.Second)
	if d := c.Admit(ctx, req); d.Outcome != Deny {
		t.Fatalf("request at reset instant should still be denied, got %+v", d)
	}

	clk.advance(time.Millisecond)
	if d := c.Admit(ctx, req); d.Outcome != Allow {
		t.Fatalf("request after window should be allowed, got %+v", d)
	}
}

func TestAdmit_DailyIPTenthAllowedEleventhDenied(t *testing.T) {
	c, clk := newTestController(Limits{CaptchaAfter: 100})
	ctx := context.Background()
	req := Request{IP: "198.51.100.1"}

	for i := 1; i <= 10; i++ {
		d := c.Admit(ctx, req)
		if d.Outcome == Deny {
			t.Fatalf("request %d denied: %+v", i, d)
		}
		if d.IPDailyCount != i {
			t.Fatalf("request %d: daily count %d", i, d.IPDailyCount)
		}
		clk.advance(61 * time.Second)
	}

	d := c.Admit(ctx, req)
	if d.Outcome != Deny || d.Reason != MsgDailyIP {
		t.Fatalf("11th request: got %+v", d)
	}
}

func TestAdmit_DailyDeviceAcrossIPs(t *testing.T) {
	c, _ := newTestController(Limits{CaptchaAfter: 100})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ip := "10.0.0." + string(rune('a'+i))
		if d := c.Admit(ctx, Request{IP: ip, DeviceID: "dev-1"}); d.Outcome == Deny {
			t.Fatalf("request %d denied: %+v", i+1, d)
		}
	}
	d := c.Admit(ctx, Request{IP: "10.0.1.1", DeviceID: "dev-1"})
	if d.Outcome != Deny || d.Reason != MsgDailyDevice {
		t.Fatalf("11th device request: got %+v", d)
	}

	// No device id: device tier is skipped.
	if d := c.Admit(ctx, Request{IP: "10.0.1.2"}); d.Outcome == Deny {
		t.Fatalf("request without device id denied: %+v", d)
	}
}

func TestAdmit_EscalatesToCaptchaAboveThreshold(t *testing.T) {
	c, clk := newTestController(Limits{})
	ctx := context.Background()
	req := Request{IP: "192.0.2.5"}

	for i := 1; i <= 5; i++ {
		if d := c.Admit(ctx, req); d.Outcome != Allow {
			t.Fatalf("request %d: expected plain allow, got %+v", i, d)
		}
		clk.advance(61 * time.Second)
	}
	d := c.Admit(ctx, req)
	if d.Outcome != AllowWithCaptcha || !d.Escalated || !d.CaptchaRequired() {
		t.Fatalf("6th request should require captcha, got %+v", d)
	}
}

func TestAdmit_SuspiciousUserAgentAndSpike(t *testing.T) {
	c, _ := newTestController(Limits{SpikeThreshold: 2})
	ctx := context.Background()

	d := c.Admit(ctx, Request{IP: "1.1.1.1", UserAgent: "curl/8.4.0"})
	if d.Outcome != AllowWithCaptcha || !d.SuspiciousUA {
		t.Fatalf("curl UA should require captcha, got %+v", d)
	}
	_ = c.Admit(ctx, Request{IP: "1.1.1.2"})
	d = c.Admit(ctx, Request{IP: "1.1.1.3"})
	if !d.TrafficSpike || d.Outcome != AllowWithCaptcha {
		t.Fatalf("third request over threshold 2 should flag spike, got %+v", d)
	}
}

func TestAdmit_DeniedRequestsCountTowardSpike(t *testing.T) {
	c, _ := newTestController(Limits{SpikeThreshold: 2})
	ctx := context.Background()

	if d := c.Admit(ctx, Request{IP: "198.51.100.1"}); d.Outcome != Allow {
		t.Fatalf("first request should be allowed, got %+v", d)
	}
	for i := 0; i < 2; i++ {
		if d := c.Admit(ctx, Request{IP: "198.51.100.1"}); d.Outcome != Deny {
			t.Fatalf("burst retry %d should be denied, got %+v", i, d)
		}
	}
	d := c.Admit(ctx, Request{IP: "198.51.100.2"})
	if !d.TrafficSpike || d.Outcome != AllowWithCaptcha {
		t.Fatalf("denied attempts should push traffic over the spike threshold, got %+v", d)
	}
}

type failingStore struct{ calls int }

func (f *failingStore) Hit(context.Context, string, int, time.Duration, time.Time) (Window, bool, error) {
	f.calls++
	return Window{}, false, errors.New("store down")
}

func TestAdmit_StoreErrorsAllow(t *testing.T) {
	st := &failingStore{}
	c := NewController(st, Limits{})
	d := c.Admit(context.Background(), Request{IP: "1.2.3.4", DeviceID: "d"})
	if d.Outcome != Allow {
		t.Fatalf("expected allow on store failure, got %+v", d)
	}
	if st.calls != 3 {
		t.Fatalf("expected all three tiers consulted, got %d", st.calls)
	}
}

func TestAdmit_CountsDecisions(t *testing.T) {
	c, _ := newTestController(Limits{})
	before := testutil.ToFloat64(observability.AdmissionDecisions.WithLabelValues("deny"))
	_ = c.Admit(context.Background(), Request{IP: "9.9.9.9"})
	_ = c.Admit(context.Background(), Request{IP: "9.9.9.9"})
	after := testutil.ToFloat64(observability.AdmissionDecisions.WithLabelValues("deny"))
	if after-before != 1 {
		t.Fatalf("expected one deny recorded, got %v", after-before)
	}
}

func TestIsSuspiciousUserAgent(t *testing.T) {
	cases := map[string]bool{
		"":                            false,
		"Mozilla/5.0 (Macintosh)":     false,
		"python-requests/2.31":        true,
		"PostmanRuntime/7.36":         true,
		"Googlebot/2.1":               true,
		"Wget/1.21":                   true,
		"Mozilla/5.0 (compatible; X)": false,
	}
	for ua, want := range cases {
		if got := IsSuspiciousUserAgent(ua); got != want {
			t.Errorf("IsSuspiciousUserAgent(%q) = %v, want %v", ua, got, want)
		}
	}
}

func TestSpikeDetector_SlidesWindow(t *testing.T) {
	d := NewSpikeDetector(time.Minute, 2)
	base := time.Unix(0, 0)
	d.Observe(base)
	d.Observe(base.Add(10 * time.Second))
	if !d.Observe(base.Add(20 * time.Second)) {
		t.Fatalf("expected spike with 3 in window")
	}
	if d.Observe(base.Add(75 * time.Second)) {
		t.Fatalf("old instants should have slid out")
	}
}

func TestDecision_ReasonMentionsWait(t *testing.T) {
	c, _ := newTestController(Limits{BurstWindow: 90 * time.Second})
	_ = c.Admit(context.Background(), Request{IP: "x"})
	d := c.Admit(context.Background(), Request{IP: "x"})
	if !strings.Contains(d.Reason, "90 seconds") {
		t.Fatalf("unexpected reason %q", d.Reason)
	}
}
