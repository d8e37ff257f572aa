// Package admission decides whether a free-tier generation request may
// proceed. It combines per-IP burst and daily counters, a per-device daily
// counter, a global traffic spike detector and a user-agent heuristic into a
// single Decision. The controller never fails: counter store errors are
// logged and the affected tier is treated as allowing.
package admission

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-forecast-backend/internal/observability"
)

// Outcome is the coarse result of an admission check.
type Outcome string

const (
	Allow            Outcome = "allow"
	Deny             Outcome = "deny"
	AllowWithCaptcha Outcome = "captcha"
)

// Client-facing denial messages.
const (
	MsgDailyIP     = "Daily limit reached. Please try again tomorrow."
	MsgDailyDevice = "You've reached the maximum free previews for today. Please try again tomorrow."
)

// Limits configures the controller. Zero fields take the defaults noted.
type Limits struct {
	BurstLimit     int           // 1
	BurstWindow    time.Duration // 60s
	DailyIPLimit   int           // 10
	DailyDevLimit  int           // 10
	DailyWindow    time.Duration // 24h
	CaptchaAfter   int           // 5
	SpikeWindow    time.Duration // 5m
	SpikeThreshold int           // 100
}

func (l Limits) withDefaults() Limits {
	if l.BurstLimit <= 0 {
		l.BurstLimit = 1
	}
	if l.BurstWindow <= 0 {
		l.BurstWindow = 60 * time.Second
	}
	if l.DailyIPLimit <= 0 {
		l.DailyIPLimit = 10
	}
	if l.DailyDevLimit <= 0 {
		l.DailyDevLimit = 10
	}
	if l.DailyWindow <= 0 {
		l.DailyWindow = 24 * time.Hour
	}
	if l.CaptchaAfter <= 0 {
		l.CaptchaAfter = 5
	}
	if l.SpikeWindow <= 0 {
		l.SpikeWindow = 5 * time.Minute
	}
	if l.SpikeThreshold <= 0 {
		l.SpikeThreshold = 100
	}
	return l
}

// Request carries the request metadata the controller looks at.
type Request struct {
	IP        string
	DeviceID  string
	UserAgent string
}

// Decision is the result of Admit.
type Decision struct {
	Outcome      Outcome
	Reason       string        // client-facing message when denied
	RetryAfter   time.Duration // time until the exhausted window resets
	Escalated    bool          // IP daily count above CaptchaAfter
	SuspiciousUA bool
	TrafficSpike bool
	IPDailyCount int
}

// CaptchaRequired reports whether the caller must obtain a captcha token.
func (d Decision) CaptchaRequired() bool { return d.Outcome == AllowWithCaptcha }

// Controller implements the admission policy. It is safe for concurrent use.
type Controller struct {
	store  CounterStore
	spikes *SpikeDetector
	limits Limits
	now    func() time.Time
}

// NewController returns a controller backed by store.
func NewController(store CounterStore, limits Limits) *Controller {
	limits = limits.withDefaults()
	return &Controller{
		store:  store,
		spikes: NewSpikeDetector(limits.SpikeWindow, limits.SpikeThreshold),
		limits: limits,
		now:    time.Now,
	}
}

// Admit charges the counters for req and returns the decision. Counters are
// charged in order (burst, daily IP, daily device) and evaluation stops at
// the first exhausted tier.
func (c *Controller) Admit(ctx context.Context, req Request) Decision {
	now := c.now()
	lg := zerolog.Ctx(ctx)
	// Every attempt counts toward the spike, including denied ones.
	spike := c.spikes.Observe(now)

	burst, ok := c.hit(ctx, "burst:"+req.IP, c.limits.BurstLimit, c.limits.BurstWindow, now)
	if !ok {
		wait := burst.ResetAt.Sub(now)
		return c.deny(Decision{
			Reason:     fmt.Sprintf("Please wait %d seconds before generating another forecast.", ceilSeconds(wait)),
			RetryAfter: wait,
		}, lg, "burst")
	}

	daily, ok := c.hit(ctx, "daily:ip:"+req.IP, c.limits.DailyIPLimit, c.limits.DailyWindow, now)
	if !ok {
		return c.deny(Decision{Reason: MsgDailyIP, RetryAfter: daily.ResetAt.Sub(now), IPDailyCount: daily.Count}, lg, "daily_ip")
	}

	if req.DeviceID != "" {
		dev, ok := c.hit(ctx, "daily:device:"+req.DeviceID, c.limits.DailyDevLimit, c.limits.DailyWindow, now)
		if !ok {
			return c.deny(Decision{Reason: MsgDailyDevice, RetryAfter: dev.ResetAt.Sub(now), IPDailyCount: daily.Count}, lg, "daily_device")
		}
	}

	d := Decision{
		Outcome:      Allow,
		IPDailyCount: daily.Count,
		Escalated:    daily.Count > c.limits.CaptchaAfter,
		TrafficSpike: spike,
		SuspiciousUA: IsSuspiciousUserAgent(req.UserAgent),
	}
	if d.Escalated || d.TrafficSpike || d.SuspiciousUA {
		d.Outcome = AllowWithCaptcha
	}
	observability.AdmissionDecisions.WithLabelValues(string(d.Outcome)).Inc()
	return d
}

// hit charges one counter. Store failures allow the request.
func (c *Controller) hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, bool) {
	w, ok, err := c.store.Hit(ctx, key, limit, window, now)
	if err != nil {
		tier, _, _ := strings.Cut(key, ":")
		zerolog.Ctx(ctx).Warn().Err(err).Str("tier", tier).Msg("admission counter unavailable")
		return Window{ResetAt: now}, true
	}
	return w, ok
}

func (c *Controller) deny(d Decision, lg *zerolog.Logger, tier string) Decision {
	d.Outcome = Deny
	if d.RetryAfter < 0 {
		d.RetryAfter = 0
	}
	lg.Info().Str("tier", tier).Dur("retry_after", d.RetryAfter).Msg("admission denied")
	observability.AdmissionDecisions.WithLabelValues(string(Deny)).Inc()
	return d
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
