package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func Test_redact(t *testing.T) {
	cases := map[string]string{
		"":                        "",
		"session_id=cs_live_9ZyX": "session_id=[REDACTED:session]",
		"guest_token=123e4567-e89b-42d3-a456-426614174000": "guest_token=[REDACTED:id]",
		"buyer@example.com paid":                           "[REDACTED:email] paid",
		"call 555-123-4567":                                "call [REDACTED:phone]",
		"type=paid&page=2":                                 "type=paid&page=2",
	}
	for in, want := range cases {
		if got := redact(in); got != want {
			t.Fatalf("redact(%q)=%q want %q", in, got, want)
		}
	}
}

func TestRedactingLogger_PaidRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Header("X-Request-ID", "rid-paid")
		c.Next()
	})
	r.Use(RedactingLogger(RedactOptions{MaskHeaders: []string{" X-Api-Key ", ""}}))
	r.POST("/forecasts/paid", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"success": true}) })

	req := httptest.NewRequest(http.MethodPost, "/forecasts/paid?ref=buyer@example.com", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer sk_live_secret")
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	req.Header.Set("X-Admin-Token", "admin-secret")
	req.Header.Set("X-Api-Key", "shhh")
	req.Header.Set("X-Session", "cs_test_a1B2c3")
	req.Header.Set("X-Request-ID", "rid-client")
	req.Header.Set("User-Agent", "checkout buyer@example.com")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var entry struct {
		Level     string            `json:"level"`
		RequestID string            `json:"request_id"`
		Method    string            `json:"method"`
		Path      string            `json:"path"`
		Query     string            `json:"query"`
		UserAgent string            `json:"user_agent"`
		Status    int               `json:"status"`
		Headers   map[string]string `json:"headers"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log line: %v (%s)", err, buf.String())
	}
	if entry.Level != "info" || entry.RequestID != "rid-paid" || entry.Path != "/forecasts/paid" || entry.Status != 200 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Query != "ref=[REDACTED:email]" || entry.UserAgent != "checkout [REDACTED:email]" {
		t.Fatalf("query=%q ua=%q", entry.Query, entry.UserAgent)
	}
	for _, h := range []string{"Authorization", "Stripe-Signature", "X-Admin-Token", "X-Api-Key"} {
		if entry.Headers[h] != "[REDACTED]" {
			t.Fatalf("%s not masked: %q", h, entry.Headers[h])
		}
	}
	if entry.Headers["X-Session"] != "[REDACTED:session]" {
		t.Fatalf("session header: %q", entry.Headers["X-Session"])
	}
	for _, secret := range []string{"sk_live_secret", "admin-secret", "cs_test_a1B2c3", "buyer@example.com"} {
		if strings.Contains(buf.String(), secret) {
			t.Fatalf("%q leaked: %s", secret, buf.String())
		}
	}
}

func TestRedactingLogger_Levels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		status  int
		withErr bool
		level   string
	}{
		{http.StatusOK, false, "info"},
		{http.StatusTooManyRequests, false, "warn"},
		{http.StatusServiceUnavailable, false, "error"},
		{http.StatusOK, true, "error"},
	}
	for _, tc := range cases {
		buf := captureLogger(t)
		r := gin.New()
		r.Use(RedactingLogger(RedactOptions{}))
		r.GET("/forecasts/:id", func(c *gin.Context) {
			if tc.withErr {
				_ = c.Error(http.ErrAbortHandler)
			}
			c.Status(tc.status)
		})
		req := httptest.NewRequest(http.MethodGet, "/forecasts/x", nil)
		req.Header.Set("X-Request-ID", "rid-fallback")
		r.ServeHTTP(httptest.NewRecorder(), req)

		logs := buf.String()
		if !strings.Contains(logs, `"level":"`+tc.level+`"`) || !strings.Contains(logs, `"request_id":"rid-fallback"`) {
			t.Fatalf("status %d err=%v: want level %s, got %s", tc.status, tc.withErr, tc.level, logs)
		}
	}
}
