package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecured(opt SecurityOptions, prep func(*http.Request), pre gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/forecasts/:id", func(c *gin.Context) {
		c.Header("Retry-After", "30")
		c.JSON(http.StatusTooManyRequests, gin.H{"message": "slow down"})
	})
	req := httptest.NewRequest(http.MethodGet, "/forecasts/abc", nil)
	if prep != nil {
		prep(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders(t *testing.T) {
	cases := []struct {
		name string
		opt  SecurityOptions
		prep func(*http.Request)
		want map[string]string
	}{
		{
			name: "baseline only",
			want: map[string]string{
				"X-Content-Type-Options":    "nosniff",
				"X-Frame-Options":           "DENY",
				"Referrer-Policy":           "no-referrer",
				"Cache-Control":             "",
				"Permissions-Policy":        "",
				"Strict-Transport-Security": "",
			},
		},
		{
			name: "forecast routes are never cached",
			opt:  SecurityOptions{NoStore: true, EnablePolicy: true},
			want: map[string]string{
				"Cache-Control":                     "no-store",
				"Pragma":                            "no-cache",
				"Expires":                           "0",
				"X-Permitted-Cross-Domain-Policies": "none",
			},
		},
		{
			name: "hsts skipped on plain http",
			opt:  SecurityOptions{EnableHSTS: true},
			want: map[string]string{"Strict-Transport-Security": ""},
		},
		{
			name: "hsts on tls with default max age",
			opt:  SecurityOptions{EnableHSTS: true},
			prep: func(r *http.Request) { r.TLS = &tls.ConnectionState{} },
			want: map[string]string{"Strict-Transport-Security": "max-age=15552000; includeSubDomains; preload"},
		},
		{
			name: "hsts behind proxy",
			opt:  SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour},
			prep: func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") },
			want: map[string]string{"Strict-Transport-Security": "max-age=3600; includeSubDomains; preload"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serveSecured(tc.opt, tc.prep, nil)
			for k, v := range tc.want {
				if got := w.Header().Get(k); got != v {
					t.Fatalf("%s=%q want %q", k, got, v)
				}
			}
		})
	}
}

func TestSecurityHeaders_ExposesRetryAfterAndRequestID(t *testing.T) {
	w := serveSecured(SecurityOptions{}, nil, nil)
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-ID, Retry-After" {
		t.Fatalf("expose=%q", got)
	}
	if w.Header().Get("Retry-After") != "30" {
		t.Fatalf("handler header lost")
	}

	// Tokens already listed by the CORS layer are not repeated.
	w = serveSecured(SecurityOptions{}, nil, func(c *gin.Context) {
		c.Header("Access-Control-Expose-Headers", "x-request-id,Content-Length")
		c.Next()
	})
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != "x-request-id,Content-Length, Retry-After" {
		t.Fatalf("expose=%q", got)
	}
}

func Test_isHTTPS(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "/", nil)
	direct := httptest.NewRequest(http.MethodGet, "/", nil)
	direct.TLS = &tls.ConnectionState{}
	proxied := httptest.NewRequest(http.MethodGet, "/", nil)
	proxied.Header.Set("X-Forwarded-Proto", "https")

	if isHTTPS(plain) || !isHTTPS(direct) || !isHTTPS(proxied) {
		t.Fatalf("isHTTPS: plain=%v direct=%v proxied=%v", isHTTPS(plain), isHTTPS(direct), isHTTPS(proxied))
	}
}
