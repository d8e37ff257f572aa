// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements replay detection for the paid generation endpoint. A
// request whose payment session already has a complete forecast is flagged
// so the rate limiter lets it through: the handler then serves the stored
// artifact without touching the model or the payment provider.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-forecast-backend/internal/validation"
)

// Context keys used to stash replay state.
const (
	ctxKeySessionID  = "replay.session"
	ctxKeyReplay     = "replay.hit"  // bool: session already complete
	ctxKeyRateBypass = "rate.bypass" // bool: skip rate limiting
)

// CompletedSessionLookup reports whether sessionID already has a complete
// forecast. Errors are treated as "not complete".
type CompletedSessionLookup func(ctx context.Context, sessionID string) (bool, error)

// SessionID returns the payment session id SessionReplay extracted from the
// body, if any.
func SessionID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeySessionID)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether SessionReplay found a complete forecast for this
// request's session.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// SessionReplay peeks at sessionId in the (unvalidated) body and consults
// lookup. It never rejects: malformed bodies are left to the handler. Install
// it after BodyLimit and before the rate limiter.
func SessionReplay(lookup CompletedSessionLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := RawBody(c)
		if err != nil || lookup == nil {
			c.Next()
			return
		}
		sid := validation.LenientSessionID(raw)
		if sid == "" {
			c.Next()
			return
		}
		c.Set(ctxKeySessionID, sid)

		done, err := lookup(c.Request.Context(), sid)
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("replay lookup failed")
		}
		if done {
			c.Set(ctxKeyReplay, true)
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}
}
