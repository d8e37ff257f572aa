package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// MsgRequestTooLarge is the client-facing message of a body limit rejection.
const MsgRequestTooLarge = "Request too large"

const ctxKeyRawBody = "body.raw"

// BodyLimit reads the request body once, rejecting it with 413 when it
// exceeds maxBytes. The bytes are stashed for RawBody and the request body is
// replaced with a fresh reader so later consumers still see it.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil {
			c.Set(ctxKeyRawBody, []byte{})
			c.Next()
			return
		}
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBytes+1))
		_ = c.Request.Body.Close()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_request",
				"message":    "Invalid request body",
			})
			return
		}
		if int64(len(raw)) > maxBytes {
			LoggerFrom(c).Info().Int64("max_bytes", maxBytes).Msg("request too large")
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "too_large",
				"message":    MsgRequestTooLarge,
			})
			return
		}
		c.Set(ctxKeyRawBody, raw)
		c.Request.Body = io.NopCloser(bytes.NewReader(raw))
		c.Next()
	}
}

// RawBody returns the bytes read by BodyLimit. When BodyLimit did not run it
// reads the request body directly.
func RawBody(c *gin.Context) ([]byte, error) {
	if v, ok := c.Get(ctxKeyRawBody); ok {
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	}
	if c.Request == nil || c.Request.Body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	c.Set(ctxKeyRawBody, raw)
	return raw, nil
}
