// Forecast HTTP handlers.
//
// This file exposes the public forecast endpoints:
//   - POST /forecasts/free   (free preview, admission controlled)
//   - POST /forecasts/paid   (strategic forecast for a verified payment)
//   - GET  /forecasts/{id}   (stored forecast, guarded by its guest token)
//
// Handlers are transport-thin: they hand the raw body (already size-checked
// by middleware.BodyLimit) to the services and translate the service error
// taxonomy into status codes and client-safe messages.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-forecast-backend/internal/domain"
	"github.com/tbourn/go-forecast-backend/internal/http/middleware"
	"github.com/tbourn/go-forecast-backend/internal/services"
	"github.com/tbourn/go-forecast-backend/internal/validation"
)

//
// DTOs
//

// FreeForecastRequest documents the free generation payload. The handler
// passes the raw body through; validation happens in the service after the
// admission counters are charged.
type FreeForecastRequest struct {
	BirthDate    string   `json:"birthDate" example:"1990-05-15"`
	BirthTime    string   `json:"birthTime" example:"14:30"`
	BirthPlace   string   `json:"birthPlace" example:"Mumbai, India"`
	BirthTimeUTC string   `json:"birthTimeUtc,omitempty" example:"1990-05-15T09:00:00Z"`
	Latitude     *float64 `json:"latitude,omitempty" example:"19.076"`
	Longitude    *float64 `json:"longitude,omitempty" example:"72.8777"`
	DeviceID     string   `json:"deviceId,omitempty" example:"d-3f2a"`
	CaptchaToken string   `json:"captchaToken,omitempty"`
}

// FreeForecastResponse is a generated free preview.
type FreeForecastResponse struct {
	Forecast         string                  `json:"forecast"`
	ForecastSections domain.ForecastSections `json:"forecastSections"`
	PivotalTheme     string                  `json:"pivotalTheme" example:"career"`
	FreeForecastID   string                  `json:"freeForecastId,omitempty"`
	GuestToken       string                  `json:"guestToken,omitempty"`
}

// CaptchaRequiredResponse asks the client to complete a challenge and retry.
type CaptchaRequiredResponse struct {
	CaptchaRequired bool   `json:"captcha_required" example:"true"`
	Message         string `json:"message" example:"Please complete the verification to continue."`
}

// PaidForecastRequest documents the paid generation payload.
type PaidForecastRequest struct {
	SessionID        string   `json:"sessionId" example:"cs_test_a1b2c3"`
	BirthDateTimeUTC string   `json:"birthDateTimeUtc,omitempty" example:"1990-05-15T09:00:00Z"`
	Lat              *float64 `json:"lat,omitempty" example:"19.076"`
	Lon              *float64 `json:"lon,omitempty" example:"72.8777"`
	Name             string   `json:"name,omitempty" example:"Asha"`
	PivotalTheme     string   `json:"pivotalTheme,omitempty" example:"career"`
	FreeForecast     string   `json:"freeForecast,omitempty"`
	FreeForecastID   string   `json:"freeForecastId,omitempty" format:"uuid"`
	DeviceID         string   `json:"deviceId,omitempty"`
}

// PaidForecastResponse carries the strategic artifact.
type PaidForecastResponse struct {
	Success       bool               `json:"success" example:"true"`
	Forecast      json.RawMessage    `json:"forecast" swaggertype:"object"`
	ForecastID    string             `json:"forecastId" format:"uuid"`
	CustomerEmail string             `json:"customerEmail,omitempty"`
	GuestToken    string             `json:"guestToken,omitempty" format:"uuid"`
	ModelUsed     string             `json:"modelUsed" example:"gpt-5-2025-08-07"`
	TotalAttempts int                `json:"totalAttempts" example:"1"`
	TokenUsage    *domain.TokenUsage `json:"tokenUsage,omitempty"`
	Cached        bool               `json:"cached,omitempty"`
}

// StoredFreeForecast is the public view of a stored free forecast.
type StoredFreeForecast struct {
	ID           string    `json:"id" format:"uuid"`
	Forecast     string    `json:"forecast"`
	PivotalTheme string    `json:"pivotalTheme"`
	ZodiacSign   string    `json:"zodiacSign"`
	CreatedAt    time.Time `json:"createdAt"`
}

// StoredPaidForecast is the public view of a stored paid forecast.
type StoredPaidForecast struct {
	ID               string          `json:"id" format:"uuid"`
	Forecast         json.RawMessage `json:"forecast" swaggertype:"object"`
	GenerationStatus string          `json:"generationStatus" example:"complete"`
	ModelUsed        string          `json:"modelUsed"`
	ZodiacSign       string          `json:"zodiacSign"`
	CreatedAt        time.Time       `json:"createdAt"`
}

//
// Handlers
//

// PostFreeForecast godoc
// @ID          postFreeForecast
// @Summary     Generate a free forecast preview
// @Description Charges the per-IP and per-device admission counters, validates the birth data,
// @Description and returns a five-section preview. Suspicious traffic receives a captcha challenge
// @Description (200 with captcha_required) instead of a forecast.
// @Tags        Forecasts
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.FreeForecastRequest  true  "Birth data"
//
// @Success     200  {object}  handlers.FreeForecastResponse     "Generated preview"
// @Success     200  {object}  handlers.CaptchaRequiredResponse  "Captcha challenge"
// @Failure     400  {object}  handlers.ErrorResponse            "Invalid input or captcha failure"
// @Failure     413  {object}  handlers.ErrorResponse            "Request too large"
// @Failure     429  {object}  handlers.ErrorResponse            "Admission denied"
// @Header      429  {string}  Retry-After                       "Seconds until the exhausted window resets"
// @Failure     500  {object}  handlers.ErrorResponse            "Generation failed"
// @Failure     503  {object}  handlers.ErrorResponse            "Model provider not configured"
// @Router      /forecasts/free [post]
func (h *Handlers) PostFreeForecast(c *gin.Context) {
	raw, err := middleware.RawBody(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, validation.MsgInvalidJSON)
		return
	}

	res, err := h.freeSvc.Generate(requestContext(c), services.FreeRequest{
		Body:      raw,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		failGeneration(c, err, MsgFreeFailed)
		return
	}
	if res.CaptchaRequired {
		ok(c, http.StatusOK, CaptchaRequiredResponse{CaptchaRequired: true, Message: res.Message})
		return
	}
	ok(c, http.StatusOK, FreeForecastResponse{
		Forecast:         res.Forecast,
		ForecastSections: res.Sections,
		PivotalTheme:     res.PivotalTheme,
		FreeForecastID:   res.FreeForecastID,
		GuestToken:       res.GuestToken,
	})
}

// PostPaidForecast godoc
// @ID          postPaidForecast
// @Summary     Generate the paid strategic forecast
// @Description Verifies the payment session and generates the strategic forecast with retries and
// @Description model fallback. A session that already has a complete forecast returns the stored
// @Description artifact (cached=true) without contacting the model or the payment provider.
// @Tags        Forecasts
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.PaidForecastRequest  true  "Payment session and birth data"
//
// @Success     200  {object}  handlers.PaidForecastResponse  "Strategic forecast"
// @Failure     400  {object}  handlers.ErrorResponse         "Invalid input or missing birth data"
// @Failure     403  {object}  handlers.ErrorResponse         "Payment verification failed"
// @Failure     413  {object}  handlers.ErrorResponse         "Request too large"
// @Failure     429  {object}  handlers.ErrorResponse         "Too many requests"
// @Failure     500  {object}  handlers.ErrorResponse         "Generation failed"
// @Failure     503  {object}  handlers.ErrorResponse         "Payment or model provider not configured"
// @Router      /forecasts/paid [post]
func (h *Handlers) PostPaidForecast(c *gin.Context) {
	raw, err := middleware.RawBody(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, validation.MsgInvalidJSON)
		return
	}
	req, err := validation.ParsePaid(raw)
	if err != nil {
		failGeneration(c, err, MsgPaidFailed)
		return
	}

	if middleware.IsReplay(c) {
		middleware.LoggerFrom(c).Info().Msg("paid replay of completed session")
	}

	res, err := h.paidSvc.Generate(requestContext(c), req, c.ClientIP())
	if err != nil {
		failGeneration(c, err, MsgPaidFailed)
		return
	}
	ok(c, http.StatusOK, PaidForecastResponse{
		Success:       true,
		Forecast:      res.Forecast,
		ForecastID:    res.ForecastID,
		CustomerEmail: res.CustomerEmail,
		GuestToken:    res.GuestToken,
		ModelUsed:     res.ModelUsed,
		TotalAttempts: res.TotalAttempts,
		TokenUsage:    res.Usage,
		Cached:        res.Cached,
	})
}

// GetForecast godoc
// @ID          getForecast
// @Summary     Get a stored forecast
// @Description Returns a stored free (default) or paid forecast. The guest token issued at generation
// @Description time is required; unknown ids and wrong tokens both return 404.
// @Tags        Forecasts
// @Produce     json
//
// @Param       id           path   string  true   "Forecast ID (UUID)"  format(uuid)
// @Param       type         query  string  false  "Forecast tier"        Enums(free, paid) default(free)
// @Param       guest_token  query  string  true   "Guest token (UUID)"   format(uuid)
//
// @Success     200  {object}  handlers.StoredFreeForecast  "Free forecast (type=free)"
// @Success     200  {object}  handlers.StoredPaidForecast  "Paid forecast (type=paid)"
// @Failure     400  {object}  handlers.ErrorResponse       "Invalid id, token or type"
// @Failure     404  {object}  handlers.ErrorResponse       "Forecast not found"
// @Failure     429  {object}  handlers.ErrorResponse       "Too many requests"
// @Failure     500  {object}  handlers.ErrorResponse       "Lookup failed"
// @Router      /forecasts/{id} [get]
func (h *Handlers) GetForecast(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request: Invalid forecast ID")
		return
	}
	token := c.Query("guest_token")
	if token != "" {
		if _, err := uuid.Parse(token); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request: Invalid guest token")
			return
		}
	}

	ctx := requestContext(c)
	switch c.DefaultQuery("type", "free") {
	case "free":
		rec, err := h.readSvc.GetFree(ctx, id, token)
		if err != nil {
			failLookup(c, err)
			return
		}
		ok(c, http.StatusOK, StoredFreeForecast{
			ID:           rec.ID,
			Forecast:     rec.ForecastText,
			PivotalTheme: rec.PivotalTheme,
			ZodiacSign:   rec.ZodiacSign,
			CreatedAt:    rec.CreatedAt,
		})
	case "paid":
		rec, err := h.readSvc.GetPaid(ctx, id, token)
		if err != nil {
			failLookup(c, err)
			return
		}
		ok(c, http.StatusOK, StoredPaidForecast{
			ID:               rec.ID,
			Forecast:         json.RawMessage(rec.StrategicForecast),
			GenerationStatus: rec.GenerationStatus,
			ModelUsed:        rec.ModelUsed,
			ZodiacSign:       rec.ZodiacSign,
			CreatedAt:        rec.CreatedAt,
		})
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request: type must be free or paid")
	}
}

//
// Error translation
//

// failGeneration maps the service error taxonomy of both generation
// endpoints. generic is the tier's message for generation failures.
func failGeneration(c *gin.Context, err error, generic string) {
	var rl *services.RateLimitError
	var verr *validation.Error
	switch {
	case errors.As(err, &rl):
		failRateLimited(c, rl.RetryAfter, rl.Message)
	case errors.As(err, &verr):
		middleware.LoggerFrom(c).Info().Strs("detail", verr.Detail).Msg("validation failed")
		fail(c, http.StatusBadRequest, ErrCodeValidation, verr.Message)
	case errors.Is(err, services.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, services.ErrCaptchaFailed):
		fail(c, http.StatusBadRequest, ErrCodeCaptchaFailed, MsgCaptchaFailed)
	case errors.Is(err, services.ErrPaymentInvalid):
		fail(c, http.StatusForbidden, ErrCodePaymentInvalid, MsgPaymentInvalid)
	case errors.Is(err, services.ErrBirthDataMissing):
		fail(c, http.StatusBadRequest, ErrCodeBirthDataMissing, MsgBirthDataMissing)
	case errors.Is(err, services.ErrBirthDataNotFound):
		fail(c, http.StatusBadRequest, ErrCodeBirthDataMissing, MsgBirthDataNotFound)
	case errors.Is(err, services.ErrUpstream):
		middleware.LoggerFrom(c).Error().Err(err).Msg("generation dependency unavailable")
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, MsgUnavailable)
	case errors.Is(err, services.ErrGeneration):
		fail(c, http.StatusInternalServerError, ErrCodeGenerationFailed, generic)
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unexpected generation error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, generic)
	}
}

// failLookup hides whether a record exists behind a single 404.
func failLookup(c *gin.Context, err error) {
	if errors.Is(err, services.ErrNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, MsgNotFound)
		return
	}
	middleware.LoggerFrom(c).Error().Err(err).Msg("forecast lookup failed")
	fail(c, http.StatusInternalServerError, ErrCodeLookupFailed, MsgLookupFailed)
}
