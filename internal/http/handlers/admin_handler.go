package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-forecast-backend/internal/domain"
	"github.com/tbourn/go-forecast-backend/internal/http/middleware"
	"github.com/tbourn/go-forecast-backend/internal/services"
	"github.com/tbourn/go-forecast-backend/internal/utils"
)

// PaidForecastSummary is the support view of a paid record. It carries no
// artifact and no guest token.
type PaidForecastSummary struct {
	ID               string    `json:"id" format:"uuid"`
	StripeSessionID  string    `json:"stripe_session_id"`
	CustomerEmail    string    `json:"customer_email"`
	GenerationStatus string    `json:"generation_status" example:"failed"`
	GenerationError  string    `json:"generation_error,omitempty"`
	RetryCount       int       `json:"retry_count"`
	ModelUsed        string    `json:"model_used"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ListPaidForecastsResponse is a page of paid records.
type ListPaidForecastsResponse struct {
	Forecasts  []PaidForecastSummary `json:"forecasts"`
	Pagination Pagination            `json:"pagination"`
}

// ListPaidForecasts godoc
// @ID          listPaidForecasts
// @Summary     List paid forecasts by generation status
// @Description Support tooling: pages through paid records (default status "failed") so that
// @Description failed generations can be remediated.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Token  header  string  true   "Support token"
// @Param       status         query   string  false  "Generation status"  Enums(pending, complete, failed) default(failed)
// @Param       page           query   int     false  "Page (1-based)"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Page size"          minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListPaidForecastsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid status"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or wrong token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/paid-forecasts [get]
func (h *Handlers) ListPaidForecasts(c *gin.Context) {
	page, pageSize := clampPagination(c)
	status := c.DefaultQuery("status", domain.StatusFailed)

	items, total, err := h.readSvc.ListPaidByStatus(requestContext(c), status, page, pageSize)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to list forecasts")
		return
	}

	out := make([]PaidForecastSummary, 0, len(items))
	for _, it := range items {
		s := PaidForecastSummary{
			ID:               it.ID,
			StripeSessionID:  it.StripeSessionID,
			CustomerEmail:    it.CustomerEmail,
			GenerationStatus: it.GenerationStatus,
			RetryCount:       it.RetryCount,
			ModelUsed:        it.ModelUsed,
			CreatedAt:        it.CreatedAt,
			UpdatedAt:        it.UpdatedAt,
		}
		if it.GenerationError != nil {
			s.GenerationError = *it.GenerationError
		}
		out = append(out, s)
	}
	ok(c, http.StatusOK, ListPaidForecastsResponse{
		Forecasts:  out,
		Pagination: newPagination(page, pageSize, total),
	})
}

// AbuseEventsResponse lists recent abuse events, newest first.
type AbuseEventsResponse struct {
	Events []domain.AbuseEvent `json:"events"`
}

// ListAbuseEvents godoc
// @ID          listAbuseEvents
// @Summary     List recent abuse events
// @Description Newest threshold crossings recorded by the abuse monitors.
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Token  header  string  true   "Support token"
// @Param       limit          query   int     false  "Max events"  minimum(1) maximum(100) default(50)
// @Success     200  {object}  handlers.AbuseEventsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or wrong token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/abuse-events [get]
func (h *Handlers) ListAbuseEvents(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 0)
	events, err := h.readSvc.RecentAbuseEvents(requestContext(c), limit)
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Msg("list abuse events")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to list abuse events")
		return
	}
	ok(c, http.StatusOK, AbuseEventsResponse{Events: events})
}
