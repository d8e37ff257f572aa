package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-forecast-backend/internal/domain"
	"github.com/tbourn/go-forecast-backend/internal/http/middleware"
	"github.com/tbourn/go-forecast-backend/internal/services"
	"github.com/tbourn/go-forecast-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// FreeGenerator runs the free preview pipeline.
type FreeGenerator interface {
	Generate(ctx context.Context, in services.FreeRequest) (*services.FreeResult, error)
}

// PaidGenerator runs the paid strategic pipeline for a validated request.
type PaidGenerator interface {
	Generate(ctx context.Context, req domain.PaidGenerationRequest, ip string) (*services.PaidResult, error)
}

// ForecastReader serves stored forecasts and the support listing.
type ForecastReader interface {
	GetFree(ctx context.Context, id, guestToken string) (*domain.FreeForecast, error)
	GetPaid(ctx context.Context, id, guestToken string) (*domain.PaidForecast, error)
	ListPaidByStatus(ctx context.Context, status string, page, pageSize int) ([]domain.PaidForecast, int64, error)
	RecentAbuseEvents(ctx context.Context, limit int) ([]domain.AbuseEvent, error)
}

//
// Handler wiring
//

// Handlers groups the forecast endpoints. It depends on service interfaces
// only.
type Handlers struct {
	freeSvc FreeGenerator
	paidSvc PaidGenerator
	readSvc ForecastReader
}

// New constructs Handlers bound to the given services.
func New(freeSvc FreeGenerator, paidSvc PaidGenerator, readSvc ForecastReader) *Handlers {
	return &Handlers{freeSvc: freeSvc, paidSvc: paidSvc, readSvc: readSvc}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses page and page_size with defaults 1 and 20 and caps
// page_size at 100.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	return utils.ClampPage(
		utils.AtoiDefault(c.Query("page"), defaultPage),
		utils.AtoiDefault(c.Query("page_size"), defaultPageSize),
		defaultPageSize, maxPageSize,
	)
}

// requestContext returns the request context carrying the request-scoped
// logger, so services can use zerolog.Ctx.
func requestContext(c *gin.Context) context.Context {
	return middleware.LoggerFrom(c).WithContext(c.Request.Context())
}
