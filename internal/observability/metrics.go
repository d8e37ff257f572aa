package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain collectors. These count business outcomes with small, fixed label
// sets; transport metrics are in http_metrics.go.
var (
	// ForecastGenerations counts finished generation requests by tier
	// (free|paid) and outcome (success|failed|cached).
	ForecastGenerations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecast_generations_total",
			Help: "Forecast generation requests by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	// LLMAttempts counts individual model calls by model and result
	// (ok|retryable|fatal|content).
	LLMAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_attempts_total",
			Help: "Model call attempts by model and result.",
		},
		[]string{"model", "result"},
	)

	// AdmissionDecisions counts free-tier admission outcomes
	// (allow|deny|captcha).
	AdmissionDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_decisions_total",
			Help: "Admission controller decisions by outcome.",
		},
		[]string{"outcome"},
	)

	// PaymentVerifications counts verification results: "ok" or the
	// rejection reason.
	PaymentVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verifications_total",
			Help: "Payment session verifications by result.",
		},
		[]string{"result"},
	)

	// ThemeCacheLookups counts theme resolutions (hit|miss|uncached|error).
	ThemeCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "theme_cache_lookups_total",
			Help: "Pivotal theme resolutions by cache result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		ForecastGenerations,
		LLMAttempts,
		AdmissionDecisions,
		PaymentVerifications,
		ThemeCacheLookups,
	)
}
