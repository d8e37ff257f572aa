package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-forecast-backend/internal/domain"
	"github.com/tbourn/go-forecast-backend/internal/observability"
)

// Free-tier generation errors.
var (
	ErrMissingToolOutput = errors.New("llm: missing tool output")
	ErrEmptyForecast     = errors.New("llm: incomplete forecast output")
)

const saveForecastTool = "save_forecast"

func forecastTool() Tool {
	str := map[string]any{"type": "string"}
	return Tool{
		Type: "function",
		Function: FunctionDef{
			Name:        saveForecastTool,
			Description: "Save the forecast sections for the reader",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"who_you_are_right_now":                      str,
					"whats_happening_in_your_life":               str,
					"pivotal_life_theme":                         str,
					"what_is_becoming_tighter_or_less_forgiving": str,
					"upgrade_hook":                               str,
				},
				"required": []string{
					"who_you_are_right_now",
					"whats_happening_in_your_life",
					"pivotal_life_theme",
					"what_is_becoming_tighter_or_less_forgiving",
					"upgrade_hook",
				},
			},
		},
	}
}

// ForecastGenerator produces the five-section free-tier forecast with one
// forced tool call.
type ForecastGenerator struct {
	c     Completer
	model string
}

// NewForecastGenerator returns a generator using model.
func NewForecastGenerator(c Completer, model string) *ForecastGenerator {
	return &ForecastGenerator{c: c, model: model}
}

// Model returns the configured model name.
func (g *ForecastGenerator) Model() string { return g.model }

// Generate calls the model once and parses the tool arguments. Usage is
// returned whenever the provider reported it, even on content failures.
func (g *ForecastGenerator) Generate(ctx context.Context, system, user string) (domain.ForecastSections, *domain.TokenUsage, error) {
	temp, presence, frequency := 0.65, 0.3, 0.0
	req := Request{
		Model:            g.model,
		Messages:         []Message{{Role: "system", Content: system}, {Role: "user", Content: user}},
		Temperature:      &temp,
		MaxTokens:        600,
		PresencePenalty:  &presence,
		FrequencyPenalty: &frequency,
		Tools:            []Tool{forecastTool()},
		ToolChoice:       ForceFunction(saveForecastTool),
	}
	zerolog.Ctx(ctx).Debug().Str("model", g.model).Int("max_tokens", req.MaxTokens).Msg("llm request")

	resp, err := g.c.Complete(ctx, req)
	if err != nil {
		observability.LLMAttempts.WithLabelValues(g.model, attemptResult(err)).Inc()
		return domain.ForecastSections{}, nil, err
	}
	var s domain.ForecastSections
	if strings.TrimSpace(resp.ToolArguments) == "" {
		observability.LLMAttempts.WithLabelValues(g.model, "content").Inc()
		return s, resp.Usage, ErrMissingToolOutput
	}
	if err := json.Unmarshal([]byte(resp.ToolArguments), &s); err != nil {
		observability.LLMAttempts.WithLabelValues(g.model, "content").Inc()
		return domain.ForecastSections{}, resp.Usage, fmt.Errorf("llm: parse tool arguments: %w", err)
	}
	if !s.Complete() {
		observability.LLMAttempts.WithLabelValues(g.model, "content").Inc()
		return domain.ForecastSections{}, resp.Usage, ErrEmptyForecast
	}
	observability.LLMAttempts.WithLabelValues(g.model, "ok").Inc()
	return s, resp.Usage, nil
}

func attemptResult(err error) string {
	if IsRetryable(err) {
		return "retryable"
	}
	return "fatal"
}
