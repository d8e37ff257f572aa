// Package chart fetches structured birth-chart attributes from the external
// chart service. The client is tolerant: every failure yields empty
// attributes and a log line, never an error.
package chart

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-forecast-backend/internal/domain"
)

// Moment is the birth instant and place to chart. A chart is requested only
// when all three fields are present.
type Moment struct {
	UTC       string
	Latitude  *float64
	Longitude *float64
}

// Complete reports whether the moment carries enough data to chart.
func (m Moment) Complete() bool {
	return m.UTC != "" && m.Latitude != nil && m.Longitude != nil
}

// Fetcher is the seam consumed by the generation services.
type Fetcher interface {
	Fetch(ctx context.Context, m Moment) domain.ChartAttributes
}

// Client calls the chart service over HTTP.
type Client struct {
	url    string
	apiKey string
	http   *http.Client
}

// NewClient returns a client posting to url. An empty url disables
// fetching.
func NewClient(url, apiKey string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{url: strings.TrimSpace(url), apiKey: apiKey, http: hc}
}

type chartRequest struct {
	Datetime  string  `json:"datetime"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Ayanamsa  int     `json:"ayanamsa"`
}

// Fetch returns the chart for m, or empty attributes when m is incomplete,
// the client is unconfigured, or the service misbehaves.
func (c *Client) Fetch(ctx context.Context, m Moment) domain.ChartAttributes {
	if c == nil || c.url == "" || !m.Complete() {
		return domain.ChartAttributes{}
	}
	ctx, span := otel.Tracer("chart").Start(ctx, "Fetch")
	defer span.End()
	lg := zerolog.Ctx(ctx)

	body, err := json.Marshal(chartRequest{
		Datetime:  m.UTC,
		Latitude:  *m.Latitude,
		Longitude: *m.Longitude,
		Ayanamsa:  1,
	})
	if err != nil {
		lg.Warn().Err(err).Msg("chart: encode request")
		return domain.ChartAttributes{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		lg.Warn().Err(err).Msg("chart: build request")
		return domain.ChartAttributes{}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		lg.Warn().Err(err).Msg("chart fetch failed")
		return domain.ChartAttributes{}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		lg.Warn().Int("status", resp.StatusCode).Str("body", string(snippet)).Msg("chart fetch failed")
		return domain.ChartAttributes{}
	}

	var attrs domain.ChartAttributes
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&attrs); err != nil {
		lg.Warn().Err(err).Msg("chart: decode response")
		return domain.ChartAttributes{}
	}
	lg.Debug().
		Str("sun_sign", attrs.SunSign).
		Str("moon_sign", attrs.MoonSign).
		Str("nakshatra", attrs.Nakshatra).
		Msg("chart fetched")
	return attrs
}
