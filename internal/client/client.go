package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tash-comp/rain-app/internal/models"
	"github.com/tash-comp/rain-app/internal/observability"
)

// WeatherClient fetches a rain snapshot for a coordinate.
type WeatherClient interface {
	Fetch(ctx context.Context, coord models.Coordinate) (models.WeatherSnapshot, error)
}

var (
	ErrNetwork = errors.New("network error")
	ErrDecode  = errors.New("decode error")
)

// maxBodyBytes caps how much of a response is read; the rain payload is a few dozen bytes.
const maxBodyBytes = 64 << 10

// RainClient calls the rain endpoint once per Fetch. It never retries; the monitor's
// next cycle is the retry.
type RainClient struct {
	apiURL *url.URL
	client *http.Client
}

// NewRainClient validates apiURL and returns a client. timeout bounds the whole HTTP
// exchange; 0 means no client-side timeout.
func NewRainClient(apiURL string, timeout time.Duration) (*RainClient, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid rain API URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid rain API URL %q: scheme must be http or https", apiURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid rain API URL %q: missing host", apiURL)
	}
	return &RainClient{
		apiURL: u,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// rainResponse uses pointers so that missing and null fields can be told apart from zero values.
type rainResponse struct {
	Raining       *bool    `json:"raining"`
	WeatherCode   *string  `json:"weather_code"`
	Precipitation *float64 `json:"precipitation"`
}

// Fetch performs one GET and decodes the body. Transport failures and non-2xx statuses
// wrap ErrNetwork; malformed bodies wrap ErrDecode.
func (c *RainClient) Fetch(ctx context.Context, coord models.Coordinate) (models.WeatherSnapshot, error) {
	start := time.Now()

	req, err := c.buildRequest(ctx, coord)
	if err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}

	corrID := extractCorrelationID(ctx)
	if corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		record("network_error", start)
		return models.WeatherSnapshot{}, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		record("network_error", start)
		return models.WeatherSnapshot{}, fmt.Errorf("%w: HTTP %d", ErrNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		record("network_error", start)
		return models.WeatherSnapshot{}, fmt.Errorf("%w: read response body: %w", ErrNetwork, err)
	}

	snap, err := decodeSnapshot(body)
	if err != nil {
		record("decode_error", start)
		return models.WeatherSnapshot{}, err
	}
	record("success", start)
	return snap, nil
}

func decodeSnapshot(body []byte) (models.WeatherSnapshot, error) {
	var r rainResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	switch {
	case r.Raining == nil:
		return models.WeatherSnapshot{}, fmt.Errorf("%w: missing field raining", ErrDecode)
	case r.WeatherCode == nil:
		return models.WeatherSnapshot{}, fmt.Errorf("%w: missing field weather_code", ErrDecode)
	case r.Precipitation == nil:
		return models.WeatherSnapshot{}, fmt.Errorf("%w: missing field precipitation", ErrDecode)
	}
	if *r.Precipitation < 0 {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: negative precipitation %v", ErrDecode, *r.Precipitation)
	}
	return models.WeatherSnapshot{
		Raining:         *r.Raining,
		WeatherCode:     *r.WeatherCode,
		PrecipitationMM: *r.Precipitation,
	}, nil
}

func (c *RainClient) buildRequest(ctx context.Context, coord models.Coordinate) (*http.Request, error) {
	u := *c.apiURL
	params := u.Query()
	params.Set("latitude", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func record(status string, start time.Time) {
	observability.RainAPICallsTotal.WithLabelValues(status).Inc()
	observability.RainAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

type correlationIDKey struct{}

// WithCorrelationID returns a context whose outbound requests carry X-Correlation-ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

func extractCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}
