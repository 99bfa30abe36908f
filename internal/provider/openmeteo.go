package provider

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

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/tash-comp/rain-app/internal/models"
	"github.com/tash-comp/rain-app/internal/observability"
)

// DefaultOpenMeteoURL is the public forecast endpoint.
const DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

const (
	breakerName    = "open_meteo"
	maxForecastLen = 1 << 20
)

var (
	ErrUpstream = errors.New("upstream unavailable")
	ErrDecode   = errors.New("upstream response malformed")
)

// BreakerSettings configures the circuit breaker in front of Open-Meteo.
type BreakerSettings struct {
	FailureThreshold uint32        // consecutive failures before opening
	HalfOpenRequests uint32        // probes allowed while half-open
	OpenTimeout      time.Duration // time spent open before probing
}

// OpenMeteoClient fetches the 15-minute precipitation forecast and reduces it to a snapshot.
type OpenMeteoClient struct {
	baseURL *url.URL
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewOpenMeteoClient validates baseURL and wires the breaker. State transitions are logged and
// exported as circuitBreakerState{component="open_meteo"}.
func NewOpenMeteoClient(baseURL string, timeout time.Duration, bs BreakerSettings, logger *zap.Logger) (*OpenMeteoClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid open-meteo URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid open-meteo URL %q", baseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if bs.FailureThreshold == 0 {
		bs.FailureThreshold = 5
	}
	if bs.HalfOpenRequests == 0 {
		bs.HalfOpenRequests = 1
	}
	if bs.OpenTimeout <= 0 {
		bs.OpenTimeout = 30 * time.Second
	}

	threshold := bs.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: bs.HalfOpenRequests,
		Timeout:     bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A malformed body means the upstream answered; only transport and status failures trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrDecode)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn("circuit breaker state change",
				zap.String("component", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	observability.CircuitBreakerState.WithLabelValues(breakerName).Set(float64(gobreaker.StateClosed))

	return &OpenMeteoClient{
		baseURL: u,
		client:  &http.Client{Timeout: timeout},
		breaker: cb,
	}, nil
}

// Fetch implements client.WeatherClient against Open-Meteo.
func (c *OpenMeteoClient) Fetch(ctx context.Context, coord models.Coordinate) (models.WeatherSnapshot, error) {
	start := time.Now()
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, coord)
	})

	status := "success"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		observability.OpenMeteoCallsTotal.WithLabelValues("breaker_open").Inc()
		return models.WeatherSnapshot{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	case errors.Is(err, ErrDecode):
		status = "decode_error"
	case err != nil:
		status = "error"
	}
	observability.OpenMeteoCallsTotal.WithLabelValues(status).Inc()
	observability.OpenMeteoDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return models.WeatherSnapshot{}, err
	}
	return res.(models.WeatherSnapshot), nil
}

func (c *OpenMeteoClient) fetch(ctx context.Context, coord models.Coordinate) (models.WeatherSnapshot, error) {
	u := *c.baseURL
	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
	q.Set("minutely_15", "precipitation,weathercode")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxForecastLen))
		return models.WeatherSnapshot{}, fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode)
	}

	var body forecastResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxForecastLen)).Decode(&body); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return Reduce(body)
}
