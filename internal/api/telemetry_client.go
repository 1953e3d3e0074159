package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"cabinair/internal/models"

	"github.com/sony/gobreaker"
)

// maxBodyBytes bounds how much of a telemetry response is read
const maxBodyBytes = 8 << 20

var (
	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrMalformedPayload = errors.New("malformed telemetry payload")
	ErrCircuitOpen      = errors.New("circuit breaker open")
)

// BreakerSettings controls when the telemetry circuit breaker opens
type BreakerSettings struct {
	MaxFailures uint32        // consecutive failures before opening
	OpenTimeout time.Duration // how long to stay open before probing again
}

// TelemetryClient fetches the current sample window from the telemetry endpoint
type TelemetryClient struct {
	client   *http.Client
	endpoint string
	breaker  *gobreaker.CircuitBreaker
}

// NewTelemetryClient creates a client for endpoint. timeout bounds each request.
func NewTelemetryClient(endpoint string, timeout time.Duration, bs BreakerSettings) *TelemetryClient {
	if bs.MaxFailures == 0 {
		bs.MaxFailures = 5
	}
	if bs.OpenTimeout <= 0 {
		bs.OpenTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "telemetry",
		MaxRequests: 1,
		Timeout:     bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.MaxFailures
		},
		// a caller giving up is not an endpoint failure; deadlines still count
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("telemetry: circuit breaker %s changed from %s to %s", name, from, to)
		},
	})

	return &TelemetryClient{
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
		breaker:  cb,
	}
}

// Fetch retrieves one window of samples, newest first. It never retries;
// holding on to stale data is the caller's job.
func (c *TelemetryClient) Fetch(ctx context.Context) (models.ReverseChronologicalWindow, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}

	window, ok := result.(models.ReverseChronologicalWindow)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return window, nil
}

func (c *TelemetryClient) fetch(ctx context.Context) (models.ReverseChronologicalWindow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch telemetry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d, body: %s", ErrUnexpectedStatus, resp.StatusCode, string(body))
	}

	var raw []models.RawSample
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return NormalizeSamples(raw), nil
}

// NormalizeSamples converts raw records into a window sorted newest first.
// Records without a usable time are dropped. The newest sample gets the
// fallback position when it has none.
func NormalizeSamples(raw []models.RawSample) models.ReverseChronologicalWindow {
	samples := make([]models.Sample, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		s, ok := r.Normalize()
		if !ok {
			dropped++
			continue
		}
		samples = append(samples, s)
	}
	if dropped > 0 {
		log.Printf("telemetry: dropped %d of %d records without a valid time", dropped, len(raw))
	}

	window := models.NewReverseChronologicalWindow(samples)
	if len(window) > 0 && !window[0].HasPosition() {
		window[0].Lat = models.FallbackLatitude
		window[0].Lng = models.FallbackLongitude
	}
	return window
}
