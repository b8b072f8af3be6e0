package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jwalitptl/availability-api/internal/config"
	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/jwalitptl/availability-api/pkg/circuitbreaker"
	"github.com/jwalitptl/availability-api/pkg/logger"
	"github.com/jwalitptl/availability-api/pkg/metrics"
)

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// Client fetches availability snapshots from the upstream appointment API.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	limiter *rate.Limiter
	cb      *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
	logger  *logger.Logger
}

func NewClient(cfg config.UpstreamConfig, m *metrics.Metrics, log *logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("upstream base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid upstream base url: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL: base,
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "upstream",
			MaxFailures: cfg.MaxFailures,
			Timeout:     cfg.OpenTimeout,
		}),
		metrics: m,
		logger:  log,
	}, nil
}

// FetchSnapshot returns the full availability of the calendar identified by key.
func (c *Client) FetchSnapshot(ctx context.Context, key model.CalendarKey) (*model.Snapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("upstream rate limit: %w", err)
	}

	start := time.Now()
	var snapshot *model.Snapshot
	err := c.cb.Execute(func() error {
		var err error
		snapshot, err = c.fetch(ctx, key)
		return err
	})
	c.observe(start, err)
	if err != nil {
		c.logger.Debug("upstream fetch failed", "calendar", key.String(), "error", err.Error())
		return nil, err
	}
	return snapshot, nil
}

func (c *Client) fetch(ctx context.Context, key model.CalendarKey) (*model.Snapshot, error) {
	u := *c.baseURL
	u.Path += "/calendars"
	q := url.Values{}
	q.Set("doctor_id", key.DoctorID)
	q.Set("clinic_id", key.ClinicID)
	q.Set("treatment_type", key.TreatmentType)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var snapshot model.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("invalid upstream snapshot: %w", err)
	}
	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("invalid upstream snapshot: %w", err)
	}
	return &snapshot, nil
}

func (c *Client) observe(start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	c.metrics.UpstreamRequests.WithLabelValues(result).Inc()
	c.metrics.UpstreamLatency.Observe(time.Since(start).Seconds())
}
