// Package daymet fetches one-year daily weather series from a Daymet
// single-pixel style point-weather API.
package daymet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/croftlab/site-weather-etl/internal/domain"
	"github.com/croftlab/site-weather-etl/internal/observability"
)

// DefaultBaseURL is the public Daymet single-pixel endpoint.
const DefaultBaseURL = "https://daymet.ornl.gov/single-pixel/api/data"

// Config holds the client's endpoint and resilience settings.
type Config struct {
	BaseURL string
	// Timeout bounds each HTTP attempt; RetryMaxElapsed bounds the whole
	// retry sequence for one site-year.
	Timeout         time.Duration
	RetryMaxElapsed time.Duration
	// RetryInitialInterval seeds the exponential backoff. Zero means the
	// backoff package default.
	RetryInitialInterval time.Duration
	// RateLimit is the request rate in requests per second shared by all
	// workers; RateBurst is the burst allowance.
	RateLimit float64
	RateBurst int
}

// Client implements the fetch stage's WeatherFetcher against the
// point-weather API. Transient failures (network errors, 408, 429, 5xx)
// are retried with exponential backoff; other client errors fail the
// site-year immediately. A circuit breaker sheds requests during sustained
// outages so a down API fails fast instead of burning the retry budget of
// every remaining site-year.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a point-weather API client.
func NewClient(cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryMaxElapsed <= 0 {
		cfg.RetryMaxElapsed = 2 * time.Minute
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "daymet",
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		breaker: breaker,
		metrics: metrics,
		logger:  logger,
	}
}

// FetchYear retrieves the full daily series for one site-year. The
// returned observations are validated: exactly one per calendar day, each
// carrying every requested variable. All failures come back as a
// *domain.FetchError carrying the attempt count.
func (c *Client) FetchYear(ctx context.Context, sy domain.SiteYear, vars []domain.Variable) ([]domain.DailyObservation, error) {
	start := time.Now()

	params := url.Values{
		"lat":    {strconv.FormatFloat(sy.Lat, 'f', -1, 64)},
		"lon":    {strconv.FormatFloat(sy.Lon, 'f', -1, 64)},
		"vars":   {joinVariables(vars)},
		"start":  {fmt.Sprintf("%d-01-01", sy.Year)},
		"end":    {fmt.Sprintf("%d-12-31", sy.Year)},
		"format": {"json"},
	}
	fullURL := c.cfg.BaseURL + "?" + params.Encode()

	var body []byte
	attempts := 0
	permanent := false

	operation := func() error {
		attempts++

		if err := c.limiter.Wait(ctx); err != nil {
			permanent = true
			return backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			permanent = true
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return nil, fmt.Errorf("daymet request: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				b, _ := io.ReadAll(resp.Body)
				return nil, &apiError{status: resp.StatusCode, body: string(b)}
			}

			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, fmt.Errorf("read body: %w", err)
			}
			return b, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				permanent = true
				return backoff.Permanent(fmt.Errorf("circuit breaker: %w", err))
			}
			var apiErr *apiError
			if errors.As(err, &apiErr) && !apiErr.retryable() {
				permanent = true
				return backoff.Permanent(err)
			}
			return err
		}

		body = result.([]byte)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.cfg.RetryMaxElapsed
	if c.cfg.RetryInitialInterval > 0 {
		bo.InitialInterval = c.cfg.RetryInitialInterval
	}
	notify := func(err error, next time.Duration) {
		c.metrics.FetchRetries.Inc()
		c.logger.Warn("fetch retry",
			"site", sy.Site, "year", sy.Year, "delay", next, "error", err)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, &domain.FetchError{Site: sy.Site, Year: sy.Year, Attempts: attempts, Permanent: permanent, Err: err}
	}

	series, err := parseSeries(sy, vars, body)
	if err == nil {
		err = domain.ValidateSeries(sy, series, vars)
	}
	if err != nil {
		// A decoded but unusable payload will not improve on retry.
		return nil, &domain.FetchError{Site: sy.Site, Year: sy.Year, Attempts: attempts, Permanent: true, Err: err}
	}

	c.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	return series, nil
}

// parseSeries flattens the columnar response into one observation per day.
func parseSeries(sy domain.SiteYear, vars []domain.Variable, body []byte) ([]domain.DailyObservation, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	ydays, ok := resp.Data["yday"]
	if !ok {
		return nil, fmt.Errorf("response missing yday series")
	}
	years, ok := resp.Data["year"]
	if !ok {
		return nil, fmt.Errorf("response missing year series")
	}
	if len(years) != len(ydays) {
		return nil, fmt.Errorf("year series has %d values, yday has %d", len(years), len(ydays))
	}
	for _, v := range vars {
		series, ok := resp.Data[string(v)]
		if !ok {
			return nil, fmt.Errorf("response missing %s series", v)
		}
		if len(series) != len(ydays) {
			return nil, fmt.Errorf("%s series has %d values, yday has %d", v, len(series), len(ydays))
		}
	}

	obs := make([]domain.DailyObservation, 0, len(ydays))
	for i := range ydays {
		if year := int(years[i]); year != sy.Year {
			return nil, fmt.Errorf("response year %d at index %d, requested %d", year, i, sy.Year)
		}
		yday := int(ydays[i])
		date, err := domain.DateForYday(sy.Year, yday)
		if err != nil {
			return nil, err
		}

		values := make(map[domain.Variable]float64, len(vars))
		for _, v := range vars {
			values[v] = resp.Data[string(v)][i]
		}
		obs = append(obs, domain.DailyObservation{
			SiteYear: sy,
			Yday:     yday,
			Date:     date,
			Values:   values,
		})
	}
	return obs, nil
}

func joinVariables(vars []domain.Variable) string {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = string(v)
	}
	return strings.Join(names, ",")
}

// apiError is a non-200 response from the weather API. Timeouts, rate
// limiting and server errors are worth retrying; other client errors are
// permanent.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("daymet API error: status %d: %s", e.status, e.body)
}

func (e *apiError) retryable() bool {
	return e.status == http.StatusRequestTimeout ||
		e.status == http.StatusTooManyRequests ||
		e.status >= 500
}

// response is the Daymet-style payload. Data is columnar: parallel arrays
// keyed by series name, including the year and yday index series.
type response struct {
	Lat  float64              `json:"lat"`
	Lon  float64              `json:"lon"`
	Data map[string][]float64 `json:"data"`
}
