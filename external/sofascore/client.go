package sofascore

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/match-odds-engine/internal/platform/cache"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
	"github.com/riskibarqy/match-odds-engine/internal/platform/resilience"
	"github.com/riskibarqy/match-odds-engine/internal/usecase"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL     = "https://api.sofascore1.com/api/v1"
	defaultMinInterval = 2500 * time.Millisecond
	defaultEventsTTL   = 10 * time.Minute
	defaultTimeout     = 20 * time.Second
	maxBodyBytes       = 6 << 20

	forbiddenBaseWait  = 5 * time.Second
	serverErrorMaxWait = 60 * time.Second
	networkMaxWait     = 30 * time.Second
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

var (
	errForbidden     = crerr.New("statistics provider refused the request")
	errServerFailure = crerr.New("statistics provider server failure")
	errNetwork       = crerr.New("statistics provider unreachable")
)

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	Timeout        time.Duration
	MinInterval    time.Duration
	MaxRetries     int
	EventsCacheTTL time.Duration
	Retry          *resilience.RetryPolicy
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client reads fixtures, scores and match statistics from SofaScore. Requests
// are paced by a shared limiter so the whole process stays under the
// provider's tolerance.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	retry      resilience.RetryPolicy
	events     *cache.Store[[]usecase.SecondaryEvent]
	logger     *logging.Logger
	breaker    *resilience.CircuitBreaker
	rand       func() float64
}

func NewClient(cfg ClientConfig) *Client {
	httpClient := timedClient(cfg.HTTPClient, cfg.Timeout)

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	interval := cfg.MinInterval
	if interval == 0 {
		interval = defaultMinInterval
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	retry := resilience.DefaultRetryPolicy()
	retry.Jitter = time.Second
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}

	ttl := cfg.EventsCacheTTL
	if ttl <= 0 {
		ttl = defaultEventsTTL
	}

	logger := logging.OrDefault(cfg.Logger).Named("sofascore")
	retry.OnRetry = func(attempt int, wait time.Duration, err error) {
		logger.Warn("statistics provider retry scheduled", "attempt", attempt, "wait", wait.String(), "error", err)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(limit, 1),
		retry:      retry,
		events:     cache.NewStore[[]usecase.SecondaryEvent](ttl),
		logger:     logger,
		breaker:    resilience.NewNamedBreaker("sofascore", cfg.CircuitBreaker),
		rand:       rand.Float64,
	}
}

// ScheduledEvents lists the football events of one calendar date (YYYY-MM-DD).
// Results are cached per date.
func (c *Client) ScheduledEvents(ctx context.Context, date string) ([]usecase.SecondaryEvent, error) {
	date = strings.TrimSpace(date)
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD: %q", usecase.ErrInvalidInput, date)
	}

	return c.events.GetOrLoad(ctx, date, func(ctx context.Context) ([]usecase.SecondaryEvent, error) {
		var payload scheduledEventsPayload
		if err := c.doJSON(ctx, "/sport/football/scheduled-events/"+url.PathEscape(date), &payload); err != nil {
			return nil, fmt.Errorf("scheduled events date=%s: %w", date, err)
		}

		out := make([]usecase.SecondaryEvent, 0, len(payload.Events))
		for _, item := range payload.Events {
			if item.ID == 0 {
				continue
			}
			out = append(out, item.toSecondary())
		}
		return out, nil
	})
}

func (c *Client) EventDetail(ctx context.Context, eventID int64) (usecase.SecondaryEventDetail, error) {
	if eventID <= 0 {
		return usecase.SecondaryEventDetail{}, fmt.Errorf("%w: event id must be > 0", usecase.ErrInvalidInput)
	}

	var payload eventDetailPayload
	if err := c.doJSON(ctx, "/event/"+strconv.FormatInt(eventID, 10), &payload); err != nil {
		return usecase.SecondaryEventDetail{}, fmt.Errorf("event detail event_id=%d: %w", eventID, err)
	}
	if payload.Event.ID == 0 {
		return usecase.SecondaryEventDetail{}, fmt.Errorf("%w: event %d", usecase.ErrNotFound, eventID)
	}
	return payload.Event.toDetail(), nil
}

func (c *Client) EventStatistics(ctx context.Context, eventID int64) (usecase.SecondaryStatistics, error) {
	if eventID <= 0 {
		return usecase.SecondaryStatistics{}, fmt.Errorf("%w: event id must be > 0", usecase.ErrInvalidInput)
	}

	var payload statisticsPayload
	if err := c.doJSON(ctx, "/event/"+strconv.FormatInt(eventID, 10)+"/statistics", &payload); err != nil {
		return usecase.SecondaryStatistics{}, fmt.Errorf("event statistics event_id=%d: %w", eventID, err)
	}
	return payload.toStatistics(), nil
}

func (c *Client) doJSON(ctx context.Context, path string, target any) error {
	if err := c.breaker.Allow(); err != nil {
		c.logger.WarnContext(ctx, "statistics circuit breaker rejected request", "state", c.breaker.State())
		return fmt.Errorf("%w: statistics provider is temporarily unavailable", usecase.ErrDependencyUnavailable)
	}

	var raw []byte
	err := c.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		body, err := c.executeRequest(ctx, path)
		if err != nil {
			return c.classify(err)
		}
		raw = body
		return nil
	})
	c.breaker.Record(err, isStatsCircuitFailure)
	if err != nil {
		c.logger.WarnContext(ctx, "statistics request failed", "path", path, "error", err)
		return err
	}

	if err := sonic.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode provider payload: %w", err)
	}
	return nil
}

// classify attaches the provider-specific backoff to a failed attempt.
func (c *Client) classify(err error) error {
	switch {
	case stderrors.Is(err, errForbidden):
		jitter := time.Duration((0.5 + c.rand()*2.5) * float64(time.Second))
		return resilience.MarkRetryable(err, resilience.RetryHint{Wait: forbiddenBaseWait + jitter})
	case stderrors.Is(err, errServerFailure):
		return resilience.MarkRetryable(err, resilience.RetryHint{MaxDelay: serverErrorMaxWait})
	case stderrors.Is(err, errNetwork):
		return resilience.MarkRetryable(err, resilience.RetryHint{MaxDelay: networkMaxWait})
	default:
		return err
	}
}

func (c *Client) executeRequest(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgents[int(c.rand()*float64(len(userAgents)))%len(userAgents)])
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", "https://www.sofascore.com/")
	req.Header.Set("Origin", "https://www.sofascore.com")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", errNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", errNetwork, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status=%d", errForbidden, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status=%d body=%s", errServerFailure, resp.StatusCode, abbreviateBody(raw))
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", usecase.ErrNotFound, path)
	default:
		return nil, fmt.Errorf("provider status=%d body=%s", resp.StatusCode, abbreviateBody(raw))
	}
}

func isStatsCircuitFailure(err error) bool {
	return stderrors.Is(err, errServerFailure) || stderrors.Is(err, errNetwork)
}

func abbreviateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}

// timedClient copies base so the caller's client is never mutated. A
// positive timeout wins over the one on base.
func timedClient(base *http.Client, timeout time.Duration) *http.Client {
	client := &http.Client{}
	if base != nil {
		copied := *base
		client = &copied
	}
	if timeout > 0 {
		client.Timeout = timeout
	}
	if client.Timeout <= 0 {
		client.Timeout = defaultTimeout
	}
	return client
}
