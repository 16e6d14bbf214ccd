package oddsapi

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/match-odds-engine/internal/platform/credentials"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
	"github.com/riskibarqy/match-odds-engine/internal/platform/resilience"
	"github.com/riskibarqy/match-odds-engine/internal/usecase"
	"golang.org/x/sync/singleflight"
)

const (
	defaultBaseURL  = "https://api.the-odds-api.com/v4"
	defaultRegions  = "eu"
	defaultTimeout  = 15 * time.Second
	soccerGroup     = "Soccer"
	quotaWarnBelow  = 100
	quotaErrorBelow = 50
	maxBodyBytes    = 6 << 20

	headerRemaining = "x-requests-remaining"
	headerUsed      = "x-requests-used"
	headerLast      = "x-requests-last"
)

var apiKeyParamRegex = regexp.MustCompile(`apiKey=[^&\s"']+`)

var (
	errOddsTransient = crerr.New("odds provider transient failure")
	errOddsQuota     = crerr.New("odds provider quota exhausted")
)

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	Credentials    *credentials.Pool
	Regions        string
	Timeout        time.Duration
	Retry          resilience.RetryPolicy
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client reads head-to-head odds from The Odds API, rotating API keys by
// their remaining quota.
type Client struct {
	httpClient *http.Client
	baseURL    string
	pool       *credentials.Pool
	regions    string
	retry      resilience.RetryPolicy
	logger     *logging.Logger
	breaker    *resilience.CircuitBreaker
	flight     singleflight.Group
}

func NewClient(cfg ClientConfig) *Client {
	httpClient := timedClient(cfg.HTTPClient, cfg.Timeout)

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	regions := strings.TrimSpace(cfg.Regions)
	if regions == "" {
		regions = defaultRegions
	}
	retry := cfg.Retry
	if retry.MaxAttempts < 1 {
		retry = resilience.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Jitter: time.Second}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		pool:       cfg.Credentials,
		regions:    regions,
		retry:      retry,
		logger:     logging.OrDefault(cfg.Logger).Named("oddsapi"),
		breaker:    resilience.NewNamedBreaker("oddsapi", cfg.CircuitBreaker),
	}
}

func (c *Client) FetchLeagueOdds(ctx context.Context, leagueKey string) ([]usecase.ExternalOddsEvent, error) {
	leagueKey = strings.TrimSpace(leagueKey)
	if leagueKey == "" {
		return nil, fmt.Errorf("%w: league key is required", usecase.ErrInvalidInput)
	}

	var payload []eventPayload
	path := "/sports/" + url.PathEscape(leagueKey) + "/odds"
	if err := c.doJSON(ctx, path, c.marketQuery(), &payload); err != nil {
		return nil, fmt.Errorf("fetch league odds league=%s: %w", leagueKey, err)
	}

	out := make([]usecase.ExternalOddsEvent, 0, len(payload))
	for _, item := range payload {
		if strings.TrimSpace(item.ID) == "" {
			continue
		}
		out = append(out, item.toExternal())
	}
	return out, nil
}

func (c *Client) FetchEventOdds(ctx context.Context, leagueKey, eventID string) (usecase.ExternalOddsEvent, error) {
	leagueKey, eventID = strings.TrimSpace(leagueKey), strings.TrimSpace(eventID)
	if leagueKey == "" || eventID == "" {
		return usecase.ExternalOddsEvent{}, fmt.Errorf("%w: league key and event id are required", usecase.ErrInvalidInput)
	}

	var payload eventPayload
	path := "/sports/" + url.PathEscape(leagueKey) + "/events/" + url.PathEscape(eventID) + "/odds"
	if err := c.doJSON(ctx, path, c.marketQuery(), &payload); err != nil {
		return usecase.ExternalOddsEvent{}, fmt.Errorf("fetch event odds event_id=%s: %w", eventID, err)
	}
	return payload.toExternal(), nil
}

// ListSoccerLeagues calls the quota-free sports listing.
func (c *Client) ListSoccerLeagues(ctx context.Context) ([]usecase.ExternalLeague, error) {
	var payload []sportPayload
	if err := c.doJSON(ctx, "/sports", url.Values{}, &payload); err != nil {
		return nil, fmt.Errorf("list sports: %w", err)
	}

	out := make([]usecase.ExternalLeague, 0, len(payload))
	for _, item := range payload {
		if item.Group != soccerGroup {
			continue
		}
		out = append(out, usecase.ExternalLeague{
			Key:          item.Key,
			Group:        item.Group,
			Title:        item.Title,
			Active:       item.Active,
			HasOutrights: item.HasOutrights,
		})
	}
	return out, nil
}

// WarmUp reads the quota of every key through the free sports listing so the
// first selection is informed. Failures are logged per key.
func (c *Client) WarmUp(ctx context.Context) error {
	if c.pool == nil {
		return fmt.Errorf("%w: no odds api credentials configured", usecase.ErrDependencyUnavailable)
	}
	var errs []error
	for _, cred := range c.pool.Keys() {
		_, _, err := c.executeRequest(ctx, "/sports", url.Values{}, cred)
		if err != nil && !stderrors.Is(err, errOddsQuota) {
			errs = append(errs, fmt.Errorf("credential %d: %w", cred.Index, err))
			c.logger.WarnContext(ctx, "odds api quota warm-up failed", "credential", cred.Index, "error", err)
		}
	}
	return stderrors.Join(errs...)
}

// QuotaSnapshot exposes the masked credential state for the ops endpoint.
func (c *Client) QuotaSnapshot() []credentials.CredentialState {
	if c.pool == nil {
		return nil
	}
	return c.pool.Snapshot()
}

func (c *Client) marketQuery() url.Values {
	query := url.Values{}
	query.Set("regions", c.regions)
	query.Set("markets", "h2h")
	query.Set("oddsFormat", "decimal")
	query.Set("dateFormat", "iso")
	return query
}

func (c *Client) doJSON(ctx context.Context, path string, query url.Values, target any) error {
	if c.pool == nil {
		return fmt.Errorf("%w: no odds api credentials configured", usecase.ErrDependencyUnavailable)
	}
	if err := c.breaker.Allow(); err != nil {
		c.logger.WarnContext(ctx, "odds api circuit breaker rejected request", "state", c.breaker.State())
		return fmt.Errorf("%w: odds provider is temporarily unavailable", usecase.ErrDependencyUnavailable)
	}

	key := path + "?" + query.Encode()
	out, err, _ := c.flight.Do(key, func() (any, error) {
		raw, reqErr := c.fetchRotating(ctx, path, query)
		c.breaker.Record(reqErr, isOddsCircuitFailure)
		return raw, reqErr
	})
	if err != nil {
		return err
	}

	raw, ok := out.([]byte)
	if !ok {
		return fmt.Errorf("unexpected response payload type %T", out)
	}
	if err := sonic.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode provider payload: %w", err)
	}
	return nil
}

// fetchRotating retries transient failures under the retry policy. A quota
// rejection marks the key exhausted and switches to the next one once.
func (c *Client) fetchRotating(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var raw []byte
	rotated := false
	err := c.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		cred := c.pool.Select()
		body, status, err := c.executeRequest(ctx, path, query, cred)
		if err != nil && stderrors.Is(err, errOddsQuota) {
			c.pool.MarkExhausted(cred.Key)
			if rotated || c.pool.Len() < 2 {
				return fmt.Errorf("%w: %w", usecase.ErrRateLimited, err)
			}
			rotated = true
			next := c.pool.Select()
			c.logger.WarnContext(ctx, "odds api credential exhausted, switching",
				"from", cred.Index, "to", next.Index, "status", status)
			body, _, err = c.executeRequest(ctx, path, query, next)
			if err != nil && stderrors.Is(err, errOddsQuota) {
				c.pool.MarkExhausted(next.Key)
				return fmt.Errorf("%w: %w", usecase.ErrRateLimited, err)
			}
		}
		if err != nil {
			if stderrors.Is(err, errOddsTransient) {
				return resilience.MarkRetryable(err, resilience.RetryHint{})
			}
			return err
		}
		raw = body
		return nil
	})
	if err != nil {
		c.logger.WarnContext(ctx, "odds api request failed", "path", path, "error", err)
		return nil, err
	}
	return raw, nil
}

func (c *Client) executeRequest(ctx context.Context, path string, query url.Values, cred credentials.Credential) ([]byte, int, error) {
	values := url.Values{}
	for k, v := range query {
		values[k] = v
	}
	values.Set("apiKey", cred.Key)
	fullURL := c.baseURL + path + "?" + values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("%w: send request: %s", errOddsTransient, sanitizeSensitiveText(err.Error(), cred.Key))
	}
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	_ = resp.Body.Close()

	c.recordQuota(ctx, cred, resp.Header)

	switch {
	case readErr != nil:
		return nil, resp.StatusCode, fmt.Errorf("%w: read response body: %v", errOddsTransient, readErr)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, resp.StatusCode, nil
	case isQuotaStatus(resp.StatusCode):
		return nil, resp.StatusCode, fmt.Errorf("%w: provider status=%d body=%s", errOddsQuota, resp.StatusCode, sanitizeSensitiveText(abbreviateBody(raw), cred.Key))
	case resp.StatusCode >= 500:
		return nil, resp.StatusCode, fmt.Errorf("%w: provider status=%d body=%s", errOddsTransient, resp.StatusCode, sanitizeSensitiveText(abbreviateBody(raw), cred.Key))
	default:
		return nil, resp.StatusCode, fmt.Errorf("provider status=%d body=%s", resp.StatusCode, sanitizeSensitiveText(abbreviateBody(raw), cred.Key))
	}
}

func (c *Client) recordQuota(ctx context.Context, cred credentials.Credential, header http.Header) {
	remaining, ok := headerInt(header, headerRemaining)
	if !ok {
		return
	}
	quota := credentials.Quota{Remaining: remaining, Used: -1, Last: -1}
	if used, ok := headerInt(header, headerUsed); ok {
		quota.Used = used
	}
	if last, ok := headerInt(header, headerLast); ok {
		quota.Last = last
	}

	switched := c.pool.Report(cred.Key, quota)
	switch {
	case remaining < quotaErrorBelow:
		c.logger.ErrorContext(ctx, "odds api quota critically low", "credential", cred.Index, "remaining", remaining, "switched", switched)
	case remaining < quotaWarnBelow:
		c.logger.WarnContext(ctx, "odds api quota low", "credential", cred.Index, "remaining", remaining, "switched", switched)
	}
}

func headerInt(header http.Header, name string) (int, bool) {
	raw := strings.TrimSpace(header.Get(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return int(v), true
}

func isQuotaStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusUnauthorized
}

func isOddsCircuitFailure(err error) bool {
	return stderrors.Is(err, errOddsTransient)
}

func sanitizeSensitiveText(value, key string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	if key != "" {
		value = strings.ReplaceAll(value, key, "REDACTED")
	}
	return apiKeyParamRegex.ReplaceAllString(value, "apiKey=REDACTED")
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
