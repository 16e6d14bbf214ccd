package inference

import (
	"context"
	"fmt"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
	"github.com/riskibarqy/match-odds-engine/internal/usecase"
	"github.com/valyala/fasthttp"
)

const (
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultTimeout           = 60 * time.Second
	defaultMaxTokens         = 512
	referer                  = "https://github.com/riskibarqy/match-odds-engine"
)

var errEmptyAnswer = crerr.New("inference returned no text")

type OpenRouterConfig struct {
	Label       string
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	Logger      *logging.Logger
	// Client is swapped in tests.
	Client *fasthttp.Client
}

type OpenRouterClient struct {
	label       string
	endpoint    string
	apiKey      string
	model       string
	timeout     time.Duration
	maxTokens   int
	temperature float64
	client      *fasthttp.Client
	logger      *logging.Logger
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func NewOpenRouterClient(cfg OpenRouterConfig) *OpenRouterClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	client := cfg.Client
	if client == nil {
		client = &fasthttp.Client{
			Name:                "match-odds-engine",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		}
	}
	label := strings.TrimSpace(cfg.Label)
	if label == "" {
		label = "openrouter:" + cfg.Model
	}

	return &OpenRouterClient{
		label:       label,
		endpoint:    baseURL + "/chat/completions",
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       cfg.Model,
		timeout:     timeout,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		client:      client,
		logger:      logging.OrDefault(cfg.Logger).Named("openrouter"),
	}
}

func (c *OpenRouterClient) Name() string {
	return c.label
}

func (c *OpenRouterClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := sonic.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", crerr.Wrap(err, "marshal chat request")
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", referer)
	req.Header.Set("X-Title", "match-odds-engine")
	req.SetBodyRaw(body)

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	started := time.Now()
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return "", fmt.Errorf("%w: openrouter request: %v", usecase.ErrDependencyUnavailable, err)
	}

	status := resp.StatusCode()
	raw := resp.Body()
	c.logger.DebugContext(ctx, "openrouter completion", "model", c.model, "status", status, "latency_ms", time.Since(started).Milliseconds())

	switch {
	case status == fasthttp.StatusTooManyRequests:
		return "", fmt.Errorf("%w: openrouter status=%d", usecase.ErrRateLimited, status)
	case status >= 500:
		return "", fmt.Errorf("%w: openrouter status=%d", usecase.ErrDependencyUnavailable, status)
	case status < 200 || status >= 300:
		return "", fmt.Errorf("openrouter status=%d body=%s", status, abbreviate(raw))
	}

	var payload chatResponse
	if err := sonic.Unmarshal(raw, &payload); err != nil {
		return "", crerr.Wrap(err, "decode chat response")
	}
	if payload.Error != nil {
		return "", fmt.Errorf("openrouter error: %s", payload.Error.Message)
	}
	if len(payload.Choices) == 0 {
		return "", errEmptyAnswer
	}
	text := strings.TrimSpace(payload.Choices[0].Message.Content)
	if text == "" {
		return "", errEmptyAnswer
	}
	return text, nil
}

func abbreviate(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}
