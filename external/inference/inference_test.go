package inference

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
	"github.com/riskibarqy/match-odds-engine/internal/usecase"
)

const tiersYAML = `
tiers:
  - label: primary
    kind: openrouter
    model: meta-llama/llama-3.3-70b-instruct:free
    timeout: 45s
  - label: fallback-gemini
    kind: Gemini
    model: gemini-2.0-flash
    max_tokens: 400
`

func TestLoadTiers_ParsesAndValidates(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tiers.yaml")
	if err := os.WriteFile(path, []byte(tiersYAML), 0o600); err != nil {
		t.Fatalf("write tiers file: %v", err)
	}

	tiers, err := LoadTiers(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tiers) != 2 {
		t.Fatalf("expected two tiers, got %d", len(tiers))
	}
	if tiers[0].Kind != KindOpenRouter || tiers[0].Timeout != 45*time.Second {
		t.Fatalf("unexpected primary tier: %+v", tiers[0])
	}
	if tiers[1].Kind != KindGemini || tiers[1].MaxTokens != 400 {
		t.Fatalf("kind must be case-insensitive: %+v", tiers[1])
	}
}

func TestParseTiers_RejectsInvalidFiles(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty":          `tiers: []`,
		"unknown kind":   "tiers:\n  - {label: a, kind: claude, model: m}",
		"missing model":  "tiers:\n  - {label: a, kind: gemini}",
		"duplicate":      "tiers:\n  - {label: a, kind: gemini, model: m}\n  - {label: a, kind: openrouter, model: n}",
		"too many tiers": "tiers:\n  - {label: a, kind: gemini, model: m}\n  - {label: b, kind: gemini, model: m}\n  - {label: c, kind: gemini, model: m}\n  - {label: d, kind: gemini, model: m}\n  - {label: e, kind: gemini, model: m}",
	}
	for name, raw := range cases {
		name, raw := name, raw
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseTiers([]byte(raw)); !errors.Is(err, usecase.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestBuildTiers_RequiresKeyPerKind(t *testing.T) {
	t.Parallel()

	tiers, err := ParseTiers([]byte(tiersYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := BuildTiers(tiers, Keys{OpenRouter: "or-key"}, logging.NewNop()); !errors.Is(err, usecase.ErrInvalidInput) {
		t.Fatalf("expected missing gemini key to fail, got %v", err)
	}

	chain, err := BuildTiers(tiers, Keys{OpenRouter: "or-key", Gemini: "g-key"}, logging.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(chain) != 2 || chain[0].Label != "primary" || chain[1].Provider.Name() != "fallback-gemini" {
		t.Fatalf("unexpected chain: %+v", chain)
	}
	if _, ok := chain[0].Provider.(*OpenRouterClient); !ok {
		t.Fatalf("primary tier must be an OpenRouter client, got %T", chain[0].Provider)
	}
}

func TestOpenRouterClient_Complete(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat/completions" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer or-key" || r.Header.Get("HTTP-Referer") == "" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		body, _ := io.ReadAll(r.Body)
		var req chatRequest
		if err := sonic.Unmarshal(body, &req); err != nil || req.Model != "test/model" || req.Messages[0].Content != "prompt text" {
			t.Errorf("unexpected body %s (%v)", body, err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  OUTCOME: 1\nBET: YES  "}}]}`))
	}))
	defer server.Close()

	client := NewOpenRouterClient(OpenRouterConfig{
		Label:   "primary",
		BaseURL: server.URL + "/api/v1",
		APIKey:  "or-key",
		Model:   "test/model",
		Timeout: 5 * time.Second,
		Logger:  logging.NewNop(),
	})
	answer, err := client.Complete(context.Background(), "prompt text")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if answer != "OUTCOME: 1\nBET: YES" {
		t.Fatalf("unexpected answer %q", answer)
	}
}

func TestOpenRouterClient_ErrorsClassified(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, want: usecase.ErrRateLimited},
		{name: "upstream down", status: http.StatusBadGateway, want: usecase.ErrDependencyUnavailable},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, want: errEmptyAnswer},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewOpenRouterClient(OpenRouterConfig{BaseURL: server.URL, APIKey: "k", Model: "m", Logger: logging.NewNop()})
			if _, err := client.Complete(context.Background(), "p"); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestGeminiClient_Complete(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.0-flash:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "g-key" || strings.Contains(r.URL.RawQuery, "g-key") {
			t.Errorf("api key must travel in the header only")
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"OUTCOME: X2\n"},{"text":"REASON: away pressing"}]},"finishReason":"STOP"}]}`))
	}))
	defer server.Close()

	client := NewGeminiClient(GeminiConfig{
		BaseURL:    server.URL + "/v1beta",
		APIKey:     "g-key",
		Model:      "gemini-2.0-flash",
		HTTPClient: server.Client(),
		Logger:     logging.NewNop(),
	})
	if client.Name() != "gemini:gemini-2.0-flash" {
		t.Fatalf("unexpected default label %q", client.Name())
	}
	answer, err := client.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if answer != "OUTCOME: X2\nREASON: away pressing" {
		t.Fatalf("unexpected answer %q", answer)
	}
}

func TestGeminiClient_EmptyCandidateFallsThrough(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`))
	}))
	defer server.Close()

	client := NewGeminiClient(GeminiConfig{BaseURL: server.URL, APIKey: "k", Model: "m", HTTPClient: server.Client(), Logger: logging.NewNop()})
	if _, err := client.Complete(context.Background(), "p"); !errors.Is(err, errEmptyAnswer) {
		t.Fatalf("expected errEmptyAnswer, got %v", err)
	}
}

func TestLoadTiers_ExampleFile(t *testing.T) {
	t.Parallel()

	tiers, err := LoadTiers(filepath.Join("..", "..", "configs", "advisory_tiers.example.yaml"))
	if err != nil {
		t.Fatalf("load example tiers: %v", err)
	}
	if len(tiers) != 3 || tiers[0].Label != "primary" || tiers[1].Kind != KindGemini {
		t.Fatalf("unexpected example tiers: %+v", tiers)
	}
	if tiers[0].Timeout != 60*time.Second {
		t.Fatalf("unexpected primary timeout: %s", tiers[0].Timeout)
	}
}
