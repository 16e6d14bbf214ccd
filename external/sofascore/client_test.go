package sofascore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
	"github.com/riskibarqy/match-odds-engine/internal/platform/resilience"
	"github.com/riskibarqy/match-odds-engine/internal/usecase"
)

type recordedWaits struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordedWaits) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

func newTestClient(t *testing.T, server *httptest.Server, waits *recordedWaits) *Client {
	t.Helper()

	policy := resilience.RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Jitter:      time.Second,
		Sleep:       waits.sleep,
		Rand:        func() float64 { return 0.5 },
	}
	client := NewClient(ClientConfig{
		HTTPClient:  server.Client(),
		BaseURL:     server.URL,
		MinInterval: -1,
		Retry:       &policy,
		Logger:      logging.NewNop(),
	})
	client.rand = func() float64 { return 0.5 }
	return client
}

const scheduledBody = `{"events":[
  {
    "id": 12437786,
    "slug": "arsenal-chelsea",
    "startTimestamp": 1791658800,
    "status": {"code": 0, "type": "notstarted"},
    "homeTeam": {"name": "Arsenal", "shortName": "Arsenal", "fieldTranslations": {"nameTranslation": {"ru": "Арсенал", "ar": "آرسنال"}}},
    "awayTeam": {"name": "Chelsea", "shortName": "Chelsea"}
  },
  {"id": 0, "slug": "broken"}
]}`

func TestClient_ScheduledEvents_ParsesNamesAndCachesPerDate(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/sport/football/scheduled-events/2026-10-10" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("User-Agent") == "" || r.Header.Get("Referer") != "https://www.sofascore.com/" || r.Header.Get("Origin") == "" {
			t.Errorf("browser headers missing: %v", r.Header)
		}
		_, _ = w.Write([]byte(scheduledBody))
	}))
	defer server.Close()

	client := newTestClient(t, server, &recordedWaits{})
	ctx := context.Background()

	events, err := client.ScheduledEvents(ctx, "2026-10-10")
	if err != nil {
		t.Fatalf("scheduled events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected the id-less event to be dropped, got %d", len(events))
	}
	ev := events[0]
	if ev.ID != 12437786 || ev.Slug != "arsenal-chelsea" || ev.StartTimestamp != 1791658800 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if len(ev.HomeNames) != 4 || ev.HomeNames[0] != "Arsenal" || ev.HomeNames[2] != "آرسنال" {
		t.Fatalf("expected name, short name and sorted translations, got %v", ev.HomeNames)
	}

	if _, err := client.ScheduledEvents(ctx, "2026-10-10"); err != nil {
		t.Fatalf("cached lookup: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one upstream call per date, got %d", calls.Load())
	}

	if _, err := client.ScheduledEvents(ctx, "10/10/2026"); !errors.Is(err, usecase.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for a malformed date, got %v", err)
	}
}

func TestClient_EventDetailAndStatistics(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/event/77":
			_, _ = w.Write([]byte(`{"event":{"id":77,"status":{"code":100,"type":"finished"},"homeScore":{"current":2},"awayScore":{"current":1}}}`))
		case "/event/77/statistics":
			_, _ = w.Write([]byte(`{"statistics":[{"period":"ALL","groups":[{"groupName":"Match overview","statisticsItems":[
				{"key":"ballPossession","name":"Ball possession","home":"58%","away":"42%","homeValue":58,"awayValue":42},
				{"key":"expectedGoals","name":"Expected goals","home":"1.42","away":"0.61","homeValue":1.42,"awayValue":0.61}
			]}]}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server, &recordedWaits{})
	ctx := context.Background()

	detail, err := client.EventDetail(ctx, 77)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if !detail.Finished() || *detail.HomeScore != 2 || *detail.AwayScore != 1 || detail.StatusCode != 100 {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	stats, err := client.EventStatistics(ctx, 77)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	items := stats.Periods[0].Groups[0].Items
	if stats.Periods[0].Period != "ALL" || len(items) != 2 || items[1].Key != "expectedGoals" || *items[1].AwayValue != 0.61 {
		t.Fatalf("unexpected statistics: %+v", stats)
	}

	if _, err := client.EventDetail(ctx, 78); !errors.Is(err, usecase.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_ForbiddenWaitsFiveSecondsPlusJitter(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"event":{"id":5,"status":{"type":"inprogress"}}}`))
	}))
	defer server.Close()

	waits := &recordedWaits{}
	client := newTestClient(t, server, waits)
	if _, err := client.EventDetail(context.Background(), 5); err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(waits.waits) != 1 || waits.waits[0] != 6750*time.Millisecond {
		t.Fatalf("expected a single 5s+1.75s wait, got %v", waits.waits)
	}
}

func TestClient_ServerErrorsBackOffExponentially(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	waits := &recordedWaits{}
	client := newTestClient(t, server, waits)
	_, err := client.EventStatistics(context.Background(), 9)
	if err == nil {
		t.Fatalf("expected failure after exhausting retries")
	}
	if calls.Load() != 5 {
		t.Fatalf("expected five attempts, got %d", calls.Load())
	}
	want := []time.Duration{1500 * time.Millisecond, 2500 * time.Millisecond, 4500 * time.Millisecond, 8500 * time.Millisecond}
	if len(waits.waits) != len(want) {
		t.Fatalf("unexpected waits: %v", waits.waits)
	}
	for i := range want {
		if waits.waits[i] != want[i] {
			t.Fatalf("wait %d = %s want %s", i, waits.waits[i], want[i])
		}
	}
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t, server, &recordedWaits{})
	if _, err := client.EventStatistics(context.Background(), 9); err == nil {
		t.Fatalf("expected an error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestNewClient_TimeoutAppliedWithoutMutatingInjectedClient(t *testing.T) {
	t.Parallel()

	shared := &http.Client{Timeout: 3 * time.Second}

	client := NewClient(ClientConfig{HTTPClient: shared, Timeout: 9 * time.Second, Logger: logging.NewNop()})
	if client.httpClient.Timeout != 9*time.Second {
		t.Fatalf("configured timeout must apply, got %s", client.httpClient.Timeout)
	}
	if shared.Timeout != 3*time.Second {
		t.Fatalf("injected client must be left untouched, timeout=%s", shared.Timeout)
	}

	kept := NewClient(ClientConfig{HTTPClient: shared, Logger: logging.NewNop()})
	if kept.httpClient.Timeout != 3*time.Second {
		t.Fatalf("injected timeout must be kept when none is configured, got %s", kept.httpClient.Timeout)
	}
}
