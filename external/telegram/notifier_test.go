package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
	"github.com/riskibarqy/match-odds-engine/internal/usecase"
)

type fakeBotServer struct {
	mu       sync.Mutex
	sent     []map[string]string
	failSend string
}

func (f *fakeBotServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Odds","username":"odds_bot"}}`))
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		_ = r.ParseForm()
		f.mu.Lock()
		f.sent = append(f.sent, map[string]string{
			"chat_id":    r.PostForm.Get("chat_id"),
			"text":       r.PostForm.Get("text"),
			"parse_mode": r.PostForm.Get("parse_mode"),
		})
		fail := f.failSend
		f.mu.Unlock()
		if fail != "" {
			_, _ = w.Write([]byte(fail))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":42,"date":0,"chat":{"id":-100,"type":"channel"}}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestNotifier(t *testing.T, fake *fakeBotServer) *Notifier {
	t.Helper()

	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	n, err := NewNotifier(Config{
		Token:        "123:abc",
		ChatID:       -100,
		APIEndpoint:  server.URL + "/bot%s/%s",
		SendInterval: time.Millisecond,
		HTTPClient:   server.Client(),
		Logger:       logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	return n
}

func TestNotifier_SendsHTMLMessage(t *testing.T) {
	t.Parallel()

	fake := &fakeBotServer{}
	n := newTestNotifier(t, fake)

	if err := n.Send(context.Background(), "<b>Arsenal vs Chelsea</b>"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fake.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(fake.sent))
	}
	got := fake.sent[0]
	if got["chat_id"] != "-100" || got["parse_mode"] != "HTML" || got["text"] != "<b>Arsenal vs Chelsea</b>" {
		t.Fatalf("unexpected payload: %v", got)
	}
}

func TestNotifier_RateLimitedResponse(t *testing.T) {
	t.Parallel()

	fake := &fakeBotServer{failSend: `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":7}}`}
	n := newTestNotifier(t, fake)

	if err := n.Send(context.Background(), "hello"); !errors.Is(err, usecase.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestNewNotifier_RequiresTokenAndChat(t *testing.T) {
	t.Parallel()

	if _, err := NewNotifier(Config{Token: "x"}); !errors.Is(err, usecase.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
