package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
	"github.com/riskibarqy/match-odds-engine/internal/usecase"
	"golang.org/x/time/rate"
)

// Minimum gap between two messages to the same chat; Telegram starts
// answering 429 at roughly thirty messages a minute.
const defaultSendInterval = 2 * time.Second

type Config struct {
	Token        string
	ChatID       int64
	APIEndpoint  string
	SendInterval time.Duration
	HTTPClient   *http.Client
	Logger       *logging.Logger
}

// Notifier posts HTML-formatted recommendation messages to one chat.
type Notifier struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	limiter *rate.Limiter
	logger  *logging.Logger
}

// NewNotifier verifies the token with getMe before returning.
func NewNotifier(cfg Config) (*Notifier, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("%w: telegram token and chat id are required", usecase.ErrInvalidInput)
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, httpClient)
	if err != nil {
		return nil, crerr.Wrap(err, "connect telegram bot")
	}
	bot.Debug = false

	interval := cfg.SendInterval
	if interval <= 0 {
		interval = defaultSendInterval
	}
	logger := logging.OrDefault(cfg.Logger).Named("telegram")
	logger.Info("telegram notifier ready", "bot", bot.Self.UserName)

	return &Notifier{
		bot:     bot,
		chatID:  cfg.ChatID,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger,
	}, nil
}

func (n *Notifier) Send(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: empty message", usecase.ErrInvalidInput)
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram pacing: %w", err)
	}

	msg := tgbotapi.NewMessage(n.chatID, message)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	sent, err := n.bot.Send(msg)
	if err != nil {
		var apiErr *tgbotapi.Error
		if crerr.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			return fmt.Errorf("%w: telegram retry after %ds", usecase.ErrRateLimited, apiErr.RetryAfter)
		}
		return crerr.Wrap(err, "send telegram message")
	}
	n.logger.DebugContext(ctx, "telegram message sent", "message_id", sent.MessageID)
	return nil
}
