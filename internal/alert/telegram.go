package alert

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// DefaultSendTimeout bounds one delivery attempt.
const DefaultSendTimeout = 10 * time.Second

// TelegramSink posts alerts to a chat through the Telegram Bot API.
type TelegramSink struct {
	bot     *telego.Bot
	chatID  telego.ChatID
	timeout time.Duration

	wg sync.WaitGroup
}

// TelegramOptions configures a TelegramSink.
type TelegramOptions struct {
	Token  string
	ChatID string

	// APIURL overrides the Bot API server, mostly for tests
	APIURL string

	// HTTPClient replaces the default transport when set
	HTTPClient *http.Client

	Timeout time.Duration
}

// NewTelegramSink creates a new TelegramSink.
func NewTelegramSink(opts TelegramOptions) (*TelegramSink, error) {
	chatID, err := ParseChatID(opts.ChatID)
	if err != nil {
		return nil, err
	}

	botOpts := []telego.BotOption{telego.WithDiscardLogger()}
	if opts.APIURL != "" {
		botOpts = append(botOpts, telego.WithAPIServer(strings.TrimSuffix(opts.APIURL, "/")))
	}
	if opts.HTTPClient != nil {
		botOpts = append(botOpts, telego.WithHTTPClient(opts.HTTPClient))
	}

	bot, err := telego.NewBot(opts.Token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}

	return &TelegramSink{
		bot:     bot,
		chatID:  chatID,
		timeout: timeout,
	}, nil
}

// Send dispatches the alert asynchronously.
// The alert counts as sent once dispatched.
func (s *TelegramSink) Send(text string) {
	id := uuid.NewString()
	slog.Info("alert_dispatched", "alert_id", id, "text", text)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.deliver(id, text); err != nil {
			slog.Error("alert_delivery_failed", "alert_id", id, "error", err)
		}
	}()
}

// deliver performs one send with a bounded timeout.
func (s *TelegramSink) deliver(id, text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	params := tu.Message(s.chatID, text).WithParseMode(telego.ModeHTML)
	if _, err := s.bot.SendMessage(ctx, params); err != nil {
		return &DeliveryError{AlertID: id, Err: err}
	}

	slog.Debug("alert_delivered", "alert_id", id)
	return nil
}

// Close waits for in-flight deliveries or until ctx ends.
func (s *TelegramSink) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("alerts still in flight: %w", ctx.Err())
	}
}

// ParseChatID accepts a numeric chat id or an @channel username.
func ParseChatID(raw string) (telego.ChatID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return telego.ChatID{}, fmt.Errorf("chat id is empty")
	}
	if strings.HasPrefix(raw, "@") {
		return tu.Username(raw), nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return telego.ChatID{}, fmt.Errorf("invalid chat id %q: %w", raw, err)
	}
	return tu.ID(id), nil
}
