package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Telegram sends trigger notifications via the Telegram Bot API.
// Kept close to the teacher's TelegramNotifier (MarkdownV2 escaping,
// plain net/http POST), with the message body reformatted around a
// NotificationEvent instead of a generic Alert.
type Telegram struct {
	botToken string
	chatID   string
	client   *http.Client
	log      *slog.Logger
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(botToken, chatID string, log *slog.Logger) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

func (t *Telegram) Send(ctx context.Context, ev NotificationEvent) error {
	text := formatMessage(ev)

	body, err := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "MarkdownV2",
	})
	if err != nil {
		return fmt.Errorf("notify: marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send telegram: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify: telegram status %d", resp.StatusCode)
	}

	t.log.Debug("telegram notification sent", "symbol", ev.Symbol, "filter", ev.FilterName)
	return nil
}

func formatMessage(ev NotificationEvent) string {
	emoji := "📈"
	if ev.Data.PriceChangePercent != nil && *ev.Data.PriceChangePercent < 0 {
		emoji = "📉"
	}
	if ev.FilterType == "volume_spike" {
		emoji = "🔊"
	}

	lines := []string{
		fmt.Sprintf("%s *%s*", emoji, escapeMarkdown(ev.Symbol)),
		escapeMarkdown(fmt.Sprintf("filter: %s", ev.FilterName)),
	}
	if ev.Data.PriceChangePercent != nil {
		lines = append(lines, escapeMarkdown(fmt.Sprintf("price change: %.2f%%", *ev.Data.PriceChangePercent)))
	}
	if ev.Data.SpikeCoefficient != nil {
		lines = append(lines, escapeMarkdown(fmt.Sprintf("volume spike: %.1fx average", *ev.Data.SpikeCoefficient)))
	}
	if ev.URL != "" {
		lines = append(lines, escapeMarkdown(ev.URL))
	}

	out := lines[0]
	for _, l := range lines[1:] {
		out += "\n" + l
	}
	return out
}

// escapeMarkdown escapes Telegram MarkdownV2 reserved characters.
func escapeMarkdown(s string) string {
	specials := []byte{'_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!'}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		for _, sp := range specials {
			if s[i] == sp {
				buf.WriteByte('\\')
				break
			}
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
