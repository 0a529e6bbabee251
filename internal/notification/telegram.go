package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"supertrend-engine/internal/markethours"
	"supertrend-engine/internal/model"
)

const telegramAPI = "https://api.telegram.org"

var markdownEscaper = strings.NewReplacer(
	"_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`, "~", `\~`, "`", "\\`",
	">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`, "=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`,
	".", `\.`, "!", `\!`,
)

// TelegramNotifier posts signals and operational alerts to one chat through
// the Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  telegramAPI,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	text := alertText(alert)
	if alert.Signal != nil {
		text = signalText(*alert.Signal)
	}
	body, err := json.Marshal(map[string]interface{}{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               "MarkdownV2",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("telegram: encode: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var tr telegramResponse
		if json.NewDecoder(resp.Body).Decode(&tr) == nil && tr.Description != "" {
			return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, tr.Description)
		}
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[telegram] sent %s", alert.Title)
	return nil
}

// signalText renders a signal as a short trade card.
func signalText(sig model.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* %s\n", signalEmoji(sig.Kind), escapeMarkdown(string(sig.Kind)), escapeMarkdown(sig.Symbol))
	fmt.Fprintf(&b, "LTP: `%.2f`\n", sig.LastPrice)
	fmt.Fprintf(&b, "Time: %s IST\n", escapeMarkdown(sig.TS.In(markethours.IST).Format("02 Jan 15:04:05")))
	if sig.Reason != "" {
		fmt.Fprintf(&b, "_%s_\n", escapeMarkdown(sig.Reason))
	}
	fmt.Fprintf(&b, "token %s", escapeMarkdown(sig.Instrument))
	return b.String()
}

func signalEmoji(kind model.SignalKind) string {
	k := string(kind)
	switch {
	case strings.HasSuffix(k, "-buy"):
		return "🟢"
	case strings.HasSuffix(k, "-sell"):
		return "🔴"
	case strings.HasSuffix(k, "-up"), kind == model.SignalDayHighBreakout:
		return "📈"
	default:
		return "📉"
	}
}

func alertText(alert Alert) string {
	emoji := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		emoji = "⚠️"
	case AlertCritical:
		emoji = "🚨"
	}
	return fmt.Sprintf("%s *%s*\n\n%s", emoji, escapeMarkdown(alert.Title), escapeMarkdown(alert.Message))
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }
