// Package telegram delivers store alerts through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/storewatch/internal/entity"
	"github.com/user/storewatch/internal/repository"
)

const (
	DefaultAPIURL = "https://api.telegram.org"

	maxDeadListed   = 10
	maxChangeListed = 5
	sendTimeout     = 10 * time.Second
	footerLayout    = "2006-01-02 15:04:05 MST"
)

// Config holds the bot credentials. Either field empty disables sending.
type Config struct {
	BotToken string
	ChatID   string
	APIURL   string
	Location *time.Location
}

// Notifier sends HTML formatted messages to one chat.
type Notifier struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

var _ repository.ChangeNotifier = (*Notifier)(nil)

// New creates a notifier. A nil client gets a default one.
func New(cfg Config, client *http.Client, logger *zap.Logger) *Notifier {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if client == nil {
		client = &http.Client{Timeout: sendTimeout}
	}
	n := &Notifier{cfg: cfg, client: client, logger: logger, now: time.Now}
	if !n.Enabled() {
		logger.Warn("telegram notifications disabled: bot token or chat id not set")
	}
	return n
}

// WithClock replaces the clock used for message footers.
func (n *Notifier) WithClock(now func() time.Time) *Notifier {
	n.now = now
	return n
}

// Enabled reports whether credentials are present.
func (n *Notifier) Enabled() bool {
	return n.cfg.BotToken != "" && n.cfg.ChatID != ""
}

// NotifyDead announces newly dead stores.
func (n *Notifier) NotifyDead(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	if !n.Enabled() {
		return repository.ErrNotConfigured
	}
	return n.send(ctx, n.formatDead(urls))
}

// NotifyChanges announces status transitions grouped by kind. Transitions
// outside the DEAD, recovered and UNPAID groups are listed under other changes.
func (n *Notifier) NotifyChanges(ctx context.Context, changes []entity.StatusChange) error {
	if len(changes) == 0 {
		return nil
	}
	if !n.Enabled() {
		return repository.ErrNotConfigured
	}
	return n.send(ctx, n.formatChanges(changes))
}

// TestConnection sends a short confirmation message.
func (n *Notifier) TestConnection(ctx context.Context) error {
	if !n.Enabled() {
		return repository.ErrNotConfigured
	}
	return n.send(ctx, "✅ Telegram notification is working!\n\nStore monitor is connected.")
}

func (n *Notifier) formatDead(urls []string) string {
	var b strings.Builder
	b.WriteString("🔴 <b>New DEAD Stores Detected</b>\n\n")
	fmt.Fprintf(&b, "Found %d newly dead store(s):\n\n", len(urls))
	for i, u := range urls {
		if i == maxDeadListed {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, html.EscapeString(u))
	}
	if len(urls) > maxDeadListed {
		fmt.Fprintf(&b, "\n... and %d more", len(urls)-maxDeadListed)
	}
	b.WriteString(n.footer())
	return b.String()
}

func (n *Notifier) formatChanges(changes []entity.StatusChange) string {
	var toDead, recovered, toUnpaid, other []string
	for _, c := range changes {
		switch {
		case c.ToStatus == entity.StatusDead:
			toDead = append(toDead, c.URL)
		case c.ToStatus == entity.StatusLive && c.FromStatus == entity.StatusDead:
			recovered = append(recovered, c.URL)
		case c.ToStatus == entity.StatusUnpaid:
			toUnpaid = append(toUnpaid, c.URL)
		default:
			other = append(other, fmt.Sprintf("%s (%s → %s)", c.URL, c.FromStatus, c.ToStatus))
		}
	}

	var b strings.Builder
	b.WriteString("🔄 <b>Store Status Changes</b>\n\n")
	writeGroup(&b, "🔴 Newly DEAD", toDead)
	writeGroup(&b, "🟢 Recovered to LIVE", recovered)
	writeGroup(&b, "🟡 Now UNPAID", toUnpaid)
	writeGroup(&b, "⚪ Other changes", other)
	b.WriteString(n.footer())
	return b.String()
}

func writeGroup(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s (%d):\n", title, len(items))
	for i, item := range items {
		if i == maxChangeListed {
			break
		}
		fmt.Fprintf(b, "• %s\n", html.EscapeString(item))
	}
	if len(items) > maxChangeListed {
		fmt.Fprintf(b, "... and %d more\n", len(items)-maxChangeListed)
	}
	b.WriteString("\n")
}

func (n *Notifier) footer() string {
	return "\n\n⏰ " + n.now().In(n.cfg.Location).Format(footerLayout)
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (n *Notifier) send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: n.cfg.ChatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.cfg.APIURL, n.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		// The request URL carries the token; keep it out of the error.
		return fmt.Errorf("send telegram message: %w", redactToken(err, n.cfg.BotToken))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send telegram message: unexpected status %d", resp.StatusCode)
	}
	return nil
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }

func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<token>"), err: err}
}
