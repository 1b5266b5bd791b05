// Package telegram talks to the Telegram Bot API: progress broadcasts and the command bot.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deusflow/banterbot/internal/logger"
	"github.com/deusflow/banterbot/internal/retry"
)

const DefaultBaseURL = "https://api.telegram.org"

// Telegram rejects messages longer than this many characters.
const maxMessageRunes = 4096

type Config struct {
	Token   string
	BaseURL string
	Timeout time.Duration
	Retry   retry.RetryConfig
}

type Client struct {
	token   string
	baseURL string
	timeout time.Duration
	retry   retry.RetryConfig
	http    *http.Client
	log     *slog.Logger
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true}
	}
	log = logger.OrDefault(log).With("component", "telegram")
	cfg.Retry.Logger = log
	cfg.Retry.Op = "telegram send"
	return &Client{
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		timeout: cfg.Timeout,
		retry:   cfg.Retry,
		http:    &http.Client{},
		log:     log,
	}
}

// SendMessage sends HTML text to a chat with link previews disabled, retrying transient failures.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	payload := map[string]interface{}{
		"chat_id":                  chatID,
		"text":                     clip(text, maxMessageRunes),
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}

	err := retry.WithRetry(ctx, c.retry, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.call(reqCtx, "sendMessage", payload, nil)
	})
	if err != nil {
		return fmt.Errorf("send to %s: %w", chatID, err)
	}
	c.log.Debug("message sent", "chat_id", chatID)
	return nil
}

// GetUpdates long-polls for new messages starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, poll time.Duration) ([]Update, error) {
	payload := map[string]interface{}{
		"offset":          offset,
		"timeout":         int(poll.Seconds()),
		"allowed_updates": []string{"message"},
	}

	reqCtx, cancel := context.WithTimeout(ctx, poll+c.timeout)
	defer cancel()

	var updates []Update
	if err := c.call(reqCtx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Client) call(ctx context.Context, method string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal %s: %w", method, err))
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s read body: %w", method, err)
	}

	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil || !env.OK {
		apiErr := fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode, env.Description)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(apiErr)
		}
		return apiErr
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return retry.Permanent(fmt.Errorf("%s decode result: %w", method, err))
		}
	}
	return nil
}

func chatIDString(id int64) string {
	return strconv.FormatInt(id, 10)
}

// clip shortens HTML-formatted s to at most n runes. The cut never lands inside
// a tag or an entity, and tags left open are closed after the ellipsis.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 {
		kept := safePrefix(r[:cut])
		closers := closeTags(kept)
		if size := len(kept) + 3 + utf8.RuneCountInString(closers); size <= n {
			return string(kept) + "..." + closers
		}
		cut = len(kept) - utf8.RuneCountInString(closers)
	}
	return "..."
}

// safePrefix drops a trailing partial tag or entity.
func safePrefix(r []rune) []rune {
	for i := len(r) - 1; i >= 0; i-- {
		switch r[i] {
		case '>', ';':
			return r
		case '<', '&':
			return r[:i]
		}
	}
	return r
}

// closeTags returns the closing tags for elements still open at the end of r.
func closeTags(r []rune) string {
	var open []string
	s := string(r)
	for {
		start := strings.IndexByte(s, '<')
		if start < 0 {
			break
		}
		end := strings.IndexByte(s[start:], '>')
		if end < 0 {
			break
		}
		tag := s[start+1 : start+end]
		s = s[start+end+1:]
		if strings.HasPrefix(tag, "/") {
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
			continue
		}
		if name, _, _ := strings.Cut(tag, " "); name != "" && !strings.HasSuffix(tag, "/") {
			open = append(open, name)
		}
	}
	var b strings.Builder
	for i := len(open) - 1; i >= 0; i-- {
		b.WriteString("</" + open[i] + ">")
	}
	return b.String()
}
