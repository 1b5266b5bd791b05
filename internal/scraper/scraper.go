package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/banterbot/internal/logger"
)

// StripHTML returns the visible text of an HTML fragment with whitespace collapsed.
// Plain text passes through unchanged apart from whitespace.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapse(s)
	}
	doc.Find("script, style, noscript").Remove()
	return collapse(doc.Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Client fetches article pages to recover a lead paragraph for news items without a summary.
type Client struct {
	http     *http.Client
	log      *slog.Logger
	maxPages int
	pause    time.Duration
}

func NewClient(timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		log:      logger.OrDefault(log),
		maxPages: 5,
		pause:    500 * time.Millisecond,
	}
}

// Lead returns a short description of the page at url.
func (c *Client) Lead(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; banterbot/1.0)")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("load page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse HTML: %w", err)
	}

	lead := extractLead(doc, url)
	if lead == "" {
		return "", fmt.Errorf("no lead found")
	}
	return lead, nil
}

// FillMissing returns leads keyed by url for up to maxPages urls, pausing between fetches.
// Failures are logged and skipped.
func (c *Client) FillMissing(ctx context.Context, urls []string) map[string]string {
	out := make(map[string]string)
	for i, u := range urls {
		if i >= c.maxPages || ctx.Err() != nil {
			break
		}
		if i > 0 && c.pause > 0 {
			select {
			case <-ctx.Done():
				return out
			case <-time.After(c.pause):
			}
		}
		lead, err := c.Lead(ctx, u)
		if err != nil {
			c.log.Debug("lead extraction failed", "url", u, "error", err)
			continue
		}
		out[u] = lead
	}
	return out
}

func extractLead(doc *goquery.Document, url string) string {
	for _, sel := range []string{`meta[property="og:description"]`, `meta[name="description"]`, `meta[name="twitter:description"]`} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			if v = collapse(v); v != "" {
				return v
			}
		}
	}
	return firstParagraphs(doc, selectorsFor(url), 2)
}

// selectorsFor picks body selectors for known football outlets.
func selectorsFor(url string) []string {
	switch {
	case strings.Contains(url, "bbc.co.uk"), strings.Contains(url, "bbc.com"):
		return []string{`[data-component="text-block"] p`, "article p"}
	case strings.Contains(url, "skysports.com"):
		return []string{".sdc-article-body p", "article p"}
	case strings.Contains(url, "theguardian.com"):
		return []string{"#maincontent p", "article p"}
	case strings.Contains(url, "fourfourtwo.com"):
		return []string{"#article-body p", "article p"}
	default:
		return []string{"article p", ".article p", ".content p", ".entry-content p", "main p", "p"}
	}
}

func firstParagraphs(doc *goquery.Document, selectors []string, n int) string {
	for _, selector := range selectors {
		var paragraphs []string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := collapse(s.Text())
			if len(text) > 20 {
				paragraphs = append(paragraphs, text)
			}
			return len(paragraphs) < n
		})
		if len(paragraphs) > 0 {
			return strings.Join(paragraphs, " ")
		}
	}
	return ""
}
