// Package twitter is the trend producer: recent, high-engagement Premier League tweets from twitterapi.io.
package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/deusflow/banterbot/internal/logger"
	"github.com/deusflow/banterbot/internal/retry"
	"github.com/deusflow/banterbot/internal/topics"
)

const (
	DefaultBaseURL = "https://api.twitterapi.io"
	searchPath     = "/twitter/tweet/advanced_search"
	createdLayout  = "Mon Jan 02 15:04:05 -0700 2006"
	maxTextRunes   = 300
	dedupPrefix    = 100
)

type Config struct {
	APIKey     string
	BaseURL    string
	Queries    []string
	MaxResults int
	MaxAge     time.Duration
	QueryDelay time.Duration
	Timeout    time.Duration
	Retry      retry.RetryConfig
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
	now  func() time.Time
}

var _ topics.Producer = (*Client)(nil)

func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 40
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 72 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	log = logger.OrDefault(log).With("component", "twitter")
	cfg.Retry.Logger = log
	cfg.Retry.Op = "twitter search"
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
		now:  time.Now,
	}
}

type searchResponse struct {
	Tweets []tweet `json:"tweets"`
}

type tweet struct {
	Text         string `json:"text"`
	URL          string `json:"url"`
	TwitterURL   string `json:"twitterUrl"`
	CreatedAt    string `json:"createdAt"`
	IsReply      bool   `json:"isReply"`
	LikeCount    int    `json:"likeCount"`
	RetweetCount int    `json:"retweetCount"`
	QuoteCount   int    `json:"quoteCount"`
	ViewCount    int    `json:"viewCount"`
	Author       struct {
		UserName       string `json:"userName"`
		Name           string `json:"name"`
		IsBlueVerified bool   `json:"isBlueVerified"`
	} `json:"author"`
}

type candidate struct {
	tweet
	text       string
	engagement int
}

// Fetch runs every configured query and returns unique tweets ranked by engagement.
// A missing API key yields an empty list.
func (c *Client) Fetch(ctx context.Context) ([]topics.RawRecord, error) {
	if c.cfg.APIKey == "" {
		c.log.Warn("TWITTER_API_KEY not configured, skipping trend fetch")
		return nil, nil
	}

	var all []candidate
	failed := 0
	for i, q := range c.cfg.Queries {
		if i > 0 && c.cfg.QueryDelay > 0 {
			select {
			case <-ctx.Done():
				return c.finish(all), nil
			case <-time.After(c.cfg.QueryDelay):
			}
		}

		var resp searchResponse
		err := retry.WithRetry(ctx, c.cfg.Retry, func() error {
			var err error
			resp, err = c.search(ctx, q)
			return err
		})
		if err != nil {
			c.log.Warn("search failed", "query", q, "error", err)
			failed++
			continue
		}
		c.log.Info("search done", "query", q, "tweets", len(resp.Tweets))

		for _, tw := range resp.Tweets {
			if tw.IsReply || !c.isRecent(tw.CreatedAt) {
				continue
			}
			text := truncate(strings.TrimSpace(tw.Text), maxTextRunes)
			all = append(all, candidate{
				tweet:      tw,
				text:       text,
				engagement: tw.LikeCount + tw.RetweetCount + tw.QuoteCount,
			})
		}
	}

	if failed > 0 && failed == len(c.cfg.Queries) {
		return nil, fmt.Errorf("all %d twitter queries failed", failed)
	}
	return c.finish(all), nil
}

func (c *Client) search(ctx context.Context, query string) (searchResponse, error) {
	var out searchResponse

	params := url.Values{}
	params.Set("queryType", "Latest")
	params.Set("query", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+searchPath+"?"+params.Encode(), nil)
	if err != nil {
		return out, retry.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("X-API-Key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return out, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("twitter api error: %s", resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return out, retry.Permanent(err)
		}
		return out, err
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, retry.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return out, nil
}

// finish dedups on the lowercased text prefix, orders by engagement and assigns ranks.
func (c *Client) finish(all []candidate) []topics.RawRecord {
	seen := make(map[string]struct{}, len(all))
	unique := make([]candidate, 0, len(all))
	for _, cand := range all {
		key := strings.ToLower(truncate(cand.text, dedupPrefix))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, cand)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].engagement > unique[j].engagement
	})
	if len(unique) > c.cfg.MaxResults {
		unique = unique[:c.cfg.MaxResults]
	}

	out := make([]topics.RawRecord, 0, len(unique))
	for i, cand := range unique {
		link := cand.URL
		if link == "" {
			link = cand.TwitterURL
		}
		out = append(out, topics.RawRecord{
			"text":        cand.text,
			"engagement":  cand.engagement,
			"url":         link,
			"source":      "twitter",
			"rank":        i + 1,
			"created_at":  cand.CreatedAt,
			"author":      cand.Author.UserName,
			"views":       cand.ViewCount,
			"is_verified": cand.Author.IsBlueVerified,
		})
	}
	c.log.Info("trend fetch done", "unique", len(out))
	return out
}

// isRecent treats missing or unparsable timestamps as recent.
func (c *Client) isRecent(createdAt string) bool {
	if createdAt == "" {
		return true
	}
	ts, err := time.Parse(createdLayout, createdAt)
	if err != nil {
		return true
	}
	return c.now().Sub(ts) < c.cfg.MaxAge
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
