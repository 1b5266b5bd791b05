// Package newsapi is the primary news producer backed by RapidAPI football news aggregators.
package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/banterbot/internal/logger"
	"github.com/deusflow/banterbot/internal/retry"
	"github.com/deusflow/banterbot/internal/topics"
)

const (
	PrimaryHost = "football-news-aggregator-live.p.rapidapi.com"
	AltHost     = "football-news1.p.rapidapi.com"

	primaryPath = "/news/fourfourtwo/epl"
	altPath     = "/news/premierleague"
)

// LeadFiller supplies article leads for urls whose listing had no summary.
type LeadFiller interface {
	FillMissing(ctx context.Context, urls []string) map[string]string
}

type Config struct {
	APIKey     string
	BaseURL    string // defaults to https://PrimaryHost
	AltBaseURL string // defaults to https://AltHost
	MaxResults int
	Timeout    time.Duration
	// LeadBudget caps lead scraping within one Fetch. Defaults to 10s.
	LeadBudget time.Duration
	Retry      retry.RetryConfig
}

type endpoint struct {
	base, host, path string
	listKeys         []string
}

type Client struct {
	cfg     Config
	primary endpoint
	alt     endpoint
	http    *http.Client
	leads   LeadFiller
	log     *slog.Logger
}

var _ topics.Producer = (*Client)(nil)

// NewClient builds the producer. leads may be nil.
func NewClient(cfg Config, leads LeadFiller, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://" + PrimaryHost
	}
	if cfg.AltBaseURL == "" {
		cfg.AltBaseURL = "https://" + AltHost
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 30
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.LeadBudget <= 0 {
		cfg.LeadBudget = 10 * time.Second
	}
	log = logger.OrDefault(log).With("component", "newsapi")
	cfg.Retry.Logger = log
	cfg.Retry.Op = "news fetch"
	return &Client{
		cfg:     cfg,
		primary: endpoint{base: cfg.BaseURL, host: PrimaryHost, path: primaryPath, listKeys: []string{"data", "articles", "news"}},
		alt:     endpoint{base: cfg.AltBaseURL, host: AltHost, path: altPath, listKeys: []string{"result"}},
		http:    &http.Client{Timeout: cfg.Timeout},
		leads:   leads,
		log:     log,
	}
}

// Fetch returns up to MaxResults unique headlines, trying the alternative aggregator
// when the primary one fails. A missing key yields an empty list.
func (c *Client) Fetch(ctx context.Context) ([]topics.RawRecord, error) {
	if c.cfg.APIKey == "" {
		c.log.Warn("RAPIDAPI_KEY not configured, skipping news fetch")
		return nil, nil
	}

	articles, err := c.fetchEndpoint(ctx, c.primary)
	if err != nil {
		c.log.Warn("primary news api failed, trying alternative", "error", err)
		articles, err = c.fetchEndpoint(ctx, c.alt)
		if err != nil {
			return nil, fmt.Errorf("news apis failed: %w", err)
		}
	}

	recs := dedupTitles(articles, c.cfg.MaxResults)
	c.fillLeads(ctx, recs)
	c.log.Info("news fetch done", "articles", len(recs))
	return recs, nil
}

func (c *Client) fetchEndpoint(ctx context.Context, ep endpoint) ([]topics.RawRecord, error) {
	var out []topics.RawRecord
	err := retry.WithRetry(ctx, c.cfg.Retry, func() error {
		var err error
		out, err = c.get(ctx, ep)
		return err
	})
	return out, err
}

func (c *Client) get(ctx context.Context, ep endpoint) ([]topics.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.base+ep.path, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("X-RapidAPI-Key", c.cfg.APIKey)
	req.Header.Set("X-RapidAPI-Host", ep.host)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%s: status %s", ep.host, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}

	articles, err := decodeArticles(body, ep.listKeys)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("%s: %w", ep.host, err))
	}
	return articles, nil
}

// decodeArticles accepts either a bare JSON array or an object wrapping one under listKeys.
func decodeArticles(body []byte, listKeys []string) ([]topics.RawRecord, error) {
	var list []topics.RawRecord
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	for _, k := range listKeys {
		raw, ok := wrapped[k]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode %q: %w", k, err)
		}
		return list, nil
	}
	return nil, nil
}

func dedupTitles(articles []topics.RawRecord, limit int) []topics.RawRecord {
	seen := make(map[string]struct{}, len(articles))
	out := make([]topics.RawRecord, 0, len(articles))
	for _, a := range articles {
		if a == nil {
			continue
		}
		title := strings.TrimSpace(topics.Normalize(a, topics.OriginNews).Text)
		if title == "" {
			continue
		}
		key := strings.ToLower(title)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (c *Client) fillLeads(ctx context.Context, recs []topics.RawRecord) {
	if c.leads == nil {
		return
	}
	var urls []string
	for _, r := range recs {
		n := topics.Normalize(r, topics.OriginNews)
		if n.Summary == "" && n.URL != "" {
			urls = append(urls, n.URL)
		}
	}
	if len(urls) == 0 {
		return
	}
	leadCtx, cancel := context.WithTimeout(ctx, c.cfg.LeadBudget)
	defer cancel()
	leads := c.leads.FillMissing(leadCtx, urls)
	for _, r := range recs {
		n := topics.Normalize(r, topics.OriginNews)
		if lead, ok := leads[n.URL]; ok && n.Summary == "" {
			r["summary"] = lead
		}
	}
}
