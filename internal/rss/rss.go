// Package rss is the fallback news producer: Premier League headlines from configured RSS feeds.
package rss

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/banterbot/internal/logger"
	"github.com/deusflow/banterbot/internal/topics"
)

// FeedsConfig is the YAML layout of the feeds file:
//
//	feeds:
//	  - https://...
type FeedsConfig struct {
	Feeds []string `yaml:"feeds"`
}

// LoadFeeds reads the feed URL list from a YAML file.
func LoadFeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg.Feeds, nil
}

type Source struct {
	feeds      []string
	maxResults int
	parser     *gofeed.Parser
	log        *slog.Logger
}

var _ topics.Producer = (*Source)(nil)

// NewSource builds a producer over feeds. maxResults <= 0 means 30.
func NewSource(feeds []string, maxResults int, timeout time.Duration, log *slog.Logger) *Source {
	if maxResults <= 0 {
		maxResults = 30
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	p := gofeed.NewParser()
	p.Client = &http.Client{Timeout: timeout}
	return &Source{
		feeds:      feeds,
		maxResults: maxResults,
		parser:     p,
		log:        logger.OrDefault(log).With("component", "rss"),
	}
}

// Fetch parses every feed, newest items first. A broken feed is logged and skipped;
// only when every feed fails is an error returned.
func (s *Source) Fetch(ctx context.Context) ([]topics.RawRecord, error) {
	if len(s.feeds) == 0 {
		return nil, nil
	}

	type entry struct {
		rec       topics.RawRecord
		published time.Time
	}
	var items []entry
	seen := make(map[string]struct{})
	ok := 0

	for _, u := range s.feeds {
		feed, err := s.parser.ParseURLWithContext(u, ctx)
		if err != nil {
			s.log.Warn("feed parse failed", "url", u, "error", err)
			continue
		}
		ok++
		s.log.Debug("feed loaded", "url", u, "items", len(feed.Items))

		for _, it := range feed.Items {
			title := strings.TrimSpace(it.Title)
			key := strings.ToLower(title)
			if title == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			var published time.Time
			if it.PublishedParsed != nil {
				published = *it.PublishedParsed
			} else if it.UpdatedParsed != nil {
				published = *it.UpdatedParsed
			}
			rec := topics.RawRecord{
				"title":       title,
				"description": it.Description,
				"content":     it.Content,
				"link":        it.Link,
				"source":      feed.Title,
			}
			if !published.IsZero() {
				rec["publishedAt"] = published.Format(time.RFC3339)
			}
			items = append(items, entry{rec: rec, published: published})
		}
	}

	s.log.Info("feeds processed", "ok", ok, "total", len(s.feeds), "items", len(items))
	if ok == 0 {
		return nil, fmt.Errorf("all %d feeds failed", len(s.feeds))
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].published.After(items[j].published)
	})
	if len(items) > s.maxResults {
		items = items[:s.maxResults]
	}
	out := make([]topics.RawRecord, len(items))
	for i, e := range items {
		out[i] = e.rec
	}
	return out, nil
}

// Fallback yields primary's records, or fallback's when primary fails or comes back empty.
func Fallback(primary, fallback topics.Producer, log *slog.Logger) topics.Producer {
	log = logger.OrDefault(log)
	return topics.ProducerFunc(func(ctx context.Context) ([]topics.RawRecord, error) {
		if primary != nil {
			recs, err := primary.Fetch(ctx)
			if err == nil && len(recs) > 0 {
				return recs, nil
			}
			if err != nil {
				log.Warn("primary news source failed, using RSS", "error", err)
			} else {
				log.Info("primary news source empty, using RSS")
			}
		}
		if fallback == nil {
			return nil, nil
		}
		return fallback.Fetch(ctx)
	})
}
