package topics

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/deusflow/banterbot/internal/scraper"
)

// RawRecord is a producer's untyped view of one topic, as decoded from its API.
type RawRecord map[string]any

var (
	textKeys      = []string{"text", "topic", "title", "headline", "name"}
	summaryKeys   = []string{"summary", "description", "excerpt"}
	sourceKeys    = []string{"source", "provider", "sourceName", "source_name"}
	urlKeys       = []string{"url", "link", "originalUrl", "twitterUrl"}
	publishedKeys = []string{"publishedAt", "published_at", "date", "timestamp", "createdAt", "created_at"}
	engageKeys    = []string{"engagement", "tweet_count", "tweetCount"}
)

const contentSummaryLimit = 200

// Normalize maps the field naming of any supported feed variant onto TopicRecord.
func Normalize(raw RawRecord, origin Origin) TopicRecord {
	rec := TopicRecord{
		Origin:      origin,
		Text:        strings.TrimSpace(raw.firstString(textKeys...)),
		SourceName:  raw.source(),
		URL:         raw.firstString(urlKeys...),
		PublishedAt: raw.firstString(publishedKeys...),
	}

	summary := raw.firstString(summaryKeys...)
	if summary == "" {
		summary = truncateRunes(raw.firstString("content"), contentSummaryLimit)
	}
	rec.Summary = strings.TrimSpace(scraper.StripHTML(summary))

	if v, ok := raw.firstInt(engageKeys...); ok {
		rec.Engagement = intPtr(v)
	} else if origin == OriginTrend {
		if v, ok := raw.engagementFromCounts(); ok {
			rec.Engagement = intPtr(v)
		}
	}
	if v, ok := raw.firstInt("rank", "rank_hint"); ok {
		rec.RankHint = intPtr(v)
	}

	if rec.SourceName == "" {
		if origin == OriginTrend {
			rec.SourceName = "twitter"
		} else {
			rec.SourceName = "Unknown"
		}
	}

	return rec
}

// NormalizeAll applies Normalize to every record in order.
func NormalizeAll(raw []RawRecord, origin Origin) []TopicRecord {
	out := make([]TopicRecord, 0, len(raw))
	for _, r := range raw {
		out = append(out, Normalize(r, origin))
	}
	return out
}

func (r RawRecord) firstString(keys ...string) string {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		if s := stringValue(v); s != "" {
			return s
		}
	}
	return ""
}

func (r RawRecord) source() string {
	for _, k := range sourceKeys {
		switch v := r[k].(type) {
		case map[string]any:
			if name, ok := v["name"].(string); ok && strings.TrimSpace(name) != "" {
				return strings.TrimSpace(name)
			}
		case string:
			if strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

func (r RawRecord) firstInt(keys ...string) (int, bool) {
	for _, k := range keys {
		if v, ok := intValue(r[k]); ok {
			return v, true
		}
	}
	return 0, false
}

func (r RawRecord) engagementFromCounts() (int, bool) {
	total, found := 0, false
	for _, k := range []string{"likeCount", "retweetCount", "quoteCount"} {
		if v, ok := intValue(r[k]); ok {
			total += v
			found = true
		}
	}
	return total, found
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int, int64:
		return fmt.Sprint(t)
	default:
		return ""
	}
}

// intValue accepts JSON numbers, Go ints and numeric strings.
func intValue(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int(math.Round(t)), true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i), true
		}
		if f, err := t.Float64(); err == nil {
			return int(math.Round(f)), true
		}
	case string:
		s := strings.TrimSpace(t)
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int(math.Round(f)), true
		}
	}
	return 0, false
}
