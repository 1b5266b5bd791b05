package topics

import (
	"context"
	"sync"

	"github.com/deusflow/banterbot/internal/logger"
)

type fakeOracle struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeOracle) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func (f *fakeOracle) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type countingObserver struct {
	mu        sync.Mutex
	calls     map[string]int
	fallbacks map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{calls: map[string]int{}, fallbacks: map[string]int{}}
}

func (o *countingObserver) OracleCall(stage, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls[stage+"/"+outcome]++
}

func (o *countingObserver) Fallback(stage string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks[stage]++
}

func newTestRanker(o Oracle, opts ...Option) *Ranker {
	return NewRanker(o, append([]Option{WithLogger(logger.Discard())}, opts...)...)
}

func topic(text string) TopicRecord {
	return TopicRecord{Text: text, Origin: OriginTrend, SourceName: "twitter"}
}

func scoredTopic(text string, score int) TopicRecord {
	t := topic(text)
	t.Score = score
	return t
}

func texts(ts []TopicRecord) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Text
	}
	return out
}
