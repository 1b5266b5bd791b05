package topics

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"github.com/deusflow/banterbot/internal/logger"
)

// Oracle is the generative backend: prompt in, free text out.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, prompt string) (string, error)

func (f OracleFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Observer receives stage outcomes. Implementations must be safe for concurrent use.
type Observer interface {
	OracleCall(stage, outcome string)
	Fallback(stage string)
}

type nopObserver struct{}

func (nopObserver) OracleCall(string, string) {}
func (nopObserver) Fallback(string)           {}

// Stage names reported to the Observer.
const (
	StageFilter  = "filter"
	StageScore   = "score"
	StageScripts = "scripts"
)

// Oracle call outcomes reported to the Observer.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeUnparsed = "unparsed"
)

var (
	indexListPattern = regexp.MustCompile(`\[[\d,\s]*\]`)
	jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)
)

// Ranker runs the oracle-backed stages: relevance filter, scorer and script generator.
type Ranker struct {
	oracle   Oracle
	timeout  time.Duration
	style    string
	log      *slog.Logger
	observer Observer
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithTimeout bounds each oracle call.
func WithTimeout(d time.Duration) Option {
	return func(r *Ranker) { r.timeout = d }
}

// WithScriptStyle sets the style text pasted into the script prompt.
func WithScriptStyle(style string) Option {
	return func(r *Ranker) { r.style = style }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Ranker) { r.log = l }
}

// WithObserver sets the stage outcome observer.
func WithObserver(o Observer) Option {
	return func(r *Ranker) {
		if o != nil {
			r.observer = o
		}
	}
}

func NewRanker(oracle Oracle, opts ...Option) *Ranker {
	r := &Ranker{
		oracle:   oracle,
		timeout:  60 * time.Second,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logger.OrDefault(r.log)
	return r
}

// complete calls the oracle under the per-call timeout. A nil oracle is an error.
func (r *Ranker) complete(ctx context.Context, prompt string) (string, error) {
	if r.oracle == nil {
		return "", errNoOracle
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.oracle.Complete(ctx, prompt)
}
