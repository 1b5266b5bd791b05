package topics

import (
	"fmt"
	"strings"
	"time"
)

// TopN is the length of the ranked summary kept on a result.
const TopN = 10

const summaryLines = 5

// State is a pipeline run's position in the stage machine.
type State string

const (
	StateCollecting        State = "COLLECTING"
	StateMerging           State = "MERGING"
	StateFiltering         State = "FILTERING"
	StateTerminatedEmpty   State = "TERMINATED_EMPTY"
	StateScoring           State = "SCORING"
	StateSelecting         State = "SELECTING"
	StateGeneratingScripts State = "GENERATING_SCRIPTS"
	StatePersisting        State = "PERSISTING"
	StateNotifying         State = "NOTIFYING"
	StateDone              State = "DONE"
	StateFailed            State = "FAILED"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateTerminatedEmpty
}

// PipelineResult is the outcome of one run.
type PipelineResult struct {
	RunID        string         `json:"run_id"`
	Status       State          `json:"status"`
	Succeeded    bool           `json:"succeeded"`
	WinningTopic *TopicRecord   `json:"winning_topic,omitempty"`
	Scripts      []ScriptIdea   `json:"scripts"`
	TopN         []RankedTopic  `json:"top_n"`
	SourceCounts map[Origin]int `json:"source_counts"`
	Error        string         `json:"error,omitempty"`
	Persisted    bool           `json:"persisted"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
}

// Duration is the wall time of the run, zero until it finishes.
func (r PipelineResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Assemble packs the selected topic, its scripts, the ranking and source counts into a successful result.
func Assemble(winner TopicRecord, scripts []ScriptIdea, ranked []RankedTopic, counts map[Origin]int) PipelineResult {
	w := winner

	top := ranked
	if len(top) > TopN {
		top = top[:TopN]
	}
	topCopy := make([]RankedTopic, len(top))
	copy(topCopy, top)

	scriptCopy := make([]ScriptIdea, len(scripts))
	copy(scriptCopy, scripts)

	countCopy := map[Origin]int{OriginTrend: 0, OriginNews: 0}
	for k, v := range counts {
		countCopy[k] = v
	}

	return PipelineResult{
		Status:       StateDone,
		Succeeded:    true,
		WinningTopic: &w,
		Scripts:      scriptCopy,
		TopN:         topCopy,
		SourceCounts: countCopy,
	}
}

// ScoreDisplay renders the winner's score as "9/10 - rationale".
func (r PipelineResult) ScoreDisplay() string {
	if r.WinningTopic == nil {
		return ""
	}
	return fmt.Sprintf("%d/10 - %s", r.WinningTopic.Score, r.WinningTopic.ScoreRationale)
}

// RankedSummary renders source counts and the first few ranked topics as plain text.
func (r PipelineResult) RankedSummary() string {
	lines := []string{
		fmt.Sprintf("Sources: %d Twitter, %d News", r.SourceCounts[OriginTrend], r.SourceCounts[OriginNews]),
		"---",
	}
	for i, rt := range r.TopN {
		if i == summaryLines {
			break
		}
		lines = append(lines, fmt.Sprintf("%d. [%d/10] %s", i+1, rt.Topic.Score, truncateRunes(rt.Topic.Text, 60)))
	}
	return strings.Join(lines, "\n")
}

// Entry is the flattened record every sink persists for a finished run.
type Entry struct {
	RunID         string       `json:"run_id"`
	Timestamp     time.Time    `json:"timestamp"`
	Topic         string       `json:"topic"`
	Score         string       `json:"score"`
	RankedSummary string       `json:"ranked_summary"`
	Scripts       []ScriptIdea `json:"scripts"`
}

// Entry flattens a successful result. ts is the persistence timestamp.
func (r PipelineResult) Entry(ts time.Time) Entry {
	e := Entry{
		RunID:         r.RunID,
		Timestamp:     ts,
		Score:         r.ScoreDisplay(),
		RankedSummary: r.RankedSummary(),
		Scripts:       append([]ScriptIdea(nil), r.Scripts...),
	}
	if r.WinningTopic != nil {
		e.Topic = r.WinningTopic.Text
	}
	return e
}
