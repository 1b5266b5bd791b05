package topics

import (
	"context"
	"encoding/json"
	"fmt"
)

// ScriptCount is how many scripts a run always produces.
const ScriptCount = 3

const fallbackTopicLimit = 30

const scriptPrompt = `You are a UK football content creator who makes viral TikTok and Reels videos.

Write 3 SHORT video script ideas for this topic.
TOPIC: %s
CONTEXT: %s
DRAMA SCORE: %d/10

Each script has:
- hook: on-screen text for the first 1-3 seconds
- premise: what happens in the next 5-15 seconds (the reaction, comparison or bit)
- punchline: the closing line, callback or twist

STYLE:
%s

Reply with ONLY a JSON array of exactly 3 objects:
[
  {"hook": "...", "premise": "...", "punchline": "..."}
]`

// GenerateScripts drafts ScriptCount scripts for topic with a single oracle call.
//
// Extra scripts in the reply are dropped and missing ones are filled from
// FallbackScripts at the same positions. An oracle error or an unparsable
// reply returns FallbackScripts unchanged.
func (r *Ranker) GenerateScripts(ctx context.Context, topic TopicRecord) []ScriptIdea {
	resp, err := r.complete(ctx, BuildScriptPrompt(topic, r.style))
	if err != nil {
		r.log.Error("script generation failed, using fallback scripts", "error", err, "topic", topic.Text)
		r.observer.OracleCall(StageScripts, OutcomeError)
		r.observer.Fallback(StageScripts)
		return FallbackScripts(topic.Text)
	}

	scripts, ok := parseScripts(resp)
	if !ok {
		r.log.Error("could not parse scripts reply, using fallback scripts", "reply", truncateRunes(resp, 200))
		r.observer.OracleCall(StageScripts, OutcomeUnparsed)
		r.observer.Fallback(StageScripts)
		return FallbackScripts(topic.Text)
	}
	r.observer.OracleCall(StageScripts, OutcomeOK)

	if len(scripts) > ScriptCount {
		scripts = scripts[:ScriptCount]
	}
	if len(scripts) < ScriptCount {
		r.log.Warn("oracle returned too few scripts, padding", "got", len(scripts))
		r.observer.Fallback(StageScripts)
		fallback := FallbackScripts(topic.Text)
		scripts = append(scripts, fallback[len(scripts):]...)
	}

	r.log.Info("scripts generated", "topic", topic.Text)
	return scripts
}

// BuildScriptPrompt fills the script prompt. style is inserted verbatim.
func BuildScriptPrompt(topic TopicRecord, style string) string {
	background := topic.Summary
	if background == "" {
		background = topic.ScoreRationale
	}
	score := topic.Score
	if score == 0 {
		score = DefaultScore
	}
	return fmt.Sprintf(scriptPrompt, topic.Text, background, score, style)
}

// FallbackScripts builds the fixed script triple from the topic text, without any external call.
func FallbackScripts(text string) []ScriptIdea {
	name := truncateRunes(text, fallbackTopicLimit)
	if name == "" {
		name = "This topic"
	}
	return []ScriptIdea{
		{
			Hook:      fmt.Sprintf("POV: You just saw %s...", name),
			Premise:   "Show reaction from different fan perspectives",
			Punchline: "The beautiful game innit",
		},
		{
			Hook:      "Football Twitter right now:",
			Premise:   fmt.Sprintf("Compilation of reactions to %s", name),
			Punchline: "And they say football is just a game",
		},
		{
			Hook:      "Me explaining to my non-football friends:",
			Premise:   fmt.Sprintf("Dramatic retelling of %s", name),
			Punchline: "You wouldn't understand",
		},
	}
}

func parseScripts(resp string) ([]ScriptIdea, bool) {
	match := jsonArrayPattern.FindString(resp)
	if match == "" {
		return nil, false
	}
	var scripts []ScriptIdea
	if err := json.Unmarshal([]byte(match), &scripts); err != nil {
		return nil, false
	}
	return scripts, true
}
