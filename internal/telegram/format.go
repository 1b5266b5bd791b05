package telegram

import (
	"fmt"
	"html"
	"strings"

	"github.com/deusflow/banterbot/internal/topics"
)

const rankedLines = 5

const commandHelp = "Commands:\n" +
	"/go - Generate content ideas now\n" +
	"/recent - Show recent topics\n" +
	"/status - Check bot status\n" +
	"/pause - Pause the daily run\n" +
	"/resume - Resume the daily run"

// FormatSummary renders a finished run as the /go reply.
func FormatSummary(res topics.PipelineResult) string {
	switch res.Status {
	case topics.StateTerminatedEmpty:
		return "📭 No PL topics found today. Try again later."
	case topics.StateFailed:
		msg := res.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return "❌ Pipeline failed: " + html.EscapeString(msg)
	}
	if res.WinningTopic == nil {
		return "❌ Pipeline failed: no topic selected"
	}

	var b strings.Builder
	b.WriteString("✅ <b>Pipeline Complete!</b>\n\n")
	b.WriteString(fmt.Sprintf("<b>Sources:</b> %d Twitter, %d News\n\n",
		res.SourceCounts[topics.OriginTrend], res.SourceCounts[topics.OriginNews]))

	b.WriteString("<b>Topics Ranked:</b>")
	for i, rt := range res.TopN {
		if i == rankedLines {
			break
		}
		marker := " "
		if i == 0 {
			marker = "→"
		}
		b.WriteString(fmt.Sprintf("\n%s %d. [%d/10] %s", marker, rt.Position, rt.Topic.Score, html.EscapeString(clip(rt.Topic.Text, 50))))
	}
	b.WriteString("\n\n")

	w := res.WinningTopic
	b.WriteString(fmt.Sprintf("📌 <b>Winner:</b> %s\n", html.EscapeString(clip(w.Text, 60))))
	b.WriteString(fmt.Sprintf("🔥 <b>Score:</b> %d/10\n\n", w.Score))

	if res.Persisted {
		b.WriteString(fmt.Sprintf("📝 %d scripts have been added to your Google Sheet.", len(res.Scripts)))
	} else {
		b.WriteString("⚠️ Scripts were generated but could not be saved.")
	}
	return b.String()
}

// FormatScripts lists the script ideas of a run.
func FormatScripts(scripts []topics.ScriptIdea) string {
	var b strings.Builder
	for i, s := range scripts {
		b.WriteString(fmt.Sprintf("🎬 <b>Script %d</b>\n", i+1))
		b.WriteString(fmt.Sprintf("<b>Hook:</b> %s\n", html.EscapeString(s.Hook)))
		b.WriteString(fmt.Sprintf("<b>Premise:</b> %s\n", html.EscapeString(s.Premise)))
		b.WriteString(fmt.Sprintf("<b>Punchline:</b> %s\n", html.EscapeString(s.Punchline)))
		if i < len(scripts)-1 {
			b.WriteString("➖➖➖➖➖➖➖➖➖➖\n")
		}
	}
	return b.String()
}

// FormatRecent renders history entries, newest first.
func FormatRecent(entries []topics.Entry) string {
	if len(entries) == 0 {
		return "No recent entries found."
	}
	var b strings.Builder
	b.WriteString("📋 <b>Recent Topics:</b>\n\n")
	for i, e := range entries {
		date := "unknown"
		if !e.Timestamp.IsZero() {
			date = e.Timestamp.Format("2006-01-02")
		}
		b.WriteString(fmt.Sprintf("%d. <b>%s</b>\n   Score: %s | %s\n\n",
			i+1, html.EscapeString(clip(e.Topic, 50)), html.EscapeString(e.Score), date))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatStatus(paused bool) string {
	state := "✅ Bot is running!"
	if paused {
		state = "⏸ Bot is running, daily run is paused."
	}
	return state + "\n\n" + commandHelp
}

func formatWelcome(isNew bool) string {
	if isNew {
		return "👋 Welcome to PL Content Bot!\n\n" +
			"✅ <b>You are now registered!</b>\n" +
			"You will receive all updates and notifications.\n\n" +
			commandHelp + "\n\n" +
			"The bot also runs automatically every morning."
	}
	return "👋 Welcome back!\n\nYou're already registered for updates.\n\n" + commandHelp
}
