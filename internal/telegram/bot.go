package telegram

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/deusflow/banterbot/internal/logger"
	"github.com/deusflow/banterbot/internal/topics"
)

// Pipeline runs one aggregation pass.
type Pipeline interface {
	Run(ctx context.Context) topics.PipelineResult
}

// History lists past runs, newest first.
type History interface {
	Recent(ctx context.Context, n int) ([]topics.Entry, error)
}

// State is the persisted bot state the commands mutate.
type State interface {
	RegisterChat(id int64) (bool, error)
	Paused() bool
	SetPaused(paused bool) error
}

const (
	recentCount  = 5
	pollInterval = 30 * time.Second
	errorBackoff = 3 * time.Second
)

// Bot long-polls for commands and dispatches them.
type Bot struct {
	client   *Client
	pipeline Pipeline
	history  History
	state    State
	log      *slog.Logger

	poll    time.Duration
	backoff time.Duration
	wg      sync.WaitGroup
}

// NewBot wires the command handlers. history may be nil.
func NewBot(client *Client, pipeline Pipeline, history History, state State, log *slog.Logger) *Bot {
	return &Bot{
		client:   client,
		pipeline: pipeline,
		history:  history,
		state:    state,
		log:      logger.OrDefault(log).With("component", "bot"),
		poll:     pollInterval,
		backoff:  errorBackoff,
	}
}

// Run polls until ctx is cancelled, then waits for in-flight commands.
func (b *Bot) Run(ctx context.Context) error {
	defer b.wg.Wait()

	b.log.Info("bot started")
	var offset int64
	for {
		if ctx.Err() != nil {
			b.log.Info("bot stopping")
			return nil
		}

		updates, err := b.client.GetUpdates(ctx, offset, b.poll)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.log.Warn("getUpdates failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.backoff):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			msg := *u.Message
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handle(ctx, msg)
			}()
		}
	}
}

func (b *Bot) handle(ctx context.Context, msg Message) {
	cmd := parseCommand(msg.Text)
	if cmd == "" {
		return
	}
	chat := chatIDString(msg.Chat.ID)
	b.log.Info("command received", "command", cmd, "chat_id", chat)

	for _, reply := range b.dispatch(ctx, cmd, msg.Chat.ID) {
		if err := b.client.SendMessage(ctx, chat, reply); err != nil {
			b.log.Error("reply failed", "command", cmd, "chat_id", chat, "error", err)
			return
		}
	}
}

// dispatch returns the replies for a command, in send order.
func (b *Bot) dispatch(ctx context.Context, cmd string, chatID int64) []string {
	switch cmd {
	case "start":
		isNew, err := b.state.RegisterChat(chatID)
		if err != nil {
			b.log.Error("register chat failed", "chat_id", chatID, "error", err)
		}
		return []string{formatWelcome(isNew)}

	case "go":
		if err := b.client.SendMessage(ctx, chatIDString(chatID), "⏳ Starting content pipeline..."); err != nil {
			b.log.Warn("ack failed", "error", err)
		}
		res := b.pipeline.Run(ctx)
		replies := []string{FormatSummary(res)}
		if res.Succeeded && len(res.Scripts) > 0 {
			replies = append(replies, FormatScripts(res.Scripts))
		}
		return replies

	case "status":
		return []string{formatStatus(b.state.Paused())}

	case "recent":
		if b.history == nil {
			return []string{"Run history is not configured."}
		}
		entries, err := b.history.Recent(ctx, recentCount)
		if err != nil {
			b.log.Error("recent entries failed", "error", err)
			return []string{"❌ Error: could not load recent topics"}
		}
		return []string{FormatRecent(entries)}

	case "pause":
		if err := b.state.SetPaused(true); err != nil {
			b.log.Error("pause failed", "error", err)
			return []string{"❌ Error: could not pause"}
		}
		return []string{"⏸ Daily run paused. Use /resume to turn it back on."}

	case "resume":
		if err := b.state.SetPaused(false); err != nil {
			b.log.Error("resume failed", "error", err)
			return []string{"❌ Error: could not resume"}
		}
		return []string{"▶️ Daily run resumed."}

	default:
		return []string{"Unknown command.\n\n" + commandHelp}
	}
}

// parseCommand extracts "go" from "/go@MyBot now". Non-command text yields "".
func parseCommand(text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}
