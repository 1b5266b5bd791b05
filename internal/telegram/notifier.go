package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/deusflow/banterbot/internal/logger"
)

// ErrNoChats means there is nobody to notify.
var ErrNoChats = errors.New("no telegram chats configured")

// ChatSource lists registered chat ids.
type ChatSource interface {
	Chats() []int64
}

// Notifier broadcasts a message to every registered chat plus the configured one.
type Notifier struct {
	client      *Client
	chats       ChatSource
	defaultChat string
	onSent      func()
	log         *slog.Logger
}

// NewNotifier builds a broadcaster. chats may be nil; onSent runs after each delivered message.
func NewNotifier(client *Client, chats ChatSource, defaultChat string, onSent func(), log *slog.Logger) *Notifier {
	return &Notifier{
		client:      client,
		chats:       chats,
		defaultChat: defaultChat,
		onSent:      onSent,
		log:         logger.OrDefault(log).With("component", "notifier"),
	}
}

func (n *Notifier) targets() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if n.chats != nil {
		for _, id := range n.chats.Chats() {
			add(chatIDString(id))
		}
	}
	add(n.defaultChat)
	return out
}

// Notify succeeds when at least one chat received the message.
func (n *Notifier) Notify(ctx context.Context, message string) error {
	targets := n.targets()
	if len(targets) == 0 {
		n.log.Warn("no chat ids configured for progress messages")
		return ErrNoChats
	}

	var errs []error
	delivered := 0
	for _, chat := range targets {
		if err := n.client.SendMessage(ctx, chat, message); err != nil {
			n.log.Error("send failed", "chat_id", chat, "error", err)
			errs = append(errs, err)
			continue
		}
		delivered++
		if n.onSent != nil {
			n.onSent()
		}
	}
	if delivered == 0 {
		return fmt.Errorf("notify %d chats: %w", len(targets), errors.Join(errs...))
	}
	return nil
}
