// Package letters schedules notes to a user's future self and pushes due
// letters to chat channels.
package letters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/serenitybot/serenity/internal/bus"
	"github.com/serenitybot/serenity/internal/mood"
	"github.com/serenitybot/serenity/internal/store"
)

// DefaultDelay is how far ahead a letter lands when no date is given.
const DefaultDelay = 7 * 24 * time.Hour

var ErrPastDate = errors.New("deliver date is in the past")

// DeliverOn resolves the requested delivery date. An empty request means
// DefaultDelay from today.
func DeliverOn(today time.Time, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return today.Add(DefaultDelay).Format(mood.DateLayout), nil
	}
	day, err := time.Parse(mood.DateLayout, requested)
	if err != nil {
		return "", fmt.Errorf("deliver date %q: want YYYY-MM-DD", requested)
	}
	if day.Format(mood.DateLayout) < today.Format(mood.DateLayout) {
		return "", ErrPastDate
	}
	return requested, nil
}

// Format renders a letter as a chat message.
func Format(l store.Letter) string {
	written := l.CreatedAt.Format(mood.DateLayout)
	return fmt.Sprintf("💌 A letter from you, written %s:\n\n%s", written, l.Content)
}

// Store is the part of the document store the deliverer needs.
type Store interface {
	AllDueLetters(ctx context.Context) ([]store.Letter, error)
	MarkLetterDelivered(ctx context.Context, userID, id string) error
}

type Publisher interface {
	PublishOutbound(ctx context.Context, msg bus.OutboundMessage) error
}

// Deliverer pushes due letters to users reachable on a push channel.
// Users of the web UI keep reading theirs from the due list.
type Deliverer struct {
	store    Store
	pub      Publisher
	channels map[string]bool
	logger   *zap.Logger
}

// NewDeliverer pushes to user ids of the form "<channel>:<chat id>" for
// each named channel.
func NewDeliverer(st Store, pub Publisher, channels []string, logger *zap.Logger) *Deliverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	set := make(map[string]bool, len(channels))
	for _, c := range channels {
		set[c] = true
	}
	return &Deliverer{store: st, pub: pub, channels: set, logger: logger}
}

func (d *Deliverer) route(userID string) (channel, chatID string, ok bool) {
	channel, chatID, found := strings.Cut(userID, ":")
	if !found || chatID == "" || !d.channels[channel] {
		return "", "", false
	}
	return channel, chatID, true
}

// Run delivers every due letter it can route and returns how many went out.
// A failed letter stays undelivered for the next run.
func (d *Deliverer) Run(ctx context.Context) (int, error) {
	due, err := d.store.AllDueLetters(ctx)
	if err != nil {
		return 0, fmt.Errorf("list due letters: %w", err)
	}

	sent := 0
	for _, l := range due {
		channel, chatID, ok := d.route(l.UserID)
		if !ok {
			continue
		}
		msg := bus.OutboundMessage{Channel: channel, ChatID: chatID, Content: Format(l)}
		if err := d.pub.PublishOutbound(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			d.logger.Warn("publish letter", zap.String("letter", l.ID), zap.Error(err))
			continue
		}
		if err := d.store.MarkLetterDelivered(ctx, l.UserID, l.ID); err != nil {
			d.logger.Warn("mark letter delivered", zap.String("letter", l.ID), zap.Error(err))
			continue
		}
		sent++
	}
	d.logger.Info("letters delivered", zap.Int("sent", sent), zap.Int("due", len(due)))
	return sent, nil
}
