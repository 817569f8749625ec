// Package inapp delivers in-app notifications over Redis pub/sub.
//
// Each message is published as JSON to "<prefix>:<userID>". Realtime
// gateways (SSE or websocket) subscribe per connected user; offline users read
// the persisted records through the notification listing API.
package inapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Event is the JSON payload published for every in-app notification.
type Event struct {
	ID       string                 `json:"id"`
	UserID   string                 `json:"user_id"`
	Type     string                 `json:"type"`
	Template string                 `json:"template"`
	Priority notifications.Priority `json:"priority"`
	Silent   bool                   `json:"silent,omitempty"`
	Subject  string                 `json:"subject"`
	Body     string                 `json:"body"`
	SentAt   time.Time              `json:"sent_at"`
}

// Publisher is the part of a go-redis client the sender uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type Sender struct {
	client Publisher
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

var _ notifications.ChannelSender = (*Sender)(nil)

// Option configures a Sender.
type Option func(*Sender)

// WithPrefix sets the pub/sub channel prefix. Defaults to "notify:inapp".
func WithPrefix(prefix string) Option {
	return func(s *Sender) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(client Publisher, opts ...Option) *Sender {
	s := &Sender{client: client, prefix: "notify:inapp", now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Topic returns the pub/sub channel for a user.
func (s *Sender) Topic(userID string) string {
	return s.prefix + ":" + userID
}

func (s *Sender) Send(ctx context.Context, msg notifications.Message) error {
	if msg.Channel != notifications.ChannelInApp {
		return notifications.Permanent(fmt.Errorf("%w: in-app sender got %s", notifications.ErrUnknownChannel, msg.Channel))
	}

	payload, err := json.Marshal(Event{
		ID:       msg.NotificationID,
		UserID:   msg.UserID,
		Type:     msg.Type,
		Template: msg.Template,
		Priority: msg.Priority,
		Silent:   msg.Silent,
		Subject:  msg.Content.Subject,
		Body:     msg.Content.Body,
		SentAt:   s.now().UTC(),
	})
	if err != nil {
		return notifications.Permanent(fmt.Errorf("encoding in-app event: %w", err))
	}

	receivers, err := s.client.Publish(ctx, s.Topic(msg.UserID), payload).Result()
	if err != nil {
		return fmt.Errorf("publishing in-app event: %w", err)
	}

	// Zero receivers is still a delivery: the record stays in the inbox.
	s.logger.LogAttrs(ctx, slog.LevelDebug, "in-app event published",
		logger.NotificationID(msg.NotificationID),
		logger.UserID(msg.UserID),
		logger.Count(int(receivers)),
	)
	return nil
}

// Subscribe opens a subscription to a user's in-app events. Callers must
// close the returned PubSub.
func Subscribe(ctx context.Context, client redis.UniversalClient, prefix, userID string) *redis.PubSub {
	if prefix == "" {
		prefix = "notify:inapp"
	}
	return client.Subscribe(ctx, prefix+":"+userID)
}
