// Package push delivers push notifications through Firebase Cloud Messaging.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

var ErrMissingToken = errors.New("missing device token")

// Client is the part of *messaging.Client the sender uses.
type Client interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Sender sends one FCM message per notification to the device token held
// in Message.Recipient.
type Sender struct {
	client         Client
	ttl            time.Duration
	androidChannel string
	logger         *slog.Logger
}

var _ notifications.ChannelSender = (*Sender)(nil)

// Option configures a Sender.
type Option func(*Sender)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTTL sets how long FCM keeps an undelivered message.
func WithTTL(d time.Duration) Option {
	return func(s *Sender) { s.ttl = d }
}

// WithAndroidChannel sets the Android notification channel ID.
func WithAndroidChannel(id string) Option {
	return func(s *Sender) { s.androidChannel = id }
}

func New(client Client, opts ...Option) *Sender {
	s := &Sender{client: client, ttl: 24 * time.Hour, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig initializes a Firebase app and its messaging client. Without
// explicit credentials, Application Default Credentials are used.
func NewFromConfig(ctx context.Context, cfg Config, opts ...Option) (*Sender, error) {
	var clientOpts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbCfg, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating messaging client: %w", err)
	}

	opts = append([]Option{WithTTL(cfg.TTL), WithAndroidChannel(cfg.AndroidChannel)}, opts...)
	return New(client, opts...), nil
}

func (s *Sender) Send(ctx context.Context, msg notifications.Message) error {
	if msg.Channel != notifications.ChannelPush {
		return notifications.Permanent(fmt.Errorf("%w: push sender got %s", notifications.ErrUnknownChannel, msg.Channel))
	}
	if msg.Recipient == "" {
		return notifications.Permanent(ErrMissingToken)
	}

	id, err := s.client.Send(ctx, s.build(msg))
	if err != nil {
		// Stale tokens and malformed payloads fail the same way on every retry.
		if messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err) || messaging.IsSenderIDMismatch(err) {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "push token rejected",
				logger.NotificationID(msg.NotificationID),
				logger.UserID(msg.UserID),
				logger.Error(err),
			)
			return notifications.Permanent(err)
		}
		return err
	}

	s.logger.LogAttrs(ctx, slog.LevelDebug, "push sent",
		logger.NotificationID(msg.NotificationID),
		slog.String("fcm_message_id", id),
	)
	return nil
}

func (s *Sender) build(msg notifications.Message) *messaging.Message {
	data := map[string]string{
		"notification_id": msg.NotificationID,
		"type":            msg.Type,
		"template":        msg.Template,
	}

	android := &messaging.AndroidConfig{
		Priority: "normal",
		Notification: &messaging.AndroidNotification{
			ChannelID: s.androidChannel,
		},
	}
	if s.ttl > 0 {
		ttl := s.ttl
		android.TTL = &ttl
	}
	aps := &messaging.Aps{}

	if msg.Priority >= notifications.PriorityHigh {
		android.Priority = "high"
	}
	if !msg.Silent {
		android.Notification.Sound = "default"
		aps.Sound = "default"
	}

	return &messaging.Message{
		Token: msg.Recipient,
		Notification: &messaging.Notification{
			Title: msg.Content.Subject,
			Body:  msg.Content.Body,
		},
		Data:    data,
		Android: android,
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{Aps: aps},
		},
	}
}
