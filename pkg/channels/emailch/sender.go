// Package emailch delivers email notifications through an email.EmailSender.
package emailch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Sender adapts an email.EmailSender to notifications.ChannelSender.
type Sender struct {
	mailer email.EmailSender
	logger *slog.Logger
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

func New(mailer email.EmailSender, opts ...Option) *Sender {
	s := &Sender{mailer: mailer, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sender) Send(ctx context.Context, msg notifications.Message) error {
	if msg.Channel != notifications.ChannelEmail {
		return notifications.Permanent(fmt.Errorf("%w: email sender got %s", notifications.ErrUnknownChannel, msg.Channel))
	}

	err := s.mailer.SendEmail(ctx, email.SendEmailParams{
		SendTo:   msg.Recipient,
		Subject:  msg.Content.Subject,
		BodyHTML: msg.Content.Body,
		Tag:      msg.Template,
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, email.ErrInvalidParams) || errors.Is(err, email.ErrRecipientRejected) {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "email rejected",
			logger.NotificationID(msg.NotificationID),
			logger.UserID(msg.UserID),
			logger.Error(err),
		)
		return notifications.Permanent(err)
	}
	return err
}
