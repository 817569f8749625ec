package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

// Postmark API error codes that reject the address itself.
// See https://postmarkapp.com/developer/api/overview#error-codes.
const (
	postmarkInvalidEmail      = 300
	postmarkInactiveRecipient = 406
)

// postmarkAPI is the part of *postmark.Client used for sending.
type postmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

type postmarkClient struct {
	client postmarkAPI
	config Config
}

// NewPostmarkClient creates a Postmark-backed email sender.
func NewPostmarkClient(cfg Config) (EmailSender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: PostmarkAccountToken is required", ErrInvalidConfig)
	}
	if err := validate.Var(cfg.SenderEmail, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	if err := validate.Var(cfg.SupportEmail, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: SupportEmail must be a valid email address", ErrInvalidConfig)
	}

	return &postmarkClient{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		config: cfg,
	}, nil
}

// MustNewPostmarkClient creates a Postmark client that panics on invalid config.
func MustNewPostmarkClient(cfg Config) EmailSender {
	client, err := NewPostmarkClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// SendEmail sends through Postmark's transactional API with open and HTML
// link tracking. Replies go to the support address.
func (c *postmarkClient) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	resp, err := c.client.SendEmail(ctx, postmark.Email{
		From:       c.config.SenderEmail,
		ReplyTo:    c.config.SupportEmail,
		To:         params.SendTo,
		Subject:    params.Subject,
		Tag:        params.Tag,
		HTMLBody:   params.BodyHTML,
		TextBody:   params.BodyText,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if resp.ErrorCode > 0 {
		apiErr := fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
		switch resp.ErrorCode {
		case postmarkInvalidEmail, postmarkInactiveRecipient:
			return errors.Join(ErrFailedToSendEmail, ErrRecipientRejected, apiErr)
		}
		return errors.Join(ErrFailedToSendEmail, apiErr)
	}
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	return nil
}
