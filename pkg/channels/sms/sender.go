// Package sms delivers SMS notifications through AWS SNS.
package sms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

var ErrInvalidPhoneNumber = errors.New("invalid E.164 phone number")

var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// SNS error codes that retrying cannot fix.
var permanentCodes = map[string]bool{
	"InvalidParameter":      true,
	"InvalidParameterValue": true,
	"OptedOut":              true,
	"AuthorizationError":    true,
}

// Publisher is the part of *sns.Client the sender uses.
type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Sender publishes SMS messages directly to phone numbers.
type Sender struct {
	client   Publisher
	senderID string
	maxPrice string
	logger   *slog.Logger
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

// WithSenderID sets the AWS.SNS.SMS.SenderID attribute.
func WithSenderID(id string) Option {
	return func(s *Sender) { s.senderID = id }
}

// WithMaxPrice sets the AWS.SNS.SMS.MaxPrice attribute.
func WithMaxPrice(price string) Option {
	return func(s *Sender) { s.maxPrice = price }
}

func New(client Publisher, opts ...Option) *Sender {
	s := &Sender{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig builds an SNS client from cfg. Static credentials are used
// when both keys are set; otherwise the default AWS credential chain applies.
func NewFromConfig(ctx context.Context, cfg Config, opts ...Option) (*Sender, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	opts = append([]Option{WithSenderID(cfg.SenderID), WithMaxPrice(cfg.MaxPrice)}, opts...)
	return New(client, opts...), nil
}

func (s *Sender) Send(ctx context.Context, msg notifications.Message) error {
	if msg.Channel != notifications.ChannelSMS {
		return notifications.Permanent(fmt.Errorf("%w: sms sender got %s", notifications.ErrUnknownChannel, msg.Channel))
	}
	if !e164.MatchString(msg.Recipient) {
		return notifications.Permanent(fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, msg.Recipient))
	}

	out, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(msg.Recipient),
		Message:           aws.String(smsText(msg.Content)),
		MessageAttributes: s.attributes(msg.Priority),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && permanentCodes[apiErr.ErrorCode()] {
			return notifications.Permanent(err)
		}
		return err
	}

	s.logger.LogAttrs(ctx, slog.LevelDebug, "sms published",
		logger.NotificationID(msg.NotificationID),
		slog.String("message_id", aws.ToString(out.MessageId)),
	)
	return nil
}

// attributes marks high and critical messages transactional so SNS routes
// them for reliability rather than cost.
func (s *Sender) attributes(p notifications.Priority) map[string]types.MessageAttributeValue {
	smsType := "Promotional"
	if p >= notifications.PriorityHigh {
		smsType = "Transactional"
	}

	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": stringAttr(smsType),
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = stringAttr(s.senderID)
	}
	if s.maxPrice != "" {
		attrs["AWS.SNS.SMS.MaxPrice"] = types.MessageAttributeValue{
			DataType:    aws.String("Number"),
			StringValue: aws.String(s.maxPrice),
		}
	}
	return attrs
}

func stringAttr(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}

// smsText drops the subject when the body already carries the message.
func smsText(c notifications.Content) string {
	if c.Body != "" {
		return c.Body
	}
	return c.Subject
}
