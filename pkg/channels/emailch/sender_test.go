package emailch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/channels/emailch"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) SendEmail(ctx context.Context, params email.SendEmailParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func message() notifications.Message {
	return notifications.Message{
		NotificationID: "n1",
		UserID:         "u1",
		Template:       "welcome",
		Channel:        notifications.ChannelEmail,
		Recipient:      "user@example.com",
		Content:        notifications.Content{Subject: "Welcome", Body: "<p>Hi</p>"},
	}
}

func TestSender_Send(t *testing.T) {
	mailer := &MockEmailSender{}
	mailer.On("SendEmail", mock.Anything, email.SendEmailParams{
		SendTo:   "user@example.com",
		Subject:  "Welcome",
		BodyHTML: "<p>Hi</p>",
		Tag:      "welcome",
	}).Return(nil).Once()

	require.NoError(t, emailch.New(mailer).Send(context.Background(), message()))
	mailer.AssertExpectations(t)
}

func TestSender_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantPermanent bool
	}{
		{"invalid params", errors.Join(email.ErrInvalidParams, errors.New("SendTo failed")), true},
		{"recipient rejected", errors.Join(email.ErrFailedToSendEmail, email.ErrRecipientRejected), true},
		{"provider outage", errors.Join(email.ErrFailedToSendEmail, errors.New("503")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &MockEmailSender{}
			mailer.On("SendEmail", mock.Anything, mock.Anything).Return(tt.err).Once()

			err := emailch.New(mailer).Send(context.Background(), message())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.wantPermanent, notifications.IsPermanent(err))
		})
	}
}

func TestSender_WrongChannel(t *testing.T) {
	mailer := &MockEmailSender{}
	msg := message()
	msg.Channel = notifications.ChannelSMS

	err := emailch.New(mailer).Send(context.Background(), msg)
	assert.True(t, notifications.IsPermanent(err))
	mailer.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}
