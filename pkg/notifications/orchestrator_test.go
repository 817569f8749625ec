package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("connection reset")

// MockSender for testing Orchestrator
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, msg Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockStorage for testing persistence failures
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Create(ctx context.Context, notif Notification) error {
	args := m.Called(ctx, notif)
	return args.Error(0)
}

func (m *MockStorage) Update(ctx context.Context, notif Notification) error {
	args := m.Called(ctx, notif)
	return args.Error(0)
}

func (m *MockStorage) Get(ctx context.Context, userID, notifID string) (*Notification, error) {
	args := m.Called(ctx, userID, notifID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Notification), args.Error(1)
}

func (m *MockStorage) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	args := m.Called(ctx, userID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Notification), args.Error(1)
}

func (m *MockStorage) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Notification, error) {
	args := m.Called(ctx, now, limit, lease)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Notification), args.Error(1)
}

type resolverFunc func(ctx context.Context, userID string, ch Channel) (string, error)

func (f resolverFunc) ResolveRecipient(ctx context.Context, userID string, ch Channel) (string, error) {
	return f(ctx, userID, ch)
}

func newTestOrchestrator(t *testing.T, opts ...OrchestratorOption) (*Orchestrator, *MemoryStorage, *MemoryDigestQueue) {
	t.Helper()
	storage := NewMemoryStorage()
	digests := NewMemoryDigestQueue()
	base := []OrchestratorOption{
		WithBackoff(FixedBackoff{}),
		WithOrchestratorClock(fixedClock(testNow)),
	}
	o, err := NewOrchestrator(storage, digests, append(base, opts...)...)
	require.NoError(t, err)
	return o, storage, digests
}

func immediate(channels ...Channel) Decision {
	return Decision{Mode: ModeImmediate, Channels: channels, EffectivePriority: PriorityNormal, Reason: ReasonChannelPreference}
}

func emailRequest(userID string) Request {
	return Request{
		UserID:     userID,
		Template:   "appointment-confirmation",
		Priority:   PriorityNormal,
		Variables:  map[string]string{"subject": "Confirmed", "body": "See you at 10:00"},
		Recipients: map[Channel]string{ChannelEmail: userID + "@example.com"},
		Metadata:   map[string]string{"correlation_id": "evt-1"},
	}
}

func TestNewOrchestrator(t *testing.T) {
	_, err := NewOrchestrator(nil, NewMemoryDigestQueue())
	assert.ErrorIs(t, err, ErrStorageNil)

	_, err = NewOrchestrator(NewMemoryStorage(), nil)
	assert.ErrorIs(t, err, ErrDigestQueueNil)
}

func TestOrchestrator_ExecuteImmediate_Retries(t *testing.T) {
	ctx := context.Background()

	t.Run("fails twice then succeeds", func(t *testing.T) {
		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything).Return(errTransient).Twice()
		sender.On("Send", mock.Anything, mock.Anything).Return(nil).Once()

		o, storage, _ := newTestOrchestrator(t, WithSender(ChannelEmail, sender))
		res, err := o.ExecuteImmediate(ctx, immediate(ChannelEmail), emailRequest("u1"))
		require.NoError(t, err)

		assert.Equal(t, ResultSuccess, res.Status)
		require.Len(t, res.Channels, 1)
		assert.Equal(t, StatusSent, res.Channels[0].Status)
		assert.Equal(t, 3, res.Channels[0].Attempts)

		rec, err := storage.Get(ctx, "u1", res.Channels[0].NotificationID)
		require.NoError(t, err)
		assert.Equal(t, StatusSent, rec.Status)
		assert.Equal(t, 3, rec.Attempts)
		require.NotNil(t, rec.SentAt)
		assert.Equal(t, "u1@example.com", rec.Recipient)
		assert.Equal(t, "Confirmed", rec.Subject)
		assert.Equal(t, "evt-1", rec.Metadata["correlation_id"])
		sender.AssertNumberOfCalls(t, "Send", 3)
	})

	t.Run("fails on all attempts", func(t *testing.T) {
		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything).Return(errTransient)

		o, storage, _ := newTestOrchestrator(t, WithSender(ChannelEmail, sender))
		res, err := o.ExecuteImmediate(ctx, immediate(ChannelEmail), emailRequest("u1"))
		require.NoError(t, err)

		assert.Equal(t, ResultPartialFailure, res.Status)
		require.Len(t, res.Channels, 1)
		assert.Equal(t, StatusFailed, res.Channels[0].Status)
		assert.ErrorIs(t, res.Channels[0].Err, ErrRetriesExhausted)
		assert.ErrorIs(t, res.Channels[0].Err, errTransient)

		rec, err := storage.Get(ctx, "u1", res.Channels[0].NotificationID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, rec.Status)
		assert.Equal(t, 3, rec.Attempts)
		assert.Nil(t, rec.SentAt)
		assert.NotEmpty(t, rec.LastError)
		sender.AssertNumberOfCalls(t, "Send", 3)
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything).Return(Permanent(errors.New("invalid address")))

		o, _, _ := newTestOrchestrator(t, WithSender(ChannelEmail, sender))
		res, err := o.ExecuteImmediate(ctx, immediate(ChannelEmail), emailRequest("u1"))
		require.NoError(t, err)

		assert.Equal(t, StatusFailed, res.Channels[0].Status)
		assert.Equal(t, 1, res.Channels[0].Attempts)
		assert.True(t, IsPermanent(res.Channels[0].Err))
		sender.AssertNumberOfCalls(t, "Send", 1)
	})

	t.Run("custom retry budget", func(t *testing.T) {
		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything).Return(errTransient)

		o, _, _ := newTestOrchestrator(t, WithSender(ChannelEmail, sender), WithMaxRetries(0))
		res, err := o.ExecuteImmediate(ctx, immediate(ChannelEmail), emailRequest("u1"))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Channels[0].Attempts)
	})
}

func TestOrchestrator_BackoffDelays(t *testing.T) {
	sender := &MockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(errTransient)

	o, _, _ := newTestOrchestrator(t, WithSender(ChannelEmail, sender), WithBackoff(DefaultBackoff()))
	var delays []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, err := o.ExecuteImmediate(context.Background(), immediate(ChannelEmail), emailRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, 4 * time.Second}, delays)
}

func TestOrchestrator_ExecuteImmediate_FanOut(t *testing.T) {
	ctx := context.Background()

	email := &MockSender{}
	email.On("Send", mock.Anything, mock.Anything).Return(Permanent(errors.New("bounced")))
	inApp := &MockSender{}
	inApp.On("Send", mock.Anything, mock.MatchedBy(func(m Message) bool {
		return m.Recipient == "u1" && m.Channel == ChannelInApp
	})).Return(nil)

	history := NewMemoryHistory(WithHistoryClock(fixedClock(testNow)))
	o, storage, _ := newTestOrchestrator(t,
		WithSender(ChannelEmail, email),
		WithSender(ChannelInApp, inApp),
		WithHistory(history),
	)

	res, err := o.ExecuteImmediate(ctx, immediate(ChannelEmail, ChannelInApp), emailRequest("u1"))
	require.NoError(t, err)

	assert.Equal(t, ResultPartialFailure, res.Status)
	require.Len(t, res.Channels, 2)
	assert.Equal(t, ChannelEmail, res.Channels[0].Channel)
	assert.Equal(t, StatusFailed, res.Channels[0].Status)
	assert.Equal(t, ChannelInApp, res.Channels[1].Channel)
	assert.Equal(t, StatusSent, res.Channels[1].Status)
	assert.Equal(t, 1, res.Sent())
	assert.Equal(t, 1, res.Failed())

	list, err := storage.List(ctx, "u1", ListOptions{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	inAppTimes, err := history.GetRecentDeliveries(ctx, "u1", ChannelInApp, "appointment-confirmation", time.Minute)
	require.NoError(t, err)
	assert.Len(t, inAppTimes, 1)
	emailTimes, err := history.GetRecentDeliveries(ctx, "u1", ChannelEmail, "appointment-confirmation", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, emailTimes)
}

func TestOrchestrator_Recipients(t *testing.T) {
	ctx := context.Background()

	t.Run("preference address", func(t *testing.T) {
		prefs := NewMemoryPreferenceStore()
		prefs.Set(Preference{UserID: "u1", Addresses: map[Channel]string{ChannelSMS: "+15550100"}})

		sms := &MockSender{}
		sms.On("Send", mock.Anything, mock.MatchedBy(func(m Message) bool { return m.Recipient == "+15550100" })).Return(nil)

		o, _, _ := newTestOrchestrator(t, WithSender(ChannelSMS, sms), WithPreferenceStore(prefs))
		res, err := o.ExecuteImmediate(ctx, immediate(ChannelSMS), Request{UserID: "u1", Template: "reminder"})
		require.NoError(t, err)
		assert.Equal(t, StatusSent, res.Channels[0].Status)
		sms.AssertExpectations(t)
	})

	t.Run("resolver", func(t *testing.T) {
		push := &MockSender{}
		push.On("Send", mock.Anything, mock.MatchedBy(func(m Message) bool { return m.Recipient == "token-1" })).Return(nil)

		resolver := resolverFunc(func(ctx context.Context, userID string, ch Channel) (string, error) {
			return "token-1", nil
		})
		o, _, _ := newTestOrchestrator(t, WithSender(ChannelPush, push), WithRecipientResolver(resolver))
		res, err := o.ExecuteImmediate(ctx, immediate(ChannelPush), Request{UserID: "u1", Template: "reminder"})
		require.NoError(t, err)
		assert.Equal(t, StatusSent, res.Channels[0].Status)
	})

	t.Run("no address fails permanently without sending", func(t *testing.T) {
		email := &MockSender{}
		o, storage, _ := newTestOrchestrator(t, WithSender(ChannelEmail, email))

		res, err := o.ExecuteImmediate(ctx, immediate(ChannelEmail), Request{UserID: "u1", Template: "reminder"})
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, res.Channels[0].Status)
		assert.ErrorIs(t, res.Channels[0].Err, ErrNoRecipient)
		assert.Equal(t, 0, res.Channels[0].Attempts)
		email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

		rec, err := storage.Get(ctx, "u1", res.Channels[0].NotificationID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, rec.Status)
	})

	t.Run("no sender registered", func(t *testing.T) {
		o, _, _ := newTestOrchestrator(t)
		res, err := o.ExecuteImmediate(ctx, immediate(ChannelEmail), emailRequest("u1"))
		require.NoError(t, err)
		assert.ErrorIs(t, res.Channels[0].Err, ErrNoSender)
	})
}

func TestOrchestrator_RenderFailure(t *testing.T) {
	sender := &MockSender{}
	renderer := RendererFunc(func(ctx context.Context, template string, ch Channel, vars map[string]string) (Content, error) {
		return Content{}, errors.New("template not found")
	})
	o, _, _ := newTestOrchestrator(t, WithSender(ChannelEmail, sender), WithRenderer(renderer))

	res, err := o.ExecuteImmediate(context.Background(), immediate(ChannelEmail), emailRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Channels[0].Status)
	assert.True(t, IsPermanent(res.Channels[0].Err))
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestOrchestrator_PersistenceFailure(t *testing.T) {
	storage := &MockStorage{}
	storage.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	sender := &MockSender{}

	o, err := NewOrchestrator(storage, NewMemoryDigestQueue(), WithSender(ChannelEmail, sender))
	require.NoError(t, err)

	_, err = o.ExecuteImmediate(context.Background(), immediate(ChannelEmail), emailRequest("u1"))
	assert.ErrorIs(t, err, ErrPersistence)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestOrchestrator_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	email := &MockSender{}
	email.On("Send", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		cancel()
	}).Return(context.Canceled)
	inApp := &MockSender{}

	o, storage, _ := newTestOrchestrator(t, WithSender(ChannelEmail, email), WithSender(ChannelInApp, inApp))
	res, err := o.ExecuteImmediate(ctx, immediate(ChannelEmail, ChannelInApp), emailRequest("u1"))
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, res.Channels, 1)
	assert.Equal(t, StatusFailed, res.Channels[0].Status)
	email.AssertNumberOfCalls(t, "Send", 1)
	inApp.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	list, err := storage.List(context.Background(), "u1", ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, StatusFailed, list[0].Status)
}

func TestOrchestrator_SentChannelsSurviveCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inApp := &MockSender{}
	inApp.On("Send", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		cancel()
	}).Return(nil)
	email := &MockSender{}

	o, storage, _ := newTestOrchestrator(t, WithSender(ChannelEmail, email), WithSender(ChannelInApp, inApp))
	res, err := o.ExecuteImmediate(ctx, immediate(ChannelInApp, ChannelEmail), emailRequest("u1"))
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, res.Channels, 1)
	assert.Equal(t, StatusSent, res.Channels[0].Status)
	email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	list, err := storage.List(context.Background(), "u1", ListOptions{Statuses: []Status{StatusSent}})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestOrchestrator_ScheduleAndFlush(t *testing.T) {
	ctx := context.Background()
	sender := &MockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(nil)

	now := testNow
	o, storage, _ := newTestOrchestrator(t,
		WithSender(ChannelEmail, sender),
		WithOrchestratorClock(func() time.Time { return now }),
	)

	at := testNow.Add(8 * time.Hour)
	d := Decision{Mode: ModeScheduled, Channels: []Channel{ChannelEmail}, ScheduledFor: &at, EffectivePriority: PriorityNormal, Reason: ReasonQuietHoursDeferred}
	res, err := o.Schedule(ctx, d, emailRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, res.Status)
	assert.Equal(t, ModeScheduled, res.Mode)
	require.Len(t, res.Channels, 1)
	assert.Equal(t, StatusPending, res.Channels[0].Status)

	rec, err := storage.Get(ctx, "u1", res.Channels[0].NotificationID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	require.NotNil(t, rec.ScheduledAt)
	assert.Equal(t, at, *rec.ScheduledAt)

	report, err := o.FlushDueScheduled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Claimed)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	now = at.Add(time.Second)
	report, err = o.FlushDueScheduled(ctx)
	require.NoError(t, err)
	assert.Equal(t, ScheduledReport{Claimed: 1, Sent: 1}, report)

	rec, err = storage.Get(ctx, "u1", res.Channels[0].NotificationID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, rec.Status)
	assert.Nil(t, rec.LeasedUntil)

	report, err = o.FlushDueScheduled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Claimed)
	sender.AssertNumberOfCalls(t, "Send", 1)
}

func TestOrchestrator_FlushSkipsRecentDelivery(t *testing.T) {
	ctx := context.Background()
	sender := &MockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(nil)

	now := testNow
	clock := func() time.Time { return now }
	history := NewMemoryHistory(WithHistoryClock(clock))
	o, storage, _ := newTestOrchestrator(t,
		WithSender(ChannelEmail, sender),
		WithHistory(history),
		WithOrchestratorClock(clock),
	)

	at := testNow.Add(time.Hour)
	d := Decision{Mode: ModeScheduled, Channels: []Channel{ChannelEmail}, ScheduledFor: &at, EffectivePriority: PriorityNormal, Reason: ReasonQuietHoursDeferred}
	res, err := o.Schedule(ctx, d, emailRequest("u1"))
	require.NoError(t, err)

	now = at.Add(time.Minute)
	require.NoError(t, history.RecordDelivery(ctx, "u1", ChannelEmail, "appointment-confirmation", now.Add(-5*time.Minute)))

	report, err := o.FlushDueScheduled(ctx)
	require.NoError(t, err)
	assert.Equal(t, ScheduledReport{Claimed: 1, Cancelled: 1}, report)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	rec, err := storage.Get(ctx, "u1", res.Channels[0].NotificationID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, rec.Status)
	assert.Equal(t, ReasonThrottledDuplicate, rec.Metadata["decision_reason"])
	assert.Nil(t, rec.LeasedUntil)

	t.Run("outside window", func(t *testing.T) {
		o, _, _ := newTestOrchestrator(t,
			WithSender(ChannelEmail, sender),
			WithHistory(history),
			WithDuplicateWindow(time.Minute),
			WithOrchestratorClock(clock),
		)
		_, err := o.Schedule(ctx, d, emailRequest("u1"))
		require.NoError(t, err)

		report, err := o.FlushDueScheduled(ctx)
		require.NoError(t, err)
		assert.Equal(t, ScheduledReport{Claimed: 1, Sent: 1}, report)
	})
}

func TestOrchestrator_ScheduleRequiresScheduledDecision(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	_, err := o.Schedule(context.Background(), immediate(ChannelEmail), emailRequest("u1"))
	assert.ErrorIs(t, err, ErrInvalidDecision)

	_, err = o.ExecuteImmediate(context.Background(), Decision{Mode: ModeDigest}, emailRequest("u1"))
	assert.ErrorIs(t, err, ErrInvalidDecision)
}

func TestOrchestrator_AddToDigest(t *testing.T) {
	ctx := context.Background()
	o, storage, digests := newTestOrchestrator(t)

	res, err := o.AddToDigest(ctx, Decision{Mode: ModeDigest, EffectivePriority: PriorityLow, Reason: ReasonDigest}, emailRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, res.Status)
	assert.NotEmpty(t, res.DigestEntryID)

	entries, err := digests.Entries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, res.DigestEntryID, entries[0].ID)
	assert.Equal(t, "appointment-confirmation", entries[0].Template)
	assert.Equal(t, testNow, entries[0].QueuedAt)

	list, err := storage.List(ctx, "u1", ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOrchestrator_Suppress(t *testing.T) {
	ctx := context.Background()
	o, storage, _ := newTestOrchestrator(t)

	d := Decision{Mode: ModeSuppressed, Channels: []Channel{ChannelEmail}, EffectivePriority: PriorityNormal, Reason: ReasonThrottledDuplicate}
	res, err := o.Suppress(ctx, d, emailRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, ResultRejected, res.Status)

	list, err := storage.List(ctx, "u1", ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, StatusCancelled, list[0].Status)
	assert.Equal(t, ReasonThrottledDuplicate, list[0].Metadata["decision_reason"])
}

func TestOrchestrator_ChannelRateLimit(t *testing.T) {
	sender := &MockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(nil)

	o, _, _ := newTestOrchestrator(t, WithSender(ChannelEmail, sender), WithChannelRateLimit(ChannelEmail, 1000, 5))
	require.NotNil(t, o.limiters[ChannelEmail])

	for range 3 {
		res, err := o.ExecuteImmediate(context.Background(), immediate(ChannelEmail), emailRequest("u1"))
		require.NoError(t, err)
		assert.Equal(t, ResultSuccess, res.Status)
	}
}
