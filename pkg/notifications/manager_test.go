package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type managerFixture struct {
	manager *Manager
	storage *MemoryStorage
	digests *MemoryDigestQueue
	prefs   *MemoryPreferenceStore
	email   *MockSender
	inApp   *MockSender
}

func newManagerFixture(t *testing.T, now time.Time) managerFixture {
	t.Helper()
	return newManagerFixtureWithClock(t, fixedClock(now))
}

func newManagerFixtureWithClock(t *testing.T, clock func() time.Time) managerFixture {
	t.Helper()

	email := &MockSender{}
	email.On("Send", mock.Anything, mock.Anything).Return(nil).Maybe()
	inApp := &MockSender{}
	inApp.On("Send", mock.Anything, mock.Anything).Return(nil).Maybe()

	prefs := NewMemoryPreferenceStore()
	history := NewMemoryHistory(WithHistoryClock(clock))
	o, storage, digests := newTestOrchestrator(t,
		WithSender(ChannelEmail, email),
		WithSender(ChannelInApp, inApp),
		WithHistory(history),
		WithPreferenceStore(prefs),
		WithOrchestratorClock(clock),
		WithRecipientResolver(resolverFunc(func(ctx context.Context, userID string, ch Channel) (string, error) {
			return userID + "@example.com", nil
		})),
	)
	router := NewRouter(prefs, history, WithRouterClock(clock))
	m, err := NewManager(router, o)
	require.NoError(t, err)

	return managerFixture{manager: m, storage: storage, digests: digests, prefs: prefs, email: email, inApp: inApp}
}

func TestNewManager(t *testing.T) {
	_, err := NewManager(nil, nil)
	assert.ErrorIs(t, err, ErrOrchestratorNil)

	o, _, _ := newTestOrchestrator(t)
	m, err := NewManager(nil, o)
	require.NoError(t, err)
	assert.NotNil(t, m.router)
}

func TestManager_RouteAndDispatch_IdenticalRequests(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, testNow)
	req := Request{UserID: "u2", Template: "appointment-confirmation", Priority: PriorityNormal}

	first, err := f.manager.RouteAndDispatch(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, first.Status)
	assert.Equal(t, 1, first.Sent())

	for range 2 {
		res, err := f.manager.RouteAndDispatch(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, ResultRejected, res.Status)
		assert.Equal(t, ModeSuppressed, res.Mode)
		assert.Equal(t, ReasonThrottledDuplicate, res.Reason)
	}

	sent, err := f.manager.List(ctx, "u2", ListOptions{Statuses: []Status{StatusSent}})
	require.NoError(t, err)
	assert.Len(t, sent, 1)

	cancelled, err := f.manager.List(ctx, "u2", ListOptions{Statuses: []Status{StatusCancelled}})
	require.NoError(t, err)
	assert.Len(t, cancelled, 2)
	f.email.AssertNumberOfCalls(t, "Send", 1)
}

func TestManager_RouteAndDispatch_DuplicateDigested(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, testNow)
	req := Request{UserID: "u3", Template: "review", Priority: PriorityNormal, AllowDigest: true}

	first, err := f.manager.RouteAndDispatch(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ModeImmediate, first.Mode)

	second, err := f.manager.RouteAndDispatch(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ModeDigest, second.Mode)
	assert.Equal(t, ReasonThrottledDigest, second.Reason)

	entries, err := f.digests.Entries(ctx, "u3")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, PriorityLow, entries[0].Priority)
}

func TestManager_RouteAndDispatch_Rejected(t *testing.T) {
	f := newManagerFixture(t, testNow)

	tests := []struct {
		name string
		req  Request
	}{
		{"missing user", Request{Template: "match"}},
		{"missing template", Request{UserID: "u1"}},
		{"priority out of range", Request{UserID: "u1", Template: "match", Priority: Priority(9)}},
		{"unknown recipient channel", Request{UserID: "u1", Template: "match", Recipients: map[Channel]string{Channel(42): "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.manager.RouteAndDispatch(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, ResultRejected, res.Status)
			assert.NotEmpty(t, res.Reason)
		})
	}
	f.email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestManager_RouteAndDispatch_Modes(t *testing.T) {
	ctx := context.Background()
	night := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)

	t.Run("critical with allow digest sends immediately", func(t *testing.T) {
		f := newManagerFixture(t, testNow)
		f.prefs.Set(Preference{UserID: "u1", Channels: []Channel{ChannelEmail, ChannelInApp}, Digest: DigestDaily})

		res, err := f.manager.RouteAndDispatch(ctx, Request{UserID: "u1", Template: "security_alert", Priority: PriorityCritical, AllowDigest: true})
		require.NoError(t, err)
		assert.Equal(t, ResultSuccess, res.Status)
		assert.Equal(t, ModeImmediate, res.Mode)
		assert.Equal(t, 2, res.Sent())

		entries, err := f.digests.Entries(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("quiet hours schedule", func(t *testing.T) {
		f := newManagerFixture(t, night)
		f.prefs.Set(Preference{
			UserID:     "u1",
			Channels:   []Channel{ChannelEmail},
			QuietHours: &QuietHours{Start: "22:00", End: "07:00"},
		})

		res, err := f.manager.RouteAndDispatch(ctx, Request{UserID: "u1", Template: "match", Priority: PriorityNormal, RespectQuietHours: true})
		require.NoError(t, err)
		assert.Equal(t, ModeScheduled, res.Mode)
		require.NotNil(t, res.ScheduledFor)
		assert.Equal(t, time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC), *res.ScheduledFor)
		f.email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

		pending, err := f.manager.List(ctx, "u1", ListOptions{Statuses: []Status{StatusPending}})
		require.NoError(t, err)
		assert.Len(t, pending, 1)
	})

	t.Run("digest", func(t *testing.T) {
		f := newManagerFixture(t, testNow)
		f.prefs.Set(Preference{UserID: "u1", Channels: []Channel{ChannelEmail}, Digest: DigestDaily})

		res, err := f.manager.RouteAndDispatch(ctx, Request{UserID: "u1", Template: "skill", Priority: PriorityLow, AllowDigest: true})
		require.NoError(t, err)
		assert.Equal(t, ModeDigest, res.Mode)
		assert.NotEmpty(t, res.DigestEntryID)

		list, err := f.manager.List(ctx, "u1", ListOptions{})
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestManager_Get(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, testNow)

	res, err := f.manager.RouteAndDispatch(ctx, Request{UserID: "u1", Template: "account", Priority: PriorityHigh})
	require.NoError(t, err)
	require.Len(t, res.Channels, 1)

	got, err := f.manager.Get(ctx, "u1", res.Channels[0].NotificationID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, got.Status)
	assert.Equal(t, "u1@example.com", got.Recipient)
	assert.Equal(t, PriorityHigh, got.Priority)

	_, err = f.manager.Get(ctx, "u1", "missing")
	assert.ErrorIs(t, err, ErrNotificationNotFound)
	assert.Same(t, f.storage, f.manager.Storage())
}

func TestManager_QuietHoursDuplicatesSentOnce(t *testing.T) {
	ctx := context.Background()
	night := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		allowDigest  bool
		wantStatus   Status
		wantReport   ScheduledReport
		wantDigested int
	}{
		{"cancelled", false, StatusCancelled, ScheduledReport{Claimed: 3, Sent: 1, Cancelled: 2}, 0},
		{"digested", true, StatusDigested, ScheduledReport{Claimed: 3, Sent: 1, Digested: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := night
			f := newManagerFixtureWithClock(t, func() time.Time { return now })
			f.prefs.Set(Preference{
				UserID:     "u2",
				Channels:   []Channel{ChannelEmail},
				QuietHours: &QuietHours{Start: "22:00", End: "07:00"},
				Digest:     DigestDaily,
			})
			req := Request{
				UserID:            "u2",
				Template:          "appointment-confirmation",
				Priority:          PriorityNormal,
				RespectQuietHours: true,
				AllowDigest:       tt.allowDigest,
			}

			for range 3 {
				res, err := f.manager.RouteAndDispatch(ctx, req)
				require.NoError(t, err)
				assert.Equal(t, ModeScheduled, res.Mode)
			}

			now = time.Date(2026, 3, 11, 7, 1, 0, 0, time.UTC)
			report, err := f.manager.FlushDueScheduled(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantReport, report)
			f.email.AssertNumberOfCalls(t, "Send", 1)

			sent, err := f.manager.List(ctx, "u2", ListOptions{Statuses: []Status{StatusSent}})
			require.NoError(t, err)
			assert.Len(t, sent, 1)

			dropped, err := f.manager.List(ctx, "u2", ListOptions{Statuses: []Status{tt.wantStatus}})
			require.NoError(t, err)
			assert.Len(t, dropped, 2)

			entries, err := f.digests.Entries(ctx, "u2")
			require.NoError(t, err)
			assert.Len(t, entries, tt.wantDigested)
		})
	}
}
