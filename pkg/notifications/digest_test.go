package notifications

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func queueEntries(t *testing.T, q DigestQueue, userID string, n int, queuedAt time.Time) {
	t.Helper()
	for i := range n {
		require.NoError(t, q.Append(context.Background(), DigestEntry{
			ID:        userID + "-entry-" + string(rune('a'+i)),
			UserID:    userID,
			Type:      "match",
			Template:  "match_found",
			Priority:  PriorityLow,
			Variables: map[string]string{"body": "New match #" + string(rune('1'+i))},
			QueuedAt:  queuedAt,
		}))
	}
}

func TestNewDigestAggregator(t *testing.T) {
	_, err := NewDigestAggregator(nil)
	assert.ErrorIs(t, err, ErrOrchestratorNil)
}

func TestDigestAggregator_RoundTrip(t *testing.T) {
	ctx := context.Background()
	email := &MockSender{}
	email.On("Send", mock.Anything, mock.MatchedBy(func(m Message) bool {
		return m.Template == DigestTemplate &&
			m.Content.Subject == "3 new updates" &&
			strings.Contains(m.Content.Body, "New match #1") &&
			strings.Contains(m.Content.Body, "New match #3")
	})).Return(nil).Once()

	o, storage, digests := newTestOrchestrator(t,
		WithSender(ChannelEmail, email),
		WithRecipientResolver(resolverFunc(func(ctx context.Context, userID string, ch Channel) (string, error) {
			return userID + "@example.com", nil
		})),
	)
	agg, err := NewDigestAggregator(o,
		WithDigestWindow(time.Hour),
		WithDigestClock(fixedClock(testNow)),
	)
	require.NoError(t, err)

	queueEntries(t, digests, "u1", 3, testNow.Add(-2*time.Hour))

	report, err := agg.FlushDigests(ctx)
	require.NoError(t, err)
	assert.Equal(t, DigestReport{Users: 1, Sent: 1, Entries: 3}, report)
	assert.Equal(t, StateIdle, agg.State())

	consolidated, err := storage.List(ctx, "u1", ListOptions{Types: []string{DigestType}})
	require.NoError(t, err)
	require.Len(t, consolidated, 1)
	assert.Equal(t, StatusSent, consolidated[0].Status)
	assert.Equal(t, "3", consolidated[0].Metadata["digest_entries"])

	digested, err := storage.List(ctx, "u1", ListOptions{Statuses: []Status{StatusDigested}})
	require.NoError(t, err)
	require.Len(t, digested, 3)
	for _, rec := range digested {
		assert.Equal(t, consolidated[0].ID, rec.Metadata["digest_id"])
	}

	remaining, err := digests.Entries(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, remaining)
	email.AssertExpectations(t)
}

func TestDigestAggregator_FailureKeepsEntries(t *testing.T) {
	ctx := context.Background()
	email := &MockSender{}
	email.On("Send", mock.Anything, mock.Anything).Return(errTransient)

	prefs := NewMemoryPreferenceStore()
	prefs.Set(Preference{UserID: "u1", Addresses: map[Channel]string{ChannelEmail: "u1@example.com"}})
	o, storage, digests := newTestOrchestrator(t, WithSender(ChannelEmail, email), WithPreferenceStore(prefs))
	agg, err := NewDigestAggregator(o, WithDigestClock(fixedClock(testNow)))
	require.NoError(t, err)

	queueEntries(t, digests, "u1", 2, testNow.Add(-2*time.Hour))

	report, err := agg.FlushDigests(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Sent)

	remaining, err := digests.Entries(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, remaining, 2)

	digested, err := storage.List(ctx, "u1", ListOptions{Statuses: []Status{StatusDigested}})
	require.NoError(t, err)
	assert.Empty(t, digested)

	failed, err := storage.List(ctx, "u1", ListOptions{Statuses: []Status{StatusFailed}})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 3, failed[0].Attempts)
	email.AssertNumberOfCalls(t, "Send", 3)
}

// flakyDeleteQueue fails the first Delete call.
type flakyDeleteQueue struct {
	*MemoryDigestQueue
	failed bool
}

func (q *flakyDeleteQueue) Delete(ctx context.Context, userID string, ids ...string) error {
	if !q.failed {
		q.failed = true
		return errors.New("connection lost")
	}
	return q.MemoryDigestQueue.Delete(ctx, userID, ids...)
}

func TestDigestAggregator_RetryAfterDeleteFailure(t *testing.T) {
	ctx := context.Background()
	email := &MockSender{}
	email.On("Send", mock.Anything, mock.Anything).Return(nil)

	storage := NewMemoryStorage()
	queue := &flakyDeleteQueue{MemoryDigestQueue: NewMemoryDigestQueue()}
	o, err := NewOrchestrator(storage, queue,
		WithSender(ChannelEmail, email),
		WithBackoff(FixedBackoff{}),
		WithOrchestratorClock(fixedClock(testNow)),
		WithRecipientResolver(resolverFunc(func(ctx context.Context, userID string, ch Channel) (string, error) {
			return userID + "@example.com", nil
		})),
	)
	require.NoError(t, err)
	agg, err := NewDigestAggregator(o, WithDigestClock(fixedClock(testNow)))
	require.NoError(t, err)

	queueEntries(t, queue, "u1", 2, testNow.Add(-2*time.Hour))

	_, err = agg.FlushDigests(ctx)
	assert.ErrorIs(t, err, ErrPersistence)

	remaining, err := queue.Entries(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, remaining, 2)

	report, err := agg.FlushDigests(ctx)
	require.NoError(t, err)
	assert.Equal(t, DigestReport{Users: 1, Sent: 1, Entries: 2}, report)

	digested, err := storage.List(ctx, "u1", ListOptions{Statuses: []Status{StatusDigested}})
	require.NoError(t, err)
	assert.Len(t, digested, 2)

	remaining, err = queue.Entries(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, remaining)
	email.AssertNumberOfCalls(t, "Send", 2)
}

func TestDigestAggregator_RespectsWindowAndChannel(t *testing.T) {
	ctx := context.Background()
	inApp := &MockSender{}
	inApp.On("Send", mock.Anything, mock.Anything).Return(nil)

	o, _, digests := newTestOrchestrator(t, WithSender(ChannelInApp, inApp))
	prefs := NewMemoryPreferenceStore()
	prefs.Set(Preference{UserID: "u1", Digest: DigestHourly, DigestChannel: ChannelInApp})
	agg, err := NewDigestAggregator(o,
		WithDigestWindow(time.Hour),
		WithDigestClock(fixedClock(testNow)),
		WithDigestPreferences(prefs),
	)
	require.NoError(t, err)

	queueEntries(t, digests, "u1", 1, testNow.Add(-2*time.Hour))
	queueEntries(t, digests, "u2", 1, testNow.Add(-10*time.Minute))

	report, err := agg.FlushDigests(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Users)
	assert.Equal(t, 1, report.Sent)

	u2, err := digests.Entries(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, u2, 1)
	inApp.AssertNumberOfCalls(t, "Send", 1)
}

func TestDigestAggregator_SkipsLockedUser(t *testing.T) {
	ctx := context.Background()
	email := &MockSender{}

	locker := NewMemoryLocker()
	release, ok, err := locker.TryLock(ctx, "digest:u1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer release(ctx)

	o, _, digests := newTestOrchestrator(t, WithSender(ChannelEmail, email))
	agg, err := NewDigestAggregator(o, WithDigestLocker(locker), WithDigestClock(fixedClock(testNow)))
	require.NoError(t, err)
	queueEntries(t, digests, "u1", 1, testNow.Add(-2*time.Hour))

	report, err := agg.FlushDigests(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	remaining, err := digests.Entries(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestDigestAggregator_RefusesOverlappingRuns(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	unblock := make(chan struct{})

	email := SenderFunc(func(ctx context.Context, msg Message) error {
		close(started)
		<-unblock
		return nil
	})
	o, _, digests := newTestOrchestrator(t,
		WithSender(ChannelEmail, email),
		WithRecipientResolver(resolverFunc(func(ctx context.Context, userID string, ch Channel) (string, error) {
			return "u1@example.com", nil
		})),
	)
	agg, err := NewDigestAggregator(o, WithDigestClock(fixedClock(testNow)))
	require.NoError(t, err)
	queueEntries(t, digests, "u1", 1, testNow.Add(-2*time.Hour))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := agg.FlushDigests(ctx)
		assert.NoError(t, err)
	}()

	<-started
	assert.Equal(t, StateDispatching, agg.State())
	_, err = agg.FlushDigests(ctx)
	assert.ErrorIs(t, err, ErrFlushInProgress)

	close(unblock)
	wg.Wait()
	assert.Equal(t, StateIdle, agg.State())
}

func TestDigestAggregator_RenderFailure(t *testing.T) {
	ctx := context.Background()
	o, _, digests := newTestOrchestrator(t)
	renderer := digestRendererFunc(func(ctx context.Context, userID string, ch Channel, entries []DigestEntry) (Content, error) {
		return Content{}, errors.New("broken template")
	})
	agg, err := NewDigestAggregator(o, WithDigestRenderer(renderer), WithDigestClock(fixedClock(testNow)))
	require.NoError(t, err)
	queueEntries(t, digests, "u1", 2, testNow.Add(-2*time.Hour))

	report, err := agg.FlushDigests(ctx)
	assert.ErrorIs(t, err, ErrDigestDispatch)
	assert.Equal(t, 1, report.Failed)

	remaining, err := digests.Entries(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

type digestRendererFunc func(ctx context.Context, userID string, ch Channel, entries []DigestEntry) (Content, error)

func (f digestRendererFunc) RenderDigest(ctx context.Context, userID string, ch Channel, entries []DigestEntry) (Content, error) {
	return f(ctx, userID, ch, entries)
}
