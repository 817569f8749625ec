package notifications

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// AggregatorState is the phase of a digest flush run.
type AggregatorState int32

const (
	StateIdle AggregatorState = iota
	StateCollecting
	StateDispatching
)

func (s AggregatorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollecting:
		return "collecting"
	case StateDispatching:
		return "dispatching"
	default:
		return "unknown"
	}
}

// DigestReport summarizes one FlushDigests run.
type DigestReport struct {
	Users   int // users with due entries
	Sent    int // consolidated notifications delivered
	Failed  int // users whose digest failed; their entries are kept
	Skipped int // users locked by another flush
	Entries int // entries consumed
}

// DigestAggregator periodically folds queued digest entries into one
// consolidated notification per user.
type DigestAggregator struct {
	orch      *Orchestrator
	queue     DigestQueue
	storage   Storage
	prefs     PreferenceStore
	locker    Locker
	renderer  DigestRenderer
	window    time.Duration
	lockTTL   time.Duration
	batchSize int
	now       func() time.Time
	state     atomic.Int32
	logger    *slog.Logger
}

// DigestOption configures a DigestAggregator.
type DigestOption func(*DigestAggregator)

// WithDigestWindow sets the minimum age of an entry before it is flushed.
func WithDigestWindow(d time.Duration) DigestOption {
	return func(a *DigestAggregator) {
		if d >= 0 {
			a.window = d
		}
	}
}

// WithDigestLocker sets the per-user lock. Defaults to a process-local MemoryLocker;
// use a shared locker when several processes flush.
func WithDigestLocker(l Locker) DigestOption {
	return func(a *DigestAggregator) {
		if l != nil {
			a.locker = l
		}
	}
}

// WithDigestLockTTL sets how long a per-user lock is held at most.
func WithDigestLockTTL(d time.Duration) DigestOption {
	return func(a *DigestAggregator) {
		if d > 0 {
			a.lockTTL = d
		}
	}
}

// WithDigestRenderer sets the consolidated content renderer.
func WithDigestRenderer(r DigestRenderer) DigestOption {
	return func(a *DigestAggregator) {
		if r != nil {
			a.renderer = r
		}
	}
}

// WithDigestPreferences sets where the digest channel of each user is read from.
func WithDigestPreferences(p PreferenceStore) DigestOption {
	return func(a *DigestAggregator) {
		a.prefs = p
	}
}

// WithDigestBatch limits how many users one run processes.
func WithDigestBatch(n int) DigestOption {
	return func(a *DigestAggregator) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// WithDigestClock overrides the time source.
func WithDigestClock(now func() time.Time) DigestOption {
	return func(a *DigestAggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithDigestLogger sets the logger for the DigestAggregator.
func WithDigestLogger(l *slog.Logger) DigestOption {
	return func(a *DigestAggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewDigestAggregator creates an aggregator that dispatches through orch and
// consumes orch's digest queue.
func NewDigestAggregator(orch *Orchestrator, opts ...DigestOption) (*DigestAggregator, error) {
	if orch == nil {
		return nil, ErrOrchestratorNil
	}

	a := &DigestAggregator{
		orch:      orch,
		queue:     orch.digests,
		storage:   orch.storage,
		prefs:     orch.prefs,
		locker:    NewMemoryLocker(),
		renderer:  NewJoinDigestRenderer(orch.renderer),
		window:    time.Hour,
		lockTTL:   5 * time.Minute,
		batchSize: 500,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// State returns the current phase.
func (a *DigestAggregator) State() AggregatorState {
	return AggregatorState(a.state.Load())
}

// FlushDigests sends one consolidated notification per user with entries older
// than the digest window. Overlapping runs are refused with ErrFlushInProgress.
// Entries are deleted only after a successful dispatch.
func (a *DigestAggregator) FlushDigests(ctx context.Context) (DigestReport, error) {
	if !a.state.CompareAndSwap(int32(StateIdle), int32(StateCollecting)) {
		return DigestReport{}, ErrFlushInProgress
	}
	defer a.state.Store(int32(StateIdle))

	var report DigestReport
	users, err := a.queue.PendingUsers(ctx, a.now().Add(-a.window), a.batchSize)
	if err != nil {
		return report, errors.Join(ErrPersistence, err)
	}
	report.Users = len(users)

	var errs []error
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		a.state.Store(int32(StateCollecting))

		if err := a.flushUser(ctx, userID, &report); err != nil {
			if ctx.Err() != nil {
				return report, err
			}
			errs = append(errs, err)
		}
	}

	if report.Users > 0 {
		a.logger.LogAttrs(ctx, slog.LevelInfo, "Digest flush finished",
			slog.Int("users", report.Users),
			slog.Int("sent", report.Sent),
			slog.Int("failed", report.Failed),
			slog.Int("skipped", report.Skipped),
			slog.Int("entries", report.Entries),
		)
	}
	return report, errors.Join(errs...)
}

func (a *DigestAggregator) flushUser(ctx context.Context, userID string, report *DigestReport) error {
	release, ok, err := a.locker.TryLock(ctx, "digest:"+userID, a.lockTTL)
	if err != nil {
		return errors.Join(ErrPersistence, err)
	}
	if !ok {
		report.Skipped++
		return nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			a.logger.LogAttrs(ctx, slog.LevelWarn, "Failed to release digest lock",
				logger.UserID(userID),
				logger.Error(err),
			)
		}
	}()

	entries, err := a.queue.Entries(ctx, userID)
	if err != nil {
		return errors.Join(ErrPersistence, err)
	}
	if len(entries) == 0 {
		return nil
	}

	ch := a.digestChannel(ctx, userID)
	content, err := a.renderer.RenderDigest(ctx, userID, ch, entries)
	if err != nil {
		report.Failed++
		return errors.Join(ErrDigestDispatch, err)
	}

	a.state.Store(int32(StateDispatching))
	results, err := a.orch.dispatch(ctx, dispatchJob{
		userID:   userID,
		ntype:    DigestType,
		template: DigestTemplate,
		priority: PriorityNormal,
		reason:   ReasonDigestFlush,
		channels: []Channel{ch},
		metadata: map[string]string{"digest_entries": strconv.Itoa(len(entries))},
		content:  &content,
	})
	if err != nil {
		report.Failed++
		return err
	}
	if len(results) == 0 || results[0].Status != StatusSent {
		report.Failed++
		var sendErr error
		if len(results) > 0 {
			sendErr = results[0].Err
		}
		a.logger.LogAttrs(ctx, slog.LevelWarn, "Digest dispatch failed, entries kept for next run",
			logger.UserID(userID),
			logger.Channel(ch),
			logger.Count(len(entries)),
			logger.Error(sendErr),
		)
		return nil
	}

	digestID := results[0].NotificationID
	if err := a.recordDigested(ctx, ch, digestID, entries); err != nil {
		return err
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if err := a.queue.Delete(ctx, userID, ids...); err != nil {
		return errors.Join(ErrPersistence, err)
	}

	report.Sent++
	report.Entries += len(entries)
	return nil
}

// digestRecordNamespace derives audit record IDs from digest entry IDs.
var digestRecordNamespace = uuid.MustParse("6f1c2e4a-8d3b-4c59-9a7e-2b5d0f4e8c11")

// digestRecordID is stable per entry, so a run that failed after writing some
// audit records does not duplicate them when the entries are flushed again.
func digestRecordID(entryID string) string {
	return uuid.NewSHA1(digestRecordNamespace, []byte(entryID)).String()
}

// recordDigested writes a Digested audit record per consumed entry, linked to
// the consolidated notification. Records left by an earlier partial run are
// kept as they are.
func (a *DigestAggregator) recordDigested(ctx context.Context, ch Channel, digestID string, entries []DigestEntry) error {
	at := a.now().UTC()
	for _, e := range entries {
		rec := Notification{
			ID:        digestRecordID(e.ID),
			UserID:    e.UserID,
			Type:      e.Type,
			Template:  e.Template,
			Channel:   ch,
			Priority:  e.Priority,
			Status:    StatusPending,
			Variables: cloneStrings(e.Variables),
			Metadata: map[string]string{
				"digest_id":       digestID,
				"digest_entry_id": e.ID,
			},
			CreatedAt: e.QueuedAt,
		}
		if err := rec.Transition(StatusDigested, at); err != nil {
			return err
		}
		if err := a.storage.Create(ctx, rec); err != nil {
			if errors.Is(err, ErrNotificationExists) {
				continue
			}
			return errors.Join(ErrPersistence, err)
		}
	}
	return nil
}

func (a *DigestAggregator) digestChannel(ctx context.Context, userID string) Channel {
	if a.prefs == nil {
		return ChannelEmail
	}
	pref, err := a.prefs.GetPreferenceSnapshot(ctx, userID)
	if err != nil {
		return ChannelEmail
	}
	return pref.DigestTarget()
}
