package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Orchestrator executes routing decisions: it sends through channel senders,
// persists one record per channel, schedules deferred sends and queues digest
// entries. It owns the retry policy.
type Orchestrator struct {
	storage    Storage
	digests    DigestQueue
	senders    map[Channel]ChannelSender
	limiters   map[Channel]*rate.Limiter
	renderer   Renderer
	resolver   RecipientResolver
	prefs      PreferenceStore
	history    DeliveryHistory
	dupWindow  time.Duration
	backoff    BackoffStrategy
	maxRetries int
	batchSize  int
	lease      time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger
}

// NewOrchestrator creates an orchestrator on top of the record storage and digest queue.
func NewOrchestrator(storage Storage, digests DigestQueue, opts ...OrchestratorOption) (*Orchestrator, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}
	if digests == nil {
		return nil, ErrDigestQueueNil
	}

	o := &Orchestrator{
		storage:    storage,
		digests:    digests,
		senders:    make(map[Channel]ChannelSender),
		limiters:   make(map[Channel]*rate.Limiter),
		renderer:   PlainRenderer{},
		dupWindow:  DefaultThrottleWindow,
		backoff:    DefaultBackoff(),
		maxRetries: 2,
		batchSize:  100,
		lease:      time.Minute,
		now:        time.Now,
		sleep:      sleepContext,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ExecuteImmediate sends to every decision channel in order. Channels are
// independent: a failure does not stop the next channel. If ctx is cancelled,
// channels not yet attempted are skipped and the partial result is returned
// together with the context error.
func (o *Orchestrator) ExecuteImmediate(ctx context.Context, d Decision, req Request) (Result, error) {
	if d.Mode != ModeImmediate {
		return Result{}, fmt.Errorf("%w: execute immediate with %s decision", ErrInvalidDecision, d.Mode)
	}
	req = req.Normalize()

	channels, err := o.dispatch(ctx, dispatchJob{
		userID:    req.UserID,
		ntype:     req.Type,
		template:  req.Template,
		priority:  d.EffectivePriority,
		silent:    d.Silent,
		reason:    d.Reason,
		channels:  d.Channels,
		variables: req.Variables,
		metadata:  req.Metadata,
		addresses: req.Recipients,
	})
	return deliveryResult(d, channels), err
}

// Schedule persists one pending record per decision channel. FlushDueScheduled
// delivers them at or after the scheduled time.
func (o *Orchestrator) Schedule(ctx context.Context, d Decision, req Request) (Result, error) {
	if d.Mode != ModeScheduled || d.ScheduledFor == nil {
		return Result{}, fmt.Errorf("%w: schedule with %s decision", ErrInvalidDecision, d.Mode)
	}
	req = req.Normalize()
	now := o.now()
	at := d.ScheduledFor.UTC()

	results := make([]ChannelResult, 0, len(d.Channels))
	for _, ch := range d.Channels {
		rec := o.newRecord(dispatchJob{
			userID:      req.UserID,
			ntype:       req.Type,
			template:    req.Template,
			priority:    d.EffectivePriority,
			silent:      d.Silent,
			reason:      d.Reason,
			allowDigest: req.AllowDigest,
			variables:   req.Variables,
			metadata:    req.Metadata,
			addresses:   req.Recipients,
		}, ch, now)
		rec.ScheduledAt = &at

		if err := o.storage.Create(ctx, rec); err != nil {
			return Result{}, errors.Join(ErrPersistence, err)
		}
		results = append(results, ChannelResult{NotificationID: rec.ID, Channel: ch, Status: StatusPending})
	}

	o.logger.LogAttrs(ctx, slog.LevelDebug, "Notification scheduled",
		logger.UserID(req.UserID),
		logger.Template(req.Template),
		slog.Time("scheduled_for", at),
		logger.Reason(d.Reason),
	)

	return Result{
		Status:       ResultSuccess,
		Mode:         ModeScheduled,
		Reason:       d.Reason,
		ScheduledFor: &at,
		Channels:     results,
	}, nil
}

// AddToDigest appends a digest entry. No record is created until the digest
// is flushed.
func (o *Orchestrator) AddToDigest(ctx context.Context, d Decision, req Request) (Result, error) {
	if d.Mode != ModeDigest {
		return Result{}, fmt.Errorf("%w: add to digest with %s decision", ErrInvalidDecision, d.Mode)
	}
	req = req.Normalize()

	entry := DigestEntry{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Type:      req.Type,
		Template:  req.Template,
		Priority:  d.EffectivePriority,
		Variables: cloneStrings(req.Variables),
		QueuedAt:  o.now().UTC(),
	}
	if err := o.digests.Append(ctx, entry); err != nil {
		return Result{}, errors.Join(ErrPersistence, err)
	}

	return Result{
		Status:        ResultSuccess,
		Mode:          ModeDigest,
		Reason:        d.Reason,
		DigestEntryID: entry.ID,
	}, nil
}

// Suppress records a cancelled notification per decision channel so the
// dropped duplicate stays visible in the audit history.
func (o *Orchestrator) Suppress(ctx context.Context, d Decision, req Request) (Result, error) {
	req = req.Normalize()
	now := o.now()

	results := make([]ChannelResult, 0, len(d.Channels))
	for _, ch := range d.Channels {
		rec := o.newRecord(dispatchJob{
			userID:    req.UserID,
			ntype:     req.Type,
			template:  req.Template,
			priority:  d.EffectivePriority,
			reason:    d.Reason,
			variables: req.Variables,
			metadata:  req.Metadata,
			addresses: req.Recipients,
		}, ch, now)
		if err := rec.Transition(StatusCancelled, now); err != nil {
			return Result{}, err
		}
		if err := o.storage.Create(ctx, rec); err != nil {
			return Result{}, errors.Join(ErrPersistence, err)
		}
		results = append(results, ChannelResult{NotificationID: rec.ID, Channel: ch, Status: StatusCancelled})
	}

	o.logger.LogAttrs(ctx, slog.LevelInfo, "Duplicate notification suppressed",
		logger.UserID(req.UserID),
		logger.Template(req.Template),
		logger.Reason(d.Reason),
	)

	return Result{
		Status:   ResultRejected,
		Mode:     ModeSuppressed,
		Reason:   d.Reason,
		Channels: results,
	}, nil
}

// ScheduledReport summarizes one FlushDueScheduled run. Claimed records that
// duplicate a recent delivery are Digested or Cancelled instead of sent.
type ScheduledReport struct {
	Claimed   int
	Sent      int
	Failed    int
	Digested  int
	Cancelled int
}

// FlushDueScheduled claims due pending records and delivers them. It is called
// periodically by the host scheduler.
//
// Records deferred by quiet hours were routed before any of them was sent, so
// the duplicate guard runs again here: a record whose (user, channel,
// template) was delivered within the duplicate window, or earlier in the same
// run, is not sent.
func (o *Orchestrator) FlushDueScheduled(ctx context.Context) (ScheduledReport, error) {
	var report ScheduledReport

	due, err := o.storage.ClaimDue(ctx, o.now(), o.batchSize, o.lease)
	if err != nil {
		return report, errors.Join(ErrPersistence, err)
	}
	report.Claimed = len(due)

	sent := make(map[historyKey]bool, len(due))
	for i := range due {
		if err := ctx.Err(); err != nil {
			// Unprocessed claims become visible again once the lease expires.
			return report, err
		}
		rec := &due[i]
		key := historyKey{userID: rec.UserID, channel: rec.Channel, template: rec.Template}

		if sent[key] || o.deliveredRecently(ctx, rec) {
			status, err := o.dropDuplicate(ctx, rec)
			if err != nil {
				return report, err
			}
			if status == StatusDigested {
				report.Digested++
			} else {
				report.Cancelled++
			}
			continue
		}

		res, err := o.deliver(ctx, rec)
		switch res.Status {
		case StatusSent:
			report.Sent++
			sent[key] = true
		case StatusFailed:
			report.Failed++
		}
		if err != nil {
			return report, err
		}
	}

	if report.Claimed > 0 {
		o.logger.LogAttrs(ctx, slog.LevelInfo, "Scheduled notifications flushed",
			slog.Int("claimed", report.Claimed),
			slog.Int("sent", report.Sent),
			slog.Int("failed", report.Failed),
			slog.Int("digested", report.Digested),
			slog.Int("cancelled", report.Cancelled),
		)
	}
	return report, nil
}

// deliveredRecently reports whether history holds a delivery of the same
// template on the same channel inside the duplicate window. History read
// failures let the record through.
func (o *Orchestrator) deliveredRecently(ctx context.Context, rec *Notification) bool {
	if o.history == nil || o.dupWindow <= 0 || rec.Priority == PriorityCritical {
		return false
	}
	recent, err := o.history.GetRecentDeliveries(ctx, rec.UserID, rec.Channel, rec.Template, o.dupWindow)
	if err != nil {
		o.logger.LogAttrs(ctx, slog.LevelWarn, "Failed to read delivery history",
			logger.NotificationID(rec.ID),
			logger.Channel(rec.Channel),
			logger.Error(err),
		)
		return false
	}
	return len(recent) > 0
}

// dropDuplicate resolves a duplicate scheduled record the way the router
// resolves a fully throttled request: into the digest at low priority when the
// request allowed it, otherwise cancelled.
func (o *Orchestrator) dropDuplicate(ctx context.Context, rec *Notification) (Status, error) {
	now := o.now().UTC()
	status, reason := StatusCancelled, ReasonThrottledDuplicate
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]string, 1)
	}

	if rec.Metadata[metaAllowDigest] == "true" {
		entry := DigestEntry{
			ID:        uuid.NewString(),
			UserID:    rec.UserID,
			Type:      rec.Type,
			Template:  rec.Template,
			Priority:  PriorityLow,
			Variables: cloneStrings(rec.Variables),
			QueuedAt:  now,
		}
		if err := o.digests.Append(ctx, entry); err != nil {
			return "", errors.Join(ErrPersistence, err)
		}
		status, reason = StatusDigested, ReasonThrottledDigest
		rec.Metadata["digest_entry_id"] = entry.ID
	}
	rec.Metadata[metaDecisionReason] = reason
	if err := rec.Transition(status, now); err != nil {
		return "", err
	}
	if err := o.storage.Update(context.WithoutCancel(ctx), *rec); err != nil {
		return "", errors.Join(ErrPersistence, err)
	}

	o.logger.LogAttrs(ctx, slog.LevelInfo, "Duplicate scheduled notification dropped",
		logger.NotificationID(rec.ID),
		logger.UserID(rec.UserID),
		logger.Channel(rec.Channel),
		logger.Template(rec.Template),
		logger.Reason(reason),
	)
	return status, nil
}

// Record metadata keys written by the orchestrator.
const (
	metaDecisionReason = "decision_reason"
	metaAllowDigest    = "allow_digest"
)

// dispatchJob carries everything needed to create and deliver records.
// content is set for pre-rendered notifications such as digests.
type dispatchJob struct {
	userID      string
	ntype       string
	template    string
	priority    Priority
	silent      bool
	reason      string
	allowDigest bool
	channels    []Channel
	variables   map[string]string
	metadata    map[string]string
	addresses   map[Channel]string
	content     *Content
}

func (o *Orchestrator) dispatch(ctx context.Context, job dispatchJob) ([]ChannelResult, error) {
	now := o.now()
	results := make([]ChannelResult, 0, len(job.channels))

	for _, ch := range job.channels {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		rec := o.newRecord(job, ch, now)
		if err := o.storage.Create(ctx, rec); err != nil {
			return results, errors.Join(ErrPersistence, err)
		}

		res, err := o.deliver(ctx, &rec)
		if res.NotificationID != "" {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (o *Orchestrator) newRecord(job dispatchJob, ch Channel, now time.Time) Notification {
	metadata := cloneStrings(job.metadata)
	if job.reason != "" || job.allowDigest {
		if metadata == nil {
			metadata = make(map[string]string, 2)
		}
	}
	if job.reason != "" {
		metadata[metaDecisionReason] = job.reason
	}
	if job.allowDigest {
		metadata[metaAllowDigest] = "true"
	}

	rec := Notification{
		ID:        uuid.NewString(),
		UserID:    job.userID,
		Type:      job.ntype,
		Template:  job.template,
		Channel:   ch,
		Recipient: job.addresses[ch],
		Priority:  job.priority,
		Status:    StatusPending,
		Variables: cloneStrings(job.variables),
		Silent:    job.silent,
		Metadata:  metadata,
		CreatedAt: now.UTC(),
	}
	if job.content != nil {
		rec.Subject = job.content.Subject
		rec.Body = job.content.Body
	}
	return rec
}

// deliver sends a pending record with retries and persists its final status.
// The returned error is non-nil only for persistence failures and cancellation.
func (o *Orchestrator) deliver(ctx context.Context, rec *Notification) (ChannelResult, error) {
	sendErr := o.prepare(ctx, rec)
	if sendErr == nil {
		sendErr = o.send(ctx, rec)
	}

	at := o.now().UTC()
	status := StatusSent
	if sendErr != nil {
		status = StatusFailed
		rec.LastError = sendErr.Error()
	}
	if err := rec.Transition(status, at); err != nil {
		return ChannelResult{}, err
	}

	// The final status is written even if the caller has gone away.
	if err := o.storage.Update(context.WithoutCancel(ctx), *rec); err != nil {
		return ChannelResult{}, errors.Join(ErrPersistence, err)
	}

	res := ChannelResult{
		NotificationID: rec.ID,
		Channel:        rec.Channel,
		Status:         rec.Status,
		Attempts:       rec.Attempts,
		Err:            sendErr,
	}

	if sendErr != nil {
		o.logger.LogAttrs(ctx, slog.LevelError, "Notification delivery failed",
			logger.NotificationID(rec.ID),
			logger.UserID(rec.UserID),
			logger.Channel(rec.Channel),
			logger.Template(rec.Template),
			logger.Attempt(rec.Attempts),
			logger.Error(sendErr),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		return res, nil
	}

	if o.history != nil {
		if err := o.history.RecordDelivery(ctx, rec.UserID, rec.Channel, rec.Template, at); err != nil {
			o.logger.LogAttrs(ctx, slog.LevelWarn, "Failed to record delivery history",
				logger.NotificationID(rec.ID),
				logger.Channel(rec.Channel),
				logger.Error(err),
			)
		}
	}
	return res, nil
}

// prepare resolves the recipient and renders content if needed.
// Failures are permanent for the record.
func (o *Orchestrator) prepare(ctx context.Context, rec *Notification) error {
	if rec.Recipient == "" {
		addr, err := o.resolveRecipient(ctx, rec.UserID, rec.Channel)
		if err != nil {
			return Permanent(err)
		}
		rec.Recipient = addr
	}

	if rec.Subject == "" && rec.Body == "" {
		content, err := o.renderer.Render(ctx, rec.Template, rec.Channel, rec.Variables)
		if err != nil {
			return Permanent(fmt.Errorf("render %s: %w", rec.Template, err))
		}
		rec.Subject = content.Subject
		rec.Body = content.Body
	}
	return nil
}

func (o *Orchestrator) resolveRecipient(ctx context.Context, userID string, ch Channel) (string, error) {
	if o.prefs != nil {
		if pref, err := o.prefs.GetPreferenceSnapshot(ctx, userID); err == nil {
			if addr := pref.Address(ch); addr != "" {
				return addr, nil
			}
		}
	}
	if o.resolver != nil {
		addr, err := o.resolver.ResolveRecipient(ctx, userID, ch)
		if err != nil && !errors.Is(err, ErrNoRecipient) {
			return "", err
		}
		if addr != "" {
			return addr, nil
		}
	}
	if !ch.Capability().RequiresAddress {
		return userID, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoRecipient, ch)
}

// send calls the channel sender, retrying transient failures with backoff.
func (o *Orchestrator) send(ctx context.Context, rec *Notification) error {
	sender, ok := o.senders[rec.Channel]
	if !ok {
		return Permanent(fmt.Errorf("%w: %s", ErrNoSender, rec.Channel))
	}

	msg := Message{
		NotificationID: rec.ID,
		UserID:         rec.UserID,
		Type:           rec.Type,
		Template:       rec.Template,
		Channel:        rec.Channel,
		Recipient:      rec.Recipient,
		Priority:       rec.Priority,
		Silent:         rec.Silent,
		Content:        Content{Subject: rec.Subject, Body: rec.Body},
		Metadata:       rec.Metadata,
	}

	for retry := 0; ; retry++ {
		if limiter := o.limiters[rec.Channel]; limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		rec.Attempts++
		err := sender.Send(ctx, msg)
		if err == nil {
			return nil
		}
		if IsPermanent(err) || ctx.Err() != nil {
			return err
		}
		if retry >= o.maxRetries {
			return fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
		}

		delay := o.backoff.NextInterval(retry + 1)
		o.logger.LogAttrs(ctx, slog.LevelWarn, "Notification send failed, retrying",
			logger.NotificationID(rec.ID),
			logger.Channel(rec.Channel),
			logger.Attempt(rec.Attempts),
			logger.Duration(delay),
			logger.Error(err),
		)
		if err := o.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
