// Package notifications decides how and when a user is notified about a
// domain event, and executes that decision.
//
// # Architecture
//
//   - Router: pure decision logic. Given a Request, the user's Preference
//     snapshot and recent DeliveryHistory it returns a Decision: send now,
//     schedule for later, add to the user's digest, or suppress a duplicate.
//   - Orchestrator: executes decisions against ChannelSender implementations,
//     persists one Notification record per channel and retries transient
//     failures with backoff.
//   - DigestAggregator: periodically folds queued DigestEntry items into one
//     consolidated notification per user.
//   - Manager: the entry point for event consumers (RouteAndDispatch).
//
// Storage, DigestQueue, PreferenceStore, DeliveryHistory and Locker have
// in-memory implementations here; Postgres and Redis implementations live in
// the pgstore and redisstore subpackages.
//
// # Routing rules
//
// Critical requests always go out immediately on every opted-in channel and
// ignore digests and quiet hours. During quiet hours Low and Normal requests
// are scheduled for the end of the window while High requests go out on silent
// channels only. Digest-eligible Low and Normal requests are queued. Everything
// else is sent to the type's ordered channels that the user opted into, with
// Email as the last resort. A channel that already delivered the same template
// within the throttle window is skipped.
//
// # Basic Usage
//
//	storage := notifications.NewMemoryStorage()
//	digests := notifications.NewMemoryDigestQueue()
//	prefs := notifications.NewMemoryPreferenceStore()
//	history := notifications.NewMemoryHistory()
//
//	orch, err := notifications.NewOrchestrator(storage, digests,
//	    notifications.WithSender(notifications.ChannelEmail, emailSender),
//	    notifications.WithHistory(history),
//	    notifications.WithPreferenceStore(prefs),
//	)
//	if err != nil {
//	    return err
//	}
//	manager, err := notifications.NewManager(notifications.NewRouter(prefs, history), orch)
//	if err != nil {
//	    return err
//	}
//
//	res, err := manager.RouteAndDispatch(ctx, notifications.Request{
//	    UserID:      "user123",
//	    Template:    "match_found",
//	    Priority:    notifications.PriorityNormal,
//	    AllowDigest: true,
//	})
//
// The host process calls Orchestrator.FlushDueScheduled and
// DigestAggregator.FlushDigests periodically.
package notifications
