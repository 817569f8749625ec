package worker

// Task type names registered on the asynq mux.
const (
	TypeEvent          = "notify:event"
	TypeRequest        = "notify:request"
	TypeFlushScheduled = "notify:flush_scheduled"
	TypeFlushDigests   = "notify:flush_digests"
)
