package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// TaskClient is the subset of *asynq.Client the Enqueuer needs.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer publishes notification tasks for the worker.
type Enqueuer struct {
	client TaskClient
	cfg    Config
}

// NewEnqueuer creates an Enqueuer publishing to cfg.EventsQueue.
func NewEnqueuer(client TaskClient, cfg Config) *Enqueuer {
	return &Enqueuer{client: client, cfg: cfg}
}

// EnqueueEvent queues a domain event. Events carrying a correlation ID are
// deduplicated by asynq while the task is retained; a duplicate is reported
// as success with an empty task ID.
func (e *Enqueuer) EnqueueEvent(ctx context.Context, ev events.Event) (string, error) {
	if _, err := events.Translate(ev); err != nil {
		return "", err
	}
	var opts []asynq.Option
	if ev.CorrelationID != "" {
		opts = append(opts, asynq.TaskID(ev.Name+":"+ev.UserID+":"+ev.CorrelationID))
	}
	return e.enqueue(ctx, TypeEvent, ev, opts...)
}

// EnqueueRequest queues a routing request built by the caller.
func (e *Enqueuer) EnqueueRequest(ctx context.Context, req notifications.Request) (string, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return "", err
	}
	return e.enqueue(ctx, TypeRequest, req)
}

func (e *Enqueuer) enqueue(ctx context.Context, taskType string, payload any, extra ...asynq.Option) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload of type %T: %w", payload, err)
	}

	opts := append([]asynq.Option{
		asynq.Queue(e.cfg.EventsQueue),
		asynq.MaxRetry(e.cfg.MaxRetry),
		asynq.Timeout(e.cfg.TaskTimeout),
		asynq.Retention(e.cfg.Retention),
	}, extra...)

	info, err := e.client.EnqueueContext(ctx, asynq.NewTask(taskType, raw), opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return "", nil
		}
		return "", errors.Join(ErrEnqueueFailed, err)
	}
	return info.ID, nil
}
