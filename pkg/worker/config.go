package worker

import "time"

// Config holds the asynq server settings.
type Config struct {
	Concurrency     int           `env:"WORKER_CONCURRENCY" envDefault:"10"`          // Concurrency is the number of tasks processed in parallel.
	ShutdownTimeout time.Duration `env:"WORKER_SHUTDOWN_TIMEOUT" envDefault:"30s"`    // ShutdownTimeout bounds how long in-flight tasks may finish on stop.
	EventsQueue     string        `env:"WORKER_EVENTS_QUEUE" envDefault:"events"`     // EventsQueue receives domain events and routing requests.
	PeriodicQueue   string        `env:"WORKER_PERIODIC_QUEUE" envDefault:"periodic"` // PeriodicQueue receives the scheduled and digest flush tasks.
	MaxRetry        int           `env:"WORKER_MAX_RETRY" envDefault:"5"`             // MaxRetry is how often asynq redelivers a failed event task.
	Retention       time.Duration `env:"WORKER_RETENTION" envDefault:"24h"`           // Retention keeps completed event tasks for inspection.
	TaskTimeout     time.Duration `env:"WORKER_TASK_TIMEOUT" envDefault:"2m"`         // TaskTimeout bounds one task execution.
	Location        string        `env:"WORKER_CRON_LOCATION" envDefault:"UTC"`       // Location is the time zone of the cron specs.
}

func (c Config) queues() map[string]int {
	return map[string]int{
		c.EventsQueue:   6,
		c.PeriodicQueue: 3,
	}
}
