package main

import (
	"github.com/dmitrymomot/notifykit/pkg/channels/push"
	"github.com/dmitrymomot/notifykit/pkg/channels/sms"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/redis"
	"github.com/dmitrymomot/notifykit/pkg/worker"
)

type appConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`              // Env selects logger defaults: development, staging or production.
	ServiceName string `env:"APP_SERVICE_NAME" envDefault:"notifier"`        // ServiceName is attached to every log record.
	LogLevel    string `env:"LOG_LEVEL"`                                     // LogLevel overrides the environment default level.
	Brand       string `env:"NOTIFY_BRAND" envDefault:"SkillSwap"`           // Brand is printed in the email footer.
	InAppPrefix string `env:"NOTIFY_INAPP_PREFIX" envDefault:"notify:inapp"` // InAppPrefix is the Redis channel prefix of in-app events.
	SMSEnabled  bool   `env:"NOTIFY_SMS_ENABLED" envDefault:"false"`         // SMSEnabled registers the SNS sender.
	PushEnabled bool   `env:"NOTIFY_PUSH_ENABLED" envDefault:"false"`        // PushEnabled registers the FCM sender.

	HTTP   httpserver.Config
	PG     pg.Config
	Redis  redis.Config
	Notify notifications.Config
	Worker worker.Config
	Email  email.Config
	SMS    sms.Config
	Push   push.Config
}

// migrateConfig is the subset needed by the migrate command.
type migrateConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"APP_SERVICE_NAME" envDefault:"notifier"`
	LogLevel    string `env:"LOG_LEVEL"`

	PG pg.Config
}
