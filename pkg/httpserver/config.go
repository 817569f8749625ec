package httpserver

import "time"

// Config is loaded from HTTP_* variables.
type Config struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	RequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"60s"` // applied by the router to /v1 routes
}

// NewFromConfig creates a Server from cfg. Zero values keep the defaults and
// opts are applied last.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	var fromCfg []Option
	if cfg.Addr != "" {
		fromCfg = append(fromCfg, WithAddr(cfg.Addr))
	}
	for _, d := range []struct {
		v   time.Duration
		opt func(time.Duration) Option
	}{
		{cfg.ReadTimeout, WithReadTimeout},
		{cfg.WriteTimeout, WithWriteTimeout},
		{cfg.IdleTimeout, WithIdleTimeout},
		{cfg.ShutdownTimeout, WithShutdownTimeout},
	} {
		if d.v > 0 {
			fromCfg = append(fromCfg, d.opt(d.v))
		}
	}
	return New(append(fromCfg, opts...)...)
}
