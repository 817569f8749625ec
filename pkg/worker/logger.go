package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// asynqLogger adapts slog to the asynq.Logger interface.
type asynqLogger struct {
	log *slog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.write(slog.LevelDebug, args) }
func (l asynqLogger) Info(args ...any)  { l.write(slog.LevelInfo, args) }
func (l asynqLogger) Warn(args ...any)  { l.write(slog.LevelWarn, args) }
func (l asynqLogger) Error(args ...any) { l.write(slog.LevelError, args) }

func (l asynqLogger) Fatal(args ...any) {
	l.write(slog.LevelError, args)
	os.Exit(1)
}

func (l asynqLogger) write(level slog.Level, args []any) {
	l.log.LogAttrs(context.Background(), level, fmt.Sprint(args...))
}
