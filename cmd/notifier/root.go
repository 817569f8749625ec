package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

var envFiles []string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "notifier",
		Short: "Notification routing and delivery service",
		Long: `notifier turns platform events into email, SMS, push and in-app
notifications. It decides per event which channels to use and whether to send
now, defer past quiet hours, fold into a digest or drop a duplicate.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")

	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newLogger(env, service, level string) *slog.Logger {
	l := logger.New(
		logger.WithEnvironment(env, service),
		logger.WithLevelName(level),
		logger.WithOutput(os.Stderr),
	)
	logger.SetAsDefault(l)
	return l
}
