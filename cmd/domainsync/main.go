// domainsync keeps a tenant's custom domains in agreement between the record
// store and the hosting provider. It validates domains, detects drift,
// remediates it on a schedule or on demand, and exposes the same commands
// over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/domainsync/internal/config"
	"gitlab.bluewillows.net/root/domainsync/internal/metrics"
)

// Version and BuildDate are set via ldflags during build.
// Example: -ldflags="-X main.Version=v1.0.0 -X main.BuildDate=2026-01-03"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return newRootCommand().ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "domainsync",
		Short: "Custom domain lifecycle and drift reconciliation",
		Long: `domainsync validates custom domains, reconciles the record store
against the hosting provider and remediates drift.

Configuration is read from DOMAINSYNC_CONFIG (YAML or TOML), a .env file
and DOMAINSYNC_* environment variables, in increasing precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCommand(),
		newReconcileCommand(),
		newValidateCommand(),
		newFixCommand(),
		newRemoveCommand(),
		newVersionCommand(),
	)
	return root
}

// bootstrap loads configuration, installs the logger and wires the services.
func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	metrics.SetBuildInfo(Version, runtime.Version())

	a, err := newApp(cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func setupLogger(level, format string) *slog.Logger {
	logLevel := parseLogLevel(level)

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
