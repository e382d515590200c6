package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/domainsync/internal/reconciler"
	"gitlab.bluewillows.net/root/domainsync/internal/scheduler"
	"gitlab.bluewillows.net/root/domainsync/internal/validation"
	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, command API and health server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	logger := a.logger
	cfg := a.cfg

	logger.Info("domainsync starting",
		slog.String("version", Version),
		slog.String("build_date", BuildDate),
		slog.String("go_version", runtime.Version()),
		slog.String("site_id", cfg.Hosting.SiteID),
		slog.String("dns_provider", cfg.DNS.Provider),
	)

	healthServer := a.healthServer(Version)
	if err := healthServer.Start(); err != nil {
		return fmt.Errorf("starting health server: %w", err)
	}

	apiServer := a.apiServer()
	apiServer.Start(cfg.APIListen)

	a.scheduler.Start(ctx)

	logger.Info("domainsync initialized",
		slog.Int("health_port", cfg.HealthPort),
		slog.String("api_listen", cfg.APIListen),
		slog.Duration("interval", cfg.Scheduler.Interval),
		slog.Int("dns_validators", len(a.validators)),
	)

	<-ctx.Done()
	logger.Info("received shutdown signal")
	logger.Info("shutting down...")

	a.scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown error", slog.String("error", err.Error()))
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("domainsync shutdown complete")
	return nil
}

func newReconcileCommand() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile one tenant, or every tenant when --tenant is omitted",
		Long: `Compare the record store with the hosting provider and remediate drift.

The run holds the same lock as the scheduler, so it fails fast when a
scheduled run is already in progress.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if tenantID == "" {
				run, err := a.scheduler.RunAll(cmd.Context(), scheduler.TriggerManual)
				if err != nil {
					return err
				}
				if err := printJSON(out, run); err != nil {
					return err
				}
				if n := run.Failed(); n > 0 {
					return fmt.Errorf("%d of %d tenants failed", n, len(run.Tenants))
				}
				return nil
			}

			result, err := a.scheduler.Trigger(cmd.Context(), tenantID)
			if err != nil {
				return err
			}
			if err := printJSON(out, result); err != nil {
				return err
			}
			return resultError(result)
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID to reconcile")
	return cmd
}

func newValidateCommand() *cobra.Command {
	var (
		includeDNS bool
		noRouting  bool
		noSSL      bool
	)

	cmd := &cobra.Command{
		Use:   "validate <domain>",
		Short: "Validate a domain against the hosting provider",
		Long: `Run the validation pipeline for a domain and print the report.

Exits non-zero when the overall status is error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			opts := validation.DefaultOptions()
			opts.IncludeDNS = includeDNS
			opts.IncludeRouting = !noRouting
			opts.IncludeSSL = !noSSL

			report, err := a.pipeline.Validate(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if report.OverallStatus == validation.StatusError {
				return fmt.Errorf("domain %s failed validation", report.Domain)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeDNS, "dns", false, "Include DNS checks")
	cmd.Flags().BoolVar(&noRouting, "no-routing", false, "Skip routing checks")
	cmd.Flags().BoolVar(&noSSL, "no-ssl", false, "Skip SSL checks")
	return cmd
}

func newFixCommand() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "fix <domain>",
		Short: "Reconcile and remediate a single domain",
		Long: `Reconcile and remediate a single domain.

Like reconcile, it holds the scheduler lock and fails fast while a pass
is in progress.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			var result *reconciler.Result
			err = a.scheduler.Exclusive(cmd.Context(), func(ctx context.Context) error {
				r, fixErr := a.reconciler.ReconcileDomain(ctx, tenantID, args[0])
				result = r
				return fixErr
			})
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			return resultError(result)
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID owning the domain")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newRemoveCommand() *cobra.Command {
	var (
		tenantID string
		confirm  bool
	)

	cmd := &cobra.Command{
		Use:   "remove <domain>",
		Short: "Detach a domain from the hosting site and mark it removed",
		Long: `Detach a domain from the hosting site and mark its record removed.

Removal is refused without --confirm. It holds the scheduler lock and
fails fast while a pass is in progress.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			var rec domain.Record
			err = a.scheduler.Exclusive(cmd.Context(), func(ctx context.Context) error {
				r, removeErr := a.executor.Remove(ctx, tenantID, args[0], confirm)
				rec = r
				return removeErr
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID owning the domain")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm the removal")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "domainsync %s (built %s, %s)\n",
				Version, BuildDate, runtime.Version())
		},
	}
}

// resultError turns unresolved drift and failed verifications into a
// non-zero exit. Each domain is reported once.
func resultError(r *reconciler.Result) error {
	messages := make(map[string]string, len(r.Errors))
	for _, e := range r.Errors {
		messages[e.Domain] = e.Message
	}

	var errs []error
	seen := make(map[string]bool)
	for _, d := range r.StillMismatched {
		msg, ok := messages[d]
		if !ok {
			msg = "still mismatched"
		}
		seen[d] = true
		errs = append(errs, fmt.Errorf("%s: %s", d, msg))
	}
	for _, e := range r.Errors {
		if !seen[e.Domain] {
			seen[e.Domain] = true
			errs = append(errs, fmt.Errorf("%s: %s", e.Domain, e.Message))
		}
	}
	return errors.Join(errs...)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
