package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/profilestate/internal/app/converge"
	"github.com/alexisbeaulieu97/profilestate/internal/config"
	"github.com/alexisbeaulieu97/profilestate/internal/metrics"
)

type watchOptions struct {
	ConfigPath string
	Schedule   string
	Debounce   time.Duration
	DryRun     bool
	Verbose    bool
}

func newWatchCmd(root *rootFlags) *cobra.Command {
	opts := watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-converge when the manifest changes and on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.DryRun = root.dryRun
			opts.Verbose = root.verbose

			if err := validateConfigPath(opts.ConfigPath); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log, err := newCommandLogger(root, false, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			// One recorder for the whole session so counters accumulate across runs.
			recorder := metrics.New()
			service := newService(log, recorder)
			out := cmd.OutOrStdout()

			watcher, err := converge.NewWatcher(converge.WatchOptions{
				Path:     opts.ConfigPath,
				Schedule: opts.Schedule,
				Debounce: opts.Debounce,
				Logger:   log,
			}, func(ctx context.Context, trigger converge.Trigger) error {
				cfg, err := config.ParseConfig(opts.ConfigPath)
				if err != nil {
					return err
				}
				summary, err := service.Converge(ctx, converge.ApplyRequest{Config: cfg, DryRun: opts.DryRun})
				if summary != nil {
					_ = writeSummary(out, summary, false, opts.Verbose)
				}
				return err
			})
			if err != nil {
				return withExitCode(converge.ExitConfigError, err)
			}

			return watcher.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to the profile manifest")
	cmd.Flags().StringVar(&opts.Schedule, "schedule", "@every 30m", "Cron schedule for drift correction; empty disables it")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 500*time.Millisecond, "Quiet period after a manifest change before converging")
	cmd.MarkFlagRequired("config") //nolint:errcheck

	return cmd
}
