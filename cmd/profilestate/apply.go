package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/profilestate/internal/app/converge"
	"github.com/alexisbeaulieu97/profilestate/internal/config"
	"github.com/alexisbeaulieu97/profilestate/internal/metrics"
	"github.com/alexisbeaulieu97/profilestate/internal/render"
)

type applyOptions struct {
	ConfigPath string
	DryRun     bool
	Force      bool
	Verbose    bool
	JSON       bool
}

func newApplyCmd(root *rootFlags) *cobra.Command {
	opts := applyOptions{}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Converge the profiles declared in a manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.DryRun = root.dryRun
			opts.Verbose = root.verbose

			if err := validateConfigPath(opts.ConfigPath); err != nil {
				return err
			}

			return runApply(cmd.Context(), root, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to the profile manifest")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Accepted for compatibility; does not reinstall profiles that already match")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Write the reports as JSON")
	cmd.MarkFlagRequired("config") //nolint:errcheck

	return cmd
}

func runApply(ctx context.Context, root *rootFlags, opts applyOptions, out, errOut io.Writer) error {
	cfg, err := config.ParseConfig(opts.ConfigPath)
	if err != nil {
		return classifyError(err)
	}

	log, err := newCommandLogger(root, cfg.Settings.Verbose, errOut)
	if err != nil {
		return withExitCode(converge.ExitRuntimeError, err)
	}

	summary, err := newService(log, metrics.New()).Converge(ctx, converge.ApplyRequest{
		Config: cfg,
		DryRun: opts.DryRun,
		Force:  opts.Force,
	})
	if summary != nil {
		if writeErr := writeSummary(out, summary, opts.JSON, opts.Verbose || cfg.Settings.Verbose); writeErr != nil {
			return withExitCode(converge.ExitRuntimeError, writeErr)
		}
	}
	if err != nil {
		return classifyError(err)
	}

	counts := summary.Counts()
	switch {
	case counts.Errored > 0:
		return withExitCode(converge.ExitRuntimeError, fmt.Errorf("%d profiles could not be reconciled", counts.Errored))
	case counts.Failed > 0:
		return withExitCode(converge.ExitDrift, fmt.Errorf("%d profiles failed to converge", counts.Failed))
	}
	return nil
}

func writeSummary(out io.Writer, summary *converge.Summary, asJSON, verbose bool) error {
	if asJSON {
		return render.JSON(out, summary)
	}
	render.Table(out, summary, render.Options{Styled: render.IsTerminal(out), Verbose: verbose})
	return nil
}
