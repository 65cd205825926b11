package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/profilestate/internal/app/converge"
	"github.com/alexisbeaulieu97/profilestate/internal/config"
	"github.com/alexisbeaulieu97/profilestate/internal/metrics"
)

type verifyOptions struct {
	ConfigPath string
	Verbose    bool
	JSON       bool
}

func newVerifyCmd(root *rootFlags) *cobra.Command {
	opts := verifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify <config-file>",
		Short: "Report drift between the host and a manifest without making changes",
		Long: `Verify runs every profile in dry-run mode. It exits 0 when the host already
matches the manifest, 1 when changes are needed or a profile failed, 2 on a
configuration error and 3 on a runtime error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ConfigPath = args[0]
			opts.Verbose = root.verbose

			return runVerify(cmd.Context(), root, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Write the reports as JSON")

	return cmd
}

func runVerify(ctx context.Context, root *rootFlags, opts verifyOptions, out, errOut io.Writer) error {
	if err := validateConfigPath(opts.ConfigPath); err != nil {
		return withExitCode(converge.ExitConfigError, err)
	}

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
		DryRun: true,
	})
	if summary != nil {
		if writeErr := writeSummary(out, summary, opts.JSON, opts.Verbose); writeErr != nil {
			return withExitCode(converge.ExitRuntimeError, writeErr)
		}
	}
	if err != nil {
		return classifyError(err)
	}

	switch code := summary.ExitCode(); code {
	case converge.ExitOK:
		return nil
	case converge.ExitDrift:
		return withExitCode(code, nil)
	default:
		return withExitCode(code, fmt.Errorf("verification incomplete: %d profiles errored", summary.Counts().Errored))
	}
}
