package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/profilestate/internal/app/converge"
	"github.com/alexisbeaulieu97/profilestate/internal/config"
)

type removeOptions struct {
	Identifier     string
	ProfilesBinary string
	DryRun         bool
	Verbose        bool
	JSON           bool
}

func newRemoveCmd(root *rootFlags) *cobra.Command {
	opts := removeOptions{}

	cmd := &cobra.Command{
		Use:   "remove <identifier>",
		Short: "Ensure a single profile is absent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Identifier = args[0]
			opts.DryRun = root.dryRun
			opts.Verbose = root.verbose

			return runRemove(cmd.Context(), root, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.ProfilesBinary, "profiles-binary", "", "Path to the profiles command")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Write the report as JSON")

	return cmd
}

// runRemove converges a one-entry manifest so removal shares validation,
// events and reporting with apply.
func runRemove(ctx context.Context, root *rootFlags, opts removeOptions, out, errOut io.Writer) error {
	cfg := &config.Config{
		Version: "1.0",
		Name:    "remove",
		Settings: config.Settings{
			Parallel:       1,
			TempNamespace:  "profilestate",
			ProfilesBinary: opts.ProfilesBinary,
		},
		Profiles: []config.Profile{{ID: opts.Identifier, State: config.StateAbsent}},
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return classifyError(err)
	}

	log, err := newCommandLogger(root, false, errOut)
	if err != nil {
		return withExitCode(converge.ExitRuntimeError, err)
	}

	summary, err := newService(log, nil).Converge(ctx, converge.ApplyRequest{Config: cfg, DryRun: opts.DryRun})
	if summary != nil {
		if writeErr := writeSummary(out, summary, opts.JSON, opts.Verbose); writeErr != nil {
			return withExitCode(converge.ExitRuntimeError, writeErr)
		}
	}
	if err != nil {
		return classifyError(err)
	}
	if summary.Counts().Failed > 0 {
		return withExitCode(converge.ExitDrift, nil)
	}
	return nil
}
