package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/profilestate/internal/app/converge"
	"github.com/alexisbeaulieu97/profilestate/internal/config"
	"github.com/alexisbeaulieu97/profilestate/internal/profile"
)

func newGenerateCmd(root *rootFlags) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "generate <identifier>",
		Short: "Print the .mobileconfig generated for one profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConfigPath(configPath); err != nil {
				return err
			}

			cfg, err := config.ParseConfig(configPath)
			if err != nil {
				return classifyError(err)
			}

			p, ok := cfg.Lookup(args[0])
			if !ok {
				return withExitCode(converge.ExitConfigError, fmt.Errorf("profile %q is not declared in %s", args[0], configPath))
			}
			if p.State != config.StateInstalled {
				return withExitCode(converge.ExitConfigError, fmt.Errorf("profile %q has state %s; nothing to generate", p.ID, p.State))
			}

			log, err := newCommandLogger(root, false, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			// Generation never runs the profiles binary, so it works on any host.
			content, err := profile.New(profile.Options{Logger: log}).Generate(cmd.Context(), p.ID, p.Desired())
			if err != nil {
				return withExitCode(converge.ExitRuntimeError, err)
			}
			_, err = cmd.OutOrStdout().Write(content)
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the profile manifest")
	cmd.MarkFlagRequired("config") //nolint:errcheck

	return cmd
}
