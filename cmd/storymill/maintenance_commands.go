package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/storymill/storymill-render/internal/config"
	"github.com/storymill/storymill-render/internal/logging"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired workspaces and registry entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, ctx.logger())
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.workspaces.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			// rows whose workspace vanished without a sweep, e.g. a wiped temp dir
			expired, err := a.artifacts.DeleteExpired(cmd.Context(), time.Now())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d workspace(s) and %d expired artifact record(s)\n", removed, expired)
			return nil
		},
	}
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check whether the video encoder is usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, ctx.logger())
			if err != nil {
				return err
			}
			defer a.Close()

			checkCtx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			caps := a.doctor.Get(checkCtx)

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), caps)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Encoder:   %s\n", caps.Binary)
			fmt.Fprintf(out, "Available: %s\n", yesNo(caps.Available))
			if caps.Version != "" {
				fmt.Fprintf(out, "Version:   %s\n", caps.Version)
			}
			if caps.Error != "" {
				fmt.Fprintf(out, "Error:     %s\n", caps.Error)
			}
			fmt.Fprintf(out, "Output:    %s\n", a.selector.Mode())
			if migrations, err := a.db.Migrations(cmd.Context()); err == nil && len(migrations) > 0 {
				fmt.Fprintf(out, "Schema:    %s (%d migrations)\n", migrations[len(migrations)-1].Name, len(migrations))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	return cmd
}

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			source := ctx.configPath
			if source == "" {
				source = "defaults and environment"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n", logging.SanitizePath(source))

			data, err := toml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Print the per-user configuration file path",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	return configCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "storymill %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildTime)
		},
	}
}
