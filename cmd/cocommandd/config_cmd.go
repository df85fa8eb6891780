package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cocommand/cocommand/internal/config"
)

// buildConfigCmd groups the workspace config inspection subcommands: show
// the effective (defaults-filled, migrated) config, or write a fresh
// default file if none exists yet.
func buildConfigCmd() *cobra.Command {
	var workspaceDir string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or initialize the workspace configuration file",
	}
	cmd.PersistentFlags().StringVar(&workspaceDir, "workspace", defaultWorkspaceDir(), "Workspace directory")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(filepath.Join(workspaceDir, config.FileName))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file if one doesn't already exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(workspaceDir, config.FileName)
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	})

	return cmd
}
