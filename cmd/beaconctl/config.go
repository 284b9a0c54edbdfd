package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	beacon "github.com/newsroomkit/beacon-go"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the beacon config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long:  `Write a config file with production defaults and placeholder siteId and endpoint values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		force, _ := cmd.Flags().GetBool("force")

		if output == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolve home directory: %w", err)
			}
			output = filepath.Join(home, ".beacon", "config.yaml")
		}

		if _, err := os.Stat(output); err == nil && !force {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", output)
		}

		cfg := beacon.DefaultConfig()
		cfg.SiteID = "your-site-id"
		cfg.Endpoint = "https://collect.example.com/v1/events"

		if err := beacon.SaveConfig(output, cfg); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		showSuccess("Starter config written to %s", output)
		fmt.Println("  Edit siteId and endpoint before sending events.")
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringP("output", "o", "", "config file path (default ~/.beacon/config.yaml)")
	configInitCmd.Flags().Bool("force", false, "overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
