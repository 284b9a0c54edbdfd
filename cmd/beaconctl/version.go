package main

import (
	"fmt"

	"github.com/spf13/cobra"

	beacon "github.com/newsroomkit/beacon-go"
)

var (
	// Version is set at build time
	Version = "dev"
	// BuildTime is set at build time
	BuildTime = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display beaconctl version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("beaconctl version %s (sdk %s)\n", Version, beacon.Version)
		fmt.Printf("Built at: %s\n", BuildTime)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
