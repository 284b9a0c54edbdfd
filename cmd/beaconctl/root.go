package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	beacon "github.com/newsroomkit/beacon-go"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "beaconctl",
		Short: "Inspect and drive a beacon telemetry pipeline",
		Long: `beaconctl works against the same config file and offline spool as an
embedding app: list or clear spooled events, force a delivery attempt,
and send test events to verify a collection endpoint.`,
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default ./config.yaml, then ~/.beacon/config.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "verbose console logging")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	// A .env next to the working directory can carry BEACON_* variables.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".beacon"))
		}
	}

	viper.SetEnvPrefix("BEACON")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// No config file is fine; commands validate what they need.
	}
}

// loadConfig resolves the pipeline config the way an embedding app would:
// defaults, then the config file, then BEACON_* environment overrides.
func loadConfig() (beacon.Config, error) {
	cfg := beacon.DefaultConfig()

	if path := viper.ConfigFileUsed(); path != "" {
		loaded, err := beacon.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if v := viper.GetString("siteId"); v != "" {
		cfg.SiteID = v
	}
	if v := viper.GetString("endpoint"); v != "" {
		cfg.Endpoint = v
	}
	if v := viper.GetString("siteKey"); v != "" {
		cfg.SiteKey = v
	}
	if v := viper.GetString("spoolDir"); v != "" {
		cfg.SpoolDir = v
	}
	if viper.GetBool("debug") {
		cfg.DebugLogging = true
	}

	return cfg, nil
}
