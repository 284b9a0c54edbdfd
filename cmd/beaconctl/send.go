package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	beacon "github.com/newsroomkit/beacon-go"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Compose and deliver a test event",
	Long: `Send a single event through the full pipeline to verify the endpoint,
site key, and config. With --url a screen_view is sent, otherwise a
custom event named by --name.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pageURL, _ := cmd.Flags().GetString("url")
		pageTitle, _ := cmd.Flags().GetString("title")
		name, _ := cmd.Flags().GetString("name")
		dataPairs, _ := cmd.Flags().GetStringSlice("data")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		p, err := beacon.New(cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		if pageURL != "" {
			p.TrackScreenView(pageURL, pageTitle)
		} else {
			data := map[string]any{"source": "beaconctl"}
			for _, pair := range dataPairs {
				key, value, found := strings.Cut(pair, "=")
				if !found || key == "" {
					return fmt.Errorf("invalid --data %q, want key=value", pair)
				}
				data[key] = value
			}
			p.TrackCustom(name, data)
		}

		p.Flush()

		if pending := p.PendingEvents(); pending > 0 {
			return fmt.Errorf("delivery failed, event kept in spool (%d pending); is %s reachable?",
				pending, cfg.Endpoint)
		}

		showSuccess("Event delivered to %s", cfg.Endpoint)
		return nil
	},
}

func init() {
	sendCmd.Flags().String("url", "", "send a screen_view for this page URL")
	sendCmd.Flags().String("title", "", "page title for --url")
	sendCmd.Flags().String("name", "beaconctl_test", "custom event name when --url is not set")
	sendCmd.Flags().StringSlice("data", nil, "custom data as key=value (repeatable)")

	rootCmd.AddCommand(sendCmd)
}
