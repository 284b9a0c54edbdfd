package main

import (
	"fmt"

	"github.com/spf13/cobra"

	beacon "github.com/newsroomkit/beacon-go"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Attempt delivery of all spooled events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		p, err := beacon.New(cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		before := p.PendingEvents()
		if before == 0 {
			fmt.Println("Spool is empty; nothing to deliver.")
			return nil
		}

		p.Flush()

		after := p.PendingEvents()
		if after > 0 {
			showWarning("Delivered %d events, %d still pending; is %s reachable?",
				before-after, after, cfg.Endpoint)
			return nil
		}

		showSuccess("Delivered %d spooled events", before)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(flushCmd)
}
