package main

import (
	"fmt"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	beacon "github.com/newsroomkit/beacon-go"
	"github.com/newsroomkit/beacon-go/internal/offline"
	"github.com/newsroomkit/beacon-go/pkg/storage"
)

var spoolCmd = &cobra.Command{
	Use:   "spool",
	Short: "Inspect the offline event spool",
	Long:  `List or clear events that failed delivery and are waiting for retry in the spool directory.`,
}

var spoolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List spooled events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		spool, err := openSpool(cfg)
		if err != nil {
			return err
		}

		pending := spool.FetchPending()
		if len(pending) == 0 {
			fmt.Println("Spool is empty.")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"ID", "Type", "Page", "Age", "Retries"})
		table.SetBorder(false)
		table.SetAutoWrapText(false)
		table.SetAlignment(tablewriter.ALIGN_LEFT)

		for _, se := range pending {
			page := se.Event.PageURL
			if page == "" {
				page = "-"
			}
			age := time.Since(time.UnixMilli(se.CreatedAt)).Truncate(time.Second)
			retries := fmt.Sprintf("%d", se.RetryCount)
			if se.RetryCount > 0 {
				retries = yellow(retries)
			}
			table.Append([]string{
				shortID(se.ID),
				string(se.Event.Type),
				page,
				age.String(),
				retries,
			})
		}
		table.Render()

		fmt.Printf("\n%d events pending in %s\n", len(pending), cfg.SpoolDir)
		return nil
	},
}

var spoolClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all spooled events",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		spool, err := openSpool(cfg)
		if err != nil {
			return err
		}

		pending := spool.FetchPending()
		if len(pending) == 0 {
			fmt.Println("Spool is already empty.")
			return nil
		}

		if !force {
			fmt.Printf("This will permanently delete %d undelivered events.\n", len(pending))
			fmt.Print("Are you sure? (y/N): ")

			var response string
			fmt.Scanln(&response)

			if response != "y" && response != "Y" {
				fmt.Println("Operation cancelled.")
				return nil
			}
		}

		ids := make([]string, 0, len(pending))
		for _, se := range pending {
			ids = append(ids, se.ID)
		}
		spool.Delete(ids)

		showSuccess("Cleared %d spooled events", len(pending))
		return nil
	},
}

// openSpool opens the same spool an embedding app would use, read-write.
func openSpool(cfg beacon.Config) (*offline.Spool, error) {
	store, err := storage.NewFile(cfg.SpoolDir)
	if err != nil {
		return nil, fmt.Errorf("open spool storage: %w", err)
	}
	return offline.NewSpool(store, clock.New(), cfg.MaxOfflineEvents, zap.NewNop()), nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	spoolClearCmd.Flags().Bool("force", false, "skip the confirmation prompt")

	spoolCmd.AddCommand(spoolListCmd)
	spoolCmd.AddCommand(spoolClearCmd)
	rootCmd.AddCommand(spoolCmd)
}
