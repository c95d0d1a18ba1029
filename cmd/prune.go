package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pruneHours int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete samples older than the retention window and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if pruneHours < 0 {
			return fmt.Errorf("--hours must not be negative")
		}
		svc, err := loadService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeService(svc)

		p := svc.Pipeline()
		keep := p.Retention()
		if pruneHours > 0 {
			keep = time.Duration(pruneHours) * time.Hour
		}
		n, err := p.PruneKeeping(cmd.Context(), time.Now(), keep)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pruned %d samples\n", n)
		return nil
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneHours, "hours", 0, "hours of data to keep (default: retention.hours)")
	rootCmd.AddCommand(pruneCmd)
}
