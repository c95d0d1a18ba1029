package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single generation pass and print its summary",
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := loadService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeService(svc)

		ev, err := svc.Pipeline().Tick(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		out := map[string]any{
			"sites":       ev.Sites,
			"written":     ev.Written,
			"alerts":      ev.Alerts,
			"duration_ms": ev.Duration.Milliseconds(),
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tickCmd)
}
