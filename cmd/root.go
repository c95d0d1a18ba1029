package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/sitepulse/app"
	"github.com/kilianp07/sitepulse/config"
	"github.com/kilianp07/sitepulse/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "sitepulse",
	Short:        "Energy site telemetry simulator and broadcaster",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file (empty for defaults)")
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the simulator, API and websocket server",
		RunE:  run,
	})
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func loadService(ctx context.Context) (*app.Service, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.New(ctx, cfg)
}

func closeService(svc *app.Service) {
	if err := svc.Close(); err != nil {
		logger.New("main").Errorf("service close: %v", err)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := loadService(ctx)
	if err != nil {
		return err
	}
	defer closeService(svc)
	return svc.Run(ctx)
}
