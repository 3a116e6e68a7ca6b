package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/battswap/boothd/app"
	"github.com/battswap/boothd/config"
	"github.com/battswap/boothd/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "boothd",
	Short: "Battery swap booth control service",
	Long: `boothd is the control plane for a fleet of battery-swap booths.
It ingests slot telemetry over MQTT, drives the per-slot state machines,
tracks deposit and withdrawal sessions, and serves the operator HTTP API.
Booths and slots are declared in the configuration file; slots can also be
provisioned at runtime through the API.`,
	Example: `  boothd --config /etc/boothd/config.yaml
  boothd simulate`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file (yaml or json)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// run starts the daemon and blocks until SIGINT or SIGTERM.
func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
