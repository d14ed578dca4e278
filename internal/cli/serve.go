package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pointsledger/pointsledger/internal/daemon"
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Listen host (overrides [api].host)")
	serveCmd.Flags().Int("port", 0, "Listen port (overrides [api].port)")
	serveCmd.Flags().String("backend", "", `Record store backend: "memory" or "sqlite"`)
	serveCmd.Flags().String("data", "", "Data directory for the sqlite backend")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ledger HTTP API",
	Long: `Start the ledger HTTP API. By default records are kept in memory and
are lost when the process exits; use --backend sqlite to keep them on disk.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, &cfg); err != nil {
		return err
	}

	log, err := daemon.NewLogger(cfg.Log)
	if err != nil {
		return err
	}

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return d.Run(ctx)
}

// applyServeFlags copies explicitly set flags over the loaded config.
func applyServeFlags(cmd *cobra.Command, cfg *daemon.Config) error {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.API.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.API.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("backend") {
		cfg.Storage.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("data") {
		cfg.Storage.Path, _ = flags.GetString("data")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}
