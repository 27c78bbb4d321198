package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/pneumonia-classifier/internal/bootstrap"
	"github.com/kirillkom/pneumonia-classifier/internal/config"
	"github.com/kirillkom/pneumonia-classifier/internal/observability/logging"
)

var cfg config.Config

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pneumoctl",
		Short: "Operate the pneumonia classifier stores and models",
		Long: `pneumoctl administers the pneumonia classifier: it migrates the store,
manages user accounts, lists and exports patient records, and runs batch
classification against the configured predictor backend.

Settings come from the same environment variables as the API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg = config.Load()
			level, _ := cmd.Flags().GetString("log-level")
			if level == "" {
				level = cfg.LogLevel
			}
			slog.SetDefault(logging.New(os.Stderr, "pneumoctl", level, "text"))

			if driver, _ := cmd.Flags().GetString("store"); driver != "" {
				cfg.StoreDriver = driver
			}
			if path, _ := cmd.Flags().GetString("sqlite-path"); path != "" {
				cfg.SQLitePath = path
			}
			return nil
		},
	}
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("store", "", "store driver override (sqlite, postgres)")
	root.PersistentFlags().String("sqlite-path", "", "sqlite database file override")

	root.AddCommand(migrateCmd())
	root.AddCommand(userCmd())
	root.AddCommand(recordsCmd())
	root.AddCommand(classifyCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStores(ctx context.Context) (*bootstrap.Stores, error) {
	stores, err := bootstrap.OpenStores(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return stores, nil
}

func closeStores(stores *bootstrap.Stores) {
	if err := stores.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
}
