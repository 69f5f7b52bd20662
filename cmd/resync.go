package cmd

import (
	"context"
	"fmt"

	"mapping-registry/core/config"
	"mapping-registry/core/engine"
	"mapping-registry/core/logger"
	"mapping-registry/core/packages"
	"mapping-registry/core/remote"
	"mapping-registry/core/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// resyncCmd performs a one-shot full load and reconciliation, then prints a
// summary. Useful for verifying source configuration without running the
// long-lived service.
var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Run one forced resync and print a summary",
	Long: `Loads every configured source (mapping directory, resource server,
package repository), resolves precedence, reconciles the in-memory store
and reports what changed.

Examples:
  # One-shot resync against the configured sources
  mapping-registry resync`,
	RunE: runResync,
}

func init() {
	RootCmd.AddCommand(resyncCmd)
}

func runResync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	l, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer l.Sync()

	var remoteClient remote.Client
	if cfg.Remote.BaseURL != "" {
		remoteClient, err = remote.NewClient(cfg.Remote)
		if err != nil {
			return fmt.Errorf("failed to create remote client: %w", err)
		}
	}

	var builtins engine.BuiltinSource
	if cfg.Storage.Endpoint != "" {
		store, err := storage.NewClient(cfg.Storage)
		if err != nil {
			l.Warn("Package storage unavailable", zap.Error(err))
		} else {
			explorer := packages.NewExplorer(store, cfg.Storage.Bucket, l)
			builtins = packages.NewAliasSource(explorer, l)
		}
	}

	eng, err := engine.New(cfg.Sync, remoteClient, builtins, l)
	if err != nil {
		return fmt.Errorf("failed to create sync engine: %w", err)
	}

	summary := eng.ForceResync(ctx)
	status := eng.Status()

	fmt.Println("Resync summary")
	fmt.Printf("  mapping upserts:  %d\n", summary.MappingUpserts)
	fmt.Printf("  mapping deletes:  %d\n", summary.MappingDeletes)
	fmt.Printf("  aliases changed:  %v\n", summary.AliasesChanged)
	fmt.Printf("  mappings total:   %d\n", status.Mappings)
	fmt.Printf("  aliases total:    %d\n", status.Aliases)
	if summary.FileError || summary.ServerError || summary.BuiltinError {
		fmt.Printf("  source failures:  file=%v server=%v packages=%v\n",
			summary.FileError, summary.ServerError, summary.BuiltinError)
	}
	return nil
}
