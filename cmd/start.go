package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"mapping-registry/core/config"
	"mapping-registry/core/engine"
	"mapping-registry/core/loader"
	"mapping-registry/core/logger"
	"mapping-registry/core/middleware/auth"
	"mapping-registry/core/middleware/rayid"
	"mapping-registry/core/packages"
	"mapping-registry/core/remote"
	"mapping-registry/core/storage"

	"mapping-registry/feature/registry"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the mapping registry server",
	Long:  `Starts the sync engine and the HTTP read API.`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load Configuration
		cfg, err := config.LoadConfig(".")
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}

		// 2. Initialize Logger
		logg, err := logger.New(&cfg.Log)
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		// 3. Remote resource client (Optional)
		var remoteClient remote.Client
		if cfg.Remote.BaseURL != "" {
			client, err := remote.NewClient(cfg.Remote)
			if err != nil {
				logg.Fatal("Failed to create remote client", zap.Error(err))
			}
			remoteClient = client
			logg.Info("Server source enabled", zap.String("base", client.BaseIdentifier()))
		} else {
			logg.Warn("No remote base URL configured, server source disabled")
		}

		// 4. Package repository (Optional)
		var explorer packages.Explorer
		var builtins engine.BuiltinSource
		if cfg.Storage.Endpoint != "" {
			store, err := storage.NewClient(cfg.Storage)
			if err != nil {
				logg.Warn("Optional package storage unavailable", zap.Error(err))
			} else {
				explorer = packages.NewExplorer(store, cfg.Storage.Bucket, logg)
				builtins = packages.NewAliasSource(explorer, logg)
				logg.Info("Package source enabled", zap.String("bucket", cfg.Storage.Bucket))
			}
		}

		// 5. Sync Engine
		eng, err := engine.New(cfg.Sync, remoteClient, builtins, logg)
		if err != nil {
			logg.Fatal("Failed to create sync engine", zap.Error(err))
		}
		if err := eng.Start(context.Background()); err != nil {
			logg.Fatal("Failed to start sync engine", zap.Error(err))
		}

		// 6. Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true, // We will log our own startup message
		})

		// Middleware Registration
		// RayID must be first to trace everything
		app.Use(rayid.New())

		// Logging Middleware (Custom to use Zap + RayID)
		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		// Auth (Protect API)
		app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey}))

		// 7. Load Features
		mgr := loader.NewManager()
		mgr.Register(registry.NewFeature(eng, explorer, logg))
		if err := mgr.LoadAll(app); err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}

		// 8. Start Server
		go func() {
			logg.Info("Starting server", zap.String("port", cfg.Server.Port))
			if err := app.Listen(":" + cfg.Server.Port); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// 9. Graceful Shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logg.Info("Shutting down...")
		eng.Stop()
		_ = app.Shutdown()
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}
