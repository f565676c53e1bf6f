package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Travis-Britz/noip"
	"github.com/Travis-Britz/noip/internal/cache"
	"github.com/Travis-Britz/noip/internal/config"
	"github.com/Travis-Britz/noip/internal/hap"
	"github.com/Travis-Britz/noip/internal/logging"
	"github.com/Travis-Britz/noip/internal/status"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the refresh loops and publish the HomeKit bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
}

func run(ctx context.Context) error {
	if err := config.VerifyPermissions(configPath); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger.Debug("config is valid", zap.String("path", configPath), zap.Int("devices", len(cfg.Devices)))

	store, err := cache.Open(cfg.Bridge.CachePath())
	if err != nil {
		return err
	}
	defer store.Close()

	host := hap.New(store, logger.Named("hap"))
	platform, err := noip.NewPlatform(cfg.PlatformConfig, host, noip.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("error creating platform: %w", err)
	}
	if err := platform.Launch(ctx); err != nil {
		return fmt.Errorf("error launching platform: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return host.Serve(ctx, hap.Config{
			Name:        cfg.Bridge.Name,
			Pin:         cfg.Bridge.Pin,
			Port:        cfg.Bridge.Port,
			StoragePath: cfg.Bridge.StoragePath,
		})
	})
	if cfg.Listen != "" {
		g.Go(func() error {
			logger.Info("serving status API", zap.String("addr", cfg.Listen))
			return status.Run(ctx, cfg.Listen, status.NewRouter(platform, logger.Named("status")))
		})
	}
	g.Go(func() error {
		platform.Run(ctx)
		return nil
	})
	return g.Wait()
}
