package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/geneseez/geneseez/internal/config"
	"github.com/geneseez/geneseez/internal/logger"
	"github.com/geneseez/geneseez/internal/server"
	"golang.org/x/sync/errgroup"
)

// defaultConfigPaths are tried in order when GENESEEZ_CONFIG_PATH is unset
var defaultConfigPaths = []string{
	"/app/geneseez-data/geneseez.yaml",
	"./geneseez.yaml",
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "geneseez: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("GENESEEZ_CONFIG_PATH")
	if configPath == "" {
		for _, p := range defaultConfigPaths {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	if err := config.Load(configPath); err != nil {
		return fmt.Errorf("failed to load configuration from %q: %w", configPath, err)
	}
	cfg := config.Get()

	log := logger.New(cfg.Logging, os.Stderr)
	logger.SetDefault(log)

	if configPath != "" {
		log.Info("configuration loaded", "path", configPath)
	} else {
		log.Info("using default configuration")
	}

	srv := server.New(cfg, log)

	config.AddWatcher(logger.ConfigWatcher)
	config.AddWatcher(srv.ConfigWatcher)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})

	g.Go(func() error {
		return config.GetConfigManager().Watch(ctx, func(err error) {
			log.Warn("configuration reload failed, keeping previous settings", "error", err)
		})
	})

	err := g.Wait()
	log.Info("geneseez stopped")
	return err
}
