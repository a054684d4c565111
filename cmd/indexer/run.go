package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/canopy-network/nimiqx/app/indexer"
	"github.com/canopy-network/nimiqx/pkg/logging"
)

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	logger, err := logging.NewWithLevel(c.String("log-level"), c.String("log-encoding"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := indexer.Initialize(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize indexer", zap.Error(err))
		return err
	}
	defer app.Stop()

	if err := app.Start(ctx); err != nil && ctx.Err() == nil {
		logger.Error("Indexer stopped", zap.Error(err))
		return err
	}
	return nil
}
