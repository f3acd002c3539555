// =============================================================================
// run command: in-process exchange over local swarms
// =============================================================================

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/config"
	"github.com/BaSui01/swarmflow/exchange"
	"github.com/BaSui01/swarmflow/internal/metrics"
	"github.com/BaSui01/swarmflow/internal/telemetry"
)

func runRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	if err := executeRun(cfg, logger); err != nil {
		logger.Error("exchange run failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func executeRun(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting SwarmFlow",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
		zap.Int("swarms", cfg.Run.NSwarms),
		zap.String("objective", cfg.Swarm.Objective),
		zap.Int("dims", cfg.Swarm.Dims),
		zap.String("direction", cfg.Server.Direction))

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry initialization failed", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}

	handles, err := buildLocalHandles(cfg, logger)
	if err != nil {
		return err
	}
	server, err := buildParamServer(cfg, logger, collector)
	if err != nil {
		return err
	}

	var copts []exchange.CoordinatorOption
	if collector != nil {
		copts = append(copts, exchange.WithMetrics(collector))
	}
	coord, err := exchange.NewCoordinator(coordinatorConfig(cfg.Run), server, handles, logger, copts...)
	if err != nil {
		return err
	}
	defer coord.Close()

	if cfg.Admin.Enabled {
		admin := newAdminServer(cfg.Admin, coord.Best, collector, logger)
		if err := admin.Start(); err != nil {
			return err
		}
		defer admin.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := coord.Run(ctx); err != nil {
		return err
	}
	printBest(coord)
	return nil
}
