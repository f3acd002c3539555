// =============================================================================
// coordinator command: gateway mode over remote workers
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/config"
	"github.com/BaSui01/swarmflow/exchange"
	"github.com/BaSui01/swarmflow/internal/metrics"
	"github.com/BaSui01/swarmflow/internal/telemetry"
	"github.com/BaSui01/swarmflow/transport"
)

func runCoordinator(args []string) {
	fs := flag.NewFlagSet("coordinator", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	if err := executeCoordinator(cfg, logger); err != nil {
		logger.Error("coordinator failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func executeCoordinator(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting SwarmFlow coordinator",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
		zap.Int("expect_workers", cfg.Gateway.ExpectWorkers),
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

	var gwOpts []transport.GatewayOption
	if collector != nil {
		gwOpts = append(gwOpts, transport.WithGatewayCollector(collector))
	}
	gw, err := transport.NewGateway(gatewayConfig(cfg.Gateway), logger, gwOpts...)
	if err != nil {
		return err
	}
	if err := gw.Start(); err != nil {
		return err
	}
	defer gw.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Waiting for remote workers",
		zap.String("url", gw.URL()),
		zap.Int("expect", cfg.Gateway.ExpectWorkers))
	handles, err := gw.WaitForWorkers(ctx)
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

	if err := coord.Run(ctx); err != nil {
		return err
	}
	printBest(coord)
	return nil
}

// =============================================================================
// token command: mint a worker token from the gateway secret
// =============================================================================

func runToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	workerID := fs.String("worker", "", "Worker id the token is bound to")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if *workerID == "" {
		fmt.Fprintln(os.Stderr, "token: --worker is required")
		os.Exit(1)
	}

	token, err := transport.MintToken(cfg.Gateway.Secret, *workerID, cfg.Gateway.TokenTTL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to mint token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
