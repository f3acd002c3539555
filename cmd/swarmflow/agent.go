// =============================================================================
// agent command: one worker process against a coordinator gateway
// =============================================================================

package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/config"
	"github.com/BaSui01/swarmflow/internal/telemetry"
	"github.com/BaSui01/swarmflow/transport"
)

func runAgent(args []string) {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	connect := fs.String("connect", "", "Gateway websocket URL (overrides agent.gateway_url)")
	workerID := fs.String("id", "", "Worker id (overrides agent.worker_id)")
	token := fs.String("token", "", "Worker token (overrides agent.token)")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if *connect != "" {
		cfg.Agent.GatewayURL = *connect
	}
	if *workerID != "" {
		cfg.Agent.WorkerID = *workerID
	}
	if *token != "" {
		cfg.Agent.Token = *token
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	if err := executeAgent(cfg, logger); err != nil {
		logger.Error("agent failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func executeAgent(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting SwarmFlow agent",
		zap.String("version", Version),
		zap.String("gateway_url", cfg.Agent.GatewayURL),
		zap.String("objective", cfg.Swarm.Objective),
		zap.Int("dims", cfg.Swarm.Dims))

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

	worker, err := buildWorker(cfg, cfg.Swarm.Seed, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = transport.ServeWorker(ctx, agentConfig(cfg.Agent), worker, logger)
	if errors.Is(err, context.Canceled) {
		logger.Info("agent interrupted, shutting down")
		return nil
	}
	return err
}
