// =============================================================================
// Config tree → component configuration mapping
// =============================================================================

package main

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/config"
	"github.com/BaSui01/swarmflow/exchange"
	"github.com/BaSui01/swarmflow/internal/metrics"
	"github.com/BaSui01/swarmflow/swarm"
	"github.com/BaSui01/swarmflow/transport"
	"github.com/BaSui01/swarmflow/types"
)

func psoConfig(cfg *config.Config) swarm.PSOConfig {
	return swarm.PSOConfig{
		PopulationSize: cfg.Swarm.PopulationSize,
		Inertia:        cfg.Swarm.Inertia,
		Cognitive:      cfg.Swarm.Cognitive,
		Social:         cfg.Swarm.Social,
		MaxVelocity:    cfg.Swarm.MaxVelocity,
		Direction:      types.Direction(cfg.Server.Direction),
		MaxIters:       cfg.Swarm.MaxIters,
		RewardLimit:    cfg.Swarm.RewardLimit,
		Seed:           cfg.Swarm.Seed,
		TrueHash:       cfg.Swarm.TrueHash,
	}
}

func workerConfig(cfg config.WorkerConfig) exchange.WorkerConfig {
	return exchange.WorkerConfig{
		NExport:    cfg.NExport,
		NImport:    cfg.NImport,
		ExportBest: cfg.ExportBest,
		ImportBest: cfg.ImportBest,
	}
}

func serverConfig(cfg config.ServerConfig) exchange.ServerConfig {
	return exchange.ServerConfig{
		Direction:     types.Direction(cfg.Direction),
		MaxLen:        cfg.MaxLen,
		AddGlobalBest: cfg.AddGlobalBest,
		DrawPolicy:    exchange.DrawPolicy(cfg.DrawPolicy),
	}
}

func coordinatorConfig(cfg config.RunConfig) exchange.CoordinatorConfig {
	return exchange.CoordinatorConfig{
		ReportEvery:       cfg.ReportEvery,
		ContinueOnFailure: cfg.ContinueOnFailure,
	}
}

func gatewayConfig(cfg config.GatewayConfig) transport.GatewayConfig {
	return transport.GatewayConfig{
		ListenAddr:       cfg.ListenAddr,
		Path:             cfg.Path,
		Secret:           cfg.Secret,
		ExpectWorkers:    cfg.ExpectWorkers,
		HandshakeTimeout: cfg.HandshakeTimeout,
		FrameRPS:         cfg.FrameRPS,
		FrameBurst:       cfg.FrameBurst,
	}
}

func agentConfig(cfg config.AgentConfig) transport.AgentConfig {
	return transport.AgentConfig{
		GatewayURL:  cfg.GatewayURL,
		Token:       cfg.Token,
		WorkerID:    cfg.WorkerID,
		DialTimeout: cfg.DialTimeout,
	}
}

func redisBufferConfig(cfg *config.Config) exchange.RedisBufferConfig {
	return exchange.RedisBufferConfig{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		KeyPrefix:    cfg.Redis.KeyPrefix,
		MaxLen:       cfg.Server.MaxLen,
		Policy:       exchange.DrawPolicy(cfg.Server.DrawPolicy),
	}
}

// buildParamServer assembles the parameter server with the configured pool
// backend.
func buildParamServer(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) (*exchange.ParamServer, error) {
	var opts []exchange.ServerOption
	if collector != nil {
		opts = append(opts, exchange.WithCollector(collector))
	}
	if cfg.Server.Buffer == "redis" {
		buf, err := exchange.NewRedisBuffer(redisBufferConfig(cfg), logger)
		if err != nil {
			return nil, fmt.Errorf("create redis pool: %w", err)
		}
		opts = append(opts, exchange.WithBuffer(buf))
	}
	return exchange.NewParamServer(serverConfig(cfg.Server), logger, opts...)
}

// buildObjective resolves the configured benchmark objective.
func buildObjective(name string) (swarm.Objective, error) {
	obj, ok := swarm.LookupObjective(name)
	if !ok {
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("unknown objective %q, known: %s",
				name, strings.Join(swarm.ObjectiveNames(), ", ")))
	}
	return obj, nil
}

// buildWorker assembles one particle swarm and its export worker.
func buildWorker(cfg *config.Config, seed int64, logger *zap.Logger) (*exchange.ExportWorker, error) {
	obj, err := buildObjective(cfg.Swarm.Objective)
	if err != nil {
		return nil, err
	}
	bounds, err := swarm.NewUniformBounds(cfg.Swarm.Dims, cfg.Swarm.Low, cfg.Swarm.High)
	if err != nil {
		return nil, err
	}

	pcfg := psoConfig(cfg)
	pcfg.Seed = seed
	ps, err := swarm.NewParticleSwarm(pcfg, obj, bounds, logger)
	if err != nil {
		return nil, err
	}
	return exchange.NewExportWorker(workerConfig(cfg.Worker), ps, logger)
}

// buildLocalHandles assembles cfg.Run.NSwarms swarms behind local handles.
func buildLocalHandles(cfg *config.Config, logger *zap.Logger) ([]exchange.Handle, error) {
	// One clock read keeps unseeded swarms distinct.
	baseSeed := cfg.Swarm.Seed
	if baseSeed == 0 {
		baseSeed = time.Now().UnixNano()
	}

	handles := make([]exchange.Handle, 0, cfg.Run.NSwarms)
	for i := 0; i < cfg.Run.NSwarms; i++ {
		worker, err := buildWorker(cfg, baseSeed+int64(i), logger)
		if err != nil {
			return nil, err
		}
		handle, err := exchange.NewLocalHandle(fmt.Sprintf("swarm-%d", i), worker, logger)
		if err != nil {
			return nil, err
		}
		handles = append(handles, handle)
	}
	return handles, nil
}

// printBest writes the run outcome to stdout.
func printBest(coord *exchange.Coordinator) {
	best, ok := coord.Best()
	if !ok {
		fmt.Println("No best candidate found")
		return
	}
	fmt.Printf("Best reward: %.6f\n", best.Reward)
	fmt.Printf("Best state:  %v\n", best.State)
	fmt.Printf("Epochs:      %d\n", coord.Epoch()+1)
}
