package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/config"
	"github.com/BaSui01/swarmflow/exchange"
	"github.com/BaSui01/swarmflow/types"
)

func TestConfigMapping(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Direction = "maximize"
	cfg.Server.DrawPolicy = "oldest"
	cfg.Server.MaxLen = 7
	cfg.Swarm.Seed = 42
	cfg.Gateway.Secret = "s3cret"

	pcfg := psoConfig(cfg)
	assert.Equal(t, types.Maximize, pcfg.Direction)
	assert.Equal(t, int64(42), pcfg.Seed)
	assert.Equal(t, cfg.Swarm.PopulationSize, pcfg.PopulationSize)
	assert.Equal(t, cfg.Swarm.MaxIters, pcfg.MaxIters)

	wcfg := workerConfig(cfg.Worker)
	assert.Equal(t, cfg.Worker.NExport, wcfg.NExport)
	assert.True(t, wcfg.ExportBest)

	scfg := serverConfig(cfg.Server)
	assert.Equal(t, types.Maximize, scfg.Direction)
	assert.Equal(t, exchange.DrawOldest, scfg.DrawPolicy)
	assert.Equal(t, 7, scfg.MaxLen)

	ccfg := coordinatorConfig(cfg.Run)
	assert.Equal(t, cfg.Run.ReportEvery, ccfg.ReportEvery)
	assert.False(t, ccfg.ContinueOnFailure)

	gcfg := gatewayConfig(cfg.Gateway)
	assert.Equal(t, "s3cret", gcfg.Secret)
	assert.Equal(t, cfg.Gateway.ExpectWorkers, gcfg.ExpectWorkers)
	assert.Equal(t, cfg.Gateway.FrameRPS, gcfg.FrameRPS)

	acfg := agentConfig(cfg.Agent)
	assert.Equal(t, cfg.Agent.GatewayURL, acfg.GatewayURL)
	assert.Equal(t, cfg.Agent.DialTimeout, acfg.DialTimeout)

	rcfg := redisBufferConfig(cfg)
	assert.Equal(t, cfg.Redis.Addr, rcfg.Addr)
	assert.Equal(t, "swarmflow", rcfg.KeyPrefix)
	// The pool inherits capacity and draw policy from the server section.
	assert.Equal(t, 7, rcfg.MaxLen)
	assert.Equal(t, exchange.DrawOldest, rcfg.Policy)
}

func TestBuildObjective(t *testing.T) {
	obj, err := buildObjective("sphere")
	require.NoError(t, err)
	assert.Zero(t, obj([]float64{0, 0}))

	_, err = buildObjective("does-not-exist")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "sphere")
}

func TestBuildLocalHandles(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Run.NSwarms = 3
	cfg.Swarm.MaxIters = 5
	cfg.Swarm.Seed = 9

	handles, err := buildLocalHandles(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, h := range handles {
			_ = h.Close()
		}
	})

	require.Len(t, handles, 3)
	for i, h := range handles {
		assert.Equal(t, []string{"swarm-0", "swarm-1", "swarm-2"}[i], h.ID())
		assert.Equal(t, types.Minimize, h.Direction())
		assert.Equal(t, 5, h.MaxIters())
	}
}

func TestBuildParamServer_Memory(t *testing.T) {
	cfg := config.DefaultConfig()
	server, err := buildParamServer(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.Minimize, server.Direction())
}
