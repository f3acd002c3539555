package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/exchange"
	"github.com/BaSui01/swarmflow/swarm"
	"github.com/BaSui01/swarmflow/testutil"
	"github.com/BaSui01/swarmflow/transport"
)

// newAgentWorker assembles the worker side of one remote agent: a real
// particle swarm on the rastrigin benchmark wrapped in exchange bookkeeping.
func newAgentWorker(t *testing.T, seed int64) *exchange.ExportWorker {
	t.Helper()
	objective, ok := swarm.LookupObjective("rastrigin")
	require.True(t, ok)
	bounds, err := swarm.NewUniformBounds(3, -5.12, 5.12)
	require.NoError(t, err)

	cfg := swarm.DefaultPSOConfig()
	cfg.PopulationSize = 20
	cfg.MaxIters = 15
	cfg.Seed = seed
	ps, err := swarm.NewParticleSwarm(cfg, objective, bounds, zap.NewNop())
	require.NoError(t, err)

	worker, err := exchange.NewExportWorker(exchange.DefaultWorkerConfig(), ps, zap.NewNop())
	require.NoError(t, err)
	return worker
}

// TestDistributedRun_OverGateway runs the full remote deployment in one
// process: a gateway, two authenticated agents with real particle swarms, and
// a coordinator driving them over websockets.
func TestDistributedRun_OverGateway(t *testing.T) {
	const secret = "integration-secret"

	gwCfg := transport.DefaultGatewayConfig()
	gwCfg.ListenAddr = "127.0.0.1:0"
	gwCfg.Secret = secret
	gwCfg.ExpectWorkers = 2
	gw, err := transport.NewGateway(gwCfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, gw.Start())
	t.Cleanup(func() { _ = gw.Close() })

	agentErrs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		id := fmt.Sprintf("agent-%d", i)
		token, err := transport.MintToken(secret, id, time.Hour)
		require.NoError(t, err)

		agentCfg := transport.DefaultAgentConfig()
		agentCfg.GatewayURL = gw.URL()
		agentCfg.Token = token
		agentCfg.WorkerID = id

		worker := newAgentWorker(t, 100+int64(i))
		go func() {
			agentErrs <- transport.ServeWorker(context.Background(), agentCfg, worker, zap.NewNop())
		}()
	}

	ctx := testutil.TestContextWithTimeout(t, 60*time.Second)
	handles, err := gw.WaitForWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, handles, 2)

	server, err := exchange.NewParamServer(exchange.DefaultServerConfig(), zap.NewNop())
	require.NoError(t, err)
	coord, err := exchange.NewCoordinator(exchange.DefaultCoordinatorConfig(), server, handles, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, coord.Run(ctx))

	// Two workers times fifteen cycles, zero-indexed.
	assert.Equal(t, 29, coord.Epoch())
	assert.Equal(t, int64(30), server.Exchanges())

	best, ok := coord.Best()
	require.True(t, ok)
	assert.Len(t, best.State, 3)
	// A uniform rastrigin draw on [-5.12,5.12]^3 scores around 56 on
	// average; thirty exchanged cycles land well below that.
	assert.GreaterOrEqual(t, best.Reward, 0.0)
	assert.Less(t, best.Reward, 30.0)

	// Close drains the final in-flight steps before hanging up, so both
	// agents observe a normal closure and exit clean.
	require.NoError(t, coord.Close())
	for i := 0; i < 2; i++ {
		aerr, got := testutil.WaitForChannel(agentErrs, 5*time.Second)
		require.True(t, got, "agent %d did not exit", i)
		assert.NoError(t, aerr, "agent %d", i)
	}
}
