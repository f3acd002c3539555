// End-to-end test of the full production shape: a Redis-backed parameter
// server behind a websocket gateway, driven against authenticated remote
// agents running real particle swarms.
//
//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/exchange"
	"github.com/BaSui01/swarmflow/internal/metrics"
	"github.com/BaSui01/swarmflow/swarm"
	"github.com/BaSui01/swarmflow/testutil"
	"github.com/BaSui01/swarmflow/transport"
)

const (
	e2eSecret  = "e2e-secret"
	e2eWorkers = 2
	e2eIters   = 12
)

// stack holds every component of the assembled system.
type stack struct {
	redis     *miniredis.Miniredis
	gateway   *transport.Gateway
	server    *exchange.ParamServer
	coord     *exchange.Coordinator
	agentErrs chan error
	reports   []exchange.Progress
}

// buildStack assembles the whole deployment in one process: miniredis, the
// gateway, two remote agents, and a coordinator over the remote handles.
func buildStack(t *testing.T, ctx context.Context) *stack {
	t.Helper()
	st := &stack{agentErrs: make(chan error, e2eWorkers)}

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	st.redis = mr

	bufCfg := exchange.DefaultRedisBufferConfig()
	bufCfg.Addr = st.redis.Addr()
	bufCfg.KeyPrefix = "e2e"
	bufCfg.MaxLen = 16
	buf, err := exchange.NewRedisBuffer(bufCfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = buf.Close() })

	collector := metrics.NewCollector("e2e_full_test", zap.NewNop())

	gwCfg := transport.DefaultGatewayConfig()
	gwCfg.ListenAddr = "127.0.0.1:0"
	gwCfg.Secret = e2eSecret
	gwCfg.ExpectWorkers = e2eWorkers
	st.gateway, err = transport.NewGateway(gwCfg, zap.NewNop(), transport.WithGatewayCollector(collector))
	require.NoError(t, err)
	require.NoError(t, st.gateway.Start())
	t.Cleanup(func() { _ = st.gateway.Close() })

	for i := 0; i < e2eWorkers; i++ {
		startE2EAgent(t, st, i)
	}

	handles, err := st.gateway.WaitForWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, handles, e2eWorkers)

	st.server, err = exchange.NewParamServer(exchange.DefaultServerConfig(), zap.NewNop(),
		exchange.WithBuffer(buf), exchange.WithCollector(collector))
	require.NoError(t, err)

	coordCfg := exchange.DefaultCoordinatorConfig()
	coordCfg.ReportEvery = 10
	st.coord, err = exchange.NewCoordinator(coordCfg, st.server, handles, zap.NewNop(),
		exchange.WithMetrics(collector),
		exchange.WithProgress(func(p exchange.Progress) { st.reports = append(st.reports, p) }))
	require.NoError(t, err)
	return st
}

// startE2EAgent connects one authenticated agent with a real particle swarm
// on the four-dimensional sphere.
func startE2EAgent(t *testing.T, st *stack, idx int) {
	t.Helper()
	id := fmt.Sprintf("e2e-agent-%d", idx)
	token, err := transport.MintToken(e2eSecret, id, time.Hour)
	require.NoError(t, err)

	bounds, err := swarm.NewUniformBounds(4, -10, 10)
	require.NoError(t, err)
	psoCfg := swarm.DefaultPSOConfig()
	psoCfg.PopulationSize = 15
	psoCfg.MaxIters = e2eIters
	psoCfg.Seed = 500 + int64(idx)
	ps, err := swarm.NewParticleSwarm(psoCfg, swarm.Sphere, bounds, zap.NewNop())
	require.NoError(t, err)
	worker, err := exchange.NewExportWorker(exchange.DefaultWorkerConfig(), ps, zap.NewNop())
	require.NoError(t, err)

	agentCfg := transport.DefaultAgentConfig()
	agentCfg.GatewayURL = st.gateway.URL()
	agentCfg.Token = token
	agentCfg.WorkerID = id

	go func() {
		st.agentErrs <- transport.ServeWorker(context.Background(), agentCfg, worker, zap.NewNop())
	}()
}

func TestFullSystem_DistributedRedisRun(t *testing.T) {
	ctx := testutil.TestContextWithTimeout(t, 2*time.Minute)
	st := buildStack(t, ctx)

	require.NoError(t, st.coord.Run(ctx))

	// Two workers times twelve cycles, zero-indexed.
	assert.Equal(t, e2eWorkers*e2eIters-1, st.coord.Epoch())
	assert.Equal(t, int64(e2eWorkers*e2eIters), st.server.Exchanges())

	best, ok := st.coord.Best()
	require.True(t, ok)
	assert.Len(t, best.State, 4)
	// A uniform draw on [-10,10]^4 scores around 133 on average; the
	// exchanged run lands far below that.
	assert.GreaterOrEqual(t, best.Reward, 0.0)
	assert.Less(t, best.Reward, 25.0)

	// The pool lives in Redis, capped at its configured length.
	poolLen, err := st.server.PoolLen(ctx)
	require.NoError(t, err)
	assert.Greater(t, poolLen, 0)
	assert.LessOrEqual(t, poolLen, 16)
	assert.True(t, st.redis.Exists("e2e:pool"))

	// 24 cycles with a report every 10 fire at 10 and 20.
	require.Len(t, st.reports, 2)
	assert.Equal(t, 10, st.reports[0].Epoch)
	assert.Equal(t, 20, st.reports[1].Epoch)
	assert.True(t, st.reports[1].HasBest)

	// A second run resets the Redis pool and the agents, then spends the
	// same budget again.
	st.reports = nil
	require.NoError(t, st.coord.Run(ctx))
	assert.Equal(t, e2eWorkers*e2eIters-1, st.coord.Epoch())
	_, ok = st.coord.Best()
	assert.True(t, ok)

	// Close drains the final in-flight steps; both agents exit clean.
	require.NoError(t, st.coord.Close())
	for i := 0; i < e2eWorkers; i++ {
		aerr, got := testutil.WaitForChannel(st.agentErrs, 5*time.Second)
		require.True(t, got, "agent %d did not exit", i)
		assert.NoError(t, aerr, "agent %d", i)
	}
}
