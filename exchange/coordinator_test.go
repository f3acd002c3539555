package exchange

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/internal/metrics"
	"github.com/BaSui01/swarmflow/testutil"
	"github.com/BaSui01/swarmflow/testutil/mocks"
	"github.com/BaSui01/swarmflow/types"
)

// handleFor wraps a mock swarm in a worker and a local handle.
func handleFor(t *testing.T, id string, cfg WorkerConfig, sw *mocks.MockSwarm) *LocalHandle {
	t.Helper()
	worker, err := NewExportWorker(cfg, sw, zap.NewNop())
	require.NoError(t, err)
	h, err := NewLocalHandle(id, worker, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestNewCoordinator(t *testing.T) {
	server := newTestServer(t, DefaultServerConfig())

	t.Run("rejects nil server", func(t *testing.T) {
		h := handleFor(t, "w", DefaultWorkerConfig(), mocks.NewMockSwarm())
		_, err := NewCoordinator(DefaultCoordinatorConfig(), nil, []Handle{h}, zap.NewNop())
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))
	})

	t.Run("rejects empty handle set", func(t *testing.T) {
		_, err := NewCoordinator(DefaultCoordinatorConfig(), server, nil, zap.NewNop())
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))
	})

	t.Run("rejects negative report interval", func(t *testing.T) {
		h := handleFor(t, "w", DefaultWorkerConfig(), mocks.NewMockSwarm())
		cfg := DefaultCoordinatorConfig()
		cfg.ReportEvery = -1
		_, err := NewCoordinator(cfg, server, []Handle{h}, zap.NewNop())
		require.Error(t, err)
	})

	t.Run("rejects direction disagreement", func(t *testing.T) {
		agree := handleFor(t, "w-min", DefaultWorkerConfig(), mocks.NewMockSwarm())
		disagree := handleFor(t, "w-max", DefaultWorkerConfig(),
			mocks.NewMockSwarm().WithDirection(types.Maximize))

		_, err := NewCoordinator(DefaultCoordinatorConfig(), server, []Handle{agree, disagree}, zap.NewNop())
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))
		assert.Contains(t, err.Error(), "w-max")
	})

	t.Run("rejects non-positive cycle budget", func(t *testing.T) {
		h := handleFor(t, "w", DefaultWorkerConfig(), mocks.NewMockSwarm().WithMaxIters(0))
		_, err := NewCoordinator(DefaultCoordinatorConfig(), server, []Handle{h}, zap.NewNop())
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))
	})
}

func TestCoordinator_RunSpendsExactBudget(t *testing.T) {
	ctx := testutil.TestContext(t)
	server := newTestServer(t, DefaultServerConfig())

	swA := mocks.NewMockSwarm().WithID("a").WithMaxIters(3)
	swB := mocks.NewMockSwarm().WithID("b").WithMaxIters(3)
	hA := handleFor(t, "worker-a", DefaultWorkerConfig(), swA)
	hB := handleFor(t, "worker-b", DefaultWorkerConfig(), swB)

	coord, err := NewCoordinator(DefaultCoordinatorConfig(), server, []Handle{hA, hB}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, coord.Run(ctx))

	// Exactly max_iters completions per worker are consumed and merged.
	assert.Equal(t, int64(6), server.Exchanges())
	assert.Equal(t, 5, coord.Epoch())

	// Every consumed completion re-issues a step, so the seed dispatches
	// plus the budget account for all swarm steps once the handles drain.
	require.NoError(t, coord.Close())
	assert.Equal(t, 8, swA.StepCount()+swB.StepCount())
}

// Two workers with scripted rewards: A improves to 1 while B plateaus at 4.
// The run must surface A's candidate as the global best.
func TestCoordinator_ScriptedRun(t *testing.T) {
	ctx := testutil.TestContext(t)
	cfg := DefaultServerConfig()
	cfg.MaxLen = 2
	server := newTestServer(t, cfg)

	workerCfg := WorkerConfig{NExport: 1, NImport: 1, ExportBest: true, ImportBest: true}
	swA := mocks.NewMockSwarm().WithID("a").WithMaxIters(3).
		WithSchedule(5, 3, 1).WithStepDelay(20 * time.Millisecond)
	swB := mocks.NewMockSwarm().WithID("b").WithMaxIters(3).
		WithSchedule(4, 4, 4).WithStepDelay(20 * time.Millisecond)
	hA := handleFor(t, "worker-a", workerCfg, swA)
	hB := handleFor(t, "worker-b", workerCfg, swB)

	coord, err := NewCoordinator(DefaultCoordinatorConfig(), server, []Handle{hA, hB}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, coord.Run(ctx))

	best, ok := coord.Best()
	require.True(t, ok)
	assert.Equal(t, 1.0, best.Reward)
	assert.True(t, strings.HasPrefix(best.ID, "a-step-"), "best %q should come from worker a", best.ID)

	n, err := server.PoolLen(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 2)
}

// The global best found by one worker must reach the others through the
// batches the server hands back.
func TestCoordinator_BestPropagatesBetweenWorkers(t *testing.T) {
	ctx := testutil.TestContext(t)
	server := newTestServer(t, DefaultServerConfig())

	swA := mocks.NewMockSwarm().WithID("a").WithMaxIters(3).
		WithSchedule(1).WithStepDelay(5 * time.Millisecond)
	swB := mocks.NewMockSwarm().WithID("b").WithMaxIters(3).
		WithSchedule(9).WithStepDelay(15 * time.Millisecond)
	hA := handleFor(t, "worker-a", DefaultWorkerConfig(), swA)
	hB := handleFor(t, "worker-b", DefaultWorkerConfig(), swB)

	coord, err := NewCoordinator(DefaultCoordinatorConfig(), server, []Handle{hA, hB}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, coord.Run(ctx))

	// B never found anything better than 9 on its own; its record can only
	// hold 1 because an import carried A's best.
	bestB, ok, err := hB.Best(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, bestB.Reward)
	assert.True(t, strings.HasPrefix(bestB.ID, "a-step-"))
}

func TestCoordinator_FailureAbortsRun(t *testing.T) {
	ctx := testutil.TestContext(t)
	server := newTestServer(t, DefaultServerConfig())

	swA := mocks.NewMockSwarm().WithID("a").WithMaxIters(3).
		WithFailAt(2).WithStepDelay(10 * time.Millisecond)
	swB := mocks.NewMockSwarm().WithID("b").WithMaxIters(3).
		WithStepDelay(10 * time.Millisecond)
	hA := handleFor(t, "worker-a", DefaultWorkerConfig(), swA)
	hB := handleFor(t, "worker-b", DefaultWorkerConfig(), swB)

	coord, err := NewCoordinator(DefaultCoordinatorConfig(), server, []Handle{hA, hB}, zap.NewNop())
	require.NoError(t, err)

	err = coord.Run(ctx)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrWorkerStepFailure))

	var terr *types.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "worker-a", terr.WorkerID)
	assert.GreaterOrEqual(t, terr.Epoch, 0)

	assert.Less(t, server.Exchanges(), int64(6))
}

func TestCoordinator_ContinueOnFailure(t *testing.T) {
	ctx := testutil.TestContext(t)
	server := newTestServer(t, DefaultServerConfig())

	swA := mocks.NewMockSwarm().WithID("a").WithMaxIters(3).WithFailAt(1)
	swB := mocks.NewMockSwarm().WithID("b").WithMaxIters(3).WithSchedule(4)
	hA := handleFor(t, "worker-a", DefaultWorkerConfig(), swA)
	hB := handleFor(t, "worker-b", DefaultWorkerConfig(), swB)

	cfg := DefaultCoordinatorConfig()
	cfg.ContinueOnFailure = true
	coord, err := NewCoordinator(cfg, server, []Handle{hA, hB}, zap.NewNop())
	require.NoError(t, err)

	err = coord.Run(ctx)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrWorkerStepFailure))

	// The dead worker consumed one slot of the budget; the survivor served
	// the rest.
	assert.Equal(t, int64(5), server.Exchanges())

	best, ok := coord.Best()
	require.True(t, ok)
	assert.Equal(t, 4.0, best.Reward)
}

func TestCoordinator_NoWorkersLeft(t *testing.T) {
	ctx := testutil.TestContext(t)
	server := newTestServer(t, DefaultServerConfig())

	sw := mocks.NewMockSwarm().WithID("a").WithMaxIters(3).WithFailAt(1)
	h := handleFor(t, "worker-a", DefaultWorkerConfig(), sw)

	cfg := DefaultCoordinatorConfig()
	cfg.ContinueOnFailure = true
	coord, err := NewCoordinator(cfg, server, []Handle{h}, zap.NewNop())
	require.NoError(t, err)

	err = coord.Run(ctx)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrNoWorkers))
	// The underlying step failure stays visible through the cause chain.
	assert.Contains(t, err.Error(), "induced step failure")
}

func TestCoordinator_SecondRunStartsFresh(t *testing.T) {
	ctx := testutil.TestContext(t)
	server := newTestServer(t, DefaultServerConfig())

	sw := mocks.NewMockSwarm().WithID("a").WithMaxIters(2).WithSchedule(3, 2)
	h := handleFor(t, "worker-a", DefaultWorkerConfig(), sw)

	coord, err := NewCoordinator(DefaultCoordinatorConfig(), server, []Handle{h}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, coord.Run(ctx))
	require.Equal(t, int64(2), server.Exchanges())

	// The second run resets the server and spends a fresh budget.
	require.NoError(t, coord.Run(ctx))
	assert.Equal(t, int64(2), server.Exchanges())
	assert.GreaterOrEqual(t, sw.ResetCount(), 2)

	best, ok := coord.Best()
	require.True(t, ok)
	assert.Equal(t, 2.0, best.Reward)
}

func TestCoordinator_RejectsOverlappingRuns(t *testing.T) {
	ctx := testutil.TestContext(t)
	server := newTestServer(t, DefaultServerConfig())

	sw := mocks.NewMockSwarm().WithID("a").WithMaxIters(2).
		WithStepDelay(200 * time.Millisecond)
	h := handleFor(t, "worker-a", DefaultWorkerConfig(), sw)

	coord, err := NewCoordinator(DefaultCoordinatorConfig(), server, []Handle{h}, zap.NewNop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	err = coord.Run(ctx)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCallInFlight))

	firstErr, ok := testutil.WaitForChannel(done, 5*time.Second)
	require.True(t, ok, "first run did not finish")
	assert.NoError(t, firstErr)
}

func TestCoordinator_ContextCancellation(t *testing.T) {
	server := newTestServer(t, DefaultServerConfig())

	sw := mocks.NewMockSwarm().WithID("a").WithMaxIters(50).
		WithStepDelay(500 * time.Millisecond)
	h := handleFor(t, "worker-a", DefaultWorkerConfig(), sw)

	coord, err := NewCoordinator(DefaultCoordinatorConfig(), server, []Handle{h}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = coord.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCoordinator_ProgressReports(t *testing.T) {
	ctx := testutil.TestContext(t)
	server := newTestServer(t, DefaultServerConfig())

	swA := mocks.NewMockSwarm().WithID("a").WithMaxIters(3).WithStepDelay(10 * time.Millisecond)
	swB := mocks.NewMockSwarm().WithID("b").WithMaxIters(3).WithStepDelay(10 * time.Millisecond)
	hA := handleFor(t, "worker-a", DefaultWorkerConfig(), swA)
	hB := handleFor(t, "worker-b", DefaultWorkerConfig(), swB)

	var epochs []int
	cfg := DefaultCoordinatorConfig()
	cfg.ReportEvery = 2
	coord, err := NewCoordinator(cfg, server, []Handle{hA, hB}, zap.NewNop(),
		WithProgress(func(p Progress) {
			epochs = append(epochs, p.Epoch)
			assert.True(t, p.HasBest)
		}))
	require.NoError(t, err)

	require.NoError(t, coord.Run(ctx))
	assert.Equal(t, []int{2, 4}, epochs)
}

func TestCoordinator_MetricsWiring(t *testing.T) {
	ctx := testutil.TestContext(t)
	collector := metrics.NewCollector("exchange_coord_test", zap.NewNop())

	server := newTestServer(t, DefaultServerConfig(), WithCollector(collector))
	sw := mocks.NewMockSwarm().WithID("a").WithMaxIters(2)
	h := handleFor(t, "worker-a", DefaultWorkerConfig(), sw)

	coord, err := NewCoordinator(DefaultCoordinatorConfig(), server, []Handle{h}, zap.NewNop(),
		WithMetrics(collector))
	require.NoError(t, err)

	require.NoError(t, coord.Run(ctx))
	assert.Equal(t, int64(2), server.Exchanges())
}

func TestCoordinator_Accessors(t *testing.T) {
	server := newTestServer(t, DefaultServerConfig())

	sw := mocks.NewMockSwarm().WithID("a").WithMaxIters(4).WithRewardLimit(0.5)
	h := handleFor(t, "worker-a", DefaultWorkerConfig(), sw)

	coord, err := NewCoordinator(DefaultCoordinatorConfig(), server, []Handle{h}, zap.NewNop())
	require.NoError(t, err)

	assert.NotEmpty(t, coord.RunID())
	assert.Equal(t, types.Minimize, coord.Direction())
	assert.Equal(t, 4, coord.MaxIters())
	assert.Equal(t, 0.5, coord.RewardLimit())
	assert.Equal(t, []string{"worker-a"}, coord.WorkerIDs())

	require.NoError(t, coord.Close())
	_, err = h.RunExchangeStep(context.Background(), types.NewEmptyBatch()).Result()
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrHandleClosed))
}
