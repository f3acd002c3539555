package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	swarmflow "github.com/BaSui01/swarmflow"
	"github.com/BaSui01/swarmflow/exchange"
	"github.com/BaSui01/swarmflow/testutil"
	"github.com/BaSui01/swarmflow/types"
)

// These tests drive the public API end to end with real particle swarms, the
// way an embedding application would.

func TestInProcessRun_MinimizesSphere(t *testing.T) {
	var reports []exchange.Progress
	coord, err := swarmflow.New(
		swarmflow.WithBenchmark("sphere"),
		swarmflow.WithUniformBounds(5, -10, 10),
		swarmflow.WithSwarms(4),
		swarmflow.WithSeed(1),
		swarmflow.WithMaxIters(60),
		swarmflow.WithReportEvery(60),
		swarmflow.WithProgress(func(p exchange.Progress) { reports = append(reports, p) }),
	)
	require.NoError(t, err)
	defer coord.Close()

	ctx := testutil.TestContextWithTimeout(t, 60*time.Second)
	require.NoError(t, coord.Run(ctx))

	// Four swarms times sixty cycles, zero-indexed.
	assert.Equal(t, 239, coord.Epoch())
	assert.Equal(t, types.Minimize, coord.Direction())

	best, ok := coord.Best()
	require.True(t, ok)
	assert.Len(t, best.State, 5)
	// A uniform draw on [-10,10]^5 scores around 167 on average; sixty
	// shared-best cycles per swarm reliably land below 10.
	assert.GreaterOrEqual(t, best.Reward, 0.0)
	assert.Less(t, best.Reward, 10.0)

	// 240 cycles with a report every 60 fire at 60, 120 and 180.
	require.Len(t, reports, 3)
	for _, p := range reports {
		assert.True(t, p.HasBest)
	}
	assert.Equal(t, 60, reports[0].Epoch)
	assert.Equal(t, 180, reports[2].Epoch)
}

func TestInProcessRun_RepeatedRunsStartFresh(t *testing.T) {
	coord, err := swarmflow.New(
		swarmflow.WithBenchmark("rastrigin"),
		swarmflow.WithUniformBounds(3, -5.12, 5.12),
		swarmflow.WithSwarms(2),
		swarmflow.WithSeed(7),
		swarmflow.WithMaxIters(10),
	)
	require.NoError(t, err)
	defer coord.Close()

	for run := 0; run < 2; run++ {
		ctx := testutil.TestContextWithTimeout(t, 30*time.Second)
		require.NoError(t, coord.Run(ctx), "run %d", run)
		assert.Equal(t, 19, coord.Epoch(), "run %d", run)

		best, ok := coord.Best()
		require.True(t, ok, "run %d", run)
		assert.GreaterOrEqual(t, best.Reward, 0.0, "run %d", run)
		assert.Len(t, best.State, 3, "run %d", run)
	}
}
