package swarmflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/swarmflow/exchange"
	"github.com/BaSui01/swarmflow/swarm"
	"github.com/BaSui01/swarmflow/types"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantMsg string
	}{
		{
			name:    "no objective",
			opts:    []Option{WithUniformBounds(2, -1, 1)},
			wantMsg: "objective is required",
		},
		{
			name: "unknown benchmark",
			opts: []Option{
				WithBenchmark("does-not-exist"),
				WithUniformBounds(2, -1, 1),
			},
			wantMsg: "sphere",
		},
		{
			name:    "no bounds",
			opts:    []Option{WithBenchmark("sphere")},
			wantMsg: "search domain is required",
		},
		{
			name: "bad uniform bounds",
			opts: []Option{
				WithBenchmark("sphere"),
				WithUniformBounds(0, -1, 1),
			},
			wantMsg: "at least one dimension",
		},
		{
			name: "zero swarms",
			opts: []Option{
				WithBenchmark("sphere"),
				WithUniformBounds(2, -1, 1),
				WithSwarms(0),
			},
			wantMsg: "swarm count",
		},
		{
			name: "bad pso config",
			opts: []Option{
				WithBenchmark("sphere"),
				WithUniformBounds(2, -1, 1),
				WithPSO(swarm.PSOConfig{PopulationSize: -1}),
			},
			wantMsg: "population size",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coord, err := New(tt.opts...)
			require.Error(t, err)
			assert.Nil(t, coord)
			assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestNew_AssemblesRun(t *testing.T) {
	coord, err := New(
		WithBenchmark("sphere"),
		WithUniformBounds(3, -5, 5),
		WithSeed(42),
		WithMaxIters(5),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = coord.Close() })

	assert.Equal(t, types.Minimize, coord.Direction())
	assert.Equal(t, 5, coord.MaxIters())
	assert.Equal(t, []string{"swarm-0", "swarm-1"}, coord.WorkerIDs())
	assert.NotEmpty(t, coord.RunID())
}

func TestNew_RunImprovesOnSphere(t *testing.T) {
	var reports []exchange.Progress
	coord, err := New(
		WithBenchmark("sphere"),
		WithUniformBounds(4, -10, 10),
		WithSwarms(3),
		WithSeed(7),
		WithMaxIters(30),
		WithReportEvery(10),
		WithProgress(func(p exchange.Progress) { reports = append(reports, p) }),
	)
	require.NoError(t, err)
	defer coord.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, coord.Run(ctx))

	// Three swarms times thirty iterations is ninety cycles, zero-indexed.
	assert.Equal(t, 89, coord.Epoch())

	best, ok := coord.Best()
	require.True(t, ok)
	assert.GreaterOrEqual(t, best.Reward, 0.0)
	// A random draw on [-10,10]^4 averages a reward above 100; thirty
	// steps per swarm with a shared best land far below that.
	assert.Less(t, best.Reward, 50.0)
	assert.Len(t, best.State, 4)

	require.Len(t, reports, 8)
	assert.Equal(t, 10, reports[0].Epoch)
	assert.Equal(t, 80, reports[7].Epoch)
	assert.True(t, reports[7].HasBest)
}

func TestNew_MaximizeFollowsDirection(t *testing.T) {
	// Negated sphere peaks at zero, so maximization chases 0 from below.
	negSphere := func(x []float64) float64 {
		var sum float64
		for _, v := range x {
			sum += v * v
		}
		return -sum
	}

	coord, err := New(
		WithObjective(negSphere),
		WithUniformBounds(3, -5, 5),
		WithDirection(types.Maximize),
		WithSeed(11),
		WithMaxIters(10),
	)
	require.NoError(t, err)
	defer coord.Close()

	require.Equal(t, types.Maximize, coord.Direction())
	require.NoError(t, coord.Run(context.Background()))

	best, ok := coord.Best()
	require.True(t, ok)
	assert.LessOrEqual(t, best.Reward, 0.0)
	assert.Greater(t, best.Reward, -75.0)
}

func TestNew_SingleSwarm(t *testing.T) {
	coord, err := New(
		WithBenchmark("rastrigin"),
		WithUniformBounds(2, -5.12, 5.12),
		WithSwarms(1),
		WithSeed(3),
		WithMaxIters(4),
		WithWorker(exchange.WorkerConfig{
			NExport:    1,
			NImport:    1,
			ExportBest: true,
			ImportBest: true,
		}),
		WithServer(exchange.ServerConfig{
			Direction:     types.Maximize, // overwritten by the run direction
			MaxLen:        4,
			AddGlobalBest: true,
			DrawPolicy:    exchange.DrawLatest,
		}),
	)
	require.NoError(t, err)
	defer coord.Close()

	assert.Equal(t, types.Minimize, coord.Direction())
	assert.Equal(t, []string{"swarm-0"}, coord.WorkerIDs())

	require.NoError(t, coord.Run(context.Background()))
	best, ok := coord.Best()
	require.True(t, ok)
	assert.GreaterOrEqual(t, best.Reward, 0.0)
}
