package swarm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBenchmarkOptima(t *testing.T) {
	origin := []float64{0, 0, 0}
	assert.Zero(t, Sphere(origin))
	assert.InDelta(t, 0, Rastrigin(origin), 1e-12)
	assert.InDelta(t, 0, Ackley(origin), 1e-12)
	assert.Zero(t, Rosenbrock([]float64{1, 1, 1}))
}

func TestBenchmarkAwayFromOptimum(t *testing.T) {
	x := []float64{1.5, -2.0}
	assert.Greater(t, Sphere(x), 0.0)
	assert.Greater(t, Rastrigin(x), 0.0)
	assert.Greater(t, Ackley(x), 0.0)
	assert.Greater(t, Rosenbrock([]float64{0, 2}), 0.0)
}

func TestLookupObjective(t *testing.T) {
	obj, ok := LookupObjective("Sphere")
	require.True(t, ok)
	assert.Equal(t, 25.0, obj([]float64{3, 4}))

	_, ok = LookupObjective("himmelblau")
	assert.False(t, ok)
}

func TestObjectiveNames(t *testing.T) {
	assert.Equal(t, []string{"ackley", "rastrigin", "rosenbrock", "sphere"}, ObjectiveNames())
}
