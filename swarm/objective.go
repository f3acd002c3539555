package swarm

import (
	"math"
	"sort"
	"strings"
)

// Objective evaluates one state vector and returns its reward. Objectives
// must be deterministic and safe to call from multiple swarms at once.
type Objective func(state []float64) float64

// Sphere is the convex baseline benchmark: sum of squares, minimum 0 at the
// origin.
func Sphere(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum
}

// Rastrigin is a highly multimodal benchmark with a regular lattice of local
// minima, minimum 0 at the origin.
func Rastrigin(x []float64) float64 {
	sum := 10.0 * float64(len(x))
	for _, v := range x {
		sum += v*v - 10.0*math.Cos(2.0*math.Pi*v)
	}
	return sum
}

// Rosenbrock is the banana-valley benchmark, minimum 0 at (1, ..., 1).
func Rosenbrock(x []float64) float64 {
	sum := 0.0
	for i := 0; i < len(x)-1; i++ {
		a := x[i+1] - x[i]*x[i]
		b := 1.0 - x[i]
		sum += 100.0*a*a + b*b
	}
	return sum
}

// Ackley is a multimodal benchmark with a nearly flat outer region and a
// deep central funnel, minimum 0 at the origin.
func Ackley(x []float64) float64 {
	n := float64(len(x))
	sumSq := 0.0
	sumCos := 0.0
	for _, v := range x {
		sumSq += v * v
		sumCos += math.Cos(2.0 * math.Pi * v)
	}
	return -20.0*math.Exp(-0.2*math.Sqrt(sumSq/n)) - math.Exp(sumCos/n) + 20.0 + math.E
}

var objectives = map[string]Objective{
	"sphere":     Sphere,
	"rastrigin":  Rastrigin,
	"rosenbrock": Rosenbrock,
	"ackley":     Ackley,
}

// LookupObjective resolves a benchmark objective by name. Names are matched
// case-insensitively.
func LookupObjective(name string) (Objective, bool) {
	obj, ok := objectives[strings.ToLower(name)]
	return obj, ok
}

// ObjectiveNames lists the registered benchmark names in sorted order.
func ObjectiveNames() []string {
	names := make([]string, 0, len(objectives))
	for name := range objectives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
