package swarm

import (
	"context"

	"github.com/BaSui01/swarmflow/types"
)

// Swarm is a population-based optimizer driven by the exchange layer. One
// exchange cycle calls Inject with imported candidates, Step once, and then
// snapshots Population and CurrentBest to build the export.
//
// Implementations are not safe for concurrent use. The exchange layer
// serializes all access through a single worker per swarm.
type Swarm interface {
	// Reset reinitializes the population to a fresh starting state and
	// clears the best record.
	Reset() error

	// Step advances the population by one optimization step. The context
	// bounds the step; implementations with long evaluations should honor
	// cancellation.
	Step(ctx context.Context) error

	// CurrentBest returns the best candidate found since the last Reset.
	CurrentBest() types.Candidate

	// Population returns a snapshot of the current population. Callers own
	// the returned slice.
	Population() []types.Candidate

	// Inject replaces the worst population members with the given
	// candidates. The swarm decides which members give way; callers decide
	// which candidates to offer.
	Inject(candidates []types.Candidate)

	// Direction reports whether the swarm minimizes or maximizes rewards.
	Direction() types.Direction

	// MaxIters returns the number of exchange cycles the swarm is
	// configured to run for.
	MaxIters() int

	// RewardLimit returns the reward at which the search is considered
	// solved. Informational; the exchange layer surfaces it but does not
	// enforce it.
	RewardLimit() float64
}

// BestRecorder is an optional capability. Swarms that keep a best record
// separate from the live population implement it to accept externally found
// candidates, so an imported best can steer the search without occupying a
// population slot.
type BestRecorder interface {
	RecordBest(c types.Candidate)
}
