package swarm

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/types"
)

// PSOConfig configures a particle swarm.
type PSOConfig struct {
	// PopulationSize is the number of particles.
	PopulationSize int `json:"population_size" yaml:"population_size"`
	// Inertia damps the previous velocity on every update.
	Inertia float64 `json:"inertia" yaml:"inertia"`
	// Cognitive weighs the pull toward each particle's own best position.
	Cognitive float64 `json:"cognitive" yaml:"cognitive"`
	// Social weighs the pull toward the swarm-wide best position.
	Social float64 `json:"social" yaml:"social"`
	// MaxVelocity caps the per-dimension velocity magnitude.
	MaxVelocity float64 `json:"max_velocity" yaml:"max_velocity"`
	// Direction selects minimization or maximization.
	Direction types.Direction `json:"direction" yaml:"direction"`
	// MaxIters is the exchange-cycle budget the swarm is configured for.
	MaxIters int `json:"max_iters" yaml:"max_iters"`
	// RewardLimit is the reward at which the search counts as solved.
	// Informational; zero disables it.
	RewardLimit float64 `json:"reward_limit" yaml:"reward_limit"`
	// Seed fixes the random source; zero seeds from the clock.
	Seed int64 `json:"seed" yaml:"seed"`
	// TrueHash selects state fingerprinting over sequential candidate ids.
	TrueHash bool `json:"true_hash" yaml:"true_hash"`
}

// DefaultPSOConfig returns the standard inertia-weight parameterization.
func DefaultPSOConfig() PSOConfig {
	return PSOConfig{
		PopulationSize: 30,
		Inertia:        0.9,
		Cognitive:      2.0,
		Social:         2.0,
		MaxVelocity:    4.0,
		Direction:      types.Minimize,
		MaxIters:       100,
		TrueHash:       true,
	}
}

// Validate checks the configuration.
func (c PSOConfig) Validate() error {
	if c.PopulationSize <= 0 {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("population size must be positive, got %d", c.PopulationSize))
	}
	if c.MaxIters <= 0 {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("max iters must be positive, got %d", c.MaxIters))
	}
	if c.Inertia < 0 || c.Cognitive < 0 || c.Social < 0 {
		return types.NewError(types.ErrInvalidConfig, "inertia, cognitive and social weights must not be negative")
	}
	if c.MaxVelocity <= 0 {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("max velocity must be positive, got %v", c.MaxVelocity))
	}
	return c.Direction.Validate()
}

type particle struct {
	id         string
	position   []float64
	velocity   []float64
	reward     float64
	bestPos    []float64
	bestReward float64
}

var (
	_ Swarm        = (*ParticleSwarm)(nil)
	_ BestRecorder = (*ParticleSwarm)(nil)
)

// ParticleSwarm is the built-in particle swarm optimizer. Particles move
// under inertia, a cognitive pull toward their own best position, and a
// social pull toward the swarm-wide best.
//
// Not safe for concurrent use.
type ParticleSwarm struct {
	cfg       PSOConfig
	objective Objective
	bounds    Bounds
	better    func(a, b float64) bool
	rng       *rand.Rand
	hasher    *Hasher
	logger    *zap.Logger

	particles []particle
	best      types.Candidate
	hasBest   bool
	iter      int
}

// NewParticleSwarm creates and initializes a particle swarm over the given
// objective and domain.
func NewParticleSwarm(cfg PSOConfig, objective Objective, bounds Bounds, logger *zap.Logger) (*ParticleSwarm, error) {
	if objective == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "objective must not be nil")
	}
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &ParticleSwarm{
		cfg:       cfg,
		objective: objective,
		bounds:    bounds,
		better:    cfg.Direction.Comparator(),
		rng:       rand.New(rand.NewSource(seed)),
		hasher:    NewHasher(cfg.TrueHash),
		logger:    logger.With(zap.String("component", "particle_swarm")),
	}
	s.init()
	s.logger.Debug("particle swarm initialized",
		zap.Int("population", cfg.PopulationSize),
		zap.Int("dims", bounds.Dims()),
		zap.String("direction", cfg.Direction.String()))
	return s, nil
}

func (s *ParticleSwarm) init() {
	dims := s.bounds.Dims()
	s.particles = make([]particle, s.cfg.PopulationSize)
	s.hasBest = false
	s.best = types.Candidate{}
	s.iter = 0
	for i := range s.particles {
		p := &s.particles[i]
		p.position = s.bounds.Sample(s.rng)
		p.velocity = make([]float64, dims)
		p.reward = s.objective(p.position)
		p.bestPos = make([]float64, dims)
		copy(p.bestPos, p.position)
		p.bestReward = p.reward
		p.id = s.hasher.HashState(p.position)
		s.observe(p.id, p.position, p.reward)
	}
}

// observe folds one evaluation into the best record.
func (s *ParticleSwarm) observe(id string, position []float64, reward float64) {
	if s.hasBest && !s.better(reward, s.best.Reward) {
		return
	}
	s.best = types.NewCandidate(id, position, reward)
	s.hasBest = true
}

// Reset reinitializes the population. Identities keep drawing from the same
// hasher so ids stay unique across resets.
func (s *ParticleSwarm) Reset() error {
	s.init()
	s.logger.Debug("particle swarm reset")
	return nil
}

// Step advances every particle by one velocity and position update.
func (s *ParticleSwarm) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i := range s.particles {
		p := &s.particles[i]
		for d := range p.position {
			r1 := s.rng.Float64()
			r2 := s.rng.Float64()
			v := s.cfg.Inertia*p.velocity[d] +
				s.cfg.Cognitive*r1*(p.bestPos[d]-p.position[d]) +
				s.cfg.Social*r2*(s.best.State[d]-p.position[d])
			if v > s.cfg.MaxVelocity {
				v = s.cfg.MaxVelocity
			} else if v < -s.cfg.MaxVelocity {
				v = -s.cfg.MaxVelocity
			}
			p.velocity[d] = v
			p.position[d] += v
		}
		s.bounds.Clamp(p.position)
		p.reward = s.objective(p.position)
		p.id = s.hasher.HashState(p.position)
		if s.better(p.reward, p.bestReward) {
			p.bestReward = p.reward
			copy(p.bestPos, p.position)
		}
		s.observe(p.id, p.position, p.reward)
	}
	s.iter++
	return nil
}

// CurrentBest returns the best candidate observed since the last reset.
func (s *ParticleSwarm) CurrentBest() types.Candidate {
	return s.best.Clone()
}

// Population returns a snapshot of the current particle states.
func (s *ParticleSwarm) Population() []types.Candidate {
	out := make([]types.Candidate, len(s.particles))
	for i := range s.particles {
		p := &s.particles[i]
		out[i] = types.NewCandidate(p.id, p.position, p.reward)
	}
	return out
}

// Inject overwrites the worst particles with the given candidates, applied
// in order. Rewards are trusted: every swarm in a run evaluates the same
// objective. Candidates whose state does not match the domain dimension are
// skipped.
func (s *ParticleSwarm) Inject(candidates []types.Candidate) {
	if len(candidates) == 0 {
		return
	}
	idx := make([]int, len(s.particles))
	for i := range idx {
		idx[i] = i
	}
	// Worst particles first.
	sort.SliceStable(idx, func(a, b int) bool {
		return s.better(s.particles[idx[b]].reward, s.particles[idx[a]].reward)
	})
	n := len(candidates)
	if n > len(s.particles) {
		n = len(s.particles)
	}
	dims := s.bounds.Dims()
	for k := 0; k < n; k++ {
		c := candidates[k]
		if len(c.State) != dims {
			s.logger.Warn("skipping injected candidate with mismatched dimension",
				zap.String("id", c.ID),
				zap.Int("got", len(c.State)),
				zap.Int("want", dims))
			continue
		}
		p := &s.particles[idx[k]]
		copy(p.position, c.State)
		for d := range p.velocity {
			p.velocity[d] = 0
		}
		p.reward = c.Reward
		copy(p.bestPos, c.State)
		p.bestReward = c.Reward
		p.id = c.ID
		s.observe(c.ID, p.position, c.Reward)
	}
}

// RecordBest folds an externally found candidate into the best record, so
// the social pull steers toward it without it occupying a population slot.
func (s *ParticleSwarm) RecordBest(c types.Candidate) {
	if len(c.State) != s.bounds.Dims() {
		return
	}
	if s.hasBest && !s.better(c.Reward, s.best.Reward) {
		return
	}
	s.best = c.Clone()
	s.hasBest = true
}

// Direction reports the optimization direction.
func (s *ParticleSwarm) Direction() types.Direction {
	return s.cfg.Direction
}

// MaxIters returns the configured exchange-cycle budget.
func (s *ParticleSwarm) MaxIters() int {
	return s.cfg.MaxIters
}

// RewardLimit returns the configured informational reward limit.
func (s *ParticleSwarm) RewardLimit() float64 {
	return s.cfg.RewardLimit
}

// Iteration returns the number of completed steps since the last reset.
func (s *ParticleSwarm) Iteration() int {
	return s.iter
}
