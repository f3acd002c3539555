// MockSwarm is a scriptable swarm.Swarm for exchange-layer tests.
//
// It supports scripted reward schedules, step latency, and failure
// injection.
package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/swarmflow/swarm"
	"github.com/BaSui01/swarmflow/types"
)

// --- MockSwarm structure ---

// MockSwarm replaces a real optimizer in tests. Each Step reports the next
// reward from the schedule as the swarm's best; injections and recorded
// bests are logged for inspection.
type MockSwarm struct {
	mu sync.Mutex

	// configuration
	id          string
	direction   types.Direction
	maxIters    int
	rewardLimit float64

	// scripted behavior
	schedule   []float64     // reward reported after step i; last value repeats
	population []types.Candidate
	stepDelay  time.Duration
	failAt     int // fail the Nth step (1-based); zero disables
	stepErr    error

	// state and call records
	stepCount  int
	resetCount int
	best       types.Candidate
	hasBest    bool
	injected   [][]types.Candidate
	recorded   []types.Candidate
}

var (
	_ swarm.Swarm        = (*MockSwarm)(nil)
	_ swarm.BestRecorder = (*MockSwarm)(nil)
)

// --- Constructor and builder methods ---

// NewMockSwarm creates a MockSwarm that minimizes, runs three cycles, and
// improves its best by one per step.
func NewMockSwarm() *MockSwarm {
	return &MockSwarm{
		id:        "mock",
		direction: types.Minimize,
		maxIters:  3,
		stepErr:   errors.New("induced step failure"),
	}
}

// WithID sets the id prefix used for generated candidates.
func (m *MockSwarm) WithID(id string) *MockSwarm {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return m
}

// WithDirection sets the optimization direction.
func (m *MockSwarm) WithDirection(d types.Direction) *MockSwarm {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.direction = d
	return m
}

// WithMaxIters sets the reported cycle budget.
func (m *MockSwarm) WithMaxIters(n int) *MockSwarm {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxIters = n
	return m
}

// WithRewardLimit sets the reported reward limit.
func (m *MockSwarm) WithRewardLimit(limit float64) *MockSwarm {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewardLimit = limit
	return m
}

// WithSchedule scripts the reward reported after each step. The last value
// repeats once the schedule is exhausted.
func (m *MockSwarm) WithSchedule(rewards ...float64) *MockSwarm {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedule = append([]float64(nil), rewards...)
	return m
}

// WithPopulation pins the population snapshot returned by Population.
func (m *MockSwarm) WithPopulation(cands ...types.Candidate) *MockSwarm {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.population = append([]types.Candidate(nil), cands...)
	return m
}

// WithStepDelay makes each Step take at least d.
func (m *MockSwarm) WithStepDelay(d time.Duration) *MockSwarm {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stepDelay = d
	return m
}

// WithFailAt makes the nth Step (1-based) return an error.
func (m *MockSwarm) WithFailAt(n int) *MockSwarm {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAt = n
	return m
}

// WithStepError sets the error returned by a failing step.
func (m *MockSwarm) WithStepError(err error) *MockSwarm {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stepErr = err
	return m
}

// --- swarm.Swarm implementation ---

// Reset clears the step counter and the best record. Injection and
// RecordBest logs survive so tests can inspect them after a run.
func (m *MockSwarm) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stepCount = 0
	m.resetCount++
	m.best = types.Candidate{}
	m.hasBest = false
	return nil
}

// Step advances the script by one reward and updates the best record when
// the scripted reward improves on it.
func (m *MockSwarm) Step(ctx context.Context) error {
	m.mu.Lock()
	delay := m.stepDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stepCount++
	if m.failAt > 0 && m.stepCount == m.failAt {
		return m.stepErr
	}

	reward := m.scheduledReward(m.stepCount)
	if !m.hasBest || m.direction.Better(reward, m.best.Reward) {
		m.best = types.NewCandidate(
			fmt.Sprintf("%s-step-%d", m.id, m.stepCount),
			[]float64{reward},
			reward,
		)
		m.hasBest = true
	}
	return nil
}

// scheduledReward returns the reward for the given 1-based step. Without a
// schedule the best improves by one per step.
func (m *MockSwarm) scheduledReward(step int) float64 {
	if len(m.schedule) == 0 {
		if m.direction == types.Maximize {
			return float64(step)
		}
		return float64(100 - step)
	}
	if step > len(m.schedule) {
		return m.schedule[len(m.schedule)-1]
	}
	return m.schedule[step-1]
}

// CurrentBest returns the best candidate seen since the last Reset.
func (m *MockSwarm) CurrentBest() types.Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.best.Clone()
}

// Population returns the pinned population if one was set, otherwise the
// best record alone.
func (m *MockSwarm) Population() []types.Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.population) > 0 {
		out := make([]types.Candidate, len(m.population))
		for i, c := range m.population {
			out[i] = c.Clone()
		}
		return out
	}
	if !m.hasBest {
		return nil
	}
	return []types.Candidate{m.best.Clone()}
}

// Inject records the offered candidates without changing the script.
func (m *MockSwarm) Inject(candidates []types.Candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := make([]types.Candidate, len(candidates))
	for i, c := range candidates {
		batch[i] = c.Clone()
	}
	m.injected = append(m.injected, batch)
}

// RecordBest logs the candidate and adopts it when it improves on the
// current best.
func (m *MockSwarm) RecordBest(c types.Candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = append(m.recorded, c.Clone())
	if !m.hasBest || m.direction.Better(c.Reward, m.best.Reward) {
		m.best = c.Clone()
		m.hasBest = true
	}
}

// Direction reports the configured direction.
func (m *MockSwarm) Direction() types.Direction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.direction
}

// MaxIters reports the configured cycle budget.
func (m *MockSwarm) MaxIters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxIters
}

// RewardLimit reports the configured reward limit.
func (m *MockSwarm) RewardLimit() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rewardLimit
}

// --- Inspection helpers ---

// StepCount returns the number of Step calls since the last Reset.
func (m *MockSwarm) StepCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stepCount
}

// ResetCount returns the number of Reset calls.
func (m *MockSwarm) ResetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetCount
}

// Injected returns every Inject payload in call order.
func (m *MockSwarm) Injected() [][]types.Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]types.Candidate, len(m.injected))
	copy(out, m.injected)
	return out
}

// InjectedFlat returns all injected candidates across calls in order.
func (m *MockSwarm) InjectedFlat() []types.Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Candidate
	for _, batch := range m.injected {
		out = append(out, batch...)
	}
	return out
}

// Recorded returns every RecordBest payload in call order.
func (m *MockSwarm) Recorded() []types.Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Candidate, len(m.recorded))
	copy(out, m.recorded)
	return out
}
