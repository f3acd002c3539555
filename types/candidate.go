package types

// Candidate is one proposed solution to the objective being optimized: a
// state vector, the reward obtained by evaluating it, and a unique identity
// assigned by the producing swarm.
//
// Candidates are treated as immutable once produced. Constructors and
// accessors copy the state vector so that no two components ever alias the
// same backing array.
type Candidate struct {
	ID     string    `json:"id"`
	State  []float64 `json:"state"`
	Reward float64   `json:"reward"`
}

// NewCandidate builds a candidate with its own copy of state.
func NewCandidate(id string, state []float64, reward float64) Candidate {
	return Candidate{ID: id, State: cloneFloats(state), Reward: reward}
}

// Clone returns a deep copy of the candidate.
func (c Candidate) Clone() Candidate {
	c.State = cloneFloats(c.State)
	return c
}

func cloneFloats(xs []float64) []float64 {
	if xs == nil {
		return nil
	}
	out := make([]float64, len(xs))
	copy(out, xs)
	return out
}
