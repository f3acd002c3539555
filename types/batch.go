package types

import (
	"encoding/json"
	"fmt"
)

// ExportBatch is the unit of exchange between workers and the parameter
// server: up to capacity candidates selected for export or import. A batch
// is immutable after construction; accessors return deep copies.
//
// The zero value is the empty sentinel with capacity zero. It seeds the
// first exchange cycle of every worker and is returned by the server when
// its pool is empty.
type ExportBatch struct {
	capacity   int
	candidates []Candidate
}

// NewEmptyBatch returns the empty sentinel batch.
func NewEmptyBatch() ExportBatch {
	return ExportBatch{}
}

// NewBatch builds a batch holding the given candidates. The candidate count
// must not exceed capacity.
func NewBatch(capacity int, candidates ...Candidate) (ExportBatch, error) {
	if capacity < 0 {
		return ExportBatch{}, NewError(ErrInvalidConfig, "batch capacity must not be negative")
	}
	if len(candidates) > capacity {
		return ExportBatch{}, NewError(ErrMalformedBatch,
			fmt.Sprintf("batch holds %d candidates but declares capacity %d", len(candidates), capacity))
	}
	cloned := make([]Candidate, len(candidates))
	for i, c := range candidates {
		cloned[i] = c.Clone()
	}
	return ExportBatch{capacity: capacity, candidates: cloned}, nil
}

// Capacity returns the declared maximum number of candidates.
func (b ExportBatch) Capacity() int {
	return b.capacity
}

// Len returns the number of candidates held.
func (b ExportBatch) Len() int {
	return len(b.candidates)
}

// Empty reports whether the batch holds no candidates.
func (b ExportBatch) Empty() bool {
	return len(b.candidates) == 0
}

// Candidates returns a deep copy of the held candidates.
func (b ExportBatch) Candidates() []Candidate {
	if b.candidates == nil {
		return nil
	}
	out := make([]Candidate, len(b.candidates))
	for i, c := range b.candidates {
		out[i] = c.Clone()
	}
	return out
}

// Best returns the best candidate under the given direction. ok is false
// when the batch is empty.
func (b ExportBatch) Best(d Direction) (Candidate, bool) {
	if len(b.candidates) == 0 {
		return Candidate{}, false
	}
	better := d.Comparator()
	best := 0
	for i := 1; i < len(b.candidates); i++ {
		if better(b.candidates[i].Reward, b.candidates[best].Reward) {
			best = i
		}
	}
	return b.candidates[best].Clone(), true
}

// Clone returns a deep copy of the batch.
func (b ExportBatch) Clone() ExportBatch {
	return ExportBatch{capacity: b.capacity, candidates: b.Candidates()}
}

// Validate checks the structural invariants of a batch received from an
// external source: non-negative capacity and no more candidates than the
// capacity allows.
func (b ExportBatch) Validate() error {
	if b.capacity < 0 {
		return NewError(ErrMalformedBatch,
			fmt.Sprintf("batch declares negative capacity %d", b.capacity))
	}
	if len(b.candidates) > b.capacity {
		return NewError(ErrMalformedBatch,
			fmt.Sprintf("batch holds %d candidates but declares capacity %d", len(b.candidates), b.capacity))
	}
	return nil
}

// batchWire is the JSON shape of an ExportBatch.
type batchWire struct {
	Capacity   int         `json:"capacity"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (b ExportBatch) MarshalJSON() ([]byte, error) {
	return json.Marshal(batchWire{Capacity: b.capacity, Candidates: b.candidates})
}

// UnmarshalJSON implements json.Unmarshaler. The decoded batch is validated;
// wire data that overflows its declared capacity is rejected.
func (b *ExportBatch) UnmarshalJSON(data []byte) error {
	var w batchWire
	if err := json.Unmarshal(data, &w); err != nil {
		return NewError(ErrMalformedBatch, "batch payload is not valid JSON").WithCause(err)
	}
	decoded := ExportBatch{capacity: w.Capacity, candidates: w.Candidates}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*b = decoded
	return nil
}
