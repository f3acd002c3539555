package exchange

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/BaSui01/swarmflow/types"
)

// DrawPolicy selects which pooled batch an exchange draws.
type DrawPolicy string

const (
	// DrawLatest draws the most recently pushed batch.
	DrawLatest DrawPolicy = "latest"
	// DrawOldest draws the oldest pooled batch.
	DrawOldest DrawPolicy = "oldest"
	// DrawRandom draws a uniformly chosen batch.
	DrawRandom DrawPolicy = "random"
)

// Validate reports whether the policy is a known one.
func (p DrawPolicy) Validate() error {
	switch p {
	case DrawLatest, DrawOldest, DrawRandom:
		return nil
	default:
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("unknown draw policy %q", string(p)))
	}
}

// Buffer is the bounded pool of batches a ParamServer merges into and draws
// from. Pushing into a full pool evicts the oldest entry. Drawing removes
// the returned batch.
//
// Implementations need not be safe for concurrent use; the ParamServer
// serializes all access.
type Buffer interface {
	// Push inserts a batch and reports whether an eviction took place.
	Push(ctx context.Context, batch types.ExportBatch) (evicted bool, err error)
	// Draw removes and returns one batch per the draw policy; ok is false
	// when the pool is empty.
	Draw(ctx context.Context) (batch types.ExportBatch, ok bool, err error)
	// Len returns the number of pooled batches.
	Len(ctx context.Context) (int, error)
	// Clear empties the pool.
	Clear(ctx context.Context) error
}

// MemoryBuffer is the in-process Buffer used by default.
type MemoryBuffer struct {
	maxLen  int
	policy  DrawPolicy
	batches []types.ExportBatch
	rng     *rand.Rand
}

var _ Buffer = (*MemoryBuffer)(nil)

// NewMemoryBuffer creates a pool holding at most maxLen batches. An empty
// policy defaults to DrawLatest.
func NewMemoryBuffer(maxLen int, policy DrawPolicy) (*MemoryBuffer, error) {
	if maxLen <= 0 {
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("buffer max length must be positive, got %d", maxLen))
	}
	if policy == "" {
		policy = DrawLatest
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &MemoryBuffer{
		maxLen:  maxLen,
		policy:  policy,
		batches: make([]types.ExportBatch, 0, maxLen),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Push inserts a batch, evicting the oldest entry when the pool is full.
func (b *MemoryBuffer) Push(_ context.Context, batch types.ExportBatch) (bool, error) {
	evicted := false
	if len(b.batches) >= b.maxLen {
		copy(b.batches, b.batches[1:])
		b.batches = b.batches[:len(b.batches)-1]
		evicted = true
	}
	b.batches = append(b.batches, batch)
	return evicted, nil
}

// Draw removes and returns one batch per the draw policy.
func (b *MemoryBuffer) Draw(_ context.Context) (types.ExportBatch, bool, error) {
	if len(b.batches) == 0 {
		return types.NewEmptyBatch(), false, nil
	}
	var idx int
	switch b.policy {
	case DrawOldest:
		idx = 0
	case DrawRandom:
		idx = b.rng.Intn(len(b.batches))
	default: // DrawLatest
		idx = len(b.batches) - 1
	}
	batch := b.batches[idx]
	b.batches = append(b.batches[:idx], b.batches[idx+1:]...)
	return batch, true, nil
}

// Len returns the number of pooled batches.
func (b *MemoryBuffer) Len(_ context.Context) (int, error) {
	return len(b.batches), nil
}

// Clear empties the pool.
func (b *MemoryBuffer) Clear(_ context.Context) error {
	b.batches = b.batches[:0]
	return nil
}
