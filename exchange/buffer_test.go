package exchange

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/swarmflow/testutil"
	"github.com/BaSui01/swarmflow/types"
)

// singleton builds a one-candidate batch whose candidate carries the id.
func singleton(id string, reward float64) types.ExportBatch {
	return testutil.MustBatch(1, types.NewCandidate(id, []float64{reward}, reward))
}

// drawnID draws one batch and returns the id of its sole candidate.
func drawnID(t *testing.T, buf Buffer) string {
	t.Helper()
	batch, ok, err := buf.Draw(context.Background())
	require.NoError(t, err)
	require.True(t, ok, "expected a pooled batch")
	require.Equal(t, 1, batch.Len())
	return batch.Candidates()[0].ID
}

func TestDrawPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  DrawPolicy
		wantErr bool
	}{
		{name: "latest", policy: DrawLatest, wantErr: false},
		{name: "oldest", policy: DrawOldest, wantErr: false},
		{name: "random", policy: DrawRandom, wantErr: false},
		{name: "empty", policy: DrawPolicy(""), wantErr: true},
		{name: "unknown", policy: DrawPolicy("newest"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewMemoryBuffer(t *testing.T) {
	t.Run("rejects non-positive capacity", func(t *testing.T) {
		_, err := NewMemoryBuffer(0, DrawLatest)
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))

		_, err = NewMemoryBuffer(-3, DrawLatest)
		require.Error(t, err)
	})

	t.Run("rejects unknown policy", func(t *testing.T) {
		_, err := NewMemoryBuffer(4, DrawPolicy("fifo"))
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))
	})

	t.Run("empty policy defaults to latest", func(t *testing.T) {
		buf, err := NewMemoryBuffer(4, "")
		require.NoError(t, err)

		ctx := context.Background()
		for i, id := range []string{"a", "b", "c"} {
			_, err := buf.Push(ctx, singleton(id, float64(i)))
			require.NoError(t, err)
		}
		assert.Equal(t, "c", drawnID(t, buf))
	})
}

func TestMemoryBuffer_DrawOrder(t *testing.T) {
	fill := func(t *testing.T, buf Buffer) {
		t.Helper()
		ctx := context.Background()
		for i, id := range []string{"a", "b", "c"} {
			evicted, err := buf.Push(ctx, singleton(id, float64(i)))
			require.NoError(t, err)
			assert.False(t, evicted)
		}
	}

	t.Run("latest pops the newest first", func(t *testing.T) {
		buf, err := NewMemoryBuffer(5, DrawLatest)
		require.NoError(t, err)
		fill(t, buf)

		assert.Equal(t, "c", drawnID(t, buf))
		assert.Equal(t, "b", drawnID(t, buf))
		assert.Equal(t, "a", drawnID(t, buf))
	})

	t.Run("oldest pops in insertion order", func(t *testing.T) {
		buf, err := NewMemoryBuffer(5, DrawOldest)
		require.NoError(t, err)
		fill(t, buf)

		assert.Equal(t, "a", drawnID(t, buf))
		assert.Equal(t, "b", drawnID(t, buf))
		assert.Equal(t, "c", drawnID(t, buf))
	})

	t.Run("random removes what it returns", func(t *testing.T) {
		buf, err := NewMemoryBuffer(5, DrawRandom)
		require.NoError(t, err)
		fill(t, buf)

		seen := map[string]bool{}
		for i := 0; i < 3; i++ {
			id := drawnID(t, buf)
			assert.False(t, seen[id], "batch %s drawn twice", id)
			seen[id] = true
		}
		_, ok, err := buf.Draw(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryBuffer_EvictsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	buf, err := NewMemoryBuffer(2, DrawOldest)
	require.NoError(t, err)

	evicted, err := buf.Push(ctx, singleton("a", 1))
	require.NoError(t, err)
	assert.False(t, evicted)
	evicted, err = buf.Push(ctx, singleton("b", 2))
	require.NoError(t, err)
	assert.False(t, evicted)

	// The pool is full; "a" gives way.
	evicted, err = buf.Push(ctx, singleton("c", 3))
	require.NoError(t, err)
	assert.True(t, evicted)

	n, err := buf.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, "b", drawnID(t, buf))
	assert.Equal(t, "c", drawnID(t, buf))
}

func TestMemoryBuffer_DrawEmpty(t *testing.T) {
	buf, err := NewMemoryBuffer(2, DrawLatest)
	require.NoError(t, err)

	batch, ok, err := buf.Draw(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, batch.Empty())
}

func TestMemoryBuffer_Clear(t *testing.T) {
	ctx := context.Background()
	buf, err := NewMemoryBuffer(4, DrawLatest)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := buf.Push(ctx, singleton(fmt.Sprintf("b-%d", i), float64(i)))
		require.NoError(t, err)
	}
	require.NoError(t, buf.Clear(ctx))

	n, err := buf.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestProperty_MemoryBufferBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("pool size never exceeds capacity and evictions account for the overflow", prop.ForAll(
		func(maxLen int, pushes int) bool {
			ctx := context.Background()
			buf, err := NewMemoryBuffer(maxLen, DrawLatest)
			if err != nil {
				t.Logf("NewMemoryBuffer failed: %v", err)
				return false
			}

			evictions := 0
			for i := 0; i < pushes; i++ {
				evicted, err := buf.Push(ctx, singleton(fmt.Sprintf("b-%d", i), float64(i)))
				if err != nil {
					t.Logf("Push failed: %v", err)
					return false
				}
				if evicted {
					evictions++
				}
				n, err := buf.Len(ctx)
				if err != nil {
					t.Logf("Len failed: %v", err)
					return false
				}
				if n > maxLen {
					t.Logf("pool size %d exceeds capacity %d", n, maxLen)
					return false
				}
			}

			wantEvictions := pushes - maxLen
			if wantEvictions < 0 {
				wantEvictions = 0
			}
			if evictions != wantEvictions {
				t.Logf("expected %d evictions, got %d", wantEvictions, evictions)
				return false
			}

			final, err := buf.Len(ctx)
			if err != nil {
				return false
			}
			wantFinal := pushes
			if wantFinal > maxLen {
				wantFinal = maxLen
			}
			return final == wantFinal
		},
		gen.IntRange(1, 8),  // maxLen
		gen.IntRange(0, 50), // pushes
	))

	properties.TestingRun(t)
}
