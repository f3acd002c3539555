// =============================================================================
// 🧪 Shared test helpers
// =============================================================================
// Context plumbing, polling assertions, and candidate builders used across
// the package-level tests.
//
// Usage:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/BaSui01/swarmflow/types"
)

// =============================================================================
// 🎯 Context helpers
// =============================================================================

// TestContext returns a context with a 30s timeout tied to the test lifetime.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout returns a context with a custom timeout tied to the
// test lifetime.
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext returns a context that is already cancelled.
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 Async assertions
// =============================================================================

// AssertEventuallyTrue polls the condition until it holds or the timeout
// expires.
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Errorf("condition did not become true within %v", timeout)
}

// =============================================================================
// ⏱️ Waiting helpers
// =============================================================================

// WaitFor polls the condition until it holds or the timeout expires and
// reports whether it held.
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// WaitForChannel receives one value from the channel or gives up after the
// timeout.
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// =============================================================================
// 🔧 Candidate builders
// =============================================================================

// Candidates builds one candidate per reward. IDs are "c-0", "c-1", ... and
// each state is the one-dimensional vector [reward].
func Candidates(rewards ...float64) []types.Candidate {
	cands := make([]types.Candidate, len(rewards))
	for i, r := range rewards {
		cands[i] = types.NewCandidate(fmt.Sprintf("c-%d", i), []float64{r}, r)
	}
	return cands
}

// MustBatch builds a batch or panics. Test-only shorthand for batches that
// are known to fit.
func MustBatch(capacity int, cands ...types.Candidate) types.ExportBatch {
	batch, err := types.NewBatch(capacity, cands...)
	if err != nil {
		panic(err)
	}
	return batch
}

// Rewards extracts the rewards of a batch in candidate order.
func Rewards(batch types.ExportBatch) []float64 {
	cands := batch.Candidates()
	rewards := make([]float64, len(cands))
	for i, c := range cands {
		rewards[i] = c.Reward
	}
	return rewards
}

// IDs extracts the candidate ids of a batch in candidate order.
func IDs(batch types.ExportBatch) []string {
	cands := batch.Candidates()
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.ID
	}
	return ids
}
