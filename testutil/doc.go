// Copyright (c) SwarmFlow Authors.
// Licensed under the MIT License.

/*
Package testutil provides shared helpers for SwarmFlow tests.

# Overview

testutil centralizes the test infrastructure the package-level tests share,
so individual packages do not grow their own copies of context plumbing,
polling assertions, and candidate builders.

# Capabilities

  - Context helpers: TestContext / TestContextWithTimeout / CancelledContext,
    with cleanup registered automatically
  - Async assertions: AssertEventuallyTrue polls a condition until it holds
    or the timeout expires
  - Waiting: WaitFor / WaitForChannel for goroutine coordination in tests
  - Candidate builders: Candidates / MustBatch / Rewards for constructing
    and inspecting exchange payloads without ceremony

# Mocks

The mocks subpackage contains MockSwarm, a scriptable swarm.Swarm used to
test the exchange layer without running a real optimizer.

Usage:

	ctx := testutil.TestContext(t)
	batch := testutil.MustBatch(4, testutil.Candidates(3.0, 1.0, 2.0)...)
	best, _ := batch.Best(types.Minimize)
*/
package testutil
