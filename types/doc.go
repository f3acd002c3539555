// Copyright (c) SwarmFlow Authors.
// Licensed under the MIT License.

/*
Package types provides the shared value types of the SwarmFlow framework.

It defines the vocabulary every other package speaks:

  - Candidate: one proposed solution with its reward and identity.
  - ExportBatch: a bounded, immutable collection of candidates exchanged
    between workers and the parameter server.
  - Direction: whether lower or higher rewards win, fixed per run.
  - Error / ErrorCode: the structured error model used across package
    boundaries.

The package has no dependencies on the rest of the module so that swarm
backends, the exchange core, and the transport layer can all share it
without import cycles.
*/
package types
