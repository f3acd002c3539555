// Copyright (c) SwarmFlow Authors.
// Licensed under the MIT License.

/*
Package swarm defines the optimization capability the exchange core drives
and ships a particle swarm backend implementing it.

A Swarm owns a population of candidate solutions over some objective and
advances it one opaque step at a time. The exchange layer never looks inside
the step: it only snapshots populations, injects candidates, and reads the
best record. Any population-based optimizer can sit behind the interface;
ParticleSwarm is the built-in backend used by the CLI and the examples.

The package also provides the supporting pieces a backend needs: Bounds for
rectangular search domains, a registry of benchmark Objective functions, and
a Hasher assigning candidate identities.
*/
package swarm
