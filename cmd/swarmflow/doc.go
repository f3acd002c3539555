/*
Package main provides the swarmflow executable.

# Overview

cmd/swarmflow drives distributed swarm-exchange optimization from the
command line. A run assembles particle swarms from the configuration tree,
wires them to a parameter server through export workers, and drives the
asynchronous exchange to completion. The same binary serves all three roles
of a distributed deployment.

# Commands

  - run: in-process run over local swarms
  - coordinator: start the websocket gateway, wait for the configured
    number of remote workers, then drive the exchange
  - agent: one worker process, its local swarm served over a gateway
    connection
  - token: mint a worker JWT from the gateway secret
  - version: build information (Version, BuildTime, GitCommit are
    injected through ldflags)

# Capabilities

  - YAML configuration with SWARMFLOW_* environment overrides
  - Structured logging (zap), console or JSON
  - Optional OpenTelemetry export and Prometheus collection
  - Admin endpoint: /healthz, /metrics, /best
  - Graceful shutdown on SIGINT/SIGTERM
*/
package main
