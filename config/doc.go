// Package config provides SwarmFlow configuration management.
//
// Configuration is loaded with defaults-first precedence: built-in defaults,
// then an optional YAML file, then environment variable overrides. The
// resulting tree covers the coordinator run, the parameter server, swarm
// parameters, the remote worker gateway, and the ambient concerns (admin
// endpoint, Redis, metrics, logging, telemetry).
package config
