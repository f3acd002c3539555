// =============================================================================
// 📦 SwarmFlow default configuration
// =============================================================================
// Sensible defaults for every configuration item.
// =============================================================================
package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Run:       DefaultRunConfig(),
		Server:    DefaultServerConfig(),
		Worker:    DefaultWorkerConfig(),
		Swarm:     DefaultSwarmConfig(),
		Gateway:   DefaultGatewayConfig(),
		Agent:     DefaultAgentConfig(),
		Admin:     DefaultAdminConfig(),
		Redis:     DefaultRedisConfig(),
		Metrics:   DefaultMetricsConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultRunConfig returns the default run configuration.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		NSwarms:           2,
		ReportEvery:       0,
		ContinueOnFailure: false,
	}
}

// DefaultServerConfig returns the default parameter server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Direction:     "minimize",
		MaxLen:        20,
		AddGlobalBest: true,
		DrawPolicy:    "latest",
		Buffer:        "memory",
	}
}

// DefaultWorkerConfig returns the default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		NExport:    2,
		NImport:    2,
		ExportBest: true,
		ImportBest: true,
	}
}

// DefaultSwarmConfig returns the default swarm configuration.
func DefaultSwarmConfig() SwarmConfig {
	return SwarmConfig{
		Objective:      "sphere",
		Dims:           2,
		Low:            -5.12,
		High:           5.12,
		PopulationSize: 30,
		Inertia:        0.9,
		Cognitive:      2.0,
		Social:         2.0,
		MaxVelocity:    4.0,
		MaxIters:       100,
		RewardLimit:    0,
		Seed:           0,
		TrueHash:       true,
	}
}

// DefaultGatewayConfig returns the default gateway configuration.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		ListenAddr:       ":8090",
		Path:             "/exchange",
		Secret:           "",
		ExpectWorkers:    2,
		HandshakeTimeout: 10 * time.Second,
		FrameRPS:         200,
		FrameBurst:       400,
		TokenTTL:         24 * time.Hour,
	}
}

// DefaultAgentConfig returns the default remote worker configuration.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		GatewayURL:  "ws://localhost:8090/exchange",
		Token:       "",
		WorkerID:    "",
		DialTimeout: 10 * time.Second,
	}
}

// DefaultAdminConfig returns the default admin endpoint configuration.
func DefaultAdminConfig() AdminConfig {
	return AdminConfig{
		Enabled:         true,
		Addr:            ":9091",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "swarmflow",
	}
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "swarmflow",
	}
}

// DefaultLogConfig returns the default log configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "swarmflow",
		SampleRate:   0.1,
	}
}
