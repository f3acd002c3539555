// =============================================================================
// SwarmFlow main entry point
// =============================================================================
// Runner for distributed swarm-exchange optimization: in-process runs,
// gateway-mode coordination of remote workers, and single worker agents.
//
// Usage:
//
//	swarmflow run                            # in-process run
//	swarmflow run --config config.yaml       # with a config file
//	swarmflow coordinator --config c.yaml    # drive remote workers
//	swarmflow agent --connect ws://host:8090/exchange --token <jwt>
//	swarmflow token --worker w-1             # mint a worker token
//	swarmflow version                        # show version information
// =============================================================================

package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/swarmflow/config"
)

// Version information, injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runRun(os.Args[2:])
	case "coordinator":
		runCoordinator(os.Args[2:])
	case "agent":
		runAgent(os.Args[2:])
	case "token":
		runToken(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration, exiting on failure.
func loadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func printVersion() {
	fmt.Printf("SwarmFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`SwarmFlow - Distributed Swarm-Exchange Optimization

Usage:
  swarmflow <command> [options]

Commands:
  run          Run the exchange in-process with local swarms
  coordinator  Wait for remote workers, then drive the exchange
  agent        Run one worker process against a coordinator gateway
  token        Mint a worker token from the gateway secret
  version      Show version information
  help         Show this help message

Options:
  --config <path>    Path to configuration file (YAML); SWARMFLOW_* env
                     variables override file values

Options for 'agent':
  --connect <url>    Gateway websocket URL (overrides agent.gateway_url)
  --id <worker-id>   Worker id (overrides agent.worker_id)
  --token <jwt>      Worker token (overrides agent.token)

Options for 'token':
  --worker <id>      Worker id the token is bound to (required)

Examples:
  swarmflow run --config swarmflow.yaml
  swarmflow coordinator --config swarmflow.yaml
  swarmflow agent --config swarmflow.yaml --connect ws://10.0.0.5:8090/exchange
  swarmflow token --config swarmflow.yaml --worker worker-1
  swarmflow version`)
}

// =============================================================================
// Logger initialization
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoding := "json"
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
