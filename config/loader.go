// =============================================================================
// 📦 SwarmFlow configuration loader
// =============================================================================
// Unified configuration loading: YAML file + environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("SWARMFLOW").
//	    Load()
//
// Precedence: defaults → YAML file → environment variables.
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/swarmflow/types"
)

// =============================================================================
// 🎯 Core configuration structure
// =============================================================================

// Config is the complete SwarmFlow configuration.
type Config struct {
	// Run drives the coordinator.
	Run RunConfig `yaml:"run" env:"RUN"`

	// Server configures the parameter server.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Worker configures the per-swarm exchange bookkeeping.
	Worker WorkerConfig `yaml:"worker" env:"WORKER"`

	// Swarm configures the particle swarm backend.
	Swarm SwarmConfig `yaml:"swarm" env:"SWARM"`

	// Gateway configures the websocket endpoint for remote workers.
	Gateway GatewayConfig `yaml:"gateway" env:"GATEWAY"`

	// Agent configures a remote worker process.
	Agent AgentConfig `yaml:"agent" env:"AGENT"`

	// Admin configures the admin HTTP endpoint.
	Admin AdminConfig `yaml:"admin" env:"ADMIN"`

	// Redis configures the optional Redis batch pool.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Metrics configures Prometheus collection.
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Log configures logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures OpenTelemetry export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// RunConfig drives the coordinator.
type RunConfig struct {
	// Number of swarms to drive.
	NSwarms int `yaml:"n_swarms" env:"N_SWARMS"`
	// Epochs between progress reports; zero disables reporting.
	ReportEvery int `yaml:"report_every" env:"REPORT_EVERY"`
	// Keep driving surviving workers after one fails.
	ContinueOnFailure bool `yaml:"continue_on_failure" env:"CONTINUE_ON_FAILURE"`
}

// ServerConfig configures the parameter server.
type ServerConfig struct {
	// Optimization direction: minimize or maximize.
	Direction string `yaml:"direction" env:"DIRECTION"`
	// Maximum number of batches pooled before eviction.
	MaxLen int `yaml:"max_len" env:"MAX_LEN"`
	// Fold the global best into every outgoing batch.
	AddGlobalBest bool `yaml:"add_global_best" env:"ADD_GLOBAL_BEST"`
	// Which pooled batch an exchange draws: latest, oldest or random.
	DrawPolicy string `yaml:"draw_policy" env:"DRAW_POLICY"`
	// Pool backend: memory or redis.
	Buffer string `yaml:"buffer" env:"BUFFER"`
}

// WorkerConfig configures the per-swarm exchange bookkeeping.
type WorkerConfig struct {
	// Candidates exported per cycle.
	NExport int `yaml:"n_export" env:"N_EXPORT"`
	// Imported candidates merged per cycle.
	NImport int `yaml:"n_import" env:"N_IMPORT"`
	// Guarantee the local best a slot in every export.
	ExportBest bool `yaml:"export_best" env:"EXPORT_BEST"`
	// Fold the best imported candidate into the local best record.
	ImportBest bool `yaml:"import_best" env:"IMPORT_BEST"`
}

// SwarmConfig configures the particle swarm backend.
type SwarmConfig struct {
	// Benchmark objective name: sphere, rastrigin, rosenbrock or ackley.
	Objective string `yaml:"objective" env:"OBJECTIVE"`
	// Search space dimensionality.
	Dims int `yaml:"dims" env:"DIMS"`
	// Uniform lower bound per dimension.
	Low float64 `yaml:"low" env:"LOW"`
	// Uniform upper bound per dimension.
	High float64 `yaml:"high" env:"HIGH"`
	// Number of particles.
	PopulationSize int `yaml:"population_size" env:"POPULATION_SIZE"`
	// Velocity damping.
	Inertia float64 `yaml:"inertia" env:"INERTIA"`
	// Pull toward each particle's own best position.
	Cognitive float64 `yaml:"cognitive" env:"COGNITIVE"`
	// Pull toward the swarm-wide best position.
	Social float64 `yaml:"social" env:"SOCIAL"`
	// Per-dimension velocity cap.
	MaxVelocity float64 `yaml:"max_velocity" env:"MAX_VELOCITY"`
	// Exchange cycles per swarm.
	MaxIters int `yaml:"max_iters" env:"MAX_ITERS"`
	// Informational reward limit; zero disables it.
	RewardLimit float64 `yaml:"reward_limit" env:"REWARD_LIMIT"`
	// Random seed; zero seeds from the clock.
	Seed int64 `yaml:"seed" env:"SEED"`
	// Fingerprint candidate states instead of sequential ids.
	TrueHash bool `yaml:"true_hash" env:"TRUE_HASH"`
}

// GatewayConfig configures the websocket endpoint remote workers dial.
type GatewayConfig struct {
	// Listen address.
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`
	// HTTP path of the websocket endpoint.
	Path string `yaml:"path" env:"PATH"`
	// Shared HMAC secret for worker tokens.
	Secret string `yaml:"secret" env:"SECRET"`
	// Number of remote workers to wait for before starting.
	ExpectWorkers int `yaml:"expect_workers" env:"EXPECT_WORKERS"`
	// Time allowed for a connecting worker to complete the handshake.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"HANDSHAKE_TIMEOUT"`
	// Per-connection inbound frame budget.
	FrameRPS   float64 `yaml:"frame_rps" env:"FRAME_RPS"`
	FrameBurst int     `yaml:"frame_burst" env:"FRAME_BURST"`
	// Lifetime of minted worker tokens.
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
}

// AgentConfig configures a remote worker process.
type AgentConfig struct {
	// Gateway websocket URL.
	GatewayURL string `yaml:"gateway_url" env:"GATEWAY_URL"`
	// Worker token minted with the gateway secret.
	Token string `yaml:"token" env:"TOKEN"`
	// Worker id; empty generates one.
	WorkerID string `yaml:"worker_id" env:"WORKER_ID"`
	// Dial timeout.
	DialTimeout time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
}

// AdminConfig configures the admin HTTP endpoint.
type AdminConfig struct {
	// Serve the admin endpoint at all.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Listen address.
	Addr string `yaml:"addr" env:"ADDR"`
	// Read timeout.
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// Write timeout.
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// Graceful shutdown timeout.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// RedisConfig configures the optional Redis batch pool.
type RedisConfig struct {
	// Address.
	Addr string `yaml:"addr" env:"ADDR"`
	// Password.
	Password string `yaml:"password" env:"PASSWORD"`
	// Database number.
	DB int `yaml:"db" env:"DB"`
	// Connection pool size.
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// Minimum idle connections.
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// Prefix for all keys written by this process.
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// MetricsConfig configures Prometheus collection.
type MetricsConfig struct {
	// Register and serve metrics at all.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Namespace prefixed to every metric name.
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// Output paths.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// Annotate entries with the calling site.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// Attach stacktraces to error entries.
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	// Export traces and metrics at all.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP gRPC endpoint.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// Service name attached to exported data.
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// Trace sampling rate.
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 Loader
// =============================================================================

// Loader loads configuration (builder pattern).
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "SWARMFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the configuration file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a configuration validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads the configuration.
// Precedence: defaults → YAML file → environment variables.
func (l *Loader) Load() (*Config, error) {
	// 1. Start from defaults
	cfg := DefaultConfig()

	// 2. Overlay the YAML file when one is configured
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. Overlay environment variables
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. Run validators
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing file keeps the defaults.
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv overlays environment variables.
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv sets struct fields recursively.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// Recurse into nested structs
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue sets one field from its string form.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration takes the "10s" form
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// Comma-separated string slices
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 Helpers
// =============================================================================

// MustLoad loads the configuration, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads the configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks the configuration for inconsistencies. All findings are
// collected into one error.
func (c *Config) Validate() error {
	var errs []string

	if c.Run.NSwarms <= 0 {
		errs = append(errs, "run.n_swarms must be positive")
	}
	if c.Run.ReportEvery < 0 {
		errs = append(errs, "run.report_every must not be negative")
	}

	if err := types.Direction(c.Server.Direction).Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server.direction: %v", err))
	}
	if c.Server.MaxLen <= 0 {
		errs = append(errs, "server.max_len must be positive")
	}
	switch c.Server.DrawPolicy {
	case "latest", "oldest", "random":
	default:
		errs = append(errs, fmt.Sprintf("server.draw_policy %q is unknown", c.Server.DrawPolicy))
	}
	switch c.Server.Buffer {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("server.buffer %q is unknown", c.Server.Buffer))
	}

	if c.Worker.NExport < 0 {
		errs = append(errs, "worker.n_export must not be negative")
	}
	if c.Worker.NImport < 0 {
		errs = append(errs, "worker.n_import must not be negative")
	}

	if c.Swarm.Objective == "" {
		errs = append(errs, "swarm.objective must be set")
	}
	if c.Swarm.Dims <= 0 {
		errs = append(errs, "swarm.dims must be positive")
	}
	if c.Swarm.Low >= c.Swarm.High {
		errs = append(errs, "swarm.low must be below swarm.high")
	}
	if c.Swarm.PopulationSize <= 0 {
		errs = append(errs, "swarm.population_size must be positive")
	}
	if c.Swarm.MaxIters <= 0 {
		errs = append(errs, "swarm.max_iters must be positive")
	}

	if c.Gateway.ExpectWorkers <= 0 {
		errs = append(errs, "gateway.expect_workers must be positive")
	}
	if c.Gateway.FrameRPS <= 0 {
		errs = append(errs, "gateway.frame_rps must be positive")
	}

	if c.Admin.Enabled && c.Admin.Addr == "" {
		errs = append(errs, "admin.addr must be set when the admin endpoint is enabled")
	}

	if c.Server.Buffer == "redis" && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr must be set when server.buffer is redis")
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrInvalidConfig,
			"config validation errors: "+strings.Join(errs, "; "))
	}

	return nil
}
