// Package swarmflow provides a top-level convenience entry point for
// assembling a complete in-process exchange run with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/swarmflow"
//
//	coord, err := swarmflow.New(
//		swarmflow.WithBenchmark("rastrigin"),
//		swarmflow.WithUniformBounds(10, -5.12, 5.12),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer coord.Close()
//
//	if err := coord.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//	best, _ := coord.Best()
//
// New wires the full pipeline behind a [exchange.Coordinator]: a set of
// particle swarms, one export worker and local handle per swarm, and a
// shared parameter server. Use the exchange and transport packages
// directly when the run spans processes.
package swarmflow

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/exchange"
	"github.com/BaSui01/swarmflow/swarm"
	"github.com/BaSui01/swarmflow/types"
)

// Option configures the run assembled by [New].
type Option func(*options)

type options struct {
	objective swarm.Objective
	benchmark string
	bounds    swarm.Bounds
	hasBounds bool
	boundsErr error
	swarms    int
	logger    *zap.Logger

	pso    swarm.PSOConfig
	worker exchange.WorkerConfig
	server exchange.ServerConfig
	coord  exchange.CoordinatorConfig

	// Overrides applied after the config structs so option order never
	// matters for them.
	direction   *types.Direction
	maxIters    *int
	rewardLimit *float64
	seed        *int64

	onProgress func(exchange.Progress)
}

// WithObjective sets a pre-built objective function.
func WithObjective(fn swarm.Objective) Option {
	return func(o *options) { o.objective = fn }
}

// WithBenchmark selects a built-in objective by name, for example "sphere"
// or "rastrigin". See [swarm.ObjectiveNames] for the full list.
func WithBenchmark(name string) Option {
	return func(o *options) { o.benchmark = name }
}

// WithBounds sets the search domain.
func WithBounds(b swarm.Bounds) Option {
	return func(o *options) {
		o.bounds = b
		o.hasBounds = true
	}
}

// WithUniformBounds sets a dims-dimensional search domain with the same
// [low, high] interval on every dimension.
func WithUniformBounds(dims int, low, high float64) Option {
	return func(o *options) {
		b, err := swarm.NewUniformBounds(dims, low, high)
		if err != nil {
			o.boundsErr = err
			return
		}
		o.bounds = b
		o.hasBounds = true
	}
}

// WithSwarms sets the number of parallel swarms. Defaults to 2.
func WithSwarms(n int) Option {
	return func(o *options) { o.swarms = n }
}

// WithDirection sets the optimization direction for the whole run.
// Defaults to minimization.
func WithDirection(d types.Direction) Option {
	return func(o *options) { o.direction = &d }
}

// WithMaxIters sets the exchange-cycle budget per swarm.
func WithMaxIters(n int) Option {
	return func(o *options) { o.maxIters = &n }
}

// WithRewardLimit sets the reward at which the search counts as solved.
func WithRewardLimit(limit float64) Option {
	return func(o *options) { o.rewardLimit = &limit }
}

// WithSeed fixes the random source. Each swarm derives its own seed from
// this base, so repeated runs draw the same initial populations while the
// swarms stay distinct.
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = &seed }
}

// WithLogger sets a custom zap logger. Defaults to [zap.NewNop].
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPSO replaces the default particle swarm parameterization. The run
// direction, cycle budget, reward limit and seed options still apply on
// top of it.
func WithPSO(cfg swarm.PSOConfig) Option {
	return func(o *options) { o.pso = cfg }
}

// WithWorker replaces the default export worker configuration.
func WithWorker(cfg exchange.WorkerConfig) Option {
	return func(o *options) { o.worker = cfg }
}

// WithServer replaces the default parameter server configuration. Its
// direction field is overwritten with the run direction so every
// participant agrees.
func WithServer(cfg exchange.ServerConfig) Option {
	return func(o *options) { o.server = cfg }
}

// WithReportEvery sets the number of epochs between progress reports.
func WithReportEvery(n int) Option {
	return func(o *options) { o.coord.ReportEvery = n }
}

// WithContinueOnFailure keeps the run going on surviving swarms after one
// fails.
func WithContinueOnFailure() Option {
	return func(o *options) { o.coord.ContinueOnFailure = true }
}

// WithProgress installs a callback invoked on every progress report.
func WithProgress(fn func(exchange.Progress)) Option {
	return func(o *options) { o.onProgress = fn }
}

// New assembles an in-process exchange run. At minimum an objective must
// be specified via [WithObjective] or [WithBenchmark], and a search domain
// via [WithBounds] or [WithUniformBounds].
func New(opts ...Option) (*exchange.Coordinator, error) {
	o := &options{
		swarms: 2,
		pso:    swarm.DefaultPSOConfig(),
		worker: exchange.DefaultWorkerConfig(),
		server: exchange.DefaultServerConfig(),
		coord:  exchange.DefaultCoordinatorConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}

	objective := o.objective
	if objective == nil {
		if o.benchmark == "" {
			return nil, types.NewError(types.ErrInvalidConfig,
				"an objective is required: use WithObjective or WithBenchmark")
		}
		obj, ok := swarm.LookupObjective(o.benchmark)
		if !ok {
			return nil, types.NewError(types.ErrInvalidConfig,
				fmt.Sprintf("unknown benchmark %q, known: %s",
					o.benchmark, strings.Join(swarm.ObjectiveNames(), ", ")))
		}
		objective = obj
	}
	if o.boundsErr != nil {
		return nil, o.boundsErr
	}
	if !o.hasBounds {
		return nil, types.NewError(types.ErrInvalidConfig,
			"a search domain is required: use WithBounds or WithUniformBounds")
	}
	if o.swarms <= 0 {
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("swarm count must be positive, got %d", o.swarms))
	}

	if o.direction != nil {
		o.pso.Direction = *o.direction
	}
	if o.maxIters != nil {
		o.pso.MaxIters = *o.maxIters
	}
	if o.rewardLimit != nil {
		o.pso.RewardLimit = *o.rewardLimit
	}
	if o.seed != nil {
		o.pso.Seed = *o.seed
	}
	// Every participant must agree on the direction.
	o.server.Direction = o.pso.Direction

	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	// One clock read keeps unseeded swarms distinct even when the loop
	// outruns the timer granularity.
	baseSeed := o.pso.Seed
	if baseSeed == 0 {
		baseSeed = time.Now().UnixNano()
	}

	handles := make([]exchange.Handle, 0, o.swarms)
	for i := 0; i < o.swarms; i++ {
		cfg := o.pso
		cfg.Seed = baseSeed + int64(i)

		ps, err := swarm.NewParticleSwarm(cfg, objective, o.bounds, o.logger)
		if err != nil {
			return nil, closeHandles(handles, err)
		}
		worker, err := exchange.NewExportWorker(o.worker, ps, o.logger)
		if err != nil {
			return nil, closeHandles(handles, err)
		}
		handle, err := exchange.NewLocalHandle(fmt.Sprintf("swarm-%d", i), worker, o.logger)
		if err != nil {
			return nil, closeHandles(handles, err)
		}
		handles = append(handles, handle)
	}

	server, err := exchange.NewParamServer(o.server, o.logger)
	if err != nil {
		return nil, closeHandles(handles, err)
	}

	var copts []exchange.CoordinatorOption
	if o.onProgress != nil {
		copts = append(copts, exchange.WithProgress(o.onProgress))
	}
	coord, err := exchange.NewCoordinator(o.coord, server, handles, o.logger, copts...)
	if err != nil {
		return nil, closeHandles(handles, err)
	}
	return coord, nil
}

// closeHandles releases the handle goroutines of a failed assembly and
// passes the causing error through.
func closeHandles(handles []exchange.Handle, err error) error {
	for _, h := range handles {
		_ = h.Close()
	}
	return err
}
