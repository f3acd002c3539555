package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/swarmflow/internal/metrics"
	"github.com/BaSui01/swarmflow/types"
)

// CoordinatorConfig configures the exchange driver.
type CoordinatorConfig struct {
	// ReportEvery is the number of epochs between progress reports; zero
	// disables reporting.
	ReportEvery int `json:"report_every" yaml:"report_every"`
	// ContinueOnFailure keeps the run going on surviving workers after one
	// fails. The collected failures are still returned when the run ends.
	ContinueOnFailure bool `json:"continue_on_failure" yaml:"continue_on_failure"`
}

// DefaultCoordinatorConfig returns the default coordinator configuration.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		ReportEvery:       0,
		ContinueOnFailure: false,
	}
}

// Progress is one periodic progress report.
type Progress struct {
	Epoch   int             `json:"epoch"`
	Best    types.Candidate `json:"best"`
	HasBest bool            `json:"has_best"`
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithProgress installs a callback invoked on every progress report.
func WithProgress(fn func(Progress)) CoordinatorOption {
	return func(c *Coordinator) {
		c.onProgress = fn
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) CoordinatorOption {
	return func(c *Coordinator) {
		c.collector = m
	}
}

// completion pairs a resolved future with the worker it belongs to.
type completion struct {
	idx     int
	fut     *Future
	started time.Time
}

// Coordinator drives the asynchronous exchange across a set of worker
// handles and one parameter server. Every worker always has exactly one
// exchange step in flight: as soon as one completes, its export is merged
// and the returned import is handed straight back to the same worker.
//
// A run performs exactly MaxIters cycles per worker. Fast workers never
// wait for slow ones; per-worker cycle counts can skew during the run but
// converge by its end.
type Coordinator struct {
	cfg         CoordinatorConfig
	server      *ParamServer
	handles     []Handle
	direction   types.Direction
	maxIters    int
	rewardLimit float64
	runID       string
	logger      *zap.Logger
	collector   *metrics.Collector
	onProgress  func(Progress)

	epoch   atomic.Int64
	running atomic.Bool
}

// NewCoordinator validates that every worker agrees with the server on the
// optimization direction and reads the run length from the first worker.
func NewCoordinator(cfg CoordinatorConfig, server *ParamServer, handles []Handle, logger *zap.Logger, opts ...CoordinatorOption) (*Coordinator, error) {
	if server == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "parameter server must not be nil")
	}
	if len(handles) == 0 {
		return nil, types.NewError(types.ErrInvalidConfig, "at least one worker handle is required")
	}
	if cfg.ReportEvery < 0 {
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("report_every must not be negative, got %d", cfg.ReportEvery))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	direction := server.Direction()
	for _, h := range handles {
		if h.Direction() != direction {
			return nil, types.NewError(types.ErrInvalidConfig,
				fmt.Sprintf("worker %s optimizes %s but the run %s", h.ID(), h.Direction(), direction)).
				WithWorker(h.ID())
		}
	}
	maxIters := handles[0].MaxIters()
	if maxIters <= 0 {
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("worker %s reports a non-positive cycle budget %d", handles[0].ID(), maxIters)).
			WithWorker(handles[0].ID())
	}

	c := &Coordinator{
		cfg:         cfg,
		server:      server,
		handles:     handles,
		direction:   direction,
		maxIters:    maxIters,
		rewardLimit: handles[0].RewardLimit(),
		runID:       uuid.NewString(),
	}
	c.logger = logger.With(
		zap.String("component", "coordinator"),
		zap.String("run_id", c.runID),
	)
	for _, opt := range opts {
		opt(c)
	}

	// The run length comes from the first worker; disagreeing budgets are
	// tolerated but worth knowing about.
	for _, h := range handles[1:] {
		if h.MaxIters() != maxIters {
			c.logger.Warn("worker cycle budget differs from the run budget",
				zap.String("worker", h.ID()),
				zap.Int("worker_budget", h.MaxIters()),
				zap.Int("run_budget", maxIters))
		}
	}
	return c, nil
}

// Run resets all participants and drives maxIters cycles per worker. It
// returns once the full budget is spent, the context ends, or a worker
// failure aborts the run. After ContinueOnFailure runs the collected
// failures are returned joined.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return types.NewError(types.ErrCallInFlight, "a run is already in progress")
	}
	defer c.running.Store(false)

	if err := c.Reset(ctx); err != nil {
		return fmt.Errorf("reset before run: %w", err)
	}

	total := c.maxIters * len(c.handles)
	c.logger.Info("exchange run starting",
		zap.Int("workers", len(c.handles)),
		zap.Int("max_iters", c.maxIters),
		zap.Int("total_cycles", total),
		zap.String("direction", c.direction.String()),
		zap.Float64("reward_limit", c.rewardLimit))
	start := time.Now()

	completions := make(chan completion, len(c.handles))
	for i := range c.handles {
		c.dispatch(ctx, completions, i, types.NewEmptyBatch())
	}

	var failures []error
	live := len(c.handles)
	for step := 0; step < total; step++ {
		var comp completion
		select {
		case comp = <-completions:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.epoch.Store(int64(step))
		worker := c.handles[comp.idx]

		batch, err := comp.fut.Result()
		if err != nil {
			var terr *types.Error
			if errors.As(err, &terr) && terr.Epoch < 0 {
				terr.WithEpoch(step)
			}
			if c.collector != nil {
				c.collector.RecordExchange(worker.ID(), "error", time.Since(comp.started))
				c.collector.RecordWorkerFailure(worker.ID())
			}
			live--
			c.logger.Error("worker step failed",
				zap.String("worker", worker.ID()),
				zap.Int("epoch", step),
				zap.Int("live_workers", live),
				zap.Error(err))
			if !c.cfg.ContinueOnFailure {
				return err
			}
			failures = append(failures, err)
			if live == 0 {
				return types.NewError(types.ErrNoWorkers, "no live workers remain").
					WithEpoch(step).
					WithCause(errors.Join(failures...))
			}
			continue
		}
		if c.collector != nil {
			c.collector.RecordExchange(worker.ID(), "ok", time.Since(comp.started))
		}

		imported, err := c.server.ExchangeWalkers(ctx, batch)
		if err != nil {
			var terr *types.Error
			if errors.As(err, &terr) {
				if terr.WorkerID == "" {
					terr.WithWorker(worker.ID())
				}
				if terr.Epoch < 0 {
					terr.WithEpoch(step)
				}
			}
			c.logger.Error("merge failed",
				zap.String("worker", worker.ID()),
				zap.Int("epoch", step),
				zap.Error(err))
			return err
		}
		c.dispatch(ctx, completions, comp.idx, imported)

		if c.cfg.ReportEvery > 0 && step > 0 && step%c.cfg.ReportEvery == 0 {
			c.report(step)
		}
	}

	best, hasBest := c.server.Best()
	c.logger.Info("exchange run complete",
		zap.Int("total_cycles", total),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("has_best", hasBest),
		zap.Float64("best_reward", best.Reward),
		zap.Int("failed_workers", len(failures)))

	if len(failures) > 0 {
		return errors.Join(failures...)
	}
	return nil
}

// dispatch issues the next exchange step and forwards its completion.
// Steps issued by the final cycles of a run are left to complete on their
// own; the buffered channel keeps their forwarders from leaking.
func (c *Coordinator) dispatch(ctx context.Context, completions chan<- completion, idx int, imported types.ExportBatch) {
	fut := c.handles[idx].RunExchangeStep(ctx, imported)
	started := time.Now()
	go func() {
		select {
		case <-fut.Done():
			select {
			case completions <- completion{idx: idx, fut: fut, started: started}:
			case <-ctx.Done():
			}
		case <-ctx.Done():
		}
	}()
}

// report emits one progress report.
func (c *Coordinator) report(step int) {
	best, ok := c.server.Best()
	c.logger.Info("exchange progress",
		zap.Int("epoch", step),
		zap.Bool("has_best", ok),
		zap.Float64("best_reward", best.Reward))
	if c.onProgress != nil {
		c.onProgress(Progress{Epoch: step, Best: best, HasBest: ok})
	}
}

// Reset restores the server and every worker to a fresh state.
func (c *Coordinator) Reset(ctx context.Context) error {
	c.epoch.Store(0)
	if err := c.server.Reset(ctx); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range c.handles {
		h := h
		g.Go(func() error {
			return h.Reset(gctx)
		})
	}
	return g.Wait()
}

// Best returns the global best candidate of the current or last run.
func (c *Coordinator) Best() (types.Candidate, bool) {
	return c.server.Best()
}

// Epoch returns the number of the most recently completed cycle.
func (c *Coordinator) Epoch() int {
	return int(c.epoch.Load())
}

// RunID identifies this coordinator in logs and progress output.
func (c *Coordinator) RunID() string {
	return c.runID
}

// Direction reports the run direction.
func (c *Coordinator) Direction() types.Direction {
	return c.direction
}

// MaxIters returns the per-worker cycle budget.
func (c *Coordinator) MaxIters() int {
	return c.maxIters
}

// RewardLimit returns the informational reward limit of the run.
func (c *Coordinator) RewardLimit() float64 {
	return c.rewardLimit
}

// WorkerIDs lists the ids of all worker handles.
func (c *Coordinator) WorkerIDs() []string {
	ids := make([]string, len(c.handles))
	for i, h := range c.handles {
		ids[i] = h.ID()
	}
	return ids
}

// Close closes every worker handle.
func (c *Coordinator) Close() error {
	var errs []error
	for _, h := range c.handles {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
