package exchange

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/types"
)

// Future is the pending result of an asynchronous exchange step.
type Future struct {
	done  chan struct{}
	batch types.ExportBatch
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolve publishes the outcome. Must be called exactly once.
func (f *Future) resolve(batch types.ExportBatch, err error) {
	f.batch = batch
	f.err = err
	close(f.done)
}

func resolvedFuture(batch types.ExportBatch, err error) *Future {
	f := newFuture()
	f.resolve(batch, err)
	return f
}

// NewFuture returns an unresolved future. Handle implementations outside
// this package resolve it from their own receive path.
func NewFuture() *Future {
	return newFuture()
}

// Resolve publishes the outcome. Must be called exactly once.
func (f *Future) Resolve(batch types.ExportBatch, err error) {
	f.resolve(batch, err)
}

// Done returns a channel closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the outcome. Valid only after Done is closed.
func (f *Future) Result() (types.ExportBatch, error) {
	return f.batch, f.err
}

// Await blocks until the result is available or the context ends.
func (f *Future) Await(ctx context.Context) (types.ExportBatch, error) {
	select {
	case <-f.done:
		return f.batch, f.err
	case <-ctx.Done():
		return types.NewEmptyBatch(), ctx.Err()
	}
}

// Handle is the asynchronous proxy to one export worker. RunExchangeStep
// never blocks; at most one step may be outstanding per handle, a second
// call resolves immediately with CALL_IN_FLIGHT.
type Handle interface {
	// ID identifies the worker for logs, metrics and errors.
	ID() string
	// RunExchangeStep starts one exchange cycle with the given import.
	RunExchangeStep(ctx context.Context, imported types.ExportBatch) *Future
	// Reset reinitializes the worker and its swarm.
	Reset(ctx context.Context) error
	// Best returns the worker's local best record; ok is false before the
	// first step.
	Best(ctx context.Context) (types.Candidate, bool, error)
	// Direction reports the worker's optimization direction.
	Direction() types.Direction
	// MaxIters returns the worker's exchange-cycle budget.
	MaxIters() int
	// RewardLimit returns the worker's informational reward limit.
	RewardLimit() float64
	// Close releases the handle. Outstanding calls complete first.
	Close() error
}

// LocalHandle drives an ExportWorker on a dedicated goroutine, giving the
// non-thread-safe worker actor semantics: all calls are funneled through one
// mailbox and execute in order.
type LocalHandle struct {
	id     string
	worker *ExportWorker
	logger *zap.Logger

	mailbox  chan func()
	inFlight atomic.Bool

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ Handle = (*LocalHandle)(nil)

// NewLocalHandle starts the worker goroutine. An empty id generates one.
func NewLocalHandle(id string, worker *ExportWorker, logger *zap.Logger) (*LocalHandle, error) {
	if worker == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "worker must not be nil")
	}
	if id == "" {
		id = uuid.NewString()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &LocalHandle{
		id:      id,
		worker:  worker,
		logger:  logger.With(zap.String("component", "local_handle"), zap.String("worker", id)),
		mailbox: make(chan func(), 32),
	}
	h.wg.Add(1)
	go h.loop()
	return h, nil
}

func (h *LocalHandle) loop() {
	defer h.wg.Done()
	for fn := range h.mailbox {
		fn()
	}
}

// submit enqueues fn; false means the handle is closed.
func (h *LocalHandle) submit(fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.mailbox <- fn
	return true
}

// ID returns the worker id.
func (h *LocalHandle) ID() string {
	return h.id
}

// RunExchangeStep starts one exchange cycle on the worker goroutine.
func (h *LocalHandle) RunExchangeStep(ctx context.Context, imported types.ExportBatch) *Future {
	if !h.inFlight.CompareAndSwap(false, true) {
		return resolvedFuture(types.NewEmptyBatch(),
			types.NewError(types.ErrCallInFlight, "an exchange step is already outstanding").WithWorker(h.id))
	}
	fut := newFuture()
	ok := h.submit(func() {
		batch, err := h.worker.RunExchangeStep(ctx, imported)
		if terr, isTyped := err.(*types.Error); isTyped && terr.WorkerID == "" {
			terr.WithWorker(h.id)
		}
		// Release before resolving so a caller reacting to Done can issue
		// the next step without hitting CALL_IN_FLIGHT.
		h.inFlight.Store(false)
		fut.resolve(batch, err)
	})
	if !ok {
		h.inFlight.Store(false)
		fut.resolve(types.NewEmptyBatch(),
			types.NewError(types.ErrHandleClosed, "handle is closed").WithWorker(h.id))
	}
	return fut
}

// Reset reinitializes the worker once queued work has drained.
func (h *LocalHandle) Reset(ctx context.Context) error {
	errCh := make(chan error, 1)
	if !h.submit(func() { errCh <- h.worker.Reset() }) {
		return types.NewError(types.ErrHandleClosed, "handle is closed").WithWorker(h.id)
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type bestResult struct {
	cand types.Candidate
	ok   bool
}

// Best reads the worker's local best record.
func (h *LocalHandle) Best(ctx context.Context) (types.Candidate, bool, error) {
	resCh := make(chan bestResult, 1)
	if !h.submit(func() {
		cand, ok := h.worker.Best()
		resCh <- bestResult{cand: cand, ok: ok}
	}) {
		return types.Candidate{}, false,
			types.NewError(types.ErrHandleClosed, "handle is closed").WithWorker(h.id)
	}
	select {
	case res := <-resCh:
		return res.cand, res.ok, nil
	case <-ctx.Done():
		return types.Candidate{}, false, ctx.Err()
	}
}

// Direction reports the worker's optimization direction. Immutable after
// construction, so no round-trip through the mailbox is needed.
func (h *LocalHandle) Direction() types.Direction {
	return h.worker.Direction()
}

// MaxIters returns the worker's exchange-cycle budget.
func (h *LocalHandle) MaxIters() int {
	return h.worker.MaxIters()
}

// RewardLimit returns the worker's informational reward limit.
func (h *LocalHandle) RewardLimit() float64 {
	return h.worker.RewardLimit()
}

// Close stops accepting calls, lets queued work finish, and waits for the
// worker goroutine to exit. Safe to call more than once.
func (h *LocalHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.mailbox)
	h.mu.Unlock()

	h.wg.Wait()
	h.logger.Debug("handle closed")
	return nil
}
