package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/swarmflow/exchange"
	"github.com/BaSui01/swarmflow/types"
)

// RemoteHandle drives one connected remote worker. It implements
// exchange.Handle: requests go out as seq-numbered frames, a read loop
// matches result frames back to their callers. Direction, MaxIters, and
// RewardLimit come from the handshake and never touch the wire again.
//
// At most one exchange step may be outstanding, same as the local handle.
// Reset and Best are synchronous and queue behind an in-flight step on the
// agent side.
type RemoteHandle struct {
	id      string
	info    workerInfo
	conn    *websocket.Conn
	logger  *zap.Logger
	limiter *rate.Limiter
	onClose func()

	// Websocket writes must not interleave.
	writeMu sync.Mutex

	seq      atomic.Uint64
	inFlight atomic.Bool

	mu      sync.Mutex
	closed  bool
	termErr error
	pending map[uint64]chan frame
	// Signalled whenever pending drains or the handle closes.
	idle *sync.Cond

	readCtx   context.Context
	readStop  context.CancelFunc
	readDone  chan struct{}
	closeOnce sync.Once
}

var _ exchange.Handle = (*RemoteHandle)(nil)

// newRemoteHandle takes ownership of an upgraded connection whose handshake
// already completed, and starts the read loop.
func newRemoteHandle(conn *websocket.Conn, info workerInfo, limiter *rate.Limiter, logger *zap.Logger, onClose func()) *RemoteHandle {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &RemoteHandle{
		id:      info.ID,
		info:    info,
		conn:    conn,
		logger:  logger.With(zap.String("component", "remote_handle"), zap.String("worker_id", info.ID)),
		limiter: limiter,
		onClose: onClose,
		pending: make(map[uint64]chan frame),

		readCtx:  ctx,
		readStop: cancel,
		readDone: make(chan struct{}),
	}
	h.idle = sync.NewCond(&h.mu)
	go h.readLoop()
	return h
}

// readLoop receives result frames until the connection dies or the handle
// closes. Every inbound frame consumes one rate-limiter token.
func (h *RemoteHandle) readLoop() {
	defer close(h.readDone)
	for {
		if h.limiter != nil {
			if err := h.limiter.Wait(h.readCtx); err != nil {
				h.shutdown(types.NewError(types.ErrHandleClosed, "handle is closed").WithWorker(h.id))
				return
			}
		}
		f, err := readFrame(h.readCtx, h.conn)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				h.shutdown(types.NewError(types.ErrHandleClosed, "worker disconnected").WithWorker(h.id))
			} else {
				h.shutdown(types.NewError(types.ErrTransport, "worker connection lost").
					WithWorker(h.id).WithCause(err))
			}
			return
		}
		if f.Type != frameResult {
			h.logger.Warn("unexpected frame from worker", zap.String("type", f.Type))
			continue
		}
		h.deliver(f)
	}
}

// deliver hands a result frame to the call waiting on its sequence number.
func (h *RemoteHandle) deliver(f frame) {
	h.mu.Lock()
	ch, ok := h.pending[f.Seq]
	delete(h.pending, f.Seq)
	if len(h.pending) == 0 {
		h.idle.Broadcast()
	}
	h.mu.Unlock()
	if !ok {
		h.logger.Debug("result for unknown call", zap.Uint64("seq", f.Seq))
		return
	}
	ch <- f
}

// register allocates the response channel for a sequence number. Returns
// nil when the handle is already closed.
func (h *RemoteHandle) register(seq uint64) chan frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	ch := make(chan frame, 1)
	h.pending[seq] = ch
	return ch
}

func (h *RemoteHandle) unregister(seq uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, seq)
	if len(h.pending) == 0 {
		h.idle.Broadcast()
	}
}

// terminalError reports why the handle stopped.
func (h *RemoteHandle) terminalError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.termErr != nil {
		return h.termErr
	}
	return types.NewError(types.ErrHandleClosed, "handle is closed").WithWorker(h.id)
}

// shutdown records the terminal error, tears down the connection, and fails
// every pending call. Runs at most once; later calls are no-ops.
func (h *RemoteHandle) shutdown(cause error) {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.termErr = cause
		pending := h.pending
		h.pending = nil
		h.idle.Broadcast()
		h.mu.Unlock()

		h.readStop()
		_ = h.conn.Close(websocket.StatusNormalClosure, "closing")

		for _, ch := range pending {
			close(ch)
		}
		if h.onClose != nil {
			h.onClose()
		}
		h.logger.Debug("remote handle closed")
	})
}

func (h *RemoteHandle) writeFrame(ctx context.Context, f frame) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return writeFrame(ctx, h.conn, f)
}

// call performs one synchronous request and waits for its result frame.
func (h *RemoteHandle) call(ctx context.Context, req frame) (frame, error) {
	seq := h.seq.Add(1)
	req.Seq = seq
	ch := h.register(seq)
	if ch == nil {
		return frame{}, types.NewError(types.ErrHandleClosed, "handle is closed").WithWorker(h.id)
	}
	if err := h.writeFrame(ctx, req); err != nil {
		h.unregister(seq)
		return frame{}, types.NewError(types.ErrTransport, "send "+req.Type+" request").
			WithWorker(h.id).WithCause(err)
	}
	select {
	case f, ok := <-ch:
		if !ok {
			return frame{}, h.terminalError()
		}
		return f, nil
	case <-ctx.Done():
		h.unregister(seq)
		return frame{}, ctx.Err()
	}
}

// ID returns the worker id announced in the handshake.
func (h *RemoteHandle) ID() string {
	return h.id
}

// RunExchangeStep sends one exchange request and returns immediately. The
// future resolves when the worker's result frame arrives or the connection
// dies. Cancelling ctx abandons neither the request nor the remote step;
// the worker finishes it and the result is discarded.
func (h *RemoteHandle) RunExchangeStep(ctx context.Context, imported types.ExportBatch) *exchange.Future {
	if !h.inFlight.CompareAndSwap(false, true) {
		fut := exchange.NewFuture()
		fut.Resolve(types.NewEmptyBatch(),
			types.NewError(types.ErrCallInFlight, "an exchange step is already outstanding").WithWorker(h.id))
		return fut
	}

	seq := h.seq.Add(1)
	ch := h.register(seq)
	if ch == nil {
		h.inFlight.Store(false)
		fut := exchange.NewFuture()
		fut.Resolve(types.NewEmptyBatch(),
			types.NewError(types.ErrHandleClosed, "handle is closed").WithWorker(h.id))
		return fut
	}

	fut := exchange.NewFuture()
	if err := h.writeFrame(ctx, frame{Type: frameExchange, Seq: seq, Batch: &imported}); err != nil {
		h.unregister(seq)
		h.inFlight.Store(false)
		fut.Resolve(types.NewEmptyBatch(),
			types.NewError(types.ErrTransport, "send exchange request").WithWorker(h.id).WithCause(err))
		return fut
	}

	go func() {
		f, ok := <-ch
		if !ok {
			h.inFlight.Store(false)
			fut.Resolve(types.NewEmptyBatch(), h.terminalError())
			return
		}
		batch := types.NewEmptyBatch()
		var err error
		switch {
		case f.Err != nil:
			if f.Err.WorkerID == "" {
				f.Err.WithWorker(h.id)
			}
			err = f.Err
		case f.Batch != nil:
			batch = *f.Batch
		}
		// Release before resolving so a caller reacting to Done can issue
		// the next step without hitting CALL_IN_FLIGHT.
		h.inFlight.Store(false)
		fut.Resolve(batch, err)
	}()
	return fut
}

// Reset clears the remote worker's run state.
func (h *RemoteHandle) Reset(ctx context.Context) error {
	f, err := h.call(ctx, frame{Type: frameReset})
	if err != nil {
		return err
	}
	if f.Err != nil {
		if f.Err.WorkerID == "" {
			f.Err.WithWorker(h.id)
		}
		return f.Err
	}
	return nil
}

// Best fetches the remote worker's best candidate so far.
func (h *RemoteHandle) Best(ctx context.Context) (types.Candidate, bool, error) {
	f, err := h.call(ctx, frame{Type: frameBest})
	if err != nil {
		return types.Candidate{}, false, err
	}
	if f.Err != nil {
		return types.Candidate{}, false, f.Err
	}
	if !f.HasBest || f.Best == nil {
		return types.Candidate{}, false, nil
	}
	return *f.Best, true, nil
}

// Direction returns the handshake-cached optimization direction.
func (h *RemoteHandle) Direction() types.Direction {
	return h.info.Direction
}

// MaxIters returns the handshake-cached cycle budget.
func (h *RemoteHandle) MaxIters() int {
	return h.info.MaxIters
}

// RewardLimit returns the handshake-cached reward limit.
func (h *RemoteHandle) RewardLimit() float64 {
	return h.info.RewardLimit
}

// Close tears down the connection. Like the local handle it drains first:
// calls already on the wire get to deliver their results before the
// connection drops, so a worker serving its final step exits cleanly.
// Safe to call more than once.
func (h *RemoteHandle) Close() error {
	h.mu.Lock()
	for !h.closed && len(h.pending) > 0 {
		h.idle.Wait()
	}
	h.mu.Unlock()

	h.shutdown(types.NewError(types.ErrHandleClosed, "handle is closed").WithWorker(h.id))
	<-h.readDone
	return nil
}
