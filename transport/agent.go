package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/exchange"
	"github.com/BaSui01/swarmflow/types"
)

// AgentConfig configures a remote worker process.
type AgentConfig struct {
	// GatewayURL is the websocket endpoint to dial.
	GatewayURL string `json:"gateway_url" yaml:"gateway_url"`
	// Token is the worker token minted with the gateway secret. Its
	// subject must match WorkerID.
	Token string `json:"-" yaml:"token"`
	// WorkerID names this worker; empty generates one.
	WorkerID string `json:"worker_id" yaml:"worker_id"`
	// DialTimeout bounds dialing and the handshake.
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
}

// DefaultAgentConfig returns the default remote worker configuration.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		GatewayURL:  "ws://localhost:8090/exchange",
		DialTimeout: 10 * time.Second,
	}
}

// Validate checks the configuration.
func (c AgentConfig) Validate() error {
	if c.GatewayURL == "" {
		return types.NewError(types.ErrInvalidConfig, "gateway url must be set")
	}
	if c.Token == "" {
		return types.NewError(types.ErrInvalidConfig, "worker token must be set")
	}
	if c.DialTimeout <= 0 {
		return types.NewError(types.ErrInvalidConfig, "dial timeout must be positive")
	}
	return nil
}

// ServeWorker connects an export worker to a gateway and serves its
// exchange, reset, and best requests until the gateway closes the
// connection or ctx ends. A normal-closure from the gateway, the usual end
// of a run, returns nil.
func ServeWorker(ctx context.Context, cfg AgentConfig, worker *exchange.ExportWorker, logger *zap.Logger) error {
	if worker == nil {
		return types.NewError(types.ErrInvalidConfig, "worker must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := cfg.WorkerID
	if id == "" {
		id = uuid.NewString()
	}
	logger = logger.With(zap.String("component", "agent"), zap.String("worker_id", id))

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.Token)
	conn, resp, err := websocket.Dial(dialCtx, cfg.GatewayURL, &websocket.DialOptions{
		HTTPHeader:   header,
		Subprotocols: []string{subprotocol},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return types.NewError(types.ErrUnauthorized, "gateway rejected the worker token").
				WithWorker(id).WithCause(err)
		}
		return types.NewError(types.ErrTransport, "dial gateway "+cfg.GatewayURL).
			WithWorker(id).WithCause(err)
	}
	defer conn.Close(websocket.StatusInternalError, "agent stopped")

	hello := frame{Type: frameHello, Info: &workerInfo{
		ID:          id,
		Direction:   worker.Direction(),
		MaxIters:    worker.MaxIters(),
		RewardLimit: worker.RewardLimit(),
	}}
	if err := writeFrame(dialCtx, conn, hello); err != nil {
		return types.NewError(types.ErrTransport, "send hello frame").WithWorker(id).WithCause(err)
	}
	welcome, err := readFrame(dialCtx, conn)
	if err != nil {
		if websocket.CloseStatus(err) != -1 {
			return types.NewError(types.ErrUnauthorized, "gateway refused the handshake").
				WithWorker(id).WithCause(err)
		}
		return types.NewError(types.ErrTransport, "read welcome frame").WithWorker(id).WithCause(err)
	}
	if welcome.Type != frameWelcome {
		return types.NewError(types.ErrTransport, "gateway answered hello with "+welcome.Type).WithWorker(id)
	}
	logger.Info("connected to gateway", zap.String("gateway_url", cfg.GatewayURL))

	for {
		f, err := readFrame(ctx, conn)
		if err != nil {
			if ctx.Err() != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "shutting down")
				logger.Info("agent stopping", zap.Error(ctx.Err()))
				return ctx.Err()
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				logger.Info("gateway closed the connection")
				return nil
			}
			return types.NewError(types.ErrTransport, "read request frame").
				WithWorker(id).WithCause(err)
		}
		if err := serveFrame(ctx, conn, worker, f); err != nil {
			return types.NewError(types.ErrTransport, "send result frame").
				WithWorker(id).WithCause(err)
		}
	}
}

// serveFrame executes one request against the worker and writes the result.
// Worker failures travel inside the result frame; the returned error is
// reserved for the write itself.
func serveFrame(ctx context.Context, conn *websocket.Conn, worker *exchange.ExportWorker, f frame) error {
	resp := frame{Type: frameResult, Seq: f.Seq}
	switch f.Type {
	case frameExchange:
		imported := types.NewEmptyBatch()
		if f.Batch != nil {
			imported = *f.Batch
		}
		batch, err := worker.RunExchangeStep(ctx, imported)
		if err != nil {
			resp.Err = wireError(err, types.ErrWorkerStepFailure)
		} else {
			resp.Batch = &batch
		}
	case frameReset:
		if err := worker.Reset(); err != nil {
			resp.Err = wireError(err, types.ErrWorkerStepFailure)
		}
	case frameBest:
		if best, ok := worker.Best(); ok {
			resp.Best = &best
			resp.HasBest = true
		}
	default:
		resp.Err = types.NewError(types.ErrTransport, "unsupported frame type "+f.Type)
	}
	return writeFrame(ctx, conn, resp)
}
