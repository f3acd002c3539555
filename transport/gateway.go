package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/swarmflow/exchange"
	"github.com/BaSui01/swarmflow/internal/metrics"
	"github.com/BaSui01/swarmflow/types"
)

// GatewayConfig configures the websocket endpoint remote workers dial.
type GatewayConfig struct {
	// ListenAddr is the TCP listen address; ":0" binds an ephemeral port.
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
	// Path is the HTTP path of the websocket endpoint.
	Path string `json:"path" yaml:"path"`
	// Secret is the shared HMAC secret worker tokens are minted with.
	Secret string `json:"-" yaml:"secret"`
	// ExpectWorkers is how many workers WaitForWorkers collects.
	ExpectWorkers int `json:"expect_workers" yaml:"expect_workers"`
	// HandshakeTimeout bounds the hello/welcome exchange of a new
	// connection.
	HandshakeTimeout time.Duration `json:"handshake_timeout" yaml:"handshake_timeout"`
	// FrameRPS and FrameBurst bound inbound frames per connection.
	FrameRPS   float64 `json:"frame_rps" yaml:"frame_rps"`
	FrameBurst int     `json:"frame_burst" yaml:"frame_burst"`
}

// DefaultGatewayConfig returns the default gateway configuration. The
// secret has no default; runs must set one.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		ListenAddr:       ":8090",
		Path:             "/exchange",
		ExpectWorkers:    2,
		HandshakeTimeout: 10 * time.Second,
		FrameRPS:         200,
		FrameBurst:       400,
	}
}

// Validate checks the configuration.
func (c GatewayConfig) Validate() error {
	if c.Secret == "" {
		return types.NewError(types.ErrInvalidConfig, "gateway secret must be set")
	}
	if !strings.HasPrefix(c.Path, "/") {
		return types.NewError(types.ErrInvalidConfig, "gateway path must start with /")
	}
	if c.ExpectWorkers <= 0 {
		return types.NewError(types.ErrInvalidConfig, "expect_workers must be positive")
	}
	if c.HandshakeTimeout <= 0 {
		return types.NewError(types.ErrInvalidConfig, "handshake timeout must be positive")
	}
	if c.FrameRPS <= 0 || c.FrameBurst <= 0 {
		return types.NewError(types.ErrInvalidConfig, "frame rate limit must be positive")
	}
	return nil
}

// GatewayOption customizes a gateway.
type GatewayOption func(*Gateway)

// WithGatewayCollector wires connection metrics.
func WithGatewayCollector(collector *metrics.Collector) GatewayOption {
	return func(g *Gateway) {
		g.collector = collector
	}
}

// Gateway accepts remote worker connections and exposes each as an
// exchange.Handle. Tokens are verified before the websocket upgrade and the
// token subject must match the worker id announced in the hello frame.
type Gateway struct {
	cfg       GatewayConfig
	logger    *zap.Logger
	collector *metrics.Collector

	server   *http.Server
	listener net.Listener

	mu      sync.Mutex
	started bool
	closed  bool
	seen    map[string]bool
	handles []*RemoteHandle

	arrivals chan *RemoteHandle
}

// NewGateway creates a gateway. It does not listen until Start.
func NewGateway(cfg GatewayConfig, logger *zap.Logger, opts ...GatewayOption) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "gateway")),
		seen:     make(map[string]bool),
		arrivals: make(chan *RemoteHandle, cfg.ExpectWorkers),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Start binds the listen address and begins serving upgrades in the
// background.
func (g *Gateway) Start() error {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return types.NewError(types.ErrInvalidConfig, "gateway already started")
	}
	ln, err := net.Listen("tcp", g.cfg.ListenAddr)
	if err != nil {
		g.mu.Unlock()
		return types.NewError(types.ErrTransport, "listen on "+g.cfg.ListenAddr).WithCause(err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc(g.cfg.Path, g.handleWorker)
	g.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.listener = ln
	g.started = true
	g.mu.Unlock()

	g.logger.Info("gateway listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("path", g.cfg.Path),
		zap.Int("expect_workers", g.cfg.ExpectWorkers))

	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve failed", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound listen address, or "" before Start. Useful with
// ":0" configs.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

// URL returns the websocket URL agents dial, or "" before Start.
func (g *Gateway) URL() string {
	addr := g.Addr()
	if addr == "" {
		return ""
	}
	return "ws://" + addr + g.cfg.Path
}

// WaitForWorkers blocks until the expected number of workers completed
// their handshake, then returns their handles in arrival order.
func (g *Gateway) WaitForWorkers(ctx context.Context) ([]exchange.Handle, error) {
	handles := make([]exchange.Handle, 0, g.cfg.ExpectWorkers)
	for len(handles) < g.cfg.ExpectWorkers {
		select {
		case h := <-g.arrivals:
			handles = append(handles, h)
		case <-ctx.Done():
			return nil, types.NewError(types.ErrTransport,
				fmt.Sprintf("gave up waiting for workers: %d of %d connected",
					len(handles), g.cfg.ExpectWorkers)).WithCause(ctx.Err())
		}
	}
	g.logger.Info("all workers connected", zap.Int("workers", len(handles)))
	return handles, nil
}

// handleWorker authenticates, upgrades, and admits one worker connection.
func (g *Gateway) handleWorker(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		g.logger.Warn("connection without bearer token", zap.String("remote_addr", r.RemoteAddr))
		http.Error(w, "missing or malformed Authorization header", http.StatusUnauthorized)
		return
	}
	subject, err := VerifyToken(g.cfg.Secret, strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		g.logger.Warn("worker token rejected",
			zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{subprotocol},
	})
	if err != nil {
		g.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	info, err := g.handshake(r.Context(), conn, subject)
	if err != nil {
		g.logger.Warn("worker handshake failed",
			zap.String("subject", subject), zap.Error(err))
		status := websocket.StatusPolicyViolation
		if types.IsErrorCode(err, types.ErrTransport) {
			status = websocket.StatusProtocolError
		}
		_ = conn.Close(status, err.Error())
		return
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		_ = conn.Close(websocket.StatusTryAgainLater, "gateway is shutting down")
		return
	}
	if g.seen[info.ID] {
		g.mu.Unlock()
		g.logger.Warn("duplicate worker id rejected", zap.String("worker_id", info.ID))
		_ = conn.Close(websocket.StatusPolicyViolation, "duplicate worker id")
		return
	}
	if len(g.handles) >= g.cfg.ExpectWorkers {
		g.mu.Unlock()
		g.logger.Warn("worker rejected, all slots filled", zap.String("worker_id", info.ID))
		_ = conn.Close(websocket.StatusTryAgainLater, "all worker slots are filled")
		return
	}
	g.seen[info.ID] = true
	limiter := rate.NewLimiter(rate.Limit(g.cfg.FrameRPS), g.cfg.FrameBurst)
	h := newRemoteHandle(conn, info, limiter, g.logger, func() {
		if g.collector != nil {
			g.collector.WorkerDisconnected()
		}
	})
	g.handles = append(g.handles, h)
	g.mu.Unlock()

	if g.collector != nil {
		g.collector.WorkerConnected()
	}
	g.logger.Info("worker connected",
		zap.String("worker_id", info.ID),
		zap.String("direction", info.Direction.String()),
		zap.Int("max_iters", info.MaxIters))

	// Guarded by the slot check above; never blocks.
	g.arrivals <- h
}

// handshake reads the hello frame, checks it against the token subject, and
// answers with a welcome.
func (g *Gateway) handshake(ctx context.Context, conn *websocket.Conn, subject string) (workerInfo, error) {
	hctx, cancel := context.WithTimeout(ctx, g.cfg.HandshakeTimeout)
	defer cancel()

	f, err := readFrame(hctx, conn)
	if err != nil {
		return workerInfo{}, types.NewError(types.ErrTransport, "read hello frame").WithCause(err)
	}
	if f.Type != frameHello || f.Info == nil {
		return workerInfo{}, types.NewError(types.ErrTransport, "first frame is not a hello")
	}
	info := *f.Info
	if info.ID == "" {
		return workerInfo{}, types.NewError(types.ErrTransport, "hello carries no worker id")
	}
	if info.ID != subject {
		return workerInfo{}, types.NewError(types.ErrUnauthorized,
			fmt.Sprintf("token subject %q does not match worker id %q", subject, info.ID))
	}
	if err := info.Direction.Validate(); err != nil {
		return workerInfo{}, types.NewError(types.ErrTransport, "hello direction").WithCause(err)
	}
	if info.MaxIters <= 0 {
		return workerInfo{}, types.NewError(types.ErrTransport, "hello reports no cycle budget")
	}
	if err := writeFrame(hctx, conn, frame{Type: frameWelcome}); err != nil {
		return workerInfo{}, types.NewError(types.ErrTransport, "send welcome frame").WithCause(err)
	}
	return info, nil
}

// Handles returns the admitted handles so far, in arrival order.
func (g *Gateway) Handles() []exchange.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]exchange.Handle, len(g.handles))
	for i, h := range g.handles {
		out[i] = h
	}
	return out
}

// Close stops accepting connections and closes every admitted handle.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	server := g.server
	handles := g.handles
	g.mu.Unlock()

	var errs []error
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	for _, h := range handles {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	g.logger.Info("gateway closed")
	return errors.Join(errs...)
}
