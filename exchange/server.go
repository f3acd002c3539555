package exchange

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/internal/metrics"
	"github.com/BaSui01/swarmflow/types"
)

const tracerName = "swarmflow/exchange"

// ServerConfig configures a ParamServer.
type ServerConfig struct {
	// Direction every participant of the run must agree on.
	Direction types.Direction `json:"direction" yaml:"direction"`
	// MaxLen bounds the batch pool.
	MaxLen int `json:"max_len" yaml:"max_len"`
	// AddGlobalBest folds the global best candidate into every outgoing
	// batch.
	AddGlobalBest bool `json:"add_global_best" yaml:"add_global_best"`
	// DrawPolicy selects which pooled batch an exchange draws.
	DrawPolicy DrawPolicy `json:"draw_policy" yaml:"draw_policy"`
}

// DefaultServerConfig returns the default parameter server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Direction:     types.Minimize,
		MaxLen:        20,
		AddGlobalBest: true,
		DrawPolicy:    DrawLatest,
	}
}

// ServerOption customizes a ParamServer.
type ServerOption func(*ParamServer)

// WithBuffer replaces the default in-memory pool, for example with a
// RedisBuffer. The buffer's own capacity and draw policy apply.
func WithBuffer(buf Buffer) ServerOption {
	return func(s *ParamServer) {
		s.buffer = buf
	}
}

// WithCollector attaches a metrics collector.
func WithCollector(c *metrics.Collector) ServerOption {
	return func(s *ParamServer) {
		s.collector = c
	}
}

// ParamServer pools exported batches, tracks the global best candidate, and
// answers every exchange with an import batch. All operations are
// serialized; safe for concurrent use by any number of workers.
type ParamServer struct {
	cfg       ServerConfig
	better    func(a, b float64) bool
	buffer    Buffer
	logger    *zap.Logger
	collector *metrics.Collector

	mu        sync.Mutex
	best      types.Candidate
	hasBest   bool
	exchanges int64
}

// NewParamServer creates a parameter server. Without WithBuffer the pool is
// an in-memory ring of cfg.MaxLen batches.
func NewParamServer(cfg ServerConfig, logger *zap.Logger, opts ...ServerOption) (*ParamServer, error) {
	if err := cfg.Direction.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ParamServer{
		cfg:    cfg,
		better: cfg.Direction.Comparator(),
		logger: logger.With(zap.String("component", "param_server")),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.buffer == nil {
		buf, err := NewMemoryBuffer(cfg.MaxLen, cfg.DrawPolicy)
		if err != nil {
			return nil, err
		}
		s.buffer = buf
	}
	s.logger.Info("parameter server ready",
		zap.String("direction", cfg.Direction.String()),
		zap.Int("max_len", cfg.MaxLen),
		zap.Bool("add_global_best", cfg.AddGlobalBest))
	return s, nil
}

// ExchangeWalkers merges one incoming export batch and returns the batch the
// caller should import next. Empty incoming batches merge nothing; an empty
// pool yields the empty sentinel. Malformed batches are rejected before any
// state is touched.
func (s *ParamServer) ExchangeWalkers(ctx context.Context, incoming types.ExportBatch) (types.ExportBatch, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "param_server.exchange",
		trace.WithAttributes(attribute.Int("exchange.incoming", incoming.Len())))
	defer span.End()

	if err := incoming.Validate(); err != nil {
		span.RecordError(err)
		s.logger.Warn("rejected malformed batch",
			zap.Int("len", incoming.Len()),
			zap.Int("capacity", incoming.Capacity()),
			zap.Error(err))
		return types.NewEmptyBatch(), err
	}

	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := false
	if !incoming.Empty() {
		if cand, ok := incoming.Best(s.cfg.Direction); ok {
			s.updateBestLocked(cand)
		}
		var err error
		evicted, err = s.buffer.Push(ctx, incoming)
		if err != nil {
			span.RecordError(err)
			return types.NewEmptyBatch(), err
		}
	}

	out, ok, err := s.buffer.Draw(ctx)
	if err != nil {
		span.RecordError(err)
		return types.NewEmptyBatch(), err
	}
	if !ok {
		out = types.NewEmptyBatch()
	}
	if s.cfg.AddGlobalBest {
		out = s.withGlobalBestLocked(out)
	}
	s.exchanges++

	poolLen, lenErr := s.buffer.Len(ctx)
	if lenErr != nil {
		poolLen = -1
	}
	span.SetAttributes(
		attribute.Int("exchange.outgoing", out.Len()),
		attribute.Int("exchange.pool", poolLen),
	)

	if s.collector != nil {
		s.collector.RecordMerge(time.Since(start), incoming.Len(), out.Len())
		if evicted {
			s.collector.RecordEviction()
		}
		if poolLen >= 0 {
			s.collector.SetBufferSize(poolLen)
		}
		if s.hasBest {
			s.collector.SetBestReward(s.best.Reward)
		}
	}
	s.logger.Debug("exchange served",
		zap.Int("in", incoming.Len()),
		zap.Int("out", out.Len()),
		zap.Int("pool", poolLen),
		zap.Bool("evicted", evicted))

	return out, nil
}

// updateBestLocked folds a candidate into the global best record.
func (s *ParamServer) updateBestLocked(cand types.Candidate) {
	if s.hasBest && !s.better(cand.Reward, s.best.Reward) {
		return
	}
	s.best = cand
	s.hasBest = true
	s.logger.Debug("new global best",
		zap.String("id", cand.ID),
		zap.Float64("reward", cand.Reward))
}

// withGlobalBestLocked guarantees the outgoing batch carries the global
// best: appended when there is room, replacing the worst member when not.
// The empty sentinel passes through untouched.
func (s *ParamServer) withGlobalBestLocked(out types.ExportBatch) types.ExportBatch {
	if !s.hasBest || out.Empty() {
		return out
	}
	cands := out.Candidates()
	for _, c := range cands {
		if c.ID == s.best.ID {
			return out
		}
	}
	if len(cands) < out.Capacity() {
		cands = append(cands, s.best.Clone())
	} else {
		worst := 0
		for i := 1; i < len(cands); i++ {
			if s.better(cands[worst].Reward, cands[i].Reward) {
				worst = i
			}
		}
		cands[worst] = s.best.Clone()
	}
	batch, err := types.NewBatch(out.Capacity(), cands...)
	if err != nil {
		// Unreachable: the candidate count never exceeds the capacity here.
		s.logger.Error("failed to rebuild outgoing batch", zap.Error(err))
		return out
	}
	return batch
}

// Best returns the global best candidate; ok is false before the first
// non-empty merge.
func (s *ParamServer) Best() (types.Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasBest {
		return types.Candidate{}, false
	}
	return s.best.Clone(), true
}

// Direction reports the run direction.
func (s *ParamServer) Direction() types.Direction {
	return s.cfg.Direction
}

// Exchanges returns the number of merges served since the last reset.
func (s *ParamServer) Exchanges() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchanges
}

// PoolLen returns the current number of pooled batches.
func (s *ParamServer) PoolLen(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Len(ctx)
}

// Reset clears the pool, the best record and the exchange counter.
func (s *ParamServer) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.buffer.Clear(ctx); err != nil {
		return err
	}
	s.best = types.Candidate{}
	s.hasBest = false
	s.exchanges = 0
	s.logger.Debug("parameter server reset")
	return nil
}
