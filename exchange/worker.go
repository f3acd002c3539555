package exchange

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/swarm"
	"github.com/BaSui01/swarmflow/types"
)

// WorkerConfig configures the exchange bookkeeping around one swarm.
type WorkerConfig struct {
	// NExport is the number of candidates exported per cycle and the
	// capacity of every export batch.
	NExport int `json:"n_export" yaml:"n_export"`
	// NImport is the number of imported candidates merged into the
	// population per cycle.
	NImport int `json:"n_import" yaml:"n_import"`
	// ExportBest guarantees the local best a slot in every export, even
	// when it would not make the top-NExport cut.
	ExportBest bool `json:"export_best" yaml:"export_best"`
	// ImportBest folds the best imported candidate into the local best
	// record before stepping.
	ImportBest bool `json:"import_best" yaml:"import_best"`
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

// Validate checks the configuration.
func (c WorkerConfig) Validate() error {
	if c.NExport < 0 {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("n_export must not be negative, got %d", c.NExport))
	}
	if c.NImport < 0 {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("n_import must not be negative, got %d", c.NImport))
	}
	return nil
}

// ExportWorker owns one swarm and performs the bookkeeping of a single
// exchange cycle: merge the imported batch, advance the swarm one step, and
// select the next export.
//
// Not safe for concurrent use. Drive it through a Handle.
type ExportWorker struct {
	cfg    WorkerConfig
	swarm  swarm.Swarm
	better func(a, b float64) bool
	logger *zap.Logger

	best    types.Candidate
	hasBest bool
	steps   int
}

// NewExportWorker wraps a swarm with exchange bookkeeping.
func NewExportWorker(cfg WorkerConfig, sw swarm.Swarm, logger *zap.Logger) (*ExportWorker, error) {
	if sw == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "swarm must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := sw.Direction().Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportWorker{
		cfg:    cfg,
		swarm:  sw,
		better: sw.Direction().Comparator(),
		logger: logger.With(zap.String("component", "export_worker")),
	}, nil
}

// RunExchangeStep performs one full exchange cycle and returns the next
// export batch. A step error marks the cycle failed; the swarm state is
// whatever the failed step left behind.
func (w *ExportWorker) RunExchangeStep(ctx context.Context, imported types.ExportBatch) (types.ExportBatch, error) {
	w.merge(imported)

	if err := w.swarm.Step(ctx); err != nil {
		return types.NewEmptyBatch(),
			types.NewError(types.ErrWorkerStepFailure, "swarm step failed").WithCause(err)
	}
	w.steps++
	w.recordBest(w.swarm.CurrentBest())

	out, err := w.export()
	if err != nil {
		return types.NewEmptyBatch(), err
	}
	w.logger.Debug("exchange cycle complete",
		zap.Int("step", w.steps),
		zap.Int("imported", imported.Len()),
		zap.Int("exported", out.Len()),
		zap.Float64("best", w.best.Reward))
	return out, nil
}

// merge folds an imported batch into the swarm: the top NImport candidates
// displace the worst population members, and with ImportBest set the best
// import also updates the local best record.
func (w *ExportWorker) merge(imported types.ExportBatch) {
	if imported.Empty() {
		return
	}
	cands := imported.Candidates()
	sort.SliceStable(cands, func(i, j int) bool {
		return w.better(cands[i].Reward, cands[j].Reward)
	})

	if w.cfg.NImport > 0 {
		take := w.cfg.NImport
		if take > len(cands) {
			take = len(cands)
		}
		w.swarm.Inject(cands[:take])
	}

	if w.cfg.ImportBest {
		best := cands[0]
		w.recordBest(best)
		if rec, ok := w.swarm.(swarm.BestRecorder); ok {
			rec.RecordBest(best)
		}
	}
}

// recordBest folds a candidate into the local best record.
func (w *ExportWorker) recordBest(cand types.Candidate) {
	if w.hasBest && !w.better(cand.Reward, w.best.Reward) {
		return
	}
	w.best = cand.Clone()
	w.hasBest = true
}

// export selects the top NExport candidates of the population. With
// ExportBest set the local best record is guaranteed a slot.
func (w *ExportWorker) export() (types.ExportBatch, error) {
	if w.cfg.NExport == 0 {
		return types.NewBatch(0)
	}
	pop := w.swarm.Population()
	sort.SliceStable(pop, func(i, j int) bool {
		return w.better(pop[i].Reward, pop[j].Reward)
	})
	k := w.cfg.NExport
	if k > len(pop) {
		k = len(pop)
	}
	selected := pop[:k]

	if w.cfg.ExportBest && w.hasBest {
		carried := false
		for _, c := range selected {
			if c.ID == w.best.ID {
				carried = true
				break
			}
		}
		if !carried {
			if len(selected) < w.cfg.NExport {
				selected = append(selected, w.best.Clone())
			} else if len(selected) > 0 {
				selected[len(selected)-1] = w.best.Clone()
			}
		}
	}
	return types.NewBatch(w.cfg.NExport, selected...)
}

// Reset reinitializes the swarm and clears the worker's records.
func (w *ExportWorker) Reset() error {
	if err := w.swarm.Reset(); err != nil {
		return err
	}
	w.best = types.Candidate{}
	w.hasBest = false
	w.steps = 0
	return nil
}

// Best returns the local best record; ok is false before the first step.
func (w *ExportWorker) Best() (types.Candidate, bool) {
	if !w.hasBest {
		return types.Candidate{}, false
	}
	return w.best.Clone(), true
}

// Steps returns the number of completed exchange cycles since the last
// reset.
func (w *ExportWorker) Steps() int {
	return w.steps
}

// Direction reports the swarm's optimization direction.
func (w *ExportWorker) Direction() types.Direction {
	return w.swarm.Direction()
}

// MaxIters returns the swarm's exchange-cycle budget.
func (w *ExportWorker) MaxIters() int {
	return w.swarm.MaxIters()
}

// RewardLimit returns the swarm's informational reward limit.
func (w *ExportWorker) RewardLimit() float64 {
	return w.swarm.RewardLimit()
}
