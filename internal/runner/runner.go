// Package runner drives epoch-based training.
//
// An EpochBasedRunner owns the model, the optimizer and the loaders and
// calls its hooks around every run, epoch and iteration. Everything else a
// training loop does (learning-rate updates, optimizer steps, logging,
// evaluation, checkpoints) lives in hooks, so runs are assembled from
// config by registering the hooks a config asks for.
package runner

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"sort"

	"github.com/mixgo-ml/mixgo/internal/data"
	"github.com/mixgo-ml/mixgo/internal/mixup"
	"github.com/mixgo-ml/mixgo/internal/models"
	"github.com/mixgo-ml/mixgo/internal/optim"
)

// Hook priorities; lower runs first.
const (
	PriorityVeryHigh    = 10
	PriorityHigh        = 30
	PriorityAboveNormal = 40
	PriorityNormal      = 50
	PriorityBelowNormal = 60
	PriorityLow         = 70
	PriorityVeryLow     = 90
)

// Hook reacts to training events. Embed BaseHook to implement only the
// events of interest.
type Hook interface {
	Priority() int
	BeforeRun(r *EpochBasedRunner) error
	BeforeEpoch(r *EpochBasedRunner) error
	BeforeIter(r *EpochBasedRunner) error
	AfterIter(r *EpochBasedRunner) error
	AfterEpoch(r *EpochBasedRunner) error
	AfterRun(r *EpochBasedRunner) error
}

// BaseHook implements every Hook event as a no-op at normal priority.
type BaseHook struct{}

func (BaseHook) Priority() int                       { return PriorityNormal }
func (BaseHook) BeforeRun(*EpochBasedRunner) error   { return nil }
func (BaseHook) BeforeEpoch(*EpochBasedRunner) error { return nil }
func (BaseHook) BeforeIter(*EpochBasedRunner) error  { return nil }
func (BaseHook) AfterIter(*EpochBasedRunner) error   { return nil }
func (BaseHook) AfterEpoch(*EpochBasedRunner) error  { return nil }
func (BaseHook) AfterRun(*EpochBasedRunner) error    { return nil }

// EpochBasedRunner trains for a fixed number of epochs.
type EpochBasedRunner struct {
	model     *models.Classifier
	optimizer optim.Optimizer
	loader    *data.Loader
	logger    *log.Logger
	rng       *rand.Rand
	workDir   string
	runID     string

	hooks     []Hook
	maxEpochs int

	epoch     int // completed epochs
	iter      int // completed iterations
	innerIter int // iteration within the current epoch
	batch     mixup.Batch
	outputs   models.StepOutput
	metrics   map[string]float64
}

// Options configures an EpochBasedRunner.
type Options struct {
	Model     *models.Classifier
	Optimizer optim.Optimizer
	Loader    *data.Loader
	Logger    *log.Logger
	RNG       *rand.Rand
	WorkDir   string
	RunID     string
	MaxEpochs int
}

// New creates a runner without hooks.
func New(opts Options) (*EpochBasedRunner, error) {
	if opts.Model == nil || opts.Optimizer == nil || opts.Loader == nil {
		return nil, fmt.Errorf("runner: model, optimizer and loader are required")
	}
	if opts.MaxEpochs <= 0 {
		return nil, fmt.Errorf("runner: max_epochs must be positive, got %d", opts.MaxEpochs)
	}
	if opts.Loader.Len() == 0 {
		return nil, fmt.Errorf("runner: the train loader yields no batches")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.RNG == nil {
		return nil, fmt.Errorf("runner: a random source is required")
	}
	return &EpochBasedRunner{
		model:     opts.Model,
		optimizer: opts.Optimizer,
		loader:    opts.Loader,
		logger:    opts.Logger,
		rng:       opts.RNG,
		workDir:   opts.WorkDir,
		runID:     opts.RunID,
		maxEpochs: opts.MaxEpochs,
		metrics:   make(map[string]float64),
	}, nil
}

// RegisterHook adds h, keeping hooks ordered by priority. Hooks of equal
// priority run in registration order.
func (r *EpochBasedRunner) RegisterHook(h Hook) {
	r.hooks = append(r.hooks, h)
	sort.SliceStable(r.hooks, func(i, j int) bool {
		return r.hooks[i].Priority() < r.hooks[j].Priority()
	})
}

// Hooks returns the registered hooks in call order.
func (r *EpochBasedRunner) Hooks() []Hook { return r.hooks }

func (r *EpochBasedRunner) Model() *models.Classifier  { return r.model }
func (r *EpochBasedRunner) Optimizer() optim.Optimizer { return r.optimizer }
func (r *EpochBasedRunner) Loader() *data.Loader       { return r.loader }
func (r *EpochBasedRunner) Logger() *log.Logger        { return r.logger }
func (r *EpochBasedRunner) RNG() *rand.Rand            { return r.rng }
func (r *EpochBasedRunner) WorkDir() string            { return r.workDir }
func (r *EpochBasedRunner) RunID() string              { return r.runID }

// Epoch returns the number of completed epochs.
func (r *EpochBasedRunner) Epoch() int { return r.epoch }

// Iter returns the number of completed iterations.
func (r *EpochBasedRunner) Iter() int { return r.iter }

// InnerIter returns the index of the current iteration within its epoch.
func (r *EpochBasedRunner) InnerIter() int { return r.innerIter }

// MaxEpochs returns the epoch budget.
func (r *EpochBasedRunner) MaxEpochs() int { return r.maxEpochs }

// MaxIters returns the iteration budget.
func (r *EpochBasedRunner) MaxIters() int { return r.maxEpochs * r.loader.Len() }

// Batch returns the batch of the current iteration.
func (r *EpochBasedRunner) Batch() mixup.Batch { return r.batch }

// Outputs returns the result of the last training step.
func (r *EpochBasedRunner) Outputs() models.StepOutput { return r.outputs }

// Metrics returns the latest evaluation results by name.
func (r *EpochBasedRunner) Metrics() map[string]float64 { return r.metrics }

// SetMetric records an evaluation result.
func (r *EpochBasedRunner) SetMetric(name string, v float64) { r.metrics[name] = v }

// Restore sets the position a resumed run continues from.
func (r *EpochBasedRunner) Restore(epoch, iter int) {
	r.epoch, r.iter = epoch, iter
}

func (r *EpochBasedRunner) call(event func(Hook) error) error {
	for _, h := range r.hooks {
		if err := event(h); err != nil {
			return err
		}
	}
	return nil
}

// Run trains until MaxEpochs epochs are complete. Cancelling ctx stops the
// run between iterations and returns the context error.
func (r *EpochBasedRunner) Run(ctx context.Context) error {
	r.logger.Printf("Start running, run id: %s, work_dir: %s", r.runID, r.workDir)
	r.logger.Printf("max: %d epochs", r.maxEpochs)
	if err := r.call(func(h Hook) error { return h.BeforeRun(r) }); err != nil {
		return err
	}

	for r.epoch < r.maxEpochs {
		if err := r.trainEpoch(ctx); err != nil {
			return err
		}
	}
	return r.call(func(h Hook) error { return h.AfterRun(r) })
}

func (r *EpochBasedRunner) trainEpoch(ctx context.Context) error {
	if err := r.call(func(h Hook) error { return h.BeforeEpoch(r) }); err != nil {
		return err
	}
	r.innerIter = 0
	for batch := range r.loader.Epoch() {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.batch = batch
		if err := r.call(func(h Hook) error { return h.BeforeIter(r) }); err != nil {
			return err
		}
		out, err := r.model.TrainStep(batch, r.rng)
		if err != nil {
			return fmt.Errorf("epoch %d iter %d: %w", r.epoch+1, r.innerIter+1, err)
		}
		r.outputs = out
		if err := r.call(func(h Hook) error { return h.AfterIter(r) }); err != nil {
			return err
		}
		r.innerIter++
		r.iter++
	}
	r.epoch++
	return r.call(func(h Hook) error { return h.AfterEpoch(r) })
}
