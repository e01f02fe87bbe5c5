package runner

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/mixgo-ml/mixgo/internal/data"
	"github.com/mixgo-ml/mixgo/internal/models"
	"github.com/mixgo-ml/mixgo/internal/nn"
	"github.com/mixgo-ml/mixgo/internal/optim"
	"github.com/mixgo-ml/mixgo/internal/sched"
)

func (r *EpochBasedRunner) progress() sched.Progress {
	return sched.Progress{
		Epoch:     r.epoch,
		Iter:      r.iter,
		EpochLen:  r.loader.Len(),
		MaxEpochs: r.maxEpochs,
		MaxIters:  r.MaxIters(),
	}
}

// LrUpdaterHook sets the learning rate of every parameter group before
// each iteration.
type LrUpdaterHook struct {
	BaseHook
	Scheduler *sched.Scheduler
}

// Priority runs the hook first.
func (h *LrUpdaterHook) Priority() int { return PriorityVeryHigh }

// BeforeIter applies the schedule.
func (h *LrUpdaterHook) BeforeIter(r *EpochBasedRunner) error {
	h.Scheduler.Apply(r.optimizer, r.progress())
	return nil
}

// GradClip bounds the total gradient norm before each step.
type GradClip struct {
	MaxNorm  float64
	NormType float64
}

// OptimizerHook steps the optimizer. With UpdateInterval > 1 gradients of
// that many iterations are accumulated (and averaged) before a step.
//
// SophiaG gets a fresh Gauss-Newton-Bartlett Hessian estimate every
// HessianInterval iterations, computed on the current images with labels
// sampled from the model's predictions. Adahessian gets a finite
// difference Hessian-vector product over the current batch.
type OptimizerHook struct {
	BaseHook
	UpdateInterval  int
	GradClip        *GradClip
	HessianInterval int

	gradNorm float64
}

// Priority runs the hook before logging and checkpoints.
func (h *OptimizerHook) Priority() int { return PriorityAboveNormal }

// GradNorm returns the total norm measured at the last clipped step.
func (h *OptimizerHook) GradNorm() float64 { return h.gradNorm }

// BeforeRun wires the Hessian-vector product for Adahessian.
func (h *OptimizerHook) BeforeRun(r *EpochBasedRunner) error {
	if h.UpdateInterval <= 0 {
		h.UpdateInterval = 1
	}
	if h.HessianInterval <= 0 {
		h.HessianInterval = 10
	}
	if ah, ok := r.optimizer.(*optim.Adahessian); ok {
		ah.SetHVP(optim.FiniteDifferenceHVP(func() (optim.Gradients, error) {
			b := r.Batch()
			return r.model.Gradients(b.Images, nn.HardTarget(b.Labels))
		}, 0))
	}
	return nil
}

// AfterIter steps at the end of every accumulation window and at the end
// of an epoch.
func (h *OptimizerHook) AfterIter(r *EpochBasedRunner) error {
	window := h.UpdateInterval
	last := r.innerIter+1 == r.loader.Len()
	if (r.innerIter+1)%window != 0 && !last {
		return nil
	}
	params := r.model.Parameters()
	grads := nn.CollectGrads(params)
	if n := (r.innerIter % window) + 1; n > 1 {
		scale := 1 / float32(n)
		for _, g := range grads {
			d := g.Data()
			for i := range d {
				d[i] *= scale
			}
		}
	}
	if h.GradClip != nil {
		norm, err := optim.ClipGradNorm(grads, h.GradClip.MaxNorm, h.GradClip.NormType)
		if err != nil {
			return err
		}
		h.gradNorm = norm
	}
	if err := r.optimizer.Step(grads); err != nil {
		return fmt.Errorf("optimizer step at iter %d: %w", r.iter+1, err)
	}
	r.optimizer.ZeroGrad()

	if sophia, ok := r.optimizer.(*optim.SophiaG); ok && (r.iter+1)%h.HessianInterval == 0 {
		b := r.Batch()
		labels := models.SampleLabels(r.model.Predict(b.Images), r.rng)
		hg, err := r.model.Gradients(b.Images, nn.HardTarget(labels))
		if err != nil {
			return fmt.Errorf("hessian estimate: %w", err)
		}
		sophia.UpdateHessian(hg)
	}
	return nil
}

// LoggerHook logs the mean training loss every Interval iterations and
// evaluation metrics after each epoch.
type LoggerHook struct {
	BaseHook
	Interval int

	losses []float64
}

// Priority runs the hook last.
func (h *LoggerHook) Priority() int { return PriorityVeryLow }

// AfterIter buffers the loss and logs at the interval.
func (h *LoggerHook) AfterIter(r *EpochBasedRunner) error {
	h.losses = append(h.losses, r.outputs.Loss)
	interval := max(h.Interval, 1)
	if (r.innerIter+1)%interval != 0 && r.innerIter+1 != r.loader.Len() {
		return nil
	}
	line := fmt.Sprintf("Epoch [%d][%d/%d]\tlr: %.3e, loss: %.4f",
		r.epoch+1, r.innerIter+1, r.loader.Len(), r.optimizer.GetLR(), stat.Mean(h.losses, nil))
	if r.outputs.Mode != "" {
		line += fmt.Sprintf(", mode: %s, lam: %.3f", r.outputs.Mode, r.outputs.Lam)
	}
	r.logger.Print(line)
	h.losses = h.losses[:0]
	return nil
}

// AfterEpoch logs the latest metrics.
func (h *LoggerHook) AfterEpoch(r *EpochBasedRunner) error {
	if len(r.metrics) == 0 {
		return nil
	}
	parts := make([]string, 0, len(r.metrics))
	for _, name := range sortedKeys(r.metrics) {
		parts = append(parts, fmt.Sprintf("%s: %.4f", name, r.metrics[name]))
	}
	r.logger.Printf("Epoch(val) [%d]\t%s", r.epoch, strings.Join(parts, ", "))
	return nil
}

// EvalHook measures top-1 accuracy and loss on a validation loader every
// Interval epochs and after the last one.
type EvalHook struct {
	BaseHook
	Loader   *data.Loader
	Interval int
}

// Priority runs the hook before checkpointing and logging.
func (h *EvalHook) Priority() int { return PriorityNormal }

// AfterEpoch evaluates.
func (h *EvalHook) AfterEpoch(r *EpochBasedRunner) error {
	interval := max(h.Interval, 1)
	if r.epoch%interval != 0 && r.epoch != r.maxEpochs {
		return nil
	}
	acc, loss, err := Evaluate(r.model, h.Loader)
	if err != nil {
		return fmt.Errorf("evaluation: %w", err)
	}
	r.SetMetric("accuracy_top-1", acc)
	r.SetMetric("val_loss", loss)
	return nil
}

// Evaluate returns the sample-weighted top-1 accuracy and loss of model
// over loader.
func Evaluate(model *models.Classifier, loader *data.Loader) (accuracy, loss float64, err error) {
	var accs, losses, weights []float64
	for b := range loader.Epoch() {
		logits := model.Predict(b.Images)
		l, _, err := model.Head().Loss(logits, nn.HardTarget(b.Labels))
		if err != nil {
			return 0, 0, err
		}
		accs = append(accs, models.Accuracy(logits, b.Labels))
		losses = append(losses, l)
		weights = append(weights, float64(b.Len()))
	}
	if len(accs) == 0 {
		return 0, 0, fmt.Errorf("empty validation set")
	}
	return stat.Mean(accs, weights), stat.Mean(losses, weights), nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
