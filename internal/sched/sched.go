// Package sched implements learning-rate policies with optional warmup.
//
// A Scheduler is built from an `lr_config` mapping:
//
//	lr_config:
//	  policy: CosineAnnealing
//	  min_lr: 1.0e-6
//	  warmup: linear
//	  warmup_iters: 5
//	  warmup_by_epoch: true
//	  warmup_ratio: 1.0e-5
//
// The regular learning rate is a function of the epoch (by_epoch: true, the
// default) or the iteration. During warmup the regular rate is scaled down
// per iteration.
package sched

import (
	"fmt"
	"math"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/optim"
	"github.com/mixgo-ml/mixgo/internal/registry"
)

// Progress is the training position a learning rate is computed for.
type Progress struct {
	Epoch     int // completed epochs
	Iter      int // completed iterations over the whole run
	EpochLen  int // iterations per epoch
	MaxEpochs int
	MaxIters  int
}

// Policy computes the regular (post-warmup) learning rate.
type Policy interface {
	// LR returns the rate for base at progress out of maxProgress.
	LR(base float64, progress, maxProgress int) float64
}

// PolicyFactory builds a policy from its lr_config arguments.
type PolicyFactory func(f *config.Fields) (Policy, error)

var policies = registry.New[PolicyFactory]("lr policy")

// RegisterPolicy adds a policy under name.
func RegisterPolicy(name string, f PolicyFactory) {
	policies.Register(name, f)
}

// Policies lists the registered policy names.
func Policies() []string {
	return policies.Names()
}

// Warmup kinds.
const (
	WarmupConstant = "constant"
	WarmupLinear   = "linear"
	WarmupExp      = "exp"
)

// Warmup scales the learning rate during the first iterations.
type Warmup struct {
	Kind    string
	Iters   int     // warmup length, in epochs when ByEpoch
	Ratio   float64 // starting fraction of the regular rate
	ByEpoch bool
}

// factor returns the multiplier applied to the regular rate at iter.
func (w *Warmup) factor(iter, warmupIters int) float64 {
	progress := float64(iter) / float64(warmupIters)
	switch w.Kind {
	case WarmupConstant:
		return w.Ratio
	case WarmupLinear:
		return 1 - (1-progress)*(1-w.Ratio)
	case WarmupExp:
		return math.Pow(w.Ratio, 1-progress)
	}
	return 1
}

// Scheduler combines a policy with an optional warmup.
type Scheduler struct {
	policy  Policy
	byEpoch bool
	warmup  *Warmup
}

// NewScheduler creates a scheduler from a policy. warmup may be nil.
func NewScheduler(policy Policy, byEpoch bool, warmup *Warmup) *Scheduler {
	return &Scheduler{policy: policy, byEpoch: byEpoch, warmup: warmup}
}

// New builds a scheduler from an lr_config mapping.
func New(cfg config.Config) (*Scheduler, error) {
	f := cfg.Fields()
	name := f.String("policy", "fixed")
	byEpoch := f.Bool("by_epoch", true)
	var warmup *Warmup
	if kind := f.String("warmup", ""); kind != "" {
		warmup = &Warmup{
			Kind:    kind,
			Iters:   f.Int("warmup_iters", 0),
			Ratio:   f.Float("warmup_ratio", 0.1),
			ByEpoch: f.Bool("warmup_by_epoch", false),
		}
	}
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("lr_config: %w", err)
	}

	if warmup != nil {
		switch warmup.Kind {
		case WarmupConstant, WarmupLinear, WarmupExp:
		default:
			return nil, fmt.Errorf("lr_config: %w: warmup %q (want constant, linear or exp)", config.ErrInvalidConfig, warmup.Kind)
		}
		if warmup.Iters <= 0 {
			return nil, fmt.Errorf("lr_config: %w: warmup_iters must be > 0", config.ErrInvalidConfig)
		}
		if warmup.Ratio <= 0 || warmup.Ratio > 1 {
			return nil, fmt.Errorf("lr_config: %w: warmup_ratio must be in (0, 1]", config.ErrInvalidConfig)
		}
	}

	factory, err := policies.Get(name)
	if err != nil {
		return nil, fmt.Errorf("lr_config: %w", err)
	}
	policy, err := factory(f)
	if err != nil {
		return nil, fmt.Errorf("lr_config: %w", err)
	}
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("lr_config: %w", err)
	}
	return NewScheduler(policy, byEpoch, warmup), nil
}

// ByEpoch reports whether the regular rate changes per epoch.
func (s *Scheduler) ByEpoch() bool { return s.byEpoch }

// LR returns the learning rate for base at p.
func (s *Scheduler) LR(base float64, p Progress) float64 {
	progress, maxProgress := p.Iter, p.MaxIters
	if s.byEpoch {
		progress, maxProgress = p.Epoch, p.MaxEpochs
	}
	lr := s.policy.LR(base, progress, maxProgress)

	if s.warmup != nil {
		warmupIters := s.warmup.Iters
		if s.warmup.ByEpoch {
			warmupIters *= p.EpochLen
		}
		if p.Iter < warmupIters {
			lr *= s.warmup.factor(p.Iter, warmupIters)
		}
	}
	return lr
}

// Apply sets every group's learning rate from its initial rate.
func (s *Scheduler) Apply(opt optim.Optimizer, p Progress) {
	for _, g := range opt.ParamGroups() {
		g.LR = float32(s.LR(float64(g.InitialLR), p))
	}
}
