// Package optim implements optimization algorithms for training neural networks.
//
// Every optimizer applies a published per-step update rule element-wise to
// the parameters and their auxiliary state (moments, variance estimates,
// Hessian diagonals). Parameters are organized in groups that share a
// learning rate, weight decay and momentum so per-layer settings and
// learning-rate schedules can be applied.
//
// Example usage:
//
//	opt, err := optim.NewAdamW(optim.Params(model.Parameters()...), optim.DefaultAdamWConfig())
//	...
//	for step := range steps {
//	    loss := forwardBackward(model, batch)
//	    if err := opt.Step(nn.CollectGrads(model.Parameters())); err != nil {
//	        return err
//	    }
//	    opt.ZeroGrad()
//	}
package optim

import (
	"errors"
	"fmt"

	"github.com/mixgo-ml/mixgo/internal/nn"
	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// ErrInvalidHyperparameter reports an out-of-range optimizer argument.
var ErrInvalidHyperparameter = errors.New("invalid hyperparameter")

// Gradients maps parameter tensors to their gradients.
type Gradients = map[*tensor.Tensor]*tensor.Tensor

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies one update to every parameter that has a gradient.
	// Parameters missing from grads, or frozen, are skipped.
	Step(grads Gradients) error

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the learning rate of the first parameter group.
	GetLR() float32

	// SetLR sets the learning rate of every parameter group.
	SetLR(lr float32)

	// ParamGroups returns the parameter groups, for schedulers.
	ParamGroups() []*ParamGroup

	// Name returns the registered type name.
	Name() string

	// StateDict exports the optimizer state.
	StateDict() map[string]*tensor.Tensor

	// LoadStateDict restores state exported by StateDict.
	LoadStateDict(state map[string]*tensor.Tensor) error
}

// ParamSet is a set of parameters with optional hyperparameter overrides.
// A nil override takes the optimizer's configured value.
type ParamSet struct {
	Name        string
	Params      []*nn.Parameter
	LR          *float32
	WeightDecay *float32
	Momentum    *float32
}

// Params wraps parameters into a single ParamSet without overrides.
func Params(ps ...*nn.Parameter) []ParamSet {
	return []ParamSet{{Name: "default", Params: ps}}
}

// Float32 returns a pointer to v, for ParamSet overrides.
func Float32(v float32) *float32 {
	return &v
}

// ParamGroup is a resolved parameter group.
type ParamGroup struct {
	Name        string
	Params      []*nn.Parameter
	LR          float32
	InitialLR   float32 // LR at construction, the base for schedulers
	WeightDecay float32
	Momentum    float32
}

func pick(override *float32, def float32) float32 {
	if override != nil {
		return *override
	}
	return def
}

func invalid(opt, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", opt, ErrInvalidHyperparameter, fmt.Sprintf(format, args...))
}

func checkLR(opt string, lr float32) error {
	if lr < 0 {
		return invalid(opt, "learning rate must be >= 0, got %v", lr)
	}
	return nil
}

func checkEps(opt string, eps float32) error {
	if eps < 0 {
		return invalid(opt, "epsilon must be >= 0, got %v", eps)
	}
	return nil
}

func checkBetas(opt string, betas ...float32) error {
	for i, b := range betas {
		if b < 0 || b >= 1 {
			return invalid(opt, "beta[%d] must be in [0, 1), got %v", i, b)
		}
	}
	return nil
}

func checkWeightDecay(opt string, wd float32) error {
	if wd < 0 {
		return invalid(opt, "weight decay must be >= 0, got %v", wd)
	}
	return nil
}
