package optim

import (
	"math"
)

// AdaBound clips the per-element Adam step size into bounds that converge
// to FinalLR, so training transitions from Adam to SGD.
//
//	lower = final_lr·(1 - 1/(γ·t + 1))
//	upper = final_lr·(1 + 1/(γ·t))
//	param -= clip(lr·sqrt(1-β2^t)/(1-β1^t) / (sqrt(v)+eps), lower, upper) · m
//
// final_lr is rescaled with the group's learning rate relative to its
// initial value, so schedulers move the bounds too. AdaBoundW applies
// weight decay to the parameter directly instead of to the gradient.
//
// Reference: "Adaptive Gradient Methods with Dynamic Bound of Learning
// Rate" (Luo et al., 2019).
type AdaBound struct {
	base
	cfg       AdaBoundConfig
	decoupled bool
}

// AdaBoundConfig holds configuration for AdaBound and AdaBoundW.
type AdaBoundConfig struct {
	LR          float32
	Betas       [2]float32
	FinalLR     float32
	Gamma       float32
	Eps         float32
	WeightDecay float32
	AMSBound    bool
}

// DefaultAdaBoundConfig returns the reference defaults.
func DefaultAdaBoundConfig() AdaBoundConfig {
	return AdaBoundConfig{
		LR:      1e-3,
		Betas:   [2]float32{0.9, 0.999},
		FinalLR: 0.1,
		Gamma:   1e-3,
		Eps:     1e-8,
	}
}

// NewAdaBound creates an AdaBound optimizer.
func NewAdaBound(params []ParamSet, config AdaBoundConfig) (*AdaBound, error) {
	return newAdaBound("AdaBound", params, config, false)
}

// NewAdaBoundW creates an AdaBound optimizer with decoupled weight decay.
func NewAdaBoundW(params []ParamSet, config AdaBoundConfig) (*AdaBound, error) {
	return newAdaBound("AdaBoundW", params, config, true)
}

func newAdaBound(name string, params []ParamSet, config AdaBoundConfig, decoupled bool) (*AdaBound, error) {
	if err := checkBetas(name, config.Betas[:]...); err != nil {
		return nil, err
	}
	if err := checkEps(name, config.Eps); err != nil {
		return nil, err
	}
	if config.FinalLR < 0 {
		return nil, invalid(name, "final learning rate must be >= 0, got %v", config.FinalLR)
	}
	if config.Gamma < 0 || config.Gamma >= 1 {
		return nil, invalid(name, "gamma must be in [0, 1), got %v", config.Gamma)
	}
	b, err := newBase(name, params, config.LR, config.WeightDecay, 0)
	if err != nil {
		return nil, err
	}
	return &AdaBound{base: b, cfg: config, decoupled: decoupled}, nil
}

// Step performs a single optimization step.
func (a *AdaBound) Step(grads Gradients) error {
	beta1, beta2, eps := a.cfg.Betas[0], a.cfg.Betas[1], a.cfg.Eps
	return a.each(grads, func(u update) error {
		shape := u.param.Tensor().Shape()
		m := u.state.buffer("exp_avg", shape).Data()
		v := u.state.buffer("exp_avg_sq", shape).Data()
		var vmax []float32
		if a.cfg.AMSBound {
			vmax = u.state.buffer("max_exp_avg_sq", shape).Data()
		}

		lr, wd := u.group.LR, u.group.WeightDecay
		step := float64(u.state.step)
		bc1 := 1 - math.Pow(float64(beta1), step)
		bc2 := 1 - math.Pow(float64(beta2), step)
		stepSize := float32(float64(lr) * math.Sqrt(bc2) / bc1)

		finalLR := a.cfg.FinalLR
		if u.group.InitialLR > 0 {
			finalLR = a.cfg.FinalLR * lr / u.group.InitialLR
		}
		gamma := float64(a.cfg.Gamma)
		lower := finalLR * float32(1-1/(gamma*step+1))
		upper := finalLR * float32(1+1/(gamma*step))

		for i, g := range u.grad {
			p := u.data[i]
			if !a.decoupled {
				g += wd * p
			}
			m[i] = beta1*m[i] + (1-beta1)*g
			v[i] = beta2*v[i] + (1-beta2)*g*g
			second := v[i]
			if a.cfg.AMSBound {
				vmax[i] = max(vmax[i], v[i])
				second = vmax[i]
			}
			bounded := min(max(stepSize/(sqrt32(second)+eps), lower), upper)
			u.data[i] = p - bounded*m[i]
			if a.decoupled {
				u.data[i] -= wd * p
			}
		}
		return nil
	})
}
