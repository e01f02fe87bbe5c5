package optim

import (
	"math"
)

// NvNovoGrad keeps a single second-moment scalar per layer, computed from
// the squared norm of the layer's gradient, and normalizes the gradient by
// it before the momentum update.
//
// Reference: "Stochastic Gradient Methods with Layer-wise Adaptive Moments
// for Training of Deep Networks" (Ginsburg et al., 2019).
type NvNovoGrad struct {
	base
	cfg NvNovoGradConfig
}

// NvNovoGradConfig holds configuration for NvNovoGrad.
type NvNovoGradConfig struct {
	LR            float32
	Betas         [2]float32
	Eps           float32
	WeightDecay   float32
	GradAveraging bool
	AMSGrad       bool
}

// DefaultNvNovoGradConfig returns the reference defaults.
func DefaultNvNovoGradConfig() NvNovoGradConfig {
	return NvNovoGradConfig{LR: 1e-3, Betas: [2]float32{0.95, 0.98}, Eps: 1e-8}
}

// NewNvNovoGrad creates an NvNovoGrad optimizer.
func NewNvNovoGrad(params []ParamSet, config NvNovoGradConfig) (*NvNovoGrad, error) {
	if err := checkBetas("NvNovoGrad", config.Betas[:]...); err != nil {
		return nil, err
	}
	if err := checkEps("NvNovoGrad", config.Eps); err != nil {
		return nil, err
	}
	b, err := newBase("NvNovoGrad", params, config.LR, config.WeightDecay, 0)
	if err != nil {
		return nil, err
	}
	return &NvNovoGrad{base: b, cfg: config}, nil
}

// Step performs a single optimization step.
func (n *NvNovoGrad) Step(grads Gradients) error {
	beta1, beta2 := n.cfg.Betas[0], n.cfg.Betas[1]
	return n.each(grads, func(u update) error {
		m := u.state.buffer("exp_avg", u.param.Tensor().Shape()).Data()
		lr, wd := u.group.LR, u.group.WeightDecay

		var norm float64
		for _, g := range u.grad {
			norm += float64(g) * float64(g)
		}
		v := u.state.scalars["exp_avg_sq"]
		if v == 0 {
			v = norm
		} else {
			v = float64(beta2)*v + float64(1-beta2)*norm
		}
		u.state.scalars["exp_avg_sq"] = v

		second := v
		if n.cfg.AMSGrad {
			second = math.Max(u.state.scalars["max_exp_avg_sq"], v)
			u.state.scalars["max_exp_avg_sq"] = second
		}
		denom := float32(math.Sqrt(second)) + n.cfg.Eps

		for i, g := range u.grad {
			g /= denom
			if wd != 0 {
				g += wd * u.data[i]
			}
			if n.cfg.GradAveraging {
				g *= 1 - beta1
			}
			m[i] = beta1*m[i] + g
			u.data[i] -= lr * m[i]
		}
		return nil
	})
}
