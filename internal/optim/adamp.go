package optim

import (
	"math"
)

// AdamP is Adam with the radial component of the update removed for
// scale-invariant weights (those followed by normalization), which
// otherwise only grow the weight norm and shrink the effective step size.
// Weight decay on projected weights is scaled by WDRatio.
//
// Reference: "AdamP: Slowing Down the Slowdown for Momentum Optimizers on
// Scale-invariant Weights" (Heo et al., 2021).
type AdamP struct {
	base
	cfg AdamPConfig
}

// AdamPConfig holds configuration for AdamP.
type AdamPConfig struct {
	LR          float32
	Betas       [2]float32
	Eps         float32
	WeightDecay float32
	Delta       float32 // Cosine threshold for the projection (default: 0.1)
	WDRatio     float32 // Weight decay factor on projected weights (default: 0.1)
	Nesterov    bool
}

// DefaultAdamPConfig returns the reference defaults.
func DefaultAdamPConfig() AdamPConfig {
	return AdamPConfig{
		LR:      1e-3,
		Betas:   [2]float32{0.9, 0.999},
		Eps:     1e-8,
		Delta:   0.1,
		WDRatio: 0.1,
	}
}

// NewAdamP creates an AdamP optimizer.
func NewAdamP(params []ParamSet, config AdamPConfig) (*AdamP, error) {
	if err := checkBetas("AdamP", config.Betas[:]...); err != nil {
		return nil, err
	}
	if err := checkEps("AdamP", config.Eps); err != nil {
		return nil, err
	}
	b, err := newBase("AdamP", params, config.LR, config.WeightDecay, 0)
	if err != nil {
		return nil, err
	}
	return &AdamP{base: b, cfg: config}, nil
}

// Step performs a single optimization step.
func (a *AdamP) Step(grads Gradients) error {
	beta1, beta2 := a.cfg.Betas[0], a.cfg.Betas[1]
	return a.each(grads, func(u update) error {
		shape := u.param.Tensor().Shape()
		m := u.state.buffer("exp_avg", shape).Data()
		v := u.state.buffer("exp_avg_sq", shape).Data()

		lr, wd := u.group.LR, u.group.WeightDecay
		step := float64(u.state.step)
		bc1 := 1 - math.Pow(float64(beta1), step)
		bc2Sqrt := float32(math.Sqrt(1 - math.Pow(float64(beta2), step)))

		perturb := make([]float32, len(u.grad))
		for i, g := range u.grad {
			m[i] = beta1*m[i] + (1-beta1)*g
			v[i] = beta2*v[i] + (1-beta2)*g*g
			denom := sqrt32(v[i])/bc2Sqrt + a.cfg.Eps
			if a.cfg.Nesterov {
				perturb[i] = (beta1*m[i] + (1-beta1)*g) / denom
			} else {
				perturb[i] = m[i] / denom
			}
		}

		wdRatio := float32(1)
		if len(shape) > 1 {
			wdRatio = projectRadial(u.data, u.grad, perturb, shape, a.cfg.Delta, a.cfg.WDRatio, a.cfg.Eps)
		}
		stepSize := lr / float32(bc1)
		for i := range u.data {
			if wd > 0 {
				u.data[i] *= 1 - lr*wd*wdRatio
			}
			u.data[i] -= stepSize * perturb[i]
		}
		return nil
	})
}
