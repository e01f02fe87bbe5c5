package optim

import (
	"math"
)

// AdaBelief adapts the step size by the "belief" in the gradient: the
// second moment tracks (grad - m)² instead of grad².
//
//	m = β1·m + (1-β1)·g
//	s = β2·s + (1-β2)·(g-m)² + eps
//	param -= lr/(1-β1^t) · m / (sqrt(s)/sqrt(1-β2^t) + eps)
//
// With Rectify the step follows RAdam: while the variance estimate is not
// tractable (SMA < 5) the update falls back to SGD with momentum, or is
// skipped when DegeneratedToSGD is false.
//
// Reference: "AdaBelief Optimizer: Adapting Stepsizes by the Belief in
// Observed Gradients" (Zhuang et al., 2020).
type AdaBelief struct {
	base
	cfg AdaBeliefConfig
}

// AdaBeliefConfig holds configuration for AdaBelief.
type AdaBeliefConfig struct {
	LR               float32
	Betas            [2]float32
	Eps              float32
	WeightDecay      float32
	AMSGrad          bool
	DecoupledDecay   bool
	FixedDecay       bool
	Rectify          bool
	DegeneratedToSGD bool
}

// DefaultAdaBeliefConfig returns the reference defaults.
func DefaultAdaBeliefConfig() AdaBeliefConfig {
	return AdaBeliefConfig{
		LR:               1e-3,
		Betas:            [2]float32{0.9, 0.999},
		Eps:              1e-16,
		DecoupledDecay:   true,
		Rectify:          true,
		DegeneratedToSGD: true,
	}
}

// NewAdaBelief creates an AdaBelief optimizer.
func NewAdaBelief(params []ParamSet, config AdaBeliefConfig) (*AdaBelief, error) {
	if err := checkBetas("AdaBelief", config.Betas[:]...); err != nil {
		return nil, err
	}
	if err := checkEps("AdaBelief", config.Eps); err != nil {
		return nil, err
	}
	b, err := newBase("AdaBelief", params, config.LR, config.WeightDecay, 0)
	if err != nil {
		return nil, err
	}
	return &AdaBelief{base: b, cfg: config}, nil
}

// Step performs a single optimization step.
func (a *AdaBelief) Step(grads Gradients) error {
	beta1, beta2, eps := a.cfg.Betas[0], a.cfg.Betas[1], a.cfg.Eps
	return a.each(grads, func(u update) error {
		shape := u.param.Tensor().Shape()
		m := u.state.buffer("exp_avg", shape).Data()
		s := u.state.buffer("exp_avg_var", shape).Data()
		var smax []float32
		if a.cfg.AMSGrad {
			smax = u.state.buffer("max_exp_avg_var", shape).Data()
		}

		lr, wd := u.group.LR, u.group.WeightDecay
		step := float64(u.state.step)
		bc1 := 1 - math.Pow(float64(beta1), step)
		beta2t := math.Pow(float64(beta2), step)
		bc2Sqrt := float32(math.Sqrt(1 - beta2t))

		// RAdam rectification term.
		stepSize := float32(-1)
		smaMax := 2/(1-float64(beta2)) - 1
		sma := smaMax - 2*step*beta2t/(1-beta2t)
		tractable := sma >= 5
		if a.cfg.Rectify {
			if tractable {
				stepSize = float32(math.Sqrt((1-beta2t)*(sma-4)/(smaMax-4)*(sma-2)/sma*smaMax/(smaMax-2)) / bc1)
			} else if a.cfg.DegeneratedToSGD {
				stepSize = float32(1 / bc1)
			}
		}

		for i, g := range u.grad {
			if a.cfg.DecoupledDecay {
				if a.cfg.FixedDecay {
					u.data[i] *= 1 - wd
				} else {
					u.data[i] *= 1 - lr*wd
				}
			} else {
				g += wd * u.data[i]
			}

			m[i] = beta1*m[i] + (1-beta1)*g
			r := g - m[i]
			s[i] = beta2*s[i] + (1-beta2)*r*r + eps

			if !a.cfg.Rectify {
				var denom float32
				if a.cfg.AMSGrad {
					smax[i] = max(smax[i], s[i])
					denom = sqrt32(smax[i])/bc2Sqrt + eps
				} else {
					denom = sqrt32(s[i])/bc2Sqrt + eps
				}
				u.data[i] -= lr / float32(bc1) * m[i] / denom
				continue
			}

			switch {
			case tractable:
				u.data[i] -= stepSize * lr * m[i] / (sqrt32(s[i]) + eps)
			case stepSize > 0:
				u.data[i] -= stepSize * lr * m[i]
			}
		}
		return nil
	})
}
