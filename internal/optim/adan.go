package optim

import (
	"math"
)

// Adan extrapolates with Nesterov momentum estimated from gradient
// differences:
//
//	m = β1·m + (1-β1)·g
//	d = β2·d + (1-β2)·(g - g_prev)
//	n = β3·n + (1-β3)·(g + β2·(g - g_prev))²
//	param -= lr/(1-β1^t)·m/η + lr·β2/(1-β2^t)·d/η,  η = sqrt(n)/sqrt(1-β3^t) + eps
//
// Weight decay is applied as a proximal step (param /= 1 + lr·wd) unless
// NoProx is set, in which case it is decoupled.
//
// Reference: "Adan: Adaptive Nesterov Momentum Algorithm for Faster
// Optimizing Deep Models" (Xie et al., 2022).
type Adan struct {
	base
	cfg AdanConfig
}

// AdanConfig holds configuration for Adan.
type AdanConfig struct {
	LR          float32
	Betas       [3]float32
	Eps         float32
	WeightDecay float32
	NoProx      bool
}

// DefaultAdanConfig returns the reference defaults.
func DefaultAdanConfig() AdanConfig {
	return AdanConfig{LR: 1e-3, Betas: [3]float32{0.98, 0.92, 0.99}, Eps: 1e-8}
}

// NewAdan creates an Adan optimizer.
func NewAdan(params []ParamSet, config AdanConfig) (*Adan, error) {
	if err := checkBetas("Adan", config.Betas[:]...); err != nil {
		return nil, err
	}
	if err := checkEps("Adan", config.Eps); err != nil {
		return nil, err
	}
	b, err := newBase("Adan", params, config.LR, config.WeightDecay, 0)
	if err != nil {
		return nil, err
	}
	return &Adan{base: b, cfg: config}, nil
}

// Step performs a single optimization step.
func (a *Adan) Step(grads Gradients) error {
	beta1, beta2, beta3 := a.cfg.Betas[0], a.cfg.Betas[1], a.cfg.Betas[2]
	return a.each(grads, func(u update) error {
		shape := u.param.Tensor().Shape()
		first := !u.state.has("pre_grad")
		m := u.state.buffer("exp_avg", shape).Data()
		d := u.state.buffer("exp_avg_diff", shape).Data()
		n := u.state.buffer("exp_avg_sq", shape).Data()
		prev := u.state.buffer("pre_grad", shape).Data()

		lr, wd := u.group.LR, u.group.WeightDecay
		step := float64(u.state.step)
		bc1 := 1 - math.Pow(float64(beta1), step)
		bc2 := 1 - math.Pow(float64(beta2), step)
		bc3Sqrt := float32(math.Sqrt(1 - math.Pow(float64(beta3), step)))
		stepSize := lr / float32(bc1)
		stepSizeDiff := lr * beta2 / float32(bc2)

		for i, g := range u.grad {
			var diff float32
			if !first {
				diff = g - prev[i]
			}
			m[i] = beta1*m[i] + (1-beta1)*g
			d[i] = beta2*d[i] + (1-beta2)*diff
			x := g + beta2*diff
			n[i] = beta3*n[i] + (1-beta3)*x*x
			denom := sqrt32(n[i])/bc3Sqrt + a.cfg.Eps

			if a.cfg.NoProx {
				u.data[i] *= 1 - lr*wd
			}
			u.data[i] -= stepSize*m[i]/denom + stepSizeDiff*d[i]/denom
			if !a.cfg.NoProx {
				u.data[i] /= 1 + lr*wd
			}
			prev[i] = g
		}
		return nil
	})
}
