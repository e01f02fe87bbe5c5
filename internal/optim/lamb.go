package optim

import (
	"math"
)

// LAMB scales each layer's Adam update by the trust ratio
// ||param|| / ||update||, with gradients first clipped by their global
// norm.
//
// Reference: "Large Batch Optimization for Deep Learning: Training BERT in
// 76 minutes" (You et al., 2019).
type LAMB struct {
	base
	cfg LAMBConfig
}

// LAMBConfig holds configuration for LAMB.
type LAMBConfig struct {
	LR             float32
	BiasCorrection bool
	Betas          [2]float32
	Eps            float32
	WeightDecay    float32
	GradAveraging  bool
	MaxGradNorm    float32 // 0 disables global clipping
	TrustClip      bool
	AlwaysAdapt    bool
}

// DefaultLAMBConfig returns the reference defaults.
func DefaultLAMBConfig() LAMBConfig {
	return LAMBConfig{
		LR:             1e-3,
		BiasCorrection: true,
		Betas:          [2]float32{0.9, 0.999},
		Eps:            1e-6,
		WeightDecay:    0.01,
		GradAveraging:  true,
		MaxGradNorm:    1.0,
	}
}

// NewLAMB creates a LAMB optimizer.
func NewLAMB(params []ParamSet, config LAMBConfig) (*LAMB, error) {
	if err := checkBetas("LAMB", config.Betas[:]...); err != nil {
		return nil, err
	}
	if err := checkEps("LAMB", config.Eps); err != nil {
		return nil, err
	}
	b, err := newBase("LAMB", params, config.LR, config.WeightDecay, 0)
	if err != nil {
		return nil, err
	}
	return &LAMB{base: b, cfg: config}, nil
}

// globalGradNorm returns the 2-norm over all gradients of trainable
// parameters.
func (b *base) globalGradNorm(grads Gradients) float64 {
	var sq float64
	for _, p := range b.params() {
		g := grads[p.Tensor()]
		if !p.RequiresGrad() || g == nil {
			continue
		}
		n := g.Norm()
		sq += n * n
	}
	return math.Sqrt(sq)
}

// Step performs a single optimization step.
func (l *LAMB) Step(grads Gradients) error {
	beta1, beta2 := l.cfg.Betas[0], l.cfg.Betas[1]
	clipScale := float32(1)
	if l.cfg.MaxGradNorm > 0 {
		clipScale = float32(math.Max(l.globalGradNorm(grads)/float64(l.cfg.MaxGradNorm), 1))
	}
	beta3 := float32(1)
	if l.cfg.GradAveraging {
		beta3 = 1 - beta1
	}

	return l.each(grads, func(u update) error {
		shape := u.param.Tensor().Shape()
		m := u.state.buffer("exp_avg", shape).Data()
		v := u.state.buffer("exp_avg_sq", shape).Data()

		lr, wd := u.group.LR, u.group.WeightDecay
		bc1, bc2Sqrt := float32(1), float32(1)
		if l.cfg.BiasCorrection {
			step := float64(u.state.step)
			bc1 = float32(1 - math.Pow(float64(beta1), step))
			bc2Sqrt = float32(math.Sqrt(1 - math.Pow(float64(beta2), step)))
		}

		upd := make([]float32, len(u.grad))
		for i, g := range u.grad {
			g /= clipScale
			m[i] = beta1*m[i] + beta3*g
			v[i] = beta2*v[i] + (1-beta2)*g*g
			upd[i] = (m[i] / bc1) / (sqrt32(v[i])/bc2Sqrt + l.cfg.Eps)
			if wd != 0 {
				upd[i] += wd * u.data[i]
			}
		}

		trust := float32(1)
		if wd != 0 || l.cfg.AlwaysAdapt {
			wNorm, uNorm := norm32(u.data), norm32(upd)
			if wNorm > 0 && uNorm > 0 {
				trust = wNorm / uNorm
			}
			if l.cfg.TrustClip {
				trust = min(trust, 1)
			}
		}
		for i := range u.data {
			u.data[i] -= lr * trust * upd[i]
		}
		return nil
	})
}
