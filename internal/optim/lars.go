package optim

// LARS scales each layer's gradient by a local learning rate
// trust_coeff·||param|| / (||grad|| + wd·||param|| + eps) before the
// momentum update.
//
// Reference: "Large Batch Training of Convolutional Networks" (You et al.,
// 2017).
type LARS struct {
	base
	cfg LARSConfig
}

// LARSConfig holds configuration for LARS.
type LARSConfig struct {
	LR          float32
	Momentum    float32
	Dampening   float32
	WeightDecay float32
	Nesterov    bool
	TrustCoeff  float32
	Eps         float32
	TrustClip   bool
	AlwaysAdapt bool
}

// DefaultLARSConfig returns the reference defaults.
func DefaultLARSConfig() LARSConfig {
	return LARSConfig{LR: 1.0, TrustCoeff: 1e-3, Eps: 1e-8}
}

// NewLARS creates a LARS optimizer.
func NewLARS(params []ParamSet, config LARSConfig) (*LARS, error) {
	if config.Momentum < 0 {
		return nil, invalid("LARS", "momentum must be >= 0, got %v", config.Momentum)
	}
	if config.Nesterov && (config.Momentum <= 0 || config.Dampening != 0) {
		return nil, invalid("LARS", "nesterov requires momentum > 0 and zero dampening")
	}
	if err := checkEps("LARS", config.Eps); err != nil {
		return nil, err
	}
	b, err := newBase("LARS", params, config.LR, config.WeightDecay, config.Momentum)
	if err != nil {
		return nil, err
	}
	return &LARS{base: b, cfg: config}, nil
}

// Step performs a single optimization step.
func (l *LARS) Step(grads Gradients) error {
	return l.each(grads, func(u update) error {
		lr, wd, momentum := u.group.LR, u.group.WeightDecay, u.group.Momentum
		d := append([]float32(nil), u.grad...)

		if wd != 0 || l.cfg.AlwaysAdapt {
			wNorm, gNorm := norm32(u.data), norm32(u.grad)
			trust := float32(1)
			if wNorm > 0 && gNorm > 0 {
				trust = l.cfg.TrustCoeff * wNorm / (gNorm + wNorm*wd + l.cfg.Eps)
			}
			if l.cfg.TrustClip {
				trust = min(trust/lr, 1)
			}
			for i := range d {
				d[i] = (d[i] + wd*u.data[i]) * trust
			}
		}

		if momentum != 0 {
			first := !u.state.has("momentum_buffer")
			buf := u.state.buffer("momentum_buffer", u.param.Tensor().Shape()).Data()
			for i := range d {
				if first {
					buf[i] = d[i]
				} else {
					buf[i] = momentum*buf[i] + (1-l.cfg.Dampening)*d[i]
				}
				if l.cfg.Nesterov {
					d[i] += momentum * buf[i]
				} else {
					d[i] = buf[i]
				}
			}
		}

		for i := range u.data {
			u.data[i] -= lr * d[i]
		}
		return nil
	})
}
