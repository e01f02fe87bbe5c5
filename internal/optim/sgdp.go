package optim

// SGDP is SGD with momentum plus the AdamP projection for scale-invariant
// weights.
type SGDP struct {
	base
	cfg SGDPConfig
}

// SGDPConfig holds configuration for SGDP.
type SGDPConfig struct {
	LR          float32
	Momentum    float32
	Dampening   float32
	WeightDecay float32
	Nesterov    bool
	Eps         float32
	Delta       float32
	WDRatio     float32
}

// DefaultSGDPConfig returns the reference defaults.
func DefaultSGDPConfig() SGDPConfig {
	return SGDPConfig{LR: 0.01, Eps: 1e-8, Delta: 0.1, WDRatio: 0.1}
}

// NewSGDP creates an SGDP optimizer.
func NewSGDP(params []ParamSet, config SGDPConfig) (*SGDP, error) {
	if config.Momentum < 0 || config.Momentum >= 1 {
		return nil, invalid("SGDP", "momentum must be in [0, 1), got %v", config.Momentum)
	}
	if err := checkEps("SGDP", config.Eps); err != nil {
		return nil, err
	}
	b, err := newBase("SGDP", params, config.LR, config.WeightDecay, config.Momentum)
	if err != nil {
		return nil, err
	}
	return &SGDP{base: b, cfg: config}, nil
}

// Step performs a single optimization step.
func (s *SGDP) Step(grads Gradients) error {
	return s.each(grads, func(u update) error {
		shape := u.param.Tensor().Shape()
		buf := u.state.buffer("momentum", shape).Data()
		lr, wd, momentum := u.group.LR, u.group.WeightDecay, u.group.Momentum

		d := make([]float32, len(u.grad))
		for i, g := range u.grad {
			buf[i] = momentum*buf[i] + (1-s.cfg.Dampening)*g
			if s.cfg.Nesterov {
				d[i] = g + momentum*buf[i]
			} else {
				d[i] = buf[i]
			}
		}

		wdRatio := float32(1)
		if len(shape) > 1 {
			wdRatio = projectRadial(u.data, u.grad, d, shape, s.cfg.Delta, s.cfg.WDRatio, s.cfg.Eps)
		}
		for i := range u.data {
			if wd != 0 {
				u.data[i] *= 1 - lr*wd*wdRatio/(1-momentum)
			}
			u.data[i] -= lr * d[i]
		}
		return nil
	})
}
