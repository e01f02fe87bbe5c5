package optim

// SGD implements Stochastic Gradient Descent with optional momentum,
// dampening, Nesterov momentum and L2 weight decay.
//
// Update rule:
//
//	d = grad + weight_decay * param
//	buf = d                                    (first step)
//	buf = momentum * buf + (1 - dampening) * d (later steps)
//	d = d + momentum * buf  (nesterov)  or  d = buf
//	param = param - lr * d
//
// Example:
//
//	optimizer, err := optim.NewSGD(optim.Params(model.Parameters()...), optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
type SGD struct {
	base
	dampening float32
	nesterov  bool
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR          float32 // Learning rate (default: 0.01)
	Momentum    float32 // Momentum factor (default: 0.0, range: [0, 1))
	Dampening   float32
	WeightDecay float32
	Nesterov    bool
}

// DefaultSGDConfig returns the SGD defaults.
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{LR: 0.01}
}

// NewSGD creates a new SGD optimizer.
func NewSGD(params []ParamSet, config SGDConfig) (*SGD, error) {
	if config.Momentum < 0 {
		return nil, invalid("SGD", "momentum must be >= 0, got %v", config.Momentum)
	}
	if config.Nesterov && (config.Momentum <= 0 || config.Dampening != 0) {
		return nil, invalid("SGD", "nesterov momentum requires a momentum and zero dampening")
	}
	b, err := newBase("SGD", params, config.LR, config.WeightDecay, config.Momentum)
	if err != nil {
		return nil, err
	}
	return &SGD{base: b, dampening: config.Dampening, nesterov: config.Nesterov}, nil
}

// Step performs a single optimization step.
func (s *SGD) Step(grads Gradients) error {
	return s.each(grads, func(u update) error {
		lr, wd, momentum := u.group.LR, u.group.WeightDecay, u.group.Momentum
		var buf []float32
		first := false
		if momentum != 0 {
			first = !u.state.has("momentum_buffer")
			buf = u.state.buffer("momentum_buffer", u.param.Tensor().Shape()).Data()
		}
		for i, g := range u.grad {
			d := g + wd*u.data[i]
			if momentum != 0 {
				if first {
					buf[i] = d
				} else {
					buf[i] = momentum*buf[i] + (1-s.dampening)*d
				}
				if s.nesterov {
					d += momentum * buf[i]
				} else {
					d = buf[i]
				}
			}
			u.data[i] -= lr * d
		}
		return nil
	})
}
