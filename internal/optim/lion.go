package optim

// Lion tracks only momentum and applies its sign:
//
//	param *= 1 - lr·wd
//	param -= lr·sign(β1·m + (1-β1)·g)
//	m = β2·m + (1-β2)·g
//
// Reference: "Symbolic Discovery of Optimization Algorithms" (Chen et al.,
// 2023).
type Lion struct {
	base
	beta1, beta2 float32
}

// LionConfig holds configuration for Lion.
type LionConfig struct {
	LR          float32
	Betas       [2]float32
	WeightDecay float32
}

// DefaultLionConfig returns the reference defaults.
func DefaultLionConfig() LionConfig {
	return LionConfig{LR: 1e-4, Betas: [2]float32{0.9, 0.99}}
}

// NewLion creates a Lion optimizer.
func NewLion(params []ParamSet, config LionConfig) (*Lion, error) {
	if err := checkBetas("Lion", config.Betas[:]...); err != nil {
		return nil, err
	}
	b, err := newBase("Lion", params, config.LR, config.WeightDecay, 0)
	if err != nil {
		return nil, err
	}
	return &Lion{base: b, beta1: config.Betas[0], beta2: config.Betas[1]}, nil
}

// Step performs a single optimization step.
func (l *Lion) Step(grads Gradients) error {
	return l.each(grads, func(u update) error {
		m := u.state.buffer("exp_avg", u.param.Tensor().Shape()).Data()
		lr, wd := u.group.LR, u.group.WeightDecay
		for i, g := range u.grad {
			u.data[i] *= 1 - lr*wd
			u.data[i] -= lr * sign32(l.beta1*m[i]+(1-l.beta1)*g)
			m[i] = l.beta2*m[i] + (1-l.beta2)*g
		}
		return nil
	})
}

func sign32(x float32) float32 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
