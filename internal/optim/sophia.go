package optim

// SophiaG is a second-order clipped optimizer that preconditions momentum
// with a diagonal Hessian estimate and clips the per-element ratio:
//
//	param *= 1 - lr·wd
//	m = β1·m + (1-β1)·g
//	param -= lr·sign(m)·min(|m| / (ρ·bs·h + 1e-15), 1)
//
// The estimate h is refreshed by UpdateHessian with gradients of a loss
// on labels sampled from the model (Gauss-Newton-Bartlett), typically
// every few steps.
//
// Reference: "Sophia: A Scalable Stochastic Second-order Optimizer for
// Language Model Pre-training" (Liu et al., 2023).
type SophiaG struct {
	base
	cfg SophiaConfig
}

// SophiaConfig holds configuration for SophiaG.
type SophiaConfig struct {
	LR          float32
	Betas       [2]float32
	Rho         float32
	WeightDecay float32
	BatchSize   int // Tokens or samples per step, scales rho (default: 5120)
}

// DefaultSophiaConfig returns the reference defaults.
func DefaultSophiaConfig() SophiaConfig {
	return SophiaConfig{
		LR:          1e-4,
		Betas:       [2]float32{0.965, 0.99},
		Rho:         0.04,
		WeightDecay: 0.1,
		BatchSize:   5120,
	}
}

// NewSophiaG creates a SophiaG optimizer.
func NewSophiaG(params []ParamSet, config SophiaConfig) (*SophiaG, error) {
	if err := checkBetas("SophiaG", config.Betas[:]...); err != nil {
		return nil, err
	}
	if config.Rho < 0 {
		return nil, invalid("SophiaG", "rho must be >= 0, got %v", config.Rho)
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 5120
	}
	b, err := newBase("SophiaG", params, config.LR, config.WeightDecay, 0)
	if err != nil {
		return nil, err
	}
	return &SophiaG{base: b, cfg: config}, nil
}

// UpdateHessian folds grads into the Hessian estimate:
// h = β2·h + (1-β2)·g².
func (s *SophiaG) UpdateHessian(grads Gradients) {
	beta2 := s.cfg.Betas[1]
	for _, p := range s.params() {
		g := grads[p.Tensor()]
		if !p.RequiresGrad() || g == nil {
			continue
		}
		h := s.stateFor(p).buffer("hessian", p.Tensor().Shape()).Data()
		for i, gi := range g.Data() {
			h[i] = beta2*h[i] + (1-beta2)*gi*gi
		}
	}
}

// Step performs a single optimization step.
func (s *SophiaG) Step(grads Gradients) error {
	beta1 := s.cfg.Betas[0]
	rhoBS := s.cfg.Rho * float32(s.cfg.BatchSize)
	return s.each(grads, func(u update) error {
		shape := u.param.Tensor().Shape()
		m := u.state.buffer("exp_avg", shape).Data()
		h := u.state.buffer("hessian", shape).Data()
		lr, wd := u.group.LR, u.group.WeightDecay
		for i, g := range u.grad {
			u.data[i] *= 1 - lr*wd
			m[i] = beta1*m[i] + (1-beta1)*g
			abs := m[i]
			if abs < 0 {
				abs = -abs
			}
			ratio := min(abs/(rhoBS*h[i]+1e-15), 1)
			u.data[i] -= lr * sign32(m[i]) * ratio
		}
		return nil
	})
}
