package optim

import (
	"math"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer, and
// AdamW when weight decay is decoupled.
//
// Adam combines ideas from RMSprop and momentum:
//   - Maintains exponential moving averages of gradients (first moment)
//   - Maintains exponential moving averages of squared gradients (second moment)
//   - Applies bias correction to compensate for initialization at zero
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²
//	denom = sqrt(v_t) / sqrt(1 - beta2^t) + eps
//	param = param - lr / (1 - beta1^t) * m_t / denom
//
// Adam adds weight_decay * param to the gradient (L2 penalty). AdamW instead
// shrinks the parameter by lr * weight_decay before the update.
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014),
// "Decoupled Weight Decay Regularization" (Loshchilov & Hutter, 2019).
type Adam struct {
	base
	beta1, beta2 float32
	eps          float32
	amsgrad      bool
	decoupled    bool
}

// AdamConfig holds configuration for Adam and AdamW.
type AdamConfig struct {
	LR          float32    // Learning rate (default: 0.001)
	Betas       [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps         float32    // Term for numerical stability (default: 1e-8)
	WeightDecay float32
	AMSGrad     bool
}

// DefaultAdamConfig returns the Adam defaults.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{LR: 1e-3, Betas: [2]float32{0.9, 0.999}, Eps: 1e-8}
}

// DefaultAdamWConfig returns the AdamW defaults (weight decay 1e-2).
func DefaultAdamWConfig() AdamConfig {
	c := DefaultAdamConfig()
	c.WeightDecay = 1e-2
	return c
}

// NewAdam creates a new Adam optimizer with L2 weight decay. Every field of
// config is used as given, so zero betas or eps are honored; start from
// DefaultAdamConfig for the usual values.
func NewAdam(params []ParamSet, config AdamConfig) (*Adam, error) {
	return newAdam("Adam", params, config, false)
}

// NewAdamW creates a new Adam optimizer with decoupled weight decay.
func NewAdamW(params []ParamSet, config AdamConfig) (*Adam, error) {
	return newAdam("AdamW", params, config, true)
}

func newAdam(name string, params []ParamSet, config AdamConfig, decoupled bool) (*Adam, error) {
	if err := checkBetas(name, config.Betas[:]...); err != nil {
		return nil, err
	}
	if err := checkEps(name, config.Eps); err != nil {
		return nil, err
	}
	b, err := newBase(name, params, config.LR, config.WeightDecay, 0)
	if err != nil {
		return nil, err
	}
	return &Adam{
		base:      b,
		beta1:     config.Betas[0],
		beta2:     config.Betas[1],
		eps:       config.Eps,
		amsgrad:   config.AMSGrad,
		decoupled: decoupled,
	}, nil
}

// Step performs a single optimization step.
func (a *Adam) Step(grads Gradients) error {
	return a.each(grads, func(u update) error {
		shape := u.param.Tensor().Shape()
		m := u.state.buffer("exp_avg", shape).Data()
		v := u.state.buffer("exp_avg_sq", shape).Data()
		var vmax []float32
		if a.amsgrad {
			vmax = u.state.buffer("max_exp_avg_sq", shape).Data()
		}

		lr, wd := u.group.LR, u.group.WeightDecay
		bc1 := 1 - math.Pow(float64(a.beta1), float64(u.state.step))
		bc2Sqrt := float32(math.Sqrt(1 - math.Pow(float64(a.beta2), float64(u.state.step))))
		stepSize := lr / float32(bc1)

		for i, g := range u.grad {
			if a.decoupled {
				u.data[i] *= 1 - lr*wd
			} else {
				g += wd * u.data[i]
			}
			m[i] = a.beta1*m[i] + (1-a.beta1)*g
			v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
			second := v[i]
			if a.amsgrad {
				vmax[i] = max(vmax[i], v[i])
				second = vmax[i]
			}
			denom := sqrt32(second)/bc2Sqrt + a.eps
			u.data[i] -= stepSize * m[i] / denom
		}
		return nil
	})
}

func sqrt32(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}
