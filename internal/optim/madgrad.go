package optim

import (
	"math"
)

// MADGRAD is a momentumized, dual-averaged variant of AdaGrad with a cube
// root denominator.
//
// Reference: "Adaptivity without Compromise: A Momentumized, Adaptive, Dual
// Averaged Gradient Method for Stochastic Optimization" (Defazio &
// Jelassi, 2021).
type MADGRAD struct {
	base
	cfg MADGRADConfig
}

// MADGRADConfig holds configuration for MADGRAD.
type MADGRADConfig struct {
	LR             float32
	Momentum       float32
	WeightDecay    float32
	Eps            float32
	DecoupledDecay bool
}

// DefaultMADGRADConfig returns the reference defaults.
func DefaultMADGRADConfig() MADGRADConfig {
	return MADGRADConfig{LR: 1e-2, Momentum: 0.9, Eps: 1e-6}
}

// NewMADGRAD creates a MADGRAD optimizer.
func NewMADGRAD(params []ParamSet, config MADGRADConfig) (*MADGRAD, error) {
	if config.Momentum < 0 || config.Momentum >= 1 {
		return nil, invalid("MADGRAD", "momentum must be in [0, 1), got %v", config.Momentum)
	}
	if err := checkEps("MADGRAD", config.Eps); err != nil {
		return nil, err
	}
	b, err := newBase("MADGRAD", params, config.LR, config.WeightDecay, config.Momentum)
	if err != nil {
		return nil, err
	}
	return &MADGRAD{base: b, cfg: config}, nil
}

// Step performs a single optimization step.
func (m *MADGRAD) Step(grads Gradients) error {
	eps := m.cfg.Eps
	return m.each(grads, func(u update) error {
		shape := u.param.Tensor().Shape()
		momentum, decay := u.group.Momentum, u.group.WeightDecay
		lr := u.group.LR + eps
		lamb := lr * float32(math.Sqrt(float64(u.state.step)))
		ck := 1 - momentum

		var x0 []float32
		if momentum != 0 {
			if !u.state.has("x0") {
				copy(u.state.buffer("x0", shape).Data(), u.data)
			}
			x0 = u.state.buffer("x0", shape).Data()
		}
		sumSq := u.state.buffer("grad_sum_sq", shape).Data()
		s := u.state.buffer("s", shape).Data()

		for i, g := range u.grad {
			if decay != 0 {
				if m.cfg.DecoupledDecay {
					u.data[i] *= 1 - u.group.LR*decay
				} else {
					g += decay * u.data[i]
				}
			}
			var origin float32
			if momentum == 0 {
				origin = u.data[i] + s[i]/(cbrt32(sumSq[i])+eps)
			} else {
				origin = x0[i]
			}
			sumSq[i] += lamb * g * g
			rms := cbrt32(sumSq[i]) + eps
			s[i] += lamb * g
			z := origin - s[i]/rms
			if momentum == 0 {
				u.data[i] = z
			} else {
				u.data[i] = (1-ck)*u.data[i] + ck*z
			}
		}
		return nil
	})
}

func cbrt32(x float32) float32 {
	return float32(math.Cbrt(float64(x)))
}
