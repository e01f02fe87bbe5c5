package optim

import (
	"errors"
	"math"
	"math/rand/v2"

	"github.com/mixgo-ml/mixgo/internal/nn"
	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// ErrNoHVP is returned by Adahessian.Step when no Hessian-vector product
// has been supplied.
var ErrNoHVP = errors.New("adahessian: no Hessian-vector product set")

// Adahessian is Adam with the squared gradient replaced by a Hutchinson
// estimate of the Hessian diagonal:
//
//	D ≈ mean_k z_k ⊙ (H·z_k),  z_k ~ Rademacher
//	v = β2·v + (1-β2)·D²
//	param -= lr/(1-β1^t) · m / ((v/(1-β2^t))^(k/2) + eps)
//
// The diagonal is refreshed every UpdateEach steps through the function
// set with SetHVP.
//
// Reference: "ADAHESSIAN: An Adaptive Second Order Optimizer for Machine
// Learning" (Yao et al., 2020).
type Adahessian struct {
	base
	cfg AdahessianConfig
	hvp HVP
	rng *rand.Rand
}

// AdahessianConfig holds configuration for Adahessian.
type AdahessianConfig struct {
	LR            float32
	Betas         [2]float32
	Eps           float32
	WeightDecay   float32
	HessianPower  float32
	UpdateEach    int
	NSamples      int
	AvgConvKernel bool
	Seed          uint64
}

// DefaultAdahessianConfig returns the reference defaults.
func DefaultAdahessianConfig() AdahessianConfig {
	return AdahessianConfig{
		LR:           0.1,
		Betas:        [2]float32{0.9, 0.999},
		Eps:          1e-8,
		HessianPower: 1.0,
		UpdateEach:   1,
		NSamples:     1,
	}
}

// NewAdahessian creates an Adahessian optimizer.
func NewAdahessian(params []ParamSet, config AdahessianConfig) (*Adahessian, error) {
	if err := checkBetas("Adahessian", config.Betas[:]...); err != nil {
		return nil, err
	}
	if err := checkEps("Adahessian", config.Eps); err != nil {
		return nil, err
	}
	if config.HessianPower < 0 || config.HessianPower > 1 {
		return nil, invalid("Adahessian", "hessian power must be in [0, 1], got %v", config.HessianPower)
	}
	if config.UpdateEach < 1 {
		config.UpdateEach = 1
	}
	if config.NSamples < 1 {
		config.NSamples = 1
	}
	b, err := newBase("Adahessian", params, config.LR, config.WeightDecay, 0)
	if err != nil {
		return nil, err
	}
	return &Adahessian{base: b, cfg: config, rng: tensor.NewRNG(config.Seed)}, nil
}

// SetHVP sets the Hessian-vector product used by the next Step. It is
// normally replaced every iteration with a closure over the current batch.
func (a *Adahessian) SetHVP(hvp HVP) {
	a.hvp = hvp
}

// refreshHessian re-estimates the diagonal for parameters due this step.
func (a *Adahessian) refreshHessian(grads Gradients) error {
	var active, due []*nn.Parameter
	for _, p := range a.params() {
		if !p.RequiresGrad() || grads[p.Tensor()] == nil {
			continue
		}
		active = append(active, p)
		if int(a.stateFor(p).scalars["hessian_step"])%a.cfg.UpdateEach == 0 {
			due = append(due, p)
		}
	}
	if len(due) > 0 && a.hvp == nil {
		return ErrNoHVP
	}
	for _, p := range active {
		a.stateFor(p).scalars["hessian_step"]++
	}
	if len(due) == 0 {
		return nil
	}

	for _, p := range due {
		a.stateFor(p).buffer("hessian", p.Tensor().Shape()).Fill(0)
	}
	scale := 1 / float32(a.cfg.NSamples)
	for range a.cfg.NSamples {
		zs := make(Gradients, len(due))
		for _, p := range due {
			z := tensor.ZerosLike(p.Tensor())
			zd := z.Data()
			for i := range zd {
				zd[i] = float32(2*a.rng.IntN(2) - 1)
			}
			zs[p.Tensor()] = z
		}
		hz, err := a.hvp(zs)
		if err != nil {
			return err
		}
		for _, p := range due {
			h, ok := hz[p.Tensor()]
			if !ok {
				continue
			}
			hess := a.stateFor(p).buffer("hessian", p.Tensor().Shape()).Data()
			hd, zd := h.Data(), zs[p.Tensor()].Data()
			for i := range hess {
				hess[i] += hd[i] * zd[i] * scale
			}
		}
	}
	return nil
}

// averageKernel replaces each 3x3-style kernel of a 4-D parameter by the
// mean absolute value of its entries.
func averageKernel(hess []float32, shape tensor.Shape) {
	k := shape[2] * shape[3]
	for off := 0; off < len(hess); off += k {
		var s float32
		for _, h := range hess[off : off+k] {
			s += float32(math.Abs(float64(h)))
		}
		for i := off; i < off+k; i++ {
			hess[i] = s / float32(k)
		}
	}
}

// Step performs a single optimization step, refreshing the Hessian
// diagonal first when due.
func (a *Adahessian) Step(grads Gradients) error {
	if err := a.refreshHessian(grads); err != nil {
		return err
	}
	beta1, beta2 := a.cfg.Betas[0], a.cfg.Betas[1]
	k := float64(a.cfg.HessianPower)
	return a.each(grads, func(u update) error {
		shape := u.param.Tensor().Shape()
		hess := u.state.buffer("hessian", shape).Data()
		if a.cfg.AvgConvKernel && len(shape) == 4 {
			averageKernel(hess, shape)
		}
		m := u.state.buffer("exp_avg", shape).Data()
		v := u.state.buffer("exp_hessian_diag_sq", shape).Data()

		lr, wd := u.group.LR, u.group.WeightDecay
		step := float64(u.state.step)
		bc1 := 1 - math.Pow(float64(beta1), step)
		bc2 := 1 - math.Pow(float64(beta2), step)
		stepSize := lr / float32(bc1)

		for i, g := range u.grad {
			u.data[i] *= 1 - lr*wd
			m[i] = beta1*m[i] + (1-beta1)*g
			v[i] = beta2*v[i] + (1-beta2)*hess[i]*hess[i]
			denom := float32(math.Pow(float64(v[i])/bc2, k/2)) + a.cfg.Eps
			u.data[i] -= stepSize * m[i] / denom
		}
		return nil
	})
}
