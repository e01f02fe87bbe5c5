package optim

import (
	"math"

	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// Adafactor keeps a factored estimate of the second moment for parameters
// with two or more dimensions: one running mean per row and one per column
// of the trailing matrix, instead of a full buffer.
//
// When RelativeStep is set the group learning rate is ignored and the
// step size is derived from the step count:
//
//	lr_t = min(warmup_init ? 1e-6·t : 1e-2, 1/sqrt(t)) · max(eps_scale, rms(param))
//
// The update is clipped so that its RMS does not exceed ClipThreshold.
//
// Reference: "Adafactor: Adaptive Learning Rates with Sublinear Memory
// Cost" (Shazeer & Stern, 2018).
type Adafactor struct {
	base
	cfg AdafactorConfig
}

// AdafactorConfig holds configuration for Adafactor.
type AdafactorConfig struct {
	LR             float32
	Eps            float32 // Added to squared gradients (default: 1e-30)
	EpsScale       float32 // Lower bound of the parameter scale (default: 1e-3)
	ClipThreshold  float32
	DecayRate      float32
	Beta1          float32 // 0 disables the first moment
	WeightDecay    float32
	ScaleParameter bool
	RelativeStep   bool
	WarmupInit     bool
}

// DefaultAdafactorConfig returns the reference defaults, with a relative
// step size.
func DefaultAdafactorConfig() AdafactorConfig {
	return AdafactorConfig{
		Eps:            1e-30,
		EpsScale:       1e-3,
		ClipThreshold:  1.0,
		DecayRate:      -0.8,
		ScaleParameter: true,
		RelativeStep:   true,
	}
}

// NewAdafactor creates an Adafactor optimizer.
func NewAdafactor(params []ParamSet, config AdafactorConfig) (*Adafactor, error) {
	if config.WarmupInit && !config.RelativeStep {
		return nil, invalid("Adafactor", "warmup_init requires relative_step")
	}
	if err := checkBetas("Adafactor", config.Beta1); err != nil {
		return nil, err
	}
	if err := checkEps("Adafactor", config.Eps); err != nil {
		return nil, err
	}
	if config.ClipThreshold <= 0 {
		return nil, invalid("Adafactor", "clip threshold must be > 0, got %v", config.ClipThreshold)
	}
	if config.DecayRate >= 0 {
		return nil, invalid("Adafactor", "decay rate must be < 0, got %v", config.DecayRate)
	}
	b, err := newBase("Adafactor", params, config.LR, config.WeightDecay, 0)
	if err != nil {
		return nil, err
	}
	return &Adafactor{base: b, cfg: config}, nil
}

func rms(xs []float32) float64 {
	if len(xs) == 0 {
		return 0
	}
	return tensor.Norm(xs) / math.Sqrt(float64(len(xs)))
}

func (a *Adafactor) stepSize(u update) float32 {
	if !a.cfg.RelativeStep {
		return u.group.LR
	}
	step := float64(u.state.step)
	minStep := 1e-2
	if a.cfg.WarmupInit {
		minStep = 1e-6 * step
	}
	lr := math.Min(minStep, 1/math.Sqrt(step))
	if a.cfg.ScaleParameter {
		lr *= math.Max(float64(a.cfg.EpsScale), rms(u.data))
	}
	return float32(lr)
}

// Step performs a single optimization step.
func (a *Adafactor) Step(grads Gradients) error {
	return a.each(grads, func(u update) error {
		shape := u.param.Tensor().Shape()
		lr := a.stepSize(u)
		beta2t := float32(1 - math.Pow(float64(u.state.step), float64(a.cfg.DecayRate)))
		eps := a.cfg.Eps
		upd := make([]float32, len(u.grad))

		if len(shape) >= 2 {
			rows, cols := shape[len(shape)-2], shape[len(shape)-1]
			batch := len(u.grad) / (rows * cols)
			rowShape := shape[:len(shape)-1].Clone()
			colShape := append(shape[:len(shape)-2].Clone(), cols)
			row := u.state.buffer("exp_avg_sq_row", rowShape).Data()
			col := u.state.buffer("exp_avg_sq_col", colShape).Data()
			a.factoredUpdate(u.grad, upd, row, col, batch, rows, cols, beta2t, eps)
		} else {
			v := u.state.buffer("exp_avg_sq", shape).Data()
			for i, g := range u.grad {
				v[i] = beta2t*v[i] + (1-beta2t)*(g*g+eps)
				upd[i] = g / sqrt32(v[i])
			}
		}

		scale := lr / float32(math.Max(1, rms(upd)/float64(a.cfg.ClipThreshold)))
		for i := range upd {
			upd[i] *= scale
		}
		if a.cfg.Beta1 > 0 {
			m := u.state.buffer("exp_avg", shape).Data()
			for i := range upd {
				m[i] = a.cfg.Beta1*m[i] + (1-a.cfg.Beta1)*upd[i]
				upd[i] = m[i]
			}
		}
		wd := u.group.WeightDecay
		for i := range u.data {
			if wd != 0 {
				u.data[i] -= wd * lr * u.data[i]
			}
			u.data[i] -= upd[i]
		}
		return nil
	})
}

// factoredUpdate refreshes the row and column statistics of every matrix in
// a batch and writes grad scaled by the rank-one inverse square root
// approximation into out.
func (a *Adafactor) factoredUpdate(grad, out, row, col []float32, batch, rows, cols int, beta2t, eps float32) {
	for b := 0; b < batch; b++ {
		g := grad[b*rows*cols : (b+1)*rows*cols]
		r := row[b*rows : (b+1)*rows]
		c := col[b*cols : (b+1)*cols]

		colMean := make([]float32, cols)
		var rowSum float32
		for i := 0; i < rows; i++ {
			var mean float32
			for j := 0; j < cols; j++ {
				sq := g[i*cols+j]*g[i*cols+j] + eps
				mean += sq
				colMean[j] += sq
			}
			r[i] = beta2t*r[i] + (1-beta2t)*mean/float32(cols)
			rowSum += r[i]
		}
		for j := range c {
			c[j] = beta2t*c[j] + (1-beta2t)*colMean[j]/float32(rows)
		}

		rowAvg := rowSum / float32(rows)
		o := out[b*rows*cols : (b+1)*rows*cols]
		for i := 0; i < rows; i++ {
			rf := 1 / sqrt32(r[i]/rowAvg)
			for j := 0; j < cols; j++ {
				o[i*cols+j] = g[i*cols+j] * rf / sqrt32(c[j])
			}
		}
	}
}
