package nn

import (
	"fmt"
	"math"

	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// Target is a classification target, optionally a mix of two label sets.
//
// For plain labels B is nil and Lam is 1. A mixed target stands for the
// distribution Lam·onehot(A) + (1-Lam)·onehot(B).
type Target struct {
	A   []int
	B   []int
	Lam float64
}

// HardTarget wraps plain labels.
func HardTarget(labels []int) Target {
	return Target{A: labels, Lam: 1}
}

// MixedTarget builds a mixed target.
func MixedTarget(a, b []int, lam float64) Target {
	return Target{A: a, B: b, Lam: lam}
}

// Loss computes a scalar loss and its gradient w.r.t. the logits.
type Loss interface {
	Forward(logits *tensor.Tensor, target Target) (loss float64, grad *tensor.Tensor, err error)
}

// Label smoothing modes.
const (
	SmoothOriginal     = "original"
	SmoothClassyVision = "classy_vision"
	SmoothMultiLabel   = "multi_label"
)

func validateTarget(logits *tensor.Tensor, target Target) (n, k int, err error) {
	shape := logits.Shape()
	if len(shape) != 2 {
		return 0, 0, fmt.Errorf("loss: expected 2D logits [batch, classes], got %v", shape)
	}
	n, k = shape[0], shape[1]
	if len(target.A) != n {
		return 0, 0, fmt.Errorf("loss: %d labels for batch of %d", len(target.A), n)
	}
	if target.B != nil && len(target.B) != n {
		return 0, 0, fmt.Errorf("loss: %d mixed labels for batch of %d", len(target.B), n)
	}
	if target.Lam < 0 || target.Lam > 1 {
		return 0, 0, fmt.Errorf("loss: mixing ratio %v outside [0, 1]", target.Lam)
	}
	for i := 0; i < n; i++ {
		if target.A[i] < 0 || target.A[i] >= k {
			return 0, 0, fmt.Errorf("loss: label %d out of range [0, %d)", target.A[i], k)
		}
		if target.B != nil && (target.B[i] < 0 || target.B[i] >= k) {
			return 0, 0, fmt.Errorf("loss: label %d out of range [0, %d)", target.B[i], k)
		}
	}
	return n, k, nil
}

// distribution writes the (unsmoothed) target distribution of row i into dst.
func (t Target) distribution(i int, dst []float32) {
	for j := range dst {
		dst[j] = 0
	}
	if t.B == nil {
		dst[t.A[i]] = 1
		return
	}
	dst[t.A[i]] += float32(t.Lam)
	dst[t.B[i]] += float32(1 - t.Lam)
}

// softCrossEntropy returns mean_i -Σ_j t_ij log softmax(z_i)_j and its
// gradient (softmax - t) / N, scaled by weight.
func softCrossEntropy(logits *tensor.Tensor, n, k int, weight float64, rowTarget func(i int, dst []float32)) (float64, *tensor.Tensor) {
	z := logits.Data()
	grad := tensor.Zeros(logits.Shape())
	g := grad.Data()
	t := make([]float32, k)

	var total float64
	for i := 0; i < n; i++ {
		row := z[i*k : (i+1)*k]
		maxv := row[0]
		for _, v := range row[1:] {
			if v > maxv {
				maxv = v
			}
		}
		var sum float64
		for _, v := range row {
			sum += math.Exp(float64(v - maxv))
		}
		logSum := math.Log(sum) + float64(maxv)

		rowTarget(i, t)
		for j, v := range row {
			logp := float64(v) - logSum
			total -= float64(t[j]) * logp
			g[i*k+j] = float32((math.Exp(logp) - float64(t[j])) * weight / float64(n))
		}
	}
	return total * weight / float64(n), grad
}

// CrossEntropyLoss is softmax cross entropy, averaged over the batch.
// Mixed targets are treated as soft label distributions.
type CrossEntropyLoss struct {
	LossWeight float64
}

// Forward computes the loss and the logits gradient.
func (l CrossEntropyLoss) Forward(logits *tensor.Tensor, target Target) (float64, *tensor.Tensor, error) {
	n, k, err := validateTarget(logits, target)
	if err != nil {
		return 0, nil, err
	}
	loss, grad := softCrossEntropy(logits, n, k, weightOr1(l.LossWeight), target.distribution)
	return loss, grad, nil
}

// LabelSmoothLoss smooths one-hot targets before the cross entropy.
//
//   - original:      (1-ε)·onehot + ε/K
//   - classy_vision: (onehot + ε/K) / (1+ε)
//   - multi_label:   onehot→1-ε, others→ε, with sigmoid binary cross entropy
type LabelSmoothLoss struct {
	Smooth     float64
	NumClasses int
	Mode       string
	LossWeight float64
}

// Forward computes the loss and the logits gradient.
func (l LabelSmoothLoss) Forward(logits *tensor.Tensor, target Target) (float64, *tensor.Tensor, error) {
	n, k, err := validateTarget(logits, target)
	if err != nil {
		return 0, nil, err
	}
	if l.NumClasses != 0 && l.NumClasses != k {
		return 0, nil, fmt.Errorf("label smooth loss: num_classes %d does not match logits width %d", l.NumClasses, k)
	}
	if l.Smooth < 0 || l.Smooth >= 1 {
		return 0, nil, fmt.Errorf("label smooth loss: label_smooth_val must be in [0, 1), got %v", l.Smooth)
	}
	eps := float32(l.Smooth)
	weight := weightOr1(l.LossWeight)

	switch l.Mode {
	case "", SmoothOriginal:
		loss, grad := softCrossEntropy(logits, n, k, weight, func(i int, dst []float32) {
			target.distribution(i, dst)
			for j := range dst {
				dst[j] = dst[j]*(1-eps) + eps/float32(k)
			}
		})
		return loss, grad, nil
	case SmoothClassyVision:
		loss, grad := softCrossEntropy(logits, n, k, weight, func(i int, dst []float32) {
			target.distribution(i, dst)
			for j := range dst {
				dst[j] = (dst[j] + eps/float32(k)) / (1 + eps)
			}
		})
		return loss, grad, nil
	case SmoothMultiLabel:
		loss, grad := l.binaryCrossEntropy(logits, n, k, weight, func(i int, dst []float32) {
			target.distribution(i, dst)
			for j := range dst {
				dst[j] = dst[j]*(1-eps) + (1-dst[j])*eps
			}
		})
		return loss, grad, nil
	default:
		return 0, nil, fmt.Errorf("label smooth loss: invalid mode %q", l.Mode)
	}
}

// binaryCrossEntropy averages sigmoid BCE over all N·K elements.
func (l LabelSmoothLoss) binaryCrossEntropy(logits *tensor.Tensor, n, k int, weight float64, rowTarget func(int, []float32)) (float64, *tensor.Tensor) {
	z := logits.Data()
	grad := tensor.Zeros(logits.Shape())
	g := grad.Data()
	t := make([]float32, k)
	count := float64(n * k)

	var total float64
	for i := 0; i < n; i++ {
		rowTarget(i, t)
		for j := 0; j < k; j++ {
			x := float64(z[i*k+j])
			y := float64(t[j])
			// log(1+exp(-|x|)) + max(x, 0) - x·y
			total += math.Max(x, 0) - x*y + math.Log1p(math.Exp(-math.Abs(x)))
			sig := 1 / (1 + math.Exp(-x))
			g[i*k+j] = float32((sig - y) * weight / count)
		}
	}
	return total * weight / count, grad
}

func weightOr1(w float64) float64 {
	if w == 0 {
		return 1
	}
	return w
}
