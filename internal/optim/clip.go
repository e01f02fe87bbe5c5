package optim

import (
	"fmt"
	"math"

	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// ClipGradNorm rescales grads in place so their combined norm is at most
// maxNorm and returns the norm before clipping. normType is 2 for the
// Euclidean norm or math.Inf(1) for the max norm.
func ClipGradNorm(grads Gradients, maxNorm, normType float64) (float64, error) {
	var total float64
	switch {
	case math.IsInf(normType, 1):
		for _, g := range grads {
			for _, v := range g.Data() {
				total = math.Max(total, math.Abs(float64(v)))
			}
		}
	case normType > 0:
		for _, g := range grads {
			for _, v := range g.Data() {
				total += math.Pow(math.Abs(float64(v)), normType)
			}
		}
		total = math.Pow(total, 1/normType)
	default:
		return 0, fmt.Errorf("clip grad norm: %w: norm type %v", ErrInvalidHyperparameter, normType)
	}

	coef := maxNorm / (total + 1e-6)
	if coef < 1 {
		for _, g := range grads {
			d := g.Data()
			for i := range d {
				d[i] *= float32(coef)
			}
		}
	}
	return total, nil
}

func norm32(xs []float32) float32 {
	return float32(tensor.Norm(xs))
}
