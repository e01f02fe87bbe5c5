package optim

import (
	"math"

	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// projectRadial removes the radial component of perturb when the gradient
// is nearly orthogonal to a scale-invariant weight. It first tries the
// channel view ([dim0, -1]) and then the layer view ([1, -1]); the first
// view whose maximum |cos(grad, param)| falls below delta/sqrt(view width)
// is projected. It returns wdRatio when a projection happened, else 1.
func projectRadial(param, grad, perturb []float32, shape tensor.Shape, delta, wdRatio, eps float32) float32 {
	n := len(param)
	for _, rows := range []int{shape[0], 1} {
		width := n / rows
		maxCos := 0.0
		for r := 0; r < rows; r++ {
			p, g := param[r*width:(r+1)*width], grad[r*width:(r+1)*width]
			denom := math.Max(tensor.Norm(p)*tensor.Norm(g), float64(eps))
			maxCos = math.Max(maxCos, math.Abs(tensor.Dot(p, g))/denom)
		}
		if maxCos >= float64(delta)/math.Sqrt(float64(width)) {
			continue
		}
		for r := 0; r < rows; r++ {
			p, d := param[r*width:(r+1)*width], perturb[r*width:(r+1)*width]
			norm := float32(tensor.Norm(p)) + eps
			var dot float32
			for i := range p {
				dot += p[i] / norm * d[i]
			}
			for i := range p {
				d[i] -= p[i] / norm * dot
			}
		}
		return wdRatio
	}
	return 1
}
