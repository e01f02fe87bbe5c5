package nn

import (
	"fmt"
	"math"

	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// LayerNorm normalizes the last dimension of a [batch, features] input.
//
//	y = (x - mean) / sqrt(var + eps) * gamma + beta
//
// gamma starts at ones and beta at zeros.
type LayerNorm struct {
	features int
	eps      float32
	gamma    *Parameter
	beta     *Parameter

	xhat   []float32
	invStd []float32
}

// NewLayerNorm creates a LayerNorm over features with the given epsilon.
func NewLayerNorm(features int, eps float32) *LayerNorm {
	if eps <= 0 {
		eps = 1e-5
	}
	return &LayerNorm{
		features: features,
		eps:      eps,
		gamma:    NewParameter("weight", tensor.Ones(tensor.Shape{features})),
		beta:     NewParameter("bias", tensor.Zeros(tensor.Shape{features})),
	}
}

// Forward normalizes each row.
func (ln *LayerNorm) Forward(input *tensor.Tensor) *tensor.Tensor {
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != ln.features {
		panic(fmt.Sprintf("LayerNorm.Forward: expected [batch, %d], got %v", ln.features, shape))
	}
	n, d := shape[0], shape[1]
	out := tensor.Zeros(shape)
	x, y := input.Data(), out.Data()
	g, b := ln.gamma.Tensor().Data(), ln.beta.Tensor().Data()
	ln.xhat = make([]float32, n*d)
	ln.invStd = make([]float32, n)

	for i := 0; i < n; i++ {
		row := x[i*d : (i+1)*d]
		var mean float64
		for _, v := range row {
			mean += float64(v)
		}
		mean /= float64(d)
		var variance float64
		for _, v := range row {
			diff := float64(v) - mean
			variance += diff * diff
		}
		variance /= float64(d)
		inv := float32(1 / math.Sqrt(variance+float64(ln.eps)))
		ln.invStd[i] = inv
		for j, v := range row {
			xh := (v - float32(mean)) * inv
			ln.xhat[i*d+j] = xh
			y[i*d+j] = xh*g[j] + b[j]
		}
	}
	return out
}

// Backward returns dx and accumulates dgamma and dbeta.
func (ln *LayerNorm) Backward(gradOutput *tensor.Tensor) *tensor.Tensor {
	if ln.xhat == nil {
		panic("LayerNorm.Backward: called before Forward")
	}
	n, d := gradOutput.Shape()[0], ln.features
	dy := gradOutput.Data()
	g := ln.gamma.Tensor().Data()

	dGamma := tensor.Zeros(tensor.Shape{d})
	dBeta := tensor.Zeros(tensor.Shape{d})
	dx := tensor.Zeros(gradOutput.Shape())
	dg, db, dxd := dGamma.Data(), dBeta.Data(), dx.Data()

	dxhat := make([]float32, d)
	for i := 0; i < n; i++ {
		var sumDxhat, sumDxhatXhat float32
		for j := 0; j < d; j++ {
			k := i*d + j
			dg[j] += dy[k] * ln.xhat[k]
			db[j] += dy[k]
			dxhat[j] = dy[k] * g[j]
			sumDxhat += dxhat[j]
			sumDxhatXhat += dxhat[j] * ln.xhat[k]
		}
		scale := ln.invStd[i] / float32(d)
		for j := 0; j < d; j++ {
			k := i*d + j
			dxd[k] = scale * (float32(d)*dxhat[j] - sumDxhat - ln.xhat[k]*sumDxhatXhat)
		}
	}
	ln.gamma.AccumulateGrad(dGamma)
	ln.beta.AccumulateGrad(dBeta)
	return dx
}

// Parameters returns [weight, bias].
func (ln *LayerNorm) Parameters() []*Parameter {
	return []*Parameter{ln.gamma, ln.beta}
}

// Kind returns "LayerNorm".
func (ln *LayerNorm) Kind() string { return "LayerNorm" }

// Weight returns gamma.
func (ln *LayerNorm) Weight() *Parameter { return ln.gamma }

// Bias returns beta.
func (ln *LayerNorm) Bias() *Parameter { return ln.beta }
