package nn

import (
	"testing"

	"github.com/mixgo-ml/mixgo/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// numericGrad estimates d(sum(out * dy))/d(data[i]) with central differences.
func numericGrad(data []float32, i int, eval func() float64) float64 {
	const h = 1e-2
	orig := data[i]
	data[i] = orig + h
	plus := eval()
	data[i] = orig - h
	minus := eval()
	data[i] = orig
	return (plus - minus) / (2 * h)
}

func weightedSum(m Module, x, dy *tensor.Tensor) func() float64 {
	return func() float64 {
		out := m.Forward(x)
		return tensor.Dot(out.Data(), dy.Data())
	}
}

func TestLinear_ForwardValues(t *testing.T) {
	l := NewLinear(2, 2, true, tensor.NewRNG(1))
	copy(l.Weight().Tensor().Data(), []float32{1, 2, 3, 4})
	copy(l.Bias().Tensor().Data(), []float32{0.5, -0.5})

	x, err := tensor.FromSlice([]float32{1, 1, 2, 0}, tensor.Shape{2, 2})
	require.NoError(t, err)

	out := l.Forward(x)
	assert.Equal(t, []float32{3.5, 6.5, 2.5, 5.5}, out.Data())
}

func TestLinear_BackwardMatchesNumeric(t *testing.T) {
	rng := tensor.NewRNG(2)
	l := NewLinear(3, 2, true, rng)
	x := tensor.Randn(tensor.Shape{4, 3}, rng)
	dy := tensor.Randn(tensor.Shape{4, 2}, rng)

	l.Forward(x)
	dx := l.Backward(dy)

	eval := weightedSum(l, x, dy)
	for i := range x.Data() {
		assert.InDelta(t, numericGrad(x.Data(), i, eval), dx.Data()[i], 1e-2, "dx[%d]", i)
	}
	w := l.Weight()
	for i := range w.Tensor().Data() {
		assert.InDelta(t, numericGrad(w.Tensor().Data(), i, eval), w.Grad().Data()[i], 1e-2, "dW[%d]", i)
	}
	b := l.Bias()
	for i := range b.Tensor().Data() {
		assert.InDelta(t, numericGrad(b.Tensor().Data(), i, eval), b.Grad().Data()[i], 1e-2, "db[%d]", i)
	}
}

func TestLayerNorm_BackwardMatchesNumeric(t *testing.T) {
	rng := tensor.NewRNG(3)
	ln := NewLayerNorm(5, 1e-5)
	NormalFill(ln.Weight().Tensor(), 1, 0.1, rng)
	x := tensor.Randn(tensor.Shape{3, 5}, rng)
	dy := tensor.Randn(tensor.Shape{3, 5}, rng)

	ln.Forward(x)
	dx := ln.Backward(dy)

	eval := weightedSum(ln, x, dy)
	for i := range x.Data() {
		assert.InDelta(t, numericGrad(x.Data(), i, eval), dx.Data()[i], 2e-2, "dx[%d]", i)
	}
	g := ln.Weight()
	for i := range g.Tensor().Data() {
		assert.InDelta(t, numericGrad(g.Tensor().Data(), i, eval), g.Grad().Data()[i], 2e-2, "dgamma[%d]", i)
	}
}

func TestLayerNorm_NormalizesRows(t *testing.T) {
	ln := NewLayerNorm(4, 1e-5)
	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 10, 10, 10, 14}, tensor.Shape{2, 4})
	out := ln.Forward(x)

	for i := 0; i < 2; i++ {
		row := out.Data()[i*4 : (i+1)*4]
		var mean float64
		for _, v := range row {
			mean += float64(v)
		}
		assert.InDelta(t, 0, mean/4, 1e-5)
	}
}

func TestReLU(t *testing.T) {
	r := NewReLU()
	x, _ := tensor.FromSlice([]float32{-1, 0, 2}, tensor.Shape{1, 3})
	assert.Equal(t, []float32{0, 0, 2}, r.Forward(x).Data())

	dy := tensor.Ones(tensor.Shape{1, 3})
	assert.Equal(t, []float32{0, 0, 1}, r.Backward(dy).Data())
}

func TestSequential_NamedParametersAndGrads(t *testing.T) {
	rng := tensor.NewRNG(4)
	seq := NewSequential(
		NewLinear(4, 8, true, rng),
		NewReLU(),
		NewLayerNorm(8, 0),
		NewLinear(8, 2, false, rng),
	)

	named := NamedParameters("backbone", seq)
	names := make([]string, len(named))
	for i, np := range named {
		names[i] = np.Name
	}
	assert.Equal(t, []string{
		"backbone.0.weight", "backbone.0.bias",
		"backbone.2.weight", "backbone.2.bias",
		"backbone.3.weight",
	}, names)
	assert.Len(t, Modules(seq), 5)

	x := tensor.Randn(tensor.Shape{2, 4}, rng)
	out := seq.Forward(x)
	seq.Backward(tensor.Ones(out.Shape()))

	grads := CollectGrads(seq.Parameters())
	assert.Len(t, grads, 5)

	ZeroGrad(seq)
	assert.Empty(t, CollectGrads(seq.Parameters()))
}

func TestParameter_AccumulateAndFreeze(t *testing.T) {
	p := NewParameter("w", tensor.Zeros(tensor.Shape{2}))
	g := tensor.Ones(tensor.Shape{2})

	p.AccumulateGrad(g)
	p.AccumulateGrad(g)
	assert.Equal(t, []float32{2, 2}, p.Grad().Data())
	assert.Equal(t, []float32{1, 1}, g.Data(), "accumulation must not alias the input")

	p.SetRequiresGrad(false)
	assert.Nil(t, p.Grad())
	p.AccumulateGrad(g)
	assert.Nil(t, p.Grad())
}
