package nn

import (
	"math"
	"testing"

	"github.com/mixgo-ml/mixgo/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateFanInFanOut(t *testing.T) {
	fanIn, fanOut, err := CalculateFanInFanOut(tensor.Shape{16, 8, 3, 3})
	require.NoError(t, err)
	assert.Equal(t, 72, fanIn)
	assert.Equal(t, 144, fanOut)

	_, _, err = CalculateFanInFanOut(tensor.Shape{5})
	assert.Error(t, err)
}

func TestCalculateGain(t *testing.T) {
	tests := []struct {
		name  string
		param float64
		want  float64
	}{
		{"linear", 0, 1},
		{"sigmoid", 0, 1},
		{"tanh", 0, 5.0 / 3},
		{"relu", 0, math.Sqrt(2)},
		{"leaky_relu", 1, 1},
		{"selu", 0, 0.75},
	}
	for _, tt := range tests {
		got, err := CalculateGain(tt.name, tt.param)
		require.NoError(t, err, tt.name)
		assert.InDelta(t, tt.want, got, 1e-12, tt.name)
	}

	_, err := CalculateGain("swish", 0)
	assert.Error(t, err)
}

func TestInitializersPreserveShape(t *testing.T) {
	rng := tensor.NewRNG(1)
	shape := tensor.Shape{32, 16}

	inits := map[string]func(*tensor.Tensor) error{
		"xavier_uniform":  func(x *tensor.Tensor) error { return XavierUniform(x, 1, rng) },
		"xavier_normal":   func(x *tensor.Tensor) error { return XavierNormal(x, 1, rng) },
		"kaiming_uniform": func(x *tensor.Tensor) error { return KaimingUniform(x, 0, FanIn, "relu", rng) },
		"kaiming_normal":  func(x *tensor.Tensor) error { return KaimingNormal(x, 0, FanOut, "relu", rng) },
		"trunc_normal":    func(x *tensor.Tensor) error { return TruncNormalFill(x, 0, 0.02, -2, 2, rng) },
		"lecun_normal":    func(x *tensor.Tensor) error { return LecunNormal(x, rng) },
	}
	for name, init := range inits {
		x := tensor.Zeros(shape)
		require.NoError(t, init(x), name)
		assert.Equal(t, shape, x.Shape(), name)
		assert.Equal(t, shape.NumElements(), x.NumElements(), name)
	}
}

func TestXavierUniformBound(t *testing.T) {
	x := tensor.Zeros(tensor.Shape{20, 30})
	require.NoError(t, XavierUniform(x, 1, tensor.NewRNG(3)))

	bound := float32(math.Sqrt(6.0 / 50))
	for _, v := range x.Data() {
		assert.LessOrEqual(t, v, bound)
		assert.GreaterOrEqual(t, v, -bound)
	}
}

func TestKaimingNormalStd(t *testing.T) {
	x := tensor.Zeros(tensor.Shape{200, 100})
	require.NoError(t, KaimingNormal(x, 0, FanIn, "relu", tensor.NewRNG(5)))

	var sq float64
	for _, v := range x.Data() {
		sq += float64(v) * float64(v)
	}
	std := math.Sqrt(sq / float64(x.NumElements()))
	assert.InDelta(t, math.Sqrt(2.0/100), std, 0.01)
}

func TestTruncNormalStaysInBounds(t *testing.T) {
	x := tensor.Zeros(tensor.Shape{1000})
	require.NoError(t, TruncNormalFill(x, 0, 1, -0.5, 0.5, tensor.NewRNG(9)))
	for _, v := range x.Data() {
		assert.LessOrEqual(t, v, float32(0.5))
		assert.GreaterOrEqual(t, v, float32(-0.5))
	}

	assert.Error(t, TruncNormalFill(x, 0, 0, -1, 1, tensor.NewRNG(9)))
	assert.Error(t, TruncNormalFill(x, 0, 1, 1, -1, tensor.NewRNG(9)))
}

func TestVarianceScalingRejectsUnknownDistribution(t *testing.T) {
	x := tensor.Zeros(tensor.Shape{4, 4})
	err := VarianceScaling(x, 1, FanIn, "cauchy", tensor.NewRNG(1))
	assert.ErrorContains(t, err, "invalid distribution")

	err = VarianceScaling(x, 1, FanMode("fan_max"), DistNormal, tensor.NewRNG(1))
	assert.Error(t, err)

	for _, dist := range []string{DistNormal, DistUniform, DistTruncatedNormal} {
		assert.NoError(t, VarianceScaling(x, 1, FanAvg, dist, tensor.NewRNG(1)), dist)
	}
}

func TestModuleInitializers(t *testing.T) {
	rng := tensor.NewRNG(11)
	l := NewLinear(8, 4, true, rng)

	ConstantInit(l, 0.5, 0.25)
	for _, v := range l.Weight().Tensor().Data() {
		assert.Equal(t, float32(0.5), v)
	}
	for _, v := range l.Bias().Tensor().Data() {
		assert.Equal(t, float32(0.25), v)
	}

	require.NoError(t, XavierInit(l, 1, 0, DistUniform, rng))
	assert.Error(t, XavierInit(l, 1, 0, "laplace", rng))
	assert.Error(t, KaimingInit(l, 0, FanOut, "relu", 0, "laplace", rng))
	require.NoError(t, Caffe2XavierInit(l, 0, rng))
	for _, v := range l.Bias().Tensor().Data() {
		assert.Equal(t, float32(0), v)
	}

	require.NoError(t, BiasProbInit(l, 0.01, 0.01, rng))
	want := float32(-math.Log(99))
	for _, v := range l.Bias().Tensor().Data() {
		assert.InDelta(t, want, v, 1e-5)
	}
	assert.Error(t, BiasProbInit(l, 0.01, 1, rng))
}

func TestBiasInitWithProb(t *testing.T) {
	assert.InDelta(t, 0.0, BiasInitWithProb(0.5), 1e-12)
	b := BiasInitWithProb(0.01)
	assert.InDelta(t, 0.01, 1/(1+math.Exp(-b)), 1e-12)
}
