package nn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W.T + b
// where:
//   - x is the input tensor with shape [batch_size, in_features]
//   - W is the weight matrix with shape [out_features, in_features]
//   - b is the bias vector with shape [out_features]
//   - y is the output tensor with shape [batch_size, out_features]
//
// Weights are initialized Kaiming-uniform with a=√5 and biases uniform in
// ±1/√in_features, the common default for dense layers.
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter // [out_features, in_features]
	bias        *Parameter // [out_features]

	input *tensor.Tensor // cached for Backward
}

// NewLinear creates a new Linear layer.
func NewLinear(inFeatures, outFeatures int, withBias bool, rng *rand.Rand) *Linear {
	w := tensor.Zeros(tensor.Shape{outFeatures, inFeatures})
	if err := KaimingUniform(w, math.Sqrt(5), FanIn, "leaky_relu", rng); err != nil {
		panic(err)
	}
	l := &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", w),
	}
	if withBias {
		bound := 1 / math.Sqrt(float64(inFeatures))
		b := tensor.Zeros(tensor.Shape{outFeatures})
		UniformFill(b, -bound, bound, rng)
		l.bias = NewParameter("bias", b)
	}
	return l
}

// Forward computes y = x @ W.T + b.
//
// Input shape: [batch_size, in_features]
// Output shape: [batch_size, out_features]
func (l *Linear) Forward(input *tensor.Tensor) *tensor.Tensor {
	inputShape := input.Shape()
	if len(inputShape) != 2 {
		panic(fmt.Sprintf("Linear.Forward: expected 2D input [batch, features], got shape %v", inputShape))
	}
	if inputShape[1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected input with %d features, got %d", l.inFeatures, inputShape[1]))
	}
	l.input = input

	output := tensor.MatMulTransB(input, l.weight.Tensor())
	if l.bias != nil {
		out := output.Data()
		b := l.bias.Tensor().Data()
		for i := 0; i < inputShape[0]; i++ {
			row := out[i*l.outFeatures : (i+1)*l.outFeatures]
			for j := range row {
				row[j] += b[j]
			}
		}
	}
	return output
}

// Backward accumulates dW = dyᵀx and db = Σdy, and returns dx = dy @ W.
func (l *Linear) Backward(gradOutput *tensor.Tensor) *tensor.Tensor {
	if l.input == nil {
		panic("Linear.Backward: called before Forward")
	}
	l.weight.AccumulateGrad(tensor.MatMulTransA(gradOutput, l.input))
	if l.bias != nil {
		l.bias.AccumulateGrad(tensor.SumRows(gradOutput))
	}
	return tensor.MatMul(gradOutput, l.weight.Tensor())
}

// Parameters returns [weight, bias] if bias is present, otherwise [weight].
func (l *Linear) Parameters() []*Parameter {
	if l.bias != nil {
		return []*Parameter{l.weight, l.bias}
	}
	return []*Parameter{l.weight}
}

// Kind returns "Linear".
func (l *Linear) Kind() string { return "Linear" }

// Weight returns the weight parameter.
func (l *Linear) Weight() *Parameter {
	return l.weight
}

// Bias returns the bias parameter, or nil.
func (l *Linear) Bias() *Parameter {
	return l.bias
}

// InFeatures returns the number of input features.
func (l *Linear) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *Linear) OutFeatures() int {
	return l.outFeatures
}
