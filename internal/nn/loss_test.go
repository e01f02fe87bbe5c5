package nn

import (
	"math"
	"testing"

	"github.com/mixgo-ml/mixgo/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrossEntropyLoss_UniformLogits(t *testing.T) {
	logits := tensor.Zeros(tensor.Shape{2, 4})
	loss, grad, err := CrossEntropyLoss{}.Forward(logits, HardTarget([]int{0, 3}))
	require.NoError(t, err)

	assert.InDelta(t, math.Log(4), loss, 1e-6)
	// (softmax - onehot) / N
	assert.InDelta(t, (0.25-1)/2, grad.At(0, 0), 1e-6)
	assert.InDelta(t, 0.25/2, grad.At(0, 1), 1e-6)
}

func TestCrossEntropyLoss_MixedEqualsWeightedSum(t *testing.T) {
	rng := tensor.NewRNG(1)
	logits := tensor.Randn(tensor.Shape{3, 5}, rng)
	a, b := []int{0, 1, 2}, []int{4, 3, 2}
	lam := 0.3

	mixed, _, err := CrossEntropyLoss{}.Forward(logits, MixedTarget(a, b, lam))
	require.NoError(t, err)
	la, _, _ := CrossEntropyLoss{}.Forward(logits, HardTarget(a))
	lb, _, _ := CrossEntropyLoss{}.Forward(logits, HardTarget(b))

	assert.InDelta(t, lam*la+(1-lam)*lb, mixed, 1e-5)
}

func TestLossGradientsMatchNumeric(t *testing.T) {
	losses := map[string]Loss{
		"ce":            CrossEntropyLoss{LossWeight: 1},
		"smooth":        LabelSmoothLoss{Smooth: 0.1, NumClasses: 4},
		"classy_vision": LabelSmoothLoss{Smooth: 0.2, NumClasses: 4, Mode: SmoothClassyVision},
		"multi_label":   LabelSmoothLoss{Smooth: 0.1, NumClasses: 4, Mode: SmoothMultiLabel, LossWeight: 2},
	}
	rng := tensor.NewRNG(7)
	target := MixedTarget([]int{0, 2}, []int{1, 2}, 0.6)

	for name, l := range losses {
		logits := tensor.Randn(tensor.Shape{2, 4}, rng)
		_, grad, err := l.Forward(logits, target)
		require.NoError(t, err, name)

		eval := func() float64 {
			v, _, _ := l.Forward(logits, target)
			return v
		}
		for i := range logits.Data() {
			assert.InDelta(t, numericGrad(logits.Data(), i, eval), grad.Data()[i], 1e-3, "%s grad[%d]", name, i)
		}
	}
}

func TestLossValidation(t *testing.T) {
	logits := tensor.Zeros(tensor.Shape{2, 3})

	_, _, err := CrossEntropyLoss{}.Forward(logits, HardTarget([]int{0}))
	assert.Error(t, err)
	_, _, err = CrossEntropyLoss{}.Forward(logits, HardTarget([]int{0, 3}))
	assert.Error(t, err)
	_, _, err = CrossEntropyLoss{}.Forward(logits, MixedTarget([]int{0, 1}, []int{1, 0}, 1.5))
	assert.Error(t, err)
	_, _, err = LabelSmoothLoss{Smooth: 0.1, NumClasses: 10}.Forward(logits, HardTarget([]int{0, 1}))
	assert.Error(t, err)
	_, _, err = LabelSmoothLoss{Smooth: 0.1, Mode: "soft"}.Forward(logits, HardTarget([]int{0, 1}))
	assert.Error(t, err)
}
