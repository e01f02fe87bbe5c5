package optim

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mixgo-ml/mixgo/internal/tensor"
)

func TestProjectRadial(t *testing.T) {
	t.Run("ChannelView", func(t *testing.T) {
		param := []float32{1, 0, 0, 1}
		grad := []float32{0, 1, 1, 0}
		perturb := []float32{1, 1, 1, 1}

		ratio := projectRadial(param, grad, perturb, tensor.Shape{2, 2}, 0.1, 0.1, 1e-8)

		assert.Equal(t, float32(0.1), ratio)
		assert.InDeltaSlice(t, []float32{0, 1, 1, 0}, perturb, 1e-6)
	})

	t.Run("AlignedGradient", func(t *testing.T) {
		param := []float32{1, 0, 0, 1}
		grad := []float32{1, 0, 0, 1}
		perturb := []float32{1, 1, 1, 1}

		ratio := projectRadial(param, grad, perturb, tensor.Shape{2, 2}, 0.1, 0.1, 1e-8)

		assert.Equal(t, float32(1), ratio)
		assert.Equal(t, []float32{1, 1, 1, 1}, perturb)
	})
}

func TestLayerIDAndNoDecay(t *testing.T) {
	assert.Equal(t, 0, LayerID("backbone.patch_embed.weight", 4, "layer_wise"))
	assert.Equal(t, 0, LayerID("backbone.cls_token", 4, "layer_wise"))
	assert.Equal(t, 1, LayerID("backbone.layers.0.fc.weight", 4, "layer_wise"))
	assert.Equal(t, 4, LayerID("backbone.blocks.3.norm.bias", 4, "layer_wise"))
	assert.Equal(t, 5, LayerID("head.fc.weight", 4, "layer_wise"))
	assert.Equal(t, 3, LayerID("backbone.stages.2.0.weight", 4, "stage_wise"))
	assert.Equal(t, 5, LayerID("backbone.layers.9.weight", 4, "layer_wise"))
}
