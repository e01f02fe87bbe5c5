package models

import (
	"fmt"
	"math/rand/v2"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/nn"
	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// MLP flattens [N, C, H, W] images and applies Linear → [LayerNorm] → ReLU
// blocks, one per hidden width. Blocks are named layers.<i> so layer-wise
// learning-rate decay can address them.
type MLP struct {
	inFeatures int
	layers     *nn.Sequential

	inputShape tensor.Shape
}

// NewMLP builds an MLP for inChannels×imgSize×imgSize inputs. With
// layerNorm each Linear is followed by a LayerNorm.
func NewMLP(inChannels, imgSize int, hidden []int, layerNorm bool, rng *rand.Rand) (*MLP, error) {
	if inChannels <= 0 || imgSize <= 0 {
		return nil, fmt.Errorf("%w: in_channels and img_size must be positive, got %d and %d",
			config.ErrInvalidConfig, inChannels, imgSize)
	}
	in := inChannels * imgSize * imgSize
	layers := nn.NewSequential()
	width := in
	for i, h := range hidden {
		if h <= 0 {
			return nil, fmt.Errorf("%w: hidden_channels[%d] must be positive, got %d", config.ErrInvalidConfig, i, h)
		}
		block := nn.NewSequential(nn.NewLinear(width, h, true, rng))
		if layerNorm {
			block.Add(nn.NewLayerNorm(h, 1e-5))
		}
		block.Add(nn.NewReLU())
		layers.Add(block)
		width = h
	}
	return &MLP{inFeatures: in, layers: layers}, nil
}

// OutFeatures returns the width of the backbone output.
func (m *MLP) OutFeatures() int {
	mods := nn.Modules(m.layers)
	for i := len(mods) - 1; i >= 0; i-- {
		if l, ok := mods[i].(*nn.Linear); ok {
			return l.OutFeatures()
		}
	}
	return m.inFeatures
}

// Forward flattens the input and runs the blocks.
func (m *MLP) Forward(input *tensor.Tensor) *tensor.Tensor {
	shape := input.Shape()
	if len(shape) < 2 || shape.NumElements()/shape[0] != m.inFeatures {
		panic(fmt.Sprintf("MLP.Forward: input %v does not flatten to %d features", shape, m.inFeatures))
	}
	m.inputShape = shape.Clone()
	flat, err := input.Reshape(shape[0], m.inFeatures)
	if err != nil {
		panic(err)
	}
	if m.layers.Len() == 0 {
		return flat.Clone()
	}
	return m.layers.Forward(flat)
}

// Backward returns the gradient in the original input shape.
func (m *MLP) Backward(gradOutput *tensor.Tensor) *tensor.Tensor {
	grad := gradOutput
	if m.layers.Len() > 0 {
		grad = m.layers.Backward(gradOutput)
	}
	out, err := grad.Clone().Reshape(m.inputShape...)
	if err != nil {
		panic(err)
	}
	return out
}

// Parameters returns all block parameters.
func (m *MLP) Parameters() []*nn.Parameter { return m.layers.Parameters() }

// Children exposes the blocks as "layers".
func (m *MLP) Children() []nn.NamedModule {
	return []nn.NamedModule{{Name: "layers", Module: m.layers}}
}

// Kind returns "MLP".
func (m *MLP) Kind() string { return "MLP" }

func init() {
	RegisterBackbone("MLP", func(f *config.Fields, rng *rand.Rand) (nn.Module, int, error) {
		inChannels := f.Int("in_channels", 3)
		imgSize := f.Int("img_size", 32)
		hidden := f.Ints("hidden_channels")
		norm := f.Sub("norm_cfg")
		if err := f.Err(); err != nil {
			return nil, 0, err
		}
		layerNorm := false
		if norm != nil {
			typ, err := norm.Type()
			if err != nil {
				return nil, 0, fmt.Errorf("norm_cfg: %w", err)
			}
			if typ != "LN" && typ != "LayerNorm" {
				return nil, 0, fmt.Errorf("%w: norm_cfg type %q (expected LN)", config.ErrInvalidConfig, typ)
			}
			layerNorm = true
		}
		m, err := NewMLP(inChannels, imgSize, hidden, layerNorm, rng)
		if err != nil {
			return nil, 0, err
		}
		return m, m.OutFeatures(), nil
	})
}
