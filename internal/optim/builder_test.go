package optim_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/nn"
	"github.com/mixgo-ml/mixgo/internal/optim"
	"github.com/mixgo-ml/mixgo/internal/registry"
	"github.com/mixgo-ml/mixgo/internal/tensor"
)

func namedParams(names ...string) []nn.NamedParameter {
	out := make([]nn.NamedParameter, len(names))
	for i, name := range names {
		shape := tensor.Shape{2, 2}
		if len(name) > 5 && name[len(name)-5:] == ".bias" {
			shape = tensor.Shape{2}
		}
		out[i] = nn.NamedParameter{Name: name, Param: nn.NewParameter(name, tensor.Zeros(shape))}
	}
	return out
}

func groupByName(t *testing.T, opt optim.Optimizer) map[string]*optim.ParamGroup {
	t.Helper()
	out := make(map[string]*optim.ParamGroup)
	for _, g := range opt.ParamGroups() {
		out[g.Name] = g
	}
	return out
}

func TestRegistered(t *testing.T) {
	names := optim.Registered()
	for _, want := range []string{
		"SGD", "Adam", "AdamW", "AdaBelief", "AdaBound", "AdaBoundW", "Adafactor",
		"Adahessian", "AdamP", "Adan", "LAMB", "LARS", "Lion", "MADGRAD",
		"NvNovoGrad", "SGDP", "SophiaG",
	} {
		assert.Contains(t, names, want)
	}
}

func TestBuild_UnknownType(t *testing.T) {
	_, err := optim.Build(config.Config{"type": "Nadam"}, nil)
	assert.ErrorIs(t, err, registry.ErrUnknownType)

	_, err = optim.Build(config.Config{"lr": 0.1}, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestBuild_ReadsHyperparameters(t *testing.T) {
	cfg, err := config.ParseBytes([]byte(`
type: AdamW
lr: 5.0e-4
weight_decay: 0.05
betas: [0.8, 0.99]
`))
	require.NoError(t, err)

	opt, err := optim.Build(cfg, namedParams("fc.weight"))
	require.NoError(t, err)
	assert.Equal(t, "AdamW", opt.Name())
	assert.Equal(t, float32(5e-4), opt.GetLR())
	assert.Equal(t, float32(0.05), opt.ParamGroups()[0].WeightDecay)

	_, err = optim.Build(config.Config{"type": "Adam", "betas": []any{0.9}}, namedParams("fc.weight"))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = optim.Build(config.Config{"type": "Adam", "betas": []any{0.9, 1.5}}, namedParams("fc.weight"))
	assert.ErrorIs(t, err, optim.ErrInvalidHyperparameter)
}

func TestBuild_ZeroBetaHonored(t *testing.T) {
	cfg, err := config.ParseBytes([]byte(`
type: Adam
lr: 0.1
betas: [0, 0.999]
`))
	require.NoError(t, err)

	param := scalarParam(t, 1.0)
	opt, err := optim.Build(cfg, []nn.NamedParameter{{Name: "x", Param: param}})
	require.NoError(t, err)

	require.NoError(t, opt.Step(gradsFor(param, 1.0)))
	require.NoError(t, opt.Step(gradsFor(param, -1.0)))
	assert.InDelta(t, 1.0, value(param), 1e-4)

	defaults, err := optim.Build(config.Config{"type": "SGD"}, namedParams("fc.weight"))
	require.NoError(t, err)
	assert.Equal(t, optim.DefaultSGDConfig().LR, defaults.GetLR())
}

func TestBuild_ParamwiseOptions(t *testing.T) {
	cfg, err := config.ParseBytes([]byte(`
type: SGD
lr: 0.1
momentum: 0.9
weight_decay: 1.0e-4
paramwise_options:
  bias:
    weight_decay: 0.0
  mix_block:
    lr: 0.01
    momentum: 0.5
  head:
    lr_mult: 10
    decay_mult: 2
`))
	require.NoError(t, err)

	named := namedParams("backbone.fc.weight", "backbone.fc.bias", "mix_block.weight", "head.fc.weight", "head.fc.bias", "frozen.weight")
	named[5].Param.SetRequiresGrad(false)

	opt, err := optim.Build(cfg, named)
	require.NoError(t, err)
	groups := groupByName(t, opt)

	// Patterns are tried in sorted order, so "bias" claims head.fc.bias.
	require.Contains(t, groups, "bias")
	assert.Len(t, groups["bias"].Params, 2)
	assert.Equal(t, float32(0), groups["bias"].WeightDecay)
	assert.Equal(t, float32(0.1), groups["bias"].LR)

	require.Contains(t, groups, "mix_block")
	assert.Equal(t, float32(0.01), groups["mix_block"].LR)
	assert.Equal(t, float32(0.5), groups["mix_block"].Momentum)

	require.Contains(t, groups, "head")
	assert.InDelta(t, 1.0, groups["head"].LR, 1e-6)
	assert.InDelta(t, 2e-4, groups["head"].WeightDecay, 1e-9)

	require.Contains(t, groups, "default")
	assert.Len(t, groups["default"].Params, 1)

	total := 0
	for _, g := range groups {
		total += len(g.Params)
	}
	assert.Equal(t, 5, total, "frozen parameters are excluded")
}

func TestBuild_ParamwiseOptionsList(t *testing.T) {
	cfg := config.FromMap(map[string]any{
		"type": "Adam",
		"lr":   1e-3,
		"paramwise_options": []any{
			map[string]any{"pattern": `^head\.`, "lr": 1e-2},
			map[string]any{"pattern": `bias$`, "weight_decay": 0.0},
		},
	})

	opt, err := optim.Build(cfg, namedParams("head.fc.bias", "fc.bias", "fc.weight"))
	require.NoError(t, err)
	groups := groupByName(t, opt)

	assert.Len(t, groups[`^head\.`].Params, 1, "the first matching pattern wins")
	assert.Len(t, groups[`bias$`].Params, 1)
	assert.Len(t, groups["default"].Params, 1)

	_, err = optim.Build(config.FromMap(map[string]any{
		"type":              "Adam",
		"paramwise_options": map[string]any{"(": map[string]any{"lr": 0.1}},
	}), namedParams("fc.weight"))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestBuild_LayerDecay(t *testing.T) {
	cfg, err := config.ParseBytes([]byte(`
type: AdamW
lr: 1.0
weight_decay: 0.05
constructor: LearningRateDecayOptimizerConstructor
paramwise_cfg:
  num_layers: 2
  decay_rate: 0.5
  decay_type: layer_wise
`))
	require.NoError(t, err)

	named := namedParams(
		"backbone.patch_embed.weight",
		"backbone.layers.0.fc.weight",
		"backbone.layers.1.fc.weight",
		"backbone.layers.1.fc.bias",
		"head.fc.weight",
	)
	opt, err := optim.Build(cfg, named)
	require.NoError(t, err)
	groups := groupByName(t, opt)

	want := map[string]struct {
		lr, wd float64
	}{
		"layer_0_decay":    {math.Pow(0.5, 3), 0.05},
		"layer_1_decay":    {math.Pow(0.5, 2), 0.05},
		"layer_2_decay":    {0.5, 0.05},
		"layer_2_no_decay": {0.5, 0},
		"layer_3_decay":    {1, 0.05},
	}
	require.Len(t, groups, len(want))
	for name, w := range want {
		require.Contains(t, groups, name)
		assert.InDelta(t, w.lr, groups[name].LR, 1e-6, name)
		assert.InDelta(t, w.wd, groups[name].WeightDecay, 1e-6, name)
	}

	delete(cfg, "paramwise_cfg")
	_, err = optim.Build(cfg, named)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
