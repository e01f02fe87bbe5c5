// Copyright 2025 MixGo Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides layers, losses and weight initialization.
//
// Layers implement their own backward pass:
//
//	model := nn.NewSequential(
//	    nn.NewLinear(784, 128, true, rng),
//	    nn.NewReLU(),
//	    nn.NewLinear(128, 10, true, rng),
//	)
//	logits := model.Forward(x)
//	loss, grad, err := nn.CrossEntropyLoss{}.Forward(logits, nn.HardTarget(labels))
//	model.Backward(grad)
package nn

import (
	"math/rand/v2"

	"github.com/mixgo-ml/mixgo/internal/nn"
	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// Core types.
type (
	Module         = nn.Module
	Container      = nn.Container
	NamedModule    = nn.NamedModule
	NamedParameter = nn.NamedParameter
	WeightBias     = nn.WeightBias
	Parameter      = nn.Parameter
	Linear         = nn.Linear
	ReLU           = nn.ReLU
	LayerNorm      = nn.LayerNorm
	Sequential     = nn.Sequential
	FanMode        = nn.FanMode
)

// Losses and targets.
type (
	Loss             = nn.Loss
	Target           = nn.Target
	CrossEntropyLoss = nn.CrossEntropyLoss
	LabelSmoothLoss  = nn.LabelSmoothLoss
)

// Fan modes.
const (
	FanIn  = nn.FanIn
	FanOut = nn.FanOut
	FanAvg = nn.FanAvg
)

// NewParameter creates a trainable parameter.
func NewParameter(name string, t *tensor.Tensor) *Parameter { return nn.NewParameter(name, t) }

// NewLinear creates a fully connected layer.
func NewLinear(in, out int, withBias bool, rng *rand.Rand) *Linear {
	return nn.NewLinear(in, out, withBias, rng)
}

// NewReLU creates a ReLU activation.
func NewReLU() *ReLU { return nn.NewReLU() }

// NewLayerNorm creates a layer norm over the last dimension.
func NewLayerNorm(features int, eps float32) *LayerNorm { return nn.NewLayerNorm(features, eps) }

// NewSequential chains modules.
func NewSequential(modules ...Module) *Sequential { return nn.NewSequential(modules...) }

// NamedParameters returns the parameters of m with dotted names.
func NamedParameters(prefix string, m Module) []NamedParameter { return nn.NamedParameters(prefix, m) }

// CollectGrads builds the gradient map optimizers step on.
func CollectGrads(params []*Parameter) map[*tensor.Tensor]*tensor.Tensor {
	return nn.CollectGrads(params)
}

// HardTarget wraps plain labels.
func HardTarget(labels []int) Target { return nn.HardTarget(labels) }

// MixedTarget builds lam·onehot(a) + (1-lam)·onehot(b).
func MixedTarget(a, b []int, lam float64) Target { return nn.MixedTarget(a, b, lam) }

// Tensor-level initializers.
var (
	CalculateFanInFanOut = nn.CalculateFanInFanOut
	CalculateGain        = nn.CalculateGain
	ConstantFill         = nn.ConstantFill
	NormalFill           = nn.NormalFill
	UniformFill          = nn.UniformFill
	TruncNormalFill      = nn.TruncNormalFill
	XavierUniform        = nn.XavierUniform
	XavierNormal         = nn.XavierNormal
	KaimingUniform       = nn.KaimingUniform
	KaimingNormal        = nn.KaimingNormal
	VarianceScaling      = nn.VarianceScaling
	LecunNormal          = nn.LecunNormal
	BiasInitWithProb     = nn.BiasInitWithProb
)

// Module-level initializers.
var (
	ConstantInit     = nn.ConstantInit
	XavierInit       = nn.XavierInit
	NormalInit       = nn.NormalInit
	TruncNormalInit  = nn.TruncNormalInit
	UniformInit      = nn.UniformInit
	KaimingInit      = nn.KaimingInit
	Caffe2XavierInit = nn.Caffe2XavierInit
	LecunNormalInit  = nn.LecunNormalInit
	BiasProbInit     = nn.BiasProbInit
)
