// Copyright 2025 MixGo Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixgo-ml/mixgo/nn"
	"github.com/mixgo-ml/mixgo/optim"
	"github.com/mixgo-ml/mixgo/tensor"
)

func TestPublicAPI_TrainsLinearLayer(t *testing.T) {
	rng := tensor.NewRNG(1)
	layer := nn.NewLinear(2, 1, true, rng)
	opt, err := optim.NewLion(optim.Params(layer.Parameters()...), optim.LionConfig{LR: 1e-2, Betas: [2]float32{0.9, 0.99}})
	require.NoError(t, err)

	x, err := tensor.FromSlice([]float32{1, 0, 0, 1}, tensor.Shape{2, 2})
	require.NoError(t, err)
	want := []float32{1, -1}

	loss := func() float64 {
		y := layer.Forward(x).Data()
		var l float64
		for i := range y {
			d := float64(y[i] - want[i])
			l += d * d
		}
		return l
	}
	before := loss()
	for range 100 {
		y := layer.Forward(x)
		grad := tensor.Zeros(y.Shape())
		for i, v := range y.Data() {
			grad.Data()[i] = 2 * (v - want[i])
		}
		layer.Backward(grad)
		require.NoError(t, opt.Step(nn.CollectGrads(layer.Parameters())))
		opt.ZeroGrad()
	}
	assert.Less(t, loss(), before)
	assert.Contains(t, optim.Registered(), "SophiaG")
}
