// Copyright 2025 MixGo Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package mixup_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/mixup"
	"github.com/mixgo-ml/mixgo/tensor"
)

func TestPublicAPI_Mixer(t *testing.T) {
	m, err := mixup.NewMixer(config.FromMap(map[string]any{
		"alpha":    0.4,
		"mix_mode": []any{"mixup", "cutmix", "gridmix"},
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"mixup", "cutmix", "gridmix"}, m.Modes())

	rng := tensor.NewRNG(2)
	b := mixup.Batch{Images: tensor.Rand(tensor.Shape{4, 3, 8, 8}, rng), Labels: []int{0, 1, 2, 3}}
	for range 10 {
		mixed, err := m.Mix(b, rng)
		require.NoError(t, err)
		assert.Equal(t, b.Images.Shape(), mixed.Images.Shape())
		assert.Contains(t, m.Modes(), mixed.Mode)
	}
}
