// Copyright 2025 MixGo Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package mixup provides batch mixing strategies.
//
//	m, err := mixup.NewMixer(cfg) // alpha, mix_mode, mix_prob, mix_args
//	mixed, err := m.Mix(mixup.Batch{Images: x, Labels: y}, rng)
//	loss, grad, err := lossFn.Forward(logits, mixed.Target())
package mixup

import (
	"github.com/mixgo-ml/mixgo/internal/mixup"
)

// Types.
type (
	Batch     = mixup.Batch
	Mixed     = mixup.Mixed
	Strategy  = mixup.Strategy
	Factory   = mixup.Factory
	Mixer     = mixup.Mixer
	Box       = mixup.Box
	Vanilla   = mixup.Vanilla
	Mixup     = mixup.Mixup
	CutMix    = mixup.CutMix
	ResizeMix = mixup.ResizeMix
	GridMix   = mixup.GridMix
)

// ErrUnsupportedMode is returned for modes that need model internals.
var ErrUnsupportedMode = mixup.ErrUnsupportedMode

// Functions.
var (
	NewMixer    = mixup.NewMixer
	NewStrategy = mixup.NewStrategy
	Register    = mixup.Register
	Modes       = mixup.Modes
	SampleLam   = mixup.SampleLam
	Permutation = mixup.Permutation
	RandBox     = mixup.RandBox
)
