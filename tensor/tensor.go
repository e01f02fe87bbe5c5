// Copyright 2025 MixGo Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for the float32 tensors MixGo
// trains on.
//
// Tensors are dense, row-major and always float32. Randomness is explicit:
// every random constructor takes a *rand.Rand, usually from NewRNG, so runs
// are reproducible.
//
//	rng := tensor.NewRNG(42)
//	x := tensor.Randn(tensor.Shape{8, 3, 32, 32}, rng)
package tensor

import (
	"math/rand/v2"

	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// Tensor is a dense float32 tensor.
type Tensor = tensor.Tensor

// Shape lists tensor dimensions.
type Shape = tensor.Shape

// New creates a zero tensor, validating the shape.
func New(shape Shape) (*Tensor, error) { return tensor.New(shape) }

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape) *Tensor { return tensor.Zeros(shape) }

// Ones creates a tensor filled with ones.
func Ones(shape Shape) *Tensor { return tensor.Ones(shape) }

// Full creates a tensor filled with value.
func Full(shape Shape, value float32) *Tensor { return tensor.Full(shape, value) }

// FromSlice wraps a copy of data in a tensor of the given shape.
func FromSlice(data []float32, shape Shape) (*Tensor, error) { return tensor.FromSlice(data, shape) }

// Randn draws from N(0, 1).
func Randn(shape Shape, rng *rand.Rand) *Tensor { return tensor.Randn(shape, rng) }

// Rand draws from U[0, 1).
func Rand(shape Shape, rng *rand.Rand) *Tensor { return tensor.Rand(shape, rng) }

// NewRNG returns a deterministic generator for seed.
func NewRNG(seed uint64) *rand.Rand { return tensor.NewRNG(seed) }

// MatMul computes a @ b for 2-D tensors.
func MatMul(a, b *Tensor) *Tensor { return tensor.MatMul(a, b) }
