// Package tensor implements the dense float32 tensor used throughout MixGo.
//
// Tensors are row-major and always contiguous. Optimizers and layers work
// directly on Data() slices; the helpers in this package cover creation,
// reshaping, reductions and the 2-D matrix products the layers need.
package tensor

import (
	"fmt"
	"math"
)

// Tensor is a contiguous row-major float32 tensor.
type Tensor struct {
	shape  Shape
	stride []int
	data   []float32
}

// New allocates a zero-filled tensor with the given shape.
func New(shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &Tensor{
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		data:   make([]float32, shape.NumElements()),
	}, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Strides returns the tensor's memory strides.
func (t *Tensor) Strides() []int {
	return t.stride
}

// Dim returns the number of dimensions.
func (t *Tensor) Dim() int {
	return len(t.shape)
}

// NumElements returns the number of elements.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Data returns the underlying storage. Writes are visible to the tensor.
func (t *Tensor) Data() []float32 {
	return t.data
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.data))
	copy(data, t.data)
	return &Tensor{
		shape:  t.shape.Clone(),
		stride: append([]int(nil), t.stride...),
		data:   data,
	}
}

// Reshape returns a tensor sharing storage with t but viewed with a new shape.
// One dimension may be -1 and is inferred.
func (t *Tensor) Reshape(dims ...int) (*Tensor, error) {
	shape := Shape(dims).Clone()
	infer := -1
	known := 1
	for i, d := range shape {
		switch {
		case d == -1 && infer == -1:
			infer = i
		case d == -1:
			return nil, fmt.Errorf("reshape: only one dimension can be inferred, got %v", dims)
		case d <= 0:
			return nil, fmt.Errorf("reshape: invalid dimension %d in %v", d, dims)
		default:
			known *= d
		}
	}
	if infer >= 0 {
		if known == 0 || len(t.data)%known != 0 {
			return nil, fmt.Errorf("reshape: cannot infer dimension for %v from %d elements", dims, len(t.data))
		}
		shape[infer] = len(t.data) / known
	}
	if shape.NumElements() != len(t.data) {
		return nil, fmt.Errorf("reshape: shape %v incompatible with %d elements", shape, len(t.data))
	}
	return &Tensor{shape: shape, stride: shape.ComputeStrides(), data: t.data}, nil
}

// Fill sets every element to v.
func (t *Tensor) Fill(v float32) {
	for i := range t.data {
		t.data[i] = v
	}
}

// CopyFrom copies the values of other into t. Shapes must match.
func (t *Tensor) CopyFrom(other *Tensor) error {
	if !t.shape.Equal(other.shape) {
		return fmt.Errorf("copy: shape mismatch %v vs %v", t.shape, other.shape)
	}
	copy(t.data, other.data)
	return nil
}

// offset converts a multi-dimensional index into a flat offset.
func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: index %v has %d dims, tensor has %d", idx, len(idx), len(t.shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.shape))
		}
		off += v * t.stride[i]
	}
	return off
}

// At returns the element at idx.
func (t *Tensor) At(idx ...int) float32 {
	return t.data[t.offset(idx)]
}

// Set writes v at idx.
func (t *Tensor) Set(v float32, idx ...int) {
	t.data[t.offset(idx)] = v
}

// Norm returns the L2 norm, accumulated in float64.
func (t *Tensor) Norm() float64 {
	return Norm(t.data)
}

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float64 {
	var s float64
	for _, v := range t.data {
		s += float64(v)
	}
	return s
}

// Mean returns the arithmetic mean of all elements.
func (t *Tensor) Mean() float64 {
	return t.Sum() / float64(len(t.data))
}

// Max returns the largest element.
func (t *Tensor) Max() float32 {
	m := float32(math.Inf(-1))
	for _, v := range t.data {
		if v > m {
			m = v
		}
	}
	return m
}

// String returns a short description of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v)", t.shape)
}

// Norm returns the L2 norm of a float32 slice, accumulated in float64.
func Norm(xs []float32) float64 {
	var s float64
	for _, v := range xs {
		s += float64(v) * float64(v)
	}
	return math.Sqrt(s)
}

// Dot returns the inner product of two equally sized slices.
func Dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
