package tensor

import (
	"fmt"

	"github.com/mixgo-ml/mixgo/internal/parallel"
)

// kernels is the parallel configuration used by the matrix kernels.
var kernels = parallel.DefaultConfig()

func check2D(op string, a, b *Tensor) {
	if a.Dim() != 2 || b.Dim() != 2 {
		panic(fmt.Sprintf("%s: expected 2D tensors, got %v and %v", op, a.shape, b.shape))
	}
}

// MatMul computes a @ b for a [M, K] and b [K, N].
func MatMul(a, b *Tensor) *Tensor {
	check2D("MatMul", a, b)
	m, k, n := a.shape[0], a.shape[1], b.shape[1]
	if b.shape[0] != k {
		panic(fmt.Sprintf("MatMul: inner dimensions differ: %v @ %v", a.shape, b.shape))
	}
	out := Zeros(Shape{m, n})
	parallel.For(m, func(i int) {
		row := out.data[i*n : (i+1)*n]
		for p := 0; p < k; p++ {
			av := a.data[i*k+p]
			if av == 0 {
				continue
			}
			brow := b.data[p*n : (p+1)*n]
			for j, bv := range brow {
				row[j] += av * bv
			}
		}
	}, kernels)
	return out
}

// MatMulTransB computes a @ bᵀ for a [M, K] and b [N, K].
func MatMulTransB(a, b *Tensor) *Tensor {
	check2D("MatMulTransB", a, b)
	m, k, n := a.shape[0], a.shape[1], b.shape[0]
	if b.shape[1] != k {
		panic(fmt.Sprintf("MatMulTransB: inner dimensions differ: %v @ %vᵀ", a.shape, b.shape))
	}
	out := Zeros(Shape{m, n})
	parallel.For(m, func(i int) {
		arow := a.data[i*k : (i+1)*k]
		for j := 0; j < n; j++ {
			brow := b.data[j*k : (j+1)*k]
			var s float32
			for p, av := range arow {
				s += av * brow[p]
			}
			out.data[i*n+j] = s
		}
	}, kernels)
	return out
}

// MatMulTransA computes aᵀ @ b for a [K, M] and b [K, N].
func MatMulTransA(a, b *Tensor) *Tensor {
	check2D("MatMulTransA", a, b)
	k, m, n := a.shape[0], a.shape[1], b.shape[1]
	if b.shape[0] != k {
		panic(fmt.Sprintf("MatMulTransA: inner dimensions differ: %vᵀ @ %v", a.shape, b.shape))
	}
	out := Zeros(Shape{m, n})
	parallel.For(m, func(i int) {
		row := out.data[i*n : (i+1)*n]
		for p := 0; p < k; p++ {
			av := a.data[p*m+i]
			if av == 0 {
				continue
			}
			brow := b.data[p*n : (p+1)*n]
			for j, bv := range brow {
				row[j] += av * bv
			}
		}
	}, kernels)
	return out
}

// SumRows reduces a [M, N] tensor over its first dimension, returning [N].
func SumRows(a *Tensor) *Tensor {
	if a.Dim() != 2 {
		panic(fmt.Sprintf("SumRows: expected 2D tensor, got %v", a.shape))
	}
	m, n := a.shape[0], a.shape[1]
	out := Zeros(Shape{n})
	for i := 0; i < m; i++ {
		for j, v := range a.data[i*n : (i+1)*n] {
			out.data[j] += v
		}
	}
	return out
}
