package nn

import (
	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Parameters are tensors that receive gradients during the backward pass.
// They typically represent weights and biases of layers.
//
// Example:
//
//	weight := nn.NewParameter("weight", weightTensor)
//	w := weight.Tensor()
//	grad := weight.Grad() // nil before the first backward pass
type Parameter struct {
	name         string         // Parameter name (e.g., "weight", "bias")
	tensor       *tensor.Tensor // The parameter tensor
	grad         *tensor.Tensor // Gradient tensor (computed during backward pass)
	requiresGrad bool
}

// NewParameter creates a new trainable parameter.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{
		name:         name,
		tensor:       t,
		requiresGrad: true,
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.tensor
}

// Grad returns the gradient tensor, or nil before the first backward pass.
func (p *Parameter) Grad() *tensor.Tensor {
	return p.grad
}

// SetGrad sets the gradient tensor.
func (p *Parameter) SetGrad(grad *tensor.Tensor) {
	p.grad = grad
}

// AccumulateGrad adds g into the stored gradient, allocating it on first use.
// Frozen parameters ignore the call.
func (p *Parameter) AccumulateGrad(g *tensor.Tensor) {
	if !p.requiresGrad {
		return
	}
	if p.grad == nil {
		p.grad = g.Clone()
		return
	}
	dst := p.grad.Data()
	for i, v := range g.Data() {
		dst[i] += v
	}
}

// ZeroGrad clears the gradient tensor.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}

// RequiresGrad reports whether the parameter is trainable.
func (p *Parameter) RequiresGrad() bool {
	return p.requiresGrad
}

// SetRequiresGrad freezes or unfreezes the parameter.
func (p *Parameter) SetRequiresGrad(v bool) {
	p.requiresGrad = v
	if !v {
		p.grad = nil
	}
}
