// Package nn implements the layers, losses and weight initialization
// schemes used by MixGo models.
//
// Layers compute their own backward pass: Forward caches what Backward
// needs, and Backward accumulates parameter gradients and returns the
// gradient with respect to the layer input.
package nn

import (
	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// Module is the base interface for all neural network components.
type Module interface {
	// Forward computes the output of the module and caches the
	// activations needed by Backward.
	Forward(input *tensor.Tensor) *tensor.Tensor

	// Backward takes the gradient w.r.t. the last Forward output,
	// accumulates parameter gradients and returns the gradient
	// w.r.t. the input.
	Backward(gradOutput *tensor.Tensor) *tensor.Tensor

	// Parameters returns all trainable parameters of this module,
	// including those of nested modules.
	Parameters() []*Parameter

	// Kind returns the layer type name used by init_cfg matching.
	Kind() string
}

// Container is implemented by modules that hold named child modules.
type Container interface {
	Children() []NamedModule
}

// NamedModule pairs a child module with its name inside the parent.
type NamedModule struct {
	Name   string
	Module Module
}

// NamedParameter pairs a parameter with its fully qualified name.
type NamedParameter struct {
	Name  string
	Param *Parameter
}

// WeightBias is implemented by layers with a weight and an optional bias.
type WeightBias interface {
	Weight() *Parameter
	Bias() *Parameter
}

// NamedParameters walks m and returns its parameters with dotted names
// in definition order (e.g. "0.weight", "backbone.2.bias").
func NamedParameters(prefix string, m Module) []NamedParameter {
	var out []NamedParameter
	walkNamed(prefix, m, func(name string, mod Module) {
		if _, ok := mod.(Container); ok {
			return
		}
		for _, p := range mod.Parameters() {
			out = append(out, NamedParameter{Name: join(name, p.Name()), Param: p})
		}
	})
	return out
}

// Modules returns m and all nested modules, depth first.
func Modules(m Module) []Module {
	var out []Module
	walkNamed("", m, func(_ string, mod Module) {
		out = append(out, mod)
	})
	return out
}

func walkNamed(prefix string, m Module, visit func(string, Module)) {
	visit(prefix, m)
	if c, ok := m.(Container); ok {
		for _, child := range c.Children() {
			walkNamed(join(prefix, child.Name), child.Module, visit)
		}
	}
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// CollectGrads builds the gradient map consumed by optimizers from the
// gradients stored on params. Parameters without a gradient are omitted.
func CollectGrads(params []*Parameter) map[*tensor.Tensor]*tensor.Tensor {
	grads := make(map[*tensor.Tensor]*tensor.Tensor, len(params))
	for _, p := range params {
		if g := p.Grad(); g != nil {
			grads[p.Tensor()] = g
		}
	}
	return grads
}

// ZeroGrad clears the gradients of all parameters of m.
func ZeroGrad(m Module) {
	for _, p := range m.Parameters() {
		p.ZeroGrad()
	}
}
