package nn

import (
	"strconv"

	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// Sequential chains modules; children are named by their index.
//
// Example:
//
//	model := nn.NewSequential(
//	    nn.NewLinear(784, 128, true, rng),
//	    nn.NewReLU(),
//	    nn.NewLinear(128, 10, true, rng),
//	)
type Sequential struct {
	modules []Module
}

// NewSequential creates a Sequential container.
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: modules}
}

// Add appends a module.
func (s *Sequential) Add(m Module) {
	s.modules = append(s.modules, m)
}

// Forward runs the modules in order.
func (s *Sequential) Forward(input *tensor.Tensor) *tensor.Tensor {
	x := input
	for _, m := range s.modules {
		x = m.Forward(x)
	}
	return x
}

// Backward runs the modules in reverse order.
func (s *Sequential) Backward(gradOutput *tensor.Tensor) *tensor.Tensor {
	g := gradOutput
	for i := len(s.modules) - 1; i >= 0; i-- {
		g = s.modules[i].Backward(g)
	}
	return g
}

// Parameters returns the parameters of all children in order.
func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

// Children returns the modules named "0", "1", ...
func (s *Sequential) Children() []NamedModule {
	out := make([]NamedModule, len(s.modules))
	for i, m := range s.modules {
		out[i] = NamedModule{Name: strconv.Itoa(i), Module: m}
	}
	return out
}

// Len returns the number of children.
func (s *Sequential) Len() int { return len(s.modules) }

// Kind returns "Sequential".
func (s *Sequential) Kind() string { return "Sequential" }
