package optim

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mixgo-ml/mixgo/internal/nn"
	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// paramState holds the per-parameter buffers of an optimizer.
type paramState struct {
	step    int
	buffers map[string]*tensor.Tensor
	scalars map[string]float64
}

func newParamState() *paramState {
	return &paramState{
		buffers: make(map[string]*tensor.Tensor),
		scalars: make(map[string]float64),
	}
}

// buffer returns the named buffer, allocating zeros of shape on first use.
func (s *paramState) buffer(name string, shape tensor.Shape) *tensor.Tensor {
	if b, ok := s.buffers[name]; ok {
		return b
	}
	b := tensor.Zeros(shape)
	s.buffers[name] = b
	return b
}

func (s *paramState) has(name string) bool {
	_, ok := s.buffers[name]
	return ok
}

// base carries what every optimizer shares: groups, state and the
// gradient iteration.
type base struct {
	name   string
	groups []*ParamGroup
	state  map[*nn.Parameter]*paramState
}

func newBase(name string, sets []ParamSet, lr, weightDecay, momentum float32) (base, error) {
	b := base{name: name, state: make(map[*nn.Parameter]*paramState)}
	seen := make(map[*nn.Parameter]bool)
	for i, set := range sets {
		g := &ParamGroup{
			Name:        set.Name,
			Params:      set.Params,
			LR:          pick(set.LR, lr),
			WeightDecay: pick(set.WeightDecay, weightDecay),
			Momentum:    pick(set.Momentum, momentum),
		}
		if g.Name == "" {
			g.Name = strconv.Itoa(i)
		}
		g.InitialLR = g.LR
		if err := checkLR(name, g.LR); err != nil {
			return base{}, err
		}
		if err := checkWeightDecay(name, g.WeightDecay); err != nil {
			return base{}, err
		}
		for _, p := range g.Params {
			if seen[p] {
				return base{}, fmt.Errorf("%s: parameter %q appears in more than one group", name, p.Name())
			}
			seen[p] = true
		}
		b.groups = append(b.groups, g)
	}
	return b, nil
}

// update is one parameter visited by each.
type update struct {
	group *ParamGroup
	param *nn.Parameter
	data  []float32
	grad  []float32
	state *paramState
}

// each visits every parameter that has a gradient, after bumping its step.
// The gradient slice belongs to the caller and must not be modified.
func (b *base) each(grads Gradients, fn func(u update) error) error {
	for _, g := range b.groups {
		for _, p := range g.Params {
			if !p.RequiresGrad() {
				continue
			}
			grad, ok := grads[p.Tensor()]
			if !ok || grad == nil {
				continue
			}
			if grad.NumElements() != p.Tensor().NumElements() {
				return fmt.Errorf("%s: gradient for %q has %d elements, parameter has %d",
					b.name, p.Name(), grad.NumElements(), p.Tensor().NumElements())
			}
			st := b.stateFor(p)
			st.step++
			if err := fn(update{group: g, param: p, data: p.Tensor().Data(), grad: grad.Data(), state: st}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *base) stateFor(p *nn.Parameter) *paramState {
	st, ok := b.state[p]
	if !ok {
		st = newParamState()
		b.state[p] = st
	}
	return st
}

// Name returns the optimizer type name.
func (b *base) Name() string { return b.name }

// ParamGroups returns the parameter groups.
func (b *base) ParamGroups() []*ParamGroup { return b.groups }

// ZeroGrad clears gradients for all parameters.
func (b *base) ZeroGrad() {
	for _, g := range b.groups {
		for _, p := range g.Params {
			p.ZeroGrad()
		}
	}
}

// GetLR returns the learning rate of the first group.
func (b *base) GetLR() float32 {
	if len(b.groups) == 0 {
		return 0
	}
	return b.groups[0].LR
}

// SetLR sets the learning rate of every group.
func (b *base) SetLR(lr float32) {
	for _, g := range b.groups {
		g.LR = lr
	}
}

func (b *base) params() []*nn.Parameter {
	var out []*nn.Parameter
	for _, g := range b.groups {
		out = append(out, g.Params...)
	}
	return out
}

// StateDict exports per-parameter state. Keys are
// "state.<param index>.<buffer>", "scalar.<param index>.<name>" and
// "step.<param index>", with parameters indexed across groups in order.
func (b *base) StateDict() map[string]*tensor.Tensor {
	out := make(map[string]*tensor.Tensor)
	for i, p := range b.params() {
		st, ok := b.state[p]
		if !ok {
			continue
		}
		out[fmt.Sprintf("step.%d", i)] = tensor.Full(tensor.Shape{1}, float32(st.step))
		for name, buf := range st.buffers {
			out[fmt.Sprintf("state.%d.%s", i, name)] = buf.Clone()
		}
		for name, v := range st.scalars {
			out[fmt.Sprintf("scalar.%d.%s", i, name)] = tensor.Full(tensor.Shape{1}, float32(v))
		}
	}
	return out
}

// LoadStateDict restores state exported by StateDict.
func (b *base) LoadStateDict(state map[string]*tensor.Tensor) error {
	params := b.params()
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		parts := strings.SplitN(key, ".", 3)
		if len(parts) < 2 {
			return fmt.Errorf("%s: malformed state key %q", b.name, key)
		}
		idx, err := strconv.Atoi(parts[1])
		if err != nil || idx < 0 || idx >= len(params) {
			return fmt.Errorf("%s: state key %q does not name a parameter", b.name, key)
		}
		st := b.stateFor(params[idx])
		t := state[key]

		switch {
		case parts[0] == "step" && len(parts) == 2:
			st.step = int(t.Data()[0])
		case parts[0] == "state" && len(parts) == 3:
			st.buffers[parts[2]] = t.Clone()
		case parts[0] == "scalar" && len(parts) == 3:
			st.scalars[parts[2]] = float64(t.Data()[0])
		default:
			return fmt.Errorf("%s: malformed state key %q", b.name, key)
		}
	}
	return nil
}
