package optim

import (
	"fmt"
)

// HVP computes Hessian-vector products: given one vector per parameter
// tensor it returns H·v keyed the same way.
type HVP func(v Gradients) (Gradients, error)

// FiniteDifferenceHVP approximates H·v by central differences of the
// gradient:
//
//	H·v ≈ (∇L(θ + eps·v) - ∇L(θ - eps·v)) / (2·eps)
//
// gradFn must evaluate the loss gradient at the current parameter values
// and return tensors it will not reuse. Parameters are perturbed in place
// and restored before returning. eps defaults to 1e-3.
func FiniteDifferenceHVP(gradFn func() (Gradients, error), eps float32) HVP {
	if eps == 0 {
		eps = 1e-3
	}
	return func(v Gradients) (Gradients, error) {
		shift := func(scale float32) {
			for p, dir := range v {
				data, d := p.Data(), dir.Data()
				for i := range data {
					data[i] += scale * d[i]
				}
			}
		}

		shift(eps)
		plus, err := gradFn()
		shift(-eps)
		if err != nil {
			return nil, fmt.Errorf("hvp: gradient at θ+εv: %w", err)
		}
		shift(-eps)
		minus, err := gradFn()
		shift(eps)
		if err != nil {
			return nil, fmt.Errorf("hvp: gradient at θ-εv: %w", err)
		}

		out := make(Gradients, len(v))
		for p := range v {
			gp, gm := plus[p], minus[p]
			if gp == nil || gm == nil {
				continue
			}
			h := gp.Clone()
			hd, md := h.Data(), gm.Data()
			for i := range hd {
				hd[i] = (hd[i] - md[i]) / (2 * eps)
			}
			out[p] = h
		}
		return out, nil
	}
}
