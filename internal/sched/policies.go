package sched

import (
	"fmt"
	"math"
	"sort"

	"github.com/mixgo-ml/mixgo/internal/config"
)

// Fixed keeps the base rate.
type Fixed struct{}

// LR implements Policy.
func (Fixed) LR(base float64, _, _ int) float64 { return base }

// Step decays the rate by Gamma at every milestone. A single Every value
// decays every Every units instead.
type Step struct {
	Milestones []int
	Every      int
	Gamma      float64
	MinLR      float64
}

// LR implements Policy.
func (s Step) LR(base float64, progress, _ int) float64 {
	var exp int
	if s.Every > 0 {
		exp = progress / s.Every
	} else {
		exp = sort.Search(len(s.Milestones), func(i int) bool { return s.Milestones[i] > progress })
	}
	return math.Max(base*math.Pow(s.Gamma, float64(exp)), s.MinLR)
}

// Exp decays the rate by Gamma every unit.
type Exp struct {
	Gamma float64
}

// LR implements Policy.
func (e Exp) LR(base float64, progress, _ int) float64 {
	return base * math.Pow(e.Gamma, float64(progress))
}

// Poly decays polynomially from base to MinLR.
type Poly struct {
	Power float64
	MinLR float64
}

// LR implements Policy.
func (p Poly) LR(base float64, progress, maxProgress int) float64 {
	coeff := math.Pow(1-float64(progress)/float64(maxProgress), p.Power)
	return (base-p.MinLR)*coeff + p.MinLR
}

// CosineAnnealing follows half a cosine from base to a floor given either
// absolutely (MinLR) or relative to base (MinLRRatio).
type CosineAnnealing struct {
	MinLR      float64
	MinLRRatio float64
	UseRatio   bool
}

// LR implements Policy.
func (c CosineAnnealing) LR(base float64, progress, maxProgress int) float64 {
	target := c.MinLR
	if c.UseRatio {
		target = base * c.MinLRRatio
	}
	return annealCos(base, target, float64(progress)/float64(maxProgress))
}

// annealCos interpolates from start to end along a half cosine as factor
// goes from 0 to 1.
func annealCos(start, end, factor float64) float64 {
	return end + (start-end)/2*(1+math.Cos(math.Pi*factor))
}

func init() {
	RegisterPolicy("fixed", func(*config.Fields) (Policy, error) { return Fixed{}, nil })
	RegisterPolicy("step", func(f *config.Fields) (Policy, error) {
		steps := f.Ints("step")
		s := Step{Gamma: f.Float("gamma", 0.1), MinLR: f.Float("min_lr", 0)}
		switch {
		case len(steps) == 0:
			return nil, fmt.Errorf("%w: step policy requires \"step\"", config.ErrInvalidConfig)
		case len(steps) == 1 && !f.IsList("step"):
			s.Every = steps[0]
			if s.Every <= 0 {
				return nil, fmt.Errorf("%w: step must be > 0", config.ErrInvalidConfig)
			}
		default:
			if !sort.IntsAreSorted(steps) {
				return nil, fmt.Errorf("%w: step milestones must be ascending", config.ErrInvalidConfig)
			}
			s.Milestones = steps
		}
		return s, nil
	})
	RegisterPolicy("exp", func(f *config.Fields) (Policy, error) {
		return Exp{Gamma: f.Float("gamma", 0.1)}, nil
	})
	RegisterPolicy("poly", func(f *config.Fields) (Policy, error) {
		return Poly{Power: f.Float("power", 1), MinLR: f.Float("min_lr", 0)}, nil
	})
	RegisterPolicy("CosineAnnealing", func(f *config.Fields) (Policy, error) {
		if f.Has("min_lr") == f.Has("min_lr_ratio") {
			return nil, fmt.Errorf("%w: CosineAnnealing needs exactly one of min_lr and min_lr_ratio", config.ErrInvalidConfig)
		}
		return CosineAnnealing{
			MinLR:      f.Float("min_lr", 0),
			MinLRRatio: f.Float("min_lr_ratio", 0),
			UseRatio:   f.Has("min_lr_ratio"),
		}, nil
	})
}
