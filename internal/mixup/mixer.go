package mixup

import (
	"fmt"
	"math/rand/v2"

	"github.com/mixgo-ml/mixgo/internal/config"
)

// Mixer picks a mode per batch and mixes it.
//
// It is configured from the classifier's mixup keys:
//
//	alpha: [0.2, 1.0]          # Beta(α, α) per mode, or one value for all
//	mix_mode: [mixup, cutmix]  # one mode or a list
//	mix_prob: [0.5, 0.5]       # optional mode weights, uniform otherwise
//	mix_args: {resizemix: {scope: [0.1, 0.8]}}
//	mix_shuffle_no_repeat: false
type Mixer struct {
	modes      []string
	alphas     []float64
	probs      []float64
	strategies []Strategy
	noRepeat   bool
}

// NewMixer builds a mixer from a model config.
func NewMixer(cfg config.Config) (*Mixer, error) {
	f := cfg.Fields()
	modes := f.Strings("mix_mode")
	alphas := f.Floats("alpha", 1.0)
	probs := f.Floats("mix_prob")
	args := f.Sub("mix_args")
	noRepeat := f.Bool("mix_shuffle_no_repeat", false)
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("mixup: %w", err)
	}

	if len(modes) == 0 {
		modes = []string{"mixup"}
	}
	if len(alphas) == 1 && len(modes) > 1 {
		for len(alphas) < len(modes) {
			alphas = append(alphas, alphas[0])
		}
	}
	if len(alphas) != len(modes) {
		return nil, fmt.Errorf("mixup: %w: %d alpha values for %d modes", config.ErrInvalidConfig, len(alphas), len(modes))
	}
	if probs != nil {
		if len(probs) != len(modes) {
			return nil, fmt.Errorf("mixup: %w: %d mix_prob values for %d modes", config.ErrInvalidConfig, len(probs), len(modes))
		}
		var sum float64
		for _, p := range probs {
			if p < 0 {
				return nil, fmt.Errorf("mixup: %w: negative mix_prob %v", config.ErrInvalidConfig, p)
			}
			sum += p
		}
		if sum <= 0 {
			return nil, fmt.Errorf("mixup: %w: mix_prob sums to zero", config.ErrInvalidConfig)
		}
		for i := range probs {
			probs[i] /= sum
		}
	}

	m := &Mixer{modes: modes, alphas: alphas, probs: probs, noRepeat: noRepeat}
	for _, mode := range modes {
		modeArgs, err := args.Sub(mode)
		if err != nil {
			return nil, fmt.Errorf("mixup: mix_args: %w", err)
		}
		s, err := NewStrategy(mode, modeArgs)
		if err != nil {
			return nil, err
		}
		m.strategies = append(m.strategies, s)
	}
	return m, nil
}

// Modes returns the configured modes.
func (m *Mixer) Modes() []string { return m.modes }

// pick chooses a mode index.
func (m *Mixer) pick(rng *rand.Rand) int {
	if len(m.modes) == 1 {
		return 0
	}
	if m.probs == nil {
		return rng.IntN(len(m.modes))
	}
	u := rng.Float64()
	for i, p := range m.probs {
		if u < p {
			return i
		}
		u -= p
	}
	return len(m.probs) - 1
}

// Mix mixes one batch with a freshly drawn mode, lam and permutation.
func (m *Mixer) Mix(b Batch, rng *rand.Rand) (Mixed, error) {
	i := m.pick(rng)
	lam := SampleLam(m.alphas[i], rng)
	perm := Permutation(b.Len(), m.noRepeat, rng)
	mixed, err := m.strategies[i].Mix(b, perm, lam, rng)
	if err != nil {
		return Mixed{}, fmt.Errorf("%s: %w", m.modes[i], err)
	}
	return mixed, nil
}
