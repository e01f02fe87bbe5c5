package models

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/nn"
	"github.com/mixgo-ml/mixgo/internal/registry"
)

// Initializer initializes the weight and bias of one layer.
type Initializer func(m nn.WeightBias, rng *rand.Rand) error

// InitFactory builds an initializer from an init_cfg entry.
type InitFactory func(f *config.Fields) (Initializer, error)

var initializers = registry.New[InitFactory]("initializer")

// RegisterInit adds an init_cfg type.
func RegisterInit(name string, f InitFactory) { initializers.Register(name, f) }

// Initializers lists the registered init_cfg types.
func Initializers() []string { return initializers.Names() }

// ApplyInitCfg applies init_cfg entries in order. Each entry initializes
// every module of m whose Kind is listed under `layer`.
func ApplyInitCfg(m nn.Module, entries []config.Config, rng *rand.Rand) error {
	mods := nn.Modules(m)
	for i, entry := range entries {
		typ, err := entry.Type()
		if err != nil {
			return fmt.Errorf("init_cfg[%d]: %w", i, err)
		}
		factory, err := initializers.Get(typ)
		if err != nil {
			return fmt.Errorf("init_cfg[%d]: %w", i, err)
		}
		f := entry.Fields()
		layers := f.Strings("layer")
		if err := f.Err(); err != nil {
			return fmt.Errorf("init_cfg[%d]: %w", i, err)
		}
		if len(layers) == 0 {
			return fmt.Errorf("init_cfg[%d]: %w: %s needs a layer", i, config.ErrInvalidConfig, typ)
		}
		apply, err := factory(f)
		if err != nil {
			return fmt.Errorf("init_cfg[%d] %s: %w", i, typ, err)
		}
		for _, mod := range mods {
			wb, ok := mod.(nn.WeightBias)
			if !ok || !slices.Contains(layers, mod.Kind()) {
				continue
			}
			if err := apply(wb, rng); err != nil {
				return fmt.Errorf("init_cfg[%d] %s: %w", i, typ, err)
			}
		}
	}
	return nil
}

// biasFrom reads `bias`, overridden by `bias_prob` when present.
func biasFrom(f *config.Fields) (float64, error) {
	bias := f.Float("bias", 0)
	if f.Has("bias_prob") {
		p := f.Float("bias_prob", 0.01)
		if p <= 0 || p >= 1 {
			return 0, fmt.Errorf("%w: bias_prob must be in (0, 1), got %v", config.ErrInvalidConfig, p)
		}
		bias = nn.BiasInitWithProb(p)
	}
	return bias, f.Err()
}

func distribution(f *config.Fields, def string, allowed ...string) (string, error) {
	d := f.String("distribution", def)
	if err := f.Err(); err != nil {
		return "", err
	}
	if !slices.Contains(allowed, d) {
		return "", fmt.Errorf("%w: distribution %q (expected one of %v)", config.ErrInvalidConfig, d, allowed)
	}
	return d, nil
}

func fanMode(f *config.Fields, def nn.FanMode) (nn.FanMode, error) {
	mode := nn.FanMode(f.String("mode", string(def)))
	switch mode {
	case nn.FanIn, nn.FanOut, nn.FanAvg:
		return mode, f.Err()
	default:
		return "", fmt.Errorf("%w: mode %q (expected fan_in, fan_out or fan_avg)", config.ErrInvalidConfig, mode)
	}
}

func init() {
	RegisterInit("Constant", func(f *config.Fields) (Initializer, error) {
		val := f.Float("val", 0)
		bias, err := biasFrom(f)
		if err != nil {
			return nil, err
		}
		return func(m nn.WeightBias, _ *rand.Rand) error {
			nn.ConstantInit(m, val, bias)
			return nil
		}, nil
	})
	RegisterInit("Normal", func(f *config.Fields) (Initializer, error) {
		mean, std := f.Float("mean", 0), f.Float("std", 1)
		bias, err := biasFrom(f)
		if err != nil {
			return nil, err
		}
		return func(m nn.WeightBias, rng *rand.Rand) error {
			nn.NormalInit(m, mean, std, bias, rng)
			return nil
		}, nil
	})
	RegisterInit("TruncNormal", func(f *config.Fields) (Initializer, error) {
		mean, std := f.Float("mean", 0), f.Float("std", 1)
		a, b := f.Float("a", -2), f.Float("b", 2)
		bias, err := biasFrom(f)
		if err != nil {
			return nil, err
		}
		return func(m nn.WeightBias, rng *rand.Rand) error {
			return nn.TruncNormalInit(m, mean, std, a, b, bias, rng)
		}, nil
	})
	RegisterInit("Uniform", func(f *config.Fields) (Initializer, error) {
		a, b := f.Float("a", 0), f.Float("b", 1)
		bias, err := biasFrom(f)
		if err != nil {
			return nil, err
		}
		return func(m nn.WeightBias, rng *rand.Rand) error {
			nn.UniformInit(m, a, b, bias, rng)
			return nil
		}, nil
	})
	RegisterInit("Xavier", func(f *config.Fields) (Initializer, error) {
		gain := f.Float("gain", 1)
		dist, err := distribution(f, nn.DistNormal, nn.DistNormal, nn.DistUniform)
		if err != nil {
			return nil, err
		}
		bias, err := biasFrom(f)
		if err != nil {
			return nil, err
		}
		return func(m nn.WeightBias, rng *rand.Rand) error {
			return nn.XavierInit(m, gain, bias, dist, rng)
		}, nil
	})
	RegisterInit("Kaiming", func(f *config.Fields) (Initializer, error) {
		a := f.Float("a", 0)
		nonlinearity := f.String("nonlinearity", "relu")
		dist, err := distribution(f, nn.DistNormal, nn.DistNormal, nn.DistUniform)
		if err != nil {
			return nil, err
		}
		mode, err := fanMode(f, nn.FanOut)
		if err != nil {
			return nil, err
		}
		bias, err := biasFrom(f)
		if err != nil {
			return nil, err
		}
		return func(m nn.WeightBias, rng *rand.Rand) error {
			return nn.KaimingInit(m, a, mode, nonlinearity, bias, dist, rng)
		}, nil
	})
	RegisterInit("Caffe2Xavier", func(f *config.Fields) (Initializer, error) {
		bias, err := biasFrom(f)
		if err != nil {
			return nil, err
		}
		return func(m nn.WeightBias, rng *rand.Rand) error {
			return nn.Caffe2XavierInit(m, bias, rng)
		}, nil
	})
	RegisterInit("LecunNormal", func(f *config.Fields) (Initializer, error) {
		scale := f.Float("scale", 1)
		dist, err := distribution(f, nn.DistTruncatedNormal, nn.DistTruncatedNormal, nn.DistNormal, nn.DistUniform)
		if err != nil {
			return nil, err
		}
		mode, err := fanMode(f, nn.FanIn)
		if err != nil {
			return nil, err
		}
		return func(m nn.WeightBias, rng *rand.Rand) error {
			return nn.LecunNormalInit(m, scale, mode, dist, rng)
		}, nil
	})
}
