package nn

import (
	"fmt"
	"math/rand/v2"
)

func checkDistribution(distribution string) error {
	if distribution != DistUniform && distribution != DistNormal {
		return fmt.Errorf("invalid distribution %q (expected uniform or normal)", distribution)
	}
	return nil
}

func fillBias(m WeightBias, bias float64) {
	if b := m.Bias(); b != nil {
		ConstantFill(b.Tensor(), float32(bias))
	}
}

// ConstantInit sets the weight to val and the bias to bias.
func ConstantInit(m WeightBias, val, bias float64) {
	if w := m.Weight(); w != nil {
		ConstantFill(w.Tensor(), float32(val))
	}
	fillBias(m, bias)
}

// XavierInit applies Xavier initialization with the given distribution.
func XavierInit(m WeightBias, gain, bias float64, distribution string, rng *rand.Rand) error {
	if err := checkDistribution(distribution); err != nil {
		return err
	}
	if w := m.Weight(); w != nil {
		var err error
		if distribution == DistUniform {
			err = XavierUniform(w.Tensor(), gain, rng)
		} else {
			err = XavierNormal(w.Tensor(), gain, rng)
		}
		if err != nil {
			return err
		}
	}
	fillBias(m, bias)
	return nil
}

// NormalInit draws the weight from N(mean, std²).
func NormalInit(m WeightBias, mean, std, bias float64, rng *rand.Rand) {
	if w := m.Weight(); w != nil {
		NormalFill(w.Tensor(), mean, std, rng)
	}
	fillBias(m, bias)
}

// TruncNormalInit draws the weight from N(mean, std²) truncated to [a, b].
func TruncNormalInit(m WeightBias, mean, std, a, b, bias float64, rng *rand.Rand) error {
	if w := m.Weight(); w != nil {
		if err := TruncNormalFill(w.Tensor(), mean, std, a, b, rng); err != nil {
			return err
		}
	}
	fillBias(m, bias)
	return nil
}

// UniformInit draws the weight from U[a, b).
func UniformInit(m WeightBias, a, b, bias float64, rng *rand.Rand) {
	if w := m.Weight(); w != nil {
		UniformFill(w.Tensor(), a, b, rng)
	}
	fillBias(m, bias)
}

// KaimingInit applies Kaiming initialization.
func KaimingInit(m WeightBias, a float64, mode FanMode, nonlinearity string, bias float64, distribution string, rng *rand.Rand) error {
	if err := checkDistribution(distribution); err != nil {
		return err
	}
	if w := m.Weight(); w != nil {
		var err error
		if distribution == DistUniform {
			err = KaimingUniform(w.Tensor(), a, mode, nonlinearity, rng)
		} else {
			err = KaimingNormal(w.Tensor(), a, mode, nonlinearity, rng)
		}
		if err != nil {
			return err
		}
	}
	fillBias(m, bias)
	return nil
}

// Caffe2XavierInit reproduces Caffe2's XavierFill, which is Kaiming uniform
// with a=1, fan_in and leaky_relu.
func Caffe2XavierInit(m WeightBias, bias float64, rng *rand.Rand) error {
	return KaimingInit(m, 1, FanIn, "leaky_relu", bias, DistUniform, rng)
}

// LecunNormalInit applies variance scaling to the weight and zeroes the bias.
func LecunNormalInit(m WeightBias, scale float64, mode FanMode, distribution string, rng *rand.Rand) error {
	if w := m.Weight(); w != nil {
		if err := VarianceScaling(w.Tensor(), scale, mode, distribution, rng); err != nil {
			return err
		}
	}
	fillBias(m, 0)
	return nil
}

// BiasProbInit sets the weight from N(0, std²) and the bias from a prior probability.
func BiasProbInit(m WeightBias, std, priorProb float64, rng *rand.Rand) error {
	if priorProb <= 0 || priorProb >= 1 {
		return fmt.Errorf("prior probability must be in (0, 1), got %v", priorProb)
	}
	NormalInit(m, 0, std, BiasInitWithProb(priorProb), rng)
	return nil
}
