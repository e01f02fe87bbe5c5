package nn

import (
	"fmt"
	"log"
	"math"
	"math/rand/v2"

	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// FanMode selects which fan is used to scale an initializer.
type FanMode string

// Fan modes.
const (
	FanIn  FanMode = "fan_in"
	FanOut FanMode = "fan_out"
	FanAvg FanMode = "fan_avg"
)

// Distribution names accepted by the initializers.
const (
	DistNormal          = "normal"
	DistUniform         = "uniform"
	DistTruncatedNormal = "truncated_normal"
)

// truncStdCorrection is the stddev of a standard normal truncated to (-2, 2).
const truncStdCorrection = 0.87962566103423978

// CalculateFanInFanOut returns the fans of a weight shape.
//
// For shape [out, in, k...] the receptive field size prod(k...) multiplies
// both fans. At least two dimensions are required.
func CalculateFanInFanOut(shape tensor.Shape) (fanIn, fanOut int, err error) {
	if len(shape) < 2 {
		return 0, 0, fmt.Errorf("fan in and fan out can not be computed for tensor with fewer than 2 dimensions, got %v", shape)
	}
	receptive := 1
	for _, d := range shape[2:] {
		receptive *= d
	}
	return shape[1] * receptive, shape[0] * receptive, nil
}

func fanFor(shape tensor.Shape, mode FanMode) (float64, error) {
	fanIn, fanOut, err := CalculateFanInFanOut(shape)
	if err != nil {
		return 0, err
	}
	switch mode {
	case FanIn:
		return float64(fanIn), nil
	case FanOut:
		return float64(fanOut), nil
	case FanAvg:
		return float64(fanIn+fanOut) / 2, nil
	default:
		return 0, fmt.Errorf("invalid fan mode %q (expected fan_in, fan_out or fan_avg)", mode)
	}
}

// CalculateGain returns the recommended gain for a nonlinearity.
// param is the negative slope for leaky_relu.
func CalculateGain(nonlinearity string, param float64) (float64, error) {
	switch nonlinearity {
	case "linear", "conv1d", "conv2d", "conv3d", "conv_transpose1d", "conv_transpose2d",
		"conv_transpose3d", "sigmoid":
		return 1, nil
	case "tanh":
		return 5.0 / 3, nil
	case "relu":
		return math.Sqrt(2), nil
	case "leaky_relu":
		return math.Sqrt(2 / (1 + param*param)), nil
	case "selu":
		return 3.0 / 4, nil
	default:
		return 0, fmt.Errorf("unsupported nonlinearity %q", nonlinearity)
	}
}

// ConstantFill sets every element of t to val.
func ConstantFill(t *tensor.Tensor, val float32) {
	t.Fill(val)
}

// NormalFill fills t with samples from N(mean, std²).
func NormalFill(t *tensor.Tensor, mean, std float64, rng *rand.Rand) {
	data := t.Data()
	for i := range data {
		data[i] = float32(mean + std*rng.NormFloat64())
	}
}

// UniformFill fills t with samples from U[a, b).
func UniformFill(t *tensor.Tensor, a, b float64, rng *rand.Rand) {
	data := t.Data()
	for i := range data {
		data[i] = float32(a + (b-a)*rng.Float64())
	}
}

// TruncNormalFill fills t with samples from N(mean, std²) truncated to [a, b].
//
// Values are generated by sampling a uniform distribution between the CDF
// values of the bounds and applying the inverse normal CDF.
func TruncNormalFill(t *tensor.Tensor, mean, std, a, b float64, rng *rand.Rand) error {
	if std <= 0 {
		return fmt.Errorf("trunc normal: std must be positive, got %v", std)
	}
	if a >= b {
		return fmt.Errorf("trunc normal: lower bound %v must be below upper bound %v", a, b)
	}
	if mean < a-2*std || mean > b+2*std {
		log.Printf("mean is more than 2 std from [a, b] in TruncNormalFill; the distribution of values may be incorrect")
	}

	normCDF := func(x float64) float64 { return (1 + math.Erf(x/math.Sqrt2)) / 2 }
	l := normCDF((a - mean) / std)
	u := normCDF((b - mean) / std)

	data := t.Data()
	for i := range data {
		p := 2*l - 1 + (2*u-2*l)*rng.Float64()
		v := math.Erfinv(p)*std*math.Sqrt2 + mean
		data[i] = float32(math.Min(math.Max(v, a), b))
	}
	return nil
}

// XavierUniform fills t from U(-bound, bound), bound = gain·√(6/(fan_in+fan_out)).
func XavierUniform(t *tensor.Tensor, gain float64, rng *rand.Rand) error {
	fanIn, fanOut, err := CalculateFanInFanOut(t.Shape())
	if err != nil {
		return err
	}
	std := gain * math.Sqrt(2/float64(fanIn+fanOut))
	bound := math.Sqrt(3) * std
	UniformFill(t, -bound, bound, rng)
	return nil
}

// XavierNormal fills t from N(0, std²), std = gain·√(2/(fan_in+fan_out)).
func XavierNormal(t *tensor.Tensor, gain float64, rng *rand.Rand) error {
	fanIn, fanOut, err := CalculateFanInFanOut(t.Shape())
	if err != nil {
		return err
	}
	NormalFill(t, 0, gain*math.Sqrt(2/float64(fanIn+fanOut)), rng)
	return nil
}

func kaimingStd(t *tensor.Tensor, a float64, mode FanMode, nonlinearity string) (float64, error) {
	if mode != FanIn && mode != FanOut {
		return 0, fmt.Errorf("kaiming: mode must be fan_in or fan_out, got %q", mode)
	}
	fan, err := fanFor(t.Shape(), mode)
	if err != nil {
		return 0, err
	}
	gain, err := CalculateGain(nonlinearity, a)
	if err != nil {
		return 0, err
	}
	return gain / math.Sqrt(fan), nil
}

// KaimingUniform fills t from U(-bound, bound), bound = gain·√(3/fan).
func KaimingUniform(t *tensor.Tensor, a float64, mode FanMode, nonlinearity string, rng *rand.Rand) error {
	std, err := kaimingStd(t, a, mode, nonlinearity)
	if err != nil {
		return err
	}
	bound := math.Sqrt(3) * std
	UniformFill(t, -bound, bound, rng)
	return nil
}

// KaimingNormal fills t from N(0, std²), std = gain/√fan.
func KaimingNormal(t *tensor.Tensor, a float64, mode FanMode, nonlinearity string, rng *rand.Rand) error {
	std, err := kaimingStd(t, a, mode, nonlinearity)
	if err != nil {
		return err
	}
	NormalFill(t, 0, std, rng)
	return nil
}

// VarianceScaling fills t so its variance is scale/fan.
//
// distribution is one of truncated_normal, normal or uniform.
func VarianceScaling(t *tensor.Tensor, scale float64, mode FanMode, distribution string, rng *rand.Rand) error {
	fan, err := fanFor(t.Shape(), mode)
	if err != nil {
		return err
	}
	variance := scale / fan

	switch distribution {
	case DistTruncatedNormal:
		return TruncNormalFill(t, 0, math.Sqrt(variance)/truncStdCorrection, -2, 2, rng)
	case DistNormal:
		NormalFill(t, 0, math.Sqrt(variance), rng)
	case DistUniform:
		bound := math.Sqrt(3 * variance)
		UniformFill(t, -bound, bound, rng)
	default:
		return fmt.Errorf("invalid distribution %q", distribution)
	}
	return nil
}

// LecunNormal is VarianceScaling with scale 1, fan_in and a truncated normal.
func LecunNormal(t *tensor.Tensor, rng *rand.Rand) error {
	return VarianceScaling(t, 1, FanIn, DistTruncatedNormal, rng)
}

// BiasInitWithProb returns the bias that makes sigmoid(bias) equal priorProb.
func BiasInitWithProb(priorProb float64) float64 {
	return -math.Log((1 - priorProb) / priorProb)
}
