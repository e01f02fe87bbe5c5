// Package mixup implements sample-mixing augmentations for image
// classification: Mixup, CutMix, ResizeMix and GridMix.
//
// Every strategy blends a batch with a permutation of itself and returns
// both label sets with the mixing ratio lam, so a loss can weigh them as
// lam·CE(y_a) + (1-lam)·CE(y_b).
package mixup

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/nn"
	"github.com/mixgo-ml/mixgo/internal/parallel"
	"github.com/mixgo-ml/mixgo/internal/registry"
	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// ErrUnsupportedMode is returned for mixing modes that need access to model
// internals (feature maps, saliency or a learned mixer).
var ErrUnsupportedMode = errors.New("mixup mode needs model internals")

// unsupported lists the modes rejected with ErrUnsupportedMode.
var unsupported = map[string]string{
	"puzzlemix": "saliency-guided transport over input gradients",
	"automix":   "a learned mix block over backbone features",
	"samix":     "a learned mix block over backbone features",
}

// Batch is a labelled batch of images laid out as [N, C, H, W].
type Batch struct {
	Images *tensor.Tensor
	Labels []int
}

// Len returns the number of samples.
func (b Batch) Len() int { return len(b.Labels) }

// Mixed is the result of mixing a batch.
type Mixed struct {
	Images  *tensor.Tensor
	LabelsA []int
	LabelsB []int
	Lam     float64 // weight of LabelsA
	Mode    string
}

// Target returns the soft target for a loss.
func (m Mixed) Target() nn.Target {
	return nn.MixedTarget(m.LabelsA, m.LabelsB, m.Lam)
}

// Strategy mixes a batch with the samples at perm. lam is the requested
// ratio; the returned Mixed carries the ratio actually applied.
type Strategy interface {
	Mix(b Batch, perm []int, lam float64, rng *rand.Rand) (Mixed, error)
}

// Factory builds a strategy from its mix_args entry, which may be nil.
type Factory func(args config.Config) (Strategy, error)

var strategies = registry.New[Factory]("mixup mode")

// Register adds a mixing mode.
func Register(mode string, f Factory) {
	strategies.Register(mode, f)
}

// Modes lists the registered mixing modes.
func Modes() []string {
	return strategies.Names()
}

// NewStrategy builds the strategy registered as mode.
func NewStrategy(mode string, args config.Config) (Strategy, error) {
	if why, ok := unsupported[mode]; ok {
		return nil, fmt.Errorf("%w: %q requires %s", ErrUnsupportedMode, mode, why)
	}
	f, err := strategies.Get(mode)
	if err != nil {
		return nil, err
	}
	return f(args)
}

// SampleLam draws lam ~ Beta(alpha, alpha). A non-positive alpha disables
// mixing and returns 1.
func SampleLam(alpha float64, rng *rand.Rand) float64 {
	if alpha <= 0 {
		return 1
	}
	return distuv.Beta{Alpha: alpha, Beta: alpha, Src: rng}.Rand()
}

// Permutation returns a random permutation of [0, n). With noRepeat it is
// a derangement, so no sample is paired with itself (n > 1).
func Permutation(n int, noRepeat bool, rng *rand.Rand) []int {
	if !noRepeat || n < 2 {
		return rng.Perm(n)
	}
	// Sattolo's algorithm yields a single n-cycle, which has no fixed point.
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rng.IntN(i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

func checkBatch(b Batch, perm []int) (n, c, h, w int, err error) {
	shape := b.Images.Shape()
	if len(shape) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("mixup: images must be [N, C, H, W], got %v", shape)
	}
	n, c, h, w = shape[0], shape[1], shape[2], shape[3]
	if len(b.Labels) != n || len(perm) != n {
		return 0, 0, 0, 0, fmt.Errorf("mixup: %d images, %d labels, permutation of %d", n, len(b.Labels), len(perm))
	}
	return n, c, h, w, nil
}

func permuted(labels, perm []int) []int {
	out := make([]int, len(perm))
	for i, j := range perm {
		out[i] = labels[j]
	}
	return out
}

var kernels = parallel.DefaultConfig()
