package mixup_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/mixup"
	"github.com/mixgo-ml/mixgo/internal/registry"
	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// twoImages returns a batch of a zero image (label 0) and a one image
// (label 1), each [1, 8, 8].
func twoImages() mixup.Batch {
	imgs := tensor.Zeros(tensor.Shape{2, 1, 8, 8})
	d := imgs.Data()
	for i := 64; i < 128; i++ {
		d[i] = 1
	}
	return mixup.Batch{Images: imgs, Labels: []int{0, 1}}
}

// onesFraction returns the share of pixels equal to 1 in sample i.
func onesFraction(imgs *tensor.Tensor, i int) float64 {
	size := imgs.NumElements() / imgs.Shape()[0]
	count := 0
	for _, v := range imgs.Data()[i*size : (i+1)*size] {
		if v == 1 {
			count++
		}
	}
	return float64(count) / float64(size)
}

func swap() []int { return []int{1, 0} }

func TestMixup(t *testing.T) {
	b := twoImages()
	mixed, err := mixup.Mixup{}.Mix(b, swap(), 0.7, tensor.NewRNG(1))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, mixed.LabelsA)
	assert.Equal(t, []int{1, 0}, mixed.LabelsB)
	assert.InDelta(t, 0.3, mixed.Images.At(0, 0, 3, 3), 1e-6)
	assert.InDelta(t, 0.7, mixed.Images.At(1, 0, 3, 3), 1e-6)
	assert.Equal(t, float32(0), b.Images.At(0, 0, 3, 3), "input batch must not change")
}

func TestCutMix_LamMatchesPastedArea(t *testing.T) {
	rng := tensor.NewRNG(7)
	for range 20 {
		b := twoImages()
		mixed, err := mixup.CutMix{}.Mix(b, swap(), 0.6, rng)
		require.NoError(t, err)

		// Sample 0 is zeros with a box of ones pasted in.
		assert.InDelta(t, 1-mixed.Lam, onesFraction(mixed.Images, 0), 1e-9)
		assert.GreaterOrEqual(t, mixed.Lam, 0.0)
		assert.LessOrEqual(t, mixed.Lam, 1.0)
	}
}

func TestCutMix_LamOneKeepsImages(t *testing.T) {
	b := twoImages()
	mixed, err := mixup.CutMix{}.Mix(b, swap(), 1, tensor.NewRNG(3))
	require.NoError(t, err)
	assert.Equal(t, 1.0, mixed.Lam)
	assert.Equal(t, b.Images.Data(), mixed.Images.Data())
}

func TestResizeMix(t *testing.T) {
	rng := tensor.NewRNG(11)
	s := mixup.ResizeMix{Scope: [2]float64{0.5, 0.5}}
	b := twoImages()
	mixed, err := s.Mix(b, swap(), 0.5, rng)
	require.NoError(t, err)

	assert.InDelta(t, 1-mixed.Lam, onesFraction(mixed.Images, 0), 1e-9)
	assert.Less(t, mixed.Lam, 1.0)
}

func TestGridMix(t *testing.T) {
	rng := tensor.NewRNG(5)
	s := mixup.GridMix{Holes: [2]int{4, 4}}
	for range 10 {
		mixed, err := s.Mix(twoImages(), swap(), 0.5, rng)
		require.NoError(t, err)
		assert.InDelta(t, 1-mixed.Lam, onesFraction(mixed.Images, 0), 1e-9)
		// 4x4 cells of 2x2 pixels: lam is a multiple of 1/16.
		cells := (1 - mixed.Lam) * 16
		assert.InDelta(t, float64(int(cells+0.5)), cells, 1e-9)
	}
}

func TestVanilla(t *testing.T) {
	b := twoImages()
	mixed, err := mixup.Vanilla{}.Mix(b, swap(), 0.3, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, mixed.Lam)
	assert.Same(t, b.Images, mixed.Images)
	assert.Equal(t, mixed.LabelsA, mixed.LabelsB)
}

func TestMix_BadBatch(t *testing.T) {
	b := mixup.Batch{Images: tensor.Zeros(tensor.Shape{2, 64}), Labels: []int{0, 1}}
	_, err := mixup.Mixup{}.Mix(b, swap(), 0.5, nil)
	assert.ErrorContains(t, err, "[N, C, H, W]")

	b = twoImages()
	_, err = mixup.CutMix{}.Mix(b, []int{0}, 0.5, tensor.NewRNG(1))
	assert.Error(t, err)
}

func TestPermutation(t *testing.T) {
	rng := tensor.NewRNG(42)
	for n := 2; n < 12; n++ {
		perm := mixup.Permutation(n, true, rng)
		seen := make([]bool, n)
		for i, j := range perm {
			assert.NotEqual(t, i, j, "derangement must have no fixed point")
			seen[j] = true
		}
		for _, ok := range seen {
			assert.True(t, ok)
		}
	}
	assert.Len(t, mixup.Permutation(5, false, rng), 5)
	assert.Equal(t, []int{0}, mixup.Permutation(1, true, rng))
}

func TestSampleLam(t *testing.T) {
	rng := tensor.NewRNG(9)
	var sum float64
	for range 2000 {
		lam := mixup.SampleLam(1.0, rng)
		require.GreaterOrEqual(t, lam, 0.0)
		require.LessOrEqual(t, lam, 1.0)
		sum += lam
	}
	// Beta(α, α) is symmetric around 0.5.
	assert.InDelta(t, 0.5, sum/2000, 0.05)
	assert.Equal(t, 1.0, mixup.SampleLam(0, rng))
}

func TestNewMixer(t *testing.T) {
	cfg, err := config.ParseBytes([]byte(`
alpha: [0.2, 1.0, 1.0]
mix_mode: [mixup, cutmix, resizemix]
mix_prob: [2, 1, 1]
mix_args:
  resizemix:
    scope: [0.1, 0.8]
    use_alpha: true
mix_shuffle_no_repeat: true
`))
	require.NoError(t, err)
	m, err := mixup.NewMixer(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"mixup", "cutmix", "resizemix"}, m.Modes())

	rng := tensor.NewRNG(1)
	counts := map[string]int{}
	for range 400 {
		mixed, err := m.Mix(twoImages(), rng)
		require.NoError(t, err)
		counts[mixed.Mode]++
		assert.Equal(t, []int{1, 0}, mixed.LabelsB, "two samples without repeats always swap")
	}
	assert.Greater(t, counts["mixup"], counts["cutmix"])
	assert.Greater(t, counts["resizemix"], 0)
}

func TestNewMixer_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		err  error
	}{
		{"alpha mismatch", config.FromMap(map[string]any{"alpha": []any{0.2, 1.0}, "mix_mode": []any{"mixup", "cutmix", "gridmix"}}), config.ErrInvalidConfig},
		{"prob mismatch", config.FromMap(map[string]any{"mix_mode": []any{"mixup", "cutmix"}, "mix_prob": []any{1.0}}), config.ErrInvalidConfig},
		{"unknown mode", config.FromMap(map[string]any{"mix_mode": "fancymix"}), registry.ErrUnknownType},
		{"needs model", config.FromMap(map[string]any{"mix_mode": []any{"mixup", "puzzlemix"}}), mixup.ErrUnsupportedMode},
		{"bad scope", config.FromMap(map[string]any{
			"mix_mode": "resizemix",
			"mix_args": map[string]any{"resizemix": map[string]any{"scope": []any{0.9, 0.1}}},
		}), config.ErrInvalidConfig},
		{"bad holes", config.FromMap(map[string]any{
			"mix_mode": "gridmix",
			"mix_args": map[string]any{"gridmix": map[string]any{"n_holes": 0}},
		}), config.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mixup.NewMixer(tt.cfg)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestMixedTarget(t *testing.T) {
	m := mixup.Mixed{LabelsA: []int{0}, LabelsB: []int{2}, Lam: 0.25}
	target := m.Target()
	assert.Equal(t, []int{0}, target.A)
	assert.Equal(t, []int{2}, target.B)
	assert.Equal(t, 0.25, target.Lam)
}
