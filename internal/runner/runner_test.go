package runner_test

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/runner"
	"github.com/mixgo-ml/mixgo/internal/serialization"
)

// experiment returns a small config: 4 classes of 1×4×4 images, 32 train
// samples in batches of 8 (4 iterations per epoch).
func experiment(t *testing.T, extra string) config.Config {
	t.Helper()
	cfg, err := config.ParseBytes([]byte(`
seed: 3
model:
  type: MixUpClassification
  alpha: [0.2, 1.0]
  mix_mode: [mixup, cutmix]
  backbone: {type: MLP, in_channels: 1, img_size: 4, hidden_channels: [16], norm_cfg: {type: LN}}
  head:
    type: ClsMixupHead
    num_classes: 4
    loss: {type: LabelSmoothLoss, label_smooth_val: 0.1, num_classes: 4}
  init_cfg:
    - {type: TruncNormal, layer: Linear, std: 0.02, bias: 0}
data:
  samples_per_gpu: 8
  train: {type: SyntheticImages, num_classes: 4, num_samples: 32, channels: 1, img_size: 4, noise: 0.1, seed: 5}
  val: {type: SyntheticImages, num_classes: 4, num_samples: 12, channels: 1, img_size: 4, noise: 0.1, seed: 5}
optimizer: {type: AdamW, lr: 1.0e-2, weight_decay: 0.05, paramwise_options: {bias: {weight_decay: 0}}}
optimizer_config: {grad_clip: {max_norm: 5.0}}
lr_config: {policy: CosineAnnealing, min_lr: 0, warmup: linear, warmup_iters: 2, warmup_ratio: 0.1}
log_config: {interval: 2}
runner: {type: EpochBasedRunner, max_epochs: 2}
` + extra))
	require.NoError(t, err)
	return cfg
}

func override(t *testing.T, cfg config.Config, doc string) config.Config {
	t.Helper()
	o, err := config.ParseBytes([]byte(doc))
	require.NoError(t, err)
	return config.Merge(cfg, o)
}

func TestTrain_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	r, err := runner.Train(context.Background(), experiment(t, ""), dir, log.New(&buf, "", 0))
	require.NoError(t, err)

	assert.Equal(t, 2, r.Epoch())
	assert.Equal(t, 8, r.Iter())
	assert.NotEmpty(t, r.RunID())

	acc, ok := r.Metrics()["accuracy_top-1"]
	require.True(t, ok)
	assert.GreaterOrEqual(t, acc, 0.0)
	assert.LessOrEqual(t, acc, 1.0)
	assert.False(t, math.IsNaN(r.Metrics()["val_loss"]))

	for _, name := range []string{"epoch_1.safetensors", "epoch_2.safetensors", "config.yaml", r.RunID() + ".log"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	logs := buf.String()
	assert.Contains(t, logs, "Epoch [1][2/4]")
	assert.Contains(t, logs, "Epoch(val) [2]")
	assert.Contains(t, logs, "Environment info")

	_, meta, err := serialization.ReadSafeTensors(filepath.Join(dir, "epoch_2.safetensors"))
	require.NoError(t, err)
	assert.Equal(t, r.RunID(), meta["run_id"])
	assert.Equal(t, "2", meta["epoch"])
	assert.Equal(t, "AdamW", meta["optimizer"])
}

func TestTrain_Resume(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(&bytes.Buffer{}, "", 0)
	first := override(t, experiment(t, ""), "runner: {max_epochs: 1}")
	_, err := runner.Train(context.Background(), first, dir, logger)
	require.NoError(t, err)

	resumed := override(t, experiment(t, ""), fmt.Sprintf("resume_from: %s", filepath.Join(dir, "epoch_1.safetensors")))
	r, err := runner.Train(context.Background(), resumed, t.TempDir(), logger)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Epoch())
	assert.Equal(t, 8, r.Iter())

	state := r.Optimizer().StateDict()
	require.Contains(t, state, "step.0")
	assert.Equal(t, float32(8), state["step.0"].Data()[0])
}

func TestTrain_LoadFrom(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(&bytes.Buffer{}, "", 0)
	first := override(t, experiment(t, ""), "runner: {max_epochs: 1}")
	_, err := runner.Train(context.Background(), first, dir, logger)
	require.NoError(t, err)

	cfg := override(t, experiment(t, ""), fmt.Sprintf("load_from: %s\nrunner: {max_epochs: 1}", filepath.Join(dir, "epoch_1.safetensors")))
	r, closer, err := runner.Build(context.Background(), cfg, t.TempDir(), logger)
	require.NoError(t, err)
	defer closer.Close()
	assert.Equal(t, 0, r.Epoch(), "load_from keeps the run position")
}

func TestOptimizerHook_UpdateInterval(t *testing.T) {
	tests := []struct {
		name      string
		samples   int
		interval  int
		wantSteps float32
	}{
		{"full windows", 32, 2, 2},
		{"partial last window", 24, 2, 2},
		{"every iteration", 24, 1, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := override(t, experiment(t, ""), fmt.Sprintf(`
runner: {max_epochs: 1}
update_interval: %d
data: {train: {num_samples: %d}}
`, tt.interval, tt.samples))
			r, err := runner.Train(context.Background(), cfg, t.TempDir(), log.New(&bytes.Buffer{}, "", 0))
			require.NoError(t, err)
			assert.Equal(t, tt.wantSteps, r.Optimizer().StateDict()["step.0"].Data()[0])
		})
	}
}

func TestTrain_SecondOrderOptimizers(t *testing.T) {
	for _, opt := range []string{"type: SophiaG, lr: 1.0e-3", "type: Adahessian, lr: 0.01"} {
		t.Run(opt, func(t *testing.T) {
			cfg := override(t, experiment(t, ""), `
runner: {max_epochs: 1}
optimizer_config: {hessian_interval: 1}
optimizer: {_delete_: true, `+opt+`}
`)
			r, err := runner.Train(context.Background(), cfg, t.TempDir(), log.New(&bytes.Buffer{}, "", 0))
			require.NoError(t, err)
			assert.Equal(t, 1, r.Epoch())
			assert.Equal(t, float32(4), r.Optimizer().StateDict()["step.0"].Data()[0])
		})
	}
}

func TestTrain_MaxKeepCheckpoints(t *testing.T) {
	dir := t.TempDir()
	cfg := override(t, experiment(t, ""), `
runner: {max_epochs: 3}
checkpoint_config: {interval: 1, max_keep_ckpts: 1, save_optimizer: false}
`)
	_, err := runner.Train(context.Background(), cfg, dir, log.New(&bytes.Buffer{}, "", 0))
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "epoch_1.safetensors"))
	assert.NoFileExists(t, filepath.Join(dir, "epoch_2.safetensors"))
	assert.FileExists(t, filepath.Join(dir, "epoch_3.safetensors"))

	tensors, _, err := serialization.ReadSafeTensors(filepath.Join(dir, "epoch_3.safetensors"))
	require.NoError(t, err)
	for name := range tensors {
		assert.NotContains(t, name, "optimizer.")
	}
}

func TestTrain_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.Train(ctx, experiment(t, ""), t.TempDir(), log.New(&bytes.Buffer{}, "", 0))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"iter based runner", "runner: {type: IterBasedRunner}"},
		{"bad update interval", "optimizer_config: {update_interval: 0}"},
		{"bad grad clip", "optimizer_config: {grad_clip: {max_norm: 0}}"},
		{"bad warmup", "lr_config: {warmup: cubic}"},
		{"unknown optimizer", "optimizer: {type: Shampoo}"},
		{"zero epochs", "runner: {max_epochs: 0}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := override(t, experiment(t, ""), tt.doc)
			_, _, err := runner.Build(context.Background(), cfg, t.TempDir(), log.New(&bytes.Buffer{}, "", 0))
			assert.Error(t, err)
		})
	}

	_, _, err := runner.Build(context.Background(), config.Config{}, t.TempDir(), nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

type recordingHook struct {
	runner.BaseHook
	name     string
	priority int
	events   *[]string
}

func (h *recordingHook) Priority() int { return h.priority }

func (h *recordingHook) BeforeRun(*runner.EpochBasedRunner) error {
	*h.events = append(*h.events, h.name)
	return nil
}

func TestRegisterHook_PriorityOrder(t *testing.T) {
	r, closer, err := runner.Build(context.Background(), experiment(t, ""), t.TempDir(), log.New(&bytes.Buffer{}, "", 0))
	require.NoError(t, err)
	defer closer.Close()

	var events []string
	r.RegisterHook(&recordingHook{name: "late", priority: runner.PriorityVeryLow + 1, events: &events})
	r.RegisterHook(&recordingHook{name: "early", priority: 0, events: &events})
	r.RegisterHook(&recordingHook{name: "normal-a", priority: runner.PriorityNormal, events: &events})
	r.RegisterHook(&recordingHook{name: "normal-b", priority: runner.PriorityNormal, events: &events})

	hooks := r.Hooks()
	for i := 1; i < len(hooks); i++ {
		assert.LessOrEqual(t, hooks[i-1].Priority(), hooks[i].Priority())
	}
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, []string{"early", "normal-a", "normal-b", "late"}, events)
}
