package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_BaseInheritance(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "_base_/runtime.yaml", `
log_config:
  interval: 50
checkpoint_config:
  interval: 10
`)
	writeFile(t, dir, "_base_/model.yaml", `
model:
  type: MixUpClassification
  alpha: 1
  mix_mode: vanilla
  head:
    type: ClsHead
    num_classes: 1000
    loss:
      type: CrossEntropyLoss
      loss_weight: 1.0
`)
	path := writeFile(t, dir, "exp/child.yaml", `
_base_:
  - ../_base_/model.yaml
  - ../_base_/runtime.yaml
model:
  alpha: [0.8, 1.0]
  mix_mode: [mixup, cutmix]
  head:
    num_classes: 100
    loss:
      _delete_: true
      type: LabelSmoothLoss
      label_smooth_val: 0.1
log_config:
  interval: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.NotContains(t, cfg, "_base_")

	model, err := cfg.Sub("model")
	require.NoError(t, err)
	typ, err := model.Type()
	require.NoError(t, err)
	assert.Equal(t, "MixUpClassification", typ)

	alpha, err := model.Floats("alpha")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.8, 1.0}, alpha)

	modes, err := model.Strings("mix_mode")
	require.NoError(t, err)
	assert.Equal(t, []string{"mixup", "cutmix"}, modes)

	head, _ := model.Sub("head")
	n, err := head.Int("num_classes", 0)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, "ClsHead", head["type"])

	loss, _ := head.Sub("loss")
	assert.Equal(t, Config{"type": "LabelSmoothLoss", "label_smooth_val": 0.1}, loss)

	logCfg, _ := cfg.Sub("log_config")
	interval, _ := logCfg.Int("interval", 0)
	assert.Equal(t, 10, interval)
	ckpt, _ := cfg.Sub("checkpoint_config")
	interval, _ = ckpt.Int("interval", 0)
	assert.Equal(t, 10, interval)
}

func TestLoad_CircularBase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "_base_: b.yaml\nx: 1\n")
	path := writeFile(t, dir, "b.yaml", "_base_: a.yaml\ny: 2\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestMergeDoesNotAliasInputs(t *testing.T) {
	base := FromMap(map[string]any{"opt": map[string]any{"lr": 0.1, "momentum": 0.9}})
	override := FromMap(map[string]any{"opt": map[string]any{"lr": 0.01}})

	merged := Merge(base, override)
	opt, _ := merged.Sub("opt")
	assert.Equal(t, 0.01, opt["lr"])
	assert.Equal(t, 0.9, opt["momentum"])

	opt["lr"] = 1.0
	baseOpt, _ := base.Sub("opt")
	assert.Equal(t, 0.1, baseOpt["lr"])
}

func TestAccessors(t *testing.T) {
	cfg, err := ParseBytes([]byte(`
type: SGD
lr: 0.1
steps: [30, 60]
step: 5
nesterov: true
betas: [0.9, 0.99]
name: 3
groups:
  - {lr: 1}
  - {lr: 2}
`))
	require.NoError(t, err)

	typ, err := cfg.Type()
	require.NoError(t, err)
	assert.Equal(t, "SGD", typ)

	lr, err := cfg.Float("lr", 0)
	require.NoError(t, err)
	assert.Equal(t, 0.1, lr)

	steps, err := cfg.Ints("steps")
	require.NoError(t, err)
	assert.Equal(t, []int{30, 60}, steps)
	step, err := cfg.Ints("step")
	require.NoError(t, err)
	assert.Equal(t, []int{5}, step)

	_, err = cfg.String("name", "")
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = cfg.Int("lr", 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	groups, err := cfg.Subs("groups")
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	f := cfg.Fields()
	assert.True(t, f.Bool("nesterov", false))
	assert.Equal(t, [2]float32{0.9, 0.99}, f.Betas("betas", 0.9, 0.999))
	assert.Equal(t, float32(0.5), f.Float32("missing", 0.5))
	require.NoError(t, f.Err())

	f.Betas("step", 0.9, 0.999)
	f.String("lr", "")
	assert.ErrorContains(t, f.Err(), `"step" must have 2 elements`)
}

func TestDecode(t *testing.T) {
	cfg := FromMap(map[string]any{"interval": 5, "by_epoch": false})
	out := struct {
		Interval int    `yaml:"interval"`
		ByEpoch  bool   `yaml:"by_epoch"`
		OutDir   string `yaml:"out_dir"`
	}{OutDir: "keep"}

	require.NoError(t, cfg.Decode(&out))
	assert.Equal(t, 5, out.Interval)
	assert.False(t, out.ByEpoch)
	assert.Equal(t, "keep", out.OutDir)
}

func TestDumpRoundTrip(t *testing.T) {
	cfg := FromMap(map[string]any{
		"model": map[string]any{"type": "Classification", "alpha": []any{1.5, 0.8}},
	})
	data, err := cfg.Dump()
	require.NoError(t, err)

	back, err := ParseBytes(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
