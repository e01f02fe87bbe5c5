package sched_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/nn"
	"github.com/mixgo-ml/mixgo/internal/optim"
	"github.com/mixgo-ml/mixgo/internal/registry"
	"github.com/mixgo-ml/mixgo/internal/sched"
	"github.com/mixgo-ml/mixgo/internal/tensor"
)

func mustNew(t *testing.T, yaml string) *sched.Scheduler {
	t.Helper()
	cfg, err := config.ParseBytes([]byte(yaml))
	require.NoError(t, err)
	s, err := sched.New(cfg)
	require.NoError(t, err)
	return s
}

func epoch(e int) sched.Progress {
	return sched.Progress{Epoch: e, Iter: e * 10, EpochLen: 10, MaxEpochs: 100, MaxIters: 1000}
}

func TestPolicies(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		at   int
		want float64
	}{
		{"fixed", "policy: fixed", 50, 0.1},
		{"step every", "policy: step\nstep: 30", 65, 0.1 * 0.01},
		{"step milestones", "policy: step\nstep: [30, 60]", 30, 0.01},
		{"step before first milestone", "policy: step\nstep: [30, 60]", 29, 0.1},
		{"step after last milestone", "policy: step\nstep: [30, 60]\ngamma: 0.5", 99, 0.025},
		{"step min_lr", "policy: step\nstep: 10\nmin_lr: 1.0e-3", 90, 1e-3},
		{"exp", "policy: exp\ngamma: 0.9", 2, 0.1 * 0.81},
		{"poly", "policy: poly\npower: 2\nmin_lr: 0.0", 50, 0.1 * 0.25},
		{"cosine start", "policy: CosineAnnealing\nmin_lr: 0.0", 0, 0.1},
		{"cosine middle", "policy: CosineAnnealing\nmin_lr: 0.0", 50, 0.05},
		{"cosine end", "policy: CosineAnnealing\nmin_lr: 1.0e-6", 100, 1e-6},
		{"cosine ratio", "policy: CosineAnnealing\nmin_lr_ratio: 0.1", 100, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustNew(t, tt.yaml)
			assert.InDelta(t, tt.want, s.LR(0.1, epoch(tt.at)), 1e-12)
		})
	}
}

func TestByIter(t *testing.T) {
	s := mustNew(t, "policy: CosineAnnealing\nby_epoch: false\nmin_lr: 0.0")
	assert.False(t, s.ByEpoch())
	p := sched.Progress{Epoch: 0, Iter: 500, EpochLen: 10, MaxEpochs: 100, MaxIters: 1000}
	assert.InDelta(t, 0.5, s.LR(1, p), 1e-12)
}

func TestWarmup(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		iter int
		want float64
	}{
		{"linear start", "warmup: linear\nwarmup_iters: 10\nwarmup_ratio: 0.1", 0, 0.1},
		{"linear half", "warmup: linear\nwarmup_iters: 10\nwarmup_ratio: 0.1", 5, 1 - 0.5*0.9},
		{"linear done", "warmup: linear\nwarmup_iters: 10\nwarmup_ratio: 0.1", 10, 1},
		{"constant", "warmup: constant\nwarmup_iters: 10\nwarmup_ratio: 0.25", 9, 0.25},
		{"exp", "warmup: exp\nwarmup_iters: 10\nwarmup_ratio: 0.01", 5, 0.1},
		{"by epoch", "warmup: linear\nwarmup_iters: 2\nwarmup_by_epoch: true\nwarmup_ratio: 0.5", 10, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustNew(t, "policy: fixed\n"+tt.yaml)
			p := sched.Progress{Iter: tt.iter, EpochLen: 10, MaxEpochs: 100, MaxIters: 1000}
			assert.InDelta(t, tt.want, s.LR(1, p), 1e-9)
		})
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		err  error
	}{
		{"unknown policy", "policy: OneCycle", registry.ErrUnknownType},
		{"unknown warmup", "warmup: cubic\nwarmup_iters: 5", config.ErrInvalidConfig},
		{"warmup without iters", "warmup: linear", config.ErrInvalidConfig},
		{"step missing", "policy: step", config.ErrInvalidConfig},
		{"step descending", "policy: step\nstep: [60, 30]", config.ErrInvalidConfig},
		{"cosine both floors", "policy: CosineAnnealing\nmin_lr: 0.0\nmin_lr_ratio: 0.1", config.ErrInvalidConfig},
		{"cosine no floor", "policy: CosineAnnealing", config.ErrInvalidConfig},
		{"wrong type", "policy: exp\ngamma: fast", config.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.ParseBytes([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = sched.New(cfg)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestApply_UsesInitialLR(t *testing.T) {
	a := nn.NewParameter("a", tensor.Zeros(tensor.Shape{1}))
	b := nn.NewParameter("b", tensor.Zeros(tensor.Shape{1}))
	opt, err := optim.NewSGD([]optim.ParamSet{
		{Name: "fast", Params: []*nn.Parameter{a}, LR: optim.Float32(1.0)},
		{Name: "slow", Params: []*nn.Parameter{b}},
	}, optim.SGDConfig{LR: 0.1})
	require.NoError(t, err)

	s := sched.NewScheduler(sched.Step{Every: 1, Gamma: 0.5}, true, nil)
	s.Apply(opt, epoch(1))
	s.Apply(opt, epoch(2))

	groups := opt.ParamGroups()
	assert.InDelta(t, 0.25, groups[0].LR, 1e-7)
	assert.InDelta(t, 0.025, groups[1].LR, 1e-7)
}

func TestAnnealingIsMonotone(t *testing.T) {
	s := mustNew(t, "policy: CosineAnnealing\nmin_lr: 0.0")
	prev := math.Inf(1)
	for e := 0; e <= 100; e++ {
		lr := s.LR(0.1, epoch(e))
		assert.LessOrEqual(t, lr, prev)
		prev = lr
	}
	assert.Contains(t, sched.Policies(), "CosineAnnealing")
}
