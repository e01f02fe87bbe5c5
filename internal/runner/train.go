package runner

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/data"
	"github.com/mixgo-ml/mixgo/internal/models"
	"github.com/mixgo-ml/mixgo/internal/optim"
	"github.com/mixgo-ml/mixgo/internal/sched"
	"github.com/mixgo-ml/mixgo/internal/sysinfo"
	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// Build assembles a runner and its hooks from a full experiment config.
// workDir overrides the config's work_dir when set. Run logs go to logger
// and to <work_dir>/<run id>.log; the caller closes the returned closer.
func Build(ctx context.Context, cfg config.Config, workDir string, logger *log.Logger) (*EpochBasedRunner, io.Closer, error) {
	f := cfg.Fields()
	if workDir == "" {
		workDir = f.String("work_dir", "work_dirs/default")
	}
	seed := f.Int("seed", 0)
	modelCfg := f.Sub("model")
	optCfg := f.Sub("optimizer")
	optHookCfg := f.Sub("optimizer_config")
	lrCfg := f.Sub("lr_config")
	runnerCfg := f.Sub("runner")
	dataCfg := f.Sub("data")
	logCfg := f.Sub("log_config")
	ckptCfg := f.Sub("checkpoint_config")
	evalCfg := f.Sub("evaluation")
	resumeFrom := f.String("resume_from", "")
	loadFrom := f.String("load_from", "")
	updateInterval := f.Int("update_interval", 1)
	if err := f.Err(); err != nil {
		return nil, nil, err
	}
	for key, sub := range map[string]config.Config{"model": modelCfg, "optimizer": optCfg, "data": dataCfg, "runner": runnerCfg} {
		if sub == nil {
			return nil, nil, fmt.Errorf("%w: missing %q", config.ErrInvalidConfig, key)
		}
	}

	rf := runnerCfg.Fields()
	runnerType := rf.String("type", "EpochBasedRunner")
	maxEpochs := rf.Int("max_epochs", 0)
	if err := rf.Err(); err != nil {
		return nil, nil, fmt.Errorf("runner: %w", err)
	}
	if runnerType != "EpochBasedRunner" {
		return nil, nil, fmt.Errorf("runner: %w: type %q (only EpochBasedRunner is supported)", config.ErrInvalidConfig, runnerType)
	}

	if err := os.MkdirAll(workDir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create work_dir: %w", err)
	}
	runID := uuid.NewString()
	logFile, err := os.Create(filepath.Join(workDir, runID+".log"))
	if err != nil {
		return nil, nil, fmt.Errorf("create log file: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	logger = log.New(io.MultiWriter(logger.Writer(), logFile), logger.Prefix(), logger.Flags())
	fail := func(err error) (*EpochBasedRunner, io.Closer, error) {
		_ = logFile.Close()
		return nil, nil, err
	}

	if info, err := sysinfo.Collect(ctx); err != nil {
		logger.Printf("Environment info (partial, %v): %s", err, info)
	} else {
		logger.Printf("Environment info: %s", info)
	}
	if dump, err := cfg.Dump(); err == nil {
		if err := os.WriteFile(filepath.Join(workDir, "config.yaml"), dump, 0o600); err != nil {
			return fail(fmt.Errorf("write config: %w", err))
		}
	}
	logger.Printf("Set random seed to %d", seed)

	rng := tensor.NewRNG(uint64(seed))
	model, err := models.Build(modelCfg, rng)
	if err != nil {
		return fail(err)
	}
	opt, err := optim.Build(optCfg, model.NamedParameters())
	if err != nil {
		return fail(err)
	}
	train, val, err := data.BuildLoaders(dataCfg, rng)
	if err != nil {
		return fail(err)
	}

	r, err := New(Options{
		Model:     model,
		Optimizer: opt,
		Loader:    train,
		Logger:    logger,
		RNG:       rng,
		WorkDir:   workDir,
		RunID:     runID,
		MaxEpochs: maxEpochs,
	})
	if err != nil {
		return fail(err)
	}

	if lrCfg != nil {
		s, err := sched.New(lrCfg)
		if err != nil {
			return fail(err)
		}
		r.RegisterHook(&LrUpdaterHook{Scheduler: s})
	}
	optHook, err := optimizerHook(optHookCfg, updateInterval)
	if err != nil {
		return fail(err)
	}
	r.RegisterHook(optHook)

	logHook := &LoggerHook{Interval: 50}
	if logCfg != nil {
		lf := logCfg.Fields()
		logHook.Interval = lf.Int("interval", 50)
		if err := lf.Err(); err != nil {
			return fail(fmt.Errorf("log_config: %w", err))
		}
	}
	r.RegisterHook(logHook)

	ckptHook := &CheckpointHook{Interval: 1, SaveOptimizer: true}
	if ckptCfg != nil {
		cf := ckptCfg.Fields()
		ckptHook.Interval = cf.Int("interval", 1)
		ckptHook.MaxKeep = cf.Int("max_keep_ckpts", -1)
		ckptHook.SaveOptimizer = cf.Bool("save_optimizer", true)
		if err := cf.Err(); err != nil {
			return fail(fmt.Errorf("checkpoint_config: %w", err))
		}
	}
	r.RegisterHook(ckptHook)

	if val != nil {
		evalHook := &EvalHook{Loader: val, Interval: 1}
		if evalCfg != nil {
			ef := evalCfg.Fields()
			evalHook.Interval = ef.Int("interval", 1)
			if err := ef.Err(); err != nil {
				return fail(fmt.Errorf("evaluation: %w", err))
			}
		}
		r.RegisterHook(evalHook)
	}

	switch {
	case resumeFrom != "":
		if err := Resume(resumeFrom, r); err != nil {
			return fail(err)
		}
	case loadFrom != "":
		if err := LoadWeights(loadFrom, r); err != nil {
			return fail(err)
		}
	}
	return r, logFile, nil
}

func optimizerHook(cfg config.Config, updateInterval int) (*OptimizerHook, error) {
	h := &OptimizerHook{UpdateInterval: updateInterval, HessianInterval: 10}
	if cfg == nil {
		return h, nil
	}
	f := cfg.Fields()
	h.UpdateInterval = f.Int("update_interval", updateInterval)
	h.HessianInterval = f.Int("hessian_interval", 10)
	clip := f.Sub("grad_clip")
	if clip != nil {
		cf := clip.Fields()
		h.GradClip = &GradClip{MaxNorm: cf.Float("max_norm", 0), NormType: cf.Float("norm_type", 2)}
		if err := cf.Err(); err != nil {
			return nil, fmt.Errorf("optimizer_config: grad_clip: %w", err)
		}
		if h.GradClip.MaxNorm <= 0 {
			return nil, fmt.Errorf("optimizer_config: %w: grad_clip.max_norm must be positive", config.ErrInvalidConfig)
		}
	}
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("optimizer_config: %w", err)
	}
	if h.UpdateInterval <= 0 || h.HessianInterval <= 0 {
		return nil, fmt.Errorf("optimizer_config: %w: update_interval and hessian_interval must be positive", config.ErrInvalidConfig)
	}
	return h, nil
}

// Train builds a runner from cfg and runs it to completion.
func Train(ctx context.Context, cfg config.Config, workDir string, logger *log.Logger) (*EpochBasedRunner, error) {
	r, closer, err := Build(ctx, cfg, workDir, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = closer.Close()
	}()
	if err := r.Run(ctx); err != nil {
		return r, err
	}
	return r, nil
}
