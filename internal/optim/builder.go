package optim

import (
	"fmt"
	"regexp"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/nn"
	"github.com/mixgo-ml/mixgo/internal/registry"
)

// Factory builds an optimizer from its configuration arguments.
type Factory func(cfg config.Config, sets []ParamSet) (Optimizer, error)

var optimizers = registry.New[Factory]("optimizer")

// Register adds an optimizer type to the builder.
func Register(typ string, f Factory) {
	optimizers.Register(typ, f)
}

// Registered lists the optimizer type names known to Build.
func Registered() []string {
	return optimizers.Names()
}

const (
	defaultConstructor    = "DefaultOptimizerConstructor"
	layerDecayConstructor = "LearningRateDecayOptimizerConstructor"
)

// Build creates the optimizer described by cfg over the named parameters.
// Frozen parameters are left out. Groups come from the constructor:
// paramwise_options by default, or per-layer learning-rate decay with
// constructor: LearningRateDecayOptimizerConstructor.
func Build(cfg config.Config, named []nn.NamedParameter) (Optimizer, error) {
	typ, err := cfg.Type()
	if err != nil {
		return nil, fmt.Errorf("optimizer: %w", err)
	}
	factory, err := optimizers.Get(typ)
	if err != nil {
		return nil, err
	}

	var trainable []nn.NamedParameter
	for _, np := range named {
		if np.Param.RequiresGrad() {
			trainable = append(trainable, np)
		}
	}

	f := cfg.Fields()
	constructor := f.String("constructor", defaultConstructor)
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("optimizer %s: %w", typ, err)
	}

	var sets []ParamSet
	switch constructor {
	case defaultConstructor:
		sets, err = paramwiseSets(cfg, trainable)
	case layerDecayConstructor:
		sets, err = layerDecaySets(cfg, trainable)
	default:
		err = fmt.Errorf("%w: constructor %q", registry.ErrUnknownType, constructor)
	}
	if err != nil {
		return nil, fmt.Errorf("optimizer %s: %w", typ, err)
	}
	return factory(cfg, sets)
}

type paramRule struct {
	pattern *regexp.Regexp
	opts    config.Config
}

// paramRules reads paramwise_options. A mapping is tried in sorted pattern
// order; a list of mappings with a `pattern` key is tried in list order.
func paramRules(cfg config.Config) ([]paramRule, error) {
	raw, ok := cfg["paramwise_options"]
	if !ok || raw == nil {
		return nil, nil
	}

	var rules []paramRule
	add := func(pattern string, opts config.Config) error {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: paramwise_options pattern %q: %v", config.ErrInvalidConfig, pattern, err)
		}
		rules = append(rules, paramRule{pattern: re, opts: opts})
		return nil
	}

	switch v := raw.(type) {
	case config.Config:
		for _, key := range v.Keys() {
			opts, err := v.Sub(key)
			if err != nil {
				return nil, err
			}
			if err := add(key, opts); err != nil {
				return nil, err
			}
		}
	case []any:
		list, err := cfg.Subs("paramwise_options")
		if err != nil {
			return nil, err
		}
		for _, opts := range list {
			pattern, err := opts.String("pattern", "")
			if err != nil {
				return nil, err
			}
			if pattern == "" {
				return nil, fmt.Errorf("%w: paramwise_options entry without pattern", config.ErrInvalidConfig)
			}
			if err := add(pattern, opts); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: paramwise_options must be a mapping or a list", config.ErrInvalidConfig)
	}
	return rules, nil
}

// paramwiseSets puts parameters matching a rule into that rule's group and
// the rest into "default".
func paramwiseSets(cfg config.Config, named []nn.NamedParameter) ([]ParamSet, error) {
	rules, err := paramRules(cfg)
	if err != nil {
		return nil, err
	}
	f := cfg.Fields()
	baseLR := f.Float32("lr", 0)
	baseWD := f.Float32("weight_decay", 0)
	if err := f.Err(); err != nil {
		return nil, err
	}

	sets := make([]ParamSet, len(rules)+1)
	for i, r := range rules {
		set, err := ruleSet(r, baseLR, baseWD)
		if err != nil {
			return nil, err
		}
		sets[i] = set
	}
	sets[len(rules)] = ParamSet{Name: "default"}

	for _, np := range named {
		idx := len(rules)
		for i, r := range rules {
			if r.pattern.MatchString(np.Name) {
				idx = i
				break
			}
		}
		sets[idx].Params = append(sets[idx].Params, np.Param)
	}

	out := sets[:0]
	for _, s := range sets {
		if len(s.Params) > 0 {
			out = append(out, s)
		}
	}
	return out, nil
}

func ruleSet(r paramRule, baseLR, baseWD float32) (ParamSet, error) {
	f := r.opts.Fields()
	set := ParamSet{Name: r.pattern.String()}
	if f.Has("lr") {
		set.LR = Float32(f.Float32("lr", 0))
	} else if f.Has("lr_mult") {
		set.LR = Float32(baseLR * f.Float32("lr_mult", 1))
	}
	if f.Has("weight_decay") {
		set.WeightDecay = Float32(f.Float32("weight_decay", 0))
	} else if f.Has("decay_mult") {
		set.WeightDecay = Float32(baseWD * f.Float32("decay_mult", 1))
	}
	if f.Has("momentum") {
		set.Momentum = Float32(f.Float32("momentum", 0))
	}
	return set, f.Err()
}

func init() {
	Register("SGD", func(cfg config.Config, sets []ParamSet) (Optimizer, error) {
		def := DefaultSGDConfig()
		f := cfg.Fields()
		c := SGDConfig{
			LR:          f.Float32("lr", def.LR),
			Momentum:    f.Float32("momentum", def.Momentum),
			Dampening:   f.Float32("dampening", def.Dampening),
			WeightDecay: f.Float32("weight_decay", def.WeightDecay),
			Nesterov:    f.Bool("nesterov", def.Nesterov),
		}
		return build(f, func() (Optimizer, error) { return NewSGD(sets, c) })
	})
	adam := func(decoupled bool) Factory {
		return func(cfg config.Config, sets []ParamSet) (Optimizer, error) {
			def := DefaultAdamConfig()
			if decoupled {
				def = DefaultAdamWConfig()
			}
			f := cfg.Fields()
			c := AdamConfig{
				LR:          f.Float32("lr", def.LR),
				Betas:       f.Betas("betas", float64(def.Betas[0]), float64(def.Betas[1])),
				Eps:         f.Float32("eps", def.Eps),
				WeightDecay: f.Float32("weight_decay", def.WeightDecay),
				AMSGrad:     f.Bool("amsgrad", def.AMSGrad),
			}
			if decoupled {
				return build(f, func() (Optimizer, error) { return NewAdamW(sets, c) })
			}
			return build(f, func() (Optimizer, error) { return NewAdam(sets, c) })
		}
	}
	Register("Adam", adam(false))
	Register("AdamW", adam(true))
	Register("AdaBelief", func(cfg config.Config, sets []ParamSet) (Optimizer, error) {
		def := DefaultAdaBeliefConfig()
		f := cfg.Fields()
		c := AdaBeliefConfig{
			LR:               f.Float32("lr", def.LR),
			Betas:            f.Betas("betas", 0.9, 0.999),
			Eps:              f.Float32("eps", def.Eps),
			WeightDecay:      f.Float32("weight_decay", 0),
			AMSGrad:          f.Bool("amsgrad", false),
			DecoupledDecay:   f.Bool("decoupled_decay", def.DecoupledDecay),
			FixedDecay:       f.Bool("fixed_decay", false),
			Rectify:          f.Bool("rectify", def.Rectify),
			DegeneratedToSGD: f.Bool("degenerated_to_sgd", def.DegeneratedToSGD),
		}
		return build(f, func() (Optimizer, error) { return NewAdaBelief(sets, c) })
	})
	adabound := func(decoupled bool) Factory {
		return func(cfg config.Config, sets []ParamSet) (Optimizer, error) {
			def := DefaultAdaBoundConfig()
			f := cfg.Fields()
			c := AdaBoundConfig{
				LR:          f.Float32("lr", def.LR),
				Betas:       f.Betas("betas", 0.9, 0.999),
				FinalLR:     f.Float32("final_lr", def.FinalLR),
				Gamma:       f.Float32("gamma", def.Gamma),
				Eps:         f.Float32("eps", def.Eps),
				WeightDecay: f.Float32("weight_decay", 0),
				AMSBound:    f.Bool("amsbound", false),
			}
			if decoupled {
				return build(f, func() (Optimizer, error) { return NewAdaBoundW(sets, c) })
			}
			return build(f, func() (Optimizer, error) { return NewAdaBound(sets, c) })
		}
	}
	Register("AdaBound", adabound(false))
	Register("AdaBoundW", adabound(true))
	Register("Adafactor", func(cfg config.Config, sets []ParamSet) (Optimizer, error) {
		def := DefaultAdafactorConfig()
		f := cfg.Fields()
		c := AdafactorConfig{
			LR:             f.Float32("lr", 0),
			Eps:            f.Float32("eps", def.Eps),
			EpsScale:       f.Float32("eps_scale", def.EpsScale),
			ClipThreshold:  f.Float32("clip_threshold", def.ClipThreshold),
			DecayRate:      f.Float32("decay_rate", def.DecayRate),
			Beta1:          f.Float32("beta1", 0),
			WeightDecay:    f.Float32("weight_decay", 0),
			ScaleParameter: f.Bool("scale_parameter", def.ScaleParameter),
			RelativeStep:   !f.Has("lr"),
			WarmupInit:     f.Bool("warmup_init", false),
		}
		return build(f, func() (Optimizer, error) { return NewAdafactor(sets, c) })
	})
	Register("Adahessian", func(cfg config.Config, sets []ParamSet) (Optimizer, error) {
		def := DefaultAdahessianConfig()
		f := cfg.Fields()
		c := AdahessianConfig{
			LR:            f.Float32("lr", def.LR),
			Betas:         f.Betas("betas", 0.9, 0.999),
			Eps:           f.Float32("eps", def.Eps),
			WeightDecay:   f.Float32("weight_decay", 0),
			HessianPower:  f.Float32("hessian_power", def.HessianPower),
			UpdateEach:    f.Int("update_each", def.UpdateEach),
			NSamples:      f.Int("n_samples", def.NSamples),
			AvgConvKernel: f.Bool("avg_conv_kernel", false),
			Seed:          uint64(f.Int("seed", 0)),
		}
		return build(f, func() (Optimizer, error) { return NewAdahessian(sets, c) })
	})
	Register("AdamP", func(cfg config.Config, sets []ParamSet) (Optimizer, error) {
		def := DefaultAdamPConfig()
		f := cfg.Fields()
		c := AdamPConfig{
			LR:          f.Float32("lr", def.LR),
			Betas:       f.Betas("betas", 0.9, 0.999),
			Eps:         f.Float32("eps", def.Eps),
			WeightDecay: f.Float32("weight_decay", 0),
			Delta:       f.Float32("delta", def.Delta),
			WDRatio:     f.Float32("wd_ratio", def.WDRatio),
			Nesterov:    f.Bool("nesterov", false),
		}
		return build(f, func() (Optimizer, error) { return NewAdamP(sets, c) })
	})
	Register("Adan", func(cfg config.Config, sets []ParamSet) (Optimizer, error) {
		def := DefaultAdanConfig()
		f := cfg.Fields()
		betas := f.Floats("betas", 0.98, 0.92, 0.99)
		c := AdanConfig{
			LR:          f.Float32("lr", def.LR),
			Eps:         f.Float32("eps", def.Eps),
			WeightDecay: f.Float32("weight_decay", 0),
			NoProx:      f.Bool("no_prox", false),
		}
		if err := f.Err(); err != nil {
			return nil, err
		}
		if len(betas) != 3 {
			return nil, fmt.Errorf("Adan: %w: \"betas\" must have 3 elements, got %d", config.ErrInvalidConfig, len(betas))
		}
		for i, b := range betas {
			c.Betas[i] = float32(b)
		}
		return build(f, func() (Optimizer, error) { return NewAdan(sets, c) })
	})
	Register("LAMB", func(cfg config.Config, sets []ParamSet) (Optimizer, error) {
		def := DefaultLAMBConfig()
		f := cfg.Fields()
		c := LAMBConfig{
			LR:             f.Float32("lr", def.LR),
			BiasCorrection: f.Bool("bias_correction", def.BiasCorrection),
			Betas:          f.Betas("betas", 0.9, 0.999),
			Eps:            f.Float32("eps", def.Eps),
			WeightDecay:    f.Float32("weight_decay", def.WeightDecay),
			GradAveraging:  f.Bool("grad_averaging", def.GradAveraging),
			MaxGradNorm:    f.Float32("max_grad_norm", def.MaxGradNorm),
			TrustClip:      f.Bool("trust_clip", false),
			AlwaysAdapt:    f.Bool("always_adapt", false),
		}
		return build(f, func() (Optimizer, error) { return NewLAMB(sets, c) })
	})
	Register("LARS", func(cfg config.Config, sets []ParamSet) (Optimizer, error) {
		def := DefaultLARSConfig()
		f := cfg.Fields()
		c := LARSConfig{
			LR:          f.Float32("lr", def.LR),
			Momentum:    f.Float32("momentum", 0),
			Dampening:   f.Float32("dampening", 0),
			WeightDecay: f.Float32("weight_decay", 0),
			Nesterov:    f.Bool("nesterov", false),
			TrustCoeff:  f.Float32("trust_coeff", def.TrustCoeff),
			Eps:         f.Float32("eps", def.Eps),
			TrustClip:   f.Bool("trust_clip", false),
			AlwaysAdapt: f.Bool("always_adapt", false),
		}
		return build(f, func() (Optimizer, error) { return NewLARS(sets, c) })
	})
	Register("Lion", func(cfg config.Config, sets []ParamSet) (Optimizer, error) {
		def := DefaultLionConfig()
		f := cfg.Fields()
		c := LionConfig{
			LR:          f.Float32("lr", def.LR),
			Betas:       f.Betas("betas", 0.9, 0.99),
			WeightDecay: f.Float32("weight_decay", 0),
		}
		return build(f, func() (Optimizer, error) { return NewLion(sets, c) })
	})
	Register("MADGRAD", func(cfg config.Config, sets []ParamSet) (Optimizer, error) {
		def := DefaultMADGRADConfig()
		f := cfg.Fields()
		c := MADGRADConfig{
			LR:             f.Float32("lr", def.LR),
			Momentum:       f.Float32("momentum", def.Momentum),
			WeightDecay:    f.Float32("weight_decay", 0),
			Eps:            f.Float32("eps", def.Eps),
			DecoupledDecay: f.Bool("decoupled_decay", false),
		}
		return build(f, func() (Optimizer, error) { return NewMADGRAD(sets, c) })
	})
	Register("NvNovoGrad", func(cfg config.Config, sets []ParamSet) (Optimizer, error) {
		def := DefaultNvNovoGradConfig()
		f := cfg.Fields()
		c := NvNovoGradConfig{
			LR:            f.Float32("lr", def.LR),
			Betas:         f.Betas("betas", 0.95, 0.98),
			Eps:           f.Float32("eps", def.Eps),
			WeightDecay:   f.Float32("weight_decay", 0),
			GradAveraging: f.Bool("grad_averaging", false),
			AMSGrad:       f.Bool("amsgrad", false),
		}
		return build(f, func() (Optimizer, error) { return NewNvNovoGrad(sets, c) })
	})
	Register("SGDP", func(cfg config.Config, sets []ParamSet) (Optimizer, error) {
		def := DefaultSGDPConfig()
		f := cfg.Fields()
		c := SGDPConfig{
			LR:          f.Float32("lr", def.LR),
			Momentum:    f.Float32("momentum", 0),
			Dampening:   f.Float32("dampening", 0),
			WeightDecay: f.Float32("weight_decay", 0),
			Nesterov:    f.Bool("nesterov", false),
			Eps:         f.Float32("eps", def.Eps),
			Delta:       f.Float32("delta", def.Delta),
			WDRatio:     f.Float32("wd_ratio", def.WDRatio),
		}
		return build(f, func() (Optimizer, error) { return NewSGDP(sets, c) })
	})
	Register("SophiaG", func(cfg config.Config, sets []ParamSet) (Optimizer, error) {
		def := DefaultSophiaConfig()
		f := cfg.Fields()
		c := SophiaConfig{
			LR:          f.Float32("lr", def.LR),
			Betas:       f.Betas("betas", 0.965, 0.99),
			Rho:         f.Float32("rho", def.Rho),
			WeightDecay: f.Float32("weight_decay", def.WeightDecay),
			BatchSize:   f.Int("bs", def.BatchSize),
		}
		return build(f, func() (Optimizer, error) { return NewSophiaG(sets, c) })
	})
}

// build checks the sticky config error before constructing, and keeps a
// failed constructor's typed nil out of the returned interface.
func build(f *config.Fields, construct func() (Optimizer, error)) (Optimizer, error) {
	if err := f.Err(); err != nil {
		return nil, err
	}
	opt, err := construct()
	if err != nil {
		return nil, err
	}
	return opt, nil
}
