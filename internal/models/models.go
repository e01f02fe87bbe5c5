// Package models builds classifiers from configuration.
//
// A model config names a classifier type and its parts:
//
//	model:
//	  type: MixUpClassification
//	  alpha: [0.2, 1.0]
//	  mix_mode: [mixup, cutmix]
//	  backbone: {type: MLP, in_channels: 3, img_size: 8, hidden_channels: [64, 64]}
//	  head:
//	    type: ClsMixupHead
//	    in_channels: 64
//	    num_classes: 10
//	    loss: {type: CrossEntropyLoss}
//	  init_cfg:
//	    - {type: Kaiming, layer: Linear, mode: fan_in}
//	    - {type: Constant, layer: LayerNorm, val: 1, bias: 0}
//
// Backbones, heads, losses, initializers and classifier types are looked up
// in registries so new ones can be added with Register* at init time.
package models

import (
	"fmt"
	"math/rand/v2"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/nn"
	"github.com/mixgo-ml/mixgo/internal/registry"
)

// BackboneFactory builds a backbone and reports its output width.
type BackboneFactory func(f *config.Fields, rng *rand.Rand) (nn.Module, int, error)

// HeadFactory builds a head.
type HeadFactory func(f *config.Fields, rng *rand.Rand) (Head, error)

// LossFactory builds a loss.
type LossFactory func(f *config.Fields) (nn.Loss, error)

// ModelFactory builds a classifier from the full model config.
type ModelFactory func(cfg config.Config, rng *rand.Rand) (*Classifier, error)

var (
	backbones = registry.New[BackboneFactory]("backbone")
	heads     = registry.New[HeadFactory]("head")
	losses    = registry.New[LossFactory]("loss")
	modelsReg = registry.New[ModelFactory]("model")
)

// RegisterBackbone adds a backbone type.
func RegisterBackbone(name string, f BackboneFactory) { backbones.Register(name, f) }

// RegisterHead adds a head type.
func RegisterHead(name string, f HeadFactory) { heads.Register(name, f) }

// RegisterLoss adds a loss type.
func RegisterLoss(name string, f LossFactory) { losses.Register(name, f) }

// RegisterModel adds a classifier type.
func RegisterModel(name string, f ModelFactory) { modelsReg.Register(name, f) }

// Models lists the registered classifier types.
func Models() []string { return modelsReg.Names() }

// Build constructs the classifier described by cfg (the `model` mapping).
func Build(cfg config.Config, rng *rand.Rand) (*Classifier, error) {
	typ, err := cfg.Type()
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	factory, err := modelsReg.Get(typ)
	if err != nil {
		return nil, err
	}
	return factory(cfg, rng)
}

// BuildBackbone constructs a backbone from its config.
func BuildBackbone(cfg config.Config, rng *rand.Rand) (nn.Module, int, error) {
	typ, err := cfg.Type()
	if err != nil {
		return nil, 0, fmt.Errorf("backbone: %w", err)
	}
	factory, err := backbones.Get(typ)
	if err != nil {
		return nil, 0, err
	}
	f := cfg.Fields()
	m, width, err := factory(f, rng)
	if err != nil {
		return nil, 0, fmt.Errorf("backbone %s: %w", typ, err)
	}
	return m, width, nil
}

// BuildHead constructs a head from its config.
func BuildHead(cfg config.Config, rng *rand.Rand) (Head, error) {
	typ, err := cfg.Type()
	if err != nil {
		return nil, fmt.Errorf("head: %w", err)
	}
	factory, err := heads.Get(typ)
	if err != nil {
		return nil, err
	}
	h, err := factory(cfg.Fields(), rng)
	if err != nil {
		return nil, fmt.Errorf("head %s: %w", typ, err)
	}
	return h, nil
}

// BuildLoss constructs a loss from its config. A nil config selects
// CrossEntropyLoss.
func BuildLoss(cfg config.Config) (nn.Loss, error) {
	if cfg == nil {
		return nn.CrossEntropyLoss{}, nil
	}
	typ, err := cfg.Type()
	if err != nil {
		return nil, fmt.Errorf("loss: %w", err)
	}
	factory, err := losses.Get(typ)
	if err != nil {
		return nil, err
	}
	l, err := factory(cfg.Fields())
	if err != nil {
		return nil, fmt.Errorf("loss %s: %w", typ, err)
	}
	return l, nil
}

func init() {
	RegisterLoss("CrossEntropyLoss", func(f *config.Fields) (nn.Loss, error) {
		l := nn.CrossEntropyLoss{LossWeight: f.Float("loss_weight", 1)}
		return l, f.Err()
	})
	RegisterLoss("LabelSmoothLoss", func(f *config.Fields) (nn.Loss, error) {
		l := nn.LabelSmoothLoss{
			Smooth:     f.Float("label_smooth_val", 0.1),
			NumClasses: f.Int("num_classes", 0),
			Mode:       f.String("mode", nn.SmoothOriginal),
			LossWeight: f.Float("loss_weight", 1),
		}
		if err := f.Err(); err != nil {
			return nil, err
		}
		if l.Smooth < 0 || l.Smooth >= 1 {
			return nil, fmt.Errorf("%w: label_smooth_val must be in [0, 1), got %v", config.ErrInvalidConfig, l.Smooth)
		}
		switch l.Mode {
		case nn.SmoothOriginal, nn.SmoothClassyVision, nn.SmoothMultiLabel:
		default:
			return nil, fmt.Errorf("%w: label smooth mode %q", config.ErrInvalidConfig, l.Mode)
		}
		return l, nil
	})
}
