package models

import (
	"fmt"
	"math/rand/v2"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/nn"
	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// Head maps backbone features to class logits and scores them.
type Head interface {
	nn.Module

	// InFeatures returns the expected feature width.
	InFeatures() int

	// NumClasses returns the logits width.
	NumClasses() int

	// Loss scores logits against target and returns the logits gradient.
	Loss(logits *tensor.Tensor, target nn.Target) (float64, *tensor.Tensor, error)
}

// ClsHead is a linear classifier. Mixed targets are passed to the loss as
// soft label distributions.
type ClsHead struct {
	*nn.Linear
	loss nn.Loss
}

// NewClsHead creates a linear head.
func NewClsHead(inChannels, numClasses int, loss nn.Loss, rng *rand.Rand) (*ClsHead, error) {
	if inChannels <= 0 || numClasses <= 0 {
		return nil, fmt.Errorf("%w: in_channels and num_classes must be positive, got %d and %d",
			config.ErrInvalidConfig, inChannels, numClasses)
	}
	if loss == nil {
		loss = nn.CrossEntropyLoss{}
	}
	return &ClsHead{Linear: nn.NewLinear(inChannels, numClasses, true, rng), loss: loss}, nil
}

// Kind returns "Linear" so init_cfg entries for Linear layers reach the
// classifier layer too.
func (h *ClsHead) Kind() string { return "Linear" }

// NumClasses returns the logits width.
func (h *ClsHead) NumClasses() int { return h.OutFeatures() }

// Loss applies the configured loss to the target as given.
func (h *ClsHead) Loss(logits *tensor.Tensor, target nn.Target) (float64, *tensor.Tensor, error) {
	return h.loss.Forward(logits, target)
}

// ClsMixupHead is a linear classifier for mixed batches. A mixed target is
// scored as lam·loss(A) + (1-lam)·loss(B).
type ClsMixupHead struct {
	ClsHead
}

// NewClsMixupHead creates a linear mixup head.
func NewClsMixupHead(inChannels, numClasses int, loss nn.Loss, rng *rand.Rand) (*ClsMixupHead, error) {
	h, err := NewClsHead(inChannels, numClasses, loss, rng)
	if err != nil {
		return nil, err
	}
	return &ClsMixupHead{ClsHead: *h}, nil
}

// Loss mixes the losses of both label sets.
func (h *ClsMixupHead) Loss(logits *tensor.Tensor, target nn.Target) (float64, *tensor.Tensor, error) {
	if target.B == nil || target.Lam == 1 {
		return h.loss.Forward(logits, nn.HardTarget(target.A))
	}
	lossA, gradA, err := h.loss.Forward(logits, nn.HardTarget(target.A))
	if err != nil {
		return 0, nil, err
	}
	lossB, gradB, err := h.loss.Forward(logits, nn.HardTarget(target.B))
	if err != nil {
		return 0, nil, err
	}
	lam := float32(target.Lam)
	ga, gb := gradA.Data(), gradB.Data()
	for i := range ga {
		ga[i] = lam*ga[i] + (1-lam)*gb[i]
	}
	return target.Lam*lossA + (1-target.Lam)*lossB, gradA, nil
}

func headArgs(f *config.Fields) (inChannels, numClasses int, loss nn.Loss, err error) {
	inChannels = f.Int("in_channels", 0)
	numClasses = f.Int("num_classes", 0)
	lossCfg := f.Sub("loss")
	if err := f.Err(); err != nil {
		return 0, 0, nil, err
	}
	loss, err = BuildLoss(lossCfg)
	if err != nil {
		return 0, 0, nil, err
	}
	return inChannels, numClasses, loss, nil
}

func init() {
	RegisterHead("ClsHead", func(f *config.Fields, rng *rand.Rand) (Head, error) {
		in, classes, loss, err := headArgs(f)
		if err != nil {
			return nil, err
		}
		h, err := NewClsHead(in, classes, loss, rng)
		if err != nil {
			return nil, err
		}
		return h, nil
	})
	RegisterHead("ClsMixupHead", func(f *config.Fields, rng *rand.Rand) (Head, error) {
		in, classes, loss, err := headArgs(f)
		if err != nil {
			return nil, err
		}
		h, err := NewClsMixupHead(in, classes, loss, rng)
		if err != nil {
			return nil, err
		}
		return h, nil
	})
}
