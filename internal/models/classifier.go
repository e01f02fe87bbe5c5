package models

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/mixup"
	"github.com/mixgo-ml/mixgo/internal/nn"
	"github.com/mixgo-ml/mixgo/internal/serialization"
	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// Classifier is a backbone followed by a classification head. With a
// mixer, training batches are mixed before the forward pass.
type Classifier struct {
	backbone nn.Module
	head     Head
	mixer    *mixup.Mixer
}

// NewClassifier assembles a classifier. mixer may be nil.
func NewClassifier(backbone nn.Module, head Head, mixer *mixup.Mixer) *Classifier {
	return &Classifier{backbone: backbone, head: head, mixer: mixer}
}

// StepOutput describes one training step.
type StepOutput struct {
	Loss       float64
	NumSamples int
	Mode       string  // mixing mode, empty without a mixer
	Lam        float64 // applied mixing ratio, 1 without mixing
}

// Backbone returns the feature extractor.
func (c *Classifier) Backbone() nn.Module { return c.backbone }

// Head returns the classification head.
func (c *Classifier) Head() Head { return c.head }

// Mixer returns the batch mixer, or nil.
func (c *Classifier) Mixer() *mixup.Mixer { return c.mixer }

// Forward returns the logits for [N, C, H, W] images.
func (c *Classifier) Forward(images *tensor.Tensor) *tensor.Tensor {
	return c.head.Forward(c.backbone.Forward(images))
}

// Backward propagates a logits gradient through head and backbone.
func (c *Classifier) Backward(gradLogits *tensor.Tensor) *tensor.Tensor {
	return c.backbone.Backward(c.head.Backward(gradLogits))
}

// Parameters returns the backbone parameters followed by the head's.
func (c *Classifier) Parameters() []*nn.Parameter {
	return append(c.backbone.Parameters(), c.head.Parameters()...)
}

// Children names the parts "backbone" and "head".
func (c *Classifier) Children() []nn.NamedModule {
	return []nn.NamedModule{{Name: "backbone", Module: c.backbone}, {Name: "head", Module: c.head}}
}

// Kind returns "Classifier".
func (c *Classifier) Kind() string { return "Classifier" }

// NamedParameters returns parameters named backbone.* and head.*.
func (c *Classifier) NamedParameters() []nn.NamedParameter {
	return nn.NamedParameters("", c)
}

// Predict returns logits.
func (c *Classifier) Predict(images *tensor.Tensor) *tensor.Tensor {
	return c.Forward(images)
}

// LossAndGrad runs forward and backward on images and accumulates the
// parameter gradients.
func (c *Classifier) LossAndGrad(images *tensor.Tensor, target nn.Target) (float64, error) {
	logits := c.Forward(images)
	loss, grad, err := c.head.Loss(logits, target)
	if err != nil {
		return 0, err
	}
	c.Backward(grad)
	return loss, nil
}

// TrainStep mixes b (when the classifier has a mixer), then runs forward
// and backward. Gradients accumulate on the parameters until cleared.
func (c *Classifier) TrainStep(b mixup.Batch, rng *rand.Rand) (StepOutput, error) {
	out := StepOutput{NumSamples: b.Len(), Lam: 1}
	images, target := b.Images, nn.HardTarget(b.Labels)
	if c.mixer != nil {
		mixed, err := c.mixer.Mix(b, rng)
		if err != nil {
			return StepOutput{}, err
		}
		images, target = mixed.Images, mixed.Target()
		out.Mode, out.Lam = mixed.Mode, mixed.Lam
	}
	loss, err := c.LossAndGrad(images, target)
	if err != nil {
		return StepOutput{}, err
	}
	out.Loss = loss
	return out, nil
}

// Gradients computes fresh gradients of the loss on images without
// disturbing gradients already accumulated on the parameters.
func (c *Classifier) Gradients(images *tensor.Tensor, target nn.Target) (map[*tensor.Tensor]*tensor.Tensor, error) {
	params := c.Parameters()
	saved := make([]*tensor.Tensor, len(params))
	for i, p := range params {
		saved[i] = p.Grad()
		p.ZeroGrad()
	}
	defer func() {
		for i, p := range params {
			p.SetGrad(saved[i])
		}
	}()
	if _, err := c.LossAndGrad(images, target); err != nil {
		return nil, err
	}
	return nn.CollectGrads(params), nil
}

// StateDict returns the parameter tensors by name. The tensors are shared,
// not copied.
func (c *Classifier) StateDict() map[string]*tensor.Tensor {
	named := c.NamedParameters()
	out := make(map[string]*tensor.Tensor, len(named))
	for _, np := range named {
		out[np.Name] = np.Param.Tensor()
	}
	return out
}

// LoadStateDict copies matching tensors into the parameters and reports
// parameter names absent from state and state names that match no
// parameter. A shape mismatch is an error.
func (c *Classifier) LoadStateDict(state map[string]*tensor.Tensor) (missing, unexpected []string, err error) {
	seen := make(map[string]bool, len(state))
	for _, np := range c.NamedParameters() {
		src, ok := state[np.Name]
		if !ok {
			missing = append(missing, np.Name)
			continue
		}
		seen[np.Name] = true
		if err := np.Param.Tensor().CopyFrom(src); err != nil {
			return nil, nil, fmt.Errorf("load %s: %w", np.Name, err)
		}
	}
	for name := range state {
		if !seen[name] {
			unexpected = append(unexpected, name)
		}
	}
	sort.Strings(unexpected)
	return missing, unexpected, nil
}

// LoadPretrained loads weights from a safetensors file. Names in the file
// may carry a "backbone." prefix or be relative to the backbone.
func (c *Classifier) LoadPretrained(path string) (missing, unexpected []string, err error) {
	state, _, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return nil, nil, fmt.Errorf("pretrained: %w", err)
	}
	named := c.StateDict()
	resolved := make(map[string]*tensor.Tensor, len(state))
	for name, t := range state {
		if _, ok := named[name]; !ok {
			if _, ok := named["backbone."+name]; ok {
				name = "backbone." + name
			}
		}
		resolved[name] = t
	}
	return c.LoadStateDict(resolved)
}

// Accuracy returns the top-1 accuracy of logits against labels.
func Accuracy(logits *tensor.Tensor, labels []int) float64 {
	shape := logits.Shape()
	if len(labels) == 0 || len(shape) != 2 || shape[0] != len(labels) {
		return 0
	}
	k := shape[1]
	data := logits.Data()
	correct := 0
	for i, label := range labels {
		if argmax(data[i*k:(i+1)*k]) == label {
			correct++
		}
	}
	return float64(correct) / float64(len(labels))
}

func argmax(row []float32) int {
	best := 0
	for j, v := range row {
		if v > row[best] {
			best = j
		}
	}
	return best
}

// SampleLabels draws one label per row from softmax(logits).
func SampleLabels(logits *tensor.Tensor, rng *rand.Rand) []int {
	shape := logits.Shape()
	n, k := shape[0], shape[1]
	data := logits.Data()
	labels := make([]int, n)
	probs := make([]float64, k)
	for i := range labels {
		row := data[i*k : (i+1)*k]
		maxV := float64(row[argmax(row)])
		var sum float64
		for j, v := range row {
			probs[j] = math.Exp(float64(v) - maxV)
			sum += probs[j]
		}
		u := rng.Float64() * sum
		labels[i] = k - 1
		for j, p := range probs {
			if u < p {
				labels[i] = j
				break
			}
			u -= p
		}
	}
	return labels
}

func buildClassifier(cfg config.Config, rng *rand.Rand, mixer *mixup.Mixer) (*Classifier, error) {
	f := cfg.Fields()
	backboneCfg := f.Sub("backbone")
	headCfg := f.Sub("head")
	initCfg := f.Subs("init_cfg")
	pretrained := f.String("pretrained", "")
	if err := f.Err(); err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	if backboneCfg == nil || headCfg == nil {
		return nil, fmt.Errorf("model: %w: backbone and head are required", config.ErrInvalidConfig)
	}

	backbone, width, err := BuildBackbone(backboneCfg, rng)
	if err != nil {
		return nil, err
	}
	if !headCfg.Has("in_channels") {
		headCfg = headCfg.Clone()
		headCfg["in_channels"] = width
	}
	head, err := BuildHead(headCfg, rng)
	if err != nil {
		return nil, err
	}
	if in := head.InFeatures(); in != width {
		return nil, fmt.Errorf("model: %w: head in_channels %d does not match backbone output %d",
			config.ErrInvalidConfig, in, width)
	}

	c := NewClassifier(backbone, head, mixer)
	if err := ApplyInitCfg(c, initCfg, rng); err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	if pretrained != "" {
		if _, _, err := c.LoadPretrained(pretrained); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func init() {
	RegisterModel("Classification", func(cfg config.Config, rng *rand.Rand) (*Classifier, error) {
		return buildClassifier(cfg, rng, nil)
	})
	RegisterModel("MixUpClassification", func(cfg config.Config, rng *rand.Rand) (*Classifier, error) {
		mixer, err := mixup.NewMixer(cfg)
		if err != nil {
			return nil, err
		}
		return buildClassifier(cfg, rng, mixer)
	})
}
