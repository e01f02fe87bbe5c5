package optim

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/nn"
)

var (
	layerIndex = regexp.MustCompile(`(?:^|\.)(?:layers|blocks)\.(\d+)(?:\.|$)`)
	stageIndex = regexp.MustCompile(`(?:^|\.)stages\.(\d+)(?:\.|$)`)
)

// LayerID assigns a parameter to a depth for layer-wise learning-rate
// decay: embeddings and tokens are layer 0, parameters of the i-th indexed
// block (layers.<i> or blocks.<i>; stages.<i> for stage_wise) are layer
// i+1 and everything else, typically the head, is numLayers+1.
func LayerID(name string, numLayers int, decayType string) int {
	short := name[strings.LastIndex(name, ".")+1:]
	if strings.Contains(name, "embed") || short == "cls_token" || short == "mask_token" {
		return 0
	}
	re := layerIndex
	if decayType == "stage_wise" {
		re = stageIndex
	}
	if m := re.FindStringSubmatch(name); m != nil {
		i, _ := strconv.Atoi(m[1])
		return min(i+1, numLayers+1)
	}
	return numLayers + 1
}

func noWeightDecay(np nn.NamedParameter) bool {
	short := np.Name[strings.LastIndex(np.Name, ".")+1:]
	return np.Param.Tensor().Dim() == 1 || short == "bias" ||
		short == "pos_embed" || short == "cls_token"
}

// layerDecaySets groups parameters by layer id and decay flag. Each group's
// learning rate is lr·decay_rate^(num_layers+1-layer_id); biases and
// one-dimensional parameters get no weight decay.
func layerDecaySets(cfg config.Config, named []nn.NamedParameter) ([]ParamSet, error) {
	f := cfg.Fields()
	lr := f.Float32("lr", 0)
	wd := f.Float32("weight_decay", 0)
	pc := f.Sub("paramwise_cfg")
	if err := f.Err(); err != nil {
		return nil, err
	}
	if pc == nil {
		return nil, fmt.Errorf("%w: %s requires paramwise_cfg", config.ErrInvalidConfig, layerDecayConstructor)
	}

	pf := pc.Fields()
	numLayers := pf.Int("num_layers", 0)
	decayRate := pf.Float("decay_rate", 1)
	decayType := pf.String("decay_type", "layer_wise")
	if err := pf.Err(); err != nil {
		return nil, err
	}
	if numLayers <= 0 {
		return nil, fmt.Errorf("%w: paramwise_cfg.num_layers must be > 0, got %d", config.ErrInvalidConfig, numLayers)
	}
	if decayType != "layer_wise" && decayType != "stage_wise" {
		return nil, fmt.Errorf("%w: paramwise_cfg.decay_type %q", config.ErrInvalidConfig, decayType)
	}

	var sets []ParamSet
	index := make(map[string]int)
	for _, np := range named {
		id := LayerID(np.Name, numLayers, decayType)
		groupWD, suffix := wd, "decay"
		if noWeightDecay(np) {
			groupWD, suffix = 0, "no_decay"
		}
		name := fmt.Sprintf("layer_%d_%s", id, suffix)
		i, ok := index[name]
		if !ok {
			scale := math.Pow(decayRate, float64(numLayers+1-id))
			sets = append(sets, ParamSet{
				Name:        name,
				LR:          Float32(lr * float32(scale)),
				WeightDecay: Float32(groupWD),
			})
			i = len(sets) - 1
			index[name] = i
		}
		sets[i].Params = append(sets[i].Params, np.Param)
	}
	return sets, nil
}
