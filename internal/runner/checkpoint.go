package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mixgo-ml/mixgo/internal/serialization"
	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// Checkpoint tensor name prefixes.
const (
	modelPrefix     = "model."
	optimizerPrefix = "optimizer."
)

// CheckpointHook saves epoch_<N>.safetensors every Interval epochs and
// after the last one. With MaxKeep > 0 only the newest MaxKeep
// checkpoints are kept.
type CheckpointHook struct {
	BaseHook
	Interval      int
	MaxKeep       int
	SaveOptimizer bool

	saved []string
}

// Priority runs the hook after evaluation so metrics are recorded.
func (h *CheckpointHook) Priority() int { return PriorityBelowNormal }

// AfterEpoch saves a checkpoint when due.
func (h *CheckpointHook) AfterEpoch(r *EpochBasedRunner) error {
	interval := max(h.Interval, 1)
	if r.epoch%interval != 0 && r.epoch != r.maxEpochs {
		return nil
	}
	path := filepath.Join(r.workDir, fmt.Sprintf("epoch_%d.safetensors", r.epoch))
	if err := SaveCheckpoint(path, r, h.SaveOptimizer); err != nil {
		return err
	}
	r.logger.Printf("Saving checkpoint at %d epochs", r.epoch)
	h.saved = append(h.saved, path)
	for h.MaxKeep > 0 && len(h.saved) > h.MaxKeep {
		if err := os.Remove(h.saved[0]); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove old checkpoint: %w", err)
		}
		h.saved = h.saved[1:]
	}
	return nil
}

// SaveCheckpoint writes the model (and optionally the optimizer state)
// with the run position in the metadata.
func SaveCheckpoint(path string, r *EpochBasedRunner, withOptimizer bool) error {
	tensors := make(map[string]*tensor.Tensor)
	for name, t := range r.model.StateDict() {
		tensors[modelPrefix+name] = t
	}
	if withOptimizer {
		for name, t := range r.optimizer.StateDict() {
			tensors[optimizerPrefix+name] = t
		}
	}
	meta := map[string]string{
		"run_id":    r.runID,
		"epoch":     strconv.Itoa(r.epoch),
		"iter":      strconv.Itoa(r.iter),
		"optimizer": r.optimizer.Name(),
		"time":      time.Now().UTC().Format(time.RFC3339),
	}
	for name, v := range r.metrics {
		meta["metric."+name] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	if err := serialization.WriteSafeTensors(path, tensors, meta); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Resume restores model weights, optimizer state and the run position
// from a checkpoint written by SaveCheckpoint. Every model parameter must
// be present.
func Resume(path string, r *EpochBasedRunner) error {
	modelState, optState, meta, err := readCheckpoint(path)
	if err != nil {
		return err
	}
	missing, _, err := r.model.LoadStateDict(modelState)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("resume: checkpoint lacks %s", strings.Join(missing, ", "))
	}
	if len(optState) > 0 {
		if name := meta["optimizer"]; name != "" && name != r.optimizer.Name() {
			return fmt.Errorf("resume: checkpoint optimizer %s does not match %s", name, r.optimizer.Name())
		}
		if err := r.optimizer.LoadStateDict(optState); err != nil {
			return fmt.Errorf("resume: %w", err)
		}
	}
	epoch, err := strconv.Atoi(meta["epoch"])
	if err != nil {
		return fmt.Errorf("resume: bad epoch %q in metadata", meta["epoch"])
	}
	iter, err := strconv.Atoi(meta["iter"])
	if err != nil {
		return fmt.Errorf("resume: bad iter %q in metadata", meta["iter"])
	}
	r.Restore(epoch, iter)
	r.logger.Printf("resumed epoch %d, iter %d from %s", epoch, iter, path)
	return nil
}

// LoadWeights loads only the model weights of a checkpoint.
func LoadWeights(path string, r *EpochBasedRunner) error {
	modelState, _, _, err := readCheckpoint(path)
	if err != nil {
		return err
	}
	missing, unexpected, err := r.model.LoadStateDict(modelState)
	if err != nil {
		return fmt.Errorf("load_from: %w", err)
	}
	if len(missing) > 0 {
		r.logger.Printf("load_from: missing keys: %s", strings.Join(missing, ", "))
	}
	if len(unexpected) > 0 {
		r.logger.Printf("load_from: unexpected keys: %s", strings.Join(unexpected, ", "))
	}
	r.logger.Printf("load checkpoint from %s", path)
	return nil
}

func readCheckpoint(path string) (modelState, optState map[string]*tensor.Tensor, meta map[string]string, err error) {
	tensors, meta, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read checkpoint: %w", err)
	}
	modelState = make(map[string]*tensor.Tensor)
	optState = make(map[string]*tensor.Tensor)
	for name, t := range tensors {
		switch {
		case strings.HasPrefix(name, modelPrefix):
			modelState[strings.TrimPrefix(name, modelPrefix)] = t
		case strings.HasPrefix(name, optimizerPrefix):
			optState[strings.TrimPrefix(name, optimizerPrefix)] = t
		}
	}
	return modelState, optState, meta, nil
}
