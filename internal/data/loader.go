package data

import (
	"fmt"
	"iter"
	"math/rand/v2"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/mixup"
	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// Loader groups dataset samples into batches.
type Loader struct {
	dataset   Dataset
	batchSize int
	shuffle   bool
	dropLast  bool
	rng       *rand.Rand
}

// NewLoader creates a loader. rng is required when shuffle is set.
func NewLoader(ds Dataset, batchSize int, shuffle, dropLast bool, rng *rand.Rand) (*Loader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", config.ErrInvalidConfig, batchSize)
	}
	if shuffle && rng == nil {
		return nil, fmt.Errorf("loader: shuffle needs a random source")
	}
	return &Loader{dataset: ds, batchSize: batchSize, shuffle: shuffle, dropLast: dropLast, rng: rng}, nil
}

// Dataset returns the underlying dataset.
func (l *Loader) Dataset() Dataset { return l.dataset }

// Len returns the number of batches per epoch.
func (l *Loader) Len() int {
	n := l.dataset.Len()
	if l.dropLast {
		return n / l.batchSize
	}
	return (n + l.batchSize - 1) / l.batchSize
}

// Epoch yields one pass over the dataset. With shuffle each call draws a
// new order.
func (l *Loader) Epoch() iter.Seq[mixup.Batch] {
	n := l.dataset.Len()
	var order []int
	if l.shuffle {
		order = l.rng.Perm(n)
	}
	return func(yield func(mixup.Batch) bool) {
		for b := 0; b < l.Len(); b++ {
			start := b * l.batchSize
			end := min(start+l.batchSize, n)
			if !yield(l.batch(start, end, order)) {
				return
			}
		}
	}
}

func (l *Loader) batch(start, end int, order []int) mixup.Batch {
	imgShape := l.dataset.ImageShape()
	size := imgShape.NumElements()
	shape := append(tensor.Shape{end - start}, imgShape...)
	images := tensor.Zeros(shape)
	labels := make([]int, end-start)
	d := images.Data()
	for i := start; i < end; i++ {
		idx := i
		if order != nil {
			idx = order[i]
		}
		labels[i-start] = l.dataset.Sample(idx, d[(i-start)*size:(i-start+1)*size])
	}
	return mixup.Batch{Images: images, Labels: labels}
}

// BuildLoaders builds the train and val loaders from a `data` mapping:
//
//	data:
//	  samples_per_gpu: 32
//	  train: {type: SyntheticImages, num_samples: 2000, ...}
//	  val: {type: SyntheticImages, num_samples: 400, ...}
//
// The train loader shuffles and drops the last partial batch; val is nil
// when absent.
func BuildLoaders(cfg config.Config, rng *rand.Rand) (train, val *Loader, err error) {
	f := cfg.Fields()
	batchSize := f.Int("samples_per_gpu", 32)
	dropLast := f.Bool("drop_last", true)
	trainCfg := f.Sub("train")
	valCfg := f.Sub("val")
	if err := f.Err(); err != nil {
		return nil, nil, fmt.Errorf("data: %w", err)
	}
	if trainCfg == nil {
		return nil, nil, fmt.Errorf("data: %w: missing train dataset", config.ErrInvalidConfig)
	}
	trainDS, err := BuildDataset(trainCfg)
	if err != nil {
		return nil, nil, err
	}
	if train, err = NewLoader(trainDS, batchSize, true, dropLast, rng); err != nil {
		return nil, nil, err
	}
	if valCfg != nil {
		valDS, err := BuildDataset(valCfg)
		if err != nil {
			return nil, nil, err
		}
		if val, err = NewLoader(valDS, batchSize, false, false, nil); err != nil {
			return nil, nil, err
		}
	}
	return train, val, nil
}
