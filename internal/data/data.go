// Package data provides in-memory image datasets and a batching loader.
//
// Only synthetic data is built in: class-conditional Gaussian images whose
// class prototypes are drawn from a seed, so experiments are reproducible
// without any files on disk.
package data

import (
	"fmt"
	"math/rand/v2"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/parallel"
	"github.com/mixgo-ml/mixgo/internal/registry"
	"github.com/mixgo-ml/mixgo/internal/tensor"
)

// Dataset is an indexable collection of labelled images.
type Dataset interface {
	// Len returns the number of samples.
	Len() int

	// ImageShape returns the [C, H, W] shape of one image.
	ImageShape() tensor.Shape

	// Sample copies image i into dst and returns its label.
	Sample(i int, dst []float32) int

	// NumClasses returns the number of labels.
	NumClasses() int
}

// DatasetFactory builds a dataset from its config.
type DatasetFactory func(f *config.Fields) (Dataset, error)

var datasets = registry.New[DatasetFactory]("dataset")

// RegisterDataset adds a dataset type.
func RegisterDataset(name string, f DatasetFactory) { datasets.Register(name, f) }

// BuildDataset constructs the dataset described by cfg.
func BuildDataset(cfg config.Config) (Dataset, error) {
	typ, err := cfg.Type()
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	factory, err := datasets.Get(typ)
	if err != nil {
		return nil, err
	}
	ds, err := factory(cfg.Fields())
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", typ, err)
	}
	return ds, nil
}

// SyntheticImages holds class-conditional Gaussian images: sample i has
// label i mod NumClasses and pixels prototype[label] + noise·N(0, 1).
type SyntheticImages struct {
	numClasses int
	shape      tensor.Shape
	images     []float32
	labels     []int
}

// SyntheticConfig configures SyntheticImages.
type SyntheticConfig struct {
	NumClasses int
	NumSamples int
	Channels   int
	ImgSize    int
	Noise      float64
	Seed       uint64
}

// NewSyntheticImages generates the dataset. Prototypes depend only on
// Seed, so train and val splits with the same seed share classes.
func NewSyntheticImages(cfg SyntheticConfig) (*SyntheticImages, error) {
	if cfg.NumClasses <= 0 || cfg.NumSamples <= 0 || cfg.Channels <= 0 || cfg.ImgSize <= 0 {
		return nil, fmt.Errorf("%w: num_classes, num_samples, channels and img_size must be positive",
			config.ErrInvalidConfig)
	}
	if cfg.Noise < 0 {
		return nil, fmt.Errorf("%w: noise must be >= 0, got %v", config.ErrInvalidConfig, cfg.Noise)
	}
	shape := tensor.Shape{cfg.Channels, cfg.ImgSize, cfg.ImgSize}
	size := shape.NumElements()
	protos := tensor.Randn(tensor.Shape{cfg.NumClasses, size}, tensor.NewRNG(cfg.Seed)).Data()

	ds := &SyntheticImages{
		numClasses: cfg.NumClasses,
		shape:      shape,
		images:     make([]float32, cfg.NumSamples*size),
		labels:     make([]int, cfg.NumSamples),
	}
	parallel.For(cfg.NumSamples, func(i int) {
		label := i % cfg.NumClasses
		ds.labels[i] = label
		rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)+1))
		proto := protos[label*size : (label+1)*size]
		img := ds.images[i*size : (i+1)*size]
		for j := range img {
			img[j] = proto[j] + float32(cfg.Noise*rng.NormFloat64())
		}
	}, parallel.DefaultConfig())
	return ds, nil
}

// Len returns the number of samples.
func (s *SyntheticImages) Len() int { return len(s.labels) }

// ImageShape returns [C, H, W].
func (s *SyntheticImages) ImageShape() tensor.Shape { return s.shape.Clone() }

// NumClasses returns the number of classes.
func (s *SyntheticImages) NumClasses() int { return s.numClasses }

// Sample copies image i into dst and returns its label.
func (s *SyntheticImages) Sample(i int, dst []float32) int {
	size := s.shape.NumElements()
	copy(dst, s.images[i*size:(i+1)*size])
	return s.labels[i]
}

func init() {
	RegisterDataset("SyntheticImages", func(f *config.Fields) (Dataset, error) {
		cfg := SyntheticConfig{
			NumClasses: f.Int("num_classes", 10),
			NumSamples: f.Int("num_samples", 1000),
			Channels:   f.Int("channels", 3),
			ImgSize:    f.Int("img_size", 32),
			Noise:      f.Float("noise", 0.5),
			Seed:       uint64(f.Int("seed", 0)),
		}
		if err := f.Err(); err != nil {
			return nil, err
		}
		ds, err := NewSyntheticImages(cfg)
		if err != nil {
			return nil, err
		}
		return ds, nil
	})
}
