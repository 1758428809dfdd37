package config

import (
	"fmt"
	"sort"
	"strings"
)

type Criterion string

const CrossEntropy Criterion = `cross_entropy`

type Optimizer string

const (
	SGD  Optimizer = `sgd`
	Adam Optimizer = `adam`
)

// OptimizerFactory names the optimizer built over the trainable parameters.
type OptimizerFactory struct {
	Kind        Optimizer
	LR          float32
	Momentum    float32
	Beta1       float32
	Beta2       float32
	Eps         float32
	WeightDecay float32
}

// Dataset describes where batches come from.
type Dataset struct {
	Name      string
	TrainFile string
	Synthetic bool
	Dir       string
}

// BenchmarkConfig is built once per run and read-only thereafter.
type BenchmarkConfig struct {
	Criterion        Criterion
	OptimizerFactory OptimizerFactory
	Dataset          Dataset
	BatchSize        int
	LogInterval      int
	ProfileBatches   int
}

// ModelSpec holds the static model dimensions.
type ModelSpec struct {
	VocabSize   int
	ClipValue   float32
	Dim         int
	Hidden      int
	NumExperts  int
	SeqLen      int
	InitRange   float32
	ExpertGroup int
}

// WithVocabSize returns a copy with the vocabulary corrected to the dataset.
func (s ModelSpec) WithVocabSize(n int) ModelSpec {
	s.VocabSize = n
	return s
}

func (s ModelSpec) Validate() error {
	switch {
	case s.VocabSize <= 0:
		return fmt.Errorf("vocab size must be positive, got %d", s.VocabSize)
	case s.Dim <= 0 || s.Hidden <= 0:
		return fmt.Errorf("invalid dimensions dim=%d hidden=%d", s.Dim, s.Hidden)
	case s.NumExperts <= 0:
		return fmt.Errorf("number of experts must be positive, got %d", s.NumExperts)
	case s.SeqLen < 2:
		return fmt.Errorf("sequence length must be at least 2, got %d", s.SeqLen)
	case s.ClipValue <= 0:
		return fmt.Errorf("clip value must be positive, got %g", s.ClipValue)
	case s.ExpertGroup < 0:
		return fmt.Errorf("invalid expert group size %d", s.ExpertGroup)
	}
	return nil
}

type Preset struct {
	Name      string
	Benchmark BenchmarkConfig
	Model     ModelSpec
}

const DefaultPreset = `moe`

var wikitext2 = Dataset{
	Name:      `wikitext-2`,
	TrainFile: `wiki.train.tokens`,
}

var presets = map[string]Preset{
	`moe`: {
		Benchmark: BenchmarkConfig{
			Criterion:        CrossEntropy,
			OptimizerFactory: OptimizerFactory{Kind: Adam, LR: 0.001, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8},
			Dataset:          wikitext2,
			BatchSize:        8,
			LogInterval:      1,
			ProfileBatches:   2,
		},
		Model: ModelSpec{
			VocabSize:  10000,
			ClipValue:  0.05,
			Dim:        256,
			Hidden:     1024,
			NumExperts: 4,
			SeqLen:     32,
			InitRange:  0.1,
		},
	},
	`moe-small`: {
		Benchmark: BenchmarkConfig{
			Criterion:        CrossEntropy,
			OptimizerFactory: OptimizerFactory{Kind: Adam, LR: 0.001, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8},
			Dataset:          wikitext2,
			BatchSize:        8,
			LogInterval:      1,
			ProfileBatches:   2,
		},
		Model: ModelSpec{
			VocabSize:  10000,
			ClipValue:  0.05,
			Dim:        64,
			Hidden:     256,
			NumExperts: 2,
			SeqLen:     32,
			InitRange:  0.1,
		},
	},
	`moe-tiny`: {
		Benchmark: BenchmarkConfig{
			Criterion:        CrossEntropy,
			OptimizerFactory: OptimizerFactory{Kind: SGD, LR: 0.1, Momentum: 0.9},
			Dataset:          Dataset{Name: `synthetic`, Synthetic: true},
			BatchSize:        2,
			LogInterval:      1,
			ProfileBatches:   2,
		},
		Model: ModelSpec{
			VocabSize:  64,
			ClipValue:  0.05,
			Dim:        8,
			Hidden:     16,
			NumExperts: 2,
			SeqLen:     4,
			InitRange:  0.1,
		},
	},
}

// GetPreset returns the named preset; the result is a copy.
func GetPreset(name string) (*Preset, error) {
	p, ok := presets[name]
	if !ok {
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("unknown model name %q, expect one of %s", name, strings.Join(PresetNames(), "|")),
		}
	}
	p.Name = name
	return &p, nil
}

func PresetNames() []string {
	var names []string
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
