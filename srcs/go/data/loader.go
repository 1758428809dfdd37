package data

import (
	"io"
	"math/rand"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/lsds/moebench/srcs/go/bench/config"
	"github.com/lsds/moebench/srcs/go/utils"
)

// Iterator yields batches until io.EOF.
type Iterator interface {
	Next() (*Batch, error)
}

// Loader is a restartable source of batches.
type Loader interface {
	// Iterate returns an iterator positioned at the first batch.
	Iterate() Iterator
	Len() int
}

const DefaultSyntheticBatches = 64

// Shard selects the part of the dataset owned by one rank.
type Shard struct {
	Rank      int
	WorldSize int
}

// Open returns the loader of ds for shard and the vocabulary size of the
// dataset.
func Open(ds config.Dataset, spec config.ModelSpec, batchSize int, shard Shard) (Loader, int, error) {
	if batchSize <= 0 {
		return nil, 0, errors.Errorf("batch size must be positive, got %d", batchSize)
	}
	if ds.Synthetic {
		l := &SyntheticLoader{
			Vocab:      spec.VocabSize,
			BatchSize:  batchSize,
			SeqLen:     spec.SeqLen,
			NumBatches: DefaultSyntheticBatches,
			Seed:       utils.SeedFor(shard.Rank),
		}
		return l, spec.VocabSize, nil
	}
	c, err := ReadCorpusFile(filepath.Join(ds.Dir, ds.TrainFile))
	if err != nil {
		return nil, 0, err
	}
	l, err := NewCorpusLoader(c.Tokens, batchSize, spec.SeqLen, shard)
	if err != nil {
		return nil, 0, err
	}
	return l, c.VocabSize(), nil
}

// SliceLoader serves a fixed list of batches.
type SliceLoader []*Batch

func (l SliceLoader) Len() int { return len(l) }

func (l SliceLoader) Iterate() Iterator { return &sliceIterator{bs: l} }

type sliceIterator struct {
	bs  []*Batch
	pos int
}

func (it *sliceIterator) Next() (*Batch, error) {
	if it.pos >= len(it.bs) {
		return nil, io.EOF
	}
	b := it.bs[it.pos]
	it.pos++
	return b, nil
}

// SyntheticLoader yields uniformly random tokens; every iteration replays
// the same batches.
type SyntheticLoader struct {
	Vocab      int
	BatchSize  int
	SeqLen     int
	NumBatches int
	Seed       int64
}

func (l *SyntheticLoader) Len() int { return l.NumBatches }

func (l *SyntheticLoader) Iterate() Iterator {
	return &syntheticIterator{l: l, rng: rand.New(rand.NewSource(l.Seed))}
}

type syntheticIterator struct {
	l   *SyntheticLoader
	rng *rand.Rand
	n   int
}

func (it *syntheticIterator) Next() (*Batch, error) {
	if it.n >= it.l.NumBatches {
		return nil, io.EOF
	}
	it.n++
	b := &Batch{
		Tokens: make([]int32, it.l.BatchSize*it.l.SeqLen),
		Rows:   it.l.BatchSize,
		SeqLen: it.l.SeqLen,
	}
	for i := range b.Tokens {
		b.Tokens[i] = int32(it.rng.Intn(it.l.Vocab))
	}
	return b, nil
}
