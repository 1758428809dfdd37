package data

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const EOS = `<eos>`

// Corpus is a word level tokenization of a text file; every line ends with
// EOS.
type Corpus struct {
	Words  []string
	Index  map[string]int32
	Tokens []int32
}

func (c *Corpus) VocabSize() int { return len(c.Words) }

func (c *Corpus) add(w string) {
	id, ok := c.Index[w]
	if !ok {
		id = int32(len(c.Words))
		c.Index[w] = id
		c.Words = append(c.Words, w)
	}
	c.Tokens = append(c.Tokens, id)
}

func ReadCorpus(r io.Reader) (*Corpus, error) {
	c := &Corpus{Index: make(map[string]int32)}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for s.Scan() {
		for _, w := range strings.Fields(s.Text()) {
			c.add(w)
		}
		c.add(EOS)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

func ReadCorpusFile(filename string) (*Corpus, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "open dataset")
	}
	defer f.Close()
	c, err := ReadCorpus(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", filename)
	}
	return c, nil
}

// NewCorpusLoader cuts tokens into sequences of seqLen and deals them to
// ranks round robin. The sequence list is padded by wrapping around so that
// every rank gets the same number of batches.
func NewCorpusLoader(tokens []int32, batchSize, seqLen int, shard Shard) (SliceLoader, error) {
	if shard.WorldSize <= 0 || shard.Rank < 0 || shard.Rank >= shard.WorldSize {
		return nil, errors.Errorf("invalid shard %d of %d", shard.Rank, shard.WorldSize)
	}
	n := len(tokens) / seqLen
	if n == 0 {
		return nil, errors.Errorf("dataset of %d tokens is shorter than one sequence of %d", len(tokens), seqLen)
	}
	total := n
	if r := n % shard.WorldSize; r != 0 {
		total += shard.WorldSize - r
	}
	var mine [][]int32
	for i := shard.Rank; i < total; i += shard.WorldSize {
		j := i % n
		mine = append(mine, tokens[j*seqLen:(j+1)*seqLen])
	}
	var l SliceLoader
	for len(mine) > 0 {
		k := batchSize
		if k > len(mine) {
			k = len(mine)
		}
		b := &Batch{Rows: k, SeqLen: seqLen}
		for _, seq := range mine[:k] {
			b.Tokens = append(b.Tokens, seq...)
		}
		l = append(l, b)
		mine = mine[k:]
	}
	return l, nil
}
