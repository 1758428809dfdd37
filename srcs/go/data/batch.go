package data

import "fmt"

// Batch is Rows sequences of SeqLen tokens in row-major order.
type Batch struct {
	Tokens []int32
	Rows   int
	SeqLen int
}

func (b *Batch) Numel() int { return len(b.Tokens) }

func (b *Batch) Row(i int) []int32 { return b.Tokens[i*b.SeqLen : (i+1)*b.SeqLen] }

// GetBatch splits every row into source = row[0:L-1] and target = row[1:L].
func GetBatch(b *Batch) (source, target []int32, err error) {
	if b.SeqLen < 2 || b.Rows*b.SeqLen != len(b.Tokens) {
		return nil, nil, fmt.Errorf("invalid batch of %d tokens as %d x %d", len(b.Tokens), b.Rows, b.SeqLen)
	}
	n := b.Rows * (b.SeqLen - 1)
	source = make([]int32, 0, n)
	target = make([]int32, 0, n)
	for i := 0; i < b.Rows; i++ {
		row := b.Row(i)
		source = append(source, row[:b.SeqLen-1]...)
		target = append(target, row[1:]...)
	}
	return source, target, nil
}
