package model

import (
	"fmt"
	"math"

	"github.com/lsds/moebench/srcs/go/bench/config"
)

// Criterion computes a scalar loss and its gradient with respect to the logits.
type Criterion interface {
	Loss(logits []float32, targets []int32, vocab int) (float64, []float32, error)
}

func NewCriterion(c config.Criterion) (Criterion, error) {
	switch c {
	case config.CrossEntropy:
		return crossEntropy{}, nil
	default:
		return nil, fmt.Errorf("unknown criterion %q", c)
	}
}

type crossEntropy struct{}

// Loss returns the mean negative log likelihood over all targets.
func (crossEntropy) Loss(logits []float32, targets []int32, vocab int) (float64, []float32, error) {
	n := len(targets)
	if n == 0 || len(logits) != n*vocab {
		return 0, nil, fmt.Errorf("logits of size %d do not match %d targets of vocab %d", len(logits), n, vocab)
	}
	grad := make([]float32, len(logits))
	var total float64
	for i, t := range targets {
		if t < 0 || int(t) >= vocab {
			return 0, nil, fmt.Errorf("target %d out of vocab %d", t, vocab)
		}
		row := logits[i*vocab : (i+1)*vocab]
		g := grad[i*vocab : (i+1)*vocab]
		lse := logSumExp(row)
		total += lse - float64(row[t])
		for j, z := range row {
			g[j] = float32(math.Exp(float64(z)-lse)) / float32(n)
		}
		g[t] -= 1 / float32(n)
	}
	loss := total / float64(n)
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, nil, fmt.Errorf("loss is not finite: %v", loss)
	}
	return loss, grad, nil
}

func logSumExp(xs []float32) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		m = math.Max(m, float64(x))
	}
	var s float64
	for _, x := range xs {
		s += math.Exp(float64(x) - m)
	}
	return m + math.Log(s)
}

func softmax(ys, xs []float32) {
	lse := logSumExp(xs)
	for i, x := range xs {
		ys[i] = float32(math.Exp(float64(x) - lse))
	}
}
