package model

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/lsds/moebench/srcs/go/bench/config"
	"github.com/lsds/moebench/srcs/go/device"
)

// Parameter is a trainable tensor and its gradient, flattened row-major.
type Parameter struct {
	Name   string
	Shape  []int
	Data   []float32
	Grad   []float32
	Expert bool
}

func (p *Parameter) Numel() int { return len(p.Data) }

// Module is a trainable language model.
type Module interface {
	Parameters() []*Parameter
	// Forward returns logits of shape (len(tokens), vocab).
	Forward(tokens []int32) ([]float32, error)
	// Backward accumulates parameter gradients from dlogits of the last Forward.
	Backward(dlogits []float32) error
	ZeroGrad()
	Train()
	VocabSize() int
}

// Group is the set of ranks that shard the experts of a model.
type Group struct {
	Ranks []int
}

func (g Group) String() string { return fmt.Sprintf("group%v", g.Ranks) }

// Grouped is implemented by models whose experts are sharded over a
// subset of ranks.
type Grouped interface {
	Group() *Group
}

// GroupOf returns the expert group of m, or nil.
func GroupOf(m Module) *Group {
	if g, ok := m.(Grouped); ok {
		return g.Group()
	}
	return nil
}

// ConstructionError reports an invalid hyperparameter or a failed device
// allocation while building a model.
type ConstructionError struct {
	Reason string
	Err    error
}

func (e *ConstructionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("construction failed: %s: %v", e.Reason, e.Err)
	}
	return "construction failed: " + e.Reason
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// Built is everything the training loop needs.
type Built struct {
	Model     Module
	Optimizer Optimizer
	Criterion Criterion
	Group     *Group
}

// Placement locates the model in the group.
type Placement struct {
	Rank      int
	WorldSize int
}

// Build constructs the model on the device of alloc, switches it into
// training mode and builds its optimizer.
func Build(bc config.BenchmarkConfig, spec config.ModelSpec, alloc *device.Allocator, rng *rand.Rand, at Placement) (*Built, error) {
	if err := spec.Validate(); err != nil {
		return nil, &ConstructionError{Reason: "invalid model spec", Err: err}
	}
	criterion, err := NewCriterion(bc.Criterion)
	if err != nil {
		return nil, &ConstructionError{Reason: "invalid criterion", Err: err}
	}
	m, err := NewMoELM(spec, alloc, rng, at)
	if err != nil {
		return nil, err
	}
	m.Train()
	opt, err := NewOptimizer(bc.OptimizerFactory, m.Parameters(), alloc)
	if err != nil {
		return nil, err
	}
	return &Built{
		Model:     m,
		Optimizer: opt,
		Criterion: criterion,
		Group:     GroupOf(m),
	}, nil
}

func CountParameters(ps []*Parameter) (total int, experts int) {
	for _, p := range ps {
		total += p.Numel()
		if p.Expert {
			experts += p.Numel()
		}
	}
	return total, experts
}

func LogNumberOfParameters(m Module, logger *logrus.Entry) {
	total, experts := CountParameters(m.Parameters())
	logger.Infof("training model, #params = %.2fM", float64(total)/1e6)
	logger.Infof("expert params = %.2fM, dense params = %.2fM", float64(experts)/1e6, float64(total-experts)/1e6)
}
