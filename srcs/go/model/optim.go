package model

import (
	"fmt"
	"math"

	"github.com/lsds/moebench/srcs/go/bench/config"
	"github.com/lsds/moebench/srcs/go/device"
)

type Optimizer interface {
	ZeroGrad()
	Step() error
}

// NewOptimizer builds the optimizer named by f over ps; its state is
// allocated on the device of alloc.
func NewOptimizer(f config.OptimizerFactory, ps []*Parameter, alloc *device.Allocator) (Optimizer, error) {
	if f.LR <= 0 {
		return nil, &ConstructionError{Reason: fmt.Sprintf("learning rate must be positive, got %g", f.LR)}
	}
	switch f.Kind {
	case config.SGD:
		o := &sgd{f: f, ps: ps}
		if f.Momentum > 0 {
			var err error
			if o.velocity, err = allocLike(ps, alloc); err != nil {
				return nil, err
			}
		}
		return o, nil
	case config.Adam:
		m, err := allocLike(ps, alloc)
		if err != nil {
			return nil, err
		}
		v, err := allocLike(ps, alloc)
		if err != nil {
			return nil, err
		}
		return &adam{f: f, ps: ps, m: m, v: v}, nil
	default:
		return nil, &ConstructionError{Reason: fmt.Sprintf("unknown optimizer %q", f.Kind)}
	}
}

func allocLike(ps []*Parameter, alloc *device.Allocator) ([][]float32, error) {
	var states [][]float32
	for _, p := range ps {
		s, err := alloc.AllocF32(p.Numel())
		if err != nil {
			return nil, &ConstructionError{Reason: "optimizer state of " + p.Name, Err: err}
		}
		states = append(states, s)
	}
	return states, nil
}

type sgd struct {
	f        config.OptimizerFactory
	ps       []*Parameter
	velocity [][]float32
}

func (o *sgd) ZeroGrad() { ZeroGrad(o.ps) }

func (o *sgd) Step() error {
	for i, p := range o.ps {
		for j, g := range p.Grad {
			if o.f.WeightDecay > 0 {
				g += o.f.WeightDecay * p.Data[j]
			}
			if o.velocity != nil {
				v := o.velocity[i]
				v[j] = o.f.Momentum*v[j] + g
				g = v[j]
			}
			p.Data[j] -= o.f.LR * g
		}
	}
	return nil
}

type adam struct {
	f    config.OptimizerFactory
	ps   []*Parameter
	m, v [][]float32
	t    int
}

func (o *adam) ZeroGrad() { ZeroGrad(o.ps) }

func (o *adam) Step() error {
	o.t++
	b1, b2 := float64(o.f.Beta1), float64(o.f.Beta2)
	c1 := float32(1 - math.Pow(b1, float64(o.t)))
	c2 := float32(1 - math.Pow(b2, float64(o.t)))
	for i, p := range o.ps {
		m, v := o.m[i], o.v[i]
		for j, g := range p.Grad {
			if o.f.WeightDecay > 0 {
				g += o.f.WeightDecay * p.Data[j]
			}
			m[j] = o.f.Beta1*m[j] + (1-o.f.Beta1)*g
			v[j] = o.f.Beta2*v[j] + (1-o.f.Beta2)*g*g
			mh := m[j] / c1
			vh := v[j] / c2
			p.Data[j] -= o.f.LR * mh / (float32(math.Sqrt(float64(vh))) + o.f.Eps)
		}
	}
	return nil
}
