package model

import (
	"fmt"
	"math/rand"

	"github.com/lsds/moebench/srcs/go/bench/config"
	"github.com/lsds/moebench/srcs/go/device"
)

// MoELM is a single layer mixture of experts language model:
//
//	x = emb[t]
//	p = softmax(gate x), k = argmax p
//	y = w2[k] relu(w1[k] x + b1[k]) + b2[k]
//	h = x + p[k] y
//	logits = out h + bias
type MoELM struct {
	spec  config.ModelSpec
	alloc *device.Allocator
	group *Group

	emb, gate, w1, b1, w2, b2, out, bias *Parameter
	params                              []*Parameter

	training bool
	tokens   []int32
	cache    []routed
	scratch  []float32
}

// routed holds the activations of one token for the backward pass.
type routed struct {
	x, p, a, y, h []float32
	k             int
}

func NewMoELM(spec config.ModelSpec, alloc *device.Allocator, rng *rand.Rand, at Placement) (*MoELM, error) {
	if err := spec.Validate(); err != nil {
		return nil, &ConstructionError{Reason: "invalid model spec", Err: err}
	}
	m := &MoELM{spec: spec, alloc: alloc}
	for _, l := range Layout(spec) {
		if _, err := m.newParameter(l.Name, l.Shape, l.Expert); err != nil {
			m.Release()
			return nil, err
		}
	}
	ps := m.params
	m.emb, m.gate, m.w1, m.b1, m.w2, m.b2, m.out, m.bias = ps[0], ps[1], ps[2], ps[3], ps[4], ps[5], ps[6], ps[7]
	initUniform(rng, m.emb.Data, spec.InitRange)
	initUniform(rng, m.gate.Data, spec.InitRange)
	initUniform(rng, m.w1.Data, spec.InitRange)
	initUniform(rng, m.w2.Data, spec.InitRange)
	initUniform(rng, m.out.Data, spec.InitRange)
	if g := spec.ExpertGroup; g > 0 {
		if at.WorldSize%g != 0 {
			m.Release()
			return nil, &ConstructionError{Reason: fmt.Sprintf("expert group of %d does not divide world size %d", g, at.WorldSize)}
		}
		m.group = &Group{}
		for r := at.Rank / g * g; r < (at.Rank/g+1)*g; r++ {
			m.group.Ranks = append(m.group.Ranks, r)
		}
	}
	return m, nil
}

// ParameterLayout describes one parameter before allocation.
type ParameterLayout struct {
	Name   string
	Shape  []int
	Expert bool
}

func (l ParameterLayout) Numel() int {
	n := 1
	for _, d := range l.Shape {
		n *= d
	}
	return n
}

// Layout lists the parameters of the model described by spec, in
// allocation order.
func Layout(spec config.ModelSpec) []ParameterLayout {
	v, d, h, e := spec.VocabSize, spec.Dim, spec.Hidden, spec.NumExperts
	return []ParameterLayout{
		{"encoder.weight", []int{v, d}, false},
		{"moe.gate.weight", []int{e, d}, false},
		{"moe.experts.w1", []int{e, h, d}, true},
		{"moe.experts.b1", []int{e, h}, true},
		{"moe.experts.w2", []int{e, d, h}, true},
		{"moe.experts.b2", []int{e, d}, true},
		{"decoder.weight", []int{v, d}, false},
		{"decoder.bias", []int{v}, false},
	}
}

func (m *MoELM) newParameter(name string, shape []int, expert bool) (*Parameter, error) {
	n := ParameterLayout{Shape: shape}.Numel()
	data, err := m.alloc.AllocF32(n)
	if err != nil {
		return nil, &ConstructionError{Reason: "allocating " + name, Err: err}
	}
	grad, err := m.alloc.AllocF32(n)
	if err != nil {
		m.alloc.FreeF32(data)
		return nil, &ConstructionError{Reason: "allocating gradient of " + name, Err: err}
	}
	p := &Parameter{Name: name, Shape: shape, Data: data, Grad: grad, Expert: expert}
	m.params = append(m.params, p)
	return p, nil
}

func initUniform(rng *rand.Rand, xs []float32, r float32) {
	for i := range xs {
		xs[i] = (rng.Float32()*2 - 1) * r
	}
}

// Release returns all parameter memory to the allocator.
func (m *MoELM) Release() {
	m.releaseCache()
	for _, p := range m.params {
		m.alloc.FreeF32(p.Data)
		m.alloc.FreeF32(p.Grad)
	}
	m.params = nil
}

func (m *MoELM) Parameters() []*Parameter { return m.params }

func (m *MoELM) VocabSize() int { return m.spec.VocabSize }

func (m *MoELM) Group() *Group { return m.group }

func (m *MoELM) Train() { m.training = true }

func (m *MoELM) ZeroGrad() { ZeroGrad(m.params) }

func (m *MoELM) releaseCache() {
	if m.scratch != nil {
		m.alloc.FreeF32(m.scratch)
	}
	m.scratch, m.cache, m.tokens = nil, nil, nil
}

func (m *MoELM) Forward(tokens []int32) ([]float32, error) {
	v, d, hid, e := m.spec.VocabSize, m.spec.Dim, m.spec.Hidden, m.spec.NumExperts
	for _, t := range tokens {
		if t < 0 || int(t) >= v {
			return nil, fmt.Errorf("token %d out of vocab %d", t, v)
		}
	}
	m.releaseCache()
	n := len(tokens)
	per := d + e + hid + d + d
	scratch, err := m.alloc.AllocF32(n * per)
	if err != nil {
		return nil, err
	}
	logits, err := m.alloc.AllocF32(n * v)
	if err != nil {
		m.alloc.FreeF32(scratch)
		return nil, err
	}
	// logits are handed to the caller, only their allocation is accounted
	defer m.alloc.FreeF32(logits)

	cache := make([]routed, n)
	for i, t := range tokens {
		buf := scratch[i*per : (i+1)*per]
		c := routed{
			x: buf[:d],
			p: buf[d : d+e],
			a: buf[d+e : d+e+hid],
			y: buf[d+e+hid : d+e+hid+d],
			h: buf[d+e+hid+d:],
		}
		copy(c.x, m.emb.Data[int(t)*d:(int(t)+1)*d])

		gl := make([]float32, e)
		matVec(gl, m.gate.Data, c.x, nil)
		softmax(c.p, gl)
		c.k = argmax(c.p)

		w1 := m.w1.Data[c.k*hid*d : (c.k+1)*hid*d]
		b1 := m.b1.Data[c.k*hid : (c.k+1)*hid]
		matVec(c.a, w1, c.x, b1)
		r := make([]float32, hid)
		for j, a := range c.a {
			if a > 0 {
				r[j] = a
			}
		}
		w2 := m.w2.Data[c.k*d*hid : (c.k+1)*d*hid]
		b2 := m.b2.Data[c.k*d : (c.k+1)*d]
		matVec(c.y, w2, r, b2)

		pk := c.p[c.k]
		for j := range c.h {
			c.h[j] = c.x[j] + pk*c.y[j]
		}
		matVec(logits[i*v:(i+1)*v], m.out.Data, c.h, m.bias.Data)
		cache[i] = c
	}
	if m.training {
		m.tokens, m.cache, m.scratch = tokens, cache, scratch
	} else {
		m.alloc.FreeF32(scratch)
	}
	return logits, nil
}

func (m *MoELM) Backward(dlogits []float32) error {
	if m.cache == nil {
		return fmt.Errorf("backward without a training forward pass")
	}
	v, d, hid, e := m.spec.VocabSize, m.spec.Dim, m.spec.Hidden, m.spec.NumExperts
	if len(dlogits) != len(m.cache)*v {
		return fmt.Errorf("gradient of size %d does not match %d tokens", len(dlogits), len(m.cache))
	}
	dh := make([]float32, d)
	dx := make([]float32, d)
	dy := make([]float32, d)
	dr := make([]float32, hid)
	dg := make([]float32, e)
	for i, c := range m.cache {
		dz := dlogits[i*v : (i+1)*v]
		outer(m.out.Grad, dz, c.h)
		addTo(m.bias.Grad, dz)
		matTVec(dh, m.out.Data, dz)

		copy(dx, dh)
		pk := c.p[c.k]
		var dpk float32
		for j := range dy {
			dy[j] = pk * dh[j]
			dpk += dh[j] * c.y[j]
		}

		r := make([]float32, hid)
		for j, a := range c.a {
			if a > 0 {
				r[j] = a
			}
		}
		w2 := m.w2.Data[c.k*d*hid : (c.k+1)*d*hid]
		outer(m.w2.Grad[c.k*d*hid:(c.k+1)*d*hid], dy, r)
		addTo(m.b2.Grad[c.k*d:(c.k+1)*d], dy)
		matTVec(dr, w2, dy)
		for j, a := range c.a {
			if a <= 0 {
				dr[j] = 0
			}
		}

		w1 := m.w1.Data[c.k*hid*d : (c.k+1)*hid*d]
		outer(m.w1.Grad[c.k*hid*d:(c.k+1)*hid*d], dr, c.x)
		addTo(m.b1.Grad[c.k*hid:(c.k+1)*hid], dr)
		matTVecAdd(dx, w1, dr)

		for j := range dg {
			delta := float32(0)
			if j == c.k {
				delta = 1
			}
			dg[j] = dpk * pk * (delta - c.p[j])
		}
		outer(m.gate.Grad, dg, c.x)
		matTVecAdd(dx, m.gate.Data, dg)

		t := int(m.tokens[i])
		addTo(m.emb.Grad[t*d:(t+1)*d], dx)
	}
	m.releaseCache()
	return nil
}

// matVec computes y = W x + b for W of shape (len(y), len(x)).
func matVec(y, w, x, b []float32) {
	n := len(x)
	for i := range y {
		row := w[i*n : (i+1)*n]
		var s float32
		for j, xj := range x {
			s += row[j] * xj
		}
		if b != nil {
			s += b[i]
		}
		y[i] = s
	}
}

// matTVec computes x = W^T y.
func matTVec(x, w, y []float32) {
	for j := range x {
		x[j] = 0
	}
	matTVecAdd(x, w, y)
}

func matTVecAdd(x, w, y []float32) {
	n := len(x)
	for i, yi := range y {
		if yi == 0 {
			continue
		}
		row := w[i*n : (i+1)*n]
		for j := range x {
			x[j] += row[j] * yi
		}
	}
}

// outer accumulates g += a b^T.
func outer(g, a, b []float32) {
	n := len(b)
	for i, ai := range a {
		if ai == 0 {
			continue
		}
		row := g[i*n : (i+1)*n]
		for j, bj := range b {
			row[j] += ai * bj
		}
	}
}

func addTo(y, x []float32) {
	for i := range x {
		y[i] += x[i]
	}
}

func argmax(xs []float32) int {
	k := 0
	for i, x := range xs {
		if x > xs[k] {
			k = i
		}
	}
	return k
}
