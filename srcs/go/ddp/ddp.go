// Package ddp replicates a model over a communicator and averages its
// gradients after every backward pass.
package ddp

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/lsds/moebench/srcs/go/base"
	"github.com/lsds/moebench/srcs/go/bench/config"
	"github.com/lsds/moebench/srcs/go/collective"
	"github.com/lsds/moebench/srcs/go/model"
	"github.com/lsds/moebench/srcs/go/profile"
	"github.com/lsds/moebench/srcs/go/utils"
)

const DefaultBucketBytes = config.DefaultBucketBytes

type Options struct {
	// GradDType is the wire type of gradients, F32 or F16.
	GradDType   base.DataType
	BucketBytes int
}

// Model is a data parallel replica. It is a model.Module itself and keeps
// the expert group of the wrapped module.
type Model struct {
	model.Module
	comm    collective.Communicator
	opts    Options
	group   *model.Group
	buckets []bucket
	step    int

	profiler *profile.Profiler
}

// bucket is a run of parameters whose gradients are reduced together.
type bucket struct {
	params []*model.Parameter
	flat   []float32
}

// Wrap broadcasts the parameters of rank 0 to every replica.
func Wrap(m model.Module, comm collective.Communicator, opts Options) (*Model, error) {
	switch opts.GradDType {
	case base.F32, base.F16:
	default:
		return nil, fmt.Errorf("unsupported gradient type %s", opts.GradDType)
	}
	if opts.BucketBytes <= 0 {
		opts.BucketBytes = DefaultBucketBytes
	}
	d := &Model{
		Module: m,
		comm:   comm,
		opts:   opts,
		group:  model.GroupOf(m),
	}
	d.buckets = makeBuckets(m.Parameters(), opts.BucketBytes/4)
	if err := d.broadcastParameters(); err != nil {
		return nil, errors.Wrap(err, "broadcast parameters")
	}
	return d, nil
}

func makeBuckets(ps []*model.Parameter, capacity int) []bucket {
	var bs []bucket
	var cur bucket
	size := 0
	for _, p := range ps {
		if size > 0 && size+p.Numel() > capacity {
			cur.flat = make([]float32, size)
			bs = append(bs, cur)
			cur, size = bucket{}, 0
		}
		cur.params = append(cur.params, p)
		size += p.Numel()
	}
	if size > 0 {
		cur.flat = make([]float32, size)
		bs = append(bs, cur)
	}
	return bs
}

func (b *bucket) gather(get func(*model.Parameter) []float32) {
	off := 0
	for _, p := range b.params {
		off += copy(b.flat[off:], get(p))
	}
}

func (b *bucket) scatter(get func(*model.Parameter) []float32) {
	off := 0
	for _, p := range b.params {
		off += copy(get(p), b.flat[off:])
	}
}

func data(p *model.Parameter) []float32 { return p.Data }

func grad(p *model.Parameter) []float32 { return p.Grad }

func (d *Model) broadcastParameters() error {
	for i := range d.buckets {
		b := &d.buckets[i]
		b.gather(data)
		v := base.VectorF32(b.flat)
		w := base.Workspace{SendBuf: v, RecvBuf: v, OP: base.SUM, Name: fmt.Sprintf("param::bucket[%d]", i)}
		if err := d.comm.Broadcast(w); err != nil {
			return err
		}
		b.scatter(data)
	}
	return nil
}

// Backward runs the wrapped backward pass, then replaces every gradient with
// its mean over all replicas.
func (d *Model) Backward(dlogits []float32) error {
	if err := d.Module.Backward(dlogits); err != nil {
		return err
	}
	d.step++
	if d.comm.Size() == 1 {
		return nil
	}
	for i := range d.buckets {
		if err := d.reduceBucket(i); err != nil {
			return errors.Wrapf(err, "allreduce gradients of bucket %d", i)
		}
	}
	return nil
}

func (d *Model) reduceBucket(i int) error {
	b := &d.buckets[i]
	b.gather(grad)
	name := fmt.Sprintf("grad::%d::bucket[%d]", d.step, i)
	if config.EnableStallDetection {
		defer utils.InstallStallDetector(name, config.StallPeriod).Stop()
	}
	if d.profiler != nil {
		defer d.profiler.ProfileOn(profile.Device, fmt.Sprintf("allreduce::bucket[%d]", i)).Done()
	}
	switch d.opts.GradDType {
	case base.F16:
		v := base.EncodeF16(b.flat)
		w := base.Workspace{SendBuf: v, RecvBuf: base.NewVector(v.Count, base.F16), OP: base.SUM, Name: name}
		if err := d.comm.AllReduce(w); err != nil {
			return err
		}
		base.DecodeF16(b.flat, w.RecvBuf)
	default:
		v := base.VectorF32(b.flat)
		if err := d.comm.AllReduce(base.Workspace{SendBuf: v, RecvBuf: v, OP: base.SUM, Name: name}); err != nil {
			return err
		}
	}
	scale := 1 / float32(d.comm.Size())
	for j := range b.flat {
		b.flat[j] *= scale
	}
	b.scatter(grad)
	return nil
}

func (d *Model) Group() *model.Group { return d.group }

// SetProfiler records every bucket reduction on the device timeline of p
// until it is reset to nil.
func (d *Model) SetProfiler(p *profile.Profiler) { d.profiler = p }
