// Package train drives the benchmark training loop of one worker.
package train

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lsds/moebench/srcs/go/data"
	"github.com/lsds/moebench/srcs/go/device"
	"github.com/lsds/moebench/srcs/go/log"
	"github.com/lsds/moebench/srcs/go/model"
	"github.com/lsds/moebench/srcs/go/monitor"
	"github.com/lsds/moebench/srcs/go/profile"
	"github.com/lsds/moebench/srcs/go/utils"
)

var now = time.Now

type State int

const (
	Warmup State = iota
	Steady
	Profiled
	Done
)

func (s State) String() string {
	switch s {
	case Warmup:
		return "WARMUP"
	case Steady:
		return "STEADY"
	case Profiled:
		return "PROFILED"
	case Done:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// StepMetrics describes one optimizer step.
type StepMetrics struct {
	Step    int
	Loss    float64
	Tokens  int
	Targets int
	Elapsed time.Duration
}

type Trainer struct {
	Rank        int
	Model       model.Module
	Optimizer   model.Optimizer
	Criterion   model.Criterion
	ClipValue   float32
	Loader      data.Loader
	Allocator   *device.Allocator
	Group       *model.Group
	LogInterval int
	Logger      *logrus.Entry
	Monitor     monitor.Monitor

	state    State
	profiler *profile.Profiler
}

func (t *Trainer) State() State { return t.state }

func (t *Trainer) scope(name string) func() {
	return t.scopeOn(profile.Host, name)
}

// kernel times work executed on the bound device.
func (t *Trainer) kernel(name string) func() {
	return t.scopeOn(profile.Device, name)
}

func (t *Trainer) scopeOn(a profile.Activity, name string) func() {
	if t.profiler == nil {
		return func() {}
	}
	return t.profiler.ProfileOn(a, name).Done
}

// Step trains on one batch. A panic in the model is reported like any other
// failure of the step.
func (t *Trainer) Step(i int, b *data.Batch) (m StepMetrics, err error) {
	fail := func(err error) (StepMetrics, error) {
		return StepMetrics{}, &TrainingStepError{Rank: t.Rank, Step: i, Cause: err}
	}
	defer func() {
		if r := recover(); r != nil {
			m, err = fail(errors.Errorf("panic: %v", r))
		}
	}()
	defer t.scope("step")()
	start := now()
	t.Optimizer.ZeroGrad()
	source, target, err := data.GetBatch(b)
	if err != nil {
		return fail(err)
	}
	logits, err := t.forward(source)
	if err != nil {
		return fail(errors.Wrap(err, "forward"))
	}
	done := t.kernel("cross_entropy")
	loss, dlogits, err := t.Criterion.Loss(logits, target, t.Model.VocabSize())
	done()
	if err != nil {
		return fail(errors.Wrap(err, "criterion"))
	}
	if err := t.backward(dlogits); err != nil {
		return fail(errors.Wrap(err, "backward"))
	}
	done = t.kernel("clip_grad_value")
	model.ClipGradValue(t.Model.Parameters(), t.ClipValue)
	done()
	if err := t.step(); err != nil {
		return fail(errors.Wrap(err, "optimizer step"))
	}
	return StepMetrics{
		Step:    i,
		Loss:    loss,
		Tokens:  b.Numel(),
		Targets: len(target),
		Elapsed: now().Sub(start),
	}, nil
}

func (t *Trainer) forward(source []int32) ([]float32, error) {
	defer t.scope("forward")()
	defer t.kernel("model::forward")()
	return t.Model.Forward(source)
}

func (t *Trainer) backward(dlogits []float32) error {
	defer t.scope("backward")()
	defer t.kernel("model::backward")()
	return t.Model.Backward(dlogits)
}

func (t *Trainer) step() error {
	defer t.scope("optimizer")()
	defer t.kernel("optimizer::step")()
	return t.Optimizer.Step()
}

// TrainSome iterates the loader from its first batch. Batch 0 warms up and
// is not accounted; batches 1..limit are, or the whole loader when limit is
// not positive.
func (t *Trainer) TrainSome(limit int, stats *Stats) error {
	logInterval := t.LogInterval
	if logInterval <= 0 {
		logInterval = 1
	}
	it := t.Loader.Iterate()
	for i := 0; limit <= 0 || i <= limit; i++ {
		b, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "load batch")
		}
		if i == 0 {
			if t.state != Profiled {
				t.state = Warmup
			}
			if _, err := t.Step(i, b); err != nil {
				return err
			}
			continue
		}
		if t.state == Warmup {
			t.state = Steady
		}
		m, err := t.Step(i, b)
		if err != nil {
			return err
		}
		stats.add(m)
		if t.Monitor != nil && t.state != Profiled {
			t.Monitor.Step(m.Tokens, m.Elapsed, m.Loss)
		}
		if t.profiler != nil && t.Allocator != nil {
			ms := t.Allocator.Stats()
			t.profiler.Counter("memory", map[string]int64{"allocated": ms.AllocatedBytes, "peak": ms.PeakBytes})
		}
		if i%logInterval == 0 {
			t.logInterval(i, stats)
		}
	}
	return nil
}

func (t *Trainer) logInterval(i int, stats *Stats) {
	loss := stats.AvgLoss()
	t.logger().Debugf("| batch %5d | wps %5.2f | loss %5.2f | ppl %8.2f |",
		i, utils.Rate(stats.TotalTokensPerLogInterval, stats.IntervalElapsed), loss, utils.Perplexity(loss))
	stats.resetInterval()
}

func (t *Trainer) logger() *logrus.Entry {
	if t.Logger == nil {
		return log.WithRank(t.Rank)
	}
	return t.Logger
}
