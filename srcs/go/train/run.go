package train

import (
	"bytes"
	"time"

	"github.com/lsds/moebench/srcs/go/log"
	"github.com/lsds/moebench/srcs/go/profile"
	"github.com/lsds/moebench/srcs/go/utils"
)

// Options of a full benchmark run.
type Options struct {
	MaxBatch       int
	ProfileBatches int
	TraceDir       string
}

// Report is the outcome of the steady pass of one worker.
type Report struct {
	Rank          int
	Stats         Stats
	ProfiledStats Stats
	WPS           float64
	PeakBytes     int64
	Duration      time.Duration
	TraceFile     string
	TraceEvents   int
}

// Run trains over the loader up to MaxBatch, then runs a short profiled pass
// and exports its trace.
func (t *Trainer) Run(opts Options) (*Report, error) {
	r := &Report{Rank: t.Rank}
	if t.Group != nil {
		t.logger().Infof("expert group %s", t.Group)
	}
	start := now()
	if err := t.TrainSome(opts.MaxBatch, &r.Stats); err != nil {
		return nil, err
	}
	r.Duration = now().Sub(start)

	t.state = Profiled
	p := profile.New(t.Rank)
	t.setProfiler(p)
	err := t.TrainSome(opts.ProfileBatches, &r.ProfiledStats)
	t.setProfiler(nil)
	if err != nil {
		return nil, err
	}
	r.TraceEvents = p.NumEvents()
	if r.TraceFile, err = p.ExportChromeTrace(opts.TraceDir); err != nil {
		return nil, err
	}
	t.state = Done
	if log.IsDebug() {
		var buf bytes.Buffer
		p.WriteSummary(&buf)
		t.logger().Debugf("profiled pass\n%s", buf.String())
	}

	r.WPS = utils.Rate(r.Stats.TotalTokens, r.Stats.TotalElapsed)
	if t.Allocator != nil {
		r.PeakBytes = t.Allocator.Stats().PeakBytes
	}
	t.report(r)
	return r, nil
}

func (t *Trainer) report(r *Report) {
	logger := t.logger()
	logger.Infof("rank %d, wps: %.2f, tokens: %d, took %s", r.Rank, r.WPS, r.Stats.TotalTokens, r.Duration)
	if t.Allocator != nil {
		logger.Infof("Peak allocated bytes on %s: %d (%s)", t.Allocator.Device(), r.PeakBytes, utils.ShowSize(r.PeakBytes))
	}
	logger.Infof("trace of %d events written to %s", r.TraceEvents, r.TraceFile)
}

// profiled is implemented by models that record their own device work.
type profiled interface {
	SetProfiler(p *profile.Profiler)
}

func (t *Trainer) setProfiler(p *profile.Profiler) {
	t.profiler = p
	if m, ok := t.Model.(profiled); ok {
		m.SetProfiler(p)
	}
}
