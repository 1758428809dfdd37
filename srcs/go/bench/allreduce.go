package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lsds/moebench/srcs/go/base"
	"github.com/lsds/moebench/srcs/go/bench/config"
	"github.com/lsds/moebench/srcs/go/collective"
	"github.com/lsds/moebench/srcs/go/dist"
	"github.com/lsds/moebench/srcs/go/launcher"
	"github.com/lsds/moebench/srcs/go/model"
	"github.com/lsds/moebench/srcs/go/utils"
)

// AllReduceResult is the gradient synchronization throughput of one worker.
type AllReduceResult struct {
	Rank    int
	Bytes   int64
	Steps   int
	Elapsed time.Duration
}

func (r AllReduceResult) Rate() float64 {
	return utils.Rate(r.Bytes*int64(r.Steps), r.Elapsed)
}

// AllReduce measures only the gradient allreduce of the model described by
// spec, without computing anything.
func AllReduce(ctx context.Context, spec config.ModelSpec, args *config.Args, steps int) error {
	l := &launcher.Launcher{
		Worker: func(ctx context.Context, index, count *int) error {
			b, err := backend(args)
			if err != nil {
				return err
			}
			_, err = AllReduceWith(ctx, b, spec, args, steps, index, count)
			return err
		},
		NProcs: args.NProcs,
		LogDir: args.LogDir,
		Color:  true,
	}
	return l.Run(ctx)
}

// AllReduceInProcess runs n workers as goroutines over the in-process
// backend, which bounds what the transport could reach.
func AllReduceInProcess(ctx context.Context, spec config.ModelSpec, args *config.Args, steps, n int) ([]*AllReduceResult, error) {
	if n <= 0 {
		return nil, errors.Errorf("invalid number of workers %d", n)
	}
	b := collective.NewLocalBackend(n)
	results := make([]*AllReduceResult, n)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			var err error
			results[i], err = AllReduceWith(ctx, b, spec, args, steps, &i, &n)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

type doubleBuffer struct {
	name             string
	sendBuf, recvBuf *base.Vector
}

func AllReduceWith(ctx context.Context, b collective.Backend, spec config.ModelSpec, args *config.Args, steps int, index, count *int) (*AllReduceResult, error) {
	dtype, err := base.ParseDataType(args.GradDType)
	if err != nil {
		return nil, err
	}
	dc, err := dist.Init(ctx, b, index, count, dist.Options{Timeout: args.RendezvousTimeout})
	if err != nil {
		return nil, err
	}
	defer dc.Close()

	var buffers []doubleBuffer
	r := &AllReduceResult{Rank: dc.Rank, Steps: steps}
	for _, l := range model.Layout(spec) {
		buffers = append(buffers, doubleBuffer{
			name:    l.Name,
			sendBuf: base.NewVector(l.Numel(), dtype),
			recvBuf: base.NewVector(l.Numel(), dtype),
		})
		r.Bytes += int64(l.Numel() * dtype.Size())
	}
	step := func(i int) error {
		for _, buf := range buffers {
			w := base.Workspace{
				SendBuf: buf.sendBuf,
				RecvBuf: buf.recvBuf,
				OP:      base.SUM,
				Name:    fmt.Sprintf("%s::%d", buf.name, i),
			}
			if err := dc.Comm.AllReduce(w); err != nil {
				return err
			}
		}
		return nil
	}
	if err := step(0); err != nil {
		return nil, err
	}
	r.Elapsed, err = utils.Measure(func() error {
		for i := 1; i <= steps; i++ {
			if err := step(i); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dc.Logger().Infof("allreduce %s x %d steps took %s, %s/s, np=%d",
		utils.ShowSize(r.Bytes), steps, r.Elapsed, utils.ShowSize(int64(r.Rate())), dc.WorldSize)
	return r, nil
}
