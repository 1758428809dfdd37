// Package bench wires the launcher, the distributed context, the model and
// the training loop into the MoE benchmark.
package bench

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/lsds/moebench/srcs/go/base"
	"github.com/lsds/moebench/srcs/go/bench/config"
	"github.com/lsds/moebench/srcs/go/collective"
	"github.com/lsds/moebench/srcs/go/data"
	"github.com/lsds/moebench/srcs/go/ddp"
	"github.com/lsds/moebench/srcs/go/dist"
	"github.com/lsds/moebench/srcs/go/launcher"
	"github.com/lsds/moebench/srcs/go/model"
	"github.com/lsds/moebench/srcs/go/monitor"
	"github.com/lsds/moebench/srcs/go/train"
)

// Benchmark runs the worker in place inside an active run, otherwise spawns
// one worker per device.
func Benchmark(ctx context.Context, bc config.BenchmarkConfig, spec config.ModelSpec, args *config.Args) error {
	l := &launcher.Launcher{
		Worker: func(ctx context.Context, index, count *int) error {
			_, err := Train(ctx, bc, spec, args, index, count)
			return err
		},
		NProcs: args.NProcs,
		LogDir: args.LogDir,
		Color:  true,
	}
	return l.Run(ctx)
}

func backend(args *config.Args) (collective.Backend, error) {
	strategy, err := base.ParseStrategy(args.Strategy)
	if err != nil {
		return nil, err
	}
	return &collective.TCPBackend{
		Endpoint: dist.Endpoint(args.Rendezvous),
		RunID:    os.Getenv(config.RunIDEnvKey),
		Strategy: strategy,
		Monitor:  monitor.GetMonitor(),
	}, nil
}

// Train is the entry point of one worker.
func Train(ctx context.Context, bc config.BenchmarkConfig, spec config.ModelSpec, args *config.Args, index, count *int) (*train.Report, error) {
	b, err := backend(args)
	if err != nil {
		return nil, err
	}
	return TrainWith(ctx, b, bc, spec, args, index, count)
}

// TrainWith runs one worker over backend.
func TrainWith(ctx context.Context, b collective.Backend, bc config.BenchmarkConfig, spec config.ModelSpec, args *config.Args, index, count *int) (*train.Report, error) {
	gradDType, err := base.ParseDataType(args.GradDType)
	if err != nil {
		return nil, err
	}
	dc, err := dist.Init(ctx, b, index, count, dist.Options{Timeout: args.RendezvousTimeout})
	if err != nil {
		return nil, err
	}
	defer dc.Close()
	logger := dc.Logger()

	mon := monitor.GetMonitor()
	if args.MonitorPort > 0 {
		srv, err := monitor.StartServer(mon, args.MonitorPort+dc.Rank)
		if err != nil {
			return nil, errors.Wrap(err, "start monitoring server")
		}
		defer srv.Stop()
		logger.Infof("serving metrics on %s", srv.Addr())
	}

	loader, vocab, err := data.Open(bc.Dataset, spec, bc.BatchSize, data.Shard{Rank: dc.Rank, WorldSize: dc.WorldSize})
	if err != nil {
		return nil, err
	}
	spec = spec.WithVocabSize(vocab)
	built, err := model.Build(bc, spec, dc.Allocator(), dc.Rand, model.Placement{Rank: dc.Rank, WorldSize: dc.WorldSize})
	if err != nil {
		return nil, err
	}
	model.LogNumberOfParameters(built.Model, logger)
	replica, err := ddp.Wrap(built.Model, dc.Comm, ddp.Options{GradDType: gradDType})
	if err != nil {
		return nil, err
	}

	tr := &train.Trainer{
		Rank:        dc.Rank,
		Model:       replica,
		Optimizer:   built.Optimizer,
		Criterion:   built.Criterion,
		ClipValue:   spec.ClipValue,
		Loader:      loader,
		Allocator:   dc.Allocator(),
		Group:       model.GroupOf(replica),
		LogInterval: bc.LogInterval,
		Logger:      logger,
		Monitor:     mon,
	}
	r, err := tr.Run(train.Options{
		MaxBatch:       args.MaxBatch,
		ProfileBatches: bc.ProfileBatches,
		TraceDir:       args.TraceDir,
	})
	if err != nil {
		return nil, err
	}
	if err := dc.Comm.Barrier(); err != nil {
		return nil, errors.Wrap(err, "final barrier")
	}
	return r, nil
}
