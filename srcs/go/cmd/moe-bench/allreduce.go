package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/lsds/moebench/srcs/go/bench"
	"github.com/lsds/moebench/srcs/go/bench/config"
	"github.com/lsds/moebench/srcs/go/log"
	"github.com/lsds/moebench/srcs/go/utils"
)

func newAllReduceCmd() *cobra.Command {
	registry := config.NewRegistry()
	var (
		steps     int
		inProcess bool
	)
	cmd := &cobra.Command{
		Use:   "allreduce",
		Short: "measure gradient allreduce of a preset without training",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			args, err := registry.Load()
			if err != nil {
				return err
			}
			log.SetDebug(args.Debug)
			p, err := config.GetPreset(args.ModelName)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			utils.Trap(func(sig os.Signal) { cancel() })
			if inProcess {
				_, err := bench.AllReduceInProcess(ctx, p.Model, args, steps, max(args.NProcs, 1))
				return err
			}
			return bench.AllReduce(ctx, p.Model, args, steps)
		},
	}
	registry.Register(cmd.Flags())
	cmd.Flags().IntVar(&steps, "steps", 10, "number of timed steps")
	cmd.Flags().BoolVar(&inProcess, "in-process", false, "run --nprocs workers as goroutines without TCP")
	return cmd
}
