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

func newRootCmd() *cobra.Command {
	registry := config.NewRegistry()
	cmd := &cobra.Command{
		Use:           "moe-bench",
		Short:         "benchmark distributed data parallel training of a mixture of experts language model",
		Version:       utils.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
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
			bc, spec := args.Apply(*p)
			log.Debugf("running %s benchmark with args: %+v", p.Name, *args)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			utils.Trap(func(sig os.Signal) {
				log.Warnf("%s received, stopping", sig)
				cancel()
			})
			return bench.Benchmark(ctx, bc, spec, args)
		},
	}
	registry.Register(cmd.Flags())

	cmd.AddCommand(newAllReduceCmd())
	cmd.AddCommand(newPresetsCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}
