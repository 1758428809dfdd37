package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lsds/moebench/srcs/go/bench/config"
)

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "list the model presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tOPTIMIZER\tLR\tBATCH\tDIM\tHIDDEN\tEXPERTS\tSEQ\tDATASET")
			for _, name := range config.PresetNames() {
				p, err := config.GetPreset(name)
				if err != nil {
					return err
				}
				b, m := p.Benchmark, p.Model
				fmt.Fprintf(w, "%s\t%s\t%g\t%d\t%d\t%d\t%d\t%d\t%s\n",
					name, b.OptimizerFactory.Kind, b.OptimizerFactory.LR, b.BatchSize,
					m.Dim, m.Hidden, m.NumExperts, m.SeqLen, b.Dataset.Name)
			}
			return w.Flush()
		},
	}
}
