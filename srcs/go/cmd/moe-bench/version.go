package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/lsds/moebench/srcs/go/utils"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "moe-bench %s (built with %s)\n", utils.BuildInfo(), runtime.Version())
		},
	}
}
