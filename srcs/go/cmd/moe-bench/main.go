package main

import "github.com/lsds/moebench/srcs/go/utils"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		utils.ExitErr(err)
	}
}
