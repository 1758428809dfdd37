package utils

import (
	"fmt"
	"strconv"
	"time"
)

var (
	// -ldflags "-X github.com/lsds/moebench/srcs/go/utils.version=$v -X github.com/lsds/moebench/srcs/go/utils.buildtimeString=$bt"
	version         = "dev"
	buildtimeString string

	buildtime int64
)

func init() {
	buildtime, _ = strconv.ParseInt(buildtimeString, 10, 64)
}

func Version() string {
	return version
}

func BuildInfo() string {
	if buildtime == 0 {
		return fmt.Sprintf("version %s", version)
	}
	bt := time.Unix(buildtime, 0)
	return fmt.Sprintf("version %s, built %s ago", version, time.Since(bt).Round(time.Second))
}
