// Package launcher starts one worker process per compute device, or runs
// the worker in place when this process already belongs to a run.
package launcher

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/lsds/moebench/srcs/go/bench/config"
	"github.com/lsds/moebench/srcs/go/device"
	"github.com/lsds/moebench/srcs/go/iostream"
	"github.com/lsds/moebench/srcs/go/log"
	"github.com/lsds/moebench/srcs/go/proc"
)

// Worker is the entry point of one training process. External runs pass
// nil index and count.
type Worker func(ctx context.Context, index, count *int) error

type Launcher struct {
	Worker Worker
	NProcs int
	LogDir string
	Color  bool

	// Prog and Args default to the running executable and its arguments.
	Prog string
	Args []string
	// DetectDevices defaults to DetectDevices.
	DetectDevices func() ([]device.Device, error)
	Std           iostream.StdWriters
	LookupEnv     func(string) (string, bool)
}

// DetectDevices lists the accelerators, or the CPU when there is none.
func DetectDevices() ([]device.Device, error) {
	accelerators, err := device.DetectAccelerators()
	if err != nil {
		return nil, err
	}
	if len(accelerators) > 0 {
		return accelerators, nil
	}
	return []device.Device{device.DetectCPU()}, nil
}

func (l *Launcher) lookupEnv(key string) (string, bool) {
	if l.LookupEnv != nil {
		return l.LookupEnv(key)
	}
	return os.LookupEnv(key)
}

// Run executes the worker directly inside an active run, otherwise spawns
// one worker per device and waits for all of them.
func (l *Launcher) Run(ctx context.Context) error {
	if _, ok, err := config.ParseExternalRun(l.lookupEnv); err != nil {
		return err
	} else if ok {
		log.Debugf("running inside an external run")
		return l.Worker(ctx, nil, nil)
	}
	if w, ok, err := config.ParseSpawnedWorker(l.lookupEnv); err != nil {
		return err
	} else if ok {
		return l.Worker(ctx, &w.LocalIndex, &w.DeviceCount)
	}

	n, err := l.deviceCount()
	if err != nil {
		return err
	}
	ps, err := l.procs(n)
	if err != nil {
		return err
	}
	log.Infof("spawning %d workers", n)
	return RunAll(ctx, ps, l.runOptions())
}

func (l *Launcher) deviceCount() (int, error) {
	if l.NProcs > 0 {
		return l.NProcs, nil
	}
	detect := l.DetectDevices
	if detect == nil {
		detect = DetectDevices
	}
	devs, err := detect()
	if err != nil {
		return 0, errors.Wrap(err, "failed to detect devices")
	}
	if len(devs) == 0 {
		return 0, config.ErrNoDevices
	}
	return len(devs), nil
}

func (l *Launcher) procs(n int) ([]proc.Proc, error) {
	prog, args := l.Prog, l.Args
	if len(prog) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, errors.Wrap(err, "failed to locate executable")
		}
		prog, args = exe, os.Args[1:]
	}
	runID := uuid.New().String()
	var ps []proc.Proc
	for i := 0; i < n; i++ {
		ps = append(ps, proc.Proc{
			Name: fmt.Sprintf("%d", i),
			Prog: prog,
			Args: args,
			Envs: proc.Envs{
				config.RunIDEnvKey:       runID,
				config.LocalIndexEnvKey:  strconv.Itoa(i),
				config.DeviceCountEnvKey: strconv.Itoa(n),
			},
			LogDir: l.LogDir,
		})
	}
	return ps, nil
}

func (l *Launcher) runOptions() RunOptions {
	std := l.Std
	if std.Stdout == nil || std.Stderr == nil {
		std = iostream.Std
	}
	return RunOptions{Std: std, Color: l.Color}
}
