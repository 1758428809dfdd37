package launcher

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsds/moebench/srcs/go/bench/config"
	"github.com/lsds/moebench/srcs/go/device"
	"github.com/lsds/moebench/srcs/go/iostream"
)

func envOf(kvs map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := kvs[k]
		return v, ok
	}
}

type call struct {
	index, count *int
}

func recordingWorker(calls *[]call) Worker {
	return func(ctx context.Context, index, count *int) error {
		*calls = append(*calls, call{index, count})
		return nil
	}
}

func TestExternalRunCallsWorkerInPlace(t *testing.T) {
	var calls []call
	l := &Launcher{
		Worker:    recordingWorker(&calls),
		LookupEnv: envOf(map[string]string{"RANK": "1", "WORLD_SIZE": "2"}),
	}
	require.NoError(t, l.Run(context.Background()))
	require.Len(t, calls, 1)
	assert.Nil(t, calls[0].index)
	assert.Nil(t, calls[0].count)
}

func TestSpawnedWorkerCallsWorkerWithIndex(t *testing.T) {
	var calls []call
	l := &Launcher{
		Worker: recordingWorker(&calls),
		LookupEnv: envOf(map[string]string{
			config.LocalIndexEnvKey:  "1",
			config.DeviceCountEnvKey: "3",
			config.RunIDEnvKey:       "run",
		}),
	}
	require.NoError(t, l.Run(context.Background()))
	require.Len(t, calls, 1)
	assert.Equal(t, 1, *calls[0].index)
	assert.Equal(t, 3, *calls[0].count)
}

func TestNoDevices(t *testing.T) {
	var calls []call
	l := &Launcher{
		Worker:        recordingWorker(&calls),
		LookupEnv:     envOf(nil),
		DetectDevices: func() ([]device.Device, error) { return nil, nil },
	}
	err := l.Run(context.Background())
	assert.Equal(t, config.ErrNoDevices, err)
	assert.True(t, config.IsConfigurationError(err))
	assert.Empty(t, calls)
}

func TestSpawnsOnePerDevice(t *testing.T) {
	var out, errs bytes.Buffer
	logDir := t.TempDir()
	l := &Launcher{
		LookupEnv: envOf(nil),
		DetectDevices: func() ([]device.Device, error) {
			return []device.Device{{ID: 0, Type: device.CUDA}, {ID: 1, Type: device.CUDA}}, nil
		},
		Prog:   "/bin/sh",
		Args:   []string{"-c", `echo "worker $MOEBENCH_LOCAL_INDEX of $MOEBENCH_DEVICE_COUNT"`},
		LogDir: logDir,
		Std:    iostream.StdWriters{Stdout: &out, Stderr: &errs},
	}
	require.NoError(t, l.Run(context.Background()))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	sort.Strings(lines)
	assert.Equal(t, []string{"[0] worker 0 of 2", "[1] worker 1 of 2"}, lines)

	bs, err := os.ReadFile(filepath.Join(logDir, "worker-1.stdout.log"))
	require.NoError(t, err)
	assert.Equal(t, "worker 1 of 2\n", string(bs))
}

func TestProcsShareRunID(t *testing.T) {
	l := &Launcher{Prog: "/bin/true"}
	ps, err := l.procs(3)
	require.NoError(t, err)
	require.Len(t, ps, 3)
	runID := ps[0].Envs[config.RunIDEnvKey]
	assert.NotEmpty(t, runID)
	for i, p := range ps {
		assert.Equal(t, runID, p.Envs[config.RunIDEnvKey])
		assert.Equal(t, []string{"0", "1", "2"}[i], p.Envs[config.LocalIndexEnvKey])
		assert.Equal(t, "3", p.Envs[config.DeviceCountEnvKey])
	}
}

func TestFailureKillsSiblings(t *testing.T) {
	var out, errs bytes.Buffer
	l := &Launcher{
		LookupEnv: envOf(nil),
		NProcs:    3,
		Prog:      "/bin/sh",
		Args: []string{"-c", `if [ "$MOEBENCH_LOCAL_INDEX" = 1 ]; then echo boom >&2; exit 3; fi; exec sleep 30`},
		Std:  iostream.StdWriters{Stdout: &out, Stderr: &errs},
	}
	err := l.Run(context.Background())
	require.Error(t, err)
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Errors, 1)
	var werr *WorkerError
	require.True(t, errors.As(merr.Errors[0], &werr))
	assert.Equal(t, "1", werr.Name)
	assert.Equal(t, []string{"boom"}, werr.Stderr)
	assert.Contains(t, errs.String(), "boom")
}
