package bench

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsds/moebench/srcs/go/bench/config"
	"github.com/lsds/moebench/srcs/go/collective"
	"github.com/lsds/moebench/srcs/go/train"
)

func tinyArgs(t *testing.T) *config.Args {
	return &config.Args{
		ModelName:         "moe-tiny",
		MaxBatch:          3,
		Rendezvous:        "127.0.0.1:0",
		RendezvousTimeout: time.Minute,
		Strategy:          "star",
		GradDType:         "f32",
		TraceDir:          t.TempDir(),
	}
}

func TestTrainSingleWorkerOverTCP(t *testing.T) {
	args := tinyArgs(t)
	p := must.M1(config.GetPreset(args.ModelName))
	bc, spec := args.Apply(*p)
	index, count := 0, 1
	r, err := Train(context.Background(), bc, spec, args, &index, &count)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Rank)
	assert.Equal(t, int64(3*bc.BatchSize*spec.SeqLen), r.Stats.TotalTokens)
	_, err = os.Stat(filepath.Join(args.TraceDir, "trace_0.json"))
	assert.NoError(t, err)
}

func TestTrainTwoWorkers(t *testing.T) {
	for _, dtype := range []string{"f32", "f16"} {
		args := tinyArgs(t)
		args.GradDType = dtype
		p := must.M1(config.GetPreset(args.ModelName))
		bc, spec := args.Apply(*p)
		backend := collective.NewLocalBackend(2)
		reports := make([]*train.Report, 2)
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				count := 2
				r, err := TrainWith(context.Background(), backend, bc, spec, args, &i, &count)
				assert.NoError(t, err)
				reports[i] = r
			}(i)
		}
		wg.Wait()
		for rank, r := range reports {
			require.NotNil(t, r)
			assert.Equal(t, rank, r.Rank)
			assert.Equal(t, int64(24), r.Stats.TotalTokens)
			assert.Equal(t, int64(16), r.ProfiledStats.TotalTokens)
			_, err := os.Stat(r.TraceFile)
			assert.NoError(t, err)
		}
	}
}

func TestTrainRejectsBadArgs(t *testing.T) {
	args := tinyArgs(t)
	args.GradDType = "bf16"
	p := must.M1(config.GetPreset(args.ModelName))
	bc, spec := args.Apply(*p)
	index, count := 0, 1
	_, err := TrainWith(context.Background(), collective.NewLocalBackend(1), bc, spec, args, &index, &count)
	assert.Error(t, err)

	args.GradDType = "f32"
	args.Strategy = "tree"
	_, err = Train(context.Background(), bc, spec, args, &index, &count)
	assert.Error(t, err)
}

func TestAllReduceTwoWorkers(t *testing.T) {
	args := tinyArgs(t)
	spec := must.M1(config.GetPreset(args.ModelName)).Model
	results, err := AllReduceInProcess(context.Background(), spec, args, 3, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for i, r := range results {
		assert.Equal(t, i, r.Rank)
		require.NotNil(t, r)
		assert.Equal(t, 3, r.Steps)
		assert.Equal(t, int64(4*(64*8*2+2*8+2*16*8*2+2*16+2*8+64)), r.Bytes)
	}

	_, err = AllReduceInProcess(context.Background(), spec, args, 3, 0)
	assert.Error(t, err)
}
