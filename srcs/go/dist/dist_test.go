package dist

import (
	"context"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsds/moebench/srcs/go/collective"
	"github.com/lsds/moebench/srcs/go/device"
)

func fakeDevices(n int) Options {
	return Options{
		Timeout: 5 * time.Second,
		DetectAccelerators: func() ([]device.Device, error) {
			var ds []device.Device
			for i := 0; i < n; i++ {
				ds = append(ds, device.Device{ID: device.ID(i), Type: device.CUDA})
			}
			return ds, nil
		},
		DetectCPU: func() device.Device { return device.Device{Type: device.CPU} },
	}
}

func initAll(t *testing.T, world int, opts Options) []*Context {
	backend := collective.NewLocalBackend(world)
	ctxs := make([]*Context, world)
	errs := make([]error, world)
	var wg sync.WaitGroup
	for i := 0; i < world; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			count := world
			ctxs[i], errs[i] = Init(context.Background(), backend, &i, &count, opts)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	return ctxs
}

func TestInitAssignsEveryRankOnce(t *testing.T) {
	const world = 4
	ctxs := initAll(t, world, fakeDevices(2))
	var ranks []int
	for _, c := range ctxs {
		ranks = append(ranks, c.Rank)
		assert.Equal(t, world, c.WorldSize)
		want := c.Rank
		if want > 1 {
			want = 1
		}
		assert.Equal(t, device.ID(want), c.Device.ID)
		assert.Equal(t, device.CUDA, c.Device.Type)
	}
	sort.Ints(ranks)
	assert.Equal(t, []int{0, 1, 2, 3}, ranks)
}

func TestInitSeedsByRank(t *testing.T) {
	ctxs := initAll(t, 2, fakeDevices(0))
	assert.Equal(t, device.CPU, ctxs[0].Device.Type)
	assert.NotEqual(t, ctxs[0].Rand.Int63(), ctxs[1].Rand.Int63())

	again := initAll(t, 2, fakeDevices(0))
	first := ctxs[0].Rand.Int63()
	again[0].Rand.Int63()
	assert.Equal(t, first, again[0].Rand.Int63())
}

func TestInitFromEnvironment(t *testing.T) {
	env := map[string]string{"RANK": "0", "WORLD_SIZE": "1"}
	lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	defer func() { lookupEnv = os.LookupEnv }()

	c, err := Init(context.Background(), collective.NewLocalBackend(1), nil, nil, fakeDevices(1))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Rank)
	assert.Equal(t, 1, c.WorldSize)

	delete(env, "RANK")
	_, err = Init(context.Background(), collective.NewLocalBackend(1), nil, nil, fakeDevices(1))
	assert.Error(t, err)
}

func TestEndpoint(t *testing.T) {
	env := map[string]string{}
	lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	defer func() { lookupEnv = os.LookupEnv }()

	assert.Equal(t, "127.0.0.1:29500", Endpoint("localhost:29500"))
	env["MASTER_PORT"] = "1234"
	assert.Equal(t, "127.0.0.1:1234", Endpoint("127.0.0.1:29500"))
	env["MASTER_ADDR"] = "10.0.0.1"
	assert.Equal(t, "10.0.0.1:1234", Endpoint("bad"))
}
