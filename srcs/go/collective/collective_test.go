package collective

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsds/moebench/srcs/go/base"
	"github.com/lsds/moebench/srcs/go/monitor"
)

func freeEndpoint(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().String()
}

func joinAll(t *testing.T, newBackend func() Backend, world int) []Communicator {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	comms := make([]Communicator, world)
	errs := make([]error, world)
	var wg sync.WaitGroup
	for r := 0; r < world; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			comms[r], errs[r] = newBackend().Join(ctx, r, world)
		}(r)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	return comms
}

func tcpBackends(t *testing.T, s base.Strategy) func() Backend {
	endpoint := freeEndpoint(t)
	return func() Backend {
		return &TCPBackend{Endpoint: endpoint, RunID: t.Name(), Strategy: s, Monitor: monitor.New()}
	}
}

func parallel(comms []Communicator, f func(c Communicator) error) []error {
	errs := make([]error, len(comms))
	var wg sync.WaitGroup
	for i, c := range comms {
		wg.Add(1)
		go func(i int, c Communicator) {
			defer wg.Done()
			errs[i] = f(c)
		}(i, c)
	}
	wg.Wait()
	return errs
}

func testAllReduce(t *testing.T, comms []Communicator, n int) {
	world := len(comms)
	outputs := make([][]float32, world)
	errs := parallel(comms, func(c Communicator) error {
		xs := make([]float32, n)
		for i := range xs {
			xs[i] = float32(c.Rank() + 1)
		}
		w := base.Workspace{
			SendBuf: base.VectorF32(xs),
			RecvBuf: base.NewVector(n, base.F32),
			OP:      base.SUM,
			Name:    "test::allreduce",
		}
		if err := c.AllReduce(w); err != nil {
			return err
		}
		outputs[c.Rank()] = w.RecvBuf.AsF32()
		return nil
	})
	want := float32(world * (world + 1) / 2)
	for r := 0; r < world; r++ {
		require.NoError(t, errs[r])
		require.Len(t, outputs[r], n)
		assert.Equal(t, want, outputs[r][0])
		assert.Equal(t, want, outputs[r][n-1])
	}
}

func testBroadcast(t *testing.T, comms []Communicator, n int) {
	outputs := make([][]float32, len(comms))
	errs := parallel(comms, func(c Communicator) error {
		xs := make([]float32, n)
		xs[0], xs[n-1] = float32(c.Rank()), 7
		w := base.Workspace{
			SendBuf: base.VectorF32(xs),
			RecvBuf: base.VectorF32(xs),
			Name:    "test::broadcast",
		}
		if err := c.Broadcast(w); err != nil {
			return err
		}
		outputs[c.Rank()] = xs
		return nil
	})
	for r := range comms {
		require.NoError(t, errs[r])
		require.Len(t, outputs[r], n)
		assert.Equal(t, float32(0), outputs[r][0])
		assert.Equal(t, float32(7), outputs[r][n-1])
	}
}

func closeAll(comms []Communicator) {
	for _, c := range comms {
		c.Close()
	}
}

func Test_TCP(t *testing.T) {
	for _, s := range []base.Strategy{base.Star, base.Ring} {
		for _, world := range []int{1, 2, 3} {
			t.Run(fmt.Sprintf("%s/%d", s, world), func(t *testing.T) {
				comms := joinAll(t, tcpBackends(t, s), world)
				defer closeAll(comms)
				ranks := make(map[int]bool)
				for _, c := range comms {
					assert.Equal(t, world, c.Size())
					ranks[c.Rank()] = true
				}
				assert.Len(t, ranks, world)

				testAllReduce(t, comms, 10)
				testAllReduce(t, comms, (chunkSize/4)*2+3)
				testBroadcast(t, comms, 2)
				testBroadcast(t, comms, (chunkSize/4)*2+3)
				for _, err := range parallel(comms, func(c Communicator) error { return c.Barrier() }) {
					assert.NoError(t, err)
				}
			})
		}
	}
}

func Test_Local(t *testing.T) {
	b := NewLocalBackend(3)
	comms := joinAll(t, func() Backend { return b }, 3)
	testAllReduce(t, comms, 5)
	testBroadcast(t, comms, 2)

	_, err := b.Join(context.Background(), 1, 3)
	assert.Error(t, err)
	_, err = NewLocalBackend(2).Join(context.Background(), 0, 3)
	assert.Error(t, err)
}
