package ddp

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsds/moebench/srcs/go/base"
	"github.com/lsds/moebench/srcs/go/collective"
	"github.com/lsds/moebench/srcs/go/model"
	"github.com/lsds/moebench/srcs/go/profile"
)

// fakeModule sets every gradient to its rank plus one on backward.
type fakeModule struct {
	rank   int
	params []*model.Parameter
	group  *model.Group
}

func newFake(rank int, sizes ...int) *fakeModule {
	m := &fakeModule{rank: rank}
	for i, n := range sizes {
		p := &model.Parameter{Data: make([]float32, n), Grad: make([]float32, n)}
		for j := range p.Data {
			p.Data[j] = float32(10*rank + i + j)
		}
		m.params = append(m.params, p)
	}
	return m
}

func (m *fakeModule) Parameters() []*model.Parameter { return m.params }

func (m *fakeModule) Forward(tokens []int32) ([]float32, error) { return nil, nil }

func (m *fakeModule) Backward(dlogits []float32) error {
	for _, p := range m.params {
		for j := range p.Grad {
			p.Grad[j] = float32(m.rank + 1)
		}
	}
	return nil
}

func (m *fakeModule) ZeroGrad()      { model.ZeroGrad(m.params) }
func (m *fakeModule) Train()         {}
func (m *fakeModule) VocabSize() int { return 1 }

type groupedFake struct{ *fakeModule }

func (g groupedFake) Group() *model.Group { return g.group }

func runReplicas(t *testing.T, n int, opts Options, f func(rank int, d *Model, m *fakeModule)) {
	backend := collective.NewLocalBackend(n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			comm, err := backend.Join(context.Background(), rank, n)
			require.NoError(t, err)
			m := newFake(rank, 3, 5, 2)
			d, err := Wrap(m, comm, opts)
			require.NoError(t, err)
			f(rank, d, m)
		}(i)
	}
	wg.Wait()
}

func TestWrapBroadcastsRankZero(t *testing.T) {
	ref := newFake(0, 3, 5, 2)
	runReplicas(t, 3, Options{GradDType: base.F32, BucketBytes: 16}, func(rank int, d *Model, m *fakeModule) {
		for i, p := range d.Parameters() {
			assert.Equal(t, ref.params[i].Data, p.Data)
		}
	})
}

func TestGradientsAreAveraged(t *testing.T) {
	for _, dt := range []base.DataType{base.F32, base.F16} {
		runReplicas(t, 3, Options{GradDType: dt}, func(rank int, d *Model, m *fakeModule) {
			require.NoError(t, d.Backward(nil))
			for _, p := range m.params {
				for _, g := range p.Grad {
					assert.InDelta(t, 2.0, g, 1e-3)
				}
			}
		})
	}
}

func TestSingleReplica(t *testing.T) {
	runReplicas(t, 1, Options{GradDType: base.F32}, func(rank int, d *Model, m *fakeModule) {
		require.NoError(t, d.Backward(nil))
		assert.Equal(t, float32(1), m.params[0].Grad[0])
	})
}

func TestBuckets(t *testing.T) {
	ps := newFake(0, 3, 5, 2).params
	bs := makeBuckets(ps, 8)
	require.Len(t, bs, 2)
	assert.Len(t, bs[0].flat, 8)
	assert.Len(t, bs[1].flat, 2)

	bs = makeBuckets(ps, 100)
	require.Len(t, bs, 1)
	assert.Len(t, bs[0].flat, 10)
}

func TestKeepsGroup(t *testing.T) {
	backend := collective.NewLocalBackend(1)
	comm, err := backend.Join(context.Background(), 0, 1)
	require.NoError(t, err)
	m := groupedFake{newFake(0, 2)}
	m.group = &model.Group{Ranks: []int{0}}
	d, err := Wrap(m, comm, Options{GradDType: base.F32})
	require.NoError(t, err)
	assert.Equal(t, m.group, model.GroupOf(d))

	_, err = Wrap(m, comm, Options{GradDType: base.I32})
	assert.Error(t, err)
}

func TestBucketReductionsAreProfiled(t *testing.T) {
	runReplicas(t, 2, Options{GradDType: base.F32, BucketBytes: 32}, func(rank int, d *Model, m *fakeModule) {
		p := profile.New(rank)
		d.SetProfiler(p)
		require.NoError(t, d.Backward(nil))
		d.SetProfiler(nil)
		require.NoError(t, d.Backward(nil))

		assert.Equal(t, 2, p.NumEvents())
		var buf bytes.Buffer
		p.WriteSummary(&buf)
		assert.Contains(t, buf.String(), "allreduce::bucket[0]")
		assert.Contains(t, buf.String(), "allreduce::bucket[1]")
	})
}
