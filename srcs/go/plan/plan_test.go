package plan

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type edge struct {
	from int
	to   int
}

func edgesOf(g *Graph) map[edge]bool {
	m := make(map[edge]bool)
	for i := 0; i < g.Len(); i++ {
		for _, j := range g.Nexts(i) {
			m[edge{i, j}] = true
		}
	}
	return m
}

func isConsistent(g *Graph) bool {
	var n int
	m := edgesOf(g)
	for i := 0; i < g.Len(); i++ {
		for _, j := range g.Prevs(i) {
			n++
			if !m[edge{j, i}] {
				return false
			}
		}
	}
	return n == len(m)
}

func Test_StarGraphs(t *testing.T) {
	for k := 1; k <= 5; k++ {
		b := StarBcastGraph(k, 0)
		r := ReduceGraphOf(b)
		assert.True(t, isConsistent(b))
		assert.True(t, isConsistent(r))
		assert.Len(t, edgesOf(b), k-1)
		assert.False(t, b.IsSelfLoop(0))
		for i := 1; i < k; i++ {
			assert.Equal(t, []int{0}, b.Prevs(i))
			assert.Equal(t, []int{0}, r.Nexts(i))
			assert.True(t, r.IsSelfLoop(i))
		}
	}
}

func Test_RingGraphs(t *testing.T) {
	k := 4
	for root := 0; root < k; root++ {
		g, b := RingGraphs(k, root)
		assert.True(t, isConsistent(g))
		assert.True(t, isConsistent(b))
		assert.Len(t, edgesOf(g), k-1)
		assert.Len(t, edgesOf(b), k-1)
		assert.Empty(t, g.Nexts(root), "reduction ends at the root")
		assert.Empty(t, b.Prevs(root), "broadcast starts at the root")
	}
}

func Test_Reverse(t *testing.T) {
	g := NewGraph(3)
	g.AddEdge(0, 1)
	g.AddEdge(1, 2)
	g.AddEdge(2, 2)
	r := g.Reverse()
	assert.Equal(t, map[edge]bool{{1, 0}: true, {2, 1}: true}, edgesOf(r))
	assert.False(t, r.IsSelfLoop(2))
}

func Test_Isolated(t *testing.T) {
	g := StarBcastGraph(1, 0)
	assert.True(t, g.IsIsolated(0))
}

func Test_ParseIPv4(t *testing.T) {
	ipv4, err := ParseIPv4("localhost")
	require.NoError(t, err)
	p := PeerID{IPv4: ipv4, Port: 29500}
	assert.Equal(t, "127.0.0.1:29500", p.String())
	assert.Equal(t, "x@127.0.0.1:29500", p.WithName("x").String())

	_, err = ParseIPv4("::1")
	assert.Error(t, err)
	_, err = ParseIPv4("nohost")
	assert.Error(t, err)
}

func Test_PeerOf(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	p, err := PeerOf(ln)
	require.NoError(t, err)
	assert.Equal(t, ln.Addr().String(), p.String())
}

func Test_PeerListEncoding(t *testing.T) {
	pl := PeerList{
		{IPv4: 0x7f000001, Port: 10000},
		{IPv4: 0x7f000001, Port: 10001},
	}
	b := &bytes.Buffer{}
	require.NoError(t, pl.WriteTo(b))
	assert.Equal(t, 4+6*2, b.Len())
	var ql PeerList
	require.NoError(t, ql.ReadFrom(b))
	assert.Equal(t, pl, ql)
	r, ok := ql.Rank(pl[1])
	assert.True(t, ok)
	assert.Equal(t, 1, r)
	assert.Equal(t, PeerList{pl[1], pl[0]}, pl.Select([]int{1, 0}))
}

func Test_EvenPartition(t *testing.T) {
	parts := EvenPartition(Interval{Begin: 0, End: 10}, 3)
	assert.Equal(t, []Interval{{0, 3}, {3, 6}, {6, 10}}, parts)

	parts = EvenPartition(Interval{Begin: 5, End: 7}, 4)
	var total int
	for _, p := range parts {
		assert.LessOrEqual(t, p.Len(), 1)
		total += p.Len()
	}
	assert.Equal(t, 2, total)
}
