package plan

// StarBcastGraph sends from root to each other rank directly.
func StarBcastGraph(k, root int) *Graph {
	g := NewGraph(k)
	for i := 0; i < k; i++ {
		if i != root {
			g.AddEdge(root, i)
		}
	}
	return g
}

// ReduceGraphOf reverses a broadcast graph and lets every rank fold in its
// own input, so the reduction ends where the broadcast starts.
func ReduceGraphOf(bcast *Graph) *Graph {
	g := bcast.Reverse()
	for i := 0; i < g.Len(); i++ {
		g.AddEdge(i, i)
	}
	return g
}

// RingGraphs returns the reduce and broadcast graphs of a ring of k ranks
// whose reduction ends at root.
func RingGraphs(k, root int) (reduce, bcast *Graph) {
	reduce, bcast = NewGraph(k), NewGraph(k)
	for i := 0; i < k; i++ {
		reduce.AddEdge(i, i)
	}
	for i := 1; i < k; i++ {
		reduce.AddEdge((root+i)%k, (root+i+1)%k)
		bcast.AddEdge((root+i-1)%k, (root+i)%k)
	}
	return reduce, bcast
}
