package plan

// Graph is a directed graph over the ranks 0..n-1 of a collective. A self
// loop on a rank means it folds its own input into what it receives.
type Graph struct {
	in   [][]int
	out  [][]int
	loop []bool
}

func NewGraph(n int) *Graph {
	return &Graph{
		in:   make([][]int, n),
		out:  make([][]int, n),
		loop: make([]bool, n),
	}
}

func (g *Graph) Len() int { return len(g.loop) }

func (g *Graph) AddEdge(from, to int) {
	if from == to {
		g.loop[from] = true
		return
	}
	g.out[from] = append(g.out[from], to)
	g.in[to] = append(g.in[to], from)
}

func (g *Graph) IsSelfLoop(r int) bool { return g.loop[r] }

// IsIsolated reports whether r exchanges nothing with other ranks.
func (g *Graph) IsIsolated(r int) bool { return len(g.in[r]) == 0 && len(g.out[r]) == 0 }

func (g *Graph) Prevs(r int) []int { return g.in[r] }

func (g *Graph) Nexts(r int) []int { return g.out[r] }

// Reverse flips every edge. Self loops are dropped.
func (g *Graph) Reverse() *Graph {
	r := NewGraph(g.Len())
	for from, tos := range g.out {
		for _, to := range tos {
			r.AddEdge(to, from)
		}
	}
	return r
}
