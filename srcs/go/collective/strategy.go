package collective

import (
	"github.com/lsds/moebench/srcs/go/base"
	"github.com/lsds/moebench/srcs/go/plan"
)

const defaultRoot = 0

type strategy struct {
	reduceGraph *plan.Graph
	bcastGraph  *plan.Graph
}

type strategyList []strategy

func (sl strategyList) choose(i int) strategy {
	return sl[i%len(sl)]
}

func createStarStrategies(k int) strategyList {
	bcastGraph := plan.StarBcastGraph(k, defaultRoot)
	return strategyList{
		{
			reduceGraph: plan.ReduceGraphOf(bcastGraph),
			bcastGraph:  bcastGraph,
		},
	}
}

// createRingStrategies rotates the ring root so that chunks spread the
// reduction work over all peers.
func createRingStrategies(k int) strategyList {
	var ss strategyList
	for r := 0; r < k; r++ {
		reduceGraph, bcastGraph := plan.RingGraphs(k, r)
		ss = append(ss, strategy{
			reduceGraph: reduceGraph,
			bcastGraph:  bcastGraph,
		})
	}
	return ss
}

func genGlobalStrategyList(k int, s base.Strategy) strategyList {
	switch s {
	case base.Ring:
		return createRingStrategies(k)
	default:
		return createStarStrategies(k)
	}
}
