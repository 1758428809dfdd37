package collective

import (
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lsds/moebench/srcs/go/base"
	"github.com/lsds/moebench/srcs/go/log"
	"github.com/lsds/moebench/srcs/go/plan"
	"github.com/lsds/moebench/srcs/go/rchannel"
)

// session contains the immutable peer list of a joined group.
type session struct {
	sync.Mutex

	strategies    strategyList
	bcastStrategy strategy
	self          plan.PeerID
	peers         plan.PeerList
	rank          int
	client        *rchannel.Client
	endpoint      *rchannel.Endpoint
	server        *rchannel.Server
}

func newSession(s base.Strategy, self plan.PeerID, pl plan.PeerList, client *rchannel.Client, endpoint *rchannel.Endpoint, srv *rchannel.Server) (*session, bool) {
	rank, ok := pl.Rank(self)
	if !ok {
		return nil, false
	}
	return &session{
		strategies:    genGlobalStrategyList(len(pl), s),
		bcastStrategy: createStarStrategies(len(pl))[0],
		self:          self,
		peers:         pl,
		rank:          rank,
		client:        client,
		endpoint:      endpoint,
		server:        srv,
	}, true
}

func (sess *session) Size() int {
	return len(sess.peers)
}

func (sess *session) Rank() int {
	return sess.rank
}

func (sess *session) Barrier() error {
	k := len(sess.peers)
	w := base.Workspace{
		SendBuf: base.NewVector(k, base.U8),
		RecvBuf: base.NewVector(k, base.U8),
		OP:      base.SUM,
		Name:    "moebench::barrier",
	}
	return sess.AllReduce(w)
}

func (sess *session) AllReduce(w base.Workspace) error {
	sess.Lock()
	defer sess.Unlock()
	return sess.runChunks(w, func(i int) []*plan.Graph {
		s := sess.strategies.choose(i)
		return []*plan.Graph{s.reduceGraph, s.bcastGraph}
	})
}

func (sess *session) Broadcast(w base.Workspace) error {
	sess.Lock()
	defer sess.Unlock()
	return sess.runChunks(w, func(int) []*plan.Graph {
		return []*plan.Graph{sess.bcastStrategy.bcastGraph}
	})
}

func (sess *session) Close() error {
	sess.client.Close()
	if sess.server != nil {
		sess.server.Close()
	}
	return nil
}

func isIsolated(rank int, graphs ...*plan.Graph) bool {
	for _, g := range graphs {
		if !g.IsIsolated(rank) {
			return false
		}
	}
	return true
}

func (sess *session) runGraphs(w base.Workspace, graphs ...*plan.Graph) error {
	if w.IsEmpty() { // w.IsInplace will panic
		return nil
	}
	if isIsolated(sess.rank, graphs...) {
		w.Forward()
		return nil
	}

	var recvCount int
	effectiveBuffer := func() *base.Vector {
		if recvCount > 0 || w.IsInplace() {
			return w.RecvBuf
		}
		return w.SendBuf
	}
	var sendOnto PeerFunc = func(peer plan.PeerID) error {
		return sess.client.Send(peer.WithName(w.Name), effectiveBuffer().Data, 0)
	}
	var sendInto PeerFunc = func(peer plan.PeerID) error {
		return sess.client.Send(peer.WithName(w.Name), effectiveBuffer().Data, rchannel.WaitRecvBuf)
	}

	var lock sync.Mutex
	var recvOnto PeerFunc = func(peer plan.PeerID) error {
		buf := sess.endpoint.Recv(peer.WithName(w.Name))
		if len(buf) != len(w.RecvBuf.Data) {
			return errors.Errorf("%s from %s: got %d bytes, want %d", w.Name, peer, len(buf), len(w.RecvBuf.Data))
		}
		b := &base.Vector{Data: buf, Count: w.SendBuf.Count, Type: w.SendBuf.Type}
		lock.Lock()
		defer lock.Unlock()
		base.Transform2(w.RecvBuf, effectiveBuffer(), b, w.OP)
		recvCount++
		rchannel.PutBuf(buf)
		return nil
	}
	var recvInto PeerFunc = func(peer plan.PeerID) error {
		if err := sess.endpoint.RecvInto(peer.WithName(w.Name), w.RecvBuf.Data); err != nil {
			return err
		}
		recvCount++
		return nil
	}

	for _, g := range graphs {
		prevs := sess.peers.Select(g.Prevs(sess.rank))
		nexts := sess.peers.Select(g.Nexts(sess.rank))
		if g.IsSelfLoop(sess.rank) {
			if err := recvOnto.Par(prevs); err != nil {
				return err
			}
			if err := sendOnto.Par(nexts); err != nil {
				return err
			}
		} else {
			if len(prevs) > 1 {
				log.Errorf("more than once recvInto detected at node %d", sess.rank)
			}
			if len(prevs) == 0 && recvCount == 0 {
				w.Forward()
			} else {
				if err := recvInto.Seq(prevs); err != nil {
					return err
				}
			}
			if err := sendInto.Par(nexts); err != nil {
				return err
			}
		}
	}
	return nil
}

const chunkSize = rchannel.ChunkBytes

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// runChunks splits w into pieces of at most chunkSize bytes and runs them
// concurrently, piece i over graphsOf(i).
func (sess *session) runChunks(w base.Workspace, graphsOf func(i int) []*plan.Graph) error {
	k := ceilDiv(w.RecvBuf.Count*w.RecvBuf.Type.Size(), chunkSize)
	if k == 0 {
		return nil
	}
	var g errgroup.Group
	for i, w := range w.Split(plan.EvenPartition, k) {
		i, w := i, w
		g.Go(func() error {
			return sess.runGraphs(w, graphsOf(i)...)
		})
	}
	return g.Wait()
}
