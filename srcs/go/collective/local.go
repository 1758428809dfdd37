package collective

import (
	"context"
	"fmt"
	"sync"

	"github.com/lsds/moebench/srcs/go/base"
)

// LocalBackend connects workers that live in the same process.
type LocalBackend struct {
	size int

	mu      sync.Mutex
	cond    *sync.Cond
	joined  map[int]bool
	gen     int
	arrived int
	ws      []base.Workspace
	err     error
}

func NewLocalBackend(size int) *LocalBackend {
	b := &LocalBackend{
		size:   size,
		joined: make(map[int]bool),
		ws:     make([]base.Workspace, size),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *LocalBackend) Join(ctx context.Context, rank, worldSize int) (Communicator, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if worldSize != b.size {
		return nil, fmt.Errorf("world size %d does not match local group of %d", worldSize, b.size)
	}
	if rank < 0 || rank >= b.size || b.joined[rank] {
		return nil, fmt.Errorf("invalid or duplicate rank %d", rank)
	}
	b.joined[rank] = true
	return &localComm{b: b, rank: rank}, nil
}

// run blocks until every rank has submitted its workspace, then the last
// arriving rank applies f to all of them.
func (b *LocalBackend) run(rank int, w base.Workspace, f func([]base.Workspace) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	gen := b.gen
	b.ws[rank] = w
	b.arrived++
	if b.arrived == b.size {
		b.err = f(b.ws)
		b.arrived = 0
		b.gen++
		b.cond.Broadcast()
		return b.err
	}
	for gen == b.gen {
		b.cond.Wait()
	}
	return b.err
}

func allReduce(ws []base.Workspace) error {
	acc := base.NewVector(ws[0].SendBuf.Count, ws[0].SendBuf.Type)
	acc.CopyFrom(ws[0].SendBuf)
	for _, w := range ws[1:] {
		if w.SendBuf.Count != acc.Count || w.SendBuf.Type != acc.Type {
			return fmt.Errorf("inconsistent workspace %s", w.Name)
		}
		base.Transform(acc, w.SendBuf, w.OP)
	}
	for _, w := range ws {
		w.RecvBuf.CopyFrom(acc)
	}
	return nil
}

func broadcast(ws []base.Workspace) error {
	root := base.NewVector(ws[defaultRoot].SendBuf.Count, ws[defaultRoot].SendBuf.Type)
	root.CopyFrom(ws[defaultRoot].SendBuf)
	for _, w := range ws {
		w.RecvBuf.CopyFrom(root)
	}
	return nil
}

type localComm struct {
	b    *LocalBackend
	rank int
}

func (c *localComm) Rank() int { return c.rank }

func (c *localComm) Size() int { return c.b.size }

func (c *localComm) AllReduce(w base.Workspace) error {
	return c.b.run(c.rank, w, allReduce)
}

func (c *localComm) Broadcast(w base.Workspace) error {
	return c.b.run(c.rank, w, broadcast)
}

func (c *localComm) Barrier() error {
	w := base.Workspace{SendBuf: base.NewVector(1, base.U8), RecvBuf: base.NewVector(1, base.U8)}
	return c.b.run(c.rank, w, func([]base.Workspace) error { return nil })
}

func (c *localComm) Close() error { return nil }
