package collective

import (
	"context"

	"github.com/lsds/moebench/srcs/go/base"
)

// Communicator runs blocking collective operations among a fixed group.
type Communicator interface {
	Rank() int
	Size() int

	AllReduce(w base.Workspace) error
	// Broadcast copies root 0's SendBuf into every RecvBuf.
	Broadcast(w base.Workspace) error
	Barrier() error

	Close() error
}

// Backend joins a group of workers.
type Backend interface {
	Join(ctx context.Context, rank, worldSize int) (Communicator, error)
}
