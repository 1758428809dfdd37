package dist

import (
	"context"
	"math/rand"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lsds/moebench/srcs/go/bench/config"
	"github.com/lsds/moebench/srcs/go/collective"
	"github.com/lsds/moebench/srcs/go/device"
	"github.com/lsds/moebench/srcs/go/log"
	"github.com/lsds/moebench/srcs/go/utils"
)

var lookupEnv = os.LookupEnv

// Options controls how a worker joins the group.
type Options struct {
	Timeout time.Duration

	// DetectAccelerators defaults to device.DetectAccelerators.
	DetectAccelerators func() ([]device.Device, error)
	// DetectCPU defaults to device.DetectCPU.
	DetectCPU func() device.Device
}

// Context is the immutable identity of one worker.
type Context struct {
	Rank      int
	WorldSize int
	Device    device.Device
	Rand      *rand.Rand
	Comm      collective.Communicator
}

func (c *Context) Allocator() *device.Allocator {
	return device.AllocatorFor(c.Device)
}

func (c *Context) Logger() *logrus.Entry {
	return log.WithRank(c.Rank)
}

func (c *Context) Close() error {
	return c.Comm.Close()
}

// Init joins backend as worker index of count. With nil index and count the
// identity comes from an external runner through RANK and WORLD_SIZE.
func Init(ctx context.Context, backend collective.Backend, index, count *int, opts Options) (*Context, error) {
	rank, worldSize, err := identity(index, count)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultRendezvousTimeout
	}
	if opts.DetectAccelerators == nil {
		opts.DetectAccelerators = device.DetectAccelerators
	}
	if opts.DetectCPU == nil {
		opts.DetectCPU = device.DetectCPU
	}

	joinCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	comm, err := backend.Join(joinCtx, rank, worldSize)
	if err != nil {
		return nil, err
	}
	rank, worldSize = comm.Rank(), comm.Size()

	accelerators, err := opts.DetectAccelerators()
	if err != nil {
		comm.Close()
		return nil, errors.Wrap(err, "failed to detect devices")
	}
	var cpu device.Device
	if len(accelerators) == 0 {
		cpu = opts.DetectCPU()
	}
	c := &Context{
		Rank:      rank,
		WorldSize: worldSize,
		Device:    device.Select(rank, accelerators, cpu),
		Rand:      utils.NewRand(rank),
		Comm:      comm,
	}
	c.Logger().Infof("train, rank=%d, world_size=%d, device=%s", c.Rank, c.WorldSize, c.Device)
	return c, nil
}

func identity(index, count *int) (int, int, error) {
	if index != nil && count != nil {
		if *count <= 0 || *index < 0 || *index >= *count {
			return 0, 0, errors.Errorf("invalid worker index %d of %d", *index, *count)
		}
		return *index, *count, nil
	}
	r, ok, err := config.ParseExternalRun(lookupEnv)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, errors.Errorf("%s and %s are required without a worker index", config.RankEnvKey, config.WorldSizeEnvKey)
	}
	return r.Rank, r.WorldSize, nil
}

// Endpoint returns the rendezvous endpoint, preferring MASTER_ADDR and
// MASTER_PORT when an external runner set them.
func Endpoint(fallback string) string {
	host, port, err := net.SplitHostPort(fallback)
	if err != nil {
		host, port = config.DefaultRendezvousHost, strconv.Itoa(config.MPIPort)
	}
	if val, ok := lookupEnv(config.MasterAddrEnvKey); ok && len(val) > 0 {
		host = val
	}
	if val, ok := lookupEnv(config.MasterPortEnvKey); ok && len(val) > 0 {
		port = val
	}
	if host == "localhost" {
		host = config.DefaultRendezvousHost
	}
	return net.JoinHostPort(host, port)
}
