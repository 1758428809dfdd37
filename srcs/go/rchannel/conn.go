package rchannel

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/lsds/moebench/srcs/go/bench/config"
	"github.com/lsds/moebench/srcs/go/log"
	"github.com/lsds/moebench/srcs/go/plan"
)

// retryPolicy retries a failed dial ConnRetryCount times, ConnRetryPeriod
// apart, while ctx is alive.
func retryPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(config.ConnRetryPeriod), uint64(config.ConnRetryCount))
	return backoff.WithContext(b, ctx)
}

// dial connects to to and performs the hello exchange once.
func dial(ctx context.Context, kind Kind, from, to plan.PeerID, token uint32) (net.Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", to.String())
	if err != nil {
		return nil, err
	}
	h := hello{Magic: helloMagic, Kind: kind, Token: token, From: from}
	if err := binary.Write(nc, endian, &h); err != nil {
		nc.Close()
		return nil, err
	}
	var ack uint8
	if err := binary.Read(nc, endian, &ack); err != nil {
		nc.Close()
		return nil, err
	}
	if ack != ackAccepted {
		nc.Close()
		return nil, backoff.Permanent(errors.Wrapf(ErrForeignPeer, "%s", to))
	}
	return nc, nil
}

// Conn is the sending side of a collective connection to one peer, dialed
// on first use.
type Conn struct {
	mu    sync.Mutex
	from  plan.PeerID
	to    plan.PeerID
	token uint32
	nc    net.Conn
}

func (c *Conn) connect() error {
	if c.nc != nil {
		return nil
	}
	t0 := time.Now()
	var trials int
	err := backoff.Retry(func() error {
		trials++
		nc, err := dial(context.Background(), KindCollective, c.from, c.to, c.token)
		if err != nil {
			log.Debugf("failed to connect to #<%s> for %d times: %v", c.to, trials, err)
			return err
		}
		c.nc = nc
		return nil
	}, retryPolicy(context.Background()))
	if err != nil {
		return errors.Wrapf(err, "connect to %s after %d trials", c.to, trials)
	}
	log.Debugf("connection to #<%s> established after %d trials, took %s", c.to, trials, time.Since(t0))
	return nil
}

// Send writes one named payload.
func (c *Conn) Send(name string, payload []byte, flags uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connect(); err != nil {
		return err
	}
	return writeFrame(c.nc, name, payload, flags)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nc == nil {
		return nil
	}
	err := c.nc.Close()
	c.nc = nil
	return err
}
