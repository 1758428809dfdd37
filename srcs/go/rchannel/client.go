package rchannel

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/lsds/moebench/srcs/go/bench/config"
	"github.com/lsds/moebench/srcs/go/monitor"
	"github.com/lsds/moebench/srcs/go/plan"
)

// Client sends payloads from self to the other peers of the run.
type Client struct {
	self    plan.PeerID
	token   uint32
	monitor monitor.Monitor

	mu    sync.Mutex
	conns map[plan.PeerID]*Conn
}

func NewClient(self plan.PeerID, token uint32, m monitor.Monitor) *Client {
	return &Client{
		self:    self,
		token:   token,
		monitor: m,
		conns:   make(map[plan.PeerID]*Conn),
	}
}

func (c *Client) conn(to plan.PeerID) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.conns[to]
	if !ok {
		conn = &Conn{from: c.self, to: to, token: c.token}
		c.conns[to] = conn
	}
	return conn
}

// Send delivers buf to the mailbox a.
func (c *Client) Send(a plan.Addr, buf []byte, flags uint16) error {
	if err := c.conn(a.Peer).Send(a.Name, buf, flags); err != nil {
		return err
	}
	c.monitor.Egress(int64(len(buf)), a.Peer)
	return nil
}

// Ping measures one round trip to target over a fresh connection.
func (c *Client) Ping(ctx context.Context, target plan.PeerID) (time.Duration, error) {
	t0 := time.Now()
	nc, err := dial(ctx, KindPing, c.self, target, c.token)
	if err != nil {
		return time.Since(t0), err
	}
	defer nc.Close()
	stop := context.AfterFunc(ctx, func() { nc.SetDeadline(time.Now()) })
	defer stop()
	if err := writeFrame(nc, "ping", nil, 0); err != nil {
		return time.Since(t0), err
	}
	h, name, err := readFrameHeader(nc)
	if err != nil {
		return time.Since(t0), err
	}
	if _, err := io.CopyN(io.Discard, nc, int64(h.Length)); err != nil {
		return time.Since(t0), err
	}
	if name != "ping" {
		return time.Since(t0), errors.Errorf("unexpected ping reply %q", name)
	}
	return time.Since(t0), nil
}

// Wait pings target until it answers or ctx is done.
func (c *Client) Wait(ctx context.Context, target plan.PeerID) error {
	b := backoff.WithContext(backoff.NewConstantBackOff(config.ConnRetryPeriod), ctx)
	return backoff.Retry(func() error {
		_, err := c.Ping(ctx, target)
		return err
	}, b)
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for to, conn := range c.conns {
		conn.Close()
		delete(c.conns, to)
	}
}
