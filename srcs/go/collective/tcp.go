package collective

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lsds/moebench/srcs/go/base"
	"github.com/lsds/moebench/srcs/go/log"
	"github.com/lsds/moebench/srcs/go/monitor"
	"github.com/lsds/moebench/srcs/go/plan"
	"github.com/lsds/moebench/srcs/go/rchannel"
	"github.com/lsds/moebench/srcs/go/rendezvous"
)

// TCPBackend joins through the rendezvous at Endpoint and exchanges tensors
// over direct TCP connections between peers.
type TCPBackend struct {
	Endpoint string
	RunID    string
	Strategy base.Strategy
	Monitor  monitor.Monitor
}

func (b *TCPBackend) host() string {
	host, _, err := net.SplitHostPort(b.Endpoint)
	if err != nil || host == "" || host == "localhost" {
		return "127.0.0.1"
	}
	return host
}

func (b *TCPBackend) Join(ctx context.Context, rank, worldSize int) (Communicator, error) {
	m := b.Monitor
	if m == nil {
		m = monitor.GetMonitor()
	}
	host := b.host()
	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return nil, err
	}
	self, err := plan.PeerOf(ln)
	if err != nil {
		ln.Close()
		return nil, err
	}
	token := rendezvous.Token(b.RunID)
	endpoint := rchannel.NewEndpoint(m)
	srv := rchannel.NewServer(ln, token, endpoint)
	go srv.Serve()

	res, err := rendezvous.Join(ctx, rendezvous.Options{
		Endpoint:  b.Endpoint,
		RunID:     b.RunID,
		Rank:      rank,
		WorldSize: worldSize,
		Self:      self,
	})
	if err != nil {
		srv.Close()
		return nil, err
	}
	log.Debugf("rank %d joined %s as %s, peers: %s", res.Rank, b.Endpoint, self, res.Peers)
	c := rchannel.NewClient(self, token, m)
	sess, ok := newSession(b.Strategy, self, res.Peers, c, endpoint, srv)
	if !ok {
		srv.Close()
		return nil, &rendezvous.Error{Op: "join", Endpoint: b.Endpoint, Rank: rank, Err: rendezvous.ErrRejected}
	}
	if err := waitPeers(ctx, c, self, res.Peers); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

// waitPeers pings every other peer so the first collective does not race
// their servers.
func waitPeers(ctx context.Context, c *rchannel.Client, self plan.PeerID, peers plan.PeerList) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range peers {
		if p == self {
			continue
		}
		p := p
		g.Go(func() error {
			if err := c.Wait(ctx, p); err != nil {
				return errors.Wrapf(err, "wait for peer %s", p)
			}
			return nil
		})
	}
	return g.Wait()
}
