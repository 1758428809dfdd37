package rendezvous

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/lsds/moebench/srcs/go/bench/config"
	"github.com/lsds/moebench/srcs/go/log"
	"github.com/lsds/moebench/srcs/go/plan"
)

// Options describe the caller of Join.
type Options struct {
	Endpoint  string
	RunID     string
	Rank      int
	WorldSize int
	Self      plan.PeerID
}

// Result is the authoritative view returned by the host.
type Result struct {
	Rank  int
	Peers plan.PeerList
}

func (r Result) WorldSize() int { return len(r.Peers) }

func (o Options) request() joinRequest {
	return joinRequest{
		Magic:     magic,
		Token:     Token(o.RunID),
		Rank:      int32(o.Rank),
		WorldSize: int32(o.WorldSize),
		Self:      o.Self,
	}
}

func (o Options) fail(op string, err error) *Error {
	return &Error{Op: op, Endpoint: o.Endpoint, Rank: o.Rank, Err: err}
}

// Join blocks until exactly WorldSize workers have joined at Endpoint or ctx
// is done. Rank 0 hosts the rendezvous, the others dial it.
func Join(ctx context.Context, o Options) (*Result, error) {
	if o.WorldSize <= 0 || o.Rank < 0 || o.Rank >= o.WorldSize {
		return nil, o.fail("join", errors.Errorf("invalid rank %d for world size %d", o.Rank, o.WorldSize))
	}
	if o.Rank == 0 {
		ln, err := net.Listen("tcp", o.Endpoint)
		if err != nil {
			return nil, o.fail("bind", err)
		}
		return Serve(ctx, ln, o)
	}
	return Dial(ctx, o)
}

type member struct {
	req  joinRequest
	conn net.Conn
}

// Serve hosts the rendezvous on ln, which it closes before returning.
func Serve(ctx context.Context, ln net.Listener, o Options) (*Result, error) {
	defer ln.Close()
	self := o.request()
	members := map[int32]member{0: {req: self}}

	var (
		mu       sync.Mutex
		rejected *multierror.Error
	)
	joined := make(chan member)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				var req joinRequest
				if deadline, ok := ctx.Deadline(); ok {
					conn.SetReadDeadline(deadline)
				}
				if err := req.ReadFrom(conn); err != nil {
					conn.Close()
					return
				}
				conn.SetReadDeadline(time.Time{})
				select {
				case joined <- member{req: req, conn: conn}:
				case <-ctx.Done():
					conn.Close()
				}
			}()
		}
	}()

	reject := func(m member, s status) {
		log.Warnf("rendezvous rejected rank %d from %s: %s", m.req.Rank, m.req.Self, s)
		mu.Lock()
		rejected = multierror.Append(rejected, errors.Wrapf(ErrRejected, "rank %d: %s", m.req.Rank, s))
		mu.Unlock()
		joinReply{Status: s, Rank: m.req.Rank}.WriteTo(m.conn)
		m.conn.Close()
	}

	for len(members) < o.WorldSize {
		select {
		case m := <-joined:
			switch {
			case m.req.Magic != magic:
				reject(m, statusBadMagic)
			case m.req.Token != self.Token:
				reject(m, statusForeignRun)
			case m.req.WorldSize != self.WorldSize:
				reject(m, statusWorldSizeMismatch)
			case m.req.Rank < 0 || m.req.Rank >= self.WorldSize:
				reject(m, statusRankOutOfRange)
			default:
				if _, ok := members[m.req.Rank]; ok {
					reject(m, statusDuplicateRank)
					continue
				}
				log.Debugf("rendezvous: rank %d joined from %s (%d/%d)", m.req.Rank, m.req.Self, len(members)+1, o.WorldSize)
				members[m.req.Rank] = m
			}
		case <-ctx.Done():
			for _, m := range members {
				if m.conn != nil {
					m.conn.Close()
				}
			}
			err := errors.Wrapf(ErrTimeout, "%d of %d workers joined", len(members), o.WorldSize)
			mu.Lock()
			if rejected != nil {
				err = multierror.Append(err, rejected.Errors...)
			}
			mu.Unlock()
			return nil, o.fail("host", err)
		}
	}

	ranks := make([]int, 0, len(members))
	for r := range members {
		ranks = append(ranks, int(r))
	}
	sort.Ints(ranks)
	peers := make(plan.PeerList, 0, len(ranks))
	for _, r := range ranks {
		peers = append(peers, members[int32(r)].req.Self)
	}

	var errs *multierror.Error
	for _, r := range ranks[1:] {
		m := members[int32(r)]
		if err := (joinReply{Status: statusOK, Rank: int32(r), Peers: peers}).WriteTo(m.conn); err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "reply to rank %d", r))
		}
		m.conn.Close()
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, o.fail("host", err)
	}
	return &Result{Rank: 0, Peers: peers}, nil
}

// Dial joins a rendezvous hosted by rank 0, retrying every ConnRetryPeriod
// until ctx is done. A rejection by the host is final.
func Dial(ctx context.Context, o Options) (*Result, error) {
	var (
		d        net.Dialer
		res      *Result
		attempts int
	)
	err := backoff.Retry(func() error {
		attempts++
		conn, err := d.DialContext(ctx, "tcp", o.Endpoint)
		if err != nil {
			if attempts%25 == 1 {
				log.Debugf("waiting for rendezvous host %s: %v", o.Endpoint, err)
			}
			return err
		}
		defer conn.Close()
		if res, err = exchange(ctx, conn, o); err != nil {
			if errors.Is(err, ErrRejected) {
				return backoff.Permanent(err)
			}
			log.Debugf("rendezvous exchange with %s failed: %v", o.Endpoint, err)
		}
		return err
	}, backoff.WithContext(backoff.NewConstantBackOff(config.ConnRetryPeriod), ctx))
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, ErrRejected):
		return nil, o.fail("join", err)
	case ctx.Err() != nil:
		return nil, o.fail("join", errors.Wrapf(ErrTimeout, "after %d attempts", attempts))
	default:
		return nil, o.fail("join", err)
	}
}

func exchange(ctx context.Context, conn net.Conn, o Options) (*Result, error) {
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()
	if err := o.request().WriteTo(conn); err != nil {
		return nil, err
	}
	var reply joinReply
	if err := reply.ReadFrom(conn); err != nil {
		return nil, err
	}
	if reply.Status != statusOK {
		return nil, errors.Wrap(ErrRejected, reply.Status.String())
	}
	if int(reply.Rank) != o.Rank || len(reply.Peers) != o.WorldSize {
		return nil, errors.Wrapf(ErrRejected, "inconsistent reply: rank %d of %d", reply.Rank, len(reply.Peers))
	}
	return &Result{Rank: int(reply.Rank), Peers: reply.Peers}, nil
}
