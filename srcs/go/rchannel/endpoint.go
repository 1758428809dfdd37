package rchannel

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/lsds/moebench/srcs/go/monitor"
	"github.com/lsds/moebench/srcs/go/plan"
)

// mailbox holds at most one undelivered payload of a named operation, and
// the buffer a receiver registered for it.
type mailbox struct {
	registered chan []byte
	delivered  chan []byte
}

// Endpoint sorts incoming payloads into mailboxes by sender and name.
type Endpoint struct {
	mu      sync.Mutex
	boxes   map[plan.Addr]*mailbox
	monitor monitor.Monitor
}

func NewEndpoint(m monitor.Monitor) *Endpoint {
	return &Endpoint{
		boxes:   make(map[plan.Addr]*mailbox),
		monitor: m,
	}
}

func (e *Endpoint) box(a plan.Addr) *mailbox {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.boxes[a]
	if !ok {
		b = &mailbox{
			registered: make(chan []byte, 1),
			delivered:  make(chan []byte, 1),
		}
		e.boxes[a] = b
	}
	return b
}

// Recv blocks for the next payload sent to a. The result comes from GetBuf;
// the caller returns it with PutBuf.
func (e *Endpoint) Recv(a plan.Addr) []byte {
	return <-e.box(a).delivered
}

var errUnexpectedLength = errors.New("unexpected payload length")

// RecvInto registers buf for the next payload sent to a with WaitRecvBuf and
// blocks until it has been filled.
func (e *Endpoint) RecvInto(a plan.Addr, buf []byte) error {
	b := e.box(a)
	b.registered <- buf
	got := <-b.delivered
	if got == nil {
		return errors.Wrapf(errUnexpectedLength, "%s", a)
	}
	return nil
}

// serve reads frames sent by from until the connection ends.
func (e *Endpoint) serve(from plan.PeerID, r io.Reader) error {
	for {
		h, name, err := readFrameHeader(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		b := e.box(from.WithName(name))
		var buf []byte
		if h.Flags&WaitRecvBuf != 0 {
			buf = <-b.registered
			if len(buf) != int(h.Length) {
				b.delivered <- nil
				return errors.Wrapf(errUnexpectedLength, "%s: got %d bytes, want %d", name, h.Length, len(buf))
			}
		} else {
			buf = GetBuf(int(h.Length))
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		e.monitor.Ingress(int64(h.Length), from)
		b.delivered <- buf
	}
}
