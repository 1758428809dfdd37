package rchannel

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/lsds/moebench/srcs/go/log"
)

// Server accepts the connections of the peers of one run.
type Server struct {
	ln       net.Listener
	token    uint32
	endpoint *Endpoint

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewServer(ln net.Listener, token uint32, e *Endpoint) *Server {
	return &Server{
		ln:       ln,
		token:    token,
		endpoint: e,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections until Close is called.
func (s *Server) Serve() {
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Warnf("accept on %s failed: %v", s.ln.Addr(), err)
			}
			return
		}
		s.track(nc, true)
		go func() {
			defer s.track(nc, false)
			defer nc.Close()
			if err := s.handle(nc); err != nil && !errors.Is(err, net.ErrClosed) {
				log.Debugf("connection from %s: %v", nc.RemoteAddr(), err)
			}
		}()
	}
}

func (s *Server) track(nc net.Conn, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if open {
		s.conns[nc] = struct{}{}
	} else {
		delete(s.conns, nc)
	}
}

func (s *Server) handle(nc net.Conn) error {
	r := bufio.NewReaderSize(nc, 64<<10)
	var h hello
	if err := binary.Read(r, endian, &h); err != nil {
		return err
	}
	if h.Magic != helloMagic || (h.Kind != KindPing && h.Kind != KindCollective) {
		return errBadHello
	}
	if h.Token != s.token {
		binary.Write(nc, endian, ackRejected)
		return errors.Wrapf(ErrForeignPeer, "%s", h.From)
	}
	if err := binary.Write(nc, endian, ackAccepted); err != nil {
		return err
	}
	if h.Kind == KindPing {
		return echo(r, nc)
	}
	return s.endpoint.serve(h.From, r)
}

// echo answers every ping frame with itself.
func echo(r io.Reader, w io.Writer) error {
	for {
		h, name, err := readFrameHeader(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		payload := make([]byte, h.Length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return err
		}
		if err := writeFrame(w, name, payload, h.Flags); err != nil {
			return err
		}
	}
}

// Close stops accepting and drops the open connections.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.mu.Lock()
	for nc := range s.conns {
		nc.Close()
	}
	s.mu.Unlock()
	return err
}
