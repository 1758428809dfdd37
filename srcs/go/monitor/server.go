package monitor

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/lsds/moebench/srcs/go/log"
)

// Server exposes a Monitor on /metrics.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

func StartServer(m Monitor, port int) (*Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	ln, err := net.Listen("tcp", net.JoinHostPort("0.0.0.0", strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Warnf("monitoring server stopped: %v", err)
		}
	}()
	log.Debugf("serving metrics on %s", ln.Addr())
	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.srv.Shutdown(ctx)
}
