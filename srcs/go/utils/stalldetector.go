package utils

import (
	"time"

	"github.com/lsds/moebench/srcs/go/log"
)

type stallDetector struct {
	name    string
	tk      *time.Ticker
	stopped chan struct{}
}

// InstallStallDetector reports every period that the named operation is
// still running, until Stop is called.
func InstallStallDetector(name string, period time.Duration) *stallDetector {
	s := &stallDetector{
		name:    name,
		tk:      time.NewTicker(period),
		stopped: make(chan struct{}),
	}
	go s.start()
	return s
}

func (s *stallDetector) start() {
	t0 := time.Now()
	var hasStalled bool
	for {
		select {
		case <-s.tk.C:
			hasStalled = true
			log.Warnf("%s stalled for %s", s.name, time.Since(t0))
		case <-s.stopped:
			if hasStalled {
				log.Warnf("%s recovered after %s", s.name, time.Since(t0))
			}
			return
		}
	}
}

func (s *stallDetector) Stop() {
	s.tk.Stop()
	close(s.stopped)
}
