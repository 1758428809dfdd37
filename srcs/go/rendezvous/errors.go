package rendezvous

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrTimeout  = errors.New("rendezvous timeout exceeded")
	ErrRejected = errors.New("join rejected")
)

// Error is a fatal rendezvous failure of one worker.
type Error struct {
	Op       string
	Endpoint string
	Rank     int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rendezvous %s at %s failed for rank %d: %v", e.Op, e.Endpoint, e.Rank, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
