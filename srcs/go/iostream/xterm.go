package iostream

import (
	"fmt"
	"io"
	"sync"

	"github.com/lsds/moebench/srcs/go/utils/xterm"
)

// XtermWriter prefixes every line; writers sharing an output serialize
// through its lock.
type XtermWriter struct {
	prefix string
	w      *lockedWriter
}

type lockedWriter struct {
	sync.Mutex
	w io.Writer
}

func (x *XtermWriter) Write(bs []byte) (int, error) {
	x.w.Lock()
	defer x.w.Unlock()
	fmt.Fprintf(x.w.w, "[%s] %s", x.prefix, string(bs))
	return len(bs), nil
}

// Console multiplexes the output of many workers onto one StdWriters.
type Console struct {
	stdout, stderr *lockedWriter
}

func NewConsole(std StdWriters) *Console {
	return &Console{
		stdout: &lockedWriter{w: std.Stdout},
		stderr: &lockedWriter{w: std.Stderr},
	}
}

func (c *Console) Redirector(name string, color xterm.Color) *StdWriters {
	if color == nil {
		color = xterm.NoColor
	}
	return &StdWriters{
		Stdout: &XtermWriter{prefix: color.S(name), w: c.stdout},
		Stderr: &XtermWriter{prefix: color.S(name) + "::" + xterm.Warn.S("stderr"), w: c.stderr},
	}
}
