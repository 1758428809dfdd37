package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ErrExport is wrapped by every trace export failure.
var ErrExport = errors.New("trace export failed")

type traceEvent struct {
	Name  string           `json:"name"`
	Cat   string           `json:"cat"`
	Phase string           `json:"ph"`
	Ts    float64          `json:"ts"`
	Dur   float64          `json:"dur,omitempty"`
	Pid   int              `json:"pid"`
	Tid   int              `json:"tid"`
	Args  map[string]int64 `json:"args,omitempty"`
}

type traceFile struct {
	TraceEvents     []traceEvent `json:"traceEvents"`
	DisplayTimeUnit string       `json:"displayTimeUnit"`
}

// TraceFilename is the per rank trace file name.
func TraceFilename(rank int) string {
	return fmt.Sprintf("trace_%d.json", rank)
}

func (p *Profiler) trace() traceFile {
	p.Lock()
	defer p.Unlock()
	t := traceFile{DisplayTimeUnit: "ms", TraceEvents: []traceEvent{}}
	for _, e := range p.events {
		te := traceEvent{
			Name: e.name,
			Cat:  e.activity.String(),
			Ts:   float64(e.begin.Sub(p.start).Nanoseconds()) / 1e3,
			Pid:  p.rank,
			Tid:  int(e.activity),
		}
		if e.counter != nil {
			te.Phase = "C"
			te.Args = e.counter
		} else {
			te.Phase = "X"
			te.Dur = float64(e.end.Sub(e.begin).Nanoseconds()) / 1e3
		}
		t.TraceEvents = append(t.TraceEvents, te)
	}
	return t
}

// ExportChromeTrace writes all recorded events to dir/trace_<rank>.json and
// returns the file name.
func (p *Profiler) ExportChromeTrace(dir string) (string, error) {
	filename := filepath.Join(dir, TraceFilename(p.rank))
	bs, err := json.Marshal(p.trace())
	if err != nil {
		return "", errors.Wrapf(ErrExport, "encode %s: %v", filename, err)
	}
	if err := os.WriteFile(filename, bs, 0644); err != nil {
		return "", errors.Wrapf(ErrExport, "write %s: %v", filename, err)
	}
	return filename, nil
}
