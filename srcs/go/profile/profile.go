// Package profile records scoped timings of a training pass and exports
// them as a Chrome trace.
package profile

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

var now = time.Now

// Activity is the timeline a scope is recorded on.
type Activity int

const (
	Host Activity = iota + 1
	Device
)

func (a Activity) String() string {
	switch a {
	case Host:
		return "host"
	case Device:
		return "device"
	default:
		return fmt.Sprintf("activity(%d)", int(a))
	}
}

type Profiler struct {
	sync.Mutex
	rank  int
	start time.Time

	counts         map[string]int64
	minDurations   map[string]time.Duration
	maxDurations   map[string]time.Duration
	totalDurations map[string]time.Duration

	events []event
}

type Scope struct {
	name     string
	activity Activity
	begin    time.Time
	profiler *Profiler
}

type event struct {
	name     string
	activity Activity
	begin    time.Time
	end      time.Time
	counter  map[string]int64
}

func New(rank int) *Profiler {
	return &Profiler{
		rank:           rank,
		start:          now(),
		counts:         make(map[string]int64),
		minDurations:   make(map[string]time.Duration),
		maxDurations:   make(map[string]time.Duration),
		totalDurations: make(map[string]time.Duration),
	}
}

// Profile opens a host scope; callers defer Done.
func (p *Profiler) Profile(name string) *Scope {
	return p.ProfileOn(Host, name)
}

func (p *Profiler) ProfileOn(a Activity, name string) *Scope {
	return &Scope{
		name:     name,
		activity: a,
		begin:    now(),
		profiler: p,
	}
}

func (s *Scope) Done() {
	end := now()
	s.profiler.add(s.name, end.Sub(s.begin))
	s.profiler.logEvent(event{name: s.name, activity: s.activity, begin: s.begin, end: end})
}

// Counter records sampled values, e.g. allocated device bytes.
func (p *Profiler) Counter(name string, values map[string]int64) {
	t := now()
	p.logEvent(event{name: name, activity: Device, begin: t, end: t, counter: values})
}

func (p *Profiler) add(name string, d time.Duration) {
	p.Lock()
	defer p.Unlock()
	p.counts[name]++
	p.totalDurations[name] += d
	if val, ok := p.minDurations[name]; !ok || d < val {
		p.minDurations[name] = d
	}
	if val, ok := p.maxDurations[name]; !ok || d > val {
		p.maxDurations[name] = d
	}
}

func (p *Profiler) logEvent(e event) {
	p.Lock()
	defer p.Unlock()
	p.events = append(p.events, e)
}

func (p *Profiler) NumEvents() int {
	p.Lock()
	defer p.Unlock()
	return len(p.events)
}

func (p *Profiler) WriteSummary(w io.Writer) {
	p.Lock()
	defer p.Unlock()
	var names []string
	for name := range p.counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return p.totalDurations[names[i]] > p.totalDurations[names[j]] })

	th := []string{"count", "mean", "min", "max", "total", "scope"}
	var rows [][]string
	for _, name := range names {
		cnt := p.counts[name]
		tot := p.totalDurations[name]
		rows = append(rows, []string{
			fmt.Sprintf("%d", cnt),
			(tot / time.Duration(cnt)).String(),
			p.minDurations[name].String(),
			p.maxDurations[name].String(),
			tot.String(),
			name,
		})
	}
	showTable(w, th, rows)
}
