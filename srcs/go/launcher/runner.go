package launcher

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/lsds/moebench/srcs/go/iostream"
	"github.com/lsds/moebench/srcs/go/log"
	"github.com/lsds/moebench/srcs/go/proc"
	"github.com/lsds/moebench/srcs/go/utils/xterm"
)

const stderrTail = 10

// WorkerError is the failure of one spawned worker.
type WorkerError struct {
	Name   string
	Err    error
	Stderr []string
}

func (e *WorkerError) Error() string {
	msg := "worker " + e.Name + " failed: " + e.Err.Error()
	if len(e.Stderr) > 0 {
		msg += "\n\t" + strings.Join(e.Stderr, "\n\t")
	}
	return msg
}

func (e *WorkerError) Unwrap() error { return e.Err }

type RunOptions struct {
	Std   iostream.StdWriters
	Color bool
}

type runner struct {
	name    string
	color   xterm.Color
	logDir  string
	console *iostream.Console
}

func (r runner) run(cmd *exec.Cmd) ([]string, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	tail := &iostream.History{Limit: stderrTail}
	redirectors := []*iostream.StdWriters{
		r.console.Redirector(r.name, r.color),
		{Stdout: &iostream.Null{}, Stderr: tail},
	}
	if len(r.logDir) > 0 {
		files := iostream.NewFileRedirector(filepath.Join(r.logDir, "worker-"+r.name))
		defer files.Close()
		redirectors = append(redirectors, files)
	}
	results := iostream.StdReaders{Stdout: stdout, Stderr: stderr}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	results.Stream(redirectors...).Wait() // call this before cmd.Wait!
	err = cmd.Wait()
	return tail.Lines(), err
}

// RunAll starts ps and waits for them. The first failure kills the others;
// the returned error lists every worker that failed on its own.
func RunAll(ctx context.Context, ps []proc.Proc, opts RunOptions) error {
	g, ctx := errgroup.WithContext(ctx)
	console := iostream.NewConsole(opts.Std)
	colors := xterm.RankColors.Pick(opts.Color)
	var mu sync.Mutex
	var merr *multierror.Error
	for i, p := range ps {
		i, p := i, p
		g.Go(func() error {
			r := runner{
				name:    p.Name,
				color:   colors.Choose(i),
				logDir:  p.LogDir,
				console: console,
			}
			log.Debugf("%s", p.Script())
			tail, err := r.run(p.Cmd(ctx))
			if err == nil {
				log.Debugf("#<%s> finished successfully", p.Name)
				return nil
			}
			if ctx.Err() != nil {
				log.Debugf("#<%s> killed: %v", p.Name, err)
				return ctx.Err()
			}
			log.Errorf("#<%s> exited with error: %v", p.Name, err)
			werr := &WorkerError{Name: p.Name, Err: err, Stderr: tail}
			mu.Lock()
			merr = multierror.Append(merr, werr)
			mu.Unlock()
			return werr
		})
	}
	err := g.Wait()
	if merr != nil {
		return merr.ErrorOrNil()
	}
	return err
}
