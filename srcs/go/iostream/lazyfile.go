package iostream

import (
	"io"
	"os"
	"path/filepath"
	"sync"
)

type lazyFile struct {
	name string
	once sync.Once
	f    *os.File
	err  error
}

// NewLazyFile creates filename and its parent directories on first write.
func NewLazyFile(filename string) io.WriteCloser {
	return &lazyFile{name: filename}
}

func (f *lazyFile) Write(bs []byte) (int, error) {
	f.once.Do(f.create)
	if f.err != nil {
		return 0, f.err
	}
	return f.f.Write(bs)
}

func (f *lazyFile) Close() error {
	if f.f != nil {
		return f.f.Close()
	}
	return nil
}

func (f *lazyFile) create() {
	if f.err = os.MkdirAll(filepath.Dir(f.name), os.ModePerm); f.err != nil {
		return
	}
	f.f, f.err = os.Create(f.name)
}

// NewFileRedirector writes to name.stdout.log and name.stderr.log.
func NewFileRedirector(name string) *StdWriters {
	return &StdWriters{
		Stdout: NewLazyFile(name + ".stdout.log"),
		Stderr: NewLazyFile(name + ".stderr.log"),
	}
}

func (w *StdWriters) Close() error {
	var err error
	for _, x := range []io.Writer{w.Stdout, w.Stderr} {
		if c, ok := x.(io.Closer); ok {
			if e := c.Close(); e != nil && err == nil {
				err = e
			}
		}
	}
	return err
}
