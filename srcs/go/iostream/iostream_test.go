package iostream

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsds/moebench/srcs/go/utils/xterm"
)

func TestTee(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, Tee(strings.NewReader("x\ny\nlast"), &a, &b))
	assert.Equal(t, "x\ny\nlast\n", a.String())
	assert.Equal(t, a.String(), b.String())
}

func TestHistory(t *testing.T) {
	h := &History{Limit: 2}
	require.NoError(t, Tee(strings.NewReader("1\n2\n3\n"), h))
	assert.Equal(t, []string{"2", "3"}, h.Lines())
}

func TestStreamWithPrefixAndFiles(t *testing.T) {
	var out, errs bytes.Buffer
	console := NewConsole(StdWriters{Stdout: &out, Stderr: &errs})
	dir := t.TempDir()
	files := NewFileRedirector(filepath.Join(dir, "logs", "worker-0"))
	r := StdReaders{Stdout: strings.NewReader("hello\n"), Stderr: strings.NewReader("oops\n")}
	r.Stream(console.Redirector("0", xterm.NoColor), files).Wait()
	require.NoError(t, files.Close())

	assert.Equal(t, "[0] hello\n", out.String())
	assert.Contains(t, errs.String(), "oops")
	bs, err := os.ReadFile(filepath.Join(dir, "logs", "worker-0.stdout.log"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(bs))
	_, err = os.Stat(filepath.Join(dir, "logs", "worker-0.stderr.log"))
	assert.NoError(t, err)
}

func TestLazyFileNotCreatedWithoutWrites(t *testing.T) {
	name := filepath.Join(t.TempDir(), "never.log")
	f := NewLazyFile(name)
	require.NoError(t, f.Close())
	_, err := os.Stat(name)
	assert.True(t, os.IsNotExist(err))
}
