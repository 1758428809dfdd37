package profile

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeClock(t *testing.T) {
	base := time.Unix(1000, 0)
	tick := 0
	now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	t.Cleanup(func() { now = time.Now })
}

func TestExportChromeTrace(t *testing.T) {
	fakeClock(t)
	p := New(3)
	s := p.Profile("forward")
	s.Done()
	p.ProfileOn(Device, "allreduce").Done()
	p.Counter("memory", map[string]int64{"allocated": 42})

	dir := t.TempDir()
	filename, err := p.ExportChromeTrace(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "trace_3.json"), filename)

	bs, err := os.ReadFile(filename)
	require.NoError(t, err)
	var tf traceFile
	require.NoError(t, json.Unmarshal(bs, &tf))
	require.Len(t, tf.TraceEvents, 3)

	fw := tf.TraceEvents[0]
	assert.Equal(t, "forward", fw.Name)
	assert.Equal(t, "X", fw.Phase)
	assert.Equal(t, "host", fw.Cat)
	assert.Equal(t, 3, fw.Pid)
	assert.Equal(t, 1000.0, fw.Ts)
	assert.Equal(t, 1000.0, fw.Dur)

	assert.Equal(t, "device", tf.TraceEvents[1].Cat)
	assert.Equal(t, "C", tf.TraceEvents[2].Phase)
	assert.Equal(t, int64(42), tf.TraceEvents[2].Args["allocated"])
}

func TestExportFailure(t *testing.T) {
	p := New(0)
	_, err := p.ExportChromeTrace(filepath.Join(t.TempDir(), "missing", "dir"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExport))
}

func TestWriteSummary(t *testing.T) {
	fakeClock(t)
	p := New(0)
	for i := 0; i < 3; i++ {
		p.Profile("step").Done()
	}
	var buf bytes.Buffer
	p.WriteSummary(&buf)
	assert.Contains(t, buf.String(), "step")
	assert.Contains(t, buf.String(), "count")
	assert.Equal(t, 3, p.NumEvents())
}
