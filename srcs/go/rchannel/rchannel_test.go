package rchannel

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsds/moebench/srcs/go/monitor"
	"github.com/lsds/moebench/srcs/go/plan"
)

func Test_frame(t *testing.T) {
	b := &bytes.Buffer{}
	require.NoError(t, writeFrame(b, "grad::1::bucket[0]", []byte("123456"), WaitRecvBuf))
	assert.Equal(t, frameHeaderSize+len("grad::1::bucket[0]")+6, b.Len())

	h, name, err := readFrameHeader(b)
	require.NoError(t, err)
	assert.Equal(t, "grad::1::bucket[0]", name)
	assert.Equal(t, uint32(6), h.Length)
	assert.Equal(t, WaitRecvBuf, h.Flags)
	assert.Equal(t, "123456", b.String())
}

func Test_frame_too_long(t *testing.T) {
	assert.Error(t, writeFrame(&bytes.Buffer{}, "x", make([]byte, MaxFrameBytes+1), 0))

	b := &bytes.Buffer{}
	hdr := make([]byte, frameHeaderSize)
	endian.PutUint32(hdr[4:], MaxFrameBytes+1)
	b.Write(hdr)
	_, _, err := readFrameHeader(b)
	assert.Error(t, err)
}

func Test_pool(t *testing.T) {
	for _, n := range []int{0, 1, 512, 513, 4000, ChunkBytes} {
		b := GetBuf(n)
		assert.Len(t, b, n)
		assert.Equal(t, 0, cap(b)&(cap(b)-1), "capacity %d is a size class", cap(b))
		PutBuf(b)
	}
	assert.Equal(t, -1, classOf(ChunkBytes+1))
	b := GetBuf(ChunkBytes + 1)
	assert.Len(t, b, ChunkBytes+1)
	PutBuf(b)
}

type peerForTest struct {
	self     plan.PeerID
	server   *Server
	endpoint *Endpoint
	client   *Client
}

func startPeer(t *testing.T, token uint32) *peerForTest {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	self, err := plan.PeerOf(ln)
	require.NoError(t, err)
	e := NewEndpoint(monitor.New())
	p := &peerForTest{
		self:     self,
		server:   NewServer(ln, token, e),
		endpoint: e,
		client:   NewClient(self, token, monitor.New()),
	}
	go p.server.Serve()
	t.Cleanup(func() {
		p.client.Close()
		p.server.Close()
	})
	return p
}

func Test_SendRecv(t *testing.T) {
	a, b := startPeer(t, 7), startPeer(t, 7)

	require.NoError(t, a.client.Send(b.self.WithName("x"), []byte("hello"), 0))
	got := b.endpoint.Recv(a.self.WithName("x"))
	assert.Equal(t, "hello", string(got))
	PutBuf(got)

	buf := make([]byte, 3)
	done := make(chan error, 1)
	go func() { done <- b.endpoint.RecvInto(a.self.WithName("y"), buf) }()
	require.NoError(t, a.client.Send(b.self.WithName("y"), []byte("abc"), WaitRecvBuf))
	require.NoError(t, <-done)
	assert.Equal(t, "abc", string(buf))
}

func Test_RecvInto_checks_length(t *testing.T) {
	a, b := startPeer(t, 7), startPeer(t, 7)
	done := make(chan error, 1)
	go func() { done <- b.endpoint.RecvInto(a.self.WithName("y"), make([]byte, 4)) }()
	require.NoError(t, a.client.Send(b.self.WithName("y"), []byte("abc"), WaitRecvBuf))
	assert.True(t, errors.Is(<-done, errUnexpectedLength))
}

func Test_Ping(t *testing.T) {
	a, b := startPeer(t, 7), startPeer(t, 7)
	d, err := a.client.Ping(context.Background(), b.self)
	require.NoError(t, err)
	assert.Positive(t, d)
}

func Test_Wait_foreign_peer(t *testing.T) {
	a, b := startPeer(t, 7), startPeer(t, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.client.Wait(ctx, b.self)
	assert.True(t, errors.Is(err, ErrForeignPeer), "got %v", err)
	assert.NoError(t, ctx.Err(), "rejection is not retried")
}

func Test_Wait_until_listening(t *testing.T) {
	a := startPeer(t, 7)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	target, err := plan.PeerOf(ln)
	require.NoError(t, err)
	ln.Close()

	go func() {
		time.Sleep(300 * time.Millisecond)
		ln, err := net.Listen("tcp", target.String())
		if err != nil {
			return
		}
		s := NewServer(ln, 7, NewEndpoint(monitor.New()))
		t.Cleanup(func() { s.Close() })
		s.Serve()
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	assert.NoError(t, a.client.Wait(ctx, target))
}

func Test_Wait_timeout(t *testing.T) {
	a := startPeer(t, 7)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	target, err := plan.PeerOf(ln)
	require.NoError(t, err)
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	assert.Error(t, a.client.Wait(ctx, target))
}
