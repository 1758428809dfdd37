// Package rchannel moves named byte payloads between the peers of a run
// over plain TCP.
package rchannel

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/pkg/errors"

	"github.com/lsds/moebench/srcs/go/bench/config"
	"github.com/lsds/moebench/srcs/go/plan"
)

var endian = binary.LittleEndian

// Kind selects how the server treats an accepted connection.
type Kind uint16

const (
	KindPing Kind = iota + 1
	KindCollective
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindCollective:
		return "collective"
	default:
		return "unknown"
	}
}

const helloMagic uint32 = 0x72636831 // "rch1"

// hello opens every connection. The server only accepts dialers of its own
// run, identified by token.
type hello struct {
	Magic uint32
	Kind  Kind
	Token uint32
	From  plan.PeerID
}

const (
	ackRejected uint8 = iota
	ackAccepted
)

var (
	ErrForeignPeer = errors.New("peer belongs to another run")
	errBadHello    = errors.New("bad connection hello")
)

// WaitRecvBuf marks a payload the receiver reads straight into the buffer
// registered with RecvInto.
const WaitRecvBuf uint16 = 1

// MaxFrameBytes bounds a single payload; collectives never send more than
// one gradient bucket at once.
const MaxFrameBytes = config.DefaultBucketBytes

type frameHeader struct {
	Flags   uint16
	NameLen uint16
	Length  uint32
}

const frameHeaderSize = 8

func writeFrame(w io.Writer, name string, payload []byte, flags uint16) error {
	if len(name) > 0xffff {
		return errors.Errorf("frame name too long: %d bytes", len(name))
	}
	if len(payload) > MaxFrameBytes {
		return errors.Errorf("frame %s too long: %d bytes", name, len(payload))
	}
	hdr := make([]byte, frameHeaderSize, frameHeaderSize+len(name))
	endian.PutUint16(hdr[0:], flags)
	endian.PutUint16(hdr[2:], uint16(len(name)))
	endian.PutUint32(hdr[4:], uint32(len(payload)))
	bufs := net.Buffers{append(hdr, name...), payload}
	_, err := bufs.WriteTo(w)
	return err
}

func readFrameHeader(r io.Reader) (frameHeader, string, error) {
	var h frameHeader
	if err := binary.Read(r, endian, &h); err != nil {
		return h, "", err
	}
	if h.Length > MaxFrameBytes {
		return h, "", errors.Errorf("frame too long: %d bytes", h.Length)
	}
	name := make([]byte, h.NameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return h, "", err
	}
	return h, string(name), nil
}
