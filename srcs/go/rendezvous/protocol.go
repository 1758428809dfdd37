package rendezvous

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/lsds/moebench/srcs/go/plan"
)

var endian = binary.LittleEndian

const magic uint32 = 0x6d6f6562 // "moeb"

type status uint32

const (
	statusOK status = iota
	statusBadMagic
	statusForeignRun
	statusWorldSizeMismatch
	statusRankOutOfRange
	statusDuplicateRank
)

func (s status) String() string {
	switch s {
	case statusOK:
		return "ok"
	case statusBadMagic:
		return "bad magic"
	case statusForeignRun:
		return "foreign run id"
	case statusWorldSizeMismatch:
		return "world size mismatch"
	case statusRankOutOfRange:
		return "rank out of range"
	case statusDuplicateRank:
		return "duplicate rank"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// Token hashes a run id into the value carried by every join request and
// collective connection of the run.
func Token(runID string) uint32 {
	return crc32.ChecksumIEEE([]byte(runID))
}

type joinRequest struct {
	Magic     uint32
	Token     uint32
	Rank      int32
	WorldSize int32
	Self      plan.PeerID
}

func (r joinRequest) WriteTo(w io.Writer) error {
	return binary.Write(w, endian, &r)
}

func (r *joinRequest) ReadFrom(rd io.Reader) error {
	return binary.Read(rd, endian, r)
}

type joinReply struct {
	Status status
	Rank   int32
	Peers  plan.PeerList
}

func (r joinReply) WriteTo(w io.Writer) error {
	if err := binary.Write(w, endian, uint32(r.Status)); err != nil {
		return err
	}
	if err := binary.Write(w, endian, r.Rank); err != nil {
		return err
	}
	return r.Peers.WriteTo(w)
}

func (r *joinReply) ReadFrom(rd io.Reader) error {
	var s uint32
	if err := binary.Read(rd, endian, &s); err != nil {
		return err
	}
	r.Status = status(s)
	if err := binary.Read(rd, endian, &r.Rank); err != nil {
		return err
	}
	return r.Peers.ReadFrom(rd)
}
