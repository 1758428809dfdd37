package plan

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// PeerList orders the peers of a run by rank.
type PeerList []PeerID

func (pl PeerList) String() string {
	parts := make([]string, len(pl))
	for i, p := range pl {
		parts[i] = p.String()
	}
	return strings.Join(parts, ",")
}

func (pl PeerList) Rank(q PeerID) (int, bool) {
	for i, p := range pl {
		if p == q {
			return i, true
		}
	}
	return -1, false
}

func (pl PeerList) Select(ranks []int) PeerList {
	ql := make(PeerList, len(ranks))
	for i, r := range ranks {
		ql[i] = pl[r]
	}
	return ql
}

const maxPeers = 1 << 16

// WriteTo encodes the list as a little endian count followed by the peers.
func (pl PeerList) WriteTo(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(pl))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, []PeerID(pl))
}

func (pl *PeerList) ReadFrom(r io.Reader) error {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return err
	}
	if n > maxPeers {
		return errors.Errorf("peer list too long: %d", n)
	}
	ql := make(PeerList, n)
	if err := binary.Read(r, binary.LittleEndian, []PeerID(ql)); err != nil {
		return err
	}
	*pl = ql
	return nil
}
