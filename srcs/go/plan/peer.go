package plan

import (
	"net"
	"net/netip"
	"strconv"

	"github.com/pkg/errors"
)

// PeerID is where a worker accepts collective connections. Its fixed size
// layout is also its wire encoding.
type PeerID struct {
	IPv4 uint32
	Port uint16
}

func (p PeerID) AddrPort() netip.AddrPort {
	ip := netip.AddrFrom4([4]byte{byte(p.IPv4 >> 24), byte(p.IPv4 >> 16), byte(p.IPv4 >> 8), byte(p.IPv4)})
	return netip.AddrPortFrom(ip, p.Port)
}

func (p PeerID) String() string { return p.AddrPort().String() }

// WithName addresses the named mailbox of a collective operation on p.
func (p PeerID) WithName(name string) Addr {
	return Addr{Peer: p, Name: name}
}

// Addr is a named mailbox on a peer.
type Addr struct {
	Peer PeerID
	Name string
}

func (a Addr) String() string { return a.Name + "@" + a.Peer.String() }

// ParseIPv4 packs a dotted IPv4 host, or localhost, into a uint32.
func ParseIPv4(host string) (uint32, error) {
	if host == "localhost" {
		host = "127.0.0.1"
	}
	ip, err := netip.ParseAddr(host)
	if err != nil || !ip.Unmap().Is4() {
		return 0, errors.Errorf("not an IPv4 address: %q", host)
	}
	b := ip.Unmap().As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// PeerOf describes the peer listening on ln.
func PeerOf(ln net.Listener) (PeerID, error) {
	host, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		return PeerID{}, err
	}
	ipv4, err := ParseIPv4(host)
	if err != nil {
		return PeerID{}, err
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return PeerID{}, errors.Wrapf(err, "port of %s", ln.Addr())
	}
	return PeerID{IPv4: ipv4, Port: uint16(n)}, nil
}
