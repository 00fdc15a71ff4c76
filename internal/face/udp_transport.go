package face

import (
	"fmt"
	"net"

	"github.com/ccnhub/ccnd/internal/log"
)

// UDPPeerTransport is one logical datagram peer multiplexed over a
// shared receive socket (spec.md s4.6 "UDP faces pivot on the
// dgram_faces table keyed by peer sockaddr"). RunReceive is a no-op: the
// owning UDPListener demultiplexes inbound datagrams to peers centrally
// and delivers frames straight to the Face's link service.
type UDPPeerTransport struct {
	transportBase
	conn *net.UDPConn // shared socket, not owned
	peer *net.UDPAddr
}

// MakeUDPPeerTransport creates a logical peer face over a shared socket.
func MakeUDPPeerTransport(conn *net.UDPConn, peer *net.UDPAddr, mtu int) *UDPPeerTransport {
	t := &UDPPeerTransport{conn: conn, peer: peer}
	t.mtu = mtu
	t.running = true
	return t
}

func (t *UDPPeerTransport) String() string {
	return fmt.Sprintf("udp-transport(peer=%s)", t.peer)
}

func (t *UDPPeerTransport) SendFrame(frame []byte) error {
	if !t.running {
		return nil
	}
	if len(frame) > t.mtu {
		log.Default().Warn(t, "attempted to send datagram larger than MTU")
		return nil
	}
	if _, err := t.conn.WriteToUDP(frame, t.peer); err != nil {
		log.Default().Warn(t, "sendto failed", "err", err)
		return err
	}
	t.nOutBytes += uint64(len(frame))
	return nil
}

func (t *UDPPeerTransport) RunReceive(func([]byte)) {}

func (t *UDPPeerTransport) Close() error {
	t.running = false
	return nil // shared socket outlives any one peer face
}

// IsLoopback reports whether peer is the loopback address, used to
// flag newly-created source faces GG (spec.md s4.6).
func (t *UDPPeerTransport) IsLoopback() bool {
	return t.peer.IP.IsLoopback()
}

// UDPListener owns the shared receive socket for one local UDP endpoint
// and demultiplexes datagrams to per-peer faces, creating a face on
// first contact from a new peer (spec.md s4.6).
type UDPListener struct {
	conn *net.UDPConn
	mtu  int

	peers   map[string]*Face
	onFrame func(f *Face, frame []byte)
	newPeer func(peer *net.UDPAddr, tr *UDPPeerTransport) *Face
}

// ListenUDP opens a shared UDP socket. newPeer is invoked on first
// contact from a peer to enroll a Face; onFrame delivers subsequent
// datagrams to the resolved Face.
func ListenUDP(addr *net.UDPAddr, mtu int,
	newPeer func(peer *net.UDPAddr, tr *UDPPeerTransport) *Face,
	onFrame func(f *Face, frame []byte),
) (*UDPListener, error) {
	conn, err := net.ListenUDP(addr.Network(), addr)
	if err != nil {
		return nil, err
	}
	return &UDPListener{
		conn:    conn,
		mtu:     mtu,
		peers:   make(map[string]*Face),
		onFrame: onFrame,
		newPeer: newPeer,
	}, nil
}

// Run blocks, reading datagrams and routing them to peer faces.
func (l *UDPListener) Run() {
	buf := make([]byte, 65536)
	for {
		n, peer, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		f, ok := l.peers[peer.String()]
		if !ok {
			tr := MakeUDPPeerTransport(l.conn, peer, l.mtu)
			f = l.newPeer(peer, tr)
			l.peers[peer.String()] = f
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		l.onFrame(f, frame)
	}
}

// Close shuts down the shared socket.
func (l *UDPListener) Close() error { return l.conn.Close() }

// RemovePeer drops the peer-to-face association, e.g. on reaper retirement.
func (l *UDPListener) RemovePeer(peer *net.UDPAddr) { delete(l.peers, peer.String()) }

// WriteTo performs a raw sendto on the listener's shared socket, used by
// Inject handling to avoid opening a distinct descriptor (spec.md s6
// "a raw sendto on the matching UDP descriptor").
func (l *UDPListener) WriteTo(b []byte, dst *net.UDPAddr) error {
	_, err := l.conn.WriteToUDP(b, dst)
	return err
}

// LocalAddr returns the shared socket's bound local address.
func (l *UDPListener) LocalAddr() *net.UDPAddr {
	return l.conn.LocalAddr().(*net.UDPAddr)
}
