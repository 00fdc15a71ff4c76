package face

import (
	"bufio"
	"fmt"
	"net"

	"github.com/ccnhub/ccnd/internal/log"
)

// TCPTransport is a unicast TCP transport. New inbound connections start
// UNDECIDED: if the first bytes are "GET " the face is diverted to the
// HTTP status handler (spec.md s6); otherwise it becomes a CCN peer.
type TCPTransport struct {
	transportBase
	conn *net.TCPConn
}

// MakeTCPTransport wraps an already-accepted or dialed TCP connection.
func MakeTCPTransport(conn *net.TCPConn, mtu int) *TCPTransport {
	t := &TCPTransport{conn: conn}
	t.mtu = mtu
	t.running = true
	return t
}

func (t *TCPTransport) String() string {
	return fmt.Sprintf("tcp-transport(remote=%s)", t.conn.RemoteAddr())
}

func (t *TCPTransport) SendFrame(frame []byte) error {
	if !t.running {
		return nil
	}
	if _, err := t.conn.Write(frame); err != nil {
		log.Default().Warn(t, "unable to send on socket - face DOWN", "err", err)
		_ = t.Close()
		return err
	}
	t.nOutBytes += uint64(len(frame))
	return nil
}

func (t *TCPTransport) RunReceive(onFrame func([]byte)) {
	defer t.Close()
	readTLVStream(t.conn, &t.nInBytes, onFrame)
}

func (t *TCPTransport) Close() error {
	if t.running {
		t.running = false
		return t.conn.Close()
	}
	return nil
}

// SniffUndecided peeks the first 4 bytes of an accepted TCP connection to
// decide whether it is an HTTP GET (diverted to the status page
// collaborator and closed, spec.md s6) or a CCN peer.
func SniffUndecided(conn *net.TCPConn) (isHTTP bool, br *bufio.Reader, err error) {
	br = bufio.NewReaderSize(conn, 8192)
	peek, err := br.Peek(4)
	if err != nil {
		return false, br, err
	}
	return string(peek) == "GET ", br, nil
}
