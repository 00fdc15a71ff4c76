package face

import (
	"fmt"
	"net"

	"github.com/ccnhub/ccnd/internal/log"
)

// UnixStreamTransport is a Unix stream transport for local applications,
// grounded on teacher's fw/face/unix-stream-transport.go.
type UnixStreamTransport struct {
	transportBase
	conn *net.UnixConn
}

// MakeUnixStreamTransport wraps an already-accepted Unix connection.
func MakeUnixStreamTransport(conn *net.UnixConn, mtu int) *UnixStreamTransport {
	t := &UnixStreamTransport{conn: conn}
	t.mtu = mtu
	t.running = true
	return t
}

func (t *UnixStreamTransport) String() string {
	return fmt.Sprintf("unix-stream-transport(local=%s)", t.conn.LocalAddr())
}

func (t *UnixStreamTransport) SendFrame(frame []byte) error {
	if !t.running {
		return nil
	}
	if len(frame) > t.mtu {
		log.Default().Warn(t, "attempted to send frame larger than MTU")
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

func (t *UnixStreamTransport) RunReceive(onFrame func([]byte)) {
	defer t.Close()
	readTLVStream(t.conn, &t.nInBytes, onFrame)
}

func (t *UnixStreamTransport) Close() error {
	if t.running {
		t.running = false
		return t.conn.Close()
	}
	return nil
}
