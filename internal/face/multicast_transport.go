package face

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// MulticastUDPTransport is a per-interface multicast UDP transport,
// joined by a newface management request supplying
// (multicast-address, port, interface-address, ttl) per spec.md s6.
// Grounded on teacher's fw/face/multicast-udp-transport.go.
type MulticastUDPTransport struct {
	transportBase
	sendConn  *net.UDPConn
	recvConn  *net.UDPConn
	groupAddr *net.UDPAddr
	localAddr *net.UDPAddr
}

// reuseAddrControl sets SO_REUSEADDR before bind, grounded on teacher's impl.SyscallReuseAddr.
func reuseAddrControl(_ string, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// MakeMulticastUDPTransport joins the multicast group on the system's
// default multicast interface; iface only sets the local address of the
// send socket, which uses the given TTL. The group is not joined on iface
// itself.
func MakeMulticastUDPTransport(group, iface *net.UDPAddr, ttl int, mtu int) (*MulticastUDPTransport, error) {
	t := &MulticastUDPTransport{groupAddr: group, localAddr: iface}
	t.mtu = mtu

	recvConn, err := net.ListenMulticastUDP("udp", nil, group)
	if err != nil {
		return nil, fmt.Errorf("multicast join: %w", err)
	}
	t.recvConn = recvConn

	dialer := &net.Dialer{LocalAddr: &net.UDPAddr{IP: iface.IP}, Control: reuseAddrControl}
	conn, err := dialer.Dial("udp", group.String())
	if err != nil {
		recvConn.Close()
		return nil, fmt.Errorf("multicast send connect: %w", err)
	}
	t.sendConn = conn.(*net.UDPConn)
	_ = setMulticastTTL(t.sendConn, ttl)
	t.running = true
	return t, nil
}

func (t *MulticastUDPTransport) String() string {
	return fmt.Sprintf("multicast-udp-transport(group=%s)", t.groupAddr)
}

func (t *MulticastUDPTransport) SendFrame(frame []byte) error {
	if !t.running {
		return nil
	}
	if _, err := t.sendConn.Write(frame); err != nil {
		return err
	}
	t.nOutBytes += uint64(len(frame))
	return nil
}

func (t *MulticastUDPTransport) RunReceive(onFrame func([]byte)) {
	defer t.Close()
	buf := make([]byte, 65536)
	for {
		n, _, err := t.recvConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		t.nInBytes += uint64(n)
		onFrame(frame)
	}
}

func (t *MulticastUDPTransport) Close() error {
	if !t.running {
		return nil
	}
	t.running = false
	t.sendConn.Close()
	return t.recvConn.Close()
}

// setMulticastTTL best-effort sets the outgoing multicast TTL via raw
// socket control.
func setMulticastTTL(conn *net.UDPConn, ttl int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	return raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MULTICAST_TTL, ttl)
	})
}
