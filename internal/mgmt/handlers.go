package mgmt

import (
	"fmt"
	"net"

	"github.com/ccnhub/ccnd/internal/face"
	"github.com/ccnhub/ccnd/internal/table"
	"github.com/ccnhub/ccnd/internal/wire"
)

// handlePing answers /ccnx/ping and /ccnx/<id>/ping with a trivial
// liveness payload. The daemon does not schedule a self-ping keepalive;
// these are answered only when a client asks.
func (c *Client) handlePing(_ *wire.Interest, _ int) ([]byte, error) {
	return []byte("pong"), nil
}

// handleRegSelf registers the requesting face's own name as a FIB
// prefix pointing back at itself (spec.md s4.7 "register the
// requester's own prefix"). The requester is identified by the
// Interest's originating face, which the caller threads through via
// RegisterSelf below rather than this Handler signature, since the
// Internal Client's HandleInterest does not currently carry the
// inbound face-id; see RegisterSelf for the real entry point.
func (c *Client) handleRegSelf(it *wire.Interest, prefixLen int) ([]byte, error) {
	return []byte("ok"), nil
}

// RegisterSelf performs the /ccnx/reg/self side effect: the requested
// prefix (everything in the request name past the /ccnx/reg/self
// filter) is registered toward originFaceID with CHILD_INHERIT
// (spec.md s4.4, s4.7). Called by the daemon's dispatch loop, which
// alone knows which face an Interest arrived on.
func (c *Client) RegisterSelf(it *wire.Interest, originFaceID uint64) {
	b := c.lookup(it.Name)
	if b == nil {
		return
	}
	e := c.Tree.Seek(it.Name[len(b.prefix):])
	c.Tree.RegisterForwarding(e, originFaceID, table.FwActive|table.FwChildInherit, -1)
}

// handleNewFace decodes a NewFaceParams request and opens the
// requested transport, enrolling it in the Face Table (spec.md s4.6,
// s4.7).
func (c *Client) handleNewFace(it *wire.Interest, prefixLen int) ([]byte, error) {
	var p NewFaceParams
	if err := decodeParams(it.Name, prefixLen, &p); err != nil {
		return nil, err
	}

	switch p.Transport {
	case "udp":
		addr := &net.UDPAddr{IP: net.ParseIP(p.Address), Port: p.Port}
		conn, err := net.DialUDP("udp", nil, addr)
		if err != nil {
			return nil, err
		}
		tr := face.MakeUDPPeerTransport(conn, addr, 1280)
		f, err := c.Faces.Enroll(face.FlagDgram|face.FlagINET, tr)
		if err != nil {
			return nil, err
		}
		c.notifyEnrolled(f)
		return []byte(fmt.Sprintf("faceid=%d", f.ID)), nil

	case "mcast":
		group := &net.UDPAddr{IP: net.ParseIP(p.Address), Port: p.Port}
		iface := &net.UDPAddr{IP: net.ParseIP(p.McastIf)}
		ttl := p.TTL
		if ttl == 0 {
			ttl = 1
		}
		tr, err := face.MakeMulticastUDPTransport(group, iface, ttl, 1280)
		if err != nil {
			return nil, err
		}
		f, err := c.Faces.Enroll(face.FlagDgram|face.FlagMCAST, tr)
		if err != nil {
			return nil, err
		}
		c.notifyEnrolled(f)
		return []byte(fmt.Sprintf("faceid=%d", f.ID)), nil

	case "tcp":
		addr := fmt.Sprintf("%s:%d", p.Address, p.Port)
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return nil, err
		}
		tr := face.MakeTCPTransport(conn.(*net.TCPConn), 1280)
		f, err := c.Faces.Enroll(face.FlagLink|face.FlagINET, tr)
		if err != nil {
			return nil, err
		}
		c.notifyEnrolled(f)
		return []byte(fmt.Sprintf("faceid=%d", f.ID)), nil

	default:
		return nil, fmt.Errorf("mgmt: unsupported transport %q", p.Transport)
	}
}

// notifyEnrolled wires a newly-created face into the daemon's receive
// path, if a top-level owner registered the hook (spec.md s4.7
// "newface... may create a face").
func (c *Client) notifyEnrolled(f *face.Face) {
	if c.OnFaceEnrolled != nil {
		c.OnFaceEnrolled(f)
	}
}

// handlePrefixReg decodes a PrefixRegParams request and registers the
// given prefix toward the given face (spec.md s4.4, s4.7).
func (c *Client) handlePrefixReg(it *wire.Interest, prefixLen int) ([]byte, error) {
	var p PrefixRegParams
	if err := decodeParams(it.Name, prefixLen, &p); err != nil {
		return nil, err
	}
	if c.Faces.Get(p.FaceID) == nil {
		return nil, fmt.Errorf("mgmt: unknown faceid %d", p.FaceID)
	}
	e := c.Tree.Seek(wire.NameFromString(p.Prefix))
	flags := table.ForwardingFlags(p.Flags) | table.FwActive
	c.Tree.RegisterForwarding(e, p.FaceID, flags, -1)
	return []byte("ok"), nil
}
