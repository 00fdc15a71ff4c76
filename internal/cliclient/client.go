// Package cliclient gives the ccndc/ccnput/ccnget command-line tools a
// minimal way to dial the daemon's local control socket and exchange
// one message at a time, without pulling in the full face/link-service
// machinery those tools don't need.
package cliclient

import (
	"fmt"
	"net"
	"time"

	"github.com/ccnhub/ccnd/internal/wire"
)

// Conn is a stream connection to the daemon's local control socket.
type Conn struct {
	c net.Conn
}

// Dial connects to the daemon's Unix control socket at path.
func Dial(path string) (*Conn, error) {
	c, err := net.DialTimeout("unix", path, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("cliclient: dial %s: %w", path, err)
	}
	return &Conn{c: c}, nil
}

func (c *Conn) Close() error { return c.c.Close() }

// SendInterest writes one Interest message onto the connection.
func (c *Conn) SendInterest(it *wire.Interest) error {
	_, err := c.c.Write(wire.EncodeInterest(it))
	return err
}

// SendContentObject writes one unsolicited Content Object onto the
// connection (the publish path for ccnput).
func (c *Conn) SendContentObject(co *wire.ContentObject) error {
	_, err := c.c.Write(wire.EncodeContentObject(co))
	return err
}

// ReadOne blocks until one complete outer message arrives and returns
// its type tag and TLV body.
func (c *Conn) ReadOne(timeout time.Duration) (wire.TLNum, []byte, error) {
	_ = c.c.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 0, 8192)
	tmp := make([]byte, 8192)
	for {
		n, err := c.c.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			if typ, body, perr := wire.ReadOuterMessage(buf); perr == nil {
				return typ, body, nil
			}
		}
		if err != nil {
			return 0, nil, err
		}
	}
}

// Request sends it and waits for the matching Content Object response,
// the request/response pattern every management Interest follows
// (spec.md s4.7).
func (c *Conn) Request(it *wire.Interest, timeout time.Duration) (*wire.ContentObject, error) {
	if err := c.SendInterest(it); err != nil {
		return nil, err
	}
	typ, body, err := c.ReadOne(timeout)
	if err != nil {
		return nil, err
	}
	if typ != wire.TypeContentObject {
		return nil, fmt.Errorf("cliclient: expected content object response, got type %d", typ)
	}
	return wire.DecodeContentObject(body)
}
