// Package mgmt implements the Internal Client: a loop-local CCN
// endpoint bound to the reserved face-id 0 that answers management
// Interests under /ccnx/... (spec.md s4.7), grounded on teacher's
// fw/mgmt/*.go module-dispatch pattern (verb switch,
// sendCtrlResp/sendStatusDataset) reworked onto the CCNx namespace.
package mgmt

import (
	"strings"

	"github.com/ccnhub/ccnd/internal/face"
	"github.com/ccnhub/ccnd/internal/identity"
	"github.com/ccnhub/ccnd/internal/log"
	"github.com/ccnhub/ccnd/internal/table"
	"github.com/ccnhub/ccnd/internal/wire"
)

// InternalFaceID is the reserved face-id the daemon's own management
// endpoint is addressed as (spec.md s4.7 "a reserved face (face-id 0)
// that never touches a socket").
const InternalFaceID = 0

// Handler answers one matched management Interest. prefixLen is the
// number of leading Name components consumed by the registered
// filter, i.e. where the request's parameter components begin (the
// index the handler passes to decodeParams).
type Handler func(it *wire.Interest, prefixLen int) ([]byte, error)

type binding struct {
	prefix wire.Name
	fn     Handler
}

// Client is the Internal Client (spec.md s4.7).
type Client struct {
	Tree     *table.Tree
	Faces    *face.Table
	Identity *identity.Identity
	Log      *log.Logger

	daemonID string
	handlers []binding
	ring     []pendingResponse

	// OnFaceEnrolled is invoked after handleNewFace enrolls a face, so the
	// daemon's top-level wiring (which alone owns the inbound frame
	// channel) can start routing that face's received frames into the
	// event loop. Left nil in tests that only exercise table side effects.
	OnFaceEnrolled func(*face.Face)
}

// pendingResponse is one signed Content Object awaiting feedback
// through process_input_message with face-id 0 as source (spec.md
// s4.7 "an in-memory ring is polled from the main loop").
type pendingResponse struct {
	co  *wire.ContentObject
	raw []byte
}

func (c *Client) String() string { return "internal-client" }

// New constructs a Client and registers the default filter set
// (spec.md s4.7): /ccnx/ping, /ccnx/<id>/ping, /ccnx/reg/self,
// /ccnx/<id>/newface, /ccnx/<id>/prefixreg.
func New(tree *table.Tree, faces *face.Table, id *identity.Identity, l *log.Logger) *Client {
	c := &Client{
		Tree:     tree,
		Faces:    faces,
		Identity: id,
		Log:      l,
		daemonID: id.IdentifierHex(),
	}
	c.registerDefaultHandlers()
	return c
}

// Register binds handler to every Interest whose name has uriPrefix as
// a prefix. uriPrefix may contain a placeholder component, either the
// literal "<id>" or 32 'X' characters, substituted with the daemon's
// identifier.
func (c *Client) Register(uriPrefix string, h Handler) {
	resolved := wire.NameFromString(uriPrefix)
	for i, comp := range resolved {
		if v := string(comp.Val); v == "<id>" || v == strings.Repeat("X", 32) {
			resolved[i] = wire.NewGenericComponent(c.daemonID)
		}
	}
	c.handlers = append(c.handlers, binding{prefix: resolved, fn: h})
}

func (c *Client) registerDefaultHandlers() {
	c.Register("/ccnx/ping", c.handlePing)
	c.Register("/ccnx/<id>/ping", c.handlePing)
	c.Register("/ccnx/reg/self", c.handleRegSelf)
	c.Register("/ccnx/<id>/newface", c.handleNewFace)
	c.Register("/ccnx/<id>/prefixreg", c.handlePrefixReg)

	// Fixed aliases under /ccnx/local/..., so a CLI tool talking to the
	// control socket doesn't need to learn the daemon's identifier
	// first (SPEC_FULL.md's ccndc addendum).
	c.Register("/ccnx/local/newface", c.handleNewFace)
	c.Register("/ccnx/local/prefixreg", c.handlePrefixReg)
}

// lookup finds the registered handler whose bound prefix is the
// longest match of it.Name, mirroring the Name-Prefix Table's own
// longest-match discipline.
func (c *Client) lookup(name wire.Name) *binding {
	var best *binding
	for i := range c.handlers {
		b := &c.handlers[i]
		if b.prefix.IsPrefix(name) && (best == nil || len(b.prefix) > len(best.prefix)) {
			best = b
		}
	}
	return best
}

// HandleInterest attempts to answer it with a registered handler. It
// returns false if no handler matched (the caller should fall through
// to ordinary forwarding).
func (c *Client) HandleInterest(it *wire.Interest) bool {
	b := c.lookup(it.Name)
	if b == nil {
		return false
	}
	payload, err := b.fn(it, len(b.prefix))
	if err != nil {
		c.Log.Debug(c, "management handler failed", "name", it.Name.String(), "err", err)
		return true
	}
	co := &wire.ContentObject{
		Name:             it.Name.Clone(),
		PublisherKeyDig:  c.Identity.Public,
		FreshnessSeconds: 1,
		Content:          payload,
	}
	co.Signature = c.Identity.Sign(wire.EncodeContentObject(co))
	raw := wire.EncodeContentObject(co)
	c.ring = append(c.ring, pendingResponse{co: co, raw: raw})
	return true
}

// Response is one signed Content Object together with its final
// encoded bytes, ready to be re-injected as though it arrived on
// face-id 0.
type Response struct {
	CO  *wire.ContentObject
	Raw []byte
}

// Drain removes and returns every response queued since the last call,
// for the main loop to feed back through process_input_message with
// face-id 0 as source (spec.md s4.7).
func (c *Client) Drain() []Response {
	if len(c.ring) == 0 {
		return nil
	}
	out := make([]Response, len(c.ring))
	for i, p := range c.ring {
		out[i] = Response{CO: p.co, Raw: p.raw}
	}
	c.ring = c.ring[:0]
	return out
}
