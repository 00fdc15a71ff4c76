// Package table implements the three core tables driven by the
// forwarding engine: the Name-Prefix Table with FIB (this file), the
// PIT (pit.go), and the Content Store (cs.go, skiplist.go).
package table

import (
	"github.com/ccnhub/ccnd/internal/wire"
)

// PrefixEntry is one node of the name-prefix tree, grounded on spec.md
// s3 "Name-Prefix Entry" and teacher's fw/table/fib-strategy_test.go
// (baseFibStrategyEntry) shape.
type PrefixEntry struct {
	Component wire.Component // the last component of this node's prefix (root has the zero value)
	Name      wire.Name       // full prefix this node represents

	parent   *PrefixEntry // weak back-reference per design note s9
	children map[string]*PrefixEntry
	nchild   int

	Forwarding []*Forwarding // FIB records registered directly on this prefix

	forwardToCache []uint64 // cached effective outbound faceid set
	forwardToGen   uint64   // generation this cache was computed at

	Pending *pitList // propagating PIT entries under this prefix (sentinel-headed)

	Src, OSrc uint64 // most recent faceids that supplied matching content
	UsecHint  float64 // predicted response time in microseconds
}

// Forwarding is one (faceid, flags, expires) FIB record (spec.md s3).
type Forwarding struct {
	FaceID      uint64
	Flags       ForwardingFlags
	ExpiresSec  float64 // remaining lifetime in seconds; <0 means never expires
}

// ForwardingFlags mirror ccnd's per-nexthop bits.
type ForwardingFlags uint32

const (
	FwActive ForwardingFlags = 1 << iota
	FwChildInherit
	FwRefreshed
	FwCapture
)

// Tree is the root of the name-prefix tree; spec.md invariant 5 requires
// the parent relation to form a tree rooted at the empty-prefix entry.
type Tree struct {
	root *PrefixEntry
	gen  uint64 // global forward_to generation counter
}

func componentKey(c wire.Component) string {
	return string(c.Typ) + "\x00" + string(c.Val)
}

// NewTree constructs an empty name-prefix tree with its root entry.
func NewTree() *Tree {
	return &Tree{root: newPrefixEntry(wire.Component{}, wire.Name{}, nil)}
}

func newPrefixEntry(c wire.Component, name wire.Name, parent *PrefixEntry) *PrefixEntry {
	return &PrefixEntry{
		Component: c,
		Name:      name,
		parent:    parent,
		children:  make(map[string]*PrefixEntry),
		Pending:   newPitList(),
	}
}

// Seek creates the entry for prefix and every ancestor up to the root,
// linking parent pointers and incrementing parent child counts
// (spec.md s4.4 nameprefix_seek).
func (t *Tree) Seek(prefix wire.Name) *PrefixEntry {
	cur := t.root
	for i, c := range prefix {
		key := componentKey(c)
		next, ok := cur.children[key]
		if !ok {
			next = newPrefixEntry(c, prefix.Prefix(i+1).Clone(), cur)
			cur.children[key] = next
			cur.nchild++
		}
		cur = next
	}
	return cur
}

// Find looks up an existing entry for prefix without creating one.
func (t *Tree) Find(prefix wire.Name) *PrefixEntry {
	cur := t.root
	for _, c := range prefix {
		next, ok := cur.children[componentKey(c)]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// LongestMatch walks from the root increasing component count until
// either lookup misses or the entry has zero children, since no
// deeper-prefix can then exist (spec.md s4.4 nameprefix_longest_match).
func (t *Tree) LongestMatch(name wire.Name) *PrefixEntry {
	cur := t.root
	best := cur
	for _, c := range name {
		next, ok := cur.children[componentKey(c)]
		if !ok {
			break
		}
		cur = next
		best = cur
		if cur.nchild == 0 {
			break
		}
	}
	return best
}

// Root returns the tree's empty-prefix entry.
func (t *Tree) Root() *PrefixEntry { return t.root }

// Walk calls fn once for every prefix entry in the tree, root included.
func (t *Tree) Walk(fn func(*PrefixEntry)) {
	var rec func(*PrefixEntry)
	rec = func(e *PrefixEntry) {
		fn(e)
		for _, c := range e.children {
			rec(c)
		}
	}
	rec(t.root)
}

// Prune removes entry from the tree if it carries no forwarding records,
// no pending interests, and has no children, walking up ancestors that
// become empty as a result. Preserves invariant 5: a childless entry is
// never referenced as a parent once removed.
func (t *Tree) Prune(e *PrefixEntry) {
	for e != nil && e.parent != nil {
		if len(e.Forwarding) > 0 || e.nchild > 0 || !e.Pending.Empty() {
			return
		}
		parent := e.parent
		delete(parent.children, componentKey(e.Component))
		parent.nchild--
		e = parent
	}
}

// bumpGeneration advances the global forward_to generation counter; any
// change to a Forwarding list must call this (spec.md s4.4).
func (t *Tree) bumpGeneration() { t.gen++ }

// UpdateForwardTo recomputes the cached outbound set for e: the union of
// (a) ACTIVE forwardings on e and (b) ACTIVE+CHILD_INHERIT forwardings on
// every ancestor (spec.md s4.4 update_forward_to). The cache is consulted
// via a generation check and lazily recomputed on next use.
func (t *Tree) UpdateForwardTo(e *PrefixEntry) []uint64 {
	if e.forwardToCache != nil && e.forwardToGen == t.gen {
		return e.forwardToCache
	}
	seen := make(map[uint64]bool)
	var out []uint64
	add := func(fid uint64) {
		if !seen[fid] {
			seen[fid] = true
			out = append(out, fid)
		}
	}
	for _, f := range e.Forwarding {
		if f.Flags&FwActive != 0 {
			add(f.FaceID)
		}
	}
	for anc := e.parent; anc != nil; anc = anc.parent {
		for _, f := range anc.Forwarding {
			if f.Flags&FwActive != 0 && f.Flags&FwChildInherit != 0 {
				add(f.FaceID)
			}
		}
	}
	e.forwardToCache = out
	e.forwardToGen = t.gen
	return out
}

// RegisterForwarding merges a new (faceid, flags, expires) record into
// e.Forwarding or refreshes an existing one, setting its REFRESHED bit
// (spec.md s4.4).
func (t *Tree) RegisterForwarding(e *PrefixEntry, faceID uint64, flags ForwardingFlags, expiresSec float64) *Forwarding {
	for _, f := range e.Forwarding {
		if f.FaceID == faceID {
			f.Flags = flags | FwRefreshed
			f.ExpiresSec = expiresSec
			t.bumpGeneration()
			return f
		}
	}
	f := &Forwarding{FaceID: faceID, Flags: flags | FwRefreshed, ExpiresSec: expiresSec}
	e.Forwarding = append(e.Forwarding, f)
	t.bumpGeneration()
	return f
}

// RemoveForwarding deletes the forwarding record for faceID on e, if any.
func (t *Tree) RemoveForwarding(e *PrefixEntry, faceID uint64) {
	for i, f := range e.Forwarding {
		if f.FaceID == faceID {
			e.Forwarding = append(e.Forwarding[:i], e.Forwarding[i+1:]...)
			t.bumpGeneration()
			return
		}
	}
}

// AgeForwarding decrements every Forwarding record's expiry by stepSec,
// clears REFRESHED bits not renewed since the last call, and deletes
// expired or face-vanished records, advancing the generation counter on
// any change. Grounded on spec.md s4.4's "periodic aging task" (5s step).
// isFaceLive reports whether a faceid still has a live face.
func (t *Tree) AgeForwarding(e *PrefixEntry, stepSec float64, isFaceLive func(uint64) bool) {
	changed := false
	kept := e.Forwarding[:0]
	for _, f := range e.Forwarding {
		if f.Flags&FwRefreshed == 0 && f.ExpiresSec >= 0 {
			f.ExpiresSec -= stepSec
		}
		f.Flags &^= FwRefreshed
		if (f.ExpiresSec >= 0 && f.ExpiresSec <= 0) || !isFaceLive(f.FaceID) {
			changed = true
			continue
		}
		kept = append(kept, f)
	}
	e.Forwarding = kept
	for _, c := range e.children {
		t.AgeForwarding(c, stepSec, isFaceLive)
	}
	if changed {
		t.bumpGeneration()
	}
}
