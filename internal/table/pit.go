package table

import (
	"time"

	"github.com/ccnhub/ccnd/internal/sched"
	"github.com/ccnhub/ccnd/internal/wire"
)

// EntryFlags are the per-PIT-entry state bits (spec.md s3 "PIT Entry").
type EntryFlags uint8

const (
	FlagUnsent EntryFlags = 1 << iota
	FlagWait1
	FlagStuffed1
)

// Entry is one Nonce-keyed PIT record, grounded on spec.md s3 and
// teacher's fw/table/pit-cs_test.go basePitEntry/PitInRecord shapes,
// restyled onto ccnd's outbound-plan-by-tail-pop semantics (s4.5.2).
type Entry struct {
	Nonce  string // raw nonce bytes, used as the map key
	Bytes  []byte // canonical interest bytes (sans Nonce region cached separately)
	Interest *wire.Interest

	Origin uint64 // originating faceid

	ExpirationTime time.Time // spec.md s4.5.1: initial lifetime 4s
	Flags          EntryFlags

	Outbound []uint64 // ordered set of faceids still to try, popped from the tail

	prefix *PrefixEntry // owning prefix entry
	prev, next *Entry   // intrusive cyclic list linkage (design note s9)

	PropagateEvent sched.Handle // do_propagate scheduler handle, so Cancel always runs once
}

// pitList is a circular doubly-linked list with a head sentinel, grounded
// on design note s9 ("Circular doubly-linked sentinels"). Implemented as
// a plain Go struct here rather than an index-in-arena, since PIT entries
// already live behind *Entry pointers in the accompanying Table's map.
type pitList struct {
	sentinel Entry
}

func newPitList() *pitList {
	l := &pitList{}
	l.sentinel.next = &l.sentinel
	l.sentinel.prev = &l.sentinel
	return l
}

func (l *pitList) Empty() bool { return l.sentinel.next == &l.sentinel }

func (l *pitList) PushBack(e *Entry) {
	e.prev = l.sentinel.prev
	e.next = &l.sentinel
	l.sentinel.prev.next = e
	l.sentinel.prev = e
}

func (l *pitList) Remove(e *Entry) {
	if e.next == nil || e.prev == nil {
		return // not linked / already removed
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
}

// Each calls fn for every entry currently in the list, tolerating removal
// of the current entry during iteration.
func (l *pitList) Each(fn func(*Entry)) {
	cur := l.sentinel.next
	for cur != &l.sentinel {
		next := cur.next
		fn(cur)
		cur = next
	}
}

// Table is the Nonce-keyed Pending-Interest Table.
type Table struct {
	byNonce map[string]*Entry
}

// NewTable constructs an empty PIT.
func NewTable() *Table {
	return &Table{byNonce: make(map[string]*Entry)}
}

// Lookup returns the live entry for nonce, if any (spec.md s4.5.1 step 3,
// "duplicate nonce" check).
func (t *Table) Lookup(nonce []byte) (*Entry, bool) {
	e, ok := t.byNonce[string(nonce)]
	return e, ok
}

// Insert creates and links a new PIT entry for it, bound to prefix's
// propagating list (spec.md s4.5.1 step 6). Initial lifetime is 4s.
func (t *Table) Insert(it *wire.Interest, origin uint64, prefix *PrefixEntry) *Entry {
	e := &Entry{
		Nonce:          string(it.Nonce),
		Interest:       it,
		Origin:         origin,
		ExpirationTime: time.Now().Add(4 * time.Second),
		prefix:         prefix,
	}
	t.byNonce[e.Nonce] = e
	prefix.Pending.PushBack(e)
	return e
}

// Remove unlinks e from its prefix list and the nonce index, freeing its
// interest bytes (spec.md invariant 4).
func (t *Table) Remove(e *Entry) {
	delete(t.byNonce, e.Nonce)
	if e.prefix != nil {
		e.prefix.Pending.Remove(e)
	}
	e.Bytes = nil
}

// Len reports the number of live PIT entries.
func (t *Table) Len() int { return len(t.byNonce) }

// Each calls fn once for every live PIT entry. fn must not insert or
// remove entries from t during iteration.
func (t *Table) Each(fn func(*Entry)) {
	for _, e := range t.byNonce {
		fn(e)
	}
}

// Contains reports whether e is still the live entry for its nonce,
// i.e. has not been removed (and the nonce slot reused) since e was
// obtained. Used by the forwarding engine's retransmission callback to
// detect an entry satisfied/expired between scheduling and firing.
func (t *Table) Contains(e *Entry) bool {
	return t.byNonce[e.Nonce] == e
}

// RemoveFaceFromOutbound deletes faceID from e's outbound plan; used when
// a duplicate arrival on a different face should stop being retried
// there (spec.md s4.5.1 step 3).
func (e *Entry) RemoveFaceFromOutbound(faceID uint64) {
	out := e.Outbound[:0]
	for _, f := range e.Outbound {
		if f != faceID {
			out = append(out, f)
		}
	}
	e.Outbound = out
}

// Prefix returns the owning prefix entry, used to enforce "at most one
// interest per prefix stuffed per PDU" (spec.md s4.5.5).
func (e *Entry) Prefix() *PrefixEntry { return e.prefix }

// PopOutbound pops one faceid from the tail of the outbound plan, the
// most-promising (history-preferred) candidates having been placed there
// last (spec.md s4.5.1 step 5, s4.5.2).
func (e *Entry) PopOutbound() (uint64, bool) {
	if len(e.Outbound) == 0 {
		return 0, false
	}
	n := len(e.Outbound) - 1
	f := e.Outbound[n]
	e.Outbound = e.Outbound[:n]
	return f, true
}
