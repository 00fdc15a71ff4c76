package table

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ccnhub/ccnd/internal/wire"
)

func TestSeekCreatesAncestorChain(t *testing.T) {
	tr := NewTree()
	e := tr.Seek(wire.NameFromString("/a/b/c"))
	assert.Equal(t, "/a/b/c", e.Name.String())
	assert.NotNil(t, tr.Find(wire.NameFromString("/a/b")))
	assert.NotNil(t, tr.Find(wire.NameFromString("/a")))
	assert.Same(t, e, tr.Find(wire.NameFromString("/a/b/c")))
}

func TestLongestMatchStopsAtChildlessEntry(t *testing.T) {
	tr := NewTree()
	tr.Seek(wire.NameFromString("/a/b"))

	best := tr.LongestMatch(wire.NameFromString("/a/b/c/d"))
	assert.Equal(t, "/a/b", best.Name.String())
}

func TestLongestMatchFallsBackToRoot(t *testing.T) {
	tr := NewTree()
	best := tr.LongestMatch(wire.NameFromString("/never/registered"))
	assert.Same(t, tr.Root(), best)
}

func TestUpdateForwardToInheritsFromAncestors(t *testing.T) {
	tr := NewTree()
	parent := tr.Seek(wire.NameFromString("/a"))
	child := tr.Seek(wire.NameFromString("/a/b"))

	tr.RegisterForwarding(parent, 1, FwActive|FwChildInherit, -1)
	tr.RegisterForwarding(child, 2, FwActive, -1)
	// Not inherited: ACTIVE but not CHILD_INHERIT.
	tr.RegisterForwarding(parent, 3, FwActive, -1)

	out := tr.UpdateForwardTo(child)
	assert.ElementsMatch(t, []uint64{1, 2}, out)
}

func TestUpdateForwardToCacheInvalidatesOnGenerationBump(t *testing.T) {
	tr := NewTree()
	e := tr.Seek(wire.NameFromString("/a"))
	tr.RegisterForwarding(e, 1, FwActive, -1)
	assert.ElementsMatch(t, []uint64{1}, tr.UpdateForwardTo(e))

	tr.RegisterForwarding(e, 2, FwActive, -1)
	assert.ElementsMatch(t, []uint64{1, 2}, tr.UpdateForwardTo(e))
}

func TestPruneRemovesEmptyAncestors(t *testing.T) {
	tr := NewTree()
	leaf := tr.Seek(wire.NameFromString("/a/b/c"))
	tr.Prune(leaf)

	assert.Nil(t, tr.Find(wire.NameFromString("/a/b/c")))
	assert.Nil(t, tr.Find(wire.NameFromString("/a/b")))
	assert.Nil(t, tr.Find(wire.NameFromString("/a")))
}

func TestPruneStopsAtEntryWithForwarding(t *testing.T) {
	tr := NewTree()
	mid := tr.Seek(wire.NameFromString("/a/b"))
	leaf := tr.Seek(wire.NameFromString("/a/b/c"))
	tr.RegisterForwarding(mid, 1, FwActive, -1)

	tr.Prune(leaf)

	assert.Nil(t, tr.Find(wire.NameFromString("/a/b/c")))
	assert.NotNil(t, tr.Find(wire.NameFromString("/a/b")))
}

func TestAgeForwardingExpiresAndDropsDeadFaces(t *testing.T) {
	tr := NewTree()
	e := tr.Seek(wire.NameFromString("/a"))
	tr.RegisterForwarding(e, 1, FwActive, 5)
	tr.RegisterForwarding(e, 2, FwActive, -1) // never expires
	tr.RegisterForwarding(e, 3, FwActive, 5)

	live := map[uint64]bool{1: true, 2: true, 3: false}
	tr.AgeForwarding(tr.Root(), 5, func(id uint64) bool { return live[id] })
	assert.Len(t, e.Forwarding, 2) // face 3 dropped, 1 and 2 remain

	// REFRESHED cleared by the first pass, so a second 5s step expires face 1.
	tr.AgeForwarding(tr.Root(), 5, func(id uint64) bool { return live[id] })
	var ids []uint64
	for _, f := range e.Forwarding {
		ids = append(ids, f.FaceID)
	}
	assert.Equal(t, []uint64{2}, ids)
}

func TestWalkVisitsEveryEntry(t *testing.T) {
	tr := NewTree()
	tr.Seek(wire.NameFromString("/a/b"))
	tr.Seek(wire.NameFromString("/a/c"))

	var names []string
	tr.Walk(func(e *PrefixEntry) { names = append(names, e.Name.String()) })
	assert.ElementsMatch(t, []string{"/", "/a", "/a/b", "/a/c"}, names)
}
