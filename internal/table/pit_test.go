package table

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ccnhub/ccnd/internal/wire"
)

func TestPitInsertAndLookup(t *testing.T) {
	tr := NewTree()
	pit := NewTable()
	it := &wire.Interest{Name: wire.NameFromString("/a/b"), Nonce: []byte("abcdef")}
	prefix := tr.Seek(it.Name)

	e := pit.Insert(it, 7, prefix)
	assert.Equal(t, 1, pit.Len())

	found, ok := pit.Lookup(it.Nonce)
	assert.True(t, ok)
	assert.Same(t, e, found)
	assert.True(t, pit.Contains(e))
}

func TestPitRemoveUnlinksFromPrefixAndIndex(t *testing.T) {
	tr := NewTree()
	pit := NewTable()
	it := &wire.Interest{Name: wire.NameFromString("/a/b"), Nonce: []byte("abcdef")}
	prefix := tr.Seek(it.Name)

	e := pit.Insert(it, 7, prefix)
	assert.False(t, prefix.Pending.Empty())

	pit.Remove(e)
	assert.Equal(t, 0, pit.Len())
	assert.True(t, prefix.Pending.Empty())
	assert.False(t, pit.Contains(e))

	_, ok := pit.Lookup(it.Nonce)
	assert.False(t, ok)
}

func TestPitOutboundPopsFromTail(t *testing.T) {
	e := &Entry{Outbound: []uint64{1, 2, 3}}

	f, ok := e.PopOutbound()
	assert.True(t, ok)
	assert.Equal(t, uint64(3), f)

	e.RemoveFaceFromOutbound(1)
	assert.Equal(t, []uint64{2}, e.Outbound)

	f, ok = e.PopOutbound()
	assert.True(t, ok)
	assert.Equal(t, uint64(2), f)

	_, ok = e.PopOutbound()
	assert.False(t, ok)
}

func TestPitListToleratesRemovalDuringEach(t *testing.T) {
	l := newPitList()
	a, b, c := &Entry{}, &Entry{}, &Entry{}
	l.PushBack(a)
	l.PushBack(b)
	l.PushBack(c)

	var seen []*Entry
	l.Each(func(e *Entry) {
		seen = append(seen, e)
		if e == b {
			l.Remove(b)
		}
	})
	assert.Equal(t, []*Entry{a, b, c}, seen)
	assert.True(t, l.sentinel.next == a)

	var after []*Entry
	l.Each(func(e *Entry) { after = append(after, e) })
	assert.Equal(t, []*Entry{a, c}, after)
}
