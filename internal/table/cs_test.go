package table

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccnhub/ccnd/internal/wire"
)

func newTestStore(t *testing.T, cap int) *Store {
	t.Helper()
	s, err := NewStore(cap, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreInsertAndMatch(t *testing.T) {
	s := newTestStore(t, 10)
	co := &wire.ContentObject{Name: wire.NameFromString("/a/b")}
	ce, fresh := s.Insert(co, []byte("raw-bytes"), 1)
	assert.True(t, fresh)
	assert.Equal(t, 1, s.Len())

	got := s.FindFirstMatchCandidate(MatchRequest{Name: wire.NameFromString("/a/b"), MaxSuffixComponents: -1})
	require.NotNil(t, got)
	assert.Same(t, ce, got)
}

func TestStoreDuplicateInsertRefreshesExisting(t *testing.T) {
	s := newTestStore(t, 10)
	co := &wire.ContentObject{Name: wire.NameFromString("/a/b")}
	first, _ := s.Insert(co, []byte("v1"), 1)
	first.MarkStale()

	second, fresh := s.Insert(co, []byte("v2"), 1)
	assert.False(t, fresh)
	assert.Same(t, first, second)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, CsFlags(0), second.Flags&CsStale)
	assert.Equal(t, []byte("v2"), second.Wire)
}

func TestStoreMustBeFreshExcludesStale(t *testing.T) {
	s := newTestStore(t, 10)
	co := &wire.ContentObject{Name: wire.NameFromString("/a/b")}
	ce, _ := s.Insert(co, []byte("raw"), 1)
	ce.MarkStale()

	got := s.FindFirstMatchCandidate(MatchRequest{Name: wire.NameFromString("/a/b"), MustBeFresh: true, MaxSuffixComponents: -1})
	assert.Nil(t, got)
}

func TestStoreEvictCascadesStaleThenRemoves(t *testing.T) {
	s := newTestStore(t, 1)
	co1 := &wire.ContentObject{Name: wire.NameFromString("/a/1")}
	co2 := &wire.ContentObject{Name: wire.NameFromString("/a/2")}
	s.Insert(co1, []byte("1"), 1)
	s.Insert(co2, []byte("2"), 1)
	assert.Equal(t, 2, s.Len())

	// First pass: nothing STALE yet, so it marks the oldest non-PRECIOUS
	// entry STALE and reports still-over-capacity.
	assert.True(t, s.Evict(64, nil))
	assert.Equal(t, 2, s.Len())

	// Second pass: the STALE entry is now removed.
	assert.False(t, s.Evict(64, nil))
	assert.Equal(t, 1, s.Len())
}

func TestStoreEvictSkipsPrecious(t *testing.T) {
	s := newTestStore(t, 0)
	co := &wire.ContentObject{Name: wire.NameFromString("/a/1")}
	ce, _ := s.Insert(co, []byte("1"), 1)
	ce.Flags |= CsPrecious

	s.Evict(64, nil)
	assert.Equal(t, CsFlags(0), ce.Flags&CsStale)
	assert.Equal(t, 1, s.Len())
}
