package table

import (
	"math/rand"

	"github.com/ccnhub/ccnd/internal/wire"
)

// MaxSkipLevels bounds the skip list height (spec.md s3 "skiplinks").
const MaxSkipLevels = 30

// skipNode is a probabilistic skip-list node ordered by canonical Name.
type skipNode struct {
	name wire.Name
	ce   *CsEntry
	next []*skipNode
}

// SkipList keeps CS entries in canonical name order for prefix/range
// lookup (spec.md s4.3 "By canonical name"). Level for a new entry is
// chosen geometrically, stopping with probability 3/4 at each level
// (equivalently: continuing up with probability 1/4).
type SkipList struct {
	head  *skipNode // sentinel with no name
	level int
	rng   *rand.Rand
}

// NewSkipList constructs an empty skip list. rng is the shared PRNG also
// used for nonces and propagation jitter (design note s9), so tests can
// pass a seeded source for reproducibility.
func NewSkipList(rng *rand.Rand) *SkipList {
	return &SkipList{
		head:  &skipNode{next: make([]*skipNode, MaxSkipLevels)},
		level: 1,
		rng:   rng,
	}
}

func (s *SkipList) randomLevel() int {
	lvl := 1
	for lvl < MaxSkipLevels && s.rng.Intn(4) == 0 { // continue w.p. 1/4
		lvl++
	}
	return lvl
}

// findPredecessors fills update with, for every level, the last node whose
// name sorts strictly before target.
func (s *SkipList) findPredecessors(target wire.Name, update []*skipNode) *skipNode {
	cur := s.head
	for l := s.level - 1; l >= 0; l-- {
		for cur.next[l] != nil && cur.next[l].name.Compare(target) < 0 {
			cur = cur.next[l]
		}
		update[l] = cur
	}
	return cur
}

// Insert adds ce under its canonical name, maintaining order (spec.md
// invariant 2/3).
func (s *SkipList) Insert(name wire.Name, ce *CsEntry) {
	update := make([]*skipNode, MaxSkipLevels)
	s.findPredecessors(name, update)

	lvl := s.randomLevel()
	if lvl > s.level {
		for l := s.level; l < lvl; l++ {
			update[l] = s.head
		}
		s.level = lvl
	}

	n := &skipNode{name: name, ce: ce, next: make([]*skipNode, lvl)}
	for l := 0; l < lvl; l++ {
		n.next[l] = update[l].next[l]
		update[l].next[l] = n
	}
}

// Remove deletes the entry stored under name, if present.
func (s *SkipList) Remove(name wire.Name) {
	update := make([]*skipNode, MaxSkipLevels)
	s.findPredecessors(name, update)
	target := update[0].next[0]
	if target == nil || !target.name.Equal(name) {
		return
	}
	for l := 0; l < s.level; l++ {
		if update[l].next[l] != target {
			continue
		}
		update[l].next[l] = target.next[l]
	}
	for s.level > 1 && s.head.next[s.level-1] == nil {
		s.level--
	}
}

// FirstAtOrAfter returns the first entry whose name is >= prefix, the
// entry point for find_first_match_candidate (spec.md s4.3).
func (s *SkipList) FirstAtOrAfter(prefix wire.Name) *CsEntry {
	cur := s.head
	for l := s.level - 1; l >= 0; l-- {
		for cur.next[l] != nil && cur.next[l].name.Compare(prefix) < 0 {
			cur = cur.next[l]
		}
	}
	if cur.next[0] == nil {
		return nil
	}
	return cur.next[0].ce
}

// Walk calls fn for every entry at or after prefix, in name order, until
// fn returns false or the names no longer share prefix as a prefix.
func (s *SkipList) Walk(prefix wire.Name, fn func(*CsEntry) bool) {
	cur := s.head
	for l := s.level - 1; l >= 0; l-- {
		for cur.next[l] != nil && cur.next[l].name.Compare(prefix) < 0 {
			cur = cur.next[l]
		}
	}
	for n := cur.next[0]; n != nil; n = n.next[0] {
		if !prefix.IsPrefix(n.name) {
			return
		}
		if !fn(n.ce) {
			return
		}
	}
}
