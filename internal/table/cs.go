package table

import (
	"math/rand"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"

	"github.com/ccnhub/ccnd/internal/log"
	"github.com/ccnhub/ccnd/internal/wire"
)

// CsFlags are the per-entry state bits (spec.md s3 "Content Object").
type CsFlags uint8

const (
	CsSlowSend CsFlags = 1 << iota
	CsStale
	CsPrecious
)

// CsEntry is one Content Store entry, grounded on spec.md s3 and
// teacher's fw/table/pit-cs_test.go baseCsEntry shape.
type CsEntry struct {
	Accession uint64
	Name      wire.Name // augmented with the synthesized digest component
	Wire      []byte    // full encoded ContentObject
	Offsets   []int     // byte offsets of each name component within Wire
	Flags     CsFlags
}

// Store is the Content Store: a hash index by object bytes (here, a
// badger in-memory DB — spec.md s4.3 "By object bytes"), a moving
// accession window + straggler side table (s4.3 "By accession"), and a
// name-ordered skip list (s4.3 "By canonical name").
//
// The badger DB is opened with WithInMemory(true): it never touches
// disk, which keeps the CS persistence non-goal (spec.md s1) intact
// while still giving the primary index real LSM-backed lookup/iteration
// semantics instead of a bare Go map.
type Store struct {
	capacity int

	db *badger.DB

	nextAccession uint64
	accessionBase uint64
	window        []*CsEntry
	straggler     map[uint64]*CsEntry

	names *SkipList

	count int
}

// NewStore opens a Content Store with the given entry capacity
// (CCND_CAP, spec.md s6).
func NewStore(capacity int, rng *rand.Rand) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{
		capacity:      capacity,
		db:            db,
		nextAccession: 1,
		accessionBase: 1,
		window:        make([]*CsEntry, 64),
		straggler:     make(map[uint64]*CsEntry),
		names:         NewSkipList(rng),
	}, nil
}

// Close releases the badger handle.
func (s *Store) Close() error { return s.db.Close() }

func bytesKey(prefixWire []byte) []byte {
	h := xxhash.Sum64(prefixWire)
	key := make([]byte, 8)
	for i := 0; i < 8; i++ {
		key[i] = byte(h >> (56 - 8*i))
	}
	return key
}

// lookupAccessionByBytes returns the accession previously stored under
// the object-bytes key, if any.
func (s *Store) lookupAccessionByBytes(key []byte) (uint64, bool) {
	var acc uint64
	found := false
	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			for _, b := range val {
				acc = acc<<8 | uint64(b)
			}
			found = true
			return nil
		})
	})
	return acc, found
}

func (s *Store) storeAccessionByBytes(key []byte, acc uint64) {
	val := make([]byte, 8)
	a := acc
	for i := 7; i >= 0; i-- {
		val[i] = byte(a)
		a >>= 8
	}
	_ = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

// byAccession returns the entry stored at accession, checking the window
// first and falling back to the straggler table (spec.md invariant 2).
func (s *Store) byAccession(acc uint64) *CsEntry {
	if acc >= s.accessionBase {
		idx := acc - s.accessionBase
		if int(idx) < len(s.window) {
			return s.window[idx]
		}
	}
	return s.straggler[acc]
}

func (s *Store) putAccession(acc uint64, ce *CsEntry) {
	if acc < s.accessionBase {
		s.straggler[acc] = ce
		return
	}
	idx := acc - s.accessionBase
	if int(idx) >= len(s.window) {
		s.growWindow(int(idx) + 1)
		// A sparse regrowth moves accessionBase past acc.
		if acc < s.accessionBase {
			s.straggler[acc] = ce
			return
		}
		idx = acc - s.accessionBase
	}
	s.window[idx] = ce
}

// growWindow resizes the accession window by 1.5x, grounded on spec.md
// s4.3 ("The window is resized (1.5x growth) ... when its density falls
// below one-eighth; sparse survivors are relocated into the straggler
// table").
func (s *Store) growWindow(minLen int) {
	newLen := len(s.window)
	for newLen < minLen {
		newLen = newLen + newLen/2 + 1
	}
	nw := make([]*CsEntry, newLen)
	live := 0
	for i, ce := range s.window {
		if ce != nil {
			nw[i] = ce
			live++
		}
	}
	if live > 0 && live < len(s.window)/8 {
		// Sparse: relocate survivors into the straggler table and shrink
		// the live window down to start at nextAccession.
		for i, ce := range s.window {
			if ce != nil {
				s.straggler[s.accessionBase+uint64(i)] = ce
			}
		}
		s.accessionBase = s.nextAccession
		nw = make([]*CsEntry, newLen)
	}
	s.window = nw
}

// Insert adds a parsed Content Object to the CS. If a duplicate arrives
// on the bytes key, it refreshes the existing (possibly stale) entry
// instead of creating a new one (spec.md s4.3 "Insertion").
func (s *Store) Insert(co *wire.ContentObject, raw []byte, freshnessSec int64) (*CsEntry, bool) {
	prefixBytes := co.Name.Bytes()
	key := bytesKey(prefixBytes)

	if acc, ok := s.lookupAccessionByBytes(key); ok {
		if existing := s.byAccession(acc); existing != nil {
			existing.Flags &^= CsStale
			existing.Wire = raw
			return existing, false
		}
	}

	acc := s.nextAccession
	s.nextAccession++

	ce := &CsEntry{Accession: acc, Name: co.Name.Clone(), Wire: raw}
	s.putAccession(acc, ce)
	s.storeAccessionByBytes(key, acc)
	s.names.Insert(ce.Name, ce)
	s.count++

	return ce, true
}

// Remove deletes ce from every index.
func (s *Store) Remove(ce *CsEntry) {
	s.names.Remove(ce.Name)
	if ce.Accession >= s.accessionBase {
		idx := ce.Accession - s.accessionBase
		if int(idx) < len(s.window) && s.window[idx] == ce {
			s.window[idx] = nil
		}
	} else {
		delete(s.straggler, ce.Accession)
	}
	s.count--
}

// Len returns the number of live CS entries.
func (s *Store) Len() int { return s.count }

// MatchRequest carries the Interest fields the matcher needs, kept
// separate from wire.Interest so table stays decoupled from the exact
// message encoding.
type MatchRequest struct {
	Name                wire.Name
	MinSuffixComponents int
	MaxSuffixComponents int
	MustBeFresh         bool
	Exclude             []wire.Component
	PublisherKeyDigest  []byte
	ChildSelector       wire.ChildSelector
}

// FindFirstMatchCandidate uses the skip list to locate the first name
// at-or-after the Interest's name prefix, then walks forward applying
// the matcher in satisfies (spec.md s4.3): freshness, suffix-component
// bounds and exclusion. PublisherKeyDigest is not compared; CsEntry
// does not record a publisher. When ChildRightmost is
// requested, all matching candidates under the prefix are collected and
// the lexicographically-greatest one returned — semantically equivalent
// to the skip-list "drill to last grandchild" walk described in spec.md,
// traded here for a simpler full scan under the matched prefix.
func (s *Store) FindFirstMatchCandidate(req MatchRequest) *CsEntry {
	var best *CsEntry
	s.names.Walk(req.Name, func(ce *CsEntry) bool {
		if !s.satisfies(ce, req) {
			return true
		}
		if req.ChildSelector == wire.ChildLeftmost {
			best = ce
			return false
		}
		if best == nil || ce.Name.Compare(best.Name) > 0 {
			best = ce
		}
		return true
	})
	return best
}

// satisfies applies req.Exclude exactly as given: a request whose
// exclusions reject every candidate gets no match, and no retry with a
// widened exclusion is made. Such a retry would hook in here.
func (s *Store) satisfies(ce *CsEntry, req MatchRequest) bool {
	if req.MustBeFresh && ce.Flags&CsStale != 0 {
		return false
	}
	suffix := len(ce.Name) - len(req.Name)
	if req.MinSuffixComponents > 0 && suffix < req.MinSuffixComponents {
		return false
	}
	if req.MaxSuffixComponents >= 0 && suffix > req.MaxSuffixComponents {
		return false
	}
	for _, ex := range req.Exclude {
		if suffix > 0 && ce.Name[len(req.Name)].Compare(ex) == 0 {
			return false
		}
	}
	return true
}

// MarkStale sets the STALE flag, e.g. on freshness expiry (spec.md
// s4.5.4 step 3).
func (ce *CsEntry) MarkStale() { ce.Flags |= CsStale }

// forEachLive visits every live entry reachable through the window or
// the straggler side-table (spec.md invariant 2: every accession
// resolves through exactly one of the two), stopping early if fn
// returns false. Window entries are visited in accession order first;
// straggler entries (relocated by growWindow, or original strays below
// accessionBase) follow in map order.
func (s *Store) forEachLive(fn func(ce *CsEntry) bool) {
	for _, ce := range s.window {
		if ce == nil {
			continue
		}
		if !fn(ce) {
			return
		}
	}
	for _, ce := range s.straggler {
		if ce == nil {
			continue
		}
		if !fn(ce) {
			return
		}
	}
}

// Evict performs one bounded pass of the capacity-driven staleness
// cascade (spec.md s4.3 "Eviction"): remove already-STALE entries, and if
// none remain, mark non-PRECIOUS entries STALE, as many as the store is
// over capacity (window entries in accession order, then stragglers), so
// the next pass may remove them. This walks both the accession window and
// the straggler side-table, since growWindow can relocate sparse
// survivors into the straggler table and those entries must stay
// reachable by the cleaner (spec.md s8 CS-capacity invariant). Processes
// at most batch entries and returns true if the store is still over
// capacity (caller should reschedule a 5ms continuation).
func (s *Store) Evict(batch int, l *log.Logger) bool {
	if s.count <= s.capacity {
		return false
	}
	removed := 0
	var toRemove []*CsEntry
	s.forEachLive(func(ce *CsEntry) bool {
		if ce.Flags&CsStale != 0 {
			toRemove = append(toRemove, ce)
			removed++
		}
		return removed < batch
	})
	for _, ce := range toRemove {
		s.Remove(ce)
	}
	if removed == 0 {
		excess := s.count - s.capacity
		if excess > batch {
			excess = batch
		}
		marked := 0
		s.forEachLive(func(ce *CsEntry) bool {
			if ce.Flags&CsPrecious == 0 && ce.Flags&CsStale == 0 {
				ce.MarkStale()
				marked++
			}
			return marked < excess
		})
		if l != nil && marked > 0 {
			l.Debug("cs", "marked stale for eviction", "count", marked)
		}
	}
	return s.count > s.capacity
}
