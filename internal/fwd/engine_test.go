package fwd

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccnhub/ccnd/internal/face"
	"github.com/ccnhub/ccnd/internal/log"
	"github.com/ccnhub/ccnd/internal/sched"
	"github.com/ccnhub/ccnd/internal/table"
	"github.com/ccnhub/ccnd/internal/wire"
)

// memTransport is a minimal in-memory face.Transport that records every
// frame handed to SendFrame, enough to observe the engine's forwarding
// decisions without a real socket (spec.md s8 "Scenarios").
type memTransport struct {
	sent [][]byte
}

func (m *memTransport) String() string          { return "mem" }
func (m *memTransport) SendFrame(f []byte) error { m.sent = append(m.sent, f); return nil }
func (m *memTransport) RunReceive(func([]byte))  {}
func (m *memTransport) Close() error             { return nil }
func (m *memTransport) IsRunning() bool          { return true }
func (m *memTransport) MTU() int                 { return 1280 }
func (m *memTransport) NInBytes() uint64         { return 0 }
func (m *memTransport) NOutBytes() uint64        { return 0 }

func newTestEngine(t *testing.T) (*Engine, *face.Table) {
	t.Helper()
	faces := face.NewTable()
	e := &Engine{
		Faces: faces,
		Tree:  table.NewTree(),
		Pit:   table.NewTable(),
		Sched: sched.New(),
		Log:   log.New(log.LevelError),
		Rng:   rand.New(rand.NewSource(1)),
		MTU:   0,
	}
	cs, err := table.NewStore(1000, e.Rng)
	require.NoError(t, err)
	e.Cs = cs
	t.Cleanup(func() { _ = cs.Close() })
	return e, faces
}

func enrollFace(t *testing.T, faces *face.Table, flags face.Flags) (*face.Face, *memTransport) {
	t.Helper()
	tr := &memTransport{}
	f, err := faces.Enroll(flags, tr)
	require.NoError(t, err)
	return f, tr
}

func interestFor(name string) *wire.Interest {
	return &wire.Interest{
		Name:                wire.NameFromString(name),
		Nonce:               wire.NewNonce(),
		Scope:               3,
		MaxSuffixComponents: -1,
		AnswerFromCS:        true,
	}
}

func contentFor(name string, payload string) *wire.ContentObject {
	return &wire.ContentObject{
		Name:             wire.NameFromString(name),
		Content:          []byte(payload),
		FreshnessSeconds: -1,
	}
}

// Scenario 1: Interest -> CS hit (spec.md s8).
func TestScenario_InterestCSHit(t *testing.T) {
	e, faces := newTestEngine(t)
	f1, _ := enrollFace(t, faces, face.FlagINET)
	f2, _ := enrollFace(t, faces, face.FlagINET)

	co := contentFor("/a/b", "hello")
	raw := wire.EncodeContentObject(co)
	e.OnContent(f1.ID, co, raw)

	it := interestFor("/a")
	e.OnInterest(f2.ID, it)

	sent := f2.Queue(face.ClassSlow).DrainBurst(time.Now().Add(time.Second), func([]byte) error { return nil })
	assert.Equal(t, 1, sent, "the CS hit must be enqueued onto the requesting face's send queue")
	assert.Equal(t, 0, e.Pit.Len(), "no PIT entry should be created on a CS hit")
}

// Scenario 2: Interest aggregation (spec.md s8). Two distinct faces send
// equivalent Interests under the same prefix; content arriving later
// satisfies both, one PIT entry per nonce having existed for them.
func TestScenario_InterestAggregation(t *testing.T) {
	e, faces := newTestEngine(t)
	f2, _ := enrollFace(t, faces, face.FlagINET)
	f3, _ := enrollFace(t, faces, face.FlagINET)
	f4, _ := enrollFace(t, faces, face.FlagINET)
	fib, _ := enrollFace(t, faces, face.FlagINET)

	prefix := e.Tree.Seek(wire.NameFromString("/x/y"))
	e.Tree.RegisterForwarding(prefix, fib.ID, table.FwActive, -1)

	it2 := interestFor("/x/y")
	it2.AnswerFromCS = false
	e.OnInterest(f2.ID, it2)

	it3 := interestFor("/x/y")
	it3.AnswerFromCS = false
	e.OnInterest(f3.ID, it3)

	require.Equal(t, 2, e.Pit.Len(), "aggregation still keeps one PIT entry per nonce")

	co := contentFor("/x/y", "payload")
	raw := wire.EncodeContentObject(co)
	e.OnContent(f4.ID, co, raw)

	assert.Equal(t, 0, e.Pit.Len(), "both PIT entries consumed by the single matching content")
	assert.Equal(t, 0, faces.Get(f2.ID).PendingInterests)
	assert.Equal(t, 0, faces.Get(f3.ID).PendingInterests)
}

// Scenario 3: duplicate nonce (spec.md s8).
func TestScenario_DuplicateNonce(t *testing.T) {
	e, faces := newTestEngine(t)
	f2, _ := enrollFace(t, faces, face.FlagINET)
	f3, _ := enrollFace(t, faces, face.FlagINET)
	fib, _ := enrollFace(t, faces, face.FlagINET)

	prefix := e.Tree.Seek(wire.NameFromString("/x/y"))
	e.Tree.RegisterForwarding(prefix, fib.ID, table.FwActive, -1)

	nonce := []byte("fixedN")
	it := interestFor("/x/y")
	it.Nonce = nonce
	it.AnswerFromCS = false
	e.OnInterest(f2.ID, it)

	entry, ok := e.Pit.Lookup(nonce)
	require.True(t, ok)
	before := append([]uint64(nil), entry.Outbound...)

	dup := interestFor("/x/y")
	dup.Nonce = nonce
	dup.AnswerFromCS = false
	e.OnInterest(f3.ID, dup)

	assert.Equal(t, 1, e.Pit.Len(), "duplicate nonce must not create a second PIT entry")
	assert.NotContains(t, entry.Outbound, f3.ID)
	assert.LessOrEqual(t, len(entry.Outbound), len(before))
}

// Scenario 4: FIB inheritance (spec.md s8). A CHILD_INHERIT registration
// on /a must appear in the outbound set computed for /a/b/c even though
// that exact prefix has no direct forwarding record.
func TestScenario_FIBInheritance(t *testing.T) {
	e, faces := newTestEngine(t)
	f5, _ := enrollFace(t, faces, face.FlagINET)

	a := e.Tree.Seek(wire.NameFromString("/a"))
	e.Tree.RegisterForwarding(a, f5.ID, table.FwActive|table.FwChildInherit, -1)

	abc := e.Tree.Seek(wire.NameFromString("/a/b/c"))
	out := e.Tree.UpdateForwardTo(abc)

	assert.Contains(t, out, f5.ID)
}

// Scenario 5: stale content refresh (spec.md s8). A duplicate arrival on
// the bytes key clears STALE on the existing entry rather than inserting
// a second one.
func TestScenario_StaleContentRefresh(t *testing.T) {
	e, _ := newTestEngine(t)
	co := contentFor("/a/b", "v1")
	raw := wire.EncodeContentObject(co)

	ce, isNew := e.Cs.Insert(co, raw, 1)
	require.True(t, isNew)
	ce.MarkStale()
	assert.True(t, ce.Flags&table.CsStale != 0)

	co2 := contentFor("/a/b", "v1")
	raw2 := wire.EncodeContentObject(co2)
	ce2, isNew2 := e.Cs.Insert(co2, raw2, 1)

	assert.False(t, isNew2, "re-arrival of the same bytes refreshes rather than duplicates")
	assert.Same(t, ce, ce2)
	assert.False(t, ce2.Flags&table.CsStale != 0, "refresh clears STALE")
	assert.Equal(t, 1, e.Cs.Len())
}
