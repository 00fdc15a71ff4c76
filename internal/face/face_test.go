package face

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nullTransport struct{}

func (nullTransport) String() string          { return "null" }
func (nullTransport) SendFrame([]byte) error  { return nil }
func (nullTransport) RunReceive(func([]byte)) {}
func (nullTransport) Close() error            { return nil }
func (nullTransport) IsRunning() bool         { return true }
func (nullTransport) MTU() int                { return 1280 }
func (nullTransport) NInBytes() uint64        { return 0 }
func (nullTransport) NOutBytes() uint64       { return 0 }

func TestEnrollAssignsDistinctSlots(t *testing.T) {
	tbl := NewTable()
	f1, err := tbl.Enroll(FlagINET, nullTransport{})
	require.NoError(t, err)
	f2, err := tbl.Enroll(FlagINET, nullTransport{})
	require.NoError(t, err)

	assert.NotEqual(t, f1.ID, f2.ID)
	assert.Same(t, f1, tbl.Get(f1.ID))
	assert.Same(t, f2, tbl.Get(f2.ID))
}

// A faceid stops resolving once its face has been removed.
func TestGetRejectsRemovedFace(t *testing.T) {
	tbl := NewTable()
	f, err := tbl.Enroll(FlagINET, nullTransport{})
	require.NoError(t, err)
	id := f.ID

	tbl.Remove(id)
	assert.Nil(t, tbl.Get(id), "a removed faceid must not resolve")
}

// Scenario 6 (spec.md s8): a datagram face that receives one Interest
// then goes silent must be retired after two reaper rounds with no
// traffic.
func TestDatagramFaceReapedAfterTwoSilentRounds(t *testing.T) {
	tbl := NewTable()
	f, err := tbl.Enroll(FlagDgram|FlagINET, nullTransport{})
	require.NoError(t, err)
	f.Touch()

	assert.False(t, f.ReapRound(), "first silent round must not retire the face")
	assert.True(t, f.ReapRound(), "second consecutive silent round retires it")
}

func TestPermanentFaceNeverReaped(t *testing.T) {
	f := &Face{Flags: FlagDgram | FlagPermanent}
	for range 10 {
		assert.False(t, f.ReapRound())
	}
}

func TestTouchResetsReapCounter(t *testing.T) {
	tbl := NewTable()
	f, err := tbl.Enroll(FlagDgram, nullTransport{})
	require.NoError(t, err)

	assert.False(t, f.ReapRound())
	f.Touch()
	assert.False(t, f.ReapRound(), "a Touch between rounds must reset the silent-round counter")
}

func TestStreamFaceNeverReapedByInactivity(t *testing.T) {
	f := &Face{Flags: FlagLink}
	for range 5 {
		assert.False(t, f.ReapRound(), "only datagram faces are subject to the inactivity reaper")
	}
}
