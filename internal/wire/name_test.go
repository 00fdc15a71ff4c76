package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameCanonicalOrderShorterPrefixFirst(t *testing.T) {
	a := NameFromString("/a/b")
	b := NameFromString("/a/b/c")
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a.Clone()))
}

func TestNameIsPrefix(t *testing.T) {
	assert.True(t, NameFromString("/a").IsPrefix(NameFromString("/a/b")))
	assert.True(t, NameFromString("/a/b").IsPrefix(NameFromString("/a/b")))
	assert.False(t, NameFromString("/a/b").IsPrefix(NameFromString("/a")))
	assert.False(t, NameFromString("/a/x").IsPrefix(NameFromString("/a/y/z")))
}

func TestNameBytesRoundTrip(t *testing.T) {
	n := NameFromString("/a/b/c")
	raw := n.Bytes()

	typ, err := ReadTLNum(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, TypeName, typ)
}

func TestComponentCompareLengthThenValue(t *testing.T) {
	short := NewGenericComponent("a")
	long := NewGenericComponent("ab")
	assert.Equal(t, -1, short.Compare(long))
	assert.Equal(t, 1, long.Compare(short))

	assert.Equal(t, 0, NewGenericComponent("x").Compare(NewGenericComponent("x")))
}

func TestComponentStringFallsBackToHexForBinary(t *testing.T) {
	c := Component{Typ: TypeGenericComponent, Val: []byte{0x00, 0x01}}
	assert.Equal(t, "0001", c.String())
}
