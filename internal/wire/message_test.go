package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterestRoundTrip(t *testing.T) {
	it := &Interest{
		Name:                NameFromString("/a/b/c"),
		Nonce:               []byte("abcdef"),
		Scope:               2,
		LifetimeUs:          4_000_000,
		MinSuffixComponents: 1,
		MaxSuffixComponents: 3,
		ChildSelector:       ChildRightmost,
		MustBeFresh:         true,
		AnswerFromCS:        true,
	}

	typ, body, err := ReadOuterMessage(EncodeInterest(it))
	require.NoError(t, err)
	assert.Equal(t, TypeInterest, typ)

	got, err := DecodeInterest(body)
	require.NoError(t, err)
	assert.True(t, got.Name.Equal(it.Name))
	assert.Equal(t, it.Nonce, got.Nonce)
	assert.Equal(t, it.Scope, got.Scope)
	assert.Equal(t, it.LifetimeUs, got.LifetimeUs)
	assert.Equal(t, it.MinSuffixComponents, got.MinSuffixComponents)
	assert.Equal(t, it.MaxSuffixComponents, got.MaxSuffixComponents)
	assert.Equal(t, it.ChildSelector, got.ChildSelector)
	assert.True(t, got.MustBeFresh)
	assert.True(t, got.AnswerFromCS)
}

func TestInterestDecodeSynthesizesMissingNonce(t *testing.T) {
	it := &Interest{Name: NameFromString("/a")}
	_, body, err := ReadOuterMessage(EncodeInterest(it))
	require.NoError(t, err)

	got, err := DecodeInterest(body)
	require.NoError(t, err)
	assert.Len(t, got.Nonce, 6)
}

func TestInterestDefaultsScopeAndMaxSuffix(t *testing.T) {
	// Scope 3 and MaxSuffixComponents 0 are left off the wire, so the
	// decoder must fill in its defaults.
	it := &Interest{Name: NameFromString("/a"), Nonce: []byte("abcdef"), Scope: 3}
	_, body, err := ReadOuterMessage(EncodeInterest(it))
	require.NoError(t, err)

	got, err := DecodeInterest(body)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Scope)
	assert.Equal(t, -1, got.MaxSuffixComponents)
}

func TestContentObjectRoundTrip(t *testing.T) {
	co := &ContentObject{
		Name:             NameFromString("/a/b"),
		PublisherKeyDig:  []byte("digest-bytes"),
		FreshnessSeconds: 30,
		Content:          []byte("hello world"),
		Signature:        []byte("sig-bytes"),
	}

	typ, body, err := ReadOuterMessage(EncodeContentObject(co))
	require.NoError(t, err)
	assert.Equal(t, TypeContentObject, typ)

	got, err := DecodeContentObject(body)
	require.NoError(t, err)
	assert.True(t, got.Name.Equal(co.Name))
	assert.Equal(t, co.PublisherKeyDig, got.PublisherKeyDig)
	assert.Equal(t, co.FreshnessSeconds, got.FreshnessSeconds)
	assert.Equal(t, co.Content, got.Content)
	assert.Equal(t, co.Signature, got.Signature)
}

func TestContentObjectOversizeRejected(t *testing.T) {
	co := &ContentObject{Name: NameFromString("/a"), FreshnessSeconds: -1, Content: make([]byte, MaxContentObjectSize+1)}
	raw := EncodeContentObject(co)
	_, body, err := ReadOuterMessage(raw)
	require.NoError(t, err)

	_, err = DecodeContentObject(body)
	assert.Error(t, err)
}

func TestInjectRoundTrip(t *testing.T) {
	inj := &Inject{
		SOType:  1,
		Address: []byte{127, 0, 0, 1},
		Interest: &Interest{
			Name:  NameFromString("/a"),
			Nonce: []byte("abcdef"),
		},
	}

	typ, body, err := ReadOuterMessage(EncodeInject(inj))
	require.NoError(t, err)
	assert.Equal(t, TypeInject, typ)

	got, err := DecodeInject(body)
	require.NoError(t, err)
	assert.Equal(t, inj.SOType, got.SOType)
	assert.Equal(t, inj.Address, got.Address)
	assert.True(t, got.Interest.Name.Equal(inj.Interest.Name))
}

func TestReadMessagesUnwrapsOnePDULayer(t *testing.T) {
	it := &Interest{Name: NameFromString("/a"), Nonce: []byte("abcdef")}
	co := &ContentObject{Name: NameFromString("/b"), FreshnessSeconds: -1}

	frame := WrapPDU(EncodeInterest(it), EncodeContentObject(co))
	msgs, err := ReadMessages(frame)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, TypeInterest, msgs[0].Type)
	assert.Equal(t, TypeContentObject, msgs[1].Type)
}

func TestReadMessagesRejectsDoublyNestedPDU(t *testing.T) {
	it := &Interest{Name: NameFromString("/a"), Nonce: []byte("abcdef")}
	inner := WrapPDU(EncodeInterest(it))
	outer := WrapPDU(inner)

	_, err := ReadMessages(outer)
	assert.ErrorIs(t, err, ErrNestedPDU)
}
