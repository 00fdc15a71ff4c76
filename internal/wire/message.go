package wire

import (
	"bytes"
	"crypto/rand"
)

// Outermost message type tags (spec.md s6: "Three kinds at the outermost
// tag: Interest, ContentObject, Inject").
const (
	TypeInterest      TLNum = 0x01
	TypeContentObject TLNum = 0x02
	TypeInject        TLNum = 0x03
	TypePDU           TLNum = 0x7f // CCNProtocolDataUnit framing wrapper
)

// Inner field tags.
const (
	fieldNonce        TLNum = 0x10
	fieldScope        TLNum = 0x11
	fieldLifetimeUs   TLNum = 0x12
	fieldMinSuffix    TLNum = 0x13
	fieldMaxSuffix    TLNum = 0x14
	fieldChildSel     TLNum = 0x15
	fieldMustBeFresh  TLNum = 0x16
	fieldExclude      TLNum = 0x17
	fieldAnswerOrigin TLNum = 0x18

	fieldSignedInfo  TLNum = 0x20
	fieldPubKeyDigst TLNum = 0x21
	fieldFreshness   TLNum = 0x22
	fieldContent     TLNum = 0x23
	fieldSignature   TLNum = 0x24

	fieldSOType  TLNum = 0x30
	fieldAddress TLNum = 0x31
)

// MaxContentObjectSize is the largest encoded ContentObject accepted, per
// spec.md s4.5.4 ("reject oversize (>64 KiB-36)").
const MaxContentObjectSize = 64*1024 - 36

// ChildSelector chooses which matching child the CS walk prefers.
type ChildSelector int

const (
	ChildLeftmost ChildSelector = iota
	ChildRightmost
)

// Interest is the parsed form of an Interest message.
type Interest struct {
	Name                Name
	Nonce               []byte // synthesized if absent on arrival, spec.md s4.5.1 step 6
	Scope               int    // 0 = same-face, 1 = local-host, 2+ = wide; default 3
	LifetimeUs          uint64 // default populated by caller (PIT uses 4s default)
	MinSuffixComponents int
	MaxSuffixComponents int
	ChildSelector       ChildSelector
	MustBeFresh         bool
	Exclude             []Component
	AnswerFromCS        bool // AnswerOriginKind: CS lookup permitted

	raw []byte // canonical encoded bytes, sans-Nonce region cached lazily
}

// ContentObject is the parsed form of a Content Object.
type ContentObject struct {
	Name             Name // augmented with the synthesized digest component once processed
	PublisherKeyDig  []byte
	FreshnessSeconds int64 // -1 means absent
	Content          []byte
	Signature        []byte

	raw []byte
}

// Inject carries a raw send request accepted only on GG+LOCAL faces
// (spec.md s6).
type Inject struct {
	SOType  byte
	Address []byte
	Interest *Interest
}

// NewNonce synthesizes a 6-byte random nonce (spec.md s4.5.1 step 6).
func NewNonce() []byte {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return b
}

// EncodeInterest serializes an Interest to its wire form.
func EncodeInterest(it *Interest) []byte {
	var body bytes.Buffer
	body.Write(it.Name.Bytes())
	writeOpaqueField(&body, fieldNonce, it.Nonce)
	if it.Scope != 3 {
		writeVarintField(&body, fieldScope, uint64(it.Scope))
	}
	if it.LifetimeUs != 0 {
		writeVarintField(&body, fieldLifetimeUs, it.LifetimeUs)
	}
	if it.MinSuffixComponents != 0 {
		writeVarintField(&body, fieldMinSuffix, uint64(it.MinSuffixComponents))
	}
	if it.MaxSuffixComponents != 0 {
		writeVarintField(&body, fieldMaxSuffix, uint64(it.MaxSuffixComponents))
	}
	if it.ChildSelector != ChildLeftmost {
		writeVarintField(&body, fieldChildSel, uint64(it.ChildSelector))
	}
	if it.MustBeFresh {
		writeVarintField(&body, fieldMustBeFresh, 1)
	}
	for _, e := range it.Exclude {
		var eb bytes.Buffer
		eb.Write(mustEncodeComponent(e))
		writeOpaqueField(&body, fieldExclude, eb.Bytes())
	}
	if it.AnswerFromCS {
		writeVarintField(&body, fieldAnswerOrigin, 1)
	}
	return wrapTLV(TypeInterest, body.Bytes())
}

func mustEncodeComponent(c Component) []byte {
	buf := make([]byte, c.EncodingLength())
	c.EncodeInto(buf)
	return buf
}

// DecodeInterest parses an Interest from its TLV body (header consumed).
func DecodeInterest(body []byte) (*Interest, error) {
	it := &Interest{Scope: 3, MaxSuffixComponents: -1}
	r := bytes.NewReader(body)
	name, err := readInnerName(r)
	if err != nil {
		return nil, err
	}
	it.Name = name
	for r.Len() > 0 {
		typ, val, err := readTLField(r)
		if err != nil {
			return nil, err
		}
		switch typ {
		case fieldNonce:
			it.Nonce = val
		case fieldScope:
			it.Scope = int(decodeVarint(val))
		case fieldLifetimeUs:
			it.LifetimeUs = decodeVarint(val)
		case fieldMinSuffix:
			it.MinSuffixComponents = int(decodeVarint(val))
		case fieldMaxSuffix:
			it.MaxSuffixComponents = int(decodeVarint(val))
		case fieldChildSel:
			it.ChildSelector = ChildSelector(decodeVarint(val))
		case fieldMustBeFresh:
			it.MustBeFresh = decodeVarint(val) != 0
		case fieldExclude:
			c, err := ReadComponent(bytes.NewReader(val))
			if err != nil {
				return nil, err
			}
			it.Exclude = append(it.Exclude, c)
		case fieldAnswerOrigin:
			it.AnswerFromCS = decodeVarint(val) != 0
		}
	}
	if len(it.Nonce) == 0 {
		it.Nonce = NewNonce()
	}
	return it, nil
}

// EncodeContentObject serializes a ContentObject to its wire form.
func EncodeContentObject(co *ContentObject) []byte {
	var body bytes.Buffer
	body.Write(co.Name.Bytes())

	var si bytes.Buffer
	if len(co.PublisherKeyDig) > 0 {
		writeOpaqueField(&si, fieldPubKeyDigst, co.PublisherKeyDig)
	}
	if co.FreshnessSeconds >= 0 {
		writeVarintField(&si, fieldFreshness, uint64(co.FreshnessSeconds))
	}
	writeOpaqueField(&body, fieldSignedInfo, si.Bytes())
	writeOpaqueField(&body, fieldContent, co.Content)
	writeOpaqueField(&body, fieldSignature, co.Signature)
	return wrapTLV(TypeContentObject, body.Bytes())
}

// DecodeContentObject parses a ContentObject from its TLV body.
func DecodeContentObject(body []byte) (*ContentObject, error) {
	if len(body) > MaxContentObjectSize {
		return nil, ErrFormat{Msg: "content object exceeds maximum size"}
	}
	co := &ContentObject{FreshnessSeconds: -1}
	r := bytes.NewReader(body)
	name, err := readInnerName(r)
	if err != nil {
		return nil, err
	}
	co.Name = name
	for r.Len() > 0 {
		typ, val, err := readTLField(r)
		if err != nil {
			return nil, err
		}
		switch typ {
		case fieldSignedInfo:
			sr := bytes.NewReader(val)
			for sr.Len() > 0 {
				styp, sval, err := readTLField(sr)
				if err != nil {
					return nil, err
				}
				switch styp {
				case fieldPubKeyDigst:
					co.PublisherKeyDig = sval
				case fieldFreshness:
					co.FreshnessSeconds = int64(decodeVarint(sval))
				}
			}
		case fieldContent:
			co.Content = val
		case fieldSignature:
			co.Signature = val
		}
	}
	return co, nil
}

// EncodeInject serializes an Inject message.
func EncodeInject(inj *Inject) []byte {
	var body bytes.Buffer
	body.WriteByte(inj.SOType)
	writeOpaqueField(&body, fieldAddress, inj.Address)
	body.Write(EncodeInterest(inj.Interest))
	return wrapTLV(TypeInject, body.Bytes())
}

// DecodeInject parses an Inject message from its TLV body.
func DecodeInject(body []byte) (*Inject, error) {
	if len(body) < 1 {
		return nil, ErrFormat{Msg: "inject: empty body"}
	}
	inj := &Inject{SOType: body[0]}
	r := bytes.NewReader(body[1:])
	typ, val, err := readTLField(r)
	if err != nil || typ != fieldAddress {
		return nil, ErrFormat{Msg: "inject: missing address"}
	}
	inj.Address = val

	rest := body[1+tlFieldLen(typ, val):]
	msgTyp, msgBody, err := ReadOuterMessage(rest)
	if err != nil || msgTyp != TypeInterest {
		return nil, ErrFormat{Msg: "inject: expected nested interest"}
	}
	it, err := DecodeInterest(msgBody)
	if err != nil {
		return nil, err
	}
	inj.Interest = it
	return inj, nil
}

func tlFieldLen(typ TLNum, val []byte) int {
	return typ.EncodingLength() + TLNum(len(val)).EncodingLength() + len(val)
}

// ReadOuterMessage reads the outermost TL header from data and returns the
// message type and its TLV body slice.
func ReadOuterMessage(data []byte) (TLNum, []byte, error) {
	r := bytes.NewReader(data)
	typ, err := ReadTLNum(r)
	if err != nil {
		return 0, nil, err
	}
	ln, err := ReadTLNum(r)
	if err != nil {
		return 0, nil, err
	}
	start := len(data) - r.Len()
	end := start + int(ln)
	if end > len(data) {
		return 0, nil, ErrTruncated
	}
	return typ, data[start:end], nil
}

func wrapTLV(typ TLNum, body []byte) []byte {
	hdr := typ.EncodingLength() + TLNum(len(body)).EncodingLength()
	out := make([]byte, hdr+len(body))
	pos := typ.EncodeInto(out)
	pos += TLNum(len(body)).EncodeInto(out[pos:])
	copy(out[pos:], body)
	return out
}

func writeOpaqueField(buf *bytes.Buffer, typ TLNum, val []byte) {
	buf.Write(wrapTLV(typ, val))
}

func writeVarintField(buf *bytes.Buffer, typ TLNum, v uint64) {
	b := make([]byte, 8)
	n := 0
	for n < 8 {
		b[n] = byte(v >> (56 - 8*n))
		n++
	}
	// Trim leading zero bytes but keep at least one.
	start := 0
	for start < 7 && b[start] == 0 {
		start++
	}
	writeOpaqueField(buf, typ, b[start:])
}

func decodeVarint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func readTLField(r *bytes.Reader) (TLNum, []byte, error) {
	typ, err := ReadTLNum(r)
	if err != nil {
		return 0, nil, err
	}
	ln, err := ReadTLNum(r)
	if err != nil {
		return 0, nil, err
	}
	val := make([]byte, ln)
	if n, err := r.Read(val); err != nil || n != int(ln) {
		if ln == 0 {
			return typ, val, nil
		}
		return 0, nil, ErrTruncated
	}
	return typ, val, nil
}

func readInnerName(r *bytes.Reader) (Name, error) {
	typ, err := ReadTLNum(r)
	if err != nil {
		return nil, err
	}
	if typ != TypeName {
		return nil, ErrFormat{Msg: "expected Name as first field"}
	}
	ln, err := ReadTLNum(r)
	if err != nil {
		return nil, err
	}
	body := make([]byte, ln)
	if n, err := r.Read(body); err != nil || n != int(ln) {
		return nil, ErrTruncated
	}
	return ReadName(body)
}
