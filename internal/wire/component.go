package wire

import (
	"bytes"
	"encoding/hex"
	"strconv"
	"strings"
)

// Component type numbers, following the same convention as a generic
// NDN/CCNx name component: a bare type tag followed by opaque bytes.
const (
	TypeGenericComponent TLNum = 0x08
	TypeImplicitDigest    TLNum = 0x01
)

// Component is one opaque, typed segment of a Name.
type Component struct {
	Typ TLNum
	Val []byte
}

// NewGenericComponent builds a generic component from a UTF-8 string.
func NewGenericComponent(s string) Component {
	return Component{Typ: TypeGenericComponent, Val: []byte(s)}
}

// NewDigestComponent builds an implicit-digest component (the synthesized
// final component of an augmented Content Object name, spec.md s3).
func NewDigestComponent(digest [32]byte) Component {
	return Component{Typ: TypeImplicitDigest, Val: digest[:]}
}

// EncodingLength returns the encoded TLV size of the component.
func (c Component) EncodingLength() int {
	return c.Typ.EncodingLength() + TLNum(len(c.Val)).EncodingLength() + len(c.Val)
}

// EncodeInto serializes the component into buf, returning bytes written.
func (c Component) EncodeInto(buf []byte) int {
	pos := c.Typ.EncodeInto(buf)
	pos += TLNum(len(c.Val)).EncodeInto(buf[pos:])
	pos += copy(buf[pos:], c.Val)
	return pos
}

// Clone returns a deep copy of the component.
func (c Component) Clone() Component {
	return Component{Typ: c.Typ, Val: bytes.Clone(c.Val)}
}

// Compare implements canonical component ordering: length-then-value
// lexicographic on (Typ, Val), matching spec.md s3's wire tiebreak.
func (c Component) Compare(o Component) int {
	if c.Typ != o.Typ {
		if c.Typ < o.Typ {
			return -1
		}
		return 1
	}
	if len(c.Val) != len(o.Val) {
		if len(c.Val) < len(o.Val) {
			return -1
		}
		return 1
	}
	return bytes.Compare(c.Val, o.Val)
}

// String renders the component in a human-readable "type=value" form,
// falling back to hex for non-printable components.
func (c Component) String() string {
	sb := strings.Builder{}
	if c.Typ != TypeGenericComponent {
		sb.WriteString(strconv.FormatUint(uint64(c.Typ), 10))
		sb.WriteRune('=')
	}
	if isPrintable(c.Val) {
		sb.Write(c.Val)
	} else {
		sb.WriteString(hex.EncodeToString(c.Val))
	}
	return sb.String()
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c >= 0x7f {
			return false
		}
	}
	return true
}

// ReadComponent reads one Component (type, length, value) from r.
func ReadComponent(r *bytes.Reader) (Component, error) {
	typ, err := ReadTLNum(r)
	if err != nil {
		return Component{}, err
	}
	ln, err := ReadTLNum(r)
	if err != nil {
		return Component{}, err
	}
	val := make([]byte, ln)
	if n, err := r.Read(val); err != nil || n != int(ln) {
		return Component{}, ErrTruncated
	}
	return Component{Typ: typ, Val: val}, nil
}
