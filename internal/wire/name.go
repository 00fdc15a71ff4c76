package wire

import (
	"bytes"
	"strings"
)

// TypeName is the outermost TLV type of an encoded Name.
const TypeName TLNum = 0x07

// Name is an ordered sequence of opaque Components. Canonical order is
// component-wise lexicographic with a length-then-value tiebreak
// (spec.md s3), implemented by Component.Compare.
type Name []Component

// NameFromString parses a "/a/b/c" URI into a Name. A leading/trailing
// slash is optional; empty segments are skipped.
func NameFromString(s string) Name {
	parts := strings.Split(s, "/")
	n := make(Name, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		n = append(n, NewGenericComponent(p))
	}
	return n
}

// String renders the Name in URI form.
func (n Name) String() string {
	if len(n) == 0 {
		return "/"
	}
	sb := strings.Builder{}
	for _, c := range n {
		sb.WriteByte('/')
		sb.WriteString(c.String())
	}
	return sb.String()
}

// Clone returns a deep copy of the Name.
func (n Name) Clone() Name {
	out := make(Name, len(n))
	for i, c := range n {
		out[i] = c.Clone()
	}
	return out
}

// Equal reports whether two Names have identical components.
func (n Name) Equal(o Name) bool {
	return n.Compare(o) == 0
}

// Compare implements canonical Name order: component-wise, shorter
// is-a-prefix-of longer sorts first (spec.md s3, CS invariant 3).
func (n Name) Compare(o Name) int {
	for i := 0; i < len(n) && i < len(o); i++ {
		if c := n[i].Compare(o[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(n) < len(o):
		return -1
	case len(n) > len(o):
		return 1
	default:
		return 0
	}
}

// IsPrefix reports whether n is a prefix of (or equal to) o.
func (n Name) IsPrefix(o Name) bool {
	if len(n) > len(o) {
		return false
	}
	for i := range n {
		if n[i].Compare(o[i]) != 0 {
			return false
		}
	}
	return true
}

// Prefix returns the first i components of n. A non-positive i returns
// the empty name; i >= len(n) returns n itself. The result aliases n.
func (n Name) Prefix(i int) Name {
	if i <= 0 {
		return Name{}
	}
	if i >= len(n) {
		return n
	}
	return n[:i]
}

// Append returns a new Name with c appended.
func (n Name) Append(c Component) Name {
	out := make(Name, len(n)+1)
	copy(out, n)
	out[len(n)] = c
	return out
}

// EncodingLength returns the size of the Name's TLV body (components
// only, excluding the outer Name T and L).
func (n Name) EncodingLength() int {
	total := 0
	for _, c := range n {
		total += c.EncodingLength()
	}
	return total
}

// Bytes returns the full TLV encoding of the Name, including the outer
// Name type/length header.
func (n Name) Bytes() []byte {
	body := n.EncodingLength()
	hdr := TypeName.EncodingLength() + TLNum(body).EncodingLength()
	buf := make([]byte, hdr+body)
	pos := TypeName.EncodeInto(buf)
	pos += TLNum(body).EncodeInto(buf[pos:])
	for _, c := range n {
		pos += c.EncodeInto(buf[pos:])
	}
	return buf
}

// ReadName parses a Name from a buffer holding exactly the component
// sequence (the outer Name T/L has already been consumed by the caller).
func ReadName(body []byte) (Name, error) {
	r := bytes.NewReader(body)
	var n Name
	for r.Len() > 0 {
		c, err := ReadComponent(r)
		if err != nil {
			return nil, err
		}
		n = append(n, c)
	}
	return n, nil
}
