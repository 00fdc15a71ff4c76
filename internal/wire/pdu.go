package wire

// ErrNestedPDU is returned when a PDU wrapper is found inside another PDU
// wrapper; spec.md s4.6/s8 bound recursion depth to exactly 1.
var ErrNestedPDU = ErrFormat{Msg: "wire: doubly-nested CCNProtocolDataUnit rejected"}

// WrapPDU frames one or more already-encoded messages in a
// CCNProtocolDataUnit, used on stream + LINK faces (spec.md s6).
func WrapPDU(messages ...[]byte) []byte {
	total := 0
	for _, m := range messages {
		total += len(m)
	}
	body := make([]byte, 0, total)
	for _, m := range messages {
		body = append(body, m...)
	}
	return wrapTLV(TypePDU, body)
}

// Message is one decoded outer message together with its type tag.
type Message struct {
	Type TLNum
	Body []byte
}

// ReadMessages splits data into a sequence of outer messages. If data is a
// PDU wrapper, it is unwrapped exactly once (depth capped at 1) and its
// contents are split recursively with depth=1, so a nested PDU errors.
func ReadMessages(data []byte) ([]Message, error) {
	return readMessages(data, 0)
}

func readMessages(data []byte, depth int) ([]Message, error) {
	var out []Message
	for len(data) > 0 {
		typ, body, err := ReadOuterMessage(data)
		if err != nil {
			return nil, err
		}
		consumed := encodedLen(typ, body)
		if typ == TypePDU {
			if depth >= 1 {
				return nil, ErrNestedPDU
			}
			inner, err := readMessages(body, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
		} else {
			out = append(out, Message{Type: typ, Body: body})
		}
		data = data[consumed:]
	}
	return out, nil
}

func encodedLen(typ TLNum, body []byte) int {
	return typ.EncodingLength() + TLNum(len(body)).EncodingLength() + len(body)
}
