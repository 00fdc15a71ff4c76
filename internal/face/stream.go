package face

import (
	"io"

	"github.com/ccnhub/ccnd/internal/wire"
)

// readTLVStream is the streaming skeleton decoder for stream faces
// (spec.md s4.6 "a streaming skeleton decoder"): it accumulates bytes
// from r and, whenever a complete outer TLV message is available,
// delivers its raw bytes to onFrame and advances past it.
func readTLVStream(r io.Reader, nInBytes *uint64, onFrame func([]byte)) {
	buf := make([]byte, 0, 8192)
	tmp := make([]byte, 8192)
	for {
		n, err := r.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			*nInBytes += uint64(n)
			for {
				typ, body, perr := wire.ReadOuterMessage(buf)
				if perr != nil {
					break // incomplete message, need more bytes
				}
				frameLen := headerLen(typ, body) + len(body)
				frame := make([]byte, frameLen)
				copy(frame, buf[:frameLen])
				onFrame(frame)
				buf = buf[frameLen:]
			}
		}
		if err != nil {
			return
		}
	}
}

func headerLen(typ wire.TLNum, body []byte) int {
	return typ.EncodingLength() + wire.TLNum(len(body)).EncodingLength()
}
