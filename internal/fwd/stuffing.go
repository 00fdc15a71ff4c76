package fwd

import (
	"github.com/ccnhub/ccnd/internal/face"
	"github.com/ccnhub/ccnd/internal/table"
	"github.com/ccnhub/ccnd/internal/wire"
)

// maxStuffedInterests bounds how many extra Interests ride along with
// one outbound frame (spec.md s4.5.5).
const maxStuffedInterests = 3

// stuffPending opportunistically piggybacks other pending Interests
// already destined for dst into one further CCNProtocolDataUnit sent
// right after the one just sent, saving a future do_propagate round
// trip for them (spec.md s4.5.5 "Interest stuffing"). Only LINK-framed
// faces support
// this, since only they carry a PDU wrapper capable of holding more
// than one message.
func (e *Engine) stuffPending(dst *face.Face, just *table.Entry) {
	if dst.Flags&face.FlagLink == 0 || e.MTU <= 0 {
		return
	}

	var frames [][]byte
	used := 0
	stuffedPrefix := make(map[*table.PrefixEntry]bool)
	e.Pit.Each(func(other *table.Entry) {
		if len(frames) >= maxStuffedInterests {
			return
		}
		if other == just || other.Flags&table.FlagStuffed1 != 0 {
			return
		}
		// At most one interest per prefix is stuffed per PDU to
		// preserve redundancy (spec.md s4.5.5).
		if stuffedPrefix[other.Prefix()] {
			return
		}
		if len(other.Outbound) == 0 || other.Outbound[len(other.Outbound)-1] != dst.ID {
			return
		}
		frame := wire.EncodeInterest(other.Interest)
		if used+len(frame) > e.MTU {
			return
		}
		if fid, ok := other.PopOutbound(); !ok || fid != dst.ID {
			return
		}
		other.Flags |= table.FlagStuffed1
		stuffedPrefix[other.Prefix()] = true
		frames = append(frames, frame)
		used += len(frame)
	})
	if len(frames) == 0 {
		return
	}
	if err := dst.Transport.SendFrame(wire.WrapPDU(frames...)); err != nil {
		e.Log.Debug(e, "stuffed interest send failed", "face", dst.ID, "err", err)
	}
}
