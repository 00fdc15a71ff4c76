package fwd

import (
	"time"

	"github.com/ccnhub/ccnd/internal/face"
	"github.com/ccnhub/ccnd/internal/sched"
	"github.com/ccnhub/ccnd/internal/table"
	"github.com/ccnhub/ccnd/internal/wire"
)

// retransmitMin/retransmitSpan bound do_propagate's reschedule step: a
// random 0.5-8.7ms interval per invocation (spec.md s4.5.2), clamped so
// cumulative scheduling never overruns the entry's remaining lifetime.
const (
	retransmitMin  = 500 * time.Microsecond
	retransmitSpan = 8200 * time.Microsecond
)

// nextRetransmit picks do_propagate's next reschedule step and clamps it
// to the entry's remaining lifetime (spec.md s4.5.2).
func (e *Engine) nextRetransmit(entry *table.Entry) time.Duration {
	step := retransmitMin + time.Duration(e.Rng.Int63n(int64(retransmitSpan)))
	if remaining := time.Until(entry.ExpirationTime); remaining < step {
		if remaining <= 0 {
			return 0
		}
		return remaining
	}
	return step
}

// makePropagateCallback returns the scheduler callback that drives one
// PIT entry's outbound plan, popping one face per firing and
// re-arming itself until the plan is exhausted, at which point it
// waits out the entry's remaining lifetime before removal (spec.md
// s4.5.2).
func (e *Engine) makePropagateCallback(entry *table.Entry) sched.Callback {
	return func(flag sched.CallbackFlag) time.Duration {
		if flag == sched.Canceled {
			return 0
		}
		if !e.Pit.Contains(entry) {
			return 0
		}

		fid, ok := entry.PopOutbound()
		if !ok {
			remaining := time.Until(entry.ExpirationTime)
			if remaining <= 0 {
				e.finalizeExpired(entry)
				return 0
			}
			return remaining
		}

		dst := e.Faces.Get(fid)
		if dst == nil {
			return e.nextRetransmit(entry)
		}

		e.sendInterest(dst, entry.Interest)
		entry.Flags &^= table.FlagUnsent
		e.stuffPending(dst, entry)

		return e.nextRetransmit(entry)
	}
}

// finalizeExpired removes an entry whose outbound plan is exhausted
// and whose lifetime has elapsed with no satisfying content (spec.md
// s4.5.2, "Interest timeout").
func (e *Engine) finalizeExpired(entry *table.Entry) {
	if origin := e.Faces.Get(entry.Origin); origin != nil {
		origin.PendingInterests--
	}
	e.Pit.Remove(entry)
}

// sendInterest frames and transmits it on dst: LINK/stream faces get
// the CCNProtocolDataUnit wrapper, everything else sends the bare
// encoded Interest as one datagram/frame (spec.md s4.6).
func (e *Engine) sendInterest(dst *face.Face, it *wire.Interest) {
	frame := wire.EncodeInterest(it)
	if dst.Flags&face.FlagLink != 0 {
		frame = wire.WrapPDU(frame)
	}
	if err := dst.Transport.SendFrame(frame); err != nil {
		e.Log.Debug(e, "interest send failed", "face", dst.ID, "err", err)
	}
}
