package face

import (
	"math/rand"
	"time"

	"github.com/ccnhub/ccnd/internal/sched"
)

// linkIO holds the per-face deferred-write state. Go's net.Conn already
// performs internal buffering/retries for partial writes (there is no
// user-visible EAGAIN the way there is over a raw non-blocking fd), so
// this stays a thin wrapper: its job is giving the forwarding engine one
// place to hang per-face I/O bookkeeping, matching spec.md s4.6's shape
// without re-implementing what the runtime's net package already does.
type linkIO struct {
	face *Face
}

func newLinkIO(f *Face) *linkIO { return &linkIO{face: f} }

// pacedEntry is one queued outbound frame awaiting its pacing delay.
type pacedEntry struct {
	frame []byte
	ready time.Time
}

// pacedQueue implements one of the three per-face content send queues
// (ASAP/NORMAL/SLOW, spec.md s4.5.6). minUsec/randUsec parameterize the
// per-class delay = min + rand(rand); nrun tracks a running "shown
// preference" counter that suppresses jitter once established.
type pacedQueue struct {
	minUsec, randUsec time.Duration
	entries           []pacedEntry
	nrun              int
	rng               *rand.Rand

	drainEvent sched.Handle
}

func newPacedQueue(minUsec, randUsec time.Duration) *pacedQueue {
	return &pacedQueue{minUsec: minUsec, randUsec: randUsec, rng: rand.New(rand.NewSource(1))}
}

// delay computes min_usec + rand(rand_usec); once nrun is between 8 and
// 200 bursts the face has shown preference behavior and randomization is
// suppressed (spec.md s4.5.6).
func (q *pacedQueue) delay() time.Duration {
	if q.nrun >= 8 && q.nrun <= 200 {
		return q.minUsec
	}
	if q.randUsec <= 0 {
		return q.minUsec
	}
	return q.minUsec + time.Duration(q.rng.Int63n(int64(q.randUsec)))
}

// Enqueue adds frame to the queue with its pacing delay computed from now.
func (q *pacedQueue) Enqueue(frame []byte) {
	q.entries = append(q.entries, pacedEntry{frame: frame, ready: time.Now().Add(q.delay())})
}

// classFor selects the send class for content toward dst, per spec.md
// s4.5.6: local -> ASAP, unicast datagram -> NORMAL (small jitter),
// link/multicast/slow-flagged content -> SLOW.
func classFor(dst *Face, slowSend bool) SendClass {
	switch {
	case dst.Flags&FlagLocal != 0:
		return ClassASAP
	case dst.Flags&(FlagLink|FlagMCAST) != 0 || slowSend:
		return ClassSlow
	default:
		return ClassNormal
	}
}

// EnqueueContent places frame on dst's appropriate paced queue (spec.md
// s4.5.6, engine entry point for steps s4.5.1.4 and s4.5.4.4).
func EnqueueContent(dst *Face, frame []byte, slowSend bool) {
	dst.queues[classFor(dst, slowSend)].Enqueue(frame)
}

// burstAirtimeNsPerKiB approximates airtime accounting for the 1ms/burst
// cap (spec.md s4.5.6 "burst_nsec x ceil(size/1024)").
const burstAirtimeNsPerKiB = 80 * 1000 // ~80us per KiB, i.e. ~100Mbit/s class link

// DrainBurst drains up to 2 entries from q whose ready time has passed,
// bounded to 1ms of accounted airtime per burst, sending each via send.
// Returns the number of entries sent.
func (q *pacedQueue) DrainBurst(now time.Time, send func([]byte) error) int {
	sent := 0
	var airtime time.Duration
	for sent < 2 && len(q.entries) > 0 {
		e := q.entries[0]
		if e.ready.After(now) {
			break
		}
		kib := (len(e.frame) + 1023) / 1024
		cost := time.Duration(kib) * burstAirtimeNsPerKiB
		if airtime+cost > time.Millisecond && sent > 0 {
			break
		}
		q.entries = q.entries[1:]
		_ = send(e.frame)
		airtime += cost
		sent++
		if q.nrun < 200 {
			q.nrun++
		}
	}
	return sent
}

func (q *pacedQueue) Empty() bool { return len(q.entries) == 0 }

// Queue returns one of the three paced send queues on f.
func (f *Face) Queue(c SendClass) *pacedQueue { return f.queues[c] }

// FlushAndCancel drains nothing further and cancels the drain scheduler
// event, used on face shutdown (spec.md s4.2 "flushes send queues,
// canceling the sender callback").
func (f *Face) FlushAndCancel(s *sched.Scheduler) {
	for _, q := range f.queues {
		if q.drainEvent != nil {
			s.Cancel(q.drainEvent)
			q.drainEvent = nil
		}
		q.entries = nil
	}
}

// drainInterval is how often a queue's sender callback wakes to drain a
// burst (spec.md s4.5.6 "A queue sender drains up to 2 entries per
// burst").
const drainInterval = time.Millisecond

// StartSending arms the sender callback for each of f's three paced
// queues, draining bursts onto f.Transport until the queue (or the
// scheduler event) is canceled (spec.md s4.5.6, s4.2 "flushes send
// queues").
func (f *Face) StartSending(s *sched.Scheduler) {
	for _, q := range f.queues {
		q.drainEvent = s.Enqueue(drainInterval, f.drainCallback(q))
	}
}

func (f *Face) drainCallback(q *pacedQueue) sched.Callback {
	return func(flag sched.CallbackFlag) time.Duration {
		if flag == sched.Canceled {
			return 0
		}
		if !f.Transport.IsRunning() {
			return 0
		}
		q.DrainBurst(time.Now(), f.Transport.SendFrame)
		return drainInterval
	}
}
