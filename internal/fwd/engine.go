// Package fwd implements the forwarding engine: Interest/Content
// processing rules, aggregation, matching, and duplicate suppression
// (spec.md s4.5).
package fwd

import (
	"crypto/sha256"
	"math/rand"
	"time"

	"github.com/ccnhub/ccnd/internal/face"
	"github.com/ccnhub/ccnd/internal/log"
	"github.com/ccnhub/ccnd/internal/sched"
	"github.com/ccnhub/ccnd/internal/table"
	"github.com/ccnhub/ccnd/internal/wire"
)

// Engine ties the Face Table, PIT, CS, and Name-Prefix Tree together
// with the event-loop's scheduler (spec.md s2).
type Engine struct {
	Faces *face.Table
	Tree  *table.Tree
	Pit   *table.Table
	Cs    *table.Store
	Sched *sched.Scheduler
	Log   *log.Logger
	Rng   *rand.Rand

	MTU int // CCND_MTU, 0 disables interest stuffing (spec.md s6)
}

func (e *Engine) String() string { return "fwd" }

// isGG reports whether a face is flagged "friendly" (localhost/unix,
// spec.md GLOSSARY "GG").
func isGG(f *face.Face) bool { return f.Flags&face.FlagGG != 0 }

// OnInterest implements spec.md s4.5.1 "Incoming Interest".
func (e *Engine) OnInterest(originFaceID uint64, it *wire.Interest) {
	origin := e.Faces.Get(originFaceID)
	if origin == nil {
		return
	}

	// Step 2: scope checks. Scope 0 (same-face only) still gets a CS
	// lookup below but never propagates or enters the PIT.
	if it.Scope == 1 && !isGG(origin) {
		e.Log.Debug(e, "policy denied: scope=1 from non-GG face", "face", originFaceID)
		return
	}

	// Step 3: duplicate nonce.
	if existing, ok := e.Pit.Lookup(it.Nonce); ok {
		existing.RemoveFaceFromOutbound(originFaceID)
		e.Log.Debug(e, "duplicate nonce dropped", "nonce", it.Nonce)
		return
	}

	prefix := e.Tree.Seek(it.Name)

	// Step 4: CS lookup.
	if it.AnswerFromCS {
		req := table.MatchRequest{
			Name:                it.Name,
			MinSuffixComponents: it.MinSuffixComponents,
			MaxSuffixComponents: it.MaxSuffixComponents,
			MustBeFresh:         it.MustBeFresh,
			Exclude:             it.Exclude,
			ChildSelector:       it.ChildSelector,
		}
		if ce := e.Cs.FindFirstMatchCandidate(req); ce != nil {
			face.EnqueueContent(origin, ce.Wire, ce.Flags&table.CsSlowSend != 0)
			return
		}
	}

	if it.Scope == 0 {
		return
	}

	// Step 5: compute outbound faces from forward_to.
	forwardTo := e.Tree.UpdateForwardTo(prefix)
	outbound := make([]uint64, 0, len(forwardTo))
	for _, fid := range forwardTo {
		if fid == originFaceID {
			continue
		}
		f := e.Faces.Get(fid)
		if f == nil {
			continue
		}
		if it.Scope == 1 && !isGG(f) {
			continue
		}
		outbound = append(outbound, fid)
	}
	// Most-promising (history-surfaced) candidates are placed last so
	// they are popped from the tail first (spec.md s4.5.1 step 5).
	reorderHistoryLast(outbound, prefix.Src, prefix.OSrc)

	// Step 6: allocate PIT entry.
	entry := e.Pit.Insert(it, originFaceID, prefix)
	entry.Outbound = outbound
	if len(outbound) > 0 {
		entry.Flags |= table.FlagUnsent
	}
	origin.PendingInterests++

	// Similar-interest suppression (spec.md s4.5.3) runs before the
	// first propagation is scheduled.
	extraDelay := e.suppressSimilar(entry, prefix)

	// Step 7: schedule do_propagate.
	jitter := time.Duration(e.Rng.Intn(0x1000)) * time.Microsecond
	entry.PropagateEvent = e.Sched.Enqueue(jitter+extraDelay, e.makePropagateCallback(entry))
}

// reorderHistoryLast moves src/osrc (the prefix's outbound-reordering
// history, spec.md "src, osrc") to the tail of outbound if present, so
// do_propagate's tail-pop tries them first.
func reorderHistoryLast(outbound []uint64, src, osrc uint64) {
	promote := func(target uint64) {
		if target == 0 {
			return
		}
		for i, f := range outbound {
			if f == target {
				copy(outbound[i:], outbound[i+1:])
				outbound[len(outbound)-1] = target
				return
			}
		}
	}
	promote(osrc)
	promote(src)
}

// suppressSimilar implements spec.md s4.5.3 "Similar-Interest
// Suppression" and returns the extra propagation delay it computed.
// Redundant copies are counted per origin face only: there is no
// per-link accounting, so copies that reach the daemon through a
// broadcast or multicast face are not told apart by sender.
func (e *Engine) suppressSimilar(entry *table.Entry, prefix *table.PrefixEntry) time.Duration {
	var extra time.Duration
	sameFaceCopies := 0

	prefix.Pending.Each(func(other *table.Entry) {
		if other == entry {
			return
		}
		if !interestBytesEquivalent(entry.Interest, other.Interest) {
			return
		}
		if other.Origin == entry.Origin {
			sameFaceCopies++
			if sameFaceCopies <= 3 {
				extra += time.Duration(prefix.UsecHint)*time.Microsecond + 20*time.Millisecond
			} else {
				entry.Outbound = nil // beyond 3 redundant copies: drop propagation
			}
			return
		}
		// Different face already propagating an equivalent interest:
		// reduce the new entry's outbound set to a single face (the
		// intersection with the existing plan) and defer.
		if len(other.Outbound) > 0 {
			planFace := other.Outbound[len(other.Outbound)-1]
			entry.Outbound = []uint64{planFace}
			if f := e.Faces.Get(planFace); f != nil && f.Flags&face.FlagMCAST != 0 {
				extra += time.Duration(prefix.UsecHint)*time.Microsecond + 10*time.Millisecond
			}
		}
	})
	return extra
}

// interestBytesEquivalent compares two interests' wire bytes excluding
// the Nonce region (spec.md s4.5.3).
func interestBytesEquivalent(a, b *wire.Interest) bool {
	if !a.Name.Equal(b.Name) {
		return false
	}
	return a.MinSuffixComponents == b.MinSuffixComponents &&
		a.MaxSuffixComponents == b.MaxSuffixComponents &&
		a.MustBeFresh == b.MustBeFresh &&
		a.ChildSelector == b.ChildSelector
}

// ComputeDigest returns the 32-byte digest of an encoded Content Object,
// used to synthesize its final name component (spec.md s3, s4.5.4 step 2).
func ComputeDigest(raw []byte) [32]byte { return sha256.Sum256(raw) }

// OnContent implements spec.md s4.5.4 "Incoming Content".
func (e *Engine) OnContent(originFaceID uint64, co *wire.ContentObject, raw []byte) {
	origin := e.Faces.Get(originFaceID)
	if origin == nil {
		return
	}
	if len(raw) > wire.MaxContentObjectSize {
		e.Log.Warn(e, "oversize content object dropped", "size", len(raw))
		return
	}

	// Step 2: synthesize digest component, re-parse in augmented form.
	digest := ComputeDigest(raw)
	co.Name = co.Name.Append(wire.NewDigestComponent(digest))

	freshness := co.FreshnessSeconds
	const maxFreshness = (1<<31 - 1) / 1_000_000
	if freshness > maxFreshness {
		freshness = -1
	}

	// Step 3: insert into CS.
	ce, isNew := e.Cs.Insert(co, raw, freshness)
	if isNew && freshness >= 0 {
		e.scheduleFreshnessExpiry(ce, time.Duration(freshness)*time.Second)
	}

	// Step 4: match interests from full name down to 1 component.
	matched := false
	satisfiedPrefixes := 0
	for k := len(co.Name); k >= 1 && satisfiedPrefixes < 2; k-- {
		prefix := e.Tree.Find(co.Name.Prefix(k))
		if prefix == nil {
			continue
		}
		var consumed []*table.Entry
		prefix.Pending.Each(func(pe *table.Entry) {
			if !contentSatisfiesInterest(co, pe.Interest) {
				return
			}
			consumed = append(consumed, pe)
		})
		for _, pe := range consumed {
			dst := e.Faces.Get(pe.Origin)
			if dst != nil {
				face.EnqueueContent(dst, raw, false)
				dst.PendingInterests--
			}
			if pe.PropagateEvent != nil {
				e.Sched.Cancel(pe.PropagateEvent)
			}
			e.Pit.Remove(pe)
		}
		if len(consumed) > 0 {
			matched = true
			satisfiedPrefixes++
			// "The first prefix that satisfies at least one interest,
			// plus the next-shorter one, update their (src, osrc)
			// history and their predicted-response estimate" (spec.md
			// s4.5.4 step 4) - the loop continues for exactly one more,
			// shorter prefix after the first hit via satisfiedPrefixes.
			prefix.Src, prefix.OSrc = originFaceID, prefix.Src
			if prefix.UsecHint == 0 {
				prefix.UsecHint = 4000
			} else {
				prefix.UsecHint = prefix.UsecHint*0.8 + 2000*0.2
			}
		}
	}

	// Step 5: mark SLOWSEND if nothing matched and origin is non-GG.
	if !matched && !isGG(origin) {
		ce.Flags |= table.CsSlowSend
	}
}

func contentSatisfiesInterest(co *wire.ContentObject, it *wire.Interest) bool {
	if !it.Name.IsPrefix(co.Name) {
		return false
	}
	suffix := len(co.Name) - len(it.Name)
	if it.MinSuffixComponents > 0 && suffix < it.MinSuffixComponents {
		return false
	}
	if it.MaxSuffixComponents >= 0 && suffix > it.MaxSuffixComponents {
		return false
	}
	for _, ex := range it.Exclude {
		if suffix > 0 && co.Name[len(it.Name)].Compare(ex) == 0 {
			return false
		}
	}
	return true
}

// scheduleFreshnessExpiry marks ce STALE when its freshness window
// elapses (spec.md s4.5.4 step 3, "Content-store freshness round-trip").
func (e *Engine) scheduleFreshnessExpiry(ce *table.CsEntry, d time.Duration) {
	e.Sched.Enqueue(d, func(flag sched.CallbackFlag) time.Duration {
		if flag == sched.Due {
			ce.MarkStale()
		}
		return 0
	})
}
