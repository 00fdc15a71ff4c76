package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests advance scheduler time deterministically instead
// of sleeping real wall-clock time.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestScheduler() (*Scheduler, *fakeClock) {
	fc := &fakeClock{t: time.Unix(0, 0)}
	s := New()
	s.now = fc.now
	return s, fc
}

func TestSchedulerFiresDueEvent(t *testing.T) {
	s, fc := newTestScheduler()
	fired := 0
	s.Enqueue(10*time.Millisecond, func(flag CallbackFlag) time.Duration {
		fired++
		assert.Equal(t, Due, flag)
		return 0
	})

	fc.t = fc.t.Add(5 * time.Millisecond)
	s.RunDue()
	assert.Equal(t, 0, fired)

	fc.t = fc.t.Add(10 * time.Millisecond)
	s.RunDue()
	assert.Equal(t, 1, fired)
}

func TestSchedulerRearmsOnPositiveReturn(t *testing.T) {
	s, fc := newTestScheduler()
	fired := 0
	s.Enqueue(time.Millisecond, func(flag CallbackFlag) time.Duration {
		fired++
		if fired < 3 {
			return time.Millisecond
		}
		return 0
	})

	for i := 0; i < 3; i++ {
		fc.t = fc.t.Add(time.Millisecond)
		s.RunDue()
	}
	assert.Equal(t, 3, fired)
	assert.Equal(t, 0, s.Len())
}

// Equal deadlines fire in FIFO order (spec.md s5).
func TestSchedulerFIFOTiebreak(t *testing.T) {
	s, fc := newTestScheduler()
	var order []int
	deadline := 5 * time.Millisecond
	for i := 0; i < 3; i++ {
		i := i
		s.Enqueue(deadline, func(CallbackFlag) time.Duration {
			order = append(order, i)
			return 0
		})
	}

	fc.t = fc.t.Add(deadline)
	s.RunDue()
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestSchedulerCancelInvokesCallbackOnce(t *testing.T) {
	s, _ := newTestScheduler()
	calls := 0
	h := s.Enqueue(time.Hour, func(flag CallbackFlag) time.Duration {
		calls++
		assert.Equal(t, Canceled, flag)
		return 0
	})

	s.Cancel(h)
	s.Cancel(h) // second cancel on an already-removed handle is a no-op
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Len())
}

func TestSchedulerNoDeadlineWhenEmpty(t *testing.T) {
	s, _ := newTestScheduler()
	assert.Equal(t, NoDeadline, s.RunDue())
}
