package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceFiresDueTimersInDeadlineOrder(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var order []int

	f.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	f.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	f.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	f.Advance(3 * time.Second)

	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, f.PendingCount())
}

func TestFake_TimerNotYetDueStaysPending(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := false
	f.AfterFunc(5*time.Second, func() { fired = true })

	f.Advance(1 * time.Second)

	assert.False(t, fired)
	assert.Equal(t, 1, f.PendingCount())
}

func TestFake_CancelledTimerNeverFires(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := false
	h := f.AfterFunc(1*time.Second, func() { fired = true })
	h.Cancel()

	f.Advance(2 * time.Second)

	assert.False(t, fired)
	assert.Equal(t, 0, f.PendingCount())
}

func TestFake_SameDeadlineFiresInArmOrder(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var order []int
	f.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	f.AfterFunc(1*time.Second, func() { order = append(order, 2) })

	f.Advance(1 * time.Second)

	assert.Equal(t, []int{1, 2}, order)
}

func TestFake_ZeroOrNegativeDelayIsDueImmediatelyOnNextAdvance(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := false
	f.AfterFunc(0, func() { fired = true })

	f.Advance(0)

	assert.True(t, fired)
}

func TestFake_NowReflectsCumulativeAdvances(t *testing.T) {
	start := time.Unix(100, 0)
	f := NewFake(start)

	f.Advance(10 * time.Second)
	f.Advance(5 * time.Second)

	assert.Equal(t, start.Add(15*time.Second), f.Now())
}

func TestReal_AfterFuncFiresAndCancelStopsIt(t *testing.T) {
	r := Real{}
	fired := make(chan struct{}, 1)
	h := r.AfterFunc(10*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	h.Cancel()
}
