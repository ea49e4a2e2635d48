package debounce

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeScheduler fires timers only when Advance is called.
type fakeScheduler struct {
	now    time.Duration
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{at: s.now + d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) Advance(d time.Duration) {
	s.now += d
	for _, t := range s.timers {
		if !t.stopped && !t.fired && t.at <= s.now {
			t.fired = true
			t.f()
		}
	}
}

type recorder struct {
	mu     sync.Mutex
	writes []string
	fail   bool
}

func (r *recorder) write(key string, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("disk full")
	}
	r.writes = append(r.writes, key+"="+value)
	return nil
}

func equalStrings(a, b string) bool { return a == b }

func TestTrailingEdgeWritesLastValue(t *testing.T) {
	sched := &fakeScheduler{}
	rec := &recorder{}
	d := New(500*time.Millisecond, sched, rec.write, equalStrings)

	d.Push("c1", "h")
	sched.Advance(200 * time.Millisecond)
	d.Push("c1", "he")
	sched.Advance(200 * time.Millisecond)
	d.Push("c1", "hel")

	sched.Advance(499 * time.Millisecond)
	assert.Empty(t, rec.writes)
	assert.True(t, d.Pending("c1"))

	sched.Advance(time.Millisecond)
	assert.Equal(t, []string{"c1=hel"}, rec.writes)
	assert.False(t, d.Pending("c1"))
}

func TestKeysAreIndependent(t *testing.T) {
	sched := &fakeScheduler{}
	rec := &recorder{}
	d := New(100*time.Millisecond, sched, rec.write, equalStrings)

	d.Push("a", "1")
	d.Push("b", "2")
	sched.Advance(100 * time.Millisecond)

	assert.ElementsMatch(t, []string{"a=1", "b=2"}, rec.writes)
}

func TestEqualValueIsNotRewritten(t *testing.T) {
	sched := &fakeScheduler{}
	rec := &recorder{}
	d := New(100*time.Millisecond, sched, rec.write, equalStrings)

	d.Push("a", "x")
	sched.Advance(100 * time.Millisecond)
	d.Push("a", "y")
	d.Push("a", "x")
	sched.Advance(100 * time.Millisecond)

	assert.Equal(t, []string{"a=x"}, rec.writes)
}

func TestFlushWritesImmediately(t *testing.T) {
	sched := &fakeScheduler{}
	rec := &recorder{}
	d := New(time.Second, sched, rec.write, equalStrings)

	d.Push("a", "now")
	d.Flush("a")
	assert.Equal(t, []string{"a=now"}, rec.writes)

	sched.Advance(time.Second)
	assert.Len(t, rec.writes, 1, "cancelled timer does not write again")

	d.Flush("a")
	assert.Len(t, rec.writes, 1, "nothing pending")
}

func TestCancelDropsValue(t *testing.T) {
	sched := &fakeScheduler{}
	rec := &recorder{}
	d := New(time.Second, sched, rec.write, equalStrings)

	d.Push("a", "discard me")
	d.Cancel("a")
	sched.Advance(time.Second)

	assert.Empty(t, rec.writes)
}

func TestStaleCommitIsIgnored(t *testing.T) {
	rec := &recorder{}
	d := New(time.Second, &fakeScheduler{}, rec.write, equalStrings)

	d.commit("a", "new", 2)
	d.commit("a", "old", 1)

	assert.Equal(t, []string{"a=new"}, rec.writes)
}

func TestStopFlushesAndWritesDirectly(t *testing.T) {
	sched := &fakeScheduler{}
	rec := &recorder{}
	d := New(time.Second, sched, rec.write, equalStrings)

	d.Push("a", "1")
	d.Stop()
	assert.Equal(t, []string{"a=1"}, rec.writes)

	d.Push("a", "2")
	assert.Equal(t, []string{"a=1", "a=2"}, rec.writes)
}

func TestFailedWriteCanBeRetried(t *testing.T) {
	sched := &fakeScheduler{}
	rec := &recorder{fail: true}
	d := New(time.Second, sched, rec.write, equalStrings)

	d.Push("a", "v")
	sched.Advance(time.Second)
	assert.Empty(t, rec.writes)

	rec.fail = false
	d.Push("a", "v")
	sched.Advance(time.Second)
	assert.Equal(t, []string{"a=v"}, rec.writes)
}

func TestRealScheduler(t *testing.T) {
	done := make(chan string, 1)
	d := New(10*time.Millisecond, RealScheduler{}, func(k, v string) error {
		done <- v
		return nil
	}, nil)

	d.Push("a", "1")
	d.Push("a", "2")

	select {
	case v := <-done:
		assert.Equal(t, "2", v)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write")
	}
}
