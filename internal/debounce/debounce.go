// Package debounce coalesces high-frequency updates into trailing-edge
// writes, one timer per key.
package debounce

import (
	"log/slog"
	"sync"
	"time"
)

// Timer is a scheduled call that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler schedules with the runtime timer.
type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type entry[V any] struct {
	value V
	seq   uint64
	timer Timer
}

// Debouncer delays writes of values pushed under a key until no new value
// arrived for the configured delay. Only the latest value is written, and a
// value equal to the last one written for that key is not written again.
type Debouncer[K comparable, V any] struct {
	delay time.Duration
	sched Scheduler
	write func(K, V) error
	equal func(a, b V) bool

	mu      sync.Mutex
	seq     uint64
	stopped bool
	pending map[K]*entry[V]

	// writeMu serializes writes so an older value never lands after a newer one.
	writeMu    sync.Mutex
	written    map[K]V
	writtenSeq map[K]uint64
}

// New creates a debouncer. equal may be nil, in which case every fired
// value is written.
func New[K comparable, V any](delay time.Duration, sched Scheduler, write func(K, V) error, equal func(a, b V) bool) *Debouncer[K, V] {
	if sched == nil {
		sched = RealScheduler{}
	}
	return &Debouncer[K, V]{
		delay:      delay,
		sched:      sched,
		write:      write,
		equal:      equal,
		pending:    make(map[K]*entry[V]),
		written:    make(map[K]V),
		writtenSeq: make(map[K]uint64),
	}
}

// Push records value for key and restarts its timer. After Stop, values
// are written immediately.
func (d *Debouncer[K, V]) Push(key K, value V) {
	d.mu.Lock()
	d.seq++
	seq := d.seq
	if d.stopped {
		d.mu.Unlock()
		d.commit(key, value, seq)
		return
	}
	e, ok := d.pending[key]
	if !ok {
		e = &entry[V]{}
		d.pending[key] = e
	} else if e.timer != nil {
		e.timer.Stop()
	}
	e.value = value
	e.seq = seq
	e.timer = d.sched.AfterFunc(d.delay, func() { d.fire(key, seq) })
	d.mu.Unlock()
}

func (d *Debouncer[K, V]) fire(key K, seq uint64) {
	d.mu.Lock()
	e, ok := d.pending[key]
	if !ok || e.seq != seq {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	value := e.value
	d.mu.Unlock()

	d.commit(key, value, seq)
}

// Flush writes the pending value for key now, if there is one.
func (d *Debouncer[K, V]) Flush(key K) {
	d.mu.Lock()
	e, ok := d.pending[key]
	if ok {
		delete(d.pending, key)
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	d.mu.Unlock()

	if ok {
		d.commit(key, e.value, e.seq)
	}
}

// Cancel drops the pending value for key without writing it.
func (d *Debouncer[K, V]) Cancel(key K) {
	d.mu.Lock()
	if e, ok := d.pending[key]; ok {
		delete(d.pending, key)
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	d.mu.Unlock()
}

// Pending reports whether key has a value waiting to be written.
func (d *Debouncer[K, V]) Pending(key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Stop flushes every pending value. Later pushes are written directly.
func (d *Debouncer[K, V]) Stop() {
	d.mu.Lock()
	d.stopped = true
	pending := d.pending
	d.pending = make(map[K]*entry[V])
	d.mu.Unlock()

	for key, e := range pending {
		if e.timer != nil {
			e.timer.Stop()
		}
		d.commit(key, e.value, e.seq)
	}
}

func (d *Debouncer[K, V]) commit(key K, value V, seq uint64) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if seq < d.writtenSeq[key] {
		return
	}
	if last, ok := d.written[key]; ok && d.equal != nil && d.equal(last, value) {
		d.writtenSeq[key] = seq
		return
	}
	if err := d.write(key, value); err != nil {
		slog.Error("debounced write failed", "key", key, "error", err)
		return
	}
	d.written[key] = value
	d.writtenSeq[key] = seq
}
