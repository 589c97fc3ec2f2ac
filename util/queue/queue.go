package queue

import (
	"sync"
	"time"

	"github.com/gammazero/deque"
	"go.uber.org/atomic"
)

// VarBuffered implements a variable size synchronized FIFO queue. Unlike a
// channel it never jams the producer: elements overflow into a deque when the
// consumer is slow.
type VarBuffered[T any] struct {
	d          *deque.Deque[T]
	dequeMutex sync.RWMutex
	inSignal   chan struct{}
	in         chan T
	out        chan T
	closing    atomic.Bool
	pushCount  int
}

const defaultBufferSize = 0

func New[T any](bufsize ...int) *VarBuffered[T] {
	bs := defaultBufferSize
	if len(bufsize) > 0 {
		bs = bufsize[0]
	}
	ret := &VarBuffered[T]{
		d:        new(deque.Deque[T]),
		inSignal: make(chan struct{}, 1),
		in:       make(chan T, bs),
		out:      make(chan T, bs),
	}
	go ret.queueLoop()
	return ret
}

func (q *VarBuffered[T]) queueLoop() {
	defer func() {
		close(q.in)
		close(q.inSignal)
		close(q.out)
	}()

	for {
		if e, ok := q.pull(); ok {
			q.out <- e
			continue
		}
		// both in channel and deque are empty
		if q.closing.Load() {
			return
		}
		// queue is empty, wait for signal on incoming data.
		// Loop repeats non-stop if there's data, otherwise every 200 msec
		select {
		case <-q.inSignal:
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (q *VarBuffered[T]) pull() (T, bool) {
	q.dequeMutex.Lock()
	defer q.dequeMutex.Unlock()

	var nilT T

	select {
	case e, ok := <-q.in:
		if ok {
			return e, true
		}
		return nilT, false
	default:
	}
	if q.d.Len() == 0 {
		return nilT, false
	}
	return q.d.PopFront(), true
}

func (q *VarBuffered[T]) Push(elem T, priority ...bool) bool {
	prio := false
	if len(priority) > 0 {
		prio = priority[0]
	}
	return q.push(elem, prio)
}

func (q *VarBuffered[T]) push(elem T, priority bool) bool {
	if q.closing.Load() {
		// ignored
		return false
	}
	q.dequeMutex.Lock()
	defer q.dequeMutex.Unlock()

	defer func() {
		select {
		case q.inSignal <- struct{}{}:
		default:
		}
	}()

	q.pushCount++
	if q.d.Len() == 0 {
		// empty deque, push directly to the in channel, non-blocking
		select {
		case q.in <- elem:
			return true
		default:
		}
	}
	var e T
	if priority {
		q.d.PushFront(elem)
		e = elem
	} else {
		q.d.PushBack(elem)
		e = q.d.Front()
	}
	select {
	case q.in <- e:
		q.d.PopFront()
	default:
	}
	return true
}

// Close closes the queue, deferred until all elements are pulled
func (q *VarBuffered[T]) Close() {
	q.closing.Store(true)
}

// Consume reads all elements of the queue until it is closed and drained
func (q *VarBuffered[T]) Consume(consumerFunctions ...func(elem T)) {
	for {
		e, ok := <-q.out
		if !ok {
			break
		}
		for _, fun := range consumerFunctions {
			fun(e)
		}
	}
}

// Len returns number of elements in the queue. Approximate +- 1 !
func (q *VarBuffered[T]) Len() int {
	q.dequeMutex.RLock()
	defer q.dequeMutex.RUnlock()

	return q.d.Len() + len(q.in) + len(q.out)
}

func (q *VarBuffered[T]) Info() (int, int) {
	q.dequeMutex.RLock()
	defer q.dequeMutex.RUnlock()

	return q.pushCount, q.d.Len() + len(q.in) + len(q.out)
}
