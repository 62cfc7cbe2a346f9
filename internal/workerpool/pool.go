// Package workerpool runs prioritised tasks on a fixed set of goroutines.
package workerpool

import (
	"container/heap"
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/semaphore"

	"github.com/hellhand/kube/internal/logging"
)

// ReservedThreads are left for the main thread and the render thread.
const ReservedThreads = 2

// Common priorities. Higher runs first.
const (
	PriorityLow    = -10
	PriorityNormal = 0
	PriorityHigh   = 10
)

var ErrClosed = errors.New("worker pool closed")

// Size returns the worker count for hw hardware threads, leaving reserved
// threads free. Machines with fewer than three threads use all of them.
func Size(hw, reserved int) int {
	if hw < 3 {
		return max(hw, 1)
	}
	return max(hw-reserved, 1)
}

// Pool is a priority-ordered task pool. Workers start on the first
// submission. Tasks of equal priority run in submission order.
//
// Thread safety: Pool is safe for concurrent use.
type Pool struct {
	workers int

	// slots bounds the number of queued tasks; submitters block for room.
	slots *semaphore.Weighted

	once    sync.Once
	started atomic.Bool
	mu      sync.Mutex
	cond    *sync.Cond
	queue   taskQueue
	seq     uint64
	closed  bool
	wg      sync.WaitGroup
}

// New returns a pool sized for this machine with reserved threads left
// free. Nothing runs until the first submission.
func New(reserved int) *Pool {
	return NewSized(Size(runtime.NumCPU(), reserved))
}

// NewSized returns a pool with exactly workers goroutines; zero or negative
// means GOMAXPROCS.
func NewSized(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		workers: workers,
		slots:   semaphore.NewWeighted(int64(max(workers*4, 8))),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

var (
	sharedOnce sync.Once
	shared     *Pool
)

// Shared returns the process-wide pool, built on first use. It is never
// closed; applications that own a pool pass it explicitly instead.
func Shared() *Pool {
	sharedOnce.Do(func() { shared = New(ReservedThreads) })
	return shared
}

func (p *Pool) Workers() int { return p.workers }

// Started reports whether the workers have been spawned.
func (p *Pool) Started() bool { return p.started.Load() }

func (p *Pool) start() {
	p.once.Do(func() {
		p.started.Store(true)
		p.wg.Add(p.workers)
		for i := range p.workers {
			go p.worker(i)
		}
		logging.WithComponent("workerpool").WithField("workers", p.workers).Debug("worker pool started")
	})
}

func (p *Pool) worker(int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		t := heap.Pop(&p.queue).(*task)
		p.mu.Unlock()
		p.slots.Release(1)
		t.fn()
	}
}

// Submit queues fn at prio, blocking while the queue is full.
func (p *Pool) Submit(prio int, fn func()) error {
	return p.enqueue(context.Background(), prio, fn)
}

func (p *Pool) enqueue(ctx context.Context, prio int, fn func()) error {
	if fn == nil {
		return nil
	}
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.slots.Release(1)
		return ErrClosed
	}
	p.seq++
	heap.Push(&p.queue, &task{prio: prio, seq: p.seq, fn: fn})
	p.mu.Unlock()
	p.cond.Signal()
	p.start()
	return nil
}

const (
	stateQueued int32 = iota
	stateRunning
	stateCancelled
)

// Do runs fn at prio and waits for it. If ctx ends while fn is still
// queued, fn is skipped and ctx's error returned; once fn is running Do
// waits for it to finish.
func (p *Pool) Do(ctx context.Context, prio int, fn func() error) error {
	var (
		state atomic.Int32
		err   error
		done  = make(chan struct{})
	)
	run := func() {
		defer close(done)
		if !state.CompareAndSwap(stateQueued, stateRunning) {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				err = errors.Newf("worker pool task panicked: %v", r)
			}
		}()
		err = fn()
	}
	if err := p.enqueue(ctx, prio, run); err != nil {
		return err
	}
	select {
	case <-done:
		return err
	case <-ctx.Done():
		if state.CompareAndSwap(stateQueued, stateCancelled) {
			return ctx.Err()
		}
		<-done
		return err
	}
}

// Close stops accepting work, runs what is queued and waits for the
// workers to exit. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

type task struct {
	prio int
	seq  uint64
	fn   func()
}

// taskQueue is a max-heap on priority, FIFO within a priority.
type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].prio != q[j].prio {
		return q[i].prio > q[j].prio
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *taskQueue) Push(x any) { *q = append(*q, x.(*task)) }

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}
