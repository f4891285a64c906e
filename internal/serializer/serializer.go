// Package serializer provides per-key FIFO task execution.
//
// Tasks submitted for the same key run one at a time in submission
// order; tasks for distinct keys run concurrently. This is the
// correctness mechanism that keeps at most one backend run in flight
// per conversation session: the serialization key is the external
// thread ID, which resolves 1:1 to the session.
package serializer

import (
	"context"
	"sync"
)

// Task is a unit of work executed exclusively for its key.
type Task[T any] func(ctx context.Context) (T, error)

// Future resolves with the task's result once it has run.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Wait blocks until the task settles or ctx is cancelled. Cancelling
// the wait does not cancel the task itself; queued tasks always run to
// completion or failure.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed when the future settles.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

func (f *Future[T]) settle(val T, err error) {
	f.val = val
	f.err = err
	close(f.done)
}

type entry[T any] struct {
	ctx    context.Context
	task   Task[T]
	future *Future[T]
}

type keyQueue[T any] struct {
	pending []entry[T]
}

// Serializer dispatches tasks to per-key FIFO queues. The zero value
// is not usable; construct with New.
type Serializer[T any] struct {
	mu     sync.Mutex
	queues map[string]*keyQueue[T]
}

// New creates an empty serializer.
func New[T any]() *Serializer[T] {
	return &Serializer[T]{queues: make(map[string]*keyQueue[T])}
}

// Submit enqueues task for key and returns its future. If no drain
// loop is active for the key, one is started. A failing task rejects
// only its own future; the queue continues with subsequent tasks.
func (s *Serializer[T]) Submit(ctx context.Context, key string, task Task[T]) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	s.mu.Lock()
	q, ok := s.queues[key]
	if !ok {
		q = &keyQueue[T]{}
		s.queues[key] = q
	}
	q.pending = append(q.pending, entry[T]{ctx: ctx, task: task, future: f})
	s.mu.Unlock()

	if !ok {
		go s.drain(key, q)
	}
	return f
}

// drain pops and runs entries for key until the queue empties, then
// removes the key's state. The pop and the final delete happen under
// the same lock acquisition that a concurrent Submit uses, so a
// submission racing the last pop either lands in this queue before the
// delete or creates a fresh queue with its own drain loop. Either way
// no task is lost.
func (s *Serializer[T]) drain(key string, q *keyQueue[T]) {
	for {
		s.mu.Lock()
		if len(q.pending) == 0 {
			delete(s.queues, key)
			s.mu.Unlock()
			return
		}
		e := q.pending[0]
		q.pending = q.pending[1:]
		s.mu.Unlock()

		val, err := run(e.ctx, e.task)
		e.future.settle(val, err)
	}
}

// run executes the task, converting a panic into an error so one bad
// task cannot take down the drain loop for its key.
func run[T any](ctx context.Context, task Task[T]) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return task(ctx)
}

// QueueCount reports how many keys currently have queue state. Drained
// keys are removed, so an idle serializer reports zero.
func (s *Serializer[T]) QueueCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}

// PendingFor reports the number of not-yet-started tasks for key.
func (s *Serializer[T]) PendingFor(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[key]
	if !ok {
		return 0
	}
	return len(q.pending)
}
