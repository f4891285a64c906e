package serializer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitFIFOPerKey(t *testing.T) {
	s := New[int]()
	ctx := context.Background()

	var mu sync.Mutex
	var order []int

	gate := make(chan struct{})
	futures := make([]*Future[int], 0, 10)
	for i := 0; i < 10; i++ {
		i := i
		futures = append(futures, s.Submit(ctx, "thread-1", func(context.Context) (int, error) {
			<-gate
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		}))
	}
	close(gate)

	for i, f := range futures {
		got, err := f.Wait(ctx)
		if err != nil {
			t.Fatalf("task %d: %v", i, err)
		}
		if got != i {
			t.Fatalf("task %d resolved with %d", i, got)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("start order %v is not submission order", order)
		}
	}
}

func TestNoOverlappingExecutionPerKey(t *testing.T) {
	s := New[struct{}]()
	ctx := context.Background()

	var running atomic.Int32
	var maxSeen atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f := s.Submit(ctx, "thread-1", func(context.Context) (struct{}, error) {
				n := running.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(time.Millisecond)
				running.Add(-1)
				return struct{}{}, nil
			})
			if _, err := f.Wait(ctx); err != nil {
				t.Errorf("Wait() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if maxSeen.Load() != 1 {
		t.Fatalf("observed %d concurrent tasks for one key, want 1", maxSeen.Load())
	}
}

func TestDistinctKeysRunConcurrently(t *testing.T) {
	s := New[struct{}]()
	ctx := context.Background()

	both := make(chan struct{})
	var arrived atomic.Int32
	task := func(context.Context) (struct{}, error) {
		if arrived.Add(1) == 2 {
			close(both)
		}
		select {
		case <-both:
			return struct{}{}, nil
		case <-time.After(2 * time.Second):
			return struct{}{}, errors.New("peer never started")
		}
	}

	fa := s.Submit(ctx, "thread-a", task)
	fb := s.Submit(ctx, "thread-b", task)
	if _, err := fa.Wait(ctx); err != nil {
		t.Fatalf("thread-a: %v", err)
	}
	if _, err := fb.Wait(ctx); err != nil {
		t.Fatalf("thread-b: %v", err)
	}
}

func TestFailingTaskDoesNotDrainQueue(t *testing.T) {
	s := New[string]()
	ctx := context.Background()

	boom := errors.New("boom")
	f1 := s.Submit(ctx, "k", func(context.Context) (string, error) {
		return "", boom
	})
	f2 := s.Submit(ctx, "k", func(context.Context) (string, error) {
		return "ok", nil
	})

	if _, err := f1.Wait(ctx); !errors.Is(err, boom) {
		t.Fatalf("first task error = %v, want boom", err)
	}
	got, err := f2.Wait(ctx)
	if err != nil {
		t.Fatalf("second task error = %v", err)
	}
	if got != "ok" {
		t.Fatalf("second task = %q", got)
	}
}

func TestPanickingTaskRejectsOwnFutureOnly(t *testing.T) {
	s := New[string]()
	ctx := context.Background()

	f1 := s.Submit(ctx, "k", func(context.Context) (string, error) {
		panic("kaboom")
	})
	f2 := s.Submit(ctx, "k", func(context.Context) (string, error) {
		return "still here", nil
	})

	_, err := f1.Wait(ctx)
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want PanicError", err)
	}
	if got, err := f2.Wait(ctx); err != nil || got != "still here" {
		t.Fatalf("second task = %q, %v", got, err)
	}
}

func TestQueueStateRemovedAfterDrain(t *testing.T) {
	s := New[struct{}]()
	ctx := context.Background()

	f := s.Submit(ctx, "k", func(context.Context) (struct{}, error) {
		return struct{}{}, nil
	})
	if _, err := f.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	// The drain loop deletes the key after settling the last future,
	// so give it a moment to observe the empty queue.
	deadline := time.Now().Add(time.Second)
	for s.QueueCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("queue state for drained key still present, count=%d", s.QueueCount())
		}
		time.Sleep(time.Millisecond)
	}
	if s.PendingFor("k") != 0 {
		t.Fatal("pending count for drained key should be zero")
	}
}

func TestSubmitDuringDrainRace(t *testing.T) {
	t.Parallel()
	s := New[int]()
	ctx := context.Background()

	// Hammer a single key with bursts separated by idle gaps so the
	// drain loop repeatedly races queue deletion against new submits.
	var completed atomic.Int32
	const total = 200
	futures := make(chan *Future[int], total)
	for i := 0; i < total; i++ {
		futures <- s.Submit(ctx, "contended", func(context.Context) (int, error) {
			completed.Add(1)
			return 0, nil
		})
		if i%10 == 9 {
			time.Sleep(time.Millisecond)
		}
	}
	close(futures)
	for f := range futures {
		if _, err := f.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if completed.Load() != total {
		t.Fatalf("completed %d of %d tasks", completed.Load(), total)
	}
}

func TestWaitRespectsContext(t *testing.T) {
	s := New[struct{}]()
	block := make(chan struct{})
	defer close(block)

	f := s.Submit(context.Background(), "k", func(context.Context) (struct{}, error) {
		<-block
		return struct{}{}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want deadline exceeded", err)
	}
}
