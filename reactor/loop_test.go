package reactor

import (
	"sync"
	"testing"
	"time"
)

func TestIOLoopRunsTasksInFIFOOrder(t *testing.T) {
	loop := newIOLoop()
	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		loop.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	loop.Stop()
	loop.Run(nil)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 5 {
		t.Fatalf("got %d tasks run, want 5", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestIOLoopStopDrainsPendingThenExits(t *testing.T) {
	loop := newIOLoop()
	ran := make(chan struct{}, 1)
	loop.Post(func() { ran <- struct{}{} })
	loop.Stop()

	done := make(chan struct{})
	go func() {
		loop.Run(nil)
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("queued task never ran before loop exited")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run never returned after Stop")
	}
}

func TestIOLoopPanicRoutesToOnErr(t *testing.T) {
	loop := newIOLoop()
	errCh := make(chan error, 1)
	loop.Post(func() { panic("boom") })
	loop.Stop()
	loop.Run(func(err error) { errCh <- err })

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected non-nil error from panicking task")
		}
	default:
		t.Fatal("expected onErr to be called for a panicking task")
	}
}

func TestIOLoopPollOnceReturnsFalseWhenEmpty(t *testing.T) {
	loop := newIOLoop()
	if loop.PollOnce(nil) {
		t.Fatal("expected PollOnce on an empty loop to return false")
	}
	ran := false
	loop.Post(func() { ran = true })
	if !loop.PollOnce(nil) {
		t.Fatal("expected PollOnce to report a task ran")
	}
	if !ran {
		t.Fatal("expected the posted task to have executed")
	}
}
