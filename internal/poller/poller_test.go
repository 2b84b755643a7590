package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"odelivery/terminal/internal/transform"
)

func TestCyclesDoNotOverlap(t *testing.T) {
	var inFlight, maxInFlight int32
	fetch := func(ctx context.Context) ([]transform.WireOrder, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			max := atomic.LoadInt32(&maxInFlight)
			if n <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond) // slower than the interval
		atomic.AddInt32(&inFlight, -1)
		return nil, nil
	}

	p := New(5*time.Millisecond, fetch, nil, nil)
	p.Start()
	time.Sleep(150 * time.Millisecond)
	p.Stop()

	if got := atomic.LoadInt32(&maxInFlight); got != 1 {
		t.Fatalf("expected at most 1 fetch in flight, saw %d", got)
	}
}

func TestStopDiscardsLateResolution(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	fetch := func(ctx context.Context) ([]transform.WireOrder, error) {
		close(started)
		<-release
		return []transform.WireOrder{{}}, nil
	}

	var delivered int32
	p := New(time.Minute, fetch, func([]transform.WireOrder) {
		atomic.AddInt32(&delivered, 1)
	}, nil)
	p.Start()
	<-started

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	p.Stop()

	if atomic.LoadInt32(&delivered) != 0 {
		t.Fatalf("result resolved after Stop must be discarded")
	}
}

func TestErrorsDoNotStopTheLoop(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context) ([]transform.WireOrder, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("backend down")
		}
		return nil, nil
	}

	var mu sync.Mutex
	var gotErr error
	results := make(chan struct{}, 8)
	p := New(5*time.Millisecond, fetch,
		func([]transform.WireOrder) { results <- struct{}{} },
		func(err error) {
			mu.Lock()
			gotErr = err
			mu.Unlock()
		})
	p.Start()

	select {
	case <-results:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not recover after a failed cycle")
	}
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	if gotErr == nil {
		t.Fatalf("first cycle error was not reported")
	}
}

func TestStopIsIdempotentAndStartAfterStopIsNoop(t *testing.T) {
	var calls int32
	p := New(time.Hour, func(ctx context.Context) ([]transform.WireOrder, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}, nil, nil)

	p.Start()
	p.Stop()
	p.Stop()
	p.Start()
	time.Sleep(20 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got > 1 {
		t.Fatalf("restart after Stop should not run new cycles, got %d calls", got)
	}
}
