// Package poller drives the periodic order fetch. Cycles never overlap: the
// next fetch is scheduled only after the previous one fully resolves, so a
// slow backend stretches the effective interval instead of stacking requests.
package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"odelivery/terminal/internal/transform"
)

// FetchFunc resolves one polling cycle.
type FetchFunc func(ctx context.Context) ([]transform.WireOrder, error)

type Poller struct {
	interval time.Duration
	fetch    FetchFunc
	onResult func(orders []transform.WireOrder)
	onError  func(err error)

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(interval time.Duration, fetch FetchFunc, onResult func([]transform.WireOrder), onError func(error)) *Poller {
	return &Poller{
		interval: interval,
		fetch:    fetch,
		onResult: onResult,
		onError:  onError,
	}
}

// Start launches the polling loop. The first cycle runs immediately.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil || p.stopped {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx)
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		orders, err := p.fetch(ctx)
		p.deliver(orders, err)

		timer.Reset(p.interval)
	}
}

// deliver hands the cycle outcome to the callbacks unless Stop already ran.
// The lock is held through the callback so Stop cannot return while a
// delivery is in flight.
func (p *Poller) deliver(orders []transform.WireOrder, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		log.Printf("[poller] WARN: discarding cycle result resolved after stop")
		return
	}
	if err != nil {
		if p.onError != nil {
			p.onError(err)
		}
		return
	}
	if p.onResult != nil {
		p.onResult(orders)
	}
}

// Stop halts the loop. After Stop returns no callback will fire; a fetch
// still in flight has its result discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
