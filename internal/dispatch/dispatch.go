// Package dispatch executes the print side of the pipeline. The ordering is
// fixed: physical print first, then the local printed flip, then the remote
// acknowledgment. The flip is authoritative and never rolled back; the ack is
// best effort and reconciled later when it fails.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"odelivery/terminal/internal/domain"
	"odelivery/terminal/internal/metrics"
	"odelivery/terminal/internal/printjob"
	"odelivery/terminal/internal/receipt"
	"odelivery/terminal/internal/store"
)

// PrintFunc delivers one encoded copy to the physical printer path.
type PrintFunc func(ctx context.Context, job domain.PrintJob, payload []byte) error

// Acker pushes the printed flag back to the order backend.
type Acker interface {
	MarkPrinted(ctx context.Context, orderID string) error
}

var (
	ErrAlreadyPrinted = errors.New("order already printed")
	ErrPrintInFlight  = errors.New("print already in progress")
	ErrNotPrinted     = errors.New("order not printed yet")
)

type Dispatcher struct {
	print   PrintFunc
	acker   Acker
	queue   *printjob.Queue
	repo    store.Repository
	metrics *metrics.Metrics
	style   func() domain.StyleConfig
	now     func() time.Time
}

func New(print PrintFunc, acker Acker, queue *printjob.Queue, repo store.Repository, m *metrics.Metrics, style func() domain.StyleConfig) *Dispatcher {
	return &Dispatcher{
		print:   print,
		acker:   acker,
		queue:   queue,
		repo:    repo,
		metrics: m,
		style:   style,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ProcessJob prints one job. The queue claim is the at-most-once gate: the
// caller's copy may be stale, so the claim decides, not the copy's status.
// On print failure the claim is released and the job stays pending for the
// per-job retry affordance. A successful print always flips local state,
// even when the journal write or the remote ack fails afterwards.
func (d *Dispatcher) ProcessJob(ctx context.Context, job domain.PrintJob) error {
	if job.Content == nil {
		return fmt.Errorf("dispatch order %q: job has no rendered content", job.OrderID)
	}
	if !d.queue.ClaimForPrint(job.OrderID) {
		current, ok := d.queue.Get(job.OrderID)
		switch {
		case !ok:
			return store.ErrNotFound
		case current.Status == domain.JobStatusPrinted:
			return ErrAlreadyPrinted
		default:
			return ErrPrintInFlight
		}
	}

	payload := receipt.Encode(job.Content, d.style())
	if err := d.printCopies(ctx, job, payload); err != nil {
		d.queue.ReleaseClaim(job.OrderID)
		return err
	}

	printedAt := d.now()
	d.queue.MarkPrinted(job.OrderID, printedAt)
	if err := d.repo.RecordPrint(ctx, domain.PrintRecord{OrderID: job.OrderID, PrintedAt: printedAt}); err != nil {
		log.Printf("[dispatch] WARN: journal write failed for order %q: %v", job.OrderID, err)
	}

	d.acknowledge(ctx, job.OrderID)
	return nil
}

// Reprint prints an already-printed job again without touching the journal's
// original printed time or re-acknowledging. A job not yet printed must go
// through ProcessJob so the flip and the journal write happen.
func (d *Dispatcher) Reprint(ctx context.Context, job domain.PrintJob) error {
	current, ok := d.queue.Get(job.OrderID)
	if !ok {
		return store.ErrNotFound
	}
	if current.Status != domain.JobStatusPrinted {
		return ErrNotPrinted
	}
	if current.Content == nil {
		return fmt.Errorf("dispatch order %q: job has no rendered content", job.OrderID)
	}
	payload := receipt.Encode(current.Content, d.style())
	return d.printCopies(ctx, current, payload)
}

func (d *Dispatcher) printCopies(ctx context.Context, job domain.PrintJob, payload []byte) error {
	copies := job.Copies
	if copies < 1 {
		copies = 1
	}
	for i := 0; i < copies; i++ {
		if err := d.print(ctx, job, payload); err != nil {
			d.countPrint("error")
			return fmt.Errorf("print order %q copy %d/%d: %w", job.OrderID, i+1, copies, err)
		}
	}
	d.countPrint("ok")
	return nil
}

func (d *Dispatcher) countPrint(outcome string) {
	if d.metrics != nil {
		d.metrics.PrintsTotal.WithLabelValues(outcome).Inc()
	}
}

// acknowledge is best effort: a failure leaves the journal entry unacked for
// Reconcile and only logs a warning.
func (d *Dispatcher) acknowledge(ctx context.Context, orderID string) {
	if err := d.acker.MarkPrinted(ctx, orderID); err != nil {
		log.Printf("[dispatch] WARN: printed flag not acknowledged for order %q: %v", orderID, err)
		return
	}
	d.queue.MarkAcknowledged(orderID)
	if err := d.repo.MarkAcknowledged(ctx, orderID, d.now()); err != nil {
		log.Printf("[dispatch] WARN: journal ack update failed for order %q: %v", orderID, err)
	}
}

// Reconcile retries the remote acknowledgment for every journaled print that
// never got one. It returns how many entries were settled.
func (d *Dispatcher) Reconcile(ctx context.Context, limit int) (int, error) {
	pending, err := d.repo.ListUnacknowledged(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unacknowledged prints: %w", err)
	}
	settled := 0
	for _, record := range pending {
		if err := d.acker.MarkPrinted(ctx, record.OrderID); err != nil {
			log.Printf("[dispatch] WARN: reconcile ack failed for order %q: %v", record.OrderID, err)
			continue
		}
		d.queue.MarkAcknowledged(record.OrderID)
		if err := d.repo.MarkAcknowledged(ctx, record.OrderID, d.now()); err != nil {
			log.Printf("[dispatch] WARN: journal ack update failed for order %q: %v", record.OrderID, err)
			continue
		}
		settled++
	}
	return settled, nil
}
