package printjob

import (
	"sort"
	"sync"
	"time"

	"odelivery/terminal/internal/domain"
)

// Queue merges job batches across polling cycles. It is the single owner of
// job state between the poller and the UI: an order id seen again keeps its
// first-materialized content frozen, and a job already printed locally never
// regresses to pending, whatever the backend still reports.
type Queue struct {
	mu       sync.RWMutex
	jobs     map[string]*domain.PrintJob
	inFlight map[string]struct{}
}

func NewQueue() *Queue {
	return &Queue{
		jobs:     make(map[string]*domain.PrintJob),
		inFlight: make(map[string]struct{}),
	}
}

// Merge upserts a freshly materialized batch. Only backend-owned display
// fields are refreshed on known orders; local print state and content stay.
func (q *Queue) Merge(batch []domain.PrintJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range batch {
		incoming := batch[i]
		existing, seen := q.jobs[incoming.OrderID]
		if !seen {
			job := incoming
			q.jobs[incoming.OrderID] = &job
			continue
		}
		existing.BackendStatus = incoming.BackendStatus
	}
}

// ClaimForPrint atomically reserves a pending job for one print attempt.
// It returns false when the job is missing, already printed, or already
// claimed, so two concurrent triggers on the same job can never both reach
// the printer. A claim is released by MarkPrinted or ReleaseClaim.
func (q *Queue) ClaimForPrint(orderID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[orderID]
	if !ok || job.Status == domain.JobStatusPrinted {
		return false
	}
	if _, busy := q.inFlight[orderID]; busy {
		return false
	}
	q.inFlight[orderID] = struct{}{}
	return true
}

// ReleaseClaim returns a claimed job to pending after a failed print.
func (q *Queue) ReleaseClaim(orderID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, orderID)
}

// MarkPrinted flips a job to printed and settles its claim. The transition
// is one-way.
func (q *Queue) MarkPrinted(orderID string, at time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, orderID)
	job, ok := q.jobs[orderID]
	if !ok || job.Status == domain.JobStatusPrinted {
		return
	}
	job.Status = domain.JobStatusPrinted
	job.PrintedAt = &at
}

// MarkAcknowledged records a successful remote printed-flag ack.
func (q *Queue) MarkAcknowledged(orderID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.jobs[orderID]; ok {
		job.Acknowledged = true
	}
}

// Get returns a copy of one job.
func (q *Queue) Get(orderID string) (domain.PrintJob, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.jobs[orderID]
	if !ok {
		return domain.PrintJob{}, false
	}
	return *job, true
}

// List returns copies of all jobs, newest first.
func (q *Queue) List() []domain.PrintJob {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]domain.PrintJob, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderID > out[j].OrderID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Pending returns copies of the jobs not yet printed, oldest first, which is
// the order auto-print should process them in. Jobs with a print already in
// flight are excluded.
func (q *Queue) Pending() []domain.PrintJob {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]domain.PrintJob, 0, len(q.jobs))
	for _, job := range q.jobs {
		if _, busy := q.inFlight[job.OrderID]; busy {
			continue
		}
		if job.Status == domain.JobStatusPending {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
