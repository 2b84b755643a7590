// Package service coordinates the sync/print pipeline: polling cycles feed
// transformed orders into the job queue, the dispatcher consumes them, and
// the local UI API reads and mutates everything through here.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"odelivery/terminal/internal/cache"
	"odelivery/terminal/internal/dispatch"
	"odelivery/terminal/internal/domain"
	"odelivery/terminal/internal/gateway"
	"odelivery/terminal/internal/metrics"
	"odelivery/terminal/internal/poller"
	"odelivery/terminal/internal/printjob"
	"odelivery/terminal/internal/receipt"
	"odelivery/terminal/internal/store"
	"odelivery/terminal/internal/telemetry"
	"odelivery/terminal/internal/transform"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	docCacheTTL    = 24 * time.Hour
	syncOpTimeout  = 5 * time.Second
	reconcileLimit = 100
)

type Service struct {
	repo       store.Repository
	gateway    *gateway.Client
	queue      *printjob.Queue
	dispatcher *dispatch.Dispatcher
	docs       cache.DocumentCache
	metrics    *metrics.Metrics
	debug      *telemetry.Log
	identity   domain.DeviceIdentity
	interval   time.Duration

	// pollMu serializes whole start/stop transitions; mu only guards the
	// poll pointer for readers.
	pollMu sync.Mutex

	mu          sync.RWMutex
	style       domain.StyleConfig
	poll        *poller.Poller
	lastSyncAt  *time.Time
	lastSyncErr string
}

func New(repo store.Repository, gw *gateway.Client, docs cache.DocumentCache, m *metrics.Metrics, debug *telemetry.Log, identity domain.DeviceIdentity, print dispatch.PrintFunc, interval time.Duration) *Service {
	if docs == nil {
		docs = cache.NoopDocumentCache{}
	}
	s := &Service{
		repo:     repo,
		gateway:  gw,
		queue:    printjob.NewQueue(),
		docs:     docs,
		metrics:  m,
		debug:    debug,
		identity: identity,
		interval: interval,
		style:    domain.DefaultStyleConfig(),
	}
	s.dispatcher = dispatch.New(print, gw, s.queue, repo, m, s.Style)
	return s
}

// Bootstrap restores persisted style and backend settings. A terminal that
// never completed setup comes up unconfigured and waits for the UI.
func (s *Service) Bootstrap(ctx context.Context) error {
	style, err := s.repo.GetStyleConfig(ctx)
	switch {
	case err == nil:
		s.mu.Lock()
		s.style = *style
		s.mu.Unlock()
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("load style config: %w", err)
	}

	settings, err := s.repo.GetAPISettings(ctx)
	switch {
	case err == nil:
		if err := s.gateway.Configure(*settings); err != nil {
			log.Printf("[service] WARN: persisted settings rejected: %v", err)
		}
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("load api settings: %w", err)
	}
	return nil
}

// StartPolling begins the periodic sync. Safe to call again after a
// configuration change; the previous loop is stopped first.
func (s *Service) StartPolling() error {
	if !s.gateway.IsConfigured() {
		return gateway.ErrNotConfigured
	}

	// pollMu is held across the whole stop-create-start sequence so two
	// concurrent transitions cannot interleave and orphan a running loop.
	// The old loop is stopped outside the service lock: Stop waits for an
	// in-flight delivery, and deliveries take the service lock themselves.
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	s.mu.Lock()
	old := s.poll
	s.poll = nil
	s.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	p := poller.New(s.interval, s.gateway.FetchOrders, s.Ingest, s.handleSyncError)
	s.mu.Lock()
	s.poll = p
	s.mu.Unlock()
	p.Start()
	log.Printf("[service] polling every %s", s.interval)
	return nil
}

func (s *Service) StopPolling() {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	s.mu.Lock()
	poll := s.poll
	s.poll = nil
	s.mu.Unlock()
	if poll != nil {
		poll.Stop()
	}
}

// Ingest runs one successful cycle's worth of wire orders through the
// pipeline. The poller calls it once per cycle.
func (s *Service) Ingest(wire []transform.WireOrder) {
	if s.metrics != nil {
		s.metrics.PollCycles.Inc()
	}

	ctx, cancel := context.WithTimeout(context.Background(), syncOpTimeout)
	defer cancel()

	style := s.Style()
	orders := make([]domain.OrderSnapshot, 0, len(wire))
	for _, w := range wire {
		orders = append(orders, transform.Order(w))
	}

	jobs := printjob.Materialize(orders, style)
	for i := range jobs {
		s.freezeContent(ctx, &jobs[i])
		s.restorePrintState(ctx, &jobs[i])
	}
	s.queue.Merge(jobs)

	now := time.Now().UTC()
	s.mu.Lock()
	s.lastSyncAt = &now
	s.lastSyncErr = ""
	s.mu.Unlock()

	if style.AutoPrint {
		s.autoPrint(ctx)
	}
}

// freezeContent prefers the cached first-materialized document over a fresh
// render, so upstream edits to an order never change what gets printed.
func (s *Service) freezeContent(ctx context.Context, job *domain.PrintJob) {
	cached, ok, err := s.docs.Get(ctx, job.OrderID)
	if err != nil {
		log.Printf("[service] WARN: document cache read for order %q: %v", job.OrderID, err)
		return
	}
	if ok {
		job.Content = cached
		return
	}
	if err := s.docs.Set(ctx, job.OrderID, job.Content, docCacheTTL); err != nil {
		log.Printf("[service] WARN: document cache write for order %q: %v", job.OrderID, err)
	}
}

// restorePrintState consults the journal so a restart never re-prints an
// order that already left the printer.
func (s *Service) restorePrintState(ctx context.Context, job *domain.PrintJob) {
	record, err := s.repo.GetPrintRecord(ctx, job.OrderID)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		log.Printf("[service] WARN: journal read for order %q: %v", job.OrderID, err)
		return
	}
	job.Status = domain.JobStatusPrinted
	printedAt := record.PrintedAt
	job.PrintedAt = &printedAt
	job.Acknowledged = record.Acknowledged
}

func (s *Service) autoPrint(ctx context.Context) {
	for _, job := range s.queue.Pending() {
		if err := s.dispatcher.ProcessJob(ctx, job); err != nil {
			log.Printf("[service] WARN: auto-print order %q: %v", job.OrderID, err)
		}
	}
}

func (s *Service) handleSyncError(err error) {
	s.mu.Lock()
	s.lastSyncErr = err.Error()
	s.mu.Unlock()

	var serverErr *gateway.ServerError
	if errors.As(err, &serverErr) && serverErr.Auth() {
		log.Printf("[service] WARN: sync rejected, credentials need attention: %v", err)
		return
	}
	log.Printf("[service] WARN: sync cycle failed: %v", err)
}

func (s *Service) ListJobs(_ context.Context) []domain.PrintJob {
	return s.queue.List()
}

func (s *Service) GetJob(_ context.Context, orderID string) (domain.PrintJob, error) {
	job, ok := s.queue.Get(orderID)
	if !ok {
		return domain.PrintJob{}, store.ErrNotFound
	}
	return job, nil
}

// JobPreview renders the plain-text preview of one job's frozen document.
func (s *Service) JobPreview(_ context.Context, orderID string) (string, error) {
	job, ok := s.queue.Get(orderID)
	if !ok {
		return "", store.ErrNotFound
	}
	if job.Content == nil {
		return "", fmt.Errorf("order %q has no rendered content", orderID)
	}
	return receipt.Preview(job.Content, s.Style()), nil
}

func (s *Service) PrintOrder(ctx context.Context, orderID string) (domain.PrintJob, error) {
	job, ok := s.queue.Get(orderID)
	if !ok {
		return domain.PrintJob{}, store.ErrNotFound
	}
	if err := s.dispatcher.ProcessJob(ctx, job); err != nil {
		return domain.PrintJob{}, err
	}
	printed, _ := s.queue.Get(orderID)
	return printed, nil
}

func (s *Service) ReprintOrder(ctx context.Context, orderID string) error {
	job, ok := s.queue.Get(orderID)
	if !ok {
		return store.ErrNotFound
	}
	return s.dispatcher.Reprint(ctx, job)
}

// Reconcile retries the remote printed-flag ack for journaled prints that
// never got one.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	return s.dispatcher.Reconcile(ctx, reconcileLimit)
}

func (s *Service) ListUnacknowledged(ctx context.Context) ([]domain.PrintRecord, error) {
	return s.repo.ListUnacknowledged(ctx, reconcileLimit)
}

// UpdateSettings installs and persists new backend credentials, then
// restarts the polling loop against them.
func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsUpdateRequest) error {
	settings := domain.APISettings{
		BaseURL:     strings.TrimSpace(req.BaseURL),
		AccessToken: strings.TrimSpace(req.AccessToken),
		TenantID:    strings.TrimSpace(req.TenantID),
		UpdatedAt:   time.Now().UTC(),
	}
	if !settings.Valid() {
		return store.ErrInvalidRecord
	}
	if err := s.gateway.Configure(settings); err != nil {
		return err
	}
	if err := s.repo.SaveAPISettings(ctx, settings); err != nil {
		return fmt.Errorf("persist api settings: %w", err)
	}
	return s.StartPolling()
}

// Settings returns the stored backend settings with the token redacted.
func (s *Service) Settings(ctx context.Context) (domain.APISettings, error) {
	settings, err := s.repo.GetAPISettings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return domain.APISettings{}, nil
	}
	if err != nil {
		return domain.APISettings{}, err
	}
	out := *settings
	out.AccessToken = redactToken(out.AccessToken)
	return out, nil
}

func redactToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func (s *Service) Style() domain.StyleConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.style
}

// UpdateStyle applies a partial style update and persists the result.
func (s *Service) UpdateStyle(ctx context.Context, req domain.StyleUpdateRequest) (domain.StyleConfig, error) {
	s.mu.Lock()
	style := s.style
	if req.PaperWidthChars != nil {
		if *req.PaperWidthChars < 16 || *req.PaperWidthChars > 64 {
			s.mu.Unlock()
			return domain.StyleConfig{}, store.ErrInvalidRecord
		}
		style.PaperWidthChars = *req.PaperWidthChars
	}
	if req.Copies != nil {
		if *req.Copies < 1 || *req.Copies > 5 {
			s.mu.Unlock()
			return domain.StyleConfig{}, store.ErrInvalidRecord
		}
		style.Copies = *req.Copies
	}
	if req.ShowLogo != nil {
		style.ShowLogo = *req.ShowLogo
	}
	if req.ShowQRCode != nil {
		style.ShowQRCode = *req.ShowQRCode
	}
	if req.FooterNote != nil {
		style.FooterNote = strings.TrimSpace(*req.FooterNote)
	}
	if req.AutoPrint != nil {
		style.AutoPrint = *req.AutoPrint
	}
	s.style = style
	s.mu.Unlock()

	if err := s.repo.SaveStyleConfig(ctx, style); err != nil {
		return domain.StyleConfig{}, fmt.Errorf("persist style config: %w", err)
	}
	return style, nil
}

func (s *Service) DebugEntries() []domain.DebugLogEntry {
	if s.debug == nil {
		return nil
	}
	return s.debug.Entries()
}

func (s *Service) DebugStats() domain.DebugLogStats {
	if s.debug == nil {
		return domain.DebugLogStats{}
	}
	return s.debug.Stats()
}

func (s *Service) Status(ctx context.Context) domain.SyncStatus {
	s.mu.RLock()
	lastSyncAt := s.lastSyncAt
	lastSyncErr := s.lastSyncErr
	polling := s.poll != nil
	s.mu.RUnlock()

	status := domain.SyncStatus{
		Configured:   s.gateway.IsConfigured(),
		Polling:      polling,
		LastSyncAt:   lastSyncAt,
		LastSyncErr:  lastSyncErr,
		DeviceID:     s.identity.ID,
		PollInterval: s.interval.String(),
	}
	for _, job := range s.queue.List() {
		switch job.Status {
		case domain.JobStatusPending:
			status.PendingJobs++
		case domain.JobStatusPrinted:
			status.PrintedJobs++
			if !job.Acknowledged {
				status.UnackedJobs++
			}
		}
	}
	return status
}
