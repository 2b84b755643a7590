package cache

import (
	"context"
	"time"

	"odelivery/terminal/internal/domain"
)

// DocumentCache keeps rendered receipt documents keyed by order id so the
// content shown and printed for an order stays the first-materialized one
// across restarts.
type DocumentCache interface {
	Get(ctx context.Context, orderID string) (*domain.ReceiptDocument, bool, error)
	Set(ctx context.Context, orderID string, doc *domain.ReceiptDocument, ttl time.Duration) error
}

type NoopDocumentCache struct{}

func (NoopDocumentCache) Get(_ context.Context, _ string) (*domain.ReceiptDocument, bool, error) {
	return nil, false, nil
}

func (NoopDocumentCache) Set(_ context.Context, _ string, _ *domain.ReceiptDocument, _ time.Duration) error {
	return nil
}
