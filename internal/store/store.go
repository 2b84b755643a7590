package store

import (
	"context"
	"errors"
	"time"

	"odelivery/terminal/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
)

// Repository is the durable local state of one terminal installation: the
// device identity, the last-known remote credentials, print styling, the
// print journal and local operator accounts. Implementations: postgres for
// real deployments, memory for dev and tests.
type Repository interface {
	GetDeviceIdentity(ctx context.Context) (*domain.DeviceIdentity, error)
	SaveDeviceIdentity(ctx context.Context, identity domain.DeviceIdentity) error

	GetAPISettings(ctx context.Context) (*domain.APISettings, error)
	SaveAPISettings(ctx context.Context, settings domain.APISettings) error

	GetStyleConfig(ctx context.Context) (*domain.StyleConfig, error)
	SaveStyleConfig(ctx context.Context, style domain.StyleConfig) error

	// RecordPrint upserts the journal entry for a physically printed order.
	RecordPrint(ctx context.Context, record domain.PrintRecord) error
	MarkAcknowledged(ctx context.Context, orderID string, at time.Time) error
	GetPrintRecord(ctx context.Context, orderID string) (*domain.PrintRecord, error)
	ListPrintRecords(ctx context.Context, limit int) ([]domain.PrintRecord, error)
	ListUnacknowledged(ctx context.Context, limit int) ([]domain.PrintRecord, error)

	CreateOperator(ctx context.Context, account domain.OperatorAccount) error
	ListOperators(ctx context.Context) ([]domain.OperatorAccount, error)
	UpdateOperatorPassword(ctx context.Context, username string, password string) error
}
