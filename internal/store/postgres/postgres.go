package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"odelivery/terminal/internal/domain"
	"odelivery/terminal/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS terminal_settings (
			key        TEXT PRIMARY KEY,
			value      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS print_records (
			order_id     TEXT PRIMARY KEY,
			printed_at   TIMESTAMPTZ NOT NULL,
			acknowledged BOOLEAN NOT NULL DEFAULT false,
			acked_at     TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS operators (
			username   TEXT PRIMARY KEY,
			password   TEXT NOT NULL,
			role       TEXT NOT NULL,
			active     BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const (
	settingsKeyIdentity = "device_identity"
	settingsKeyAPI      = "api_settings"
	settingsKeyStyle    = "style_config"
)

func (s *Store) getSetting(ctx context.Context, key string, dest any) error {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM terminal_settings WHERE key = $1
	`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	return json.Unmarshal(raw, dest)
}

func (s *Store) putSetting(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO terminal_settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, raw)
	return err
}

func (s *Store) GetDeviceIdentity(ctx context.Context) (*domain.DeviceIdentity, error) {
	var identity domain.DeviceIdentity
	if err := s.getSetting(ctx, settingsKeyIdentity, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (s *Store) SaveDeviceIdentity(ctx context.Context, identity domain.DeviceIdentity) error {
	if identity.ID == "" {
		return store.ErrInvalidRecord
	}
	return s.putSetting(ctx, settingsKeyIdentity, identity)
}

func (s *Store) GetAPISettings(ctx context.Context) (*domain.APISettings, error) {
	var settings domain.APISettings
	if err := s.getSetting(ctx, settingsKeyAPI, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *Store) SaveAPISettings(ctx context.Context, settings domain.APISettings) error {
	if !settings.Valid() {
		return store.ErrInvalidRecord
	}
	return s.putSetting(ctx, settingsKeyAPI, settings)
}

func (s *Store) GetStyleConfig(ctx context.Context) (*domain.StyleConfig, error) {
	var style domain.StyleConfig
	if err := s.getSetting(ctx, settingsKeyStyle, &style); err != nil {
		return nil, err
	}
	return &style, nil
}

func (s *Store) SaveStyleConfig(ctx context.Context, style domain.StyleConfig) error {
	if style.PaperWidthChars < 16 || style.Copies < 1 {
		return store.ErrInvalidRecord
	}
	return s.putSetting(ctx, settingsKeyStyle, style)
}

func (s *Store) RecordPrint(ctx context.Context, record domain.PrintRecord) error {
	if record.OrderID == "" {
		return store.ErrInvalidRecord
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO print_records (order_id, printed_at, acknowledged, acked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id) DO UPDATE SET
			acknowledged = print_records.acknowledged OR EXCLUDED.acknowledged,
			acked_at     = COALESCE(print_records.acked_at, EXCLUDED.acked_at)
	`, record.OrderID, record.PrintedAt, record.Acknowledged, record.AckedAt)
	return err
}

func (s *Store) MarkAcknowledged(ctx context.Context, orderID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE print_records SET acknowledged = true, acked_at = $2
		WHERE order_id = $1
	`, orderID, at)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetPrintRecord(ctx context.Context, orderID string) (*domain.PrintRecord, error) {
	var record domain.PrintRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT order_id, printed_at, acknowledged, acked_at
		FROM print_records
		WHERE order_id = $1
	`, orderID).Scan(&record.OrderID, &record.PrintedAt, &record.Acknowledged, &record.AckedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (s *Store) ListPrintRecords(ctx context.Context, limit int) ([]domain.PrintRecord, error) {
	return s.queryRecords(ctx, `
		SELECT order_id, printed_at, acknowledged, acked_at
		FROM print_records
		ORDER BY printed_at DESC
		LIMIT $1
	`, limit)
}

func (s *Store) ListUnacknowledged(ctx context.Context, limit int) ([]domain.PrintRecord, error) {
	return s.queryRecords(ctx, `
		SELECT order_id, printed_at, acknowledged, acked_at
		FROM print_records
		WHERE acknowledged = false
		ORDER BY printed_at DESC
		LIMIT $1
	`, limit)
}

func (s *Store) queryRecords(ctx context.Context, query string, limit int) ([]domain.PrintRecord, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.PrintRecord, 0, limit)
	for rows.Next() {
		var record domain.PrintRecord
		if err := rows.Scan(&record.OrderID, &record.PrintedAt, &record.Acknowledged, &record.AckedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *Store) CreateOperator(ctx context.Context, account domain.OperatorAccount) error {
	if account.Username == "" || account.Password == "" {
		return store.ErrInvalidRecord
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operators (username, password, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, account.Username, account.Password, account.Role, account.Active, account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidRecord
		}
		return err
	}
	return nil
}

func (s *Store) ListOperators(ctx context.Context) ([]domain.OperatorAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM operators
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	operators := make([]domain.OperatorAccount, 0, 8)
	for rows.Next() {
		var account domain.OperatorAccount
		if err := rows.Scan(&account.Username, &account.Password, &account.Role, &account.Active, &account.CreatedAt); err != nil {
			return nil, err
		}
		operators = append(operators, account)
	}
	return operators, rows.Err()
}

func (s *Store) UpdateOperatorPassword(ctx context.Context, username string, password string) error {
	if password == "" {
		return store.ErrInvalidRecord
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE operators SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
