package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"odelivery/terminal/internal/domain"
	"odelivery/terminal/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	identity     *domain.DeviceIdentity
	apiSettings  *domain.APISettings
	styleConfig  *domain.StyleConfig
	printRecords map[string]domain.PrintRecord
	operators    map[string]domain.OperatorAccount
}

func New() *Store {
	return &Store{
		printRecords: make(map[string]domain.PrintRecord),
		operators:    make(map[string]domain.OperatorAccount),
	}
}

// NewSeeded returns a store with default operator accounts for dev/demo mode.
// Credentials come from SEED_OPERATOR_PASSWORD; a hardcoded dev default is
// used (with a warning) when unset. Production deployments use PostgreSQL.
func NewSeeded() *Store {
	s := New()

	password := os.Getenv("SEED_OPERATOR_PASSWORD")
	if password == "" {
		password = "operator123"
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OPERATOR_PASSWORD to override.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password: %v", err)
	}

	now := time.Now().UTC()
	for _, op := range []struct {
		username string
		role     string
	}{
		{"operator", "operator"},
		{"manager", "manager"},
	} {
		s.operators[op.username] = domain.OperatorAccount{
			Username:  op.username,
			Password:  string(hash),
			Role:      op.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return s
}

func (s *Store) GetDeviceIdentity(_ context.Context) (*domain.DeviceIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil, store.ErrNotFound
	}
	identity := *s.identity
	return &identity, nil
}

func (s *Store) SaveDeviceIdentity(_ context.Context, identity domain.DeviceIdentity) error {
	if strings.TrimSpace(identity.ID) == "" {
		return store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := identity
	s.identity = &saved
	return nil
}

func (s *Store) GetAPISettings(_ context.Context) (*domain.APISettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.apiSettings == nil {
		return nil, store.ErrNotFound
	}
	settings := *s.apiSettings
	return &settings, nil
}

func (s *Store) SaveAPISettings(_ context.Context, settings domain.APISettings) error {
	if !settings.Valid() {
		return store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := settings
	s.apiSettings = &saved
	return nil
}

func (s *Store) GetStyleConfig(_ context.Context) (*domain.StyleConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.styleConfig == nil {
		return nil, store.ErrNotFound
	}
	style := *s.styleConfig
	return &style, nil
}

func (s *Store) SaveStyleConfig(_ context.Context, style domain.StyleConfig) error {
	if style.PaperWidthChars < 16 || style.Copies < 1 {
		return store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := style
	s.styleConfig = &saved
	return nil
}

func (s *Store) RecordPrint(_ context.Context, record domain.PrintRecord) error {
	if strings.TrimSpace(record.OrderID) == "" {
		return store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.printRecords[record.OrderID]; ok {
		// The journal is append-once per order: a second print of the same
		// order only upgrades the ack state, never clears it.
		if existing.Acknowledged && !record.Acknowledged {
			return nil
		}
	}
	s.printRecords[record.OrderID] = record
	return nil
}

func (s *Store) MarkAcknowledged(_ context.Context, orderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.printRecords[orderID]
	if !ok {
		return store.ErrNotFound
	}
	record.Acknowledged = true
	ackedAt := at
	record.AckedAt = &ackedAt
	s.printRecords[orderID] = record
	return nil
}

func (s *Store) GetPrintRecord(_ context.Context, orderID string) (*domain.PrintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.printRecords[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &record, nil
}

func (s *Store) ListPrintRecords(_ context.Context, limit int) ([]domain.PrintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(limit, func(domain.PrintRecord) bool { return true }), nil
}

func (s *Store) ListUnacknowledged(_ context.Context, limit int) ([]domain.PrintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(limit, func(r domain.PrintRecord) bool { return !r.Acknowledged }), nil
}

// collect returns records newest-first. Callers hold s.mu.
func (s *Store) collect(limit int, keep func(domain.PrintRecord) bool) []domain.PrintRecord {
	records := make([]domain.PrintRecord, 0, len(s.printRecords))
	for _, record := range s.printRecords {
		if keep(record) {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].PrintedAt.After(records[j].PrintedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

func (s *Store) CreateOperator(_ context.Context, account domain.OperatorAccount) error {
	username := strings.TrimSpace(account.Username)
	if username == "" || account.Password == "" {
		return store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.operators[username]; exists {
		return store.ErrInvalidRecord
	}
	account.Username = username
	s.operators[username] = account
	return nil
}

func (s *Store) ListOperators(_ context.Context) ([]domain.OperatorAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	operators := make([]domain.OperatorAccount, 0, len(s.operators))
	for _, account := range s.operators {
		operators = append(operators, account)
	}
	sort.Slice(operators, func(i, j int) bool {
		return operators[i].Username < operators[j].Username
	})
	return operators, nil
}

func (s *Store) UpdateOperatorPassword(_ context.Context, username string, password string) error {
	if password == "" {
		return store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.operators[username]
	if !ok {
		return store.ErrNotFound
	}
	account.Password = password
	s.operators[username] = account
	return nil
}
