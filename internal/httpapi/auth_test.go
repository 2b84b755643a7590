package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"odelivery/terminal/internal/domain"
)

type operatorStoreStub struct {
	mu       sync.Mutex
	accounts map[string]domain.OperatorAccount
	updates  int
}

func (s *operatorStoreStub) CreateOperator(_ context.Context, account domain.OperatorAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accounts == nil {
		s.accounts = make(map[string]domain.OperatorAccount)
	}
	s.accounts[account.Username] = account
	return nil
}

func (s *operatorStoreStub) ListOperators(_ context.Context) ([]domain.OperatorAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OperatorAccount, 0, len(s.accounts))
	for _, account := range s.accounts {
		out = append(out, account)
	}
	return out, nil
}

func (s *operatorStoreStub) UpdateOperatorPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account := s.accounts[username]
	account.Password = password
	s.accounts[username] = account
	s.updates++
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	stub := &operatorStoreStub{
		accounts: map[string]domain.OperatorAccount{
			"operator": {
				Username:  "operator",
				Password:  "operator123",
				Role:      "operator",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	auth := NewAuthManager("secret", time.Hour, "123456", stub)

	resp, err := auth.Login(domain.LoginRequest{Username: "operator", Password: "operator123"})
	if err != nil {
		t.Fatalf("login with legacy password: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("no access token issued")
	}

	stub.mu.Lock()
	stored := stub.accounts["operator"].Password
	updates := stub.updates
	stub.mu.Unlock()
	if !strings.HasPrefix(stored, "$2") {
		t.Fatalf("legacy password not upgraded to bcrypt: %q", stored)
	}
	if updates == 0 {
		t.Fatalf("expected the upgraded hash to be written back")
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	auth := NewAuthManager("secret", time.Hour, "123456", nil)

	token, err := auth.sign("carla", "operator", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	actor, err := auth.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if actor.Username != "carla" || actor.Role != "operator" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewAuthManager("secret-a", time.Hour, "123456", nil)
	verifier := NewAuthManager("secret-b", time.Hour, "123456", nil)

	token, err := issuer.sign("carla", "operator", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := verifier.ParseToken(token); err == nil {
		t.Fatalf("token signed with another secret must fail")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuthManager("secret", time.Hour, "123456", nil)

	token, err := auth.sign("carla", "operator", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expired token must fail validation")
	}
}

func TestValidateManagerPIN(t *testing.T) {
	auth := NewAuthManager("secret", time.Hour, "123456", nil)

	if !auth.ValidateManagerPIN("123456") {
		t.Fatalf("correct PIN rejected")
	}
	if auth.ValidateManagerPIN("654321") {
		t.Fatalf("wrong PIN accepted")
	}
	if auth.ValidateManagerPIN("") {
		t.Fatalf("empty PIN accepted")
	}
}

func TestCreateOperatorValidation(t *testing.T) {
	auth := NewAuthManager("secret", time.Hour, "123456", &operatorStoreStub{})

	if _, err := auth.CreateOperator(domain.OperatorCreateRequest{Username: "ab", Password: "secret99"}); err == nil {
		t.Fatalf("short username accepted")
	}
	if _, err := auth.CreateOperator(domain.OperatorCreateRequest{Username: "carla", Password: "123"}); err == nil {
		t.Fatalf("short password accepted")
	}

	created, err := auth.CreateOperator(domain.OperatorCreateRequest{Username: "Carla", Password: "secret99"})
	if err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}
	if created.Username != "carla" {
		t.Fatalf("username should normalize to lowercase, got %q", created.Username)
	}

	if _, err := auth.CreateOperator(domain.OperatorCreateRequest{Username: "carla", Password: "secret99"}); err == nil {
		t.Fatalf("duplicate username accepted")
	}
}
