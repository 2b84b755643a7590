package identity

import (
	"context"
	"errors"
	"testing"

	"odelivery/terminal/internal/domain"
	"odelivery/terminal/internal/store"
	"odelivery/terminal/internal/store/memory"
)

func TestGetOrCreateIsStable(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	first := GetOrCreate(ctx, repo)
	if first.ID == "" {
		t.Fatalf("expected a generated device id")
	}
	if first.Ephemeral {
		t.Fatalf("expected persisted identity with a working store")
	}

	second := GetOrCreate(ctx, repo)
	if second.ID != first.ID {
		t.Fatalf("device id changed across calls: %s vs %s", first.ID, second.ID)
	}
}

type brokenRepo struct {
	store.Repository
}

func (brokenRepo) GetDeviceIdentity(context.Context) (*domain.DeviceIdentity, error) {
	return nil, errors.New("disk unavailable")
}

func (brokenRepo) SaveDeviceIdentity(context.Context, domain.DeviceIdentity) error {
	return errors.New("disk unavailable")
}

func TestGetOrCreateDegradesToEphemeral(t *testing.T) {
	got := GetOrCreate(context.Background(), brokenRepo{Repository: memory.New()})
	if got.ID == "" {
		t.Fatalf("expected a usable id even when storage fails")
	}
	if !got.Ephemeral {
		t.Fatalf("expected unpersisted identity to be flagged ephemeral")
	}
}
