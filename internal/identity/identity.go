// Package identity manages the stable per-installation device id.
package identity

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"odelivery/terminal/internal/domain"
	"odelivery/terminal/internal/store"
)

// GetOrCreate returns the persisted device identity, creating and persisting
// a fresh one on first run. Storage failures degrade to an ephemeral,
// unpersisted identity, so the caller always gets a usable id.
// Once a persisted identity exists it is returned unchanged for the lifetime
// of the installation.
func GetOrCreate(ctx context.Context, repo store.Repository) domain.DeviceIdentity {
	existing, err := repo.GetDeviceIdentity(ctx)
	if err == nil {
		return *existing
	}
	if !errors.Is(err, store.ErrNotFound) {
		log.Printf("[identity] WARN: reading device identity: %v", err)
	}

	fresh := domain.DeviceIdentity{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.SaveDeviceIdentity(ctx, fresh); err != nil {
		log.Printf("[identity] WARN: persisting device identity, continuing with ephemeral id: %v", err)
		fresh.Ephemeral = true
	}
	return fresh
}
