package device

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vaultgate.org/internal/ids"
)

// Service implements device trust operations. Untrust is the security-
// sensitive command: it validates ownership of every requested device before
// touching any record, so a batch either applies fully or not at all at the
// logic layer.
type Service struct {
	store Store
	now   func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs Service over the given store.
func NewService(store Store, opts ...Option) *Service {
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// RegisterParams carries a new device registration.
type RegisterParams struct {
	UserID              string
	Name                string
	Identifier          string
	EncryptedPrivateKey string
	EncryptedPublicKey  string
	EncryptedUserKey    string
}

// Register stores a new device record for the user.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*Device, error) {
	userID := strings.TrimSpace(p.UserID)
	identifier := strings.TrimSpace(p.Identifier)
	if userID == "" || identifier == "" {
		return nil, ErrInvalidInput
	}
	now := s.now().UTC()
	rec := &Device{
		ID:                  ids.New(),
		UserID:              userID,
		Name:                strings.TrimSpace(p.Name),
		Identifier:          identifier,
		EncryptedPrivateKey: p.EncryptedPrivateKey,
		EncryptedPublicKey:  p.EncryptedPublicKey,
		EncryptedUserKey:    p.EncryptedUserKey,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListByUser returns the user's devices.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Device, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.store.ListByUser(ctx, userID)
}

// Untrust revokes trust for the given devices of the given user by clearing
// their stored encrypted key material.
//
// Every requested ID is validated against the user's owned devices before
// any mutation begins. A single foreign or unknown ID aborts the whole batch
// with an *OwnershipError and zero writes. An empty ID set is a no-op.
//
// Atomicity beyond the validation ordering depends on the store: a
// BatchUpserter persists the cleared records in one transaction, otherwise
// records are written one by one and a mid-batch store failure can leave
// earlier devices already untrusted. Concurrent untrusts of the same device
// race with last-write-wins semantics; both outcomes are "untrusted".
func (s *Service) Untrust(ctx context.Context, userID string, deviceIDs []string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidInput
	}
	requested := dedupeIDs(deviceIDs)
	if len(requested) == 0 {
		return nil
	}

	owned, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list devices for user %s: %w", userID, err)
	}
	byID := make(map[string]*Device, len(owned))
	for _, d := range owned {
		byID[d.ID] = d
	}

	// Validation pass. No record is touched until every requested ID
	// is known to belong to the user.
	targets := make([]*Device, 0, len(requested))
	for _, id := range requested {
		d, ok := byID[id]
		if !ok {
			return &OwnershipError{UserID: userID, DeviceID: id}
		}
		targets = append(targets, d)
	}

	now := s.now().UTC()
	for _, d := range targets {
		d.ClearTrust()
		d.UpdatedAt = now
	}

	if batch, ok := s.store.(BatchUpserter); ok {
		return batch.UpsertMany(ctx, targets)
	}
	for _, d := range targets {
		if err := s.store.Upsert(ctx, d); err != nil {
			return fmt.Errorf("untrust device %s: %w", d.ID, err)
		}
	}
	return nil
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
