package authrequest

import (
	"context"
	"errors"
	"strings"
	"time"

	"vaultgate.org/internal/ids"
)

const defaultTTL = 15 * time.Minute

// Service implements the auth request lifecycle: creation by the requesting
// device, answering by an approving device, and access-code verification
// consumed by the token-issuance layer.
type Service struct {
	store Store
	now   func() time.Time
	ttl   time.Duration
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

// WithTTL configures how long a request stays answerable.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, opts ...Option) *Service {
	svc := &Service{
		store: store,
		now:   time.Now,
		ttl:   defaultTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CreateParams carries the requesting device's submission.
type CreateParams struct {
	UserID           string
	DeviceIdentifier string
	PublicKey        string
	AccessCode       string
	RequestIP        string
}

// Create stores a new pending auth request. When the caller supplies no
// access code one is generated server-side.
func (s *Service) Create(ctx context.Context, p CreateParams) (*AuthRequest, error) {
	userID := strings.TrimSpace(p.UserID)
	deviceID := strings.TrimSpace(p.DeviceIdentifier)
	publicKey := strings.TrimSpace(p.PublicKey)
	if userID == "" || deviceID == "" || publicKey == "" {
		return nil, ErrInvalidInput
	}
	code := p.AccessCode
	if code == "" {
		generated, err := GenerateAccessCode()
		if err != nil {
			return nil, err
		}
		code = generated
	}
	rec := &AuthRequest{
		ID:                      ids.New(),
		UserID:                  userID,
		RequestDeviceIdentifier: deviceID,
		RequestIP:               strings.TrimSpace(p.RequestIP),
		PublicKey:               publicKey,
		AccessCode:              code,
		CreatedAt:               s.now().UTC(),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Verify authorizes or denies a pending auth request. A missing record and a
// code mismatch both collapse to false; neither is an error. Store failures
// propagate unchanged so callers can tell an outage apart from a deny.
// The record is never mutated here.
func (s *Service) Verify(ctx context.Context, id, accessCode string) (bool, error) {
	rec, err := s.store.Find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return CodeMatches(rec.AccessCode, accessCode), nil
}

// Response returns the request for the polling requesting device, gated by
// the access code. Denied lookups surface as ErrNotFound so a guessing
// client cannot distinguish a wrong code from a missing record.
func (s *Service) Response(ctx context.Context, id, accessCode string) (*AuthRequest, error) {
	ok, err := s.Verify(ctx, id, accessCode)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	rec, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.expired(rec) {
		return nil, ErrExpired
	}
	return rec, nil
}

// AnswerParams carries the approving device's response.
type AnswerParams struct {
	Approved           bool
	DeviceIdentifier   string
	EncryptedKey       string
	MasterPasswordHash string
}

// Answer records the approving device's decision. Only the owning user may
// answer, a request is consumed by its first answer, and expired requests
// are rejected. Key material is stored only on approval.
func (s *Service) Answer(ctx context.Context, id, userID string, p AnswerParams) (*AuthRequest, error) {
	rec, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.UserID != strings.TrimSpace(userID) {
		return nil, ErrUnauthorized
	}
	if s.expired(rec) {
		return nil, ErrExpired
	}
	if rec.Answered() {
		return nil, ErrAlreadyAnswered
	}
	if p.Approved && strings.TrimSpace(p.EncryptedKey) == "" {
		return nil, ErrInvalidInput
	}

	now := s.now().UTC()
	approved := p.Approved
	rec.Approved = &approved
	rec.ResponseDeviceID = strings.TrimSpace(p.DeviceIdentifier)
	rec.RespondedAt = &now
	if approved {
		rec.EncryptedKey = p.EncryptedKey
		rec.MasterPasswordHash = p.MasterPasswordHash
	}
	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get fetches a request by id without the access-code gate. Intended for the
// owning user's approving device; callers must authenticate separately.
func (s *Service) Get(ctx context.Context, id, userID string) (*AuthRequest, error) {
	rec, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.UserID != strings.TrimSpace(userID) {
		return nil, ErrUnauthorized
	}
	if s.expired(rec) {
		return nil, ErrExpired
	}
	return rec, nil
}

func (s *Service) expired(rec *AuthRequest) bool {
	return s.now().After(rec.CreatedAt.Add(s.ttl))
}
