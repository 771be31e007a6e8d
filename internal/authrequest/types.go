package authrequest

import (
	"errors"
	"time"
)

// AuthRequest is a pending device-to-device login handshake. A requesting
// device creates the record with its public key and a one-time access code;
// an approving device owned by the same user answers it with encrypted key
// material. The access code gates every read of the answer.
type AuthRequest struct {
	ID                      string     `json:"id"`
	UserID                  string     `json:"user_id"`
	RequestDeviceIdentifier string     `json:"request_device_identifier"`
	RequestIP               string     `json:"request_ip,omitempty"`
	PublicKey               string     `json:"public_key"`
	AccessCode              string     `json:"-"`
	EncryptedKey            string     `json:"encrypted_key,omitempty"`
	MasterPasswordHash      string     `json:"master_password_hash,omitempty"`
	Approved                *bool      `json:"approved,omitempty"`
	ResponseDeviceID        string     `json:"response_device_id,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	RespondedAt             *time.Time `json:"responded_at,omitempty"`
}

// Answered reports whether an approving device has already responded.
// Answered requests are consumed and cannot be answered again.
func (r *AuthRequest) Answered() bool {
	return r.Approved != nil
}

var (
	ErrNotFound        = errors.New("authrequest: not found")
	ErrExpired         = errors.New("authrequest: expired")
	ErrAlreadyAnswered = errors.New("authrequest: already answered")
	ErrUnauthorized    = errors.New("authrequest: unauthorized")
	ErrInvalidInput    = errors.New("authrequest: invalid input")
)
