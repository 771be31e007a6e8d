package device

import "time"

// Device is a client device registered to exactly one user. A trusted device
// carries server-side copies of its encrypted key material; clearing all
// three fields untrusts it until the user re-establishes trust.
type Device struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	Name                string    `json:"name,omitempty"`
	Identifier          string    `json:"identifier"`
	EncryptedPrivateKey string    `json:"encrypted_private_key,omitempty"`
	EncryptedPublicKey  string    `json:"encrypted_public_key,omitempty"`
	EncryptedUserKey    string    `json:"encrypted_user_key,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// IsTrusted reports whether the device holds a complete set of encrypted key
// material and can participate in trusted-device decryption flows.
func (d *Device) IsTrusted() bool {
	return d.EncryptedPrivateKey != "" && d.EncryptedPublicKey != "" && d.EncryptedUserKey != ""
}

// ClearTrust strips the stored key material. All three fields go together;
// a device never keeps a partial set.
func (d *Device) ClearTrust() {
	d.EncryptedPrivateKey = ""
	d.EncryptedPublicKey = ""
	d.EncryptedUserKey = ""
}
