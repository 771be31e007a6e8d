package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"vaultgate.org/internal/audit"
	"vaultgate.org/internal/auth"
	"vaultgate.org/internal/device"
	"vaultgate.org/internal/obs"
)

type registerDeviceRequest struct {
	Name                string `json:"name"`
	Identifier          string `json:"identifier"`
	EncryptedPrivateKey string `json:"encrypted_private_key"`
	EncryptedPublicKey  string `json:"encrypted_public_key"`
	EncryptedUserKey    string `json:"encrypted_user_key"`
}

type untrustRequest struct {
	DeviceIDs []string `json:"device_ids"`
}

type untrustResponse struct {
	Untrusted int `json:"untrusted"`
}

// deviceView is the wire shape for device listings. Key material never
// leaves the server; clients only learn whether it is present.
type deviceView struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	Identifier string    `json:"identifier"`
	Trusted    bool      `json:"trusted"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type listDevicesResponse struct {
	Items []deviceView `json:"items"`
}

func (a *API) handleDevices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listDevices(w, r)
	case http.MethodPost:
		a.registerDevice(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleDevicesUntrust(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.untrustDevices(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) listDevices(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	devices, err := a.devices.ListByUser(r.Context(), userID)
	if err != nil {
		handleDeviceError(w, r, err)
		return
	}

	items := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		items = append(items, deviceView{
			ID:         d.ID,
			Name:       d.Name,
			Identifier: d.Identifier,
			Trusted:    d.IsTrusted(),
			CreatedAt:  d.CreatedAt,
			UpdatedAt:  d.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, listDevicesResponse{Items: items})
}

func (a *API) registerDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req registerDeviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Identifier) == "" {
		writeError(w, r, http.StatusBadRequest, "identifier is required")
		return
	}

	rec, err := a.devices.Register(r.Context(), device.RegisterParams{
		UserID:              userID,
		Name:                req.Name,
		Identifier:          req.Identifier,
		EncryptedPrivateKey: req.EncryptedPrivateKey,
		EncryptedPublicKey:  req.EncryptedPublicKey,
		EncryptedUserKey:    req.EncryptedUserKey,
	})
	if err != nil {
		handleDeviceError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "device.registered", map[string]any{
		"device_id":  rec.ID,
		"identifier": rec.Identifier,
		"trusted":    rec.IsTrusted(),
	})

	writeJSON(w, http.StatusCreated, deviceView{
		ID:         rec.ID,
		Name:       rec.Name,
		Identifier: rec.Identifier,
		Trusted:    rec.IsTrusted(),
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	})
}

func (a *API) untrustDevices(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req untrustRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.devices.Untrust(r.Context(), userID, req.DeviceIDs); err != nil {
		var ownership *device.OwnershipError
		if errors.As(err, &ownership) {
			obs.CountUntrust("unauthorized")
			writeError(w, r, http.StatusForbidden, ownership.Error())
			return
		}
		obs.CountUntrust("error")
		handleDeviceError(w, r, err)
		return
	}

	obs.CountUntrust("ok")
	_ = audit.LogEvent(r.Context(), "device.untrusted", map[string]any{
		"device_ids": req.DeviceIDs,
	})

	writeJSON(w, http.StatusOK, untrustResponse{Untrusted: len(req.DeviceIDs)})
}

func handleDeviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, device.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, device.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, device.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
