package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"vaultgate.org/internal/audit"
	"vaultgate.org/internal/auth"
	"vaultgate.org/internal/authrequest"
	"vaultgate.org/internal/obs"
	"vaultgate.org/internal/stream"
)

type createAuthRequestRequest struct {
	UserID           string `json:"user_id"`
	DeviceIdentifier string `json:"device_identifier"`
	PublicKey        string `json:"public_key"`
	AccessCode       string `json:"access_code"`
}

type createAuthRequestResponse struct {
	*authrequest.AuthRequest
	// AccessCode is echoed exactly once, when the server generated it.
	AccessCode string `json:"access_code,omitempty"`
}

type verifyRequest struct {
	AccessCode string `json:"access_code"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

type answerRequest struct {
	Approved           *bool  `json:"approved"`
	DeviceIdentifier   string `json:"device_identifier"`
	EncryptedKey       string `json:"encrypted_key"`
	MasterPasswordHash string `json:"master_password_hash"`
}

func (a *API) handleAuthRequestsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createAuthRequest(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) handleAuthRequestResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/auth-requests/")
	if rest == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if rest == "stream" {
		a.StreamEvents(w, r)
		return
	}

	if strings.HasSuffix(rest, "/verify") {
		id := strings.TrimSuffix(rest, "/verify")
		id = strings.TrimSuffix(id, "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "auth request not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.verifyAuthRequest(w, r, id)
		return
	}

	if strings.Contains(rest, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getAuthRequestResponse(w, r, rest)
	case http.MethodPut:
		a.answerAuthRequest(w, r, rest)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) createAuthRequest(w http.ResponseWriter, r *http.Request) {
	var req createAuthRequestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}
	if strings.TrimSpace(req.DeviceIdentifier) == "" {
		writeError(w, r, http.StatusBadRequest, "device_identifier is required")
		return
	}
	if strings.TrimSpace(req.PublicKey) == "" {
		writeError(w, r, http.StatusBadRequest, "public_key is required")
		return
	}

	generated := strings.TrimSpace(req.AccessCode) == ""
	rec, err := a.authRequests.Create(r.Context(), authrequest.CreateParams{
		UserID:           req.UserID,
		DeviceIdentifier: req.DeviceIdentifier,
		PublicKey:        req.PublicKey,
		AccessCode:       strings.TrimSpace(req.AccessCode),
		RequestIP:        clientIP(r),
	})
	if err != nil {
		handleAuthRequestError(w, r, err)
		return
	}

	if a.events != nil {
		a.events.Publish(stream.Event{
			Type:      stream.EventCreated,
			RequestID: rec.ID,
			UserID:    rec.UserID,
		})
	}

	_ = audit.LogEvent(r.Context(), "authrequest.created", map[string]any{
		"auth_request_id": rec.ID,
		"user_id":         rec.UserID,
		"device":          rec.RequestDeviceIdentifier,
		"request_ip":      rec.RequestIP,
	})

	resp := createAuthRequestResponse{AuthRequest: rec}
	if generated {
		resp.AccessCode = rec.AccessCode
	}
	w.Header().Set("Location", "/v1/auth-requests/"+rec.ID)
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) getAuthRequestResponse(w http.ResponseWriter, r *http.Request, id string) {
	code := r.URL.Query().Get("code")
	if strings.TrimSpace(code) == "" {
		writeError(w, r, http.StatusBadRequest, "code query parameter is required")
		return
	}
	rec, err := a.authRequests.Response(r.Context(), id, code)
	if err != nil {
		handleAuthRequestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) verifyAuthRequest(w http.ResponseWriter, r *http.Request, id string) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	valid, err := a.authRequests.Verify(r.Context(), id, req.AccessCode)
	if err != nil {
		handleAuthRequestError(w, r, err)
		return
	}

	result := "deny"
	if valid {
		result = "allow"
	}
	obs.CountVerification(result)
	_ = audit.LogEvent(r.Context(), "authrequest.verified", map[string]any{
		"auth_request_id": id,
		"result":          result,
	})

	writeJSON(w, http.StatusOK, verifyResponse{Valid: valid})
}

func (a *API) answerAuthRequest(w http.ResponseWriter, r *http.Request, id string) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Approved == nil {
		writeError(w, r, http.StatusBadRequest, "approved is required")
		return
	}

	deviceID := strings.TrimSpace(req.DeviceIdentifier)
	if deviceID == "" {
		deviceID, _ = auth.DeviceIDFromContext(r.Context())
	}

	rec, err := a.authRequests.Answer(r.Context(), id, userID, authrequest.AnswerParams{
		Approved:           *req.Approved,
		DeviceIdentifier:   deviceID,
		EncryptedKey:       req.EncryptedKey,
		MasterPasswordHash: req.MasterPasswordHash,
	})
	if err != nil {
		handleAuthRequestError(w, r, err)
		return
	}

	if a.events != nil {
		a.events.Publish(stream.Event{
			Type:      stream.EventAnswered,
			RequestID: rec.ID,
			UserID:    rec.UserID,
			Approved:  rec.Approved,
		})
	}

	_ = audit.LogEvent(r.Context(), "authrequest.answered", map[string]any{
		"auth_request_id": rec.ID,
		"approved":        *req.Approved,
		"device":          rec.ResponseDeviceID,
	})

	writeJSON(w, http.StatusOK, rec)
}

func handleAuthRequestError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authrequest.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, authrequest.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, authrequest.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, authrequest.ErrAlreadyAnswered):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, authrequest.ErrExpired):
		writeError(w, r, http.StatusGone, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
