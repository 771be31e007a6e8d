package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"vaultgate.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/token",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicRequest(r) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := auth.ContextWithUser(r.Context(), claims.Subject, claims.DeviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// isPublicRequest reports whether the request may proceed without a bearer
// token. The requesting device in the auth request flow has no token yet,
// so creation, polling, and verification are public; the access code is the
// credential on those paths. Answering, the event stream, and everything
// under /v1/devices require an authenticated user.
func isPublicRequest(r *http.Request) bool {
	path := r.URL.Path
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	if path == "/v1/auth-requests" {
		return r.Method == http.MethodPost
	}
	if rest := strings.TrimPrefix(path, "/v1/auth-requests/"); rest != path && rest != "" {
		if rest == "stream" {
			return false
		}
		if strings.HasSuffix(rest, "/verify") {
			return r.Method == http.MethodPost
		}
		return r.Method == http.MethodGet
	}
	return false
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
