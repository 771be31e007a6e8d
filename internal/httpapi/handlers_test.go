package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"vaultgate.org/internal/auth"
	"vaultgate.org/internal/authrequest"
	"vaultgate.org/internal/device"
	"vaultgate.org/internal/stream"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("VAULTGATE_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	api := New(
		ReadyProbe{},
		"test",
		authrequest.NewService(authrequest.NewInMemory()),
		device.NewService(device.NewInMemory()),
		stream.New(),
	)
	api.rateBurst = 100
	api.ratePerSec = 100

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) put(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPut, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) obtainToken(user, deviceID string) string {
	c.t.Helper()
	resp := c.post("/v1/auth/token", map[string]any{
		"user":   user,
		"device": deviceID,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode token response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Token
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestAuthRequestLifecycle(t *testing.T) {
	api := newTestAPI(t)

	// Requesting device creates a request without a token; the server
	// generates the access code and echoes it once.
	resp := api.post("/v1/auth-requests", map[string]any{
		"user_id":           "user-1",
		"device_identifier": "laptop-1",
		"public_key":        "pk-base64",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected create status: %d", resp.StatusCode)
	}
	created := decode[map[string]any](t, resp)
	id, _ := created["id"].(string)
	code, _ := created["access_code"].(string)
	if id == "" || code == "" {
		t.Fatalf("create response missing id or access_code: %v", created)
	}
	if resp.Header.Get("Location") != "/v1/auth-requests/"+id {
		t.Fatalf("missing Location header")
	}

	// Poll while pending: the record comes back unanswered.
	resp = api.get("/v1/auth-requests/"+id, url.Values{"code": []string{code}}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected poll status: %d", resp.StatusCode)
	}
	pending := decode[map[string]any](t, resp)
	if _, answered := pending["approved"]; answered {
		t.Fatalf("pending request should not carry approved")
	}

	// Verify: correct code is valid, wrong code is not.
	resp = api.post("/v1/auth-requests/"+id+"/verify", map[string]any{"access_code": code}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected verify status: %d", resp.StatusCode)
	}
	if v := decode[verifyResponse](t, resp); !v.Valid {
		t.Fatalf("expected correct code to verify")
	}
	resp = api.post("/v1/auth-requests/"+id+"/verify", map[string]any{"access_code": "wrong"}, nil)
	if v := decode[verifyResponse](t, resp); v.Valid {
		t.Fatalf("expected wrong code to be rejected")
	}

	// Approving device answers with the encrypted key material.
	token := api.obtainToken("user-1", "phone-1")
	resp = api.put("/v1/auth-requests/"+id, map[string]any{
		"approved":      true,
		"encrypted_key": "enc-user-key",
	}, bearerHeader(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected answer status: %d", resp.StatusCode)
	}
	answered := decode[map[string]any](t, resp)
	if answered["approved"] != true {
		t.Fatalf("expected approved answer, got %v", answered["approved"])
	}
	if answered["response_device_id"] != "phone-1" {
		t.Fatalf("expected response device from token, got %v", answered["response_device_id"])
	}

	// The requesting device polls again and receives the key.
	resp = api.get("/v1/auth-requests/"+id, url.Values{"code": []string{code}}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected poll status: %d", resp.StatusCode)
	}
	final := decode[map[string]any](t, resp)
	if final["encrypted_key"] != "enc-user-key" {
		t.Fatalf("expected encrypted key in answered response, got %v", final["encrypted_key"])
	}

	// A second answer is rejected.
	resp = api.put("/v1/auth-requests/"+id, map[string]any{
		"approved": false,
	}, bearerHeader(token))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for second answer, got %d", resp.StatusCode)
	}
}

func TestVerifyUnknownRequestIsInvalid(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth-requests/no-such-id/verify", map[string]any{
		"access_code": "whatever",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if v := decode[verifyResponse](t, resp); v.Valid {
		t.Fatalf("unknown request must verify as invalid")
	}
}

func TestPollWithWrongCodeIsNotFound(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth-requests", map[string]any{
		"user_id":           "user-1",
		"device_identifier": "laptop-1",
		"public_key":        "pk",
	}, nil)
	created := decode[map[string]any](t, resp)
	id := created["id"].(string)

	resp = api.get("/v1/auth-requests/"+id, url.Values{"code": []string{"wrong"}}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for wrong code, got %d", resp.StatusCode)
	}
}

func TestAnswerRequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth-requests", map[string]any{
		"user_id":           "user-1",
		"device_identifier": "laptop-1",
		"public_key":        "pk",
	}, nil)
	created := decode[map[string]any](t, resp)
	id := created["id"].(string)

	resp = api.put("/v1/auth-requests/"+id, map[string]any{"approved": true}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAnswerByForeignUserIsForbidden(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth-requests", map[string]any{
		"user_id":           "user-1",
		"device_identifier": "laptop-1",
		"public_key":        "pk",
	}, nil)
	created := decode[map[string]any](t, resp)
	id := created["id"].(string)

	token := api.obtainToken("intruder", "phone-x")
	resp = api.put("/v1/auth-requests/"+id, map[string]any{
		"approved":      true,
		"encrypted_key": "enc",
	}, bearerHeader(token))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestDeviceUntrustFlow(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("user-1", "phone-1")
	hdr := bearerHeader(token)

	register := func(name string) string {
		resp := api.post("/v1/devices", map[string]any{
			"name":                  name,
			"identifier":            name + "-uuid",
			"encrypted_private_key": "priv",
			"encrypted_public_key":  "pub",
			"encrypted_user_key":    "user",
		}, hdr)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("unexpected register status: %d", resp.StatusCode)
		}
		view := decode[deviceView](t, resp)
		if !view.Trusted {
			t.Fatalf("device %s should start trusted", name)
		}
		return view.ID
	}
	first := register("laptop")
	second := register("tablet")

	resp := api.post("/v1/devices/untrust", map[string]any{
		"device_ids": []string{first},
	}, hdr)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected untrust status: %d", resp.StatusCode)
	}
	result := decode[untrustResponse](t, resp)
	if result.Untrusted != 1 {
		t.Fatalf("expected 1 untrusted device, got %d", result.Untrusted)
	}

	resp = api.get("/v1/devices", nil, hdr)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected list status: %d", resp.StatusCode)
	}
	listing := decode[listDevicesResponse](t, resp)
	trusted := map[string]bool{}
	for _, d := range listing.Items {
		trusted[d.ID] = d.Trusted
	}
	if trusted[first] {
		t.Fatalf("first device should be untrusted")
	}
	if !trusted[second] {
		t.Fatalf("second device should stay trusted")
	}
}

func TestUntrustForeignDeviceIsForbidden(t *testing.T) {
	api := newTestAPI(t)

	ownerToken := api.obtainToken("owner", "phone-1")
	resp := api.post("/v1/devices", map[string]any{
		"identifier":            "owner-laptop",
		"encrypted_private_key": "priv",
		"encrypted_public_key":  "pub",
		"encrypted_user_key":    "user",
	}, bearerHeader(ownerToken))
	target := decode[deviceView](t, resp)

	intruderToken := api.obtainToken("intruder", "phone-2")
	resp = api.post("/v1/devices/untrust", map[string]any{
		"device_ids": []string{target.ID},
	}, bearerHeader(intruderToken))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	errBody := decode[map[string]any](t, resp)
	msg, _ := errBody["error"].(string)
	if !strings.Contains(msg, target.ID) {
		t.Fatalf("error should identify the offending device, got %q", msg)
	}

	// The owner's device keeps its trust.
	resp = api.get("/v1/devices", nil, bearerHeader(ownerToken))
	listing := decode[listDevicesResponse](t, resp)
	if len(listing.Items) != 1 || !listing.Items[0].Trusted {
		t.Fatalf("owner's device should stay trusted: %+v", listing.Items)
	}
}

func TestDevicesRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/devices", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp2 := api.post("/v1/devices/untrust", map[string]any{
		"device_ids": []string{"x"},
	}, nil)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp2.StatusCode)
	}
}

func TestHealthAndInfoEndpoints(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		resp := api.get(path, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status for %s: %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestTokenEndpointValidation(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth/token", map[string]any{"user": ""}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
