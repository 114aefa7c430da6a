package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectflow/backend/internal/config"
)

const (
	testIssuer   = "https://test-issuer.com"
	testClientID = "test-client"
)

// mockKeySet satisfies oidc.KeySet without checking signatures.
type mockKeySet struct{}

func (mockKeySet) VerifySignature(ctx context.Context, jwtToken string) ([]byte, error) {
	parts := strings.Split(jwtToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed jwt")
	}
	return base64.RawURLEncoding.DecodeString(parts[1])
}

func fakeToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	header, err := json.Marshal(map[string]interface{}{"alg": "RS256", "typ": "JWT", "kid": "test-key"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString([]byte("fakesignature"))
}

func baseClaims(sub string) map[string]interface{} {
	return map[string]interface{}{
		"iss": testIssuer,
		"aud": testClientID,
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	}
}

func testAuth() *Auth {
	v := oidc.NewVerifier(testIssuer, mockKeySet{}, &oidc.Config{ClientID: testClientID})
	return NewWithVerifier(v, nil)
}

func serve(a *Auth, req *http.Request) (*httptest.ResponseRecorder, string) {
	var user string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	a.RequireAuth(next).ServeHTTP(rec, req)
	return rec, user
}

func TestRequireAuth_BearerTokenEmail(t *testing.T) {
	claims := baseClaims("user-1")
	claims["email"] = "user@acme.com"

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+fakeToken(t, claims))

	rec, user := serve(testAuth(), req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "user@acme.com", user)
}

func TestRequireAuth_FallsBackToSubject(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+fakeToken(t, baseClaims("svc-account")))

	rec, user := serve(testAuth(), req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "svc-account", user)
}

func TestRequireAuth_Rejects(t *testing.T) {
	expired := baseClaims("user-1")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	wrongIssuer := baseClaims("user-1")
	wrongIssuer["iss"] = "https://elsewhere.example"

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"malformed token", "Bearer not-a-jwt"},
		{"expired", "Bearer " + fakeToken(t, expired)},
		{"wrong issuer", "Bearer " + fakeToken(t, wrongIssuer)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec, user := serve(testAuth(), req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.Empty(t, user)
		})
	}
}

func TestRequireAuth_BypassMode(t *testing.T) {
	cfg := &config.Config{Environment: "DEV", DevModeBypass: true}
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	rec, user := serve(a, httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DevUser, user)
}

func TestNew_RequiresIssuerOutsideDev(t *testing.T) {
	cfg := &config.Config{Environment: "PROD", DevModeBypass: true}
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}
