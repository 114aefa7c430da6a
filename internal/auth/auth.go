// Package auth verifies OIDC bearer tokens and puts the caller's identity
// on the request context.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc"

	"projectflow/backend/internal/config"
	"projectflow/backend/internal/logging"
	"projectflow/backend/pkg/models"
)

// DevUser is the identity used for every request when auth is bypassed.
const DevUser = "dev@localhost"

type contextKey struct{}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserID returns the authenticated identity on ctx, or "" when there is none.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(contextKey{}).(string)
	return v
}

// Verifier checks a raw token and returns it parsed.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*oidc.IDToken, error)
}

// Auth authenticates API requests against an OIDC issuer.
type Auth struct {
	verifier Verifier
	logger   *logging.Logger
	bypass   bool
}

// New creates an Auth from configuration. In a dev environment with
// dev_mode_bypass set, no issuer is contacted and every request runs as
// DevUser.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Auth, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.IsDev() && cfg.DevModeBypass {
		logger.Warn("authentication bypass enabled", "user", DevUser)
		return &Auth{logger: logger, bypass: true}, nil
	}

	if cfg.Auth.Issuer == "" {
		return nil, errors.New("auth configuration is incomplete: issuer is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Auth.Issuer)
	if err != nil {
		return nil, err
	}

	// Access tokens often carry an API audience rather than the client id.
	oc := &oidc.Config{ClientID: cfg.Auth.ClientID, SkipClientIDCheck: cfg.Auth.ClientID == ""}
	return NewWithVerifier(provider.Verifier(oc), logger), nil
}

// NewWithVerifier creates an Auth that uses v directly.
func NewWithVerifier(v Verifier, logger *logging.Logger) *Auth {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Auth{verifier: v, logger: logger}
}

// RequireAuth rejects requests without a valid bearer token. The token's
// email claim, or its subject when there is no email, becomes the request's
// user identity.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.bypass {
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), DevUser)))
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			unauthorized(w, "missing bearer token")
			return
		}

		token, err := a.verifier.Verify(r.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			a.logger.DebugContext(r.Context(), "token verification failed", "error", err)
			unauthorized(w, "invalid token")
			return
		}

		var claims struct {
			Email string `json:"email"`
		}
		if err := token.Claims(&claims); err != nil {
			unauthorized(w, "failed to parse token claims")
			return
		}

		user := claims.Email
		if user == "" {
			user = token.Subject
		}
		if user == "" {
			unauthorized(w, "token has no subject")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="projectflow"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(models.ProblemDetails{
		Type:   "about:blank",
		Title:  http.StatusText(http.StatusUnauthorized),
		Status: http.StatusUnauthorized,
		Detail: detail,
	})
}
