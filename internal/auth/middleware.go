package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// RoleSource resolves the roles of a user
type RoleSource interface {
	GetRoles(ctx context.Context, userID string) ([]string, error)
}

// Middleware attaches identities to requests
type Middleware struct {
	verifier *Verifier
	roles    RoleSource
}

// NewMiddleware creates auth middleware
func NewMiddleware(verifier *Verifier, roles RoleSource) *Middleware {
	return &Middleware{verifier: verifier, roles: roles}
}

// Identify resolves the bearer token when one is present. Requests without a
// token continue anonymously; a bad token is rejected.
func (m *Middleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.verifier.Verify(token)
		if err != nil {
			slog.Warn("rejected bearer token", "error", err, "remote_addr", r.RemoteAddr)
			writeAuthError(w, http.StatusUnauthorized, "invalid_token", "the provided token is not valid")
			return
		}

		if m.roles != nil {
			roles, err := m.roles.GetRoles(r.Context(), identity.ID)
			if err != nil {
				slog.Error("failed to load roles", "error", err, "user_id", identity.ID)
			} else {
				identity.Roles = roles
			}
		}

		slog.Debug("authenticated request", "user_id", identity.ID)
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	})
}

// Require rejects anonymous requests with auth_required, which clients treat
// as a prompt to sign in
func (m *Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromContext(r.Context()) == nil {
			writeAuthError(w, http.StatusUnauthorized, "auth_required", ErrAuthRequired.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole returns middleware that checks for a role
func (m *Middleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if identity == nil {
				writeAuthError(w, http.StatusUnauthorized, "auth_required", ErrAuthRequired.Error())
				return
			}

			if !identity.HasRole(role) {
				slog.Warn("permission denied",
					"user_id", identity.ID,
					"required", role,
					"has", identity.Roles,
				)
				writeAuthError(w, http.StatusForbidden, "forbidden", "missing required role: "+role)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractToken reads "Authorization: Bearer <jwt>", falling back to the
// access_token query parameter for websocket upgrades
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if strings.HasPrefix(header, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

type errorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	body := errorBody{}
	body.Error.Code = code
	body.Error.Message = message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
