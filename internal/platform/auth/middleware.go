package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

const defaultFallbackRole = RoleViewer

// StaticToken binds a pre-shared bearer token to an identity. Tokens are
// provisioned through configuration; there is no self-service issuance.
type StaticToken struct {
	Token string
	UID   string
	Name  string
	Roles []string
}

// Authenticator validates bearer tokens against the configured static set
// and enforces role boundaries on protected routes.
type Authenticator struct {
	tokens       []staticEntry
	fallbackRole string
}

type staticEntry struct {
	token    []byte
	identity Identity
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithFallbackRole sets the role assumed when a token carries none.
func WithFallbackRole(role string) Option {
	return func(a *Authenticator) {
		role = normaliseRole(role)
		if role != "" {
			a.fallbackRole = role
		}
	}
}

// NewAuthenticator constructs an Authenticator from the configured tokens.
func NewAuthenticator(tokens []StaticToken, opts ...Option) *Authenticator {
	a := &Authenticator{fallbackRole: defaultFallbackRole}

	for _, t := range tokens {
		secret := strings.TrimSpace(t.Token)
		if secret == "" {
			continue
		}
		roles := make([]string, 0, len(t.Roles))
		for _, role := range t.Roles {
			if role = normaliseRole(role); role != "" {
				roles = append(roles, role)
			}
		}
		a.tokens = append(a.tokens, staticEntry{
			token: []byte(secret),
			identity: Identity{
				UID:   strings.TrimSpace(t.UID),
				Name:  strings.TrimSpace(t.Name),
				Roles: roles,
			},
		})
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireAuth verifies the Authorization bearer token and ensures the caller
// holds one of the allowed roles. With no roles given, any valid token passes.
func (a *Authenticator) RequireAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		role = normaliseRole(role)
		if role == "" {
			continue
		}
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || len(a.tokens) == 0 {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			identity, ok := a.lookup(tokenStr)
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "invalid_token", "unknown api token")
				return
			}

			if len(identity.Roles) == 0 && a.fallbackRole != "" {
				identity.Roles = []string{a.fallbackRole}
			}
			if len(identity.Roles) == 0 {
				respondAuthError(w, http.StatusUnauthorized, "missing_role", "no roles associated with identity")
				return
			}

			if len(allowed) > 0 && !hasAllowedRole(identity.Roles, allowed) {
				respondAuthError(w, http.StatusForbidden, "insufficient_role", "identity does not have required role")
				return
			}

			ctx := WithIdentity(r.Context(), &identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// lookup compares the presented token against every configured token in
// constant time so unknown tokens cannot be probed byte by byte.
func (a *Authenticator) lookup(token string) (Identity, bool) {
	presented := []byte(token)
	var (
		found Identity
		ok    bool
	)
	for _, entry := range a.tokens {
		if subtle.ConstantTimeCompare(entry.token, presented) == 1 {
			found = entry.identity
			ok = true
		}
	}
	if !ok {
		return Identity{}, false
	}
	found.Roles = append([]string(nil), found.Roles...)
	return found, true
}

func hasAllowedRole(identityRoles []string, allowed map[string]struct{}) bool {
	for _, role := range identityRoles {
		if _, ok := allowed[normaliseRole(role)]; ok {
			return true
		}
	}
	return false
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}

	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   code,
		"message": message,
		"status":  status,
	})
}
