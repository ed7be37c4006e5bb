package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sunpeak-solar/api/internal/platform/auth"
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	filters := make([]string, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			filters = append(filters, trimmed)
		}
	}
	return filters
}

func parsePageSize(raw string, fallback, max int) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, true
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	switch {
	case size <= 0:
		return fallback, true
	case size > max:
		return max, true
	default:
		return size, true
	}
}

// requireRoles returns the authenticator's middleware, or a pass-through when
// no authenticator is configured (tests, local development).
func requireRoles(authn *auth.Authenticator, roles ...string) func(http.Handler) http.Handler {
	if authn == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return authn.RequireAuth(roles...)
}

func actorFromContext(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil {
		return strings.TrimSpace(identity.UID)
	}
	return ""
}
