package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestAuthenticator() *Authenticator {
	return NewAuthenticator([]StaticToken{
		{Token: "admin-secret", UID: "user_admin", Name: "Ops Admin", Roles: []string{RoleAdmin}},
		{Token: "viewer-secret", UID: "user_viewer", Name: "Readonly", Roles: []string{RoleViewer}},
		{Token: "bare-secret", UID: "user_bare"},
	})
}

func TestRequireAuth_AllowsValidToken(t *testing.T) {
	authn := newTestAuthenticator()

	handlerCalled := false
	handler := authn.RequireAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true

		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "user_admin" {
			t.Fatalf("expected uid user_admin, got %q", identity.UID)
		}
		if !identity.HasRole(RoleAdmin) {
			t.Fatalf("expected admin role")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer admin-secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !handlerCalled {
		t.Fatalf("expected handler to be called")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	authn := newTestAuthenticator()

	handler := authn.RequireAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if payload["error"] != "unauthenticated" {
		t.Fatalf("expected unauthenticated code, got %v", payload["error"])
	}
}

func TestRequireAuth_UnknownToken(t *testing.T) {
	authn := newTestAuthenticator()

	handler := authn.RequireAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer stolen-secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuth_InsufficientRole(t *testing.T) {
	authn := newTestAuthenticator()

	handler := authn.RequireAuth(RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer viewer-secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if payload["error"] != "insufficient_role" {
		t.Fatalf("expected insufficient_role code, got %v", payload["error"])
	}
}

func TestRequireAuth_FallbackRole(t *testing.T) {
	authn := newTestAuthenticator()

	handler := authn.RequireAuth(RoleViewer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		if !identity.HasRole(RoleViewer) {
			t.Fatalf("expected fallback viewer role, got %v", identity.Roles)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bare-secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{header: "Bearer abc", token: "abc", ok: true},
		{header: "bearer abc", token: "abc", ok: true},
		{header: "Basic abc", ok: false},
		{header: "Bearer ", ok: false},
		{header: "", ok: false},
	}
	for _, tc := range cases {
		token, ok := extractBearerToken(tc.header)
		if ok != tc.ok || token != tc.token {
			t.Fatalf("extractBearerToken(%q) = %q, %v", tc.header, token, ok)
		}
	}
}
