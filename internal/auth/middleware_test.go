package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/timnaher/ds8r/internal/audit"
)

func newTestMiddleware(t *testing.T) *Middleware {
	t.Helper()
	v, err := NewVerifier(VerifierConfig{Algorithm: "HS256", SecretKey: testSecret})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return NewMiddlewareWithVerifier(v)
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"Bearer   abc  ", "abc", false},
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer ", "", true},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, err := extractBearerToken(r)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("extractBearerToken(%q) = %q, %v", tt.header, got, err)
		}
	}
}

func TestRequireAuthDisabledPassesThrough(t *testing.T) {
	m := NewMiddleware()
	if m.Enabled() {
		t.Fatal("middleware without verifier should be disabled")
	}

	handler := m.RequireAuth(m.RequireScope(ScopeStimulate)(okHandler))
	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodPost, "/api/v1/trigger", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestRequireAuth(t *testing.T) {
	m := newTestMiddleware(t)

	var user string
	handler := m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		user = audit.UserFromContext(r.Context())
		if ClaimsFromContext(r.Context()) == nil {
			t.Error("claims missing from context")
		}
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	r.Header.Set("Authorization", "Bearer "+hsToken(t, operatorClaims()))
	handler(rr, r)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if user != "operator-1" {
		t.Errorf("audit user = %q", user)
	}
}

func TestRequireAuthRejects(t *testing.T) {
	m := newTestMiddleware(t)
	handler := m.RequireAuth(okHandler)

	for _, header := range []string{"", "Bearer bogus"} {
		rr := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		handler(rr, r)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want 401", header, rr.Code)
		}
		body := decodeError(t, rr)
		if body["code"] != "UNAUTHORIZED" || body["correlationId"] == "" {
			t.Errorf("unexpected body: %v", body)
		}
	}
}

func TestRequireAuthHealthIsPublic(t *testing.T) {
	m := newTestMiddleware(t)
	rr := httptest.NewRecorder()
	m.RequireAuth(okHandler)(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestRequireScope(t *testing.T) {
	m := newTestMiddleware(t)
	handler := m.RequireAuth(m.RequireScope(ScopeStimulate)(okHandler))

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"operator", hsToken(t, operatorClaims()), http.StatusOK},
		{"viewer", hsToken(t, viewerClaims()), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/trigger", nil)
			r.Header.Set("Authorization", "Bearer "+tt.token)
			handler(rr, r)
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
		})
	}
}

func TestRequireScopeWithoutClaims(t *testing.T) {
	m := newTestMiddleware(t)
	rr := httptest.NewRecorder()
	m.RequireScope(ScopeRead)(okHandler)(rr, httptest.NewRequest(http.MethodGet, "/api/v1/state", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestRequireRole(t *testing.T) {
	m := newTestMiddleware(t)
	handler := m.RequireAuth(m.RequireRole(RoleOperator)(okHandler))

	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPut, "/api/v1/parameters", nil)
	r.Header.Set("Authorization", "Bearer "+hsToken(t, viewerClaims()))
	handler(rr, r)
	if rr.Code != http.StatusForbidden {
		t.Errorf("viewer status = %d, want 403", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.Header.Set("Authorization", "Bearer "+hsToken(t, operatorClaims()))
	handler(rr, r)
	if rr.Code != http.StatusOK {
		t.Errorf("operator status = %d, want 200", rr.Code)
	}
}
