package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func echoIdentity(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		if !ok {
			t.Error("identity missing from context")
		}
		_, _ = w.Write([]byte(id.Email))
	})
}

func TestRequireAuth(t *testing.T) {
	valid := sign(t, jwt.SigningMethodHS256, testSecret, validClaims())

	tests := []struct {
		name       string
		secret     string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid", testSecret, "Bearer " + valid, http.StatusOK, "a@x.com"},
		{"lowercase scheme", testSecret, "bearer " + valid, http.StatusOK, "a@x.com"},
		{"missing header", testSecret, "", http.StatusUnauthorized, ""},
		{"wrong scheme", testSecret, "Basic " + valid, http.StatusUnauthorized, ""},
		{"bad token", testSecret, "Bearer nope", http.StatusUnauthorized, ""},
		{"no secret", "", "Bearer " + valid, http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RequireAuth(NewVerifier(tt.secret))(echoIdentity(t))
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if tt.wantBody != "" && rr.Body.String() != tt.wantBody {
				t.Fatalf("expected body %q, got %q", tt.wantBody, rr.Body.String())
			}
			if tt.wantStatus == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") != "Bearer" {
				t.Fatal("expected WWW-Authenticate: Bearer")
			}
		})
	}
}
