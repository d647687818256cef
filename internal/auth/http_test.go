// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token extraction from header and query parameter, and rejection paths

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var httpTestSecret = []byte("http-middleware-test-secret-32b!")

func authedHandler(t *testing.T, wantUserID string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := FromContext(r.Context())
		if authCtx == nil {
			t.Error("handler reached without AuthContext")
			return
		}
		if authCtx.UserID != wantUserID {
			t.Errorf("UserID = %q, want %q", authCtx.UserID, wantUserID)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestHTTPAuthMiddleware_ValidHeader(t *testing.T) {
	verifier := NewJWTVerifier(httpTestSecret)
	token, err := verifier.Generate("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	handler := HTTPAuthMiddleware(verifier)(authedHandler(t, "user-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHTTPAuthMiddleware_QueryParamFallback(t *testing.T) {
	verifier := NewJWTVerifier(httpTestSecret)
	token, err := verifier.Generate("user-2", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	handler := HTTPAuthMiddleware(verifier)(authedHandler(t, "user-2"))

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/x/stream?authorization="+token, nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHTTPAuthMiddleware_Rejections(t *testing.T) {
	verifier := NewJWTVerifier(httpTestSecret)

	expired, err := verifier.Generate("user-3", -time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		target string
	}{
		{
			name:   "no credentials",
			setup:  func(r *http.Request) {},
			target: "/api/conversations",
		},
		{
			name: "malformed header",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Token abc")
			},
			target: "/api/conversations",
		},
		{
			name: "garbage token",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer not-a-jwt")
			},
			target: "/api/conversations",
		},
		{
			name: "expired token",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+expired)
			},
			target: "/api/conversations",
		},
		{
			name:   "garbage query token",
			setup:  func(r *http.Request) {},
			target: "/api/conversations?authorization=nope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := HTTPAuthMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be reached")
			}))

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want %q", ct, "application/json")
			}
			var body struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("body %q is not JSON: %v", rec.Body.String(), err)
			}
			if body.Error == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestTokenFromRequest_HeaderWins(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?authorization=query-token", nil)
	req.Header.Set("Authorization", "Bearer header-token")

	token, errMsg := TokenFromRequest(req)
	if errMsg != "" {
		t.Fatalf("TokenFromRequest() error = %q", errMsg)
	}
	if token != "header-token" {
		t.Errorf("token = %q, want %q", token, "header-token")
	}
}

func TestTokenFromRequest_QueryBearerPrefix(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?authorization=Bearer%20stripped", nil)

	token, errMsg := TokenFromRequest(req)
	if errMsg != "" {
		t.Fatalf("TokenFromRequest() error = %q", errMsg)
	}
	if token != "stripped" {
		t.Errorf("token = %q, want %q", token, "stripped")
	}
}
