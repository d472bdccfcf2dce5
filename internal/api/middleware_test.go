package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authProbe(t *testing.T, secret string) (http.Handler, *string) {
	t.Helper()
	var seenUserID string
	handler := AuthMiddleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserID(r.Context())
		if !ok {
			t.Fatal("expected user id in context")
		}
		seenUserID = userID
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &seenUserID
}

func TestAuthMiddleware_AcceptsValidToken(t *testing.T) {
	handler, seenUserID := authProbe(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/transfers/tr-1", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "secret", "user-1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if *seenUserID != "user-1" {
		t.Fatalf("expected subject claim as user id, got %q", *seenUserID)
	}
}

func TestAuthMiddleware_RejectsMissingHeader(t *testing.T) {
	handler, _ := authProbe(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/transfers/tr-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing header, got %d", rec.Code)
	}
}

func TestAuthMiddleware_RejectsWrongSecret(t *testing.T) {
	handler, _ := authProbe(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/transfers/tr-1", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", "user-1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong secret, got %d", rec.Code)
	}
}

func TestAuthMiddleware_RejectsTokenWithoutSubject(t *testing.T) {
	handler, _ := authProbe(t, "secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/transfers/tr-1", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for token without subject, got %d", rec.Code)
	}
}

func TestAuthMiddleware_RejectsMalformedHeader(t *testing.T) {
	handler, _ := authProbe(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/transfers/tr-1", nil)
	req.Header.Set("Authorization", signToken(t, "secret", "user-1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for header without Bearer prefix, got %d", rec.Code)
	}
}
