package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJWTRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "unit-test-secret")

	token, err := GenerateJWT(42, "admin")
	if err != nil {
		t.Fatalf("GenerateJWT returned error: %v", err)
	}

	claims, err := ValidateJWT(token)
	if err != nil {
		t.Fatalf("ValidateJWT returned error: %v", err)
	}
	if claims["role"] != "admin" {
		t.Fatalf("role claim = %v, want admin", claims["role"])
	}

	t.Setenv("JWT_SECRET", "a-different-secret")
	if _, err := ValidateJWT(token); err == nil {
		t.Fatal("expected validation failure with a different signing key")
	}
}

func TestGetUserIDFromRequest(t *testing.T) {
	t.Setenv("JWT_SECRET", "unit-test-secret")

	token, err := GenerateJWT(7, "user")
	if err != nil {
		t.Fatalf("GenerateJWT returned error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/checkLogin", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	userID, err := GetUserIDFromRequest(req)
	if err != nil {
		t.Fatalf("GetUserIDFromRequest returned error: %v", err)
	}
	if userID != 7 {
		t.Fatalf("user ID = %d, want 7", userID)
	}

	req.Header.Set("Authorization", "Bearer not-a-token")
	if _, err := GetUserIDFromRequest(req); err == nil {
		t.Fatal("expected error for malformed token")
	}

	req.Header.Del("Authorization")
	if _, err := GetUserIDFromRequest(req); err == nil {
		t.Fatal("expected error without Authorization header")
	}
}

func TestIsValidEmail(t *testing.T) {
	cases := []struct {
		email string
		want  bool
	}{
		{"operator@example.com", true},
		{"first.last+tag@sub.example.org", true},
		{"missing-at.example.com", false},
		{"user@", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsValidEmail(tc.email); got != tc.want {
			t.Errorf("IsValidEmail(%q) = %v, want %v", tc.email, got, tc.want)
		}
	}
}
