package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(id uuid.UUID, role string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		ActorID: id.String(),
		Role:    role,
	}
}

func runMiddleware(t *testing.T, cfg JWTConfig, header string) (error, *Identity) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen *Identity
	h := JWTMiddleware(cfg)(func(c echo.Context) error {
		if ident, ok := IdentityFromContext(c.Request().Context()); ok {
			seen = &ident
		}
		return c.String(http.StatusOK, "ok")
	})
	return h(c), seen
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != want {
		t.Errorf("expected %d, got %d", want, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	err, _ := runMiddleware(t, JWTConfig{SigningKey: testSigningKey}, "")
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err, _ := runMiddleware(t, JWTConfig{SigningKey: testSigningKey}, tt.header)
			assertStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	id := uuid.New()
	tok := createTestToken(t, validClaims(id, "doctor"), testSigningKey)

	err, ident := runMiddleware(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ident == nil {
		t.Fatal("expected identity on context")
	}
	if ident.ActorID != id || ident.Role != RoleDoctor {
		t.Errorf("unexpected identity %+v", ident)
	}
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	tok := createTestToken(t, validClaims(uuid.New(), "doctor"), []byte("another-key"))
	err, _ := runMiddleware(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tok)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := validClaims(uuid.New(), "patient")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	tok := createTestToken(t, claims, testSigningKey)

	err, _ := runMiddleware(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tok)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongIssuer(t *testing.T) {
	claims := validClaims(uuid.New(), "patient")
	claims.Issuer = "someone-else"
	tok := createTestToken(t, claims, testSigningKey)

	err, _ := runMiddleware(t, JWTConfig{SigningKey: testSigningKey, Issuer: "clinic"}, "Bearer "+tok)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_MalformedIdentity(t *testing.T) {
	claims := validClaims(uuid.New(), "doctor")
	claims.ActorID = "not-a-uuid"
	tok := createTestToken(t, claims, testSigningKey)

	err, _ := runMiddleware(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tok)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	cfg := JWTConfig{
		SigningKey: testSigningKey,
		Skipper:    func(echo.Context) bool { return true },
	}
	err, ident := runMiddleware(t, cfg, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ident != nil {
		t.Error("skipped requests must not carry an identity")
	}
}

func TestJWTMiddleware_QueryTokenFallback(t *testing.T) {
	id := uuid.New()
	tok := createTestToken(t, validClaims(id, "patient"), testSigningKey)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws?access_token="+tok, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(func(c echo.Context) error {
		ident, ok := IdentityFromContext(c.Request().Context())
		if !ok || ident.ActorID != id {
			t.Errorf("expected identity from query token, got %+v", ident)
		}
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
