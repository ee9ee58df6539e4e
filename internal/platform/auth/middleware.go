package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	tokenKey    contextKey = "token"
)

// Claims is the token payload. ActorID ("id") carries the actor's uuid; Role (or the
// first recognised entry of Roles) carries doctor/patient.
type Claims struct {
	jwt.RegisteredClaims
	ActorID string   `json:"id"`
	Role    string   `json:"role,omitempty"`
	Roles   []string `json:"roles,omitempty"`
	Email   string   `json:"email,omitempty"`
}

type JWTConfig struct {
	SigningKey []byte
	Issuer     string
	// Skipper lets public routes through without a token.
	Skipper func(echo.Context) bool
	// Revoked, when set, rejects logged-out tokens.
	Revoked *RevocationList
}

// TokenInfo identifies the verified token of a request.
type TokenInfo struct {
	ID        string
	ExpiresAt time.Time
}

// JWTMiddleware verifies the bearer token, resolves the actor identity and
// stores it on the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	keyFunc := func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, ok := bearerToken(c.Request())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed authorization header")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			if cfg.Revoked != nil && cfg.Revoked.IsRevoked(claims.ID) {
				return echo.NewHTTPError(http.StatusUnauthorized, "token revoked")
			}

			ident, err := ResolveIdentity(claims)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			info := TokenInfo{ID: claims.ID}
			if claims.ExpiresAt != nil {
				info.ExpiresAt = claims.ExpiresAt.Time
			}
			ctx := WithIdentity(c.Request().Context(), ident)
			ctx = context.WithValue(ctx, tokenKey, info)
			c.Set("actor_id", ident.ActorID.String())
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// bearerToken returns the token of an "Authorization: Bearer <token>" header.
// Browsers cannot set headers on websocket upgrades, so the access_token
// query parameter is accepted as a fallback.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		tok := r.URL.Query().Get("access_token")
		return tok, tok != ""
	}
	scheme, tok, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// WithIdentity returns a context carrying ident.
func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// IdentityFromContext returns the identity set by JWTMiddleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityKey).(Identity)
	return ident, ok
}

// TokenFromContext returns the token info set by JWTMiddleware.
func TokenFromContext(ctx context.Context) (TokenInfo, bool) {
	info, ok := ctx.Value(tokenKey).(TokenInfo)
	return info, ok
}
