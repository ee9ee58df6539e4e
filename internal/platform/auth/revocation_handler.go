package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// LogoutHandler revokes the bearer token of the current request. Routes using
// it must sit behind JWTMiddleware configured with the same list.
func LogoutHandler(list *RevocationList) echo.HandlerFunc {
	return func(c echo.Context) error {
		tok, ok := TokenFromContext(c.Request().Context())
		if !ok || tok.ID == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "no revocable token on request")
		}
		list.Revoke(tok.ID, tok.ExpiresAt)
		return c.NoContent(http.StatusNoContent)
	}
}
