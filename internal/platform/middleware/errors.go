package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// ErrorHandler renders handler errors as JSON. Taxonomy errors from the
// domain services are mapped through apperr; the underlying cause of a 5xx is
// logged and never sent to the client.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if !errors.As(err, &he) {
			he = apperr.HTTPError(err)
		}

		if he.Code >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			cause := err
			if he.Internal != nil {
				cause = he.Internal
			}
			logger.Error().Err(cause).Str("request_id", rid).Str("path", c.Path()).Msg("request failed")
		}

		body := he.Message
		if msg, ok := body.(string); ok {
			body = map[string]string{"message": msg}
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(he.Code)
		} else {
			werr = c.JSON(he.Code, body)
		}
		if werr != nil {
			logger.Warn().Err(werr).Msg("write error response")
		}
	}
}
