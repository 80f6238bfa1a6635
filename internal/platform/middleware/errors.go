package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/abejo/dental-clinic/internal/platform/apierr"
)

// errorBody is the failure envelope every endpoint answers with.
type errorBody struct {
	Success  bool     `json:"success"`
	Error    string   `json:"error"`
	Required []string `json:"required,omitempty"`
	Method   string   `json:"method,omitempty"`
	URL      string   `json:"url,omitempty"`
}

// StatusOf maps an error returned by a handler to the HTTP status the error
// handler renders for it.
func StatusOf(err error) int {
	if e, ok := apierr.As(err); ok {
		return e.Status()
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if isRouteNotFound(he) {
			return http.StatusNotFound
		}
		return he.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func isRouteNotFound(he *echo.HTTPError) bool {
	return he == echo.ErrNotFound || he == echo.ErrMethodNotAllowed
}

// ErrorHandler renders every error as the JSON failure envelope. Unclassified
// errors are infrastructure failures: they answer 500 with the underlying
// message and are logged with the request id.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := StatusOf(err)
		body := errorBody{Error: err.Error()}

		var he *echo.HTTPError
		switch e, ok := apierr.As(err); {
		case ok:
			body.Error = e.Message
			body.Required = e.Required
		case errors.As(err, &he):
			if isRouteNotFound(he) {
				body.Error = "Route not found"
				body.Method = c.Request().Method
				body.URL = c.Request().URL.String()
			} else {
				body.Error = fmt.Sprint(he.Message)
			}
		case status == http.StatusGatewayTimeout:
			body.Error = "Request timeout"
		}

		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}
