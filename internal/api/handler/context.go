package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/echos/users-api/internal/api/middleware"
	"github.com/echos/users-api/internal/core/domain"
)

// ctxSubject extracts the subject injected by the Auth middleware. A missing
// subject means the route was mounted without the guard chain: reject with 401.
func ctxSubject(c echo.Context) (*domain.Subject, error) {
	s, ok := middleware.SubjectFrom(c)
	if !ok || s.UserID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return s, nil
}

// bindAndValidate decodes the request body into req and runs the validator.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
