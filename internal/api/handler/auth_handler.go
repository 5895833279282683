package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/echos/users-api/internal/core/domain"
	"github.com/echos/users-api/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
}

func NewAuthHandler(authService ports.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Signup creates a new account with the "user" role and returns a token pair.
//
// @Summary      Sign up
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      signupRequest  true  "Account details"
// @Success      201   {object}  authResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      409   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /auth/signup [post]
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.authService.Signup(c.Request().Context(), ports.SignupInput{
		Pseudonyme: req.Pseudonyme,
		Password:   req.Password,
		Name:       req.Name,
		Address:    req.Address.toDomain(),
		Comment:    req.Comment,
		UserAgent:  c.Request().UserAgent(),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, toAuthResponse(res))
}

// Signin authenticates with pseudonyme and password.
//
// @Summary      Sign in
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      signinRequest  true  "Credentials"
// @Success      200   {object}  authResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Router       /auth/signin [post]
func (h *AuthHandler) Signin(c echo.Context) error {
	var req signinRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.authService.Signin(c.Request().Context(), ports.SigninInput{
		Pseudonyme: req.Pseudonyme,
		Password:   req.Password,
		UserAgent:  c.Request().UserAgent(),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toAuthResponse(res))
}

// Refresh exchanges a refresh token for a new access/refresh pair.
//
// @Summary      Refresh tokens
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  true  "Refresh token"
// @Success      200   {object}  refreshResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	pair, err := h.authService.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
		}
		return err
	}

	return c.JSON(http.StatusOK, refreshResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}
