package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/echos/users-api/internal/core/domain"
	"github.com/echos/users-api/pkg/metrics"
)

const subjectKey = "subject"

// TokenVerifier verifies access tokens.
type TokenVerifier interface {
	VerifyAccess(token string) (*domain.Claims, error)
}

// SubjectValidator resolves the current directory projection of a token subject.
type SubjectValidator interface {
	ValidateSubject(ctx context.Context, userID string) (*domain.User, error)
}

// Auth verifies the bearer access token, re-validates that its subject still
// exists and injects the merged subject into the context.
func Auth(tokens TokenVerifier, subjects SubjectValidator, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				metrics.TokenRejectionsTotal.WithLabelValues("access", "missing").Inc()
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid authorization header")
			}

			claims, err := tokens.VerifyAccess(raw)
			if err != nil {
				reason := domain.TokenErrorReason(err)
				metrics.TokenRejectionsTotal.WithLabelValues("access", reason).Inc()
				log.Debug().Err(err).Str("reason", reason).Str("path", c.Path()).Msg("access token rejected")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			if claims.UserAgent != "" {
				if ua := c.Request().UserAgent(); ua != "" && ua != claims.UserAgent {
					metrics.TokenRejectionsTotal.WithLabelValues("access", "fingerprint").Inc()
					log.Info().Str("user_id", claims.UserID).Msg("access token presented from another user agent")
					return echo.NewHTTPError(http.StatusUnauthorized, "user agent not allowed")
				}
			}

			user, err := subjects.ValidateSubject(c.Request().Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, domain.ErrUserNotFound) {
					metrics.TokenRejectionsTotal.WithLabelValues("access", "subject_gone").Inc()
					return echo.NewHTTPError(http.StatusUnauthorized, "token invalid")
				}
				return err
			}

			c.Set(subjectKey, &domain.Subject{Claims: *claims, User: user})
			return next(c)
		}
	}
}

// SubjectFrom returns the subject injected by Auth.
func SubjectFrom(c echo.Context) (*domain.Subject, bool) {
	s, ok := c.Get(subjectKey).(*domain.Subject)
	return s, ok && s != nil
}

// WithSubject stores s the way Auth does. Useful for handlers mounted behind
// a different authenticator and for tests.
func WithSubject(c echo.Context, s *domain.Subject) {
	c.Set(subjectKey, s)
}

func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
