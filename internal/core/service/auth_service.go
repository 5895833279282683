package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/echos/users-api/internal/core/domain"
	"github.com/echos/users-api/internal/core/ports"
	"github.com/echos/users-api/pkg/metrics"
)

// AuthOptions holds the behaviour switches of the auth service.
type AuthOptions struct {
	// BindUserAgent embeds the caller's User-Agent into issued tokens.
	BindUserAgent bool
	// RevalidateOnRefresh re-reads the subject from the directory on refresh
	// instead of trusting the claims embedded in the refresh token.
	RevalidateOnRefresh bool
}

// AuthService implements signup, signin, refresh and subject validation.
type AuthService struct {
	repo   ports.UserRepository
	hasher ports.PasswordHasher
	tokens ports.TokenIssuer
	cache  ports.SubjectCache
	opts   AuthOptions
	log    zerolog.Logger
	now    func() time.Time
}

// NewAuthService wires the service. cache may be nil.
func NewAuthService(
	repo ports.UserRepository,
	hasher ports.PasswordHasher,
	tokens ports.TokenIssuer,
	cache ports.SubjectCache,
	opts AuthOptions,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		cache:  cache,
		opts:   opts,
		log:    log,
		now:    time.Now,
	}
}

func normalizePseudonyme(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

func (s *AuthService) Signup(ctx context.Context, in ports.SignupInput) (*ports.AuthResult, error) {
	pseudonyme := normalizePseudonyme(in.Pseudonyme)
	if pseudonyme == "" || in.Password == "" {
		return nil, domain.ErrInvalidInput
	}

	// Best-effort pre-check; the unique index is what actually guarantees it.
	_, err := s.repo.FindOne(ctx, ports.UserFilter{Pseudonyme: pseudonyme})
	switch {
	case err == nil:
		return nil, domain.ErrUserExists
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, fmt.Errorf("signup: lookup: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.log.Error().Err(err).Msg("password hashing failed")
		return nil, fmt.Errorf("signup: %w", err)
	}

	now := s.now().UTC()
	created, err := s.repo.Create(ctx, &domain.User{
		Pseudonyme:   pseudonyme,
		PasswordHash: hash,
		Name:         in.Name,
		Address:      in.Address,
		Comment:      in.Comment,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil, err
		}
		return nil, fmt.Errorf("signup: create: %w", err)
	}

	result, err := s.issue(created.Claims(), in.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	metrics.SignupsTotal.Inc()
	s.log.Info().Str("user_id", created.ID).Str("pseudonyme", pseudonyme).Msg("user signed up")
	return result, nil
}

func (s *AuthService) Signin(ctx context.Context, in ports.SigninInput) (*ports.AuthResult, error) {
	pseudonyme := normalizePseudonyme(in.Pseudonyme)
	if pseudonyme == "" || in.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindOne(ctx, ports.UserFilter{Pseudonyme: pseudonyme})
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			metrics.SigninsTotal.WithLabelValues("not_found").Inc()
			return nil, err
		}
		return nil, fmt.Errorf("signin: lookup: %w", err)
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		metrics.SigninsTotal.WithLabelValues("invalid_credentials").Inc()
		s.log.Info().Str("user_id", user.ID).Msg("signin rejected: password mismatch")
		return nil, domain.ErrInvalidCredentials
	}

	now := s.now().UTC()
	if _, err := s.repo.Update(ctx, ports.UserFilter{ID: user.ID}, domain.UserPatch{LastAuthenticatedAt: &now}); err != nil {
		return nil, fmt.Errorf("signin: record authentication: %w", err)
	}

	result, err := s.issue(user.Claims(), in.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("signin: %w", err)
	}

	metrics.SigninsTotal.WithLabelValues("success").Inc()
	s.log.Info().Str("user_id", user.ID).Msg("user signed in")
	return result, nil
}

// Refresh mints a new token pair from a valid refresh token. Every
// verification failure is reported as domain.ErrUnauthorized; the cause is
// only logged.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*ports.TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		reason := domain.TokenErrorReason(err)
		metrics.TokenRejectionsTotal.WithLabelValues("refresh", reason).Inc()
		s.log.Info().Str("reason", reason).Err(err).Msg("refresh token rejected")
		return nil, domain.ErrUnauthorized
	}

	next := domain.Claims{
		UserID:    claims.UserID,
		Role:      claims.Role,
		Name:      claims.Name,
		UserAgent: claims.UserAgent,
	}
	if s.opts.RevalidateOnRefresh {
		user, err := s.repo.FindOne(ctx, ports.UserFilter{ID: claims.UserID})
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				s.log.Info().Str("user_id", claims.UserID).Msg("refresh rejected: subject no longer exists")
				return nil, domain.ErrUnauthorized
			}
			return nil, fmt.Errorf("refresh: lookup: %w", err)
		}
		next.Role = user.Role
		next.Name = user.Name
	}

	access, err := s.tokens.IssueAccess(next)
	if err != nil {
		s.log.Error().Err(err).Msg("access token signing failed")
		return nil, fmt.Errorf("refresh: %w", err)
	}
	refresh, err := s.tokens.IssueRefresh(next)
	if err != nil {
		s.log.Error().Err(err).Msg("refresh token signing failed")
		return nil, fmt.Errorf("refresh: %w", err)
	}

	metrics.TokenRefreshesTotal.Inc()
	return &ports.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// ValidateSubject returns the current public projection of the user, or
// domain.ErrUserNotFound when the account is gone.
func (s *AuthService) ValidateSubject(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, domain.ErrUserNotFound
	}

	var (
		generation int64
		cacheable  bool
	)
	if s.cache != nil {
		cached, gen, err := s.cache.Get(ctx, userID)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Str("user_id", userID).Msg("subject cache read failed, falling back to directory")
		case cached != nil:
			return cached, nil
		default:
			generation, cacheable = gen, true
		}
	}

	user, err := s.repo.FindOne(ctx, ports.UserFilter{ID: userID})
	if err != nil {
		return nil, err
	}
	public := user.Public()

	if cacheable {
		if err := s.cache.Set(ctx, public, generation); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("subject cache write failed")
		}
	}
	return public, nil
}

func (s *AuthService) issue(claims domain.Claims, userAgent string) (*ports.AuthResult, error) {
	if s.opts.BindUserAgent {
		claims.UserAgent = userAgent
	}

	access, err := s.tokens.IssueAccess(claims)
	if err != nil {
		s.log.Error().Err(err).Msg("access token signing failed")
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(claims)
	if err != nil {
		s.log.Error().Err(err).Msg("refresh token signing failed")
		return nil, err
	}

	user := claims
	user.UserAgent = ""
	return &ports.AuthResult{Token: access, RefreshToken: refresh, User: user}, nil
}
