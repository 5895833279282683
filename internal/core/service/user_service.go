package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/echos/users-api/internal/core/domain"
	"github.com/echos/users-api/internal/core/ports"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

// sortableFields lists the user fields List may sort on.
var sortableFields = map[string]struct{}{
	"pseudonyme":          {},
	"name":                {},
	"role":                {},
	"createdAt":           {},
	"updatedAt":           {},
	"lastAuthenticatedAt": {},
	"address.city":        {},
	"address.country":     {},
}

// UserService implements profile and admin operations over the directory.
type UserService struct {
	repo   ports.UserRepository
	hasher ports.PasswordHasher
	cache  ports.SubjectCache
	log    zerolog.Logger
}

// NewUserService wires the service. cache may be nil.
func NewUserService(repo ports.UserRepository, hasher ports.PasswordHasher, cache ports.SubjectCache, log zerolog.Logger) *UserService {
	return &UserService{repo: repo, hasher: hasher, cache: cache, log: log}
}

func (s *UserService) Get(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.repo.FindOne(ctx, ports.UserFilter{ID: userID})
	if err != nil {
		return nil, err
	}
	return user.Public(), nil
}

// UpdateProfile applies a self-service edit. The role can never change here.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in ports.ProfileInput) (*domain.User, error) {
	patch, err := s.buildPatch(in)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, userID, patch)
}

func (s *UserService) AdminUpdate(ctx context.Context, userID string, in ports.AdminUserInput) (*domain.User, error) {
	patch, err := s.buildPatch(in.ProfileInput)
	if err != nil {
		return nil, err
	}
	if in.Role != nil {
		if !domain.ValidRole(*in.Role) {
			return nil, fmt.Errorf("%w: role must be one of admin, user", domain.ErrInvalidInput)
		}
		role := *in.Role
		patch.Role = &role
	}

	if _, err := s.repo.FindOne(ctx, ports.UserFilter{ID: userID}); err != nil {
		return nil, err
	}
	return s.apply(ctx, userID, patch)
}

// Delete hard-deletes the user. A missing user is domain.ErrUserNotFound.
func (s *UserService) Delete(ctx context.Context, userID string) error {
	if _, err := s.repo.FindOne(ctx, ports.UserFilter{ID: userID}); err != nil {
		return err
	}
	if err := s.repo.Remove(ctx, ports.UserFilter{ID: userID}); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	s.log.Info().Str("user_id", userID).Msg("user deleted")
	return nil
}

func (s *UserService) List(ctx context.Context, in ports.ListUsersInput) (*ports.ListUsersResult, error) {
	page := in.Page
	if page < 1 {
		page = defaultPage
	}
	limit := in.Limit
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	filter := ports.ListUsersFilter{
		Text:          strings.TrimSpace(in.Text),
		SortDirection: 1,
		Page:          page,
		Limit:         limit,
	}
	if in.PropertySort != "" {
		if _, ok := sortableFields[in.PropertySort]; !ok {
			return nil, fmt.Errorf("%w: cannot sort on %q", domain.ErrInvalidInput, in.PropertySort)
		}
		filter.SortField = in.PropertySort
	}
	switch in.DirectionSort {
	case 0, 1:
	case -1:
		filter.SortDirection = -1
	default:
		return nil, fmt.Errorf("%w: directionSort must be 1 or -1", domain.ErrInvalidInput)
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	items := make([]*domain.User, 0, len(users))
	for _, u := range users {
		items = append(items, u.Public())
	}

	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}

	return &ports.ListUsersResult{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

func (s *UserService) buildPatch(in ports.ProfileInput) (domain.UserPatch, error) {
	var patch domain.UserPatch
	if in.Pseudonyme != nil {
		p := normalizePseudonyme(*in.Pseudonyme)
		if p == "" {
			return patch, fmt.Errorf("%w: pseudonyme must not be empty", domain.ErrInvalidInput)
		}
		patch.Pseudonyme = &p
	}
	if in.Password != nil {
		if !domain.ValidPassword(*in.Password) {
			return patch, fmt.Errorf("%w: password does not meet the policy", domain.ErrInvalidInput)
		}
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			s.log.Error().Err(err).Msg("password hashing failed")
			return patch, err
		}
		patch.PasswordHash = &hash
	}
	patch.Name = in.Name
	patch.Address = in.Address
	patch.Comment = in.Comment
	return patch, nil
}

func (s *UserService) apply(ctx context.Context, userID string, patch domain.UserPatch) (*domain.User, error) {
	if patch.Empty() {
		return s.Get(ctx, userID)
	}

	updated, err := s.repo.Update(ctx, ports.UserFilter{ID: userID}, patch)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) || errors.Is(err, domain.ErrUserExists) {
			return nil, err
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	s.invalidate(ctx, userID)
	return updated.Public(), nil
}

func (s *UserService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("subject cache invalidation failed")
	}
}
