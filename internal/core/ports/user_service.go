package ports

import (
	"context"

	"github.com/echos/users-api/internal/core/domain"
)

// ProfileInput is a self-service profile edit. Role is not part of it.
type ProfileInput struct {
	Pseudonyme *string
	Password   *string
	Name       *string
	Address    *domain.Address
	Comment    *string
}

// AdminUserInput is an admin edit; it may also change the role.
type AdminUserInput struct {
	ProfileInput
	Role *string
}

// ListUsersInput carries the raw list parameters from the transport layer.
type ListUsersInput struct {
	Text          string
	PropertySort  string
	DirectionSort int
	Page          int
	Limit         int
}

// ListUsersResult is returned by List.
type ListUsersResult struct {
	Items      []*domain.User
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

type UserService interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*domain.User, error)
	AdminUpdate(ctx context.Context, userID string, in AdminUserInput) (*domain.User, error)
	Delete(ctx context.Context, userID string) error
	List(ctx context.Context, in ListUsersInput) (*ListUsersResult, error)
}
