package ports

import (
	"context"

	"github.com/echos/users-api/internal/core/domain"
)

// UserFilter selects a single user record. Exactly one field is expected to
// be set; ID takes precedence.
type UserFilter struct {
	ID         string
	Pseudonyme string
}

// ListUsersFilter carries the query parameters for listing users.
type ListUsersFilter struct {
	Text          string // optional: full-text search over the profile fields
	SortField     string // optional: already whitelisted by the service
	SortDirection int    // 1 ascending, -1 descending
	Page          int    // 1-based
	Limit         int
}

// UserRepository is the user directory. Implementations must enforce
// pseudonyme uniqueness atomically and report a duplicate insert or update as
// domain.ErrUserExists. Lookups that match nothing return domain.ErrUserNotFound.
type UserRepository interface {
	FindOne(ctx context.Context, filter UserFilter) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	Update(ctx context.Context, filter UserFilter, patch domain.UserPatch) (*domain.User, error)
	Remove(ctx context.Context, filter UserFilter) error
	List(ctx context.Context, filter ListUsersFilter) ([]*domain.User, int64, error)
}
