package ports

import (
	"context"

	"github.com/echos/users-api/internal/core/domain"
)

// SignupInput carries the public signup payload. It has no role field:
// accounts created through signup are always domain.RoleUser.
type SignupInput struct {
	Pseudonyme string
	Password   string
	Name       string
	Address    *domain.Address
	Comment    string
	UserAgent  string
}

// SigninInput carries the credentials presented at signin.
type SigninInput struct {
	Pseudonyme string
	Password   string
	UserAgent  string
}

// AuthResult is returned by signup and signin.
type AuthResult struct {
	Token        string
	RefreshToken string
	User         domain.Claims
}

// TokenPair is returned by refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type AuthService interface {
	Signup(ctx context.Context, in SignupInput) (*AuthResult, error)
	Signin(ctx context.Context, in SigninInput) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	ValidateSubject(ctx context.Context, userID string) (*domain.User, error)
}

// PasswordHasher hashes and checks credentials.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// TokenIssuer mints and verifies access and refresh tokens.
type TokenIssuer interface {
	IssueAccess(claims domain.Claims) (string, error)
	IssueRefresh(claims domain.Claims) (string, error)
	VerifyAccess(token string) (*domain.Claims, error)
	VerifyRefresh(token string) (*domain.Claims, error)
}

// SubjectCache holds short-lived public projections of users looked up by
// the access guard.
//
// Every subject has a generation that Invalidate bumps. Get reports the
// current generation alongside the entry (nil on a miss), and Set only
// stores the projection while the generation still matches, so a directory
// read that started before an edit or a delete cannot repopulate the cache.
type SubjectCache interface {
	Get(ctx context.Context, userID string) (*domain.User, int64, error)
	Set(ctx context.Context, user *domain.User, generation int64) error
	Invalidate(ctx context.Context, userID string) error
}
