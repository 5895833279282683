package domain

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
	// RoleAll is the wildcard requirement: any authenticated subject passes.
	RoleAll = "all"
)

// ValidRole reports whether r can be stored on a user record.
func ValidRole(r string) bool {
	return r == RoleAdmin || r == RoleUser
}

// Address is the optional postal address attached to a profile.
type Address struct {
	Street  string `json:"street,omitempty" bson:"street,omitempty"`
	City    string `json:"city,omitempty" bson:"city,omitempty"`
	Country string `json:"country,omitempty" bson:"country,omitempty"`
}

// User models an account in the user directory.
type User struct {
	ID                  string     `json:"id"`
	Pseudonyme          string     `json:"pseudonyme"`
	PasswordHash        string     `json:"-"`
	Name                string     `json:"name,omitempty"`
	Address             *Address   `json:"address,omitempty"`
	Comment             string     `json:"comment,omitempty"`
	Role                string     `json:"role"`
	LastAuthenticatedAt *time.Time `json:"last_authenticated_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Public returns a copy of u that is safe to hand out of the directory:
// the password hash is cleared.
func (u *User) Public() *User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.PasswordHash = ""
	if u.Address != nil {
		addr := *u.Address
		clone.Address = &addr
	}
	return &clone
}

// Claims returns the minimal claim set minted into tokens for u.
func (u *User) Claims() Claims {
	return Claims{UserID: u.ID, Role: u.Role, Name: u.Name}
}

// UserPatch is a partial update of a user record. Nil fields are left as is.
// Passwords only ever travel as PasswordHash.
type UserPatch struct {
	Pseudonyme          *string
	PasswordHash        *string
	Name                *string
	Address             *Address
	Comment             *string
	Role                *string
	LastAuthenticatedAt *time.Time
}

// Empty reports whether the patch carries no persisted field.
func (p UserPatch) Empty() bool {
	return p.Pseudonyme == nil && p.PasswordHash == nil && p.Name == nil &&
		p.Address == nil && p.Comment == nil && p.Role == nil && p.LastAuthenticatedAt == nil
}
