package handler

import (
	"time"

	"github.com/echos/users-api/internal/core/domain"
	"github.com/echos/users-api/internal/core/ports"
)

// --- Request types ---

type addressRequest struct {
	Street  string `json:"street"  validate:"omitempty,max=256"`
	City    string `json:"city"    validate:"omitempty,max=128"`
	Country string `json:"country" validate:"omitempty,max=128"`
}

func (a *addressRequest) toDomain() *domain.Address {
	if a == nil {
		return nil
	}
	return &domain.Address{Street: a.Street, City: a.City, Country: a.Country}
}

// signupRequest has no role field: anything sent under "role" is dropped on bind.
type signupRequest struct {
	Pseudonyme string          `json:"pseudonyme" validate:"required,max=64"`
	Password   string          `json:"password"   validate:"required,password"`
	Name       string          `json:"name"       validate:"omitempty,max=128"`
	Address    *addressRequest `json:"address"`
	Comment    string          `json:"comment"    validate:"omitempty,max=1024"`
}

type signinRequest struct {
	Pseudonyme string `json:"pseudonyme" validate:"required"`
	Password   string `json:"password"   validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type profileRequest struct {
	Pseudonyme *string         `json:"pseudonyme" validate:"omitempty,min=1,max=64"`
	Password   *string         `json:"password"   validate:"omitempty,password"`
	Name       *string         `json:"name"       validate:"omitempty,max=128"`
	Address    *addressRequest `json:"address"`
	Comment    *string         `json:"comment"    validate:"omitempty,max=1024"`
}

func (r profileRequest) toInput() ports.ProfileInput {
	return ports.ProfileInput{
		Pseudonyme: r.Pseudonyme,
		Password:   r.Password,
		Name:       r.Name,
		Address:    r.Address.toDomain(),
		Comment:    r.Comment,
	}
}

type adminUserRequest struct {
	profileRequest
	Role *string `json:"role" validate:"omitempty,oneof=admin user"`
}

type listUsersQuery struct {
	Text          string `query:"text"`
	PropertySort  string `query:"propertySort"`
	DirectionSort int    `query:"directionSort" validate:"omitempty,oneof=1 -1"`
	Page          int    `query:"page"          validate:"omitempty,min=1,max=10000"`
	Limit         int    `query:"limit"         validate:"omitempty,min=1,max=10000"`
}

// --- Response types ---

// ErrorResponse is the envelope rendered for every failed request.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type claimsResponse struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Name   string `json:"name"`
}

type authResponse struct {
	Token        string         `json:"token"`
	RefreshToken string         `json:"refreshToken"`
	User         claimsResponse `json:"user"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type addressResponse struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

type userResponse struct {
	ID                  string           `json:"id"`
	Pseudonyme          string           `json:"pseudonyme"`
	Name                string           `json:"name,omitempty"`
	Address             *addressResponse `json:"address,omitempty"`
	Comment             string           `json:"comment,omitempty"`
	Role                string           `json:"role"`
	LastAuthenticatedAt *time.Time       `json:"lastAuthenticatedAt,omitempty"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

type listUsersResponse struct {
	Items      []userResponse `json:"items"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}

func toAuthResponse(r *ports.AuthResult) authResponse {
	return authResponse{
		Token:        r.Token,
		RefreshToken: r.RefreshToken,
		User:         claimsResponse{UserID: r.User.UserID, Role: r.User.Role, Name: r.User.Name},
	}
}

func toUserResponse(u *domain.User) userResponse {
	resp := userResponse{
		ID:                  u.ID,
		Pseudonyme:          u.Pseudonyme,
		Name:                u.Name,
		Comment:             u.Comment,
		Role:                u.Role,
		LastAuthenticatedAt: u.LastAuthenticatedAt,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
	if u.Address != nil {
		resp.Address = &addressResponse{Street: u.Address.Street, City: u.Address.City, Country: u.Address.Country}
	}
	return resp
}
