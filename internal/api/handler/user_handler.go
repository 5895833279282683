package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/echos/users-api/internal/core/ports"
)

// UserHandler serves the profile and admin user endpoints. Authentication
// and role checks happen in the middleware chain in front of it.
type UserHandler struct {
	service ports.UserService
}

func NewUserHandler(service ports.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// Me returns the caller's own profile.
//
// @Summary      Get current profile
// @Tags         Users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  userResponse
// @Failure      401  {object}  ErrorResponse
// @Router       /users/me [get]
func (h *UserHandler) Me(c echo.Context) error {
	subject, err := ctxSubject(c)
	if err != nil {
		return err
	}
	user, err := h.service.Get(c.Request().Context(), subject.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

// UpdateMe edits the caller's own profile. The role cannot be changed here.
//
// @Summary      Update current profile
// @Tags         Users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      profileRequest  true  "Profile fields"
// @Success      200   {object}  userResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      409   {object}  ErrorResponse
// @Router       /users/me [put]
func (h *UserHandler) UpdateMe(c echo.Context) error {
	subject, err := ctxSubject(c)
	if err != nil {
		return err
	}
	var req profileRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	user, err := h.service.UpdateProfile(c.Request().Context(), subject.UserID, req.toInput())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

// Get returns a user by ID.
//
// @Summary      Get a user
// @Tags         Users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  userResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /users/{id} [get]
func (h *UserHandler) Get(c echo.Context) error {
	user, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

// Update edits any user, including the role.
//
// @Summary      Update a user
// @Tags         Users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string            true  "User ID"
// @Param        body  body      adminUserRequest  true  "User fields"
// @Success      200   {object}  userResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      403   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Router       /users/{id} [put]
func (h *UserHandler) Update(c echo.Context) error {
	var req adminUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	user, err := h.service.AdminUpdate(c.Request().Context(), c.Param("id"), ports.AdminUserInput{
		ProfileInput: req.toInput(),
		Role:         req.Role,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

// Delete hard-deletes a user.
//
// @Summary      Delete a user
// @Tags         Users
// @Security     BearerAuth
// @Param        id   path  string  true  "User ID"
// @Success      204
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /users/{id} [delete]
func (h *UserHandler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// List returns a page of users, optionally filtered by full-text search.
//
// @Summary      List users
// @Tags         Users
// @Produce      json
// @Security     BearerAuth
// @Param        text           query     string  false  "Full-text search"
// @Param        propertySort   query     string  false  "Field to sort on"
// @Param        directionSort  query     int     false  "1 ascending, -1 descending"
// @Param        page           query     int     false  "Page (default 1)"
// @Param        limit          query     int     false  "Page size (default 20, max 100)"
// @Success      200            {object}  listUsersResponse
// @Failure      400            {object}  ErrorResponse
// @Failure      403            {object}  ErrorResponse
// @Router       /users [get]
func (h *UserHandler) List(c echo.Context) error {
	var q listUsersQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}
	res, err := h.service.List(c.Request().Context(), ports.ListUsersInput{
		Text:          q.Text,
		PropertySort:  q.PropertySort,
		DirectionSort: q.DirectionSort,
		Page:          q.Page,
		Limit:         q.Limit,
	})
	if err != nil {
		return err
	}

	items := make([]userResponse, 0, len(res.Items))
	for _, u := range res.Items {
		items = append(items, toUserResponse(u))
	}
	return c.JSON(http.StatusOK, listUsersResponse{
		Items:      items,
		Total:      res.Total,
		Page:       res.Page,
		Limit:      res.Limit,
		TotalPages: res.TotalPages,
	})
}
