package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/echos/users-api/internal/core/domain"
)

var testTable = AccessTable{
	Groups: map[string][]string{
		"/api/reports": {domain.RoleAdmin},
	},
	Routes: map[string][]string{
		"GET /api/users/me":    {domain.RoleAll},
		"GET /api/users/:id":   {domain.RoleAdmin},
		"GET /api/reports/:id": {domain.RoleUser},
	},
}

func rbacContext(method, path, role string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath(path)
	if role != "" {
		WithSubject(c, &domain.Subject{
			Claims: domain.Claims{UserID: "u1", Role: role},
			User:   &domain.User{ID: "u1", Role: role},
		})
	}
	return c, rec
}

func TestRBAC_Allows(t *testing.T) {
	c, rec := rbacContext(http.MethodGet, "/api/users/:id", domain.RoleAdmin)

	called := false
	handler := RBAC(testTable)(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !called {
		t.Fatalf("next handler not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRBAC_Forbids(t *testing.T) {
	c, _ := rbacContext(http.MethodGet, "/api/users/:id", domain.RoleUser)

	err := RBAC(testTable)(func(c echo.Context) error {
		t.Fatalf("should not reach next handler")
		return nil
	})(c)

	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
	if msg, _ := he.Message.(string); !strings.Contains(msg, "admin") {
		t.Fatalf("expected message to name the acceptable roles, got %q", msg)
	}
}

func TestRBAC_NoRequirementAllowsAnySubject(t *testing.T) {
	c, rec := rbacContext(http.MethodPost, "/api/other", domain.RoleUser)

	if err := RBAC(testTable)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRBAC_WildcardAllowsAnyRole(t *testing.T) {
	for _, role := range []string{domain.RoleUser, domain.RoleAdmin, "auditor"} {
		c, rec := rbacContext(http.MethodGet, "/api/users/me", role)
		if err := RBAC(testTable)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c); err != nil {
			t.Fatalf("%s: handler error: %v", role, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", role, rec.Code)
		}
	}
}

func TestRBAC_UnionsGroupAndRoute(t *testing.T) {
	table := testTable
	if got := table.Required(http.MethodGet, "/api/reports/:id"); len(got) != 2 {
		t.Fatalf("expected union of route and group roles, got %v", got)
	}

	for _, role := range []string{domain.RoleUser, domain.RoleAdmin} {
		c, _ := rbacContext(http.MethodGet, "/api/reports/:id", role)
		if err := RBAC(table)(func(c echo.Context) error { return nil })(c); err != nil {
			t.Fatalf("%s: expected access, got %v", role, err)
		}
	}

	c, _ := rbacContext(http.MethodDelete, "/api/reports/:id", domain.RoleUser)
	if err := RBAC(table)(func(c echo.Context) error { return nil })(c); err == nil {
		t.Fatalf("expected group requirement to apply to unlisted routes")
	}
}

func TestRBAC_RequiresSubject(t *testing.T) {
	c, _ := rbacContext(http.MethodGet, "/api/users/:id", "")

	err := RBAC(testTable)(func(c echo.Context) error {
		t.Fatalf("should not reach next handler")
		return nil
	})(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}
