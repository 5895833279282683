package middleware

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/echos/users-api/internal/core/domain"
	"github.com/echos/users-api/pkg/metrics"
)

// AccessTable declares role requirements. Groups are keyed by path prefix
// ("/api/users"), routes by "METHOD /path/pattern" ("GET /api/users/:id").
// A route's requirement is the union of its own roles and the roles of every
// group whose prefix contains it.
type AccessTable struct {
	Groups map[string][]string
	Routes map[string][]string
}

// RouteKey builds the identifier AccessTable.Routes is keyed by.
func RouteKey(method, path string) string {
	return method + " " + path
}

// Required returns the union of role requirements for the route.
func (t AccessTable) Required(method, path string) []string {
	seen := make(map[string]struct{})
	var roles []string
	add := func(rs []string) {
		for _, r := range rs {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			roles = append(roles, r)
		}
	}

	add(t.Routes[RouteKey(method, path)])

	prefixes := make([]string, 0, len(t.Groups))
	for prefix := range t.Groups {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			add(t.Groups[prefix])
		}
	}
	return roles
}

// RBAC enforces the access table for the matched route. It must be installed
// after Auth: a route with requirements and no subject is rejected as 401.
func RBAC(table AccessTable) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			method := c.Request().Method
			required := table.Required(method, c.Path())
			if len(required) == 0 {
				return next(c)
			}

			subject, ok := SubjectFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authentication")
			}

			role := subject.CurrentRole()
			for _, r := range required {
				if r == domain.RoleAll || r == role {
					return next(c)
				}
			}

			metrics.AuthorizationDenialsTotal.WithLabelValues(RouteKey(method, c.Path())).Inc()
			return echo.NewHTTPError(http.StatusForbidden, fmt.Sprintf(
				"You do not have permission to perform this action. This action requires one of the following roles: %s",
				strings.Join(required, " | "),
			))
		}
	}
}
