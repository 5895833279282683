package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/echos/users-api/internal/api/handler"
	"github.com/echos/users-api/internal/api/middleware"
	"github.com/echos/users-api/internal/core/domain"
	"github.com/echos/users-api/internal/core/ports"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Auth   ports.AuthService
	Users  ports.UserService
	Tokens middleware.TokenVerifier
	Log    zerolog.Logger

	// CORSOrigins defaults to "*" when empty.
	CORSOrigins []string
	// Registerer receives the HTTP request metrics. Defaults to the
	// process-wide Prometheus registerer.
	Registerer prometheus.Registerer
}

// Access lists the role requirements of every guarded route.
var Access = middleware.AccessTable{
	Routes: map[string][]string{
		middleware.RouteKey(http.MethodGet, "/api/users/me"):     {domain.RoleAll},
		middleware.RouteKey(http.MethodPut, "/api/users/me"):     {domain.RoleAll},
		middleware.RouteKey(http.MethodGet, "/api/users"):        {domain.RoleAdmin},
		middleware.RouteKey(http.MethodGet, "/api/users/:id"):    {domain.RoleAdmin},
		middleware.RouteKey(http.MethodPut, "/api/users/:id"):    {domain.RoleAdmin},
		middleware.RouteKey(http.MethodDelete, "/api/users/:id"): {domain.RoleAdmin},
	},
}

// NewRouter builds and returns the Echo instance with all API routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	registerer := d.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: origins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echomiddleware.Secure())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "users",
		Registerer: registerer,
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Path(), "/health") || c.Path() == "/metrics"
		},
	}))

	authHandler := handler.NewAuthHandler(d.Auth)
	userHandler := handler.NewUserHandler(d.Users)

	api := e.Group("/api")

	// --- Auth routes (public) ---
	auth := api.Group("/auth")
	auth.POST("/signup", authHandler.Signup)
	auth.POST("/signin", authHandler.Signin)
	auth.POST("/refresh", authHandler.Refresh)

	// --- User routes: Auth must run before RBAC ---
	users := api.Group("/users", middleware.Auth(d.Tokens, d.Auth, d.Log), middleware.RBAC(Access))
	users.GET("/me", userHandler.Me)
	users.PUT("/me", userHandler.UpdateMe)
	users.GET("", userHandler.List)
	users.GET("/:id", userHandler.Get)
	users.PUT("/:id", userHandler.Update)
	users.DELETE("/:id", userHandler.Delete)

	return e
}

// requestLogger logs one zerolog line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= http.StatusInternalServerError {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
