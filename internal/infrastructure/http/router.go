package http

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/echos/users-api/internal/infrastructure/http/handlers"
)

// OpsDeps are the dependencies probed by the readiness check. Redis may be nil.
type OpsDeps struct {
	Version string
	Mongo   *mongo.Client
	Redis   *redis.Client
	// Docs mounts the Swagger UI under /api/doc.
	Docs bool
}

// RegisterOps mounts the unauthenticated operational routes on e.
func RegisterOps(e *echo.Echo, d OpsDeps) {
	// --- Health probes (no auth required) ---
	healthHandler := handlers.NewHealthHandler(d.Version)
	e.GET("/health", healthHandler.Liveness) // liveness: is the process alive?
	if d.Mongo != nil {
		healthDepsHandler := handlers.NewHealthDependenciesHandler(d.Mongo, d.Redis)
		e.GET("/health/ready", healthDepsHandler.Readiness) // readiness: are dependencies up?
	}

	// --- Prometheus scrape endpoint ---
	e.GET("/metrics", echoprometheus.NewHandler())

	// --- API docs ---
	if d.Docs {
		e.GET("/api/doc/*", echoSwagger.WrapHandler)
	}
}
