package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker is a dependency probed by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// RegisterRoutes mounts the swap API, /health and /metrics on app.
func RegisterRoutes(app *fiber.App, h *SwapHandler, auth *Authenticator, checks map[string]HealthChecker) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/health", healthHandler(checks))

	v1 := app.Group("/api/v1/swap")
	v1.Get("/tokens", h.ListTokens)
	v1.Get("/quote", h.GetQuote)
	v1.Get("/slippage/recommendation", h.RecommendSlippage)

	authed := auth.Middleware()
	v1.Post("/execute", authed, h.ExecuteSwap)
	v1.Get("/history", authed, h.History)
	v1.Get("/volume", authed, h.Volume)
	v1.Get("/:id/status", authed, h.Status)
	v1.Post("/:id/refresh", authed, h.Refresh)
}

func healthHandler(checks map[string]HealthChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		results := make(map[string]string, len(checks))
		status := "ok"
		code := fiber.StatusOK
		for name, chk := range checks {
			if err := chk.HealthCheck(ctx); err != nil {
				results[name] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	}
}
