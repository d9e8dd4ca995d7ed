package web

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// NewApp builds the fiber application serving the trigger API.
func NewApp(manager TriggerManager, log *slog.Logger) *fiber.App {
	handlers := NewAPIHandlers(manager, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New(fiber.Config{
		AppName: "triggers-frontend",
	})
	app.Use(logger.New(logger.Config{
		DisableColors: true,
		Output:        slog.NewLogLogger(log.Handler(), slog.LevelInfo).Writer(),
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/health", handlers.HealthCheck)

	app.Post("/create_trigger", handlers.CreateTrigger)
	app.Post("/add_workflows", handlers.AddWorkflows)
	app.Post("/remove_workflows", handlers.RemoveWorkflows)
	app.Post("/delete_trigger", handlers.DeleteTrigger)

	t := app.Group("/triggers")
	t.Get("/", handlers.GetTriggers)
	t.Get("/:id", handlers.GetTrigger)

	return app
}
