// Package main provides the journey admin API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/journey/pkg/delay"
	"github.com/dukex/journey/pkg/journey"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/services"
	"github.com/dukex/journey/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	queue       delay.Enqueuer
	validate    *validator.Validate
}

// NewAPI creates the API. queue receives the first unit of manually started executions.
func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	queue delay.Enqueuer,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		queue:       queue,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	authoringService := services.NewAuthoring(a.logger, a.persistence)
	publishingService := services.NewPublishing(a.logger, a.persistence)
	starter := journey.NewStarter(a.logger, a.persistence, a.queue)

	handlers := web.NewAPIHandlers(a.persistence, authoringService, publishingService, starter, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Journey API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
