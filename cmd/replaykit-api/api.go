// Package main provides the ReplayKit API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/replaykit/replaykit/pkg/eventbus"
	"github.com/replaykit/replaykit/pkg/persistence"
	"github.com/replaykit/replaykit/pkg/queue"
	"github.com/replaykit/replaykit/pkg/registry"
	"github.com/replaykit/replaykit/pkg/services"
	"github.com/replaykit/replaykit/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: store,
		registry:    reg,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	q := queue.NewQueue(a.persistence.QueueRepository(), a.logger)
	flowService := services.NewFlows(a.persistence.FlowRepository(), a.registry, a.logger)
	runService := services.NewRuns(a.persistence, q, a.eventBus, a.logger)

	handlers := web.NewAPIHandlers(flowService, runService, q, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("ReplayKit API")
	})

	handlers.SetupRoutes(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
