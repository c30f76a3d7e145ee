package main

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/imagechoom/imagechoom/pkg/dispatcher"
	"github.com/imagechoom/imagechoom/pkg/queue"
	"github.com/imagechoom/imagechoom/pkg/settings"
	"github.com/imagechoom/imagechoom/pkg/web"
)

type API struct {
	store      queue.Store
	dispatcher *dispatcher.Dispatcher
	root       string
	presets    map[string]map[string]any
	config     settings.Settings
	validate   *validator.Validate
}

func NewAPI(
	store queue.Store,
	d *dispatcher.Dispatcher,
	root string,
	presets map[string]map[string]any,
	config settings.Settings,
) *API {
	return &API{
		store:      store,
		dispatcher: d,
		root:       root,
		presets:    presets,
		config:     config,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.store, a.dispatcher, a.root, a.presets, a.config, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("ImageChoom API")
	})

	app.Get("/workflows", handlers.GetWorkflows)

	q := app.Group("/queue")
	q.Get("/", handlers.GetQueue)
	q.Post("/workflows", handlers.EnqueueWorkflow)
	q.Post("/promptlab", handlers.EnqueuePromptLab)
	q.Delete("/:index", handlers.RemoveQueued)

	app.Get("/runs", handlers.GetRuns)

	d := app.Group("/dispatcher")
	d.Get("/", handlers.GetDispatcher)
	d.Post("/continuous", handlers.EnableContinuous)
	d.Post("/pause", handlers.RequestPause)
	d.Post("/run-once", handlers.RunOnce)

	app.Get("/settings", handlers.GetSettings)
	app.Put("/settings", handlers.UpdateSettings)

	app.Get("/health", handlers.HealthCheck)

	return app
}
