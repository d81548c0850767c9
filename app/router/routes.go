// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/amirphl/peyk/app/dto"
	"github.com/amirphl/peyk/app/handlers"
	"github.com/amirphl/peyk/app/middleware"
	"github.com/amirphl/peyk/config"
	"github.com/amirphl/peyk/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app             *fiber.App
	campaignHandler handlers.CampaignHandlerInterface
	cfg             *config.ProductionConfig
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(campaignHandler handlers.CampaignHandlerInterface, cfg *config.ProductionConfig) Router {
	app := fiber.New(fiber.Config{
		AppName:      "Peyk Campaign Engine",
		ServerHeader: "Peyk",
		ErrorHandler: errorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:             app,
		campaignHandler: campaignHandler,
		cfg:             cfg,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	r.setupMiddleware()

	api := r.app.Group("/api/v1")

	// Health check route (no auth, no rate limiting)
	api.Get("/health", r.campaignHandler.HealthCheck)

	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	// Rate limiting and API key guard on everything below
	api.Use(limiter.New(limiter.Config{
		Max:        r.cfg.Security.RateLimit,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
	}))
	api.Use(middleware.APIKey(r.cfg.Security.APIKey))

	campaigns := api.Group("/campaigns")
	campaigns.Post("/", r.campaignHandler.CreateCampaign)
	campaigns.Get("/", r.campaignHandler.ListCampaigns)
	campaigns.Get("/events", r.campaignHandler.StreamEvents)
	campaigns.Get("/:uuid", r.campaignHandler.GetCampaign)
	campaigns.Delete("/:uuid", r.campaignHandler.DeleteCampaign)
	campaigns.Post("/:uuid/start", r.campaignHandler.StartCampaign)
	campaigns.Post("/:uuid/pause", r.campaignHandler.PauseCampaign)
	campaigns.Post("/:uuid/resume", r.campaignHandler.ResumeCampaign)
	campaigns.Post("/:uuid/cancel", r.campaignHandler.CancelCampaign)
	campaigns.Post("/:uuid/clone", r.campaignHandler.CloneCampaign)
	campaigns.Get("/:uuid/progress", r.campaignHandler.GetProgress)
	campaigns.Get("/:uuid/audit", r.campaignHandler.ListAuditLogs)

	log.Println("Routes configured")
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	return r.app.Listen(address)
}

// GetApp returns the underlying Fiber app
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	r.app.Use(recover.New())

	r.app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path} ${ip} ${locals:requestid}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
	}))

	if r.cfg.Server.EnableMetrics {
		r.app.Use(middleware.Metrics())
	}
}

// errorHandler is the global Fiber error handler
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	log.Printf("Error %d: %v", code, err)

	requestID := c.Locals("requestid")

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: "An internal server error occurred",
		Error: dto.ErrorDetail{
			Code: "INTERNAL_ERROR",
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestID,
			},
		},
	})
}

// generateRequestID creates a random request identifier
func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405.000000")
	}
	return hex.EncodeToString(b)
}
