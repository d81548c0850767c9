// Package main provides the main entry point for the Peyk campaign engine
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/amirphl/peyk/app/engine"
	"github.com/amirphl/peyk/app/handlers"
	"github.com/amirphl/peyk/app/router"
	"github.com/amirphl/peyk/app/services"
	businessflow "github.com/amirphl/peyk/business_flow"
	"github.com/amirphl/peyk/config"
	"github.com/amirphl/peyk/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	engine    *engine.Engine
	stopFuncs []func()
}

func main() {
	log.Println("Starting Peyk campaign engine...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers first so no new runs start
	for _, fn := range app.stopFuncs {
		fn()
	}

	// Park active dispatch loops; running campaigns land in paused and
	// resume after restart.
	app.engine.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established to %s:%d/%s", cfg.Host, cfg.Port, cfg.Name)
	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	rc := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.Addr(), cfg.DB)
	return rc, nil
}

// initializeEngineLogger configures a logger that writes to both stdout and a
// rotating file under the configured log directory
func initializeEngineLogger(cfg config.EngineConfig) *log.Logger {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		log.Printf("engine: failed to create log directory: %v", err)
		return log.New(os.Stdout, "engine ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
	}

	rotating := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "engine.log"),
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	}

	mw := io.MultiWriter(os.Stdout, rotating)
	return log.New(mw, "engine ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// rosterAdapter bridges the gateway roster to the resolver
type rosterAdapter struct {
	gateway *services.GatewayClient
}

func (r rosterAdapter) Participants(ctx context.Context, chatGroupJID string) ([]engine.Target, error) {
	participants, err := r.gateway.Participants(ctx, chatGroupJID)
	if err != nil {
		return nil, err
	}

	targets := make([]engine.Target, len(participants))
	for i, p := range participants {
		targets[i] = engine.Target{Address: p.Address, Name: p.Name}
	}
	return targets, nil
}

// initializeApplication wires every component together
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	redisClient, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	// Repositories
	campaignRepo := repository.NewCampaignRepository(db)
	contactRepo := repository.NewContactRepository(db)
	groupRepo := repository.NewContactGroupRepository(db)
	runRepo := repository.NewCampaignRunRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Transport
	gateway := services.NewGatewayClient(&cfg.Transport)

	// Progress publishers: always the in-process hub, plus Redis when enabled
	hub := services.NewHub(cfg.Engine.EventBuffer)
	publishers := services.MultiPublisher{hub}
	if redisClient != nil {
		publishers = append(publishers, services.NewRedisPublisher(redisClient, cfg.Cache.ProgressChannel))
	}

	// Engine
	engineLogger := initializeEngineLogger(cfg.Engine)
	engineLoc, err := cfg.Engine.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve engine timezone: %w", err)
	}
	pacing := engine.NewPacingPolicyWith(engine.SystemClockIn(engineLoc), rand.NewSource(time.Now().UnixNano()))
	resolver := engine.NewResolver(contactRepo, groupRepo, rosterAdapter{gateway: gateway})
	dispatcher := engine.NewDispatcher(campaignRepo, runRepo, gateway, publishers, pacing, engineLogger)
	eng := engine.NewEngine(dispatcher, resolver, gateway, campaignRepo, runRepo, publishers, cfg.Engine.PromoteInterval, engineLogger)

	var stopFuncs []func()
	stopFuncs = append(stopFuncs, eng.Run(context.Background()))

	// Business flow and HTTP surface
	campaignFlow := businessflow.NewCampaignFlow(campaignRepo, groupRepo, auditRepo, eng, db)
	campaignHandler := handlers.NewCampaignHandler(campaignFlow, hub)

	fiberRouter := router.NewFiberRouter(campaignHandler, cfg)

	return &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		engine:    eng,
		stopFuncs: stopFuncs,
	}, nil
}
