package main // Entry point package

import (
	"context"   // shutdown deadlines
	"errors"    // server closed detection
	"log"       // Logging library
	"net/http"  // http.ErrServerClosed
	"os"        // signal types
	"os/signal" // graceful shutdown on SIGINT/SIGTERM
	"syscall"
	"time"

	"github.com/labstack/echo/v4"                  // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware" // request logging and panic recovery

	"github.com/iliyamo/shareables/internal/config"     // Internal config loader
	"github.com/iliyamo/shareables/internal/database"   // MySQL connection and schema
	"github.com/iliyamo/shareables/internal/handler"    // HTTP handlers
	"github.com/iliyamo/shareables/internal/middleware" // cache, rate limit
	"github.com/iliyamo/shareables/internal/queue"      // reserve/object event consumer
	"github.com/iliyamo/shareables/internal/repository" // storage
	"github.com/iliyamo/shareables/internal/router"     // Internal router setup
	"github.com/iliyamo/shareables/internal/service"    // shareable manager and publisher
)

func main() {
	cfg := config.Load() // Load environment config

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(migrateCtx, db); err != nil {
		log.Fatalf("database: migrate: %v", err)
	}
	cancelMigrate()

	rdb := config.NewRedisClient() // nil when redis is not reachable
	if rdb != nil {
		defer rdb.Close()
	}
	cacheCfg := config.LoadCacheConfig()
	queueCfg := config.LoadQueueConfig()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	shareables := repository.NewShareableRepo(db)

	purger := middleware.NewCachePurger(cacheCfg, rdb) // nil-safe
	publisher := service.NewPublisher(queueCfg)
	defer publisher.Close()

	manager := service.NewManager(
		repository.NewReservationRepo(db),
		users,
		publisher,
		purger,
		cfg.JWTSecret,
		cfg.Debug,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := queue.NewConsumer(queueCfg, manager, manager)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("reserve-consumer: stopped: %v", err)
		}
	}()

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.Recover())
	if cfg.Debug {
		e.Use(echomw.Logger())
	}

	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret, limit)
	router.RegisterShareables(e,
		handler.NewShareableHandler(shareables, manager, publisher, purger),
		cfg.JWTSecret,
		middleware.NewRedisCache(cacheCfg, rdb),
		limit,
	)

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) { // Start HTTP server
			log.Fatal(err) // Log and exit if server fails
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	<-consumerDone
}
