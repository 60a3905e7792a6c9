package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/mauv0809/quant-screener/internal/config"
	"github.com/mauv0809/quant-screener/internal/db"
	"github.com/mauv0809/quant-screener/internal/handlers"
	"github.com/mauv0809/quant-screener/internal/logging"
	"github.com/mauv0809/quant-screener/internal/runner"
)

func main() {
	// Load .env file if it exists (local dev)
	config.LoadDotEnv()

	v := config.New()
	if err := config.ReadFile(v, os.Getenv("CONFIG_FILE")); err != nil {
		log.Fatal().Err(err).Msg("invalid config file")
	}
	cfg, err := config.Load(v)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogJSON); err != nil {
		log.Fatal().Err(err).Msg("invalid log configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database is optional; without it runs only write datasets
	var repo *db.Repository
	if cfg.DatabaseURL != "" {
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Warn().Err(err).Msg("could not run migrations")
		} else {
			log.Info().Msg("migrations completed")
		}

		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("could not connect to database, continuing without it")
		} else {
			defer pool.Close()
			repo = db.NewRepository(pool)
			log.Info().Msg("connected to database")
		}
	} else {
		log.Warn().Msg("DATABASE_URL not set, records go to the dataset directory only")
	}

	client, err := cfg.NewClient()
	if err != nil {
		log.Fatal().Err(err).Msg("could not create screener client")
	}

	// Avoid handing a typed nil to the interface fields
	var opts runner.Options
	var status handlers.StatusStore
	if cfg.DatasetDir != "" {
		opts.DatasetDir = cfg.DatasetDir
		opts.DatasetFormats = cfg.DatasetFormats
	}
	if repo != nil {
		opts.Store = repo
		status = repo
		if cfg.EnrichFigi {
			opts.Assets = repo
		}
	}
	screenRunner := runner.New(client, cfg.DriverConfig(), opts)
	screenHandler := handlers.NewScreenHandler(ctx, screenRunner, status)

	// Setup Echo
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error == nil {
				log.Info().Int("Status", v.Status).Str("Uri", v.URI).Msg("request")
			} else {
				log.Error().Err(v.Error).Int("Status", v.Status).Str("Uri", v.URI).Msg("request")
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())

	h := handlers.New()

	// Routes
	e.GET("/health", h.Health)

	admin := e.Group("/admin", handlers.AdminRateLimiter(cfg.AdminRate))
	admin.POST("/screen/run", screenHandler.RunScreen)
	admin.GET("/screen/status", screenHandler.ScreenStatus)

	if cfg.RunOnStart {
		log.Info().Msg("RUN_ON_START set, triggering screen run")
		screenHandler.Trigger()
	}

	go func() {
		log.Info().Str("Port", cfg.Port).Msg("starting server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	// ctx is cancelled, so an in-flight run stops at its next request
	screenHandler.Wait()
}
