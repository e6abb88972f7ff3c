package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/melih/lighthouse-hook/internal/adapters/config"
	dockeradapter "github.com/melih/lighthouse-hook/internal/adapters/docker"
	gitadapter "github.com/melih/lighthouse-hook/internal/adapters/git"
	httpadapter "github.com/melih/lighthouse-hook/internal/adapters/http"
	"github.com/melih/lighthouse-hook/internal/adapters/kube"
	"github.com/melih/lighthouse-hook/internal/core/orchestrator"
	"github.com/melih/lighthouse-hook/internal/core/registry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("could not load config", "error", err)
		os.Exit(2)
	}

	tokens, err := config.BearerTokensFromEnv()
	if err != nil {
		logger.Error("could not load bearer tokens", "error", err)
		os.Exit(2)
	}

	// All project invariants are checked here, once; an invalid config
	// never reaches the runtime path.
	reg, err := registry.New(cfg.DomainProjects())
	if err != nil {
		logger.Error("invalid project configuration", "error", err)
		os.Exit(2)
	}
	logger.Info("projects loaded", "registry", cfg.App.Registry, "slugs", reg.Slugs())

	fetcher := gitadapter.NewFetcher(logger)

	builder, err := dockeradapter.NewBuilder(cfg.App.BuildEngine, dockeradapter.RegistryAuth{
		Username: os.Getenv("REGISTRY_USERNAME"),
		Password: os.Getenv("REGISTRY_PASSWORD"),
	}, logger)
	if err != nil {
		logger.Error("could not initialize build engine client", "error", err)
		os.Exit(2)
	}

	rollout, err := kube.NewTrigger(logger)
	if err != nil {
		logger.Error("could not initialize cluster client", "error", err)
		os.Exit(2)
	}

	orch := orchestrator.New(
		reg, fetcher, builder, rollout,
		cfg.App.Registry, cfg.App.CheckoutDir,
		orchestrator.Timeouts{
			Fetch:   time.Duration(cfg.App.Timeouts.Fetch),
			Build:   time.Duration(cfg.App.Timeouts.Build),
			Rollout: time.Duration(cfg.App.Timeouts.Rollout),
		},
		logger,
	)

	handler := httpadapter.NewHookHandler(orch, logger)

	app := fiber.New(fiber.Config{
		AppName: "lighthouse-hook",
		// Builds can take a long time; the webhook call stays open until
		// the run finishes.
		WriteTimeout: time.Duration(cfg.App.Timeouts.Build) + time.Minute,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	app.Get("/health", handler.Health)
	app.Use(httpadapter.NewBearerAuth(tokens))
	app.Post("/:slug", handler.TriggerBuild)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", cfg.App.Listen)
	if err := app.Listen(cfg.App.Listen); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
