package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dhoini/premium-billing-reconciler/config"
	"github.com/Dhoini/premium-billing-reconciler/internal/app"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.INFO).Fatalw("Failed to load configuration", "error", err)
	}

	log := logger.New(logger.ParseLevel(cfg.Logging.Level))
	defer func() { _ = log.Sync() }()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infow("Billing reconciler starting up", "env", cfg.Server.Env, "store", cfg.Database.Driver)

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("Failed to initialize application", "error", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Errorw("Error releasing resources", "error", err)
		}
	}()

	if err := application.Run(ctx); err != nil {
		log.Errorw("Server stopped with error", "error", err)
		return
	}
	log.Info("Server stopped gracefully")
}
