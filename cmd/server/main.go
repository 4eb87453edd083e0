package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voxline/voxline/internal/app"
	"github.com/voxline/voxline/internal/config"
	"github.com/voxline/voxline/internal/server"
	"github.com/voxline/voxline/pkg/Logger"
)

// This is the main entry point for the relay server.
// Loads configuration and credentials, wires the collaborators
// and exposes the websocket surface.
func main() {
	// fetch cfg
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	creds := config.LoadCredentials()
	// load global logger
	logger := Logger.New(cfg.Server.Debug)
	logger.Info("Logger initialized")

	// build shared collaborator clients
	a, err := app.NewApp(context.Background(), cfg, creds, logger)
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}
	defer a.Close()

	// compose router
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	server.InitializeRoutes(router, a)

	// listen with graceful exit
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router.Handler(),
	}
	go func() {
		logger.Infof("Listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server exiting: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// 5 secs then cancel
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Shutdown err %v", err)
	}
	logger.Info("Shutdown system")
}
