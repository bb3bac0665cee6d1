// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command wizard serves the installation wizard HTTP API.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"

	"github.com/kasdock/kasdock/cmd/kasdock/config"
	"github.com/kasdock/kasdock/pkg/logging"
	"github.com/kasdock/kasdock/services/wizard"
	"github.com/kasdock/kasdock/services/wizard/routes"
	"github.com/kasdock/kasdock/services/wizard/telemetry"
)

func main() {
	port := os.Getenv("WIZARD_PORT")
	if port == "" {
		port = "12250"
	}

	level, err := logging.ParseLevel(os.Getenv("KASDOCK_LOG_LEVEL"))
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	logger := logging.New(logging.Config{Level: level, Service: "wizard", JSON: true})
	logging.SetDefault(logger)
	slog.SetDefault(logger.Slog())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	stackDir := os.Getenv("KASDOCK_STACK_DIR")
	if stackDir == "" {
		stackDir = config.DefaultConfig().Stack.Dir
	}

	deps, err := wizard.NewDefaultDeps(stackDir)
	if err != nil {
		log.Fatalf("failed to wire wizard dependencies: %v", err)
	}

	metrics, err := telemetry.NewMetrics(otel.Meter("wizard"))
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("wizard-service"))
	router.Use(telemetry.GinMiddleware(metrics))
	router.Use(routes.RequestID())

	routes.SetupRoutes(router, deps)

	if handler := telemetry.MetricsHandler(); handler != nil {
		router.GET("/metrics", gin.WrapH(handler))
	}

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting the wizard server", "port", port, "stackDir", stackDir)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down the wizard server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
}
