// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/rampart/services/wall"
	"github.com/AleutianAI/rampart/services/wall/config"
	"github.com/AleutianAI/rampart/services/wall/telemetry"
)

const shutdownGrace = 10 * time.Second

func runServe(cmd *cobra.Command, args []string) {
	cfg, cfgPath, err := loadConfigWithPath()
	if err != nil {
		log.Fatalf("FATAL: configuration: %v", err)
	}
	logger := setupLogging(cfg)
	defer logger.Close()

	shutdownTelemetry, err := telemetry.Init(context.Background(),
		telemetry.FromWall(cfg.Telemetry, cfg.Server.TelemetryPort))
	if err != nil {
		log.Fatalf("FATAL: telemetry: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	meter := otel.Meter("rampart.wall")
	metrics, err := telemetry.NewMetrics(meter)
	if err != nil {
		log.Fatalf("FATAL: metrics: %v", err)
	}

	w, err := wall.New(cfg, wall.WithMetrics(metrics))
	if err != nil {
		log.Fatalf("FATAL: wall: %v", err)
	}
	if _, err := metrics.RegisterRateWindowUsers(meter, w.RateWindowUsers); err != nil {
		slog.Warn("rate-window gauge registration failed", "error", err)
	}

	// Hot-reload the external config file when one was used; embedded
	// defaults have no file to watch.
	if cfgPath != "" {
		watcher, err := config.NewWatcher(cfgPath, cfg, w.ApplyConfig)
		if err != nil {
			slog.Warn("config watcher disabled", "path", cfgPath, "error", err)
		} else {
			watchCtx, stopWatch := context.WithCancel(context.Background())
			defer stopWatch()
			go watcher.Start(watchCtx)
			defer func() {
				if err := watcher.Stop(); err != nil {
					slog.Warn("config watcher stop failed", "error", err)
				}
			}()
		}
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("rampart-wall"))
	wall.RegisterRoutes(router, w)

	// /metrics lives on the telemetry port, away from planner traffic.
	telemetryMux := http.NewServeMux()
	telemetryMux.Handle("/metrics", telemetry.MetricsHandler())
	telemetrySrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.TelemetryPort),
		Handler: telemetryMux,
	}
	go func() {
		if err := telemetrySrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("telemetry server failed", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	// Handle graceful shutdown: stop accepting, drain, then flush the
	// audit trail via w.Close below.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down the Rampart wall")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
		if err := telemetrySrv.Shutdown(ctx); err != nil {
			slog.Error("telemetry server shutdown failed", "error", err)
		}
	}()

	slog.Info("Rampart wall listening",
		"addr", srv.Addr,
		"telemetry_addr", telemetrySrv.Addr,
		"version", version)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("FATAL: server: %v", err)
	}

	if err := w.Close(); err != nil {
		slog.Error("wall close failed", "error", err)
	}
	slog.Info("Shutdown complete")
}