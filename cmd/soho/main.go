package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"soho/internal/config"
	"soho/internal/controller"
	"soho/internal/device"
	"soho/internal/handler"
	"soho/internal/metrics"
	"soho/internal/registry"
	"soho/internal/session"
	"soho/internal/weblog"

	"github.com/redis/go-redis/v9"
)

func main() {
	// Config first so LOG_LEVEL applies to the real logger.
	cfg, err := config.Load()
	if err != nil {
		bootstrap := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		bootstrap.Error("load config", "err", err)
		os.Exit(1)
	}

	level := parseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.DateTime))
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	var repo device.Repository
	registryHealthURL := ""
	if cfg.RegistryURL != "" {
		client := registry.NewClient(cfg.RegistryURL, cfg.RegistryTimeout(), logger)
		repo = client
		registryHealthURL = client.HealthURL()
	} else {
		repo = device.NewMemoryRepository(seedDevices()...)
	}

	var sessions session.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		sessions = session.NewRedisStore(rdb, cfg.SessionTTL())
	} else {
		sessions = session.NewMemoryStore(cfg.SessionTTL())
	}

	interceptor := weblog.New(weblog.ParseSelector(cfg.WeblogSelector),
		weblog.WithLogger(logger),
		weblog.WithTracePrefixes(cfg.TracePrefixes()...),
		weblog.WithObserver(metrics.Observer{}),
	)

	r := handler.NewRouter(handler.RouterDeps{
		Devices: &handler.DeviceHandler{
			Controller:  &controller.DeviceController{Repo: repo},
			Interceptor: interceptor,
		},
		Health:        handler.NewHealthHandler(registryHealthURL, sessions),
		Sessions:      sessions,
		SessionCookie: cfg.SessionCookie,
		CORSOrigins:   cfg.CORSOrigins,
		Logger:        logger,
	})

	const defaultPort = 8000
	port := cfg.HTTPPort
	if port <= 0 {
		port = defaultPort
	}
	addr := ":" + strconv.Itoa(port)

	var idleTimeout time.Duration
	if cfg.IdleTimeoutSec > 0 {
		idleTimeout = time.Duration(cfg.IdleTimeoutSec) * time.Second
	}

	logStartup(cfg, addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSec) * time.Second,
		ReadTimeout:       time.Duration(cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.WriteTimeoutSec) * time.Second,
		IdleTimeout:       idleTimeout,
	}
	go func() {
		slog.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server", "err", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown", "err", err)
		os.Exit(1)
	}
	slog.Info("stopped")
}

func seedDevices() []device.Device {
	return []device.Device{
		{ID: 1, Name: "gateway", Kind: "network", Online: true, EnergyWh: 240},
		{ID: 2, Name: "desk lamp", Kind: "light", Online: false, EnergyWh: 36},
		{ID: 3, Name: "thermostat", Kind: "climate", Online: true, EnergyWh: 12},
	}
}

// logStartup prints a banner with the effective configuration.
func logStartup(cfg *config.Config, addr string) {
	sep := strings.Repeat("=", 60)
	dash := strings.Repeat("-", 60)
	slog.Info(sep)
	slog.Info("  STARTING SOHO DEVICE SERVICE")
	slog.Info(sep)
	slog.Info(fmt.Sprintf("  Host         : %s", addr))
	slog.Info(fmt.Sprintf("  Go version   : %s", runtime.Version()))
	slog.Info(fmt.Sprintf("  Log level    : %s", cfg.LogLevel))
	slog.Info(fmt.Sprintf("  CORS origins : %s", cfg.CORSOrigins))
	slog.Info(dash)
	slog.Info("  HTTP server timeouts")
	slog.Info(fmt.Sprintf("    ReadHeader  : %ds", cfg.ReadHeaderTimeoutSec))
	slog.Info(fmt.Sprintf("    Read        : %ds", cfg.ReadTimeoutSec))
	slog.Info(fmt.Sprintf("    Write       : %ds", cfg.WriteTimeoutSec))
	slog.Info(fmt.Sprintf("    Idle        : %ds", cfg.IdleTimeoutSec))
	slog.Info(dash)
	slog.Info("  Request logging")
	slog.Info(fmt.Sprintf("    Selector    : %s", strings.Join(weblog.ParseSelector(cfg.WeblogSelector).Prefixes(), ", ")))
	slog.Info(fmt.Sprintf("    Arg traces  : %s", strings.Join(cfg.TracePrefixes(), ", ")))
	slog.Info(dash)
	slog.Info("  Backends")
	slog.Info(fmt.Sprintf("    Devices     : %s", orDefault(cfg.RegistryURL, "memory")))
	slog.Info(fmt.Sprintf("    Sessions    : %s (cookie %s, ttl %ds)", orDefault(cfg.RedisAddr, "memory"), cfg.SessionCookie, cfg.SessionTTLSec))
	slog.Info(dash)
	slog.Info("  Endpoints")
	slog.Info("    GET    /devices")
	slog.Info("    POST   /devices")
	slog.Info("    GET    /devices/{id}")
	slog.Info("    DELETE /devices/{id}")
	slog.Info("    GET    /devices/{id}/power")
	slog.Info("    GET    /health")
	slog.Info("    GET    /metrics")
	slog.Info(sep)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// parseLogLevel maps debug, info, warn, error to slog.Level. Unknown → info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
