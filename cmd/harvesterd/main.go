package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/attestkit/harvester/config"
	"github.com/attestkit/harvester/logger"
	"github.com/attestkit/harvester/plugin"
	"github.com/attestkit/harvester/server"
)

const defaultConfigFile = "./config.yaml"

func main() {
	configFile := getEnv("CONFIG_FILE", defaultConfigFile)

	cfg := config.DefaultServer()
	if _, err := os.Stat(configFile); err == nil {
		loaded, err := config.LoadServer(configFile)
		if err != nil {
			slog.Error("failed to load config file", "file", configFile, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if addr := os.Getenv("ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if token := os.Getenv("AUTH_TOKEN"); token != "" {
		cfg.AuthToken = token
	}

	log := logger.NewJSON(parseLevel(cfg.LogLevel))
	log.Info("starting harvester", "addr", cfg.Addr, "log_level", cfg.LogLevel)

	svc := plugin.New(log)
	if err := svc.Initialize(cfg.SinkEndpoint, cfg.QueueEndpoint, cfg.AuthToken, cfg.Engine); err != nil {
		log.Error("failed to initialize plugin", "error", err)
		os.Exit(1)
	}
	defer svc.Shutdown()

	srv, err := server.New(svc, log, &server.Config{
		RedisURL:      cfg.RedisURL,
		RequestLimit:  cfg.RequestLimit,
		RequestWindow: cfg.RequestWindow,
		AuthToken:     cfg.AuthToken,
	})
	if err != nil {
		log.Error("failed to create server", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.StartWithShutdown(ctx, cfg.Addr); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}

	log.Info("harvester stopped")
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("unknown log level, using info", "level", level)
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
