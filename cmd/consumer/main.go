package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/samber/do"
	"github.com/serroba/shortlinks/internal/container"
	"github.com/serroba/shortlinks/internal/messaging"
	"go.uber.org/zap"
)

func main() {
	opts := &container.Options{
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		Storage:            getEnv("STORAGE", container.BackendMemory),
		Queue:              container.BackendRedis,
		LogFormat:          getEnv("LOG_FORMAT", "console"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		StatsConsumerGroup: getEnv("CONSUMER_GROUP", "statistics-processor"),
		StatsMaxAttempts:   getEnvInt("STATS_MAX_ATTEMPTS", messaging.DefaultMaxAttempts),
		MigrateOnStart:     getEnv("MIGRATE_ON_START", "true") == "true",
	}

	injector := do.New()
	do.ProvideValue(injector, opts)
	container.LoggerPackage(injector)
	container.RedisPackage(injector)
	container.PostgresPackage(injector)
	container.BrokerPackage(injector)
	container.ConsumerGroupPackage(injector)

	logger := do.MustInvoke[*zap.Logger](injector)
	group := do.MustInvoke[*messaging.ConsumerGroup](injector)

	ctx, cancel := context.WithCancel(context.Background())

	if err := group.Start(ctx); err != nil {
		logger.Fatal("failed to start consumer group", zap.Error(err))
	}

	logger.Info("statistics processor running",
		zap.String("consumer_group", opts.StatsConsumerGroup),
		zap.String("storage", opts.Storage),
	)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()

	if err := injector.Shutdown(); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}

	return v
}
