package main

import (
	"flag"
	"log"
	"os"

	"CoinCast/internal/di"
	"CoinCast/pkg/config"
	"CoinCast/pkg/logger"
)

func main() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "config/config.yaml"
	}
	configPath := flag.String("config", defaultPath, "config file path")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	l, err := logger.New(&logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: "coincast",
	})
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	l.Info("starting coincast",
		logger.String("env", cfg.Environment),
		logger.String("cache", cfg.Cache.Backend),
		logger.Bool("kafka", cfg.Kafka.Enabled),
		logger.Bool("clickhouse", cfg.ClickHouse.Enabled),
	)

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg, l)
	if err != nil {
		l.Error("app initialization failed", logger.Error(err))
		os.Exit(1)
	}

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		l.Error("app error", logger.Error(err))
		os.Exit(1)
	}
}
