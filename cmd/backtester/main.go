package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/wyckoff_backtest/internal/infrastructure/logger"
	"github.com/vitos/wyckoff_backtest/internal/infrastructure/marketdata"
	"github.com/vitos/wyckoff_backtest/internal/infrastructure/storage"
	"github.com/vitos/wyckoff_backtest/internal/usecase"
	"github.com/vitos/wyckoff_backtest/internal/web"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Data struct {
		Dir string `yaml:"dir"`
	} `yaml:"data"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Runs struct {
		MaxConcurrent    int `yaml:"max_concurrent"`
		RegistryCapacity int `yaml:"registry_capacity"`
	} `yaml:"runs"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"` // optional, logs to stderr when empty
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	// 1. Load Config
	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = "backtester.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Market Data Sources
	dataDir := cfg.Data.Dir
	if dataDir == "" {
		dataDir = "data"
	}
	barSrc := marketdata.NewCSVBarSource(dataDir)
	sigSrc := marketdata.NewJSONSignalSource(dataDir)

	// 5. Init Engine and Coordinator
	engine := usecase.NewEngine(log)
	coordinator := usecase.NewCoordinator(store, store, barSrc, sigSrc, engine, log, usecase.CoordinatorConfig{
		MaxConcurrent:    cfg.Runs.MaxConcurrent,
		RegistryCapacity: cfg.Runs.RegistryCapacity,
	})

	// Runs outlive the requests that submit them; stop this context to
	// cancel every in-flight run on shutdown.
	runCtx, stopRuns := context.WithCancel(context.Background())
	defer stopRuns()
	coordinator.SetContext(runCtx)

	// 6. Init Web Server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080 // Default
	}
	server := web.NewServer(port, coordinator, store, store, log)

	// 7. Start Server
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 8. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	stopRuns()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
}
