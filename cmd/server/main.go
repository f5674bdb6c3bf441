package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Skufu/il17a-response/internal/audit"
	"github.com/Skufu/il17a-response/internal/explain"
	"github.com/Skufu/il17a-response/internal/features"
	"github.com/Skufu/il17a-response/internal/logging"
	"github.com/Skufu/il17a-response/internal/model"
)

type Config struct {
	Port           string
	ModelPath      string
	ExplainTimeout time.Duration
	DatabaseURL    string
	EnableDB       bool
	LogLevel       string
	LogFile        string
	StaticRoot     string
}

func main() {
	gin.SetMode(getEnv("GIN_MODE", "release"))

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	schema := features.Default()
	pipeline, err := model.Load(cfg.ModelPath, schema.Names())
	if err != nil {
		logger.Fatal("model unavailable", zap.Error(err))
	}
	logger.Info("model loaded",
		zap.String("path", cfg.ModelPath),
		zap.String("version", pipeline.Version()),
		zap.String("scaler", pipeline.ScalerKind()),
		zap.Int("trees", len(pipeline.Classifier().Trees)),
	)

	a := newApp(schema, pipeline, explain.Options{Timeout: cfg.ExplainTimeout}, logger)

	ctx := context.Background()
	if cfg.EnableDB {
		store, pool, err := audit.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		defer pool.Close()
		a.db = store
		a.auditor = store
	}

	staticRoot := cfg.StaticRoot
	if staticRoot == "" {
		staticRoot = detectStaticRoot()
	}
	router := setupRouter(a, staticRoot)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.ExplainTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("server listening", zap.String("addr", server.Addr), zap.String("static", staticRoot))
	waitForShutdown(server, logger)
}

func loadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		ModelPath:   getEnv("MODEL_PATH", filepath.Join("models", "rf_model.json")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		EnableDB:    strings.EqualFold(getEnv("ENABLE_DB", "false"), "true"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     os.Getenv("LOG_FILE"),
		StaticRoot:  os.Getenv("STATIC_ROOT"),
	}

	timeout, err := time.ParseDuration(getEnv("EXPLAIN_TIMEOUT", explain.DefaultTimeout.String()))
	if err != nil {
		return nil, fmt.Errorf("EXPLAIN_TIMEOUT: %w", err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("EXPLAIN_TIMEOUT must be positive, got %s", timeout)
	}
	cfg.ExplainTimeout = timeout

	if cfg.EnableDB && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}

	return cfg, nil
}

func waitForShutdown(server *http.Server, logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// detectStaticRoot finds the web form directory when running from the repo
// root or from cmd/server.
func detectStaticRoot() string {
	startDir, err := os.Getwd()
	if err != nil {
		return "web"
	}

	candidates := []string{
		startDir,
		filepath.Dir(startDir),
		filepath.Dir(filepath.Dir(startDir)),
	}

	for _, dir := range candidates {
		web := filepath.Join(dir, "web")
		if fileExists(filepath.Join(web, "index.html")) {
			return web
		}
	}

	return filepath.Join(startDir, "web")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
