package main

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Skufu/il17a-response/internal/audit"
	"github.com/Skufu/il17a-response/internal/explain"
	"github.com/Skufu/il17a-response/internal/features"
	"github.com/Skufu/il17a-response/internal/intake"
	"github.com/Skufu/il17a-response/internal/model"
	"github.com/Skufu/il17a-response/internal/predict"
	"github.com/Skufu/il17a-response/internal/report"
)

const requestIDHeader = "X-Request-ID"

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Predictor interface {
	Predict(ctx context.Context, rec intake.Record) (predict.Result, error)
}

type Explainer interface {
	Explain(ctx context.Context, rec intake.Record) (explain.Result, error)
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry) (audit.Entry, error)
}

// app is built once at startup and shared read-only by every request.
type app struct {
	schema       features.Schema
	modelVersion string
	predictor    Predictor
	explainer    Explainer
	db           HealthChecker
	auditor      Auditor
	renderPNG    func(ctx context.Context, res explain.Result, title string) ([]byte, error)
	log          *zap.Logger
}

func newApp(schema features.Schema, p *model.Pipeline, opts explain.Options, logger *zap.Logger) *app {
	return &app{
		schema:       schema,
		modelVersion: p.Version(),
		predictor:    predict.New(p),
		explainer:    explain.New(p, opts),
		renderPNG:    report.RenderPNG,
		log:          logger,
	}
}

func setupRouter(a *app, staticRoot string) *gin.Engine {
	router := gin.New()
	router.Use(
		requestLogger(a.log),
		gin.Recovery(),
		limitBodySize(1<<20), // 1MB max body
		cors.New(cors.Config{
			AllowOrigins:  []string{"*"},
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
			ExposeHeaders: []string{requestIDHeader},
			MaxAge:        12 * time.Hour,
		}),
	)

	router.Static("/static", staticRoot)
	router.StaticFile("/", filepath.Join(staticRoot, "index.html"))
	router.StaticFile("/styles.css", filepath.Join(staticRoot, "styles.css"))
	router.StaticFile("/app.js", filepath.Join(staticRoot, "app.js"))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", a.readyz)

	api := router.Group("/api")
	api.GET("/schema", a.schemaHandler)
	api.POST("/predict", a.predictHandler)
	api.POST("/explain/chart", a.chartHandler)

	return router
}

// requestLogger tags each request with an id, echoed in X-Request-ID, and
// logs it once it completes.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
