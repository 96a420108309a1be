package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	logger "github.com/2024aa05820/mlops-assignment2/internal/logger"
	"github.com/2024aa05820/mlops-assignment2/internal/metrics"
)

const (
	ctxLabelKey      = "predicted_label"
	ctxConfidenceKey = "predicted_confidence"

	// RequestIDHeader carries the correlation id back to the caller.
	RequestIDHeader = "X-Request-ID"
)

// Router builds the gin engine with all routes and middleware.
func Router(h *Handler, verbose bool) *gin.Engine {
	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLog())

	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.POST("/predict", h.Predict)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	return r
}

// requestLog assigns each request an opaque id and writes one structured
// line at request start and one at request end. Successful predictions add
// the predicted label and confidence to the end line.
func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Header(RequestIDHeader, id)
		start := time.Now()

		logger.AccessLogger.Info("request start",
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", id),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if label, ok := c.Get(ctxLabelKey); ok {
			fields = append(fields, zap.Any("predicted_label", label))
		}
		if conf, ok := c.Get(ctxConfidenceKey); ok {
			fields = append(fields, zap.Any("confidence", conf))
		}
		logger.AccessLogger.Info("request end", fields...)
	}
}
