// Package handlers is the request/response boundary of the serving layer:
// liveness, readiness, prediction, and the metrics scrape endpoint.
package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/2024aa05820/mlops-assignment2/internal/metrics"
	"github.com/2024aa05820/mlops-assignment2/internal/pipeline"
)

// maxImageBytes bounds the uploaded payload (10MB).
const maxImageBytes = 10 << 20

type Handler struct {
	model *ModelHandle
}

func New(model *ModelHandle) *Handler {
	return &Handler{model: model}
}

// Root lists the available endpoints.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Cats vs Dogs Classification API",
		"version": Version,
		"health":  "/health",
		"ready":   "/ready",
		"predict": "/predict",
		"metrics": "/metrics",
	})
}

// Health is the liveness probe: it succeeds whenever the process is up,
// independent of model state.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		ModelLoaded: h.model.State() == Ready,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Version:     Version,
	})
}

// Ready is the readiness probe. Non-ready states answer 503 so the caller
// can distinguish them from ready by status code alone.
func (h *Handler) Ready(c *gin.Context) {
	state := h.model.State()
	if state != Ready {
		c.JSON(http.StatusServiceUnavailable, ReadyResponse{
			Ready: false,
			State: state.String(),
		})
		return
	}

	engine, _ := h.model.Engine()
	resp := ReadyResponse{Ready: true, State: state.String()}
	if engine != nil {
		resp.ModelPath = engine.Path()
	}
	c.JSON(http.StatusOK, resp)
}

// Predict classifies one uploaded image. Counters and the latency summary
// are updated exactly once per request, after the computation finishes.
func (h *Handler) Predict(c *gin.Context) {
	start := time.Now()

	engine, ok := h.model.Engine()
	if !ok {
		h.fail(c, http.StatusServiceUnavailable, errors.New("model not loaded"))
		return
	}

	payload, err := readImage(c)
	if err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}

	result, err := engine.Predict(payload)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrInvalidImage) {
			status = http.StatusBadRequest
		}
		h.fail(c, status, err)
		return
	}

	metrics.PredictionsTotal.WithLabelValues(result.Label).Inc()
	metrics.PredictionLatency.Observe(time.Since(start).Seconds())

	c.Set(ctxLabelKey, result.Label)
	c.Set(ctxConfidenceKey, result.Confidence)
	c.JSON(http.StatusOK, PredictionResponse{
		Prediction:      result.Label,
		Confidence:      result.Confidence,
		Probabilities:   result.Probs,
		InferenceTimeMs: result.InferenceMs,
	})
}

func (h *Handler) fail(c *gin.Context, status int, err error) {
	metrics.PredictionErrorsTotal.Inc()
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

// readImage accepts either a multipart form with an "image" file field or a
// raw image/* body.
func readImage(c *gin.Context) ([]byte, error) {
	contentType := c.ContentType()

	if strings.HasPrefix(contentType, "multipart/") {
		file, _, err := c.Request.FormFile("image")
		if err != nil {
			return nil, errors.Wrap(pipeline.ErrInvalidImage,
				"no image file provided; use 'image' as the form field name")
		}
		defer file.Close()
		return io.ReadAll(io.LimitReader(file, maxImageBytes))
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImageBytes))
	if err != nil {
		return nil, errors.Wrap(pipeline.ErrInvalidImage, "read request body")
	}
	return data, nil
}
