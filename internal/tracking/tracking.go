// Package tracking reports experiment metrics to an external sink. The sink
// is a best-effort side channel: every failure is logged and swallowed so
// tracking can never stall or fail a training run.
package tracking

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	logger "github.com/2024aa05820/mlops-assignment2/internal/logger"
)

// Tracker receives run parameters, per-step metrics, and artifact
// references.
type Tracker interface {
	LogParams(params map[string]any)
	LogMetrics(step int, metrics map[string]float64)
	LogArtifact(path string)
	Close()
}

// NewNoop returns a tracker that drops everything; used when no sink is
// configured.
func NewNoop() Tracker { return noopTracker{} }

type noopTracker struct{}

func (noopTracker) LogParams(map[string]any)           {}
func (noopTracker) LogMetrics(int, map[string]float64) {}
func (noopTracker) LogArtifact(string)                 {}
func (noopTracker) Close()                             {}

type event struct {
	Experiment string             `json:"experiment"`
	RunID      string             `json:"run_id"`
	Kind       string             `json:"kind"`
	Step       int                `json:"step,omitempty"`
	Params     map[string]any     `json:"params,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Artifact   string             `json:"artifact,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}

// HTTPTracker posts JSON events to a tracking endpoint. Each report is
// fire-and-forget on its own goroutine; Close waits for in-flight posts.
type HTTPTracker struct {
	addr       string
	experiment string
	runID      string
	client     *http.Client
	wg         sync.WaitGroup
}

func NewHTTP(addr, experiment string, timeout time.Duration) *HTTPTracker {
	return &HTTPTracker{
		addr:       addr,
		experiment: experiment,
		runID:      uuid.NewString(),
		client:     &http.Client{Timeout: timeout},
	}
}

// RunID identifies this run on the tracking side.
func (t *HTTPTracker) RunID() string { return t.runID }

func (t *HTTPTracker) LogParams(params map[string]any) {
	t.emit(event{Kind: "params", Params: params})
}

func (t *HTTPTracker) LogMetrics(step int, metrics map[string]float64) {
	t.emit(event{Kind: "metrics", Step: step, Metrics: metrics})
}

func (t *HTTPTracker) LogArtifact(path string) {
	t.emit(event{Kind: "artifact", Artifact: path})
}

func (t *HTTPTracker) Close() {
	t.wg.Wait()
}

func (t *HTTPTracker) emit(e event) {
	e.Experiment = t.experiment
	e.RunID = t.runID
	e.Timestamp = time.Now().UTC()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		body, err := json.Marshal(e)
		if err != nil {
			logger.Warnf("tracking: marshal %s event: %v", e.Kind, err)
			return
		}
		resp, err := t.client.Post(t.addr, "application/json", bytes.NewReader(body))
		if err != nil {
			logger.Warnf("tracking: sink unreachable, dropping %s event: %v", e.Kind, err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			logger.Warnf("tracking: sink returned %d for %s event", resp.StatusCode, e.Kind)
		}
	}()
}
