package tracking

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoop(t *testing.T) {
	tracker := NewNoop()
	tracker.LogParams(map[string]any{"epochs": 3})
	tracker.LogMetrics(1, map[string]float64{"val_accuracy": 0.9})
	tracker.LogArtifact("models/best.ckpt")
	tracker.Close()
}

func TestHTTPTracker_PostsEvents(t *testing.T) {
	var mu sync.Mutex
	var received []event

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var e event
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	}))
	defer srv.Close()

	tracker := NewHTTP(srv.URL, "exp-1", time.Second)
	tracker.LogParams(map[string]any{"epochs": float64(3)})
	tracker.LogMetrics(2, map[string]float64{"val_accuracy": 0.75})
	tracker.LogArtifact("models/best.ckpt")
	tracker.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, len(received))

	kinds := make(map[string]event, len(received))
	for _, e := range received {
		assert.Equal(t, "exp-1", e.Experiment)
		assert.Equal(t, tracker.RunID(), e.RunID)
		assert.False(t, e.Timestamp.IsZero())
		kinds[e.Kind] = e
	}
	assert.Equal(t, float64(3), kinds["params"].Params["epochs"])
	assert.Equal(t, 2, kinds["metrics"].Step)
	assert.Equal(t, 0.75, kinds["metrics"].Metrics["val_accuracy"])
	assert.Equal(t, "models/best.ckpt", kinds["artifact"].Artifact)
}

func TestHTTPTracker_SwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tracker := NewHTTP(srv.URL, "exp-1", time.Second)
	tracker.LogMetrics(1, map[string]float64{"val_accuracy": 0.5})
	tracker.Close()

	// Unreachable sinks are equally harmless.
	dead := NewHTTP("http://127.0.0.1:1", "exp-1", 100*time.Millisecond)
	dead.LogArtifact("models/best.ckpt")
	dead.Close()
}

func TestHTTPTracker_DistinctRunIDs(t *testing.T) {
	a := NewHTTP("http://127.0.0.1:1", "exp-1", time.Second)
	b := NewHTTP("http://127.0.0.1:1", "exp-1", time.Second)
	assert.NotEmpty(t, a.RunID())
	assert.NotEqual(t, a.RunID(), b.RunID())
}
