package handlers

import (
	"sync/atomic"

	"github.com/2024aa05820/mlops-assignment2/internal/inference"
)

// State is the process-wide service state.
type State int32

const (
	// Starting means the model has not been loaded yet.
	Starting State = iota

	// Ready means the model is loaded and requests are accepted.
	Ready

	// Degraded means the model failed to load or became unusable. The
	// state is terminal until the process restarts.
	Degraded
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// ModelHandle is the single owned cell holding the active inference engine.
// The engine pointer swaps atomically, so an in-flight request sees either
// the previous engine fully or the new one fully.
type ModelHandle struct {
	state  atomic.Int32
	engine atomic.Pointer[inference.Engine]
}

func NewModelHandle() *ModelHandle {
	h := &ModelHandle{}
	h.state.Store(int32(Starting))
	return h
}

func (h *ModelHandle) State() State {
	return State(h.state.Load())
}

// SetReady installs the engine and transitions starting -> ready. A
// degraded handle stays degraded; there is no recovery without restart.
func (h *ModelHandle) SetReady(e *inference.Engine) bool {
	h.engine.Store(e)
	return h.state.CompareAndSwap(int32(Starting), int32(Ready))
}

// Degrade moves to the terminal degraded state from anywhere.
func (h *ModelHandle) Degrade() {
	h.state.Store(int32(Degraded))
}

// Engine returns the active engine when the service is ready.
func (h *ModelHandle) Engine() (*inference.Engine, bool) {
	if h.State() != Ready {
		return nil, false
	}
	e := h.engine.Load()
	return e, e != nil
}
