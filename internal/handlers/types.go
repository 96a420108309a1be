package handlers

// Version is reported by the info and health endpoints.
const Version = "1.0.0"

type PredictionResponse struct {
	Prediction      string             `json:"prediction"`
	Confidence      float64            `json:"confidence"`
	Probabilities   map[string]float64 `json:"probabilities"`
	InferenceTimeMs float64            `json:"inference_time_ms"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Timestamp   string `json:"timestamp"`
	Version     string `json:"version"`
}

type ReadyResponse struct {
	Ready     bool   `json:"ready"`
	State     string `json:"state"`
	ModelPath string `json:"model_path,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
