// Package inference loads a persisted checkpoint into the classifier and
// serves synchronous predictions against the read-only parameters.
package inference

import (
	"time"

	"github.com/pkg/errors"

	"github.com/2024aa05820/mlops-assignment2/internal/checkpoint"
	"github.com/2024aa05820/mlops-assignment2/internal/nn"
	"github.com/2024aa05820/mlops-assignment2/internal/pipeline"
)

// ErrInference marks an unexpected internal failure during a forward pass.
// It is always surfaced to the caller, never replaced by a fallback
// prediction.
var ErrInference = errors.New("inference failed")

// Result is one prediction. It has no identity beyond the response.
type Result struct {
	Label       string
	Confidence  float64
	Probs       map[string]float64
	InferenceMs float64
}

// Engine wraps a loaded network. After Load the parameters are read-only,
// so one engine serves concurrent Predict calls without locking.
type Engine struct {
	net     *nn.Network
	classes []string
	path    string

	// metadata from the checkpoint, for readiness reporting
	epoch       int
	valAccuracy float64
}

// Load reads and validates a checkpoint. Structural incompatibility with
// the fixed topology (missing tensor, wrong shape, wrong class count) is
// detected here, not deferred to the first prediction.
func Load(path string) (*Engine, error) {
	ckpt, err := checkpoint.Load(path)
	if err != nil {
		return nil, err
	}
	if len(ckpt.Classes) != nn.NumClasses {
		return nil, errors.Wrapf(checkpoint.ErrIncompatible,
			"checkpoint has %d classes, model outputs %d", len(ckpt.Classes), nn.NumClasses)
	}

	net := nn.New(0, 0)
	if err := ckpt.Apply(net); err != nil {
		return nil, err
	}

	return &Engine{
		net:         net,
		classes:     ckpt.Classes,
		path:        path,
		epoch:       ckpt.Epoch,
		valAccuracy: ckpt.ValAccuracy,
	}, nil
}

// Path returns the checkpoint file this engine was loaded from.
func (e *Engine) Path() string { return e.path }

// Epoch returns the epoch index of the loaded checkpoint.
func (e *Engine) Epoch() int { return e.epoch }

// Predict classifies one image. The reported duration covers the forward
// pass alone, excluding decode and transform.
func (e *Engine) Predict(imageBytes []byte) (*Result, error) {
	tensor, err := pipeline.FromBytes(imageBytes)
	if err != nil {
		return nil, err
	}
	batch, err := nn.Stack([]*nn.Tensor{tensor})
	if err != nil {
		return nil, errors.Wrap(ErrInference, err.Error())
	}

	start := time.Now()
	logits := e.net.Forward(batch, false)
	elapsed := time.Since(start)

	if logits.N != 1 || logits.C != nn.NumClasses {
		return nil, errors.Wrapf(ErrInference, "unexpected output shape %dx%d", logits.N, logits.C)
	}

	probs := nn.Softmax(logits.Data[:nn.NumClasses])
	// Argmax breaks ties toward the lower label index.
	idx := nn.Argmax(probs)

	byClass := make(map[string]float64, len(e.classes))
	for i, name := range e.classes {
		byClass[name] = probs[i]
	}

	return &Result{
		Label:       e.classes[idx],
		Confidence:  probs[idx],
		Probs:       byClass,
		InferenceMs: float64(elapsed.Microseconds()) / 1000.0,
	}, nil
}
