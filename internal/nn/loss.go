package nn

import (
	"math"

	"github.com/pkg/errors"
)

// Softmax converts one row of logits into a probability vector. Logits are
// max-shifted before exponentiation for numeric stability.
func Softmax(logits []float64) []float64 {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	probs := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		probs[i] = math.Exp(v - max)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Argmax returns the index of the largest value, breaking ties toward the
// lower index.
func Argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// CrossEntropy computes the mean softmax cross-entropy loss over a batch of
// logits (N x NumClasses x 1 x 1) and the gradient with respect to the
// logits. The loss accumulates in float64. A non-finite loss is reported as
// an error so a corrupted batch aborts the epoch instead of skewing metrics.
func CrossEntropy(logits *Batch, labels []int) (float64, *Batch, error) {
	if logits.N != len(labels) {
		return 0, nil, errors.Errorf("batch has %d logit rows but %d labels", logits.N, len(labels))
	}

	grad := NewBatch(logits.N, logits.C, 1, 1)
	loss := 0.0
	invN := 1 / float64(logits.N)
	for n := 0; n < logits.N; n++ {
		row := logits.Data[n*logits.C : (n+1)*logits.C]
		probs := Softmax(row)
		loss -= math.Log(probs[labels[n]] + 1e-12)
		for c := 0; c < logits.C; c++ {
			g := probs[c]
			if c == labels[n] {
				g -= 1
			}
			grad.Data[n*logits.C+c] = g * invN
		}
	}
	loss *= invN

	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, nil, errors.Errorf("non-finite loss %v", loss)
	}
	return loss, grad, nil
}
