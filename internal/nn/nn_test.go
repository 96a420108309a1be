package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetwork_NumParams(t *testing.T) {
	net := New(42, 0.5)
	// 4 conv blocks + batch norm affine + two FC layers.
	assert.Equal(t, 422530, net.NumParams())
}

func TestSoftmax(t *testing.T) {
	tests := []struct {
		name   string
		logits []float64
		expect func(t *testing.T, probs []float64)
	}{
		{
			name:   "uniform logits give uniform probabilities",
			logits: []float64{1, 1},
			expect: func(t *testing.T, probs []float64) {
				assert.InDelta(t, 0.5, probs[0], 1e-12)
				assert.InDelta(t, 0.5, probs[1], 1e-12)
			},
		},
		{
			name:   "large logits stay finite",
			logits: []float64{1000, 999},
			expect: func(t *testing.T, probs []float64) {
				assert.False(t, math.IsNaN(probs[0]))
				assert.Greater(t, probs[0], probs[1])
			},
		},
		{
			name:   "probabilities sum to one",
			logits: []float64{0.3, -1.7},
			expect: func(t *testing.T, probs []float64) {
				assert.InDelta(t, 1.0, probs[0]+probs[1], 1e-9)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.expect(t, Softmax(tc.logits))
		})
	}
}

func TestArgmax_TieBreaksLow(t *testing.T) {
	assert.Equal(t, 0, Argmax([]float64{0.5, 0.5}))
	assert.Equal(t, 1, Argmax([]float64{0.4, 0.6}))
	assert.Equal(t, 0, Argmax([]float64{0.6, 0.4}))
}

func TestCrossEntropy(t *testing.T) {
	logits := NewBatch(1, 2, 1, 1)
	loss, grad, err := CrossEntropy(logits, []int{0})
	assert.NoError(t, err)
	assert.InDelta(t, math.Log(2), loss, 1e-9)
	assert.InDelta(t, -0.5, grad.Data[0], 1e-9)
	assert.InDelta(t, 0.5, grad.Data[1], 1e-9)
}

func TestCrossEntropy_LabelMismatch(t *testing.T) {
	logits := NewBatch(2, 2, 1, 1)
	_, _, err := CrossEntropy(logits, []int{0})
	assert.Error(t, err)
}

// Forward shapes are size-agnostic above the input layer, so the unit test
// uses a small input rather than a full 224x224 image.
func TestNetwork_ForwardShape(t *testing.T) {
	net := New(7, 0.5)
	x := NewBatch(2, 3, 32, 32)
	out := net.Forward(x, false)
	assert.Equal(t, 2, out.N)
	assert.Equal(t, NumClasses, out.C)
	assert.Equal(t, 1, out.H)
	assert.Equal(t, 1, out.W)
}

func TestNetwork_InitDeterminism(t *testing.T) {
	a := New(42, 0.5)
	b := New(42, 0.5)

	x := NewBatch(1, 3, 16, 16)
	for i := range x.Data {
		x.Data[i] = math.Sin(float64(i))
	}
	outA := a.Forward(x, false)
	outB := b.Forward(x, false)
	assert.Equal(t, outA.Data, outB.Data)

	c := New(43, 0.5)
	outC := c.Forward(x, false)
	assert.NotEqual(t, outA.Data, outC.Data)
}

func TestNetwork_EvalForwardIsDeterministic(t *testing.T) {
	net := New(11, 0.5)
	x := NewBatch(1, 3, 16, 16)
	for i := range x.Data {
		x.Data[i] = float64(i%17) / 17
	}
	first := net.Forward(x, false)
	second := net.Forward(x, false)
	assert.Equal(t, first.Data, second.Data)
}

func TestNetwork_StateDictRoundTrip(t *testing.T) {
	src := New(1, 0.5)
	dst := New(2, 0.5)

	x := NewBatch(1, 3, 16, 16)
	for i := range x.Data {
		x.Data[i] = float64(i%7) - 3
	}
	assert.NotEqual(t, src.Forward(x, false).Data, dst.Forward(x, false).Data)

	assert.NoError(t, dst.LoadStateDict(src.StateDict()))
	assert.Equal(t, src.Forward(x, false).Data, dst.Forward(x, false).Data)
}

func TestNetwork_LoadStateDictValidation(t *testing.T) {
	net := New(1, 0.5)

	tests := []struct {
		name   string
		mutate func(dict map[string]Variable)
	}{
		{
			name: "missing tensor",
			mutate: func(dict map[string]Variable) {
				delete(dict, "conv1.weight")
			},
		},
		{
			name: "extra tensor",
			mutate: func(dict map[string]Variable) {
				dict["conv9.weight"] = Variable{Shape: []int{1}, Data: []float64{0}}
			},
		},
		{
			name: "wrong shape",
			mutate: func(dict map[string]Variable) {
				dict["fc2.bias"] = Variable{Shape: []int{3}, Data: []float64{0, 0, 0}}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dict := New(1, 0.5).StateDict()
			tc.mutate(dict)
			assert.Error(t, net.LoadStateDict(dict))
		})
	}
}

// TestGradients checks every layer's analytic gradients against central
// finite differences on a miniature stack of the same layer types the full
// topology uses.
func TestGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	layers := []Layer{
		NewConv2D("conv1", 2, 3, rng),
		NewBatchNorm("bn1", 3),
		NewReLU(),
		NewMaxPool(),
		NewGlobalAvgPool(),
		NewLinear("fc1", 3, 2, rng),
	}

	forward := func(x *Batch, labels []int) float64 {
		out := x
		for _, l := range layers {
			out = l.Forward(out, true)
		}
		loss, _, err := CrossEntropy(out, labels)
		assert.NoError(t, err)
		return loss
	}

	backward := func(x *Batch, labels []int) {
		out := x
		for _, l := range layers {
			out = l.Forward(out, true)
		}
		_, grad, err := CrossEntropy(out, labels)
		assert.NoError(t, err)
		for i := len(layers) - 1; i >= 0; i-- {
			grad = layers[i].Backward(grad)
		}
	}

	x := NewBatch(4, 2, 8, 8)
	for i := range x.Data {
		x.Data[i] = rng.NormFloat64()
	}
	labels := []int{0, 1, 1, 0}

	var params []*Param
	for _, l := range layers {
		params = append(params, l.Params()...)
	}
	for _, p := range params {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
	backward(x, labels)

	const eps = 1e-5
	for _, p := range params {
		// Sample a few coordinates per parameter tensor.
		for _, j := range []int{0, len(p.Data) / 2, len(p.Data) - 1} {
			orig := p.Data[j]
			p.Data[j] = orig + eps
			plus := forward(x, labels)
			p.Data[j] = orig - eps
			minus := forward(x, labels)
			p.Data[j] = orig

			numeric := (plus - minus) / (2 * eps)
			assert.InDelta(t, numeric, p.Grad[j], 1e-4,
				"gradient mismatch for %s[%d]", p.Name, j)
		}
	}
}
