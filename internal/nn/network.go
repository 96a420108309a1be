package nn

import (
	"math/rand"

	"github.com/pkg/errors"
)

// NumClasses is the width of the output score vector.
const NumClasses = 2

// Network is the fixed-topology classifier: four conv blocks
// (3-32-64-128-256, each conv + batch norm + ReLU + 2x2 max pool), global
// average pooling, then 256-128-2 fully connected with dropout between.
type Network struct {
	layers []Layer
	norms  []*BatchNorm
}

// New builds a freshly initialized network. All randomness (weight init and
// dropout) flows from the given seed, so two networks built with the same
// seed are identical.
func New(seed int64, dropout float64) *Network {
	rng := rand.New(rand.NewSource(seed))

	widths := []int{3, 32, 64, 128, 256}
	n := &Network{}
	for i := 0; i+1 < len(widths); i++ {
		name := blockName(i + 1)
		bn := NewBatchNorm("bn"+name[4:], widths[i+1])
		n.norms = append(n.norms, bn)
		n.layers = append(n.layers,
			NewConv2D(name, widths[i], widths[i+1], rng),
			bn,
			NewReLU(),
			NewMaxPool(),
		)
	}
	n.layers = append(n.layers,
		NewGlobalAvgPool(),
		NewLinear("fc1", 256, 128, rng),
		NewReLU(),
		NewDropout(dropout, rng),
		NewLinear("fc2", 128, NumClasses, rng),
	)
	return n
}

func blockName(i int) string {
	return "conv" + string(rune('0'+i))
}

// Forward runs the network. With train=false, batch norm uses running
// statistics and dropout is the identity, so the output is deterministic
// given the parameters.
func (n *Network) Forward(x *Batch, train bool) *Batch {
	for _, l := range n.layers {
		x = l.Forward(x, train)
	}
	return x
}

// Backward accumulates gradients for every learnable parameter from the
// gradient of the loss with respect to the logits.
func (n *Network) Backward(grad *Batch) {
	for i := len(n.layers) - 1; i >= 0; i-- {
		grad = n.layers[i].Backward(grad)
	}
}

// Params returns the learnable parameters in a fixed order.
func (n *Network) Params() []*Param {
	var out []*Param
	for _, l := range n.layers {
		out = append(out, l.Params()...)
	}
	return out
}

func (n *Network) ZeroGrad() {
	for _, p := range n.Params() {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}

// NumParams counts learnable scalars. The fixed topology yields 422,530.
func (n *Network) NumParams() int {
	total := 0
	for _, p := range n.Params() {
		total += len(p.Data)
	}
	return total
}

// StateDict exports every parameter plus batch-norm running statistics,
// keyed by layer name. Slices are copied.
func (n *Network) StateDict() map[string]Variable {
	dict := make(map[string]Variable)
	for _, p := range n.Params() {
		dict[p.Name] = Variable{
			Shape: append([]int(nil), p.Shape...),
			Data:  append([]float64(nil), p.Data...),
		}
	}
	for i, bn := range n.norms {
		prefix := "bn" + string(rune('1'+i))
		dict[prefix+".running_mean"] = Variable{
			Shape: []int{bn.Channels},
			Data:  append([]float64(nil), bn.RunningMean...),
		}
		dict[prefix+".running_var"] = Variable{
			Shape: []int{bn.Channels},
			Data:  append([]float64(nil), bn.RunningVar...),
		}
	}
	return dict
}

// LoadStateDict replaces the network state. Every expected tensor must be
// present with its exact shape and no extras may appear; a structural
// mismatch is an error, detected here rather than at first prediction.
func (n *Network) LoadStateDict(dict map[string]Variable) error {
	expected := n.StateDict()
	if len(dict) != len(expected) {
		return errors.Errorf("state has %d tensors, want %d", len(dict), len(expected))
	}

	for name, want := range expected {
		got, ok := dict[name]
		if !ok {
			return errors.Errorf("state is missing tensor %q", name)
		}
		if !shapeEqual(got.Shape, want.Shape) {
			return errors.Errorf("tensor %q has shape %v, want %v", name, got.Shape, want.Shape)
		}
		if len(got.Data) != len(want.Data) {
			return errors.Errorf("tensor %q has %d values, want %d", name, len(got.Data), len(want.Data))
		}
	}

	for _, p := range n.Params() {
		copy(p.Data, dict[p.Name].Data)
	}
	for i, bn := range n.norms {
		prefix := "bn" + string(rune('1'+i))
		copy(bn.RunningMean, dict[prefix+".running_mean"].Data)
		copy(bn.RunningVar, dict[prefix+".running_var"].Data)
	}
	return nil
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
