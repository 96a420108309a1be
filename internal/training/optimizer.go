package training

import (
	"math"

	"github.com/2024aa05820/mlops-assignment2/internal/nn"
)

// Adam optimizer with an L2 weight-decay term folded into the gradient.
type Adam struct {
	LearningRate float64
	WeightDecay  float64

	beta1 float64
	beta2 float64
	eps   float64

	step   int
	params []*nn.Param
	m      [][]float64
	v      [][]float64
}

func NewAdam(params []*nn.Param, learningRate, weightDecay float64) *Adam {
	a := &Adam{
		LearningRate: learningRate,
		WeightDecay:  weightDecay,
		beta1:        0.9,
		beta2:        0.999,
		eps:          1e-8,
		params:       params,
		m:            make([][]float64, len(params)),
		v:            make([][]float64, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float64, len(p.Data))
		a.v[i] = make([]float64, len(p.Data))
	}
	return a
}

// Step applies one update from the accumulated gradients. Each step depends
// on the previous parameter state, so steps are strictly sequential.
func (a *Adam) Step() {
	a.step++
	bc1 := 1 - math.Pow(a.beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.beta2, float64(a.step))

	for i, p := range a.params {
		m, v := a.m[i], a.v[i]
		for j := range p.Data {
			g := p.Grad[j] + a.WeightDecay*p.Data[j]
			m[j] = a.beta1*m[j] + (1-a.beta1)*g
			v[j] = a.beta2*v[j] + (1-a.beta2)*g*g
			mhat := m[j] / bc1
			vhat := v[j] / bc2
			p.Data[j] -= a.LearningRate * mhat / (math.Sqrt(vhat) + a.eps)
		}
	}
}
