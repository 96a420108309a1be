package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Layer is one stage of the network. Forward caches whatever Backward needs;
// Backward accumulates parameter gradients and returns the input gradient.
type Layer interface {
	Forward(x *Batch, train bool) *Batch
	Backward(grad *Batch) *Batch
	Params() []*Param
}

// Conv2D is a 3x3 convolution with stride 1 and padding 1, so spatial
// dimensions are preserved.
type Conv2D struct {
	InChannels  int
	OutChannels int

	weight *Param // [out, in, 3, 3]
	bias   *Param // [out]

	input *Batch
}

const convKernel = 3

func NewConv2D(name string, in, out int, rng *rand.Rand) *Conv2D {
	c := &Conv2D{
		InChannels:  in,
		OutChannels: out,
		weight:      newParam(name+".weight", out, in, convKernel, convKernel),
		bias:        newParam(name+".bias", out),
	}
	// Kaiming normal, fan-out mode, ReLU gain. Biases start at zero.
	std := math.Sqrt(2.0 / float64(out*convKernel*convKernel))
	for i := range c.weight.Data {
		c.weight.Data[i] = rng.NormFloat64() * std
	}
	return c
}

func (c *Conv2D) Forward(x *Batch, train bool) *Batch {
	// Caches feed Backward only; eval-mode Forward stays free of writes to
	// the layer so one loaded model serves concurrent predictions.
	if train {
		c.input = x
	}
	out := NewBatch(x.N, c.OutChannels, x.H, x.W)
	w := c.weight.Data
	for n := 0; n < x.N; n++ {
		for oc := 0; oc < c.OutChannels; oc++ {
			for y := 0; y < x.H; y++ {
				for xx := 0; xx < x.W; xx++ {
					sum := c.bias.Data[oc]
					for ic := 0; ic < c.InChannels; ic++ {
						for ky := 0; ky < convKernel; ky++ {
							iy := y + ky - 1
							if iy < 0 || iy >= x.H {
								continue
							}
							for kx := 0; kx < convKernel; kx++ {
								ix := xx + kx - 1
								if ix < 0 || ix >= x.W {
									continue
								}
								wi := ((oc*c.InChannels+ic)*convKernel+ky)*convKernel + kx
								sum += w[wi] * x.At(n, ic, iy, ix)
							}
						}
					}
					out.Set(n, oc, y, xx, sum)
				}
			}
		}
	}
	return out
}

func (c *Conv2D) Backward(grad *Batch) *Batch {
	x := c.input
	dx := NewBatch(x.N, x.C, x.H, x.W)
	w := c.weight.Data
	for n := 0; n < x.N; n++ {
		for oc := 0; oc < c.OutChannels; oc++ {
			for y := 0; y < x.H; y++ {
				for xx := 0; xx < x.W; xx++ {
					g := grad.At(n, oc, y, xx)
					if g == 0 {
						continue
					}
					c.bias.Grad[oc] += g
					for ic := 0; ic < c.InChannels; ic++ {
						for ky := 0; ky < convKernel; ky++ {
							iy := y + ky - 1
							if iy < 0 || iy >= x.H {
								continue
							}
							for kx := 0; kx < convKernel; kx++ {
								ix := xx + kx - 1
								if ix < 0 || ix >= x.W {
									continue
								}
								wi := ((oc*c.InChannels+ic)*convKernel+ky)*convKernel + kx
								c.weight.Grad[wi] += g * x.At(n, ic, iy, ix)
								dx.Data[((n*x.C+ic)*x.H+iy)*x.W+ix] += g * w[wi]
							}
						}
					}
				}
			}
		}
	}
	return dx
}

func (c *Conv2D) Params() []*Param {
	return []*Param{c.weight, c.bias}
}

// BatchNorm normalizes per channel over the batch and spatial dimensions.
// Running statistics follow the usual exponential update and are used in
// eval mode.
type BatchNorm struct {
	Channels int

	gamma *Param
	beta  *Param

	RunningMean []float64
	RunningVar  []float64

	momentum float64
	eps      float64

	xhat   []float64
	invStd []float64
	shape  *Batch
}

func NewBatchNorm(name string, channels int) *BatchNorm {
	b := &BatchNorm{
		Channels:    channels,
		gamma:       newParam(name+".weight", channels),
		beta:        newParam(name+".bias", channels),
		RunningMean: make([]float64, channels),
		RunningVar:  make([]float64, channels),
		momentum:    0.1,
		eps:         1e-5,
	}
	for i := range b.gamma.Data {
		b.gamma.Data[i] = 1
		b.RunningVar[i] = 1
	}
	return b
}

func (b *BatchNorm) Forward(x *Batch, train bool) *Batch {
	out := NewBatch(x.N, x.C, x.H, x.W)
	spatial := x.H * x.W
	count := x.N * spatial

	if !train {
		for c := 0; c < x.C; c++ {
			scale := b.gamma.Data[c] / math.Sqrt(b.RunningVar[c]+b.eps)
			shift := b.beta.Data[c] - b.RunningMean[c]*scale
			for n := 0; n < x.N; n++ {
				base := (n*x.C + c) * spatial
				for i := 0; i < spatial; i++ {
					out.Data[base+i] = x.Data[base+i]*scale + shift
				}
			}
		}
		return out
	}

	b.shape = x
	b.xhat = make([]float64, len(x.Data))
	b.invStd = make([]float64, x.C)

	for c := 0; c < x.C; c++ {
		mean := 0.0
		for n := 0; n < x.N; n++ {
			base := (n*x.C + c) * spatial
			mean += floats.Sum(x.Data[base : base+spatial])
		}
		mean /= float64(count)

		variance := 0.0
		for n := 0; n < x.N; n++ {
			base := (n*x.C + c) * spatial
			for i := 0; i < spatial; i++ {
				d := x.Data[base+i] - mean
				variance += d * d
			}
		}
		variance /= float64(count)

		invStd := 1 / math.Sqrt(variance+b.eps)
		b.invStd[c] = invStd

		// Running stats use the unbiased variance.
		unbiased := variance
		if count > 1 {
			unbiased = variance * float64(count) / float64(count-1)
		}
		b.RunningMean[c] = (1-b.momentum)*b.RunningMean[c] + b.momentum*mean
		b.RunningVar[c] = (1-b.momentum)*b.RunningVar[c] + b.momentum*unbiased

		for n := 0; n < x.N; n++ {
			base := (n*x.C + c) * spatial
			for i := 0; i < spatial; i++ {
				xh := (x.Data[base+i] - mean) * invStd
				b.xhat[base+i] = xh
				out.Data[base+i] = b.gamma.Data[c]*xh + b.beta.Data[c]
			}
		}
	}
	return out
}

func (b *BatchNorm) Backward(grad *Batch) *Batch {
	x := b.shape
	dx := NewBatch(x.N, x.C, x.H, x.W)
	spatial := x.H * x.W
	count := float64(x.N * spatial)

	for c := 0; c < x.C; c++ {
		sumDy := 0.0
		sumDyXhat := 0.0
		for n := 0; n < x.N; n++ {
			base := (n*x.C + c) * spatial
			for i := 0; i < spatial; i++ {
				dy := grad.Data[base+i]
				sumDy += dy
				sumDyXhat += dy * b.xhat[base+i]
			}
		}
		b.beta.Grad[c] += sumDy
		b.gamma.Grad[c] += sumDyXhat

		scale := b.gamma.Data[c] * b.invStd[c] / count
		for n := 0; n < x.N; n++ {
			base := (n*x.C + c) * spatial
			for i := 0; i < spatial; i++ {
				dy := grad.Data[base+i]
				dx.Data[base+i] = scale * (count*dy - sumDy - b.xhat[base+i]*sumDyXhat)
			}
		}
	}
	return dx
}

func (b *BatchNorm) Params() []*Param {
	return []*Param{b.gamma, b.beta}
}

// ReLU rectifier.
type ReLU struct {
	mask []bool
}

func NewReLU() *ReLU { return &ReLU{} }

func (r *ReLU) Forward(x *Batch, train bool) *Batch {
	out := NewBatch(x.N, x.C, x.H, x.W)
	if train {
		r.mask = make([]bool, len(x.Data))
		for i, v := range x.Data {
			if v > 0 {
				out.Data[i] = v
				r.mask[i] = true
			}
		}
		return out
	}
	for i, v := range x.Data {
		if v > 0 {
			out.Data[i] = v
		}
	}
	return out
}

func (r *ReLU) Backward(grad *Batch) *Batch {
	dx := NewBatch(grad.N, grad.C, grad.H, grad.W)
	for i, pass := range r.mask {
		if pass {
			dx.Data[i] = grad.Data[i]
		}
	}
	return dx
}

func (r *ReLU) Params() []*Param { return nil }

// MaxPool halves the spatial dimensions with a 2x2 window, stride 2.
type MaxPool struct {
	argmax []int
	in     *Batch
}

func NewMaxPool() *MaxPool { return &MaxPool{} }

func (m *MaxPool) Forward(x *Batch, train bool) *Batch {
	outH, outW := x.H/2, x.W/2
	out := NewBatch(x.N, x.C, outH, outW)
	var argmax []int
	if train {
		m.in = x
		argmax = make([]int, len(out.Data))
		m.argmax = argmax
	}

	oi := 0
	for n := 0; n < x.N; n++ {
		for c := 0; c < x.C; c++ {
			for y := 0; y < outH; y++ {
				for xx := 0; xx < outW; xx++ {
					best := math.Inf(-1)
					bestIdx := 0
					for ky := 0; ky < 2; ky++ {
						for kx := 0; kx < 2; kx++ {
							idx := ((n*x.C+c)*x.H+2*y+ky)*x.W + 2*xx + kx
							if x.Data[idx] > best {
								best = x.Data[idx]
								bestIdx = idx
							}
						}
					}
					out.Data[oi] = best
					if argmax != nil {
						argmax[oi] = bestIdx
					}
					oi++
				}
			}
		}
	}
	return out
}

func (m *MaxPool) Backward(grad *Batch) *Batch {
	dx := NewBatch(m.in.N, m.in.C, m.in.H, m.in.W)
	for oi, idx := range m.argmax {
		dx.Data[idx] += grad.Data[oi]
	}
	return dx
}

func (m *MaxPool) Params() []*Param { return nil }

// GlobalAvgPool collapses each channel plane to its mean, yielding an
// N x C x 1 x 1 batch.
type GlobalAvgPool struct {
	in *Batch
}

func NewGlobalAvgPool() *GlobalAvgPool { return &GlobalAvgPool{} }

func (g *GlobalAvgPool) Forward(x *Batch, train bool) *Batch {
	out := NewBatch(x.N, x.C, 1, 1)
	spatial := x.H * x.W
	if train {
		g.in = x
	}
	for n := 0; n < x.N; n++ {
		for c := 0; c < x.C; c++ {
			base := (n*x.C + c) * spatial
			out.Data[n*x.C+c] = floats.Sum(x.Data[base:base+spatial]) / float64(spatial)
		}
	}
	return out
}

func (g *GlobalAvgPool) Backward(grad *Batch) *Batch {
	dx := NewBatch(g.in.N, g.in.C, g.in.H, g.in.W)
	spatial := g.in.H * g.in.W
	inv := 1 / float64(spatial)
	for n := 0; n < g.in.N; n++ {
		for c := 0; c < g.in.C; c++ {
			base := (n*g.in.C + c) * spatial
			gv := grad.Data[n*g.in.C+c] * inv
			for i := 0; i < spatial; i++ {
				dx.Data[base+i] = gv
			}
		}
	}
	return dx
}

func (g *GlobalAvgPool) Params() []*Param { return nil }

// Linear is a fully-connected layer over N x C x 1 x 1 batches. The matrix
// work runs on gonum dense matrices viewing the parameter slices.
type Linear struct {
	In  int
	Out int

	weight *Param // [out, in]
	bias   *Param // [out]

	input *Batch
}

func NewLinear(name string, in, out int, rng *rand.Rand) *Linear {
	l := &Linear{
		In:     in,
		Out:    out,
		weight: newParam(name+".weight", out, in),
		bias:   newParam(name+".bias", out),
	}
	std := math.Sqrt(2.0 / float64(out))
	for i := range l.weight.Data {
		l.weight.Data[i] = rng.NormFloat64() * std
	}
	return l
}

func (l *Linear) Forward(x *Batch, train bool) *Batch {
	if train {
		l.input = x
	}
	w := mat.NewDense(l.Out, l.In, l.weight.Data)
	xm := mat.NewDense(x.N, l.In, x.Data)

	out := NewBatch(x.N, l.Out, 1, 1)
	ym := mat.NewDense(x.N, l.Out, out.Data)
	ym.Mul(xm, w.T())
	for n := 0; n < x.N; n++ {
		floats.Add(out.Data[n*l.Out:(n+1)*l.Out], l.bias.Data)
	}
	return out
}

func (l *Linear) Backward(grad *Batch) *Batch {
	x := l.input
	w := mat.NewDense(l.Out, l.In, l.weight.Data)
	xm := mat.NewDense(x.N, l.In, x.Data)
	gm := mat.NewDense(x.N, l.Out, grad.Data)

	dw := mat.NewDense(l.Out, l.In, nil)
	dw.Mul(gm.T(), xm)
	floats.Add(l.weight.Grad, dw.RawMatrix().Data)

	for n := 0; n < x.N; n++ {
		floats.Add(l.bias.Grad, grad.Data[n*l.Out:(n+1)*l.Out])
	}

	dx := NewBatch(x.N, l.In, 1, 1)
	dxm := mat.NewDense(x.N, l.In, dx.Data)
	dxm.Mul(gm, w)
	return dx
}

func (l *Linear) Params() []*Param {
	return []*Param{l.weight, l.bias}
}

// Dropout zeroes activations with probability P during training and scales
// the survivors so eval mode is the identity.
type Dropout struct {
	P   float64
	rng *rand.Rand

	mask []float64
}

func NewDropout(p float64, rng *rand.Rand) *Dropout {
	return &Dropout{P: p, rng: rng}
}

func (d *Dropout) Forward(x *Batch, train bool) *Batch {
	if !train {
		return x
	}
	if d.P == 0 {
		d.mask = nil
		return x
	}
	out := NewBatch(x.N, x.C, x.H, x.W)
	d.mask = make([]float64, len(x.Data))
	keep := 1 / (1 - d.P)
	for i, v := range x.Data {
		if d.rng.Float64() >= d.P {
			d.mask[i] = keep
			out.Data[i] = v * keep
		}
	}
	return out
}

func (d *Dropout) Backward(grad *Batch) *Batch {
	if d.mask == nil {
		return grad
	}
	dx := NewBatch(grad.N, grad.C, grad.H, grad.W)
	for i, m := range d.mask {
		dx.Data[i] = grad.Data[i] * m
	}
	return dx
}

func (d *Dropout) Params() []*Param { return nil }
