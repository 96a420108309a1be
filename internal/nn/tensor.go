package nn

import "github.com/pkg/errors"

// Tensor is a single CHW image tensor.
type Tensor struct {
	Data []float64
	C    int
	H    int
	W    int
}

func NewTensor(c, h, w int) *Tensor {
	return &Tensor{
		Data: make([]float64, c*h*w),
		C:    c,
		H:    h,
		W:    w,
	}
}

func (t *Tensor) At(c, y, x int) float64 {
	return t.Data[(c*t.H+y)*t.W+x]
}

func (t *Tensor) Set(c, y, x int, v float64) {
	t.Data[(c*t.H+y)*t.W+x] = v
}

// Batch is an NCHW stack of tensors. Fully-connected stages keep using
// Batch with H = W = 1 so layers share one data type.
type Batch struct {
	Data []float64
	N    int
	C    int
	H    int
	W    int
}

func NewBatch(n, c, h, w int) *Batch {
	return &Batch{
		Data: make([]float64, n*c*h*w),
		N:    n,
		C:    c,
		H:    h,
		W:    w,
	}
}

func (b *Batch) At(n, c, y, x int) float64 {
	return b.Data[((n*b.C+c)*b.H+y)*b.W+x]
}

func (b *Batch) Set(n, c, y, x int, v float64) {
	b.Data[((n*b.C+c)*b.H+y)*b.W+x] = v
}

// Stack copies same-shaped tensors into one batch.
func Stack(tensors []*Tensor) (*Batch, error) {
	if len(tensors) == 0 {
		return nil, errors.New("cannot stack an empty tensor list")
	}

	first := tensors[0]
	batch := NewBatch(len(tensors), first.C, first.H, first.W)
	stride := first.C * first.H * first.W
	for i, t := range tensors {
		if t.C != first.C || t.H != first.H || t.W != first.W {
			return nil, errors.Errorf("tensor %d has shape %dx%dx%d, want %dx%dx%d",
				i, t.C, t.H, t.W, first.C, first.H, first.W)
		}
		copy(batch.Data[i*stride:(i+1)*stride], t.Data)
	}
	return batch, nil
}

// Param is one learnable parameter tensor with its accumulated gradient.
type Param struct {
	Name  string
	Shape []int
	Data  []float64
	Grad  []float64
}

func newParam(name string, shape ...int) *Param {
	size := 1
	for _, s := range shape {
		size *= s
	}
	return &Param{
		Name:  name,
		Shape: shape,
		Data:  make([]float64, size),
		Grad:  make([]float64, size),
	}
}

// Variable is a named tensor as persisted in a checkpoint. It covers both
// learnable parameters and batch-norm running statistics.
type Variable struct {
	Shape []int
	Data  []float64
}
