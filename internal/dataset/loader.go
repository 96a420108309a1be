package dataset

import (
	"io"
	"math/rand"
	"os"

	"github.com/pkg/errors"

	"github.com/2024aa05820/mlops-assignment2/internal/nn"
	"github.com/2024aa05820/mlops-assignment2/internal/pipeline"
)

// Loader yields batches of (tensor stack, label vector) over one partition.
// It is restartable: every Epoch call re-reads and re-transforms the images,
// so training augmentation differs between epochs while the validation
// transform stays deterministic.
type Loader struct {
	samples   []Sample
	batchSize int
	augment   bool
	seed      int64
}

// NewLoader builds a loader over a partition. With augment=true the sample
// order is reshuffled per epoch and the training transform is applied;
// otherwise order and transform are deterministic.
func NewLoader(samples []Sample, batchSize int, augment bool, seed int64) (*Loader, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", batchSize)
	}
	return &Loader{
		samples:   append([]Sample(nil), samples...),
		batchSize: batchSize,
		augment:   augment,
		seed:      seed,
	}, nil
}

// Len returns the number of samples in the partition.
func (l *Loader) Len() int { return len(l.samples) }

// Epoch starts one pass. Batches arrive strictly in order; one batch is
// prepared ahead of the consumer, which overlaps image decoding with the
// current batch's compute without ever reordering.
func (l *Loader) Epoch(epoch int) *BatchIter {
	order := append([]Sample(nil), l.samples...)
	rng := rand.New(rand.NewSource(l.seed + int64(epoch)))
	if l.augment {
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	var transform pipeline.Transform
	if l.augment {
		transform = pipeline.Train(rng)
	} else {
		transform = pipeline.Eval()
	}

	it := &BatchIter{
		ch:   make(chan batchResult, 1),
		done: make(chan struct{}),
	}
	go it.produce(order, l.batchSize, transform)
	return it
}

type batchResult struct {
	batch  *nn.Batch
	labels []int
	err    error
}

// BatchIter is a lazy, order-preserving batch sequence.
type BatchIter struct {
	ch   chan batchResult
	done chan struct{}
}

func (it *BatchIter) produce(order []Sample, batchSize int, transform pipeline.Transform) {
	defer close(it.ch)
	for start := 0; start < len(order); start += batchSize {
		end := start + batchSize
		if end > len(order) {
			// The final batch may be short; it is still emitted.
			end = len(order)
		}

		tensors := make([]*nn.Tensor, 0, end-start)
		labels := make([]int, 0, end-start)
		for _, s := range order[start:end] {
			data, err := os.ReadFile(s.Path)
			if err != nil {
				it.send(batchResult{err: errors.Wrapf(err, "read sample %s", s.Path)})
				return
			}
			img, err := pipeline.Decode(data)
			if err != nil {
				it.send(batchResult{err: errors.Wrapf(err, "sample %s", s.Path)})
				return
			}
			tensors = append(tensors, transform.Apply(img))
			labels = append(labels, s.Label)
		}

		batch, err := nn.Stack(tensors)
		if err != nil {
			it.send(batchResult{err: err})
			return
		}
		if !it.send(batchResult{batch: batch, labels: labels}) {
			return
		}
	}
}

func (it *BatchIter) send(r batchResult) bool {
	select {
	case it.ch <- r:
		return true
	case <-it.done:
		return false
	}
}

// Next returns the next batch, io.EOF when the partition is fully consumed,
// or the first load error.
func (it *BatchIter) Next() (*nn.Batch, []int, error) {
	r, ok := <-it.ch
	if !ok {
		return nil, nil, io.EOF
	}
	if r.err != nil {
		return nil, nil, r.err
	}
	return r.batch, r.labels, nil
}

// Close stops the producer; required only when abandoning an epoch early.
func (it *BatchIter) Close() {
	select {
	case <-it.done:
	default:
		close(it.done)
	}
}
