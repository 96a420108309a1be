// Package training drives the epoch loop: sequential gradient updates over
// the training partition, metric evaluation over the validation partition,
// and best-checkpoint selection.
package training

import (
	"context"
	"io"
	"math"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/2024aa05820/mlops-assignment2/internal/checkpoint"
	"github.com/2024aa05820/mlops-assignment2/internal/config"
	"github.com/2024aa05820/mlops-assignment2/internal/dataset"
	"github.com/2024aa05820/mlops-assignment2/internal/nn"
	"github.com/2024aa05820/mlops-assignment2/internal/tracking"
)

// Trainer owns the model parameters for the duration of a run; no other
// component reads or writes them while Run is in progress.
type Trainer struct {
	cfg     *config.TrainingConfig
	net     *nn.Network
	opt     *Adam
	train   *dataset.Loader
	val     *dataset.Loader
	tracker tracking.Tracker
	log     *zap.SugaredLogger
}

func New(cfg *config.TrainingConfig, net *nn.Network, train, val *dataset.Loader,
	tracker tracking.Tracker, log *zap.SugaredLogger) *Trainer {
	return &Trainer{
		cfg:     cfg,
		net:     net,
		opt:     NewAdam(net.Params(), cfg.LearningRate, cfg.WeightDecay),
		train:   train,
		val:     val,
		tracker: tracker,
		log:     log,
	}
}

// Run executes the configured number of epochs and returns the path of the
// best checkpoint. The best validation accuracy starts at -Inf, so the
// first epoch always persists a checkpoint; later epochs persist only on a
// strict improvement.
func (t *Trainer) Run(ctx context.Context) (string, error) {
	t.log.Infof("training %d parameters for %d epochs over %d samples (lr %g)",
		t.net.NumParams(), t.cfg.Epochs, t.train.Len(), t.cfg.LearningRate)
	t.tracker.LogParams(map[string]any{
		"epochs":        t.cfg.Epochs,
		"learning_rate": t.cfg.LearningRate,
		"weight_decay":  t.cfg.WeightDecay,
		"dropout":       t.cfg.Dropout,
		"seed":          t.cfg.Seed,
		"train_samples": t.train.Len(),
		"val_samples":   t.val.Len(),
	})

	bestAcc := math.Inf(-1)
	bestEpoch := 0
	sinceBest := 0
	bestPath := filepath.Join(t.cfg.CheckpointDir, checkpoint.BestName)

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		trainLoss, trainAcc, err := t.trainEpoch(ctx, epoch)
		if err != nil {
			return "", errors.Wrapf(err, "epoch %d train pass", epoch)
		}

		m, err := t.validate(ctx, epoch)
		if err != nil {
			return "", errors.Wrapf(err, "epoch %d validate pass", epoch)
		}
		m.Epoch = epoch
		m.TrainLoss = trainLoss
		m.TrainAcc = trainAcc

		t.log.Infof("epoch %d/%d: train loss %.4f acc %.4f | val loss %.4f acc %.4f p %.4f r %.4f f1 %.4f",
			epoch, t.cfg.Epochs, m.TrainLoss, m.TrainAcc, m.ValLoss, m.ValAcc,
			m.ValPrecision, m.ValRecall, m.ValF1)
		t.tracker.LogMetrics(epoch, m.asMap())

		if m.ValAcc > bestAcc {
			bestAcc = m.ValAcc
			bestEpoch = epoch
			sinceBest = 0

			ckpt := checkpoint.FromNetwork(t.net, epoch, m.ValAcc, m.ValLoss, dataset.Classes)
			epochPath := filepath.Join(t.cfg.CheckpointDir, checkpoint.EpochName(epoch))
			if err := checkpoint.Save(epochPath, ckpt); err != nil {
				return "", errors.Wrapf(err, "epoch %d checkpoint", epoch)
			}
			if err := checkpoint.Save(bestPath, ckpt); err != nil {
				return "", errors.Wrapf(err, "epoch %d best checkpoint", epoch)
			}
			t.log.Infof("new best checkpoint at epoch %d (val acc %.4f)", epoch, m.ValAcc)
		} else {
			sinceBest++
			if t.cfg.EarlyStopPatience > 0 && sinceBest >= t.cfg.EarlyStopPatience {
				t.log.Infof("early stop after %d epochs without improvement", sinceBest)
				break
			}
		}
	}

	t.log.Infof("training complete: best val acc %.4f at epoch %d", bestAcc, bestEpoch)
	t.tracker.LogMetrics(bestEpoch, map[string]float64{
		"best_val_accuracy": bestAcc,
		"best_epoch":        float64(bestEpoch),
	})
	t.tracker.LogArtifact(bestPath)
	return bestPath, nil
}

// trainEpoch runs one pass of sequential gradient updates. A batch
// computation error aborts the epoch; it is never skipped, which would
// silently corrupt the running metrics.
func (t *Trainer) trainEpoch(ctx context.Context, epoch int) (float64, float64, error) {
	it := t.train.Epoch(epoch)
	defer it.Close()

	lossSum := 0.0
	batches := 0
	correct := 0
	seen := 0
	for {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}

		batch, labels, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, 0, err
		}

		logits := t.net.Forward(batch, true)
		loss, grad, err := nn.CrossEntropy(logits, labels)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "batch %d", batches)
		}

		t.net.ZeroGrad()
		t.net.Backward(grad)
		t.opt.Step()

		lossSum += loss
		batches++
		for n := 0; n < logits.N; n++ {
			pred := nn.Argmax(logits.Data[n*logits.C : (n+1)*logits.C])
			if pred == labels[n] {
				correct++
			}
			seen++
		}
	}

	if batches == 0 {
		return 0, 0, errors.New("training partition produced no batches")
	}
	return lossSum / float64(batches), float64(correct) / float64(seen), nil
}

// validate runs the validation partition with dropout disabled and no
// gradient computation, tallying the binary metrics with dog as the
// positive class.
func (t *Trainer) validate(ctx context.Context, epoch int) (EpochMetrics, error) {
	it := t.val.Epoch(epoch)
	defer it.Close()

	counts := BinaryCounts{Positive: dataset.LabelDog}
	lossSum := 0.0
	batches := 0
	for {
		if err := ctx.Err(); err != nil {
			return EpochMetrics{}, err
		}

		batch, labels, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return EpochMetrics{}, err
		}

		logits := t.net.Forward(batch, false)
		loss, _, err := nn.CrossEntropy(logits, labels)
		if err != nil {
			return EpochMetrics{}, errors.Wrapf(err, "batch %d", batches)
		}
		lossSum += loss
		batches++

		for n := 0; n < logits.N; n++ {
			pred := nn.Argmax(logits.Data[n*logits.C : (n+1)*logits.C])
			counts.Add(pred, labels[n])
		}
	}

	if batches == 0 {
		return EpochMetrics{}, errors.New("validation partition produced no batches")
	}
	return EpochMetrics{
		ValLoss:      lossSum / float64(batches),
		ValAcc:       counts.Accuracy(),
		ValPrecision: counts.Precision(),
		ValRecall:    counts.Recall(),
		ValF1:        counts.F1(),
	}, nil
}
