// Package checkpoint persists model snapshots: one gob file per checkpoint
// holding the parameter tensors keyed by layer plus the validation metrics
// that justified saving it.
package checkpoint

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/2024aa05820/mlops-assignment2/internal/nn"
)

// FormatVersion is bumped on any incompatible layout change.
const FormatVersion = 1

// BestName is the conventional file the serving layer loads at startup.
const BestName = "best.ckpt"

// ErrIncompatible marks a checkpoint that is readable but does not match
// the fixed model topology.
var ErrIncompatible = errors.New("checkpoint incompatible with model topology")

// Checkpoint is an immutable snapshot of model parameters and the metrics
// that produced it.
type Checkpoint struct {
	Version     int
	Epoch       int
	ValAccuracy float64
	ValLoss     float64
	CreatedAt   time.Time
	Classes     []string
	Tensors     map[string]nn.Variable
}

// EpochName returns the per-epoch file name. Superseded checkpoints keep
// their files; only BestName is rewritten.
func EpochName(epoch int) string {
	return fmt.Sprintf("epoch_%03d.ckpt", epoch)
}

// Save writes the checkpoint via a temp file and rename so readers never
// observe a partial file.
func Save(path string, ckpt *Checkpoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create checkpoint dir for %s", path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ckpt-*")
	if err != nil {
		return errors.Wrap(err, "create temp checkpoint")
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(ckpt); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "encode checkpoint %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close checkpoint %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "rename checkpoint into %s", path)
	}
	return nil
}

// Load reads a checkpoint file. A missing or unreadable file is a plain
// error; a readable file with the wrong version is ErrIncompatible.
func Load(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open checkpoint %s", path)
	}
	defer f.Close()

	var ckpt Checkpoint
	if err := gob.NewDecoder(f).Decode(&ckpt); err != nil {
		return nil, errors.Wrapf(err, "decode checkpoint %s", path)
	}
	if ckpt.Version != FormatVersion {
		return nil, errors.Wrapf(ErrIncompatible, "format version %d, want %d", ckpt.Version, FormatVersion)
	}
	return &ckpt, nil
}

// FromNetwork snapshots the network state together with the metrics of the
// epoch that produced it.
func FromNetwork(net *nn.Network, epoch int, valAccuracy, valLoss float64, classes []string) *Checkpoint {
	return &Checkpoint{
		Version:     FormatVersion,
		Epoch:       epoch,
		ValAccuracy: valAccuracy,
		ValLoss:     valLoss,
		CreatedAt:   time.Now().UTC(),
		Classes:     append([]string(nil), classes...),
		Tensors:     net.StateDict(),
	}
}

// Apply loads the checkpoint tensors into the network, validating every
// expected tensor by name and shape before any state changes hands.
func (c *Checkpoint) Apply(net *nn.Network) error {
	if err := net.LoadStateDict(c.Tensors); err != nil {
		return errors.Wrap(ErrIncompatible, err.Error())
	}
	return nil
}
