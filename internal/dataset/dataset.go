// Package dataset enumerates a directory tree of labeled images into
// reproducible train/val/test splits and batches them through the image
// pipeline.
package dataset

import (
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Classes is the explicit label set, resolved at construction. Label index
// is the position in this slice; dog (1) is the positive class for the
// binary metrics.
var Classes = []string{"cat", "dog"}

const (
	LabelCat = 0
	LabelDog = 1
)

// ClassName maps a label index to its name.
func ClassName(label int) string {
	if label < 0 || label >= len(Classes) {
		return "unknown"
	}
	return Classes[label]
}

var imageSuffixes = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Sample is one labeled image reference. Immutable once constructed.
type Sample struct {
	Path  string
	Label int
}

// Split partitions the samples. No sample appears in more than one
// partition, and the partition is a pure function of the directory contents
// and the seed.
type Split struct {
	Train []Sample
	Val   []Sample
	Test  []Sample
}

// New builds a Split from root. Two layouts are accepted: a pre-split root
// containing train/ val/ (and optionally test/) directories of class
// subdirectories, or a flat root of class subdirectories which is
// partitioned deterministically from seed by the given ratios.
func New(root string, seed int64, trainRatio, valRatio float64) (*Split, error) {
	if info, err := os.Stat(filepath.Join(root, "train")); err == nil && info.IsDir() {
		return newPreSplit(root)
	}

	samples, err := scanClassRoot(root)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, errors.Errorf("no image files under %s", root)
	}

	// Sorted enumeration plus a seeded shuffle keeps the partition a
	// function of (directory contents, seed) only.
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(samples), func(i, j int) {
		samples[i], samples[j] = samples[j], samples[i]
	})

	nTrain := int(float64(len(samples)) * trainRatio)
	nVal := int(float64(len(samples)) * valRatio)
	return &Split{
		Train: samples[:nTrain],
		Val:   samples[nTrain : nTrain+nVal],
		Test:  samples[nTrain+nVal:],
	}, nil
}

func newPreSplit(root string) (*Split, error) {
	train, err := scanClassRoot(filepath.Join(root, "train"))
	if err != nil {
		return nil, err
	}
	val, err := scanClassRoot(filepath.Join(root, "val"))
	if err != nil {
		return nil, err
	}

	var test []Sample
	if info, err := os.Stat(filepath.Join(root, "test")); err == nil && info.IsDir() {
		test, err = scanClassRoot(filepath.Join(root, "test"))
		if err != nil {
			return nil, err
		}
	}

	if len(train) == 0 || len(val) == 0 {
		return nil, errors.Errorf("pre-split root %s has empty train or val partition", root)
	}
	return &Split{Train: train, Val: val, Test: test}, nil
}

// scanClassRoot enumerates dir, which must contain exactly the known class
// subdirectories. An unexpected subdirectory is an error rather than a
// silently ignored or mislabeled class.
func scanClassRoot(dir string) ([]Sample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read dataset dir %s", dir)
	}

	index := make(map[string]int, len(Classes))
	for i, name := range Classes {
		index[name] = i
		index[name+"s"] = i // cats/ and dogs/ are accepted aliases
	}

	var samples []Sample
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if entry.Name() == "train" || entry.Name() == "val" || entry.Name() == "test" {
			return nil, errors.Errorf("nested split directory %s under %s", entry.Name(), dir)
		}
		label, ok := index[strings.ToLower(entry.Name())]
		if !ok {
			return nil, errors.Errorf("unexpected class directory %q under %s (known classes: %v)",
				entry.Name(), dir, Classes)
		}

		classDir := filepath.Join(dir, entry.Name())
		files, err := os.ReadDir(classDir)
		if err != nil {
			return nil, errors.Wrapf(err, "read class dir %s", classDir)
		}
		for _, f := range files {
			if f.IsDir() || !imageSuffixes[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			samples = append(samples, Sample{
				Path:  filepath.Join(classDir, f.Name()),
				Label: label,
			})
		}
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].Path < samples[j].Path })
	return samples, nil
}

// Cap returns at most n samples from each partition, in partition order.
// Zero means no cap.
func (s *Split) Cap(n int) *Split {
	if n <= 0 {
		return s
	}
	capped := func(in []Sample) []Sample {
		if len(in) > n {
			return in[:n]
		}
		return in
	}
	return &Split{Train: capped(s.Train), Val: capped(s.Val), Test: capped(s.Test)}
}

// Counts returns the per-class sample count of a partition.
func Counts(samples []Sample) map[string]int {
	counts := make(map[string]int, len(Classes))
	for _, s := range samples {
		counts[ClassName(s.Label)]++
	}
	return counts
}
