// Package split builds class-balanced train/val/test datasets.
package split

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/config"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/dataset"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
)

// Split names.
const (
	Train = "train"
	Val   = "val"
	Test  = "test"
)

// Names lists the splits in file order.
var Names = []string{Train, Val, Test}

// InsufficientSamplesError reports a class with fewer rows than requested.
type InsufficientSamplesError struct {
	Label string
	Have  int
	Want  int
}

func (e *InsufficientSamplesError) Error() string {
	return fmt.Sprintf("class '%s' has %d rows, %d requested", e.Label, e.Have, e.Want)
}

// Options controls sampling and partitioning.
type Options struct {
	Classes         []string
	PacketsPerClass int
	// Width is the number of byte columns every output row is zero-filled to.
	Width        int
	Seed         int64
	TestFraction float64
	ValFraction  float64
}

// OptionsFromConfig collects the split options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Classes:         cfg.Split.Classes,
		PacketsPerClass: cfg.Split.PacketsPerClass,
		Width:           cfg.Pipeline.FeatureWidth,
		Seed:            cfg.Pipeline.SplitSeed,
		TestFraction:    cfg.Pipeline.TestFraction,
		ValFraction:     cfg.Pipeline.ValFraction,
	}
}

// Suffix returns the "{classes}_{packets_per_class}" tag of the split files.
func (o Options) Suffix() string {
	return fmt.Sprintf("%d_%d", len(o.Classes), o.PacketsPerClass)
}

func (o Options) validate() error {
	if len(o.Classes) == 0 {
		return fmt.Errorf("no classes selected")
	}
	seen := make(map[string]bool, len(o.Classes))
	for _, c := range o.Classes {
		if seen[c] {
			return fmt.Errorf("class '%s' listed twice", c)
		}
		seen[c] = true
	}
	if o.PacketsPerClass <= 0 {
		return fmt.Errorf("packets per class must be positive, got %d", o.PacketsPerClass)
	}
	if o.Width <= 0 {
		return fmt.Errorf("width must be positive, got %d", o.Width)
	}
	for _, f := range []float64{o.TestFraction, o.ValFraction} {
		if f <= 0 || f >= 1 {
			return fmt.Errorf("holdout fraction %v outside (0, 1)", f)
		}
	}
	return nil
}

// Result holds the three partitions.
type Result struct {
	Options Options
	Train   []model.FeatureRow
	Val     []model.FeatureRow
	Test    []model.FeatureRow
}

// Part returns the rows of the named split.
func (r *Result) Part(name string) []model.FeatureRow {
	switch name {
	case Train:
		return r.Train
	case Val:
		return r.Val
	case Test:
		return r.Test
	}
	return nil
}

// Len returns the total number of rows across the three splits.
func (r *Result) Len() int {
	return len(r.Train) + len(r.Val) + len(r.Test)
}

// Split samples PacketsPerClass rows from every class, zero-fills them to
// Width and partitions them into test, then val, then train. Identical input
// and options always give identical output.
func Split(rows []model.FeatureRow, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	byClass := make(map[string][]int, len(opts.Classes))
	for _, c := range opts.Classes {
		byClass[c] = nil
	}
	for i, row := range rows {
		if idx, ok := byClass[row.Label]; ok {
			byClass[row.Label] = append(idx, i)
		}
	}

	sampled := make([]model.FeatureRow, 0, len(opts.Classes)*opts.PacketsPerClass)
	for _, c := range opts.Classes {
		idx := byClass[c]
		if len(idx) < opts.PacketsPerClass {
			return nil, &InsufficientSamplesError{Label: c, Have: len(idx), Want: opts.PacketsPerClass}
		}
		for _, i := range sample(idx, opts.PacketsPerClass, opts.Seed) {
			sampled = append(sampled, zeroFill(rows[i], opts.Width))
		}
	}

	rest, test := holdout(sampled, opts.TestFraction, opts.Seed)
	train, val := holdout(rest, opts.ValFraction, opts.Seed)
	return &Result{Options: opts, Train: train, Val: val, Test: test}, nil
}

// sample draws k of idx uniformly without replacement using a partial
// Fisher-Yates shuffle. idx is not modified.
func sample(idx []int, k int, seed int64) []int {
	pool := append([]int(nil), idx...)
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < k; i++ {
		j := i + rng.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}

// holdout splits rows into (kept, held) with ceil(frac*n) held rows.
func holdout(rows []model.FeatureRow, frac float64, seed int64) ([]model.FeatureRow, []model.FeatureRow) {
	n := len(rows)
	nHeld := int(math.Ceil(frac * float64(n)))
	if nHeld > n {
		nHeld = n
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)

	held := make([]model.FeatureRow, 0, nHeld)
	kept := make([]model.FeatureRow, 0, n-nHeld)
	for i, p := range perm {
		if i < nHeld {
			held = append(held, rows[p])
		} else {
			kept = append(kept, rows[p])
		}
	}
	return kept, held
}

func zeroFill(row model.FeatureRow, width int) model.FeatureRow {
	out := make([]byte, width)
	copy(out, row.Bytes)
	return model.FeatureRow{Label: row.Label, Bytes: out}
}

// SplitFile streams the dataset at path, keeping only the selected classes,
// and splits it. A zero Width takes the dataset's width.
func SplitFile(path string, opts Options) (*Result, error) {
	wanted := make(map[string]bool, len(opts.Classes))
	for _, c := range opts.Classes {
		wanted[c] = true
	}

	var rows []model.FeatureRow
	err := dataset.Scan(path, func(width int, row model.FeatureRow) error {
		if opts.Width == 0 {
			opts.Width = width
		}
		if wanted[row.Label] {
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return Split(rows, opts)
}
