package preprocess

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gorgonia.org/tensor"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/config"
)

// Family selects the tensor layout produced for a model.
type Family int

const (
	// Flat yields (rows, width) features and one-hot labels.
	Flat Family = iota
	// Grid yields (rows, h, w, 1) features and one-hot labels.
	Grid
	// IntegerLabels yields (rows, width) features and integer label codes.
	IntegerLabels
)

func (f Family) String() string {
	switch f {
	case Flat:
		return "flat"
	case Grid:
		return "grid"
	case IntegerLabels:
		return "integer"
	}
	return fmt.Sprintf("family(%d)", int(f))
}

// ParseFamily accepts a family name or the model it serves.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flat", "mlp":
		return Flat, nil
	case "grid", "cnn":
		return Grid, nil
	case "integer", "svm":
		return IntegerLabels, nil
	}
	return 0, fmt.Errorf("unknown model family '%s'", s)
}

// ErrEmptyDataset is returned when there are no rows to preprocess.
var ErrEmptyDataset = errors.New("dataset has no rows")

// InvalidShapeError reports features that cannot take the requested shape.
type InvalidShapeError struct {
	NumBytes int
	Width    int
	Reason   string
}

func (e *InvalidShapeError) Error() string {
	return fmt.Sprintf("invalid shape (num_bytes=%d, width=%d): %s", e.NumBytes, e.Width, e.Reason)
}

// Options controls preprocessing.
type Options struct {
	Family Family
	// Mask zeroes the first MaskWidth bytes before anything else.
	Mask      bool
	MaskWidth int
	// NumBytes selects a window of that many bytes starting at Offset.
	// Zero keeps the full width.
	NumBytes int
	Offset   int
	// GridRows x GridCols is the grid used for full-width Grid tensors.
	GridRows int
	GridCols int
	OneHot   bool
}

// OptionsFromConfig returns the options configured for family.
func OptionsFromConfig(cfg *config.Config, family Family) Options {
	return Options{
		Family:    family,
		Mask:      cfg.Preprocess.Mask,
		MaskWidth: cfg.Pipeline.MaskWidth,
		NumBytes:  cfg.Preprocess.NumBytes,
		Offset:    cfg.Preprocess.WindowOffset,
		GridRows:  cfg.Preprocess.GridRows,
		GridCols:  cfg.Preprocess.GridCols,
		OneHot:    family != IntegerLabels,
	}
}

// Tensors is the (X, y) pair handed to a model.
type Tensors struct {
	// X holds float32 features scaled to [0, 1].
	X *tensor.Dense
	// Y holds float32 one-hot rows or int64 codes.
	Y          *tensor.Dense
	Vocabulary *Vocabulary
	Family     Family
}

// Rows returns the number of samples.
func (t *Tensors) Rows() int {
	return t.X.Shape()[0]
}

// window returns the [start, end) byte range selected by opts.
func (o Options) window(width int) (int, int, error) {
	if o.NumBytes <= 0 {
		return 0, width, nil
	}
	if o.Offset < 0 || o.Offset+o.NumBytes > width {
		return 0, 0, &InvalidShapeError{NumBytes: o.NumBytes, Width: width,
			Reason: fmt.Sprintf("window at offset %d exceeds the row width", o.Offset)}
	}
	return o.Offset, o.Offset + o.NumBytes, nil
}

// featureShape returns the per-row shape for n selected bytes.
func (o Options) featureShape(n, width int) ([]int, error) {
	if o.Family != Grid {
		return []int{n}, nil
	}
	if o.NumBytes > 0 {
		side := int(math.Sqrt(float64(n)))
		for side*side > n {
			side--
		}
		for (side+1)*(side+1) <= n {
			side++
		}
		if side*side != n {
			return nil, &InvalidShapeError{NumBytes: o.NumBytes, Width: width, Reason: "num_bytes is not a perfect square"}
		}
		return []int{side, side, 1}, nil
	}
	if o.GridRows*o.GridCols != n {
		return nil, &InvalidShapeError{NumBytes: n, Width: width,
			Reason: fmt.Sprintf("grid %dx%d does not hold %d bytes", o.GridRows, o.GridCols, n)}
	}
	return []int{o.GridRows, o.GridCols, 1}, nil
}

// Preprocess converts ds into tensors. ds itself is never modified. A nil
// vocab is built from ds alone.
func Preprocess(ds *Dataset, vocab *Vocabulary, opts Options) (*Tensors, error) {
	if ds.Len() == 0 {
		return nil, ErrEmptyDataset
	}
	start, end, err := opts.window(ds.Width)
	if err != nil {
		return nil, err
	}
	n := end - start
	shape, err := opts.featureShape(n, ds.Width)
	if err != nil {
		return nil, err
	}
	if vocab == nil {
		vocab = NewVocabulary(ds)
	}

	work := ds.Clone()
	if opts.Mask {
		MaskHeader(work, opts.MaskWidth)
	}

	rows := work.Len()
	backing := make([]float32, 0, rows*n)
	for _, f := range work.Features {
		for _, b := range f[start:end] {
			backing = append(backing, float32(b)/255)
		}
	}
	x := tensor.New(tensor.WithShape(append([]int{rows}, shape...)...), tensor.WithBacking(backing))

	y, err := encodeLabels(work.Labels, vocab, opts.OneHot && opts.Family != IntegerLabels)
	if err != nil {
		return nil, err
	}
	return &Tensors{X: x, Y: y, Vocabulary: vocab, Family: opts.Family}, nil
}

func encodeLabels(labels []string, vocab *Vocabulary, oneHot bool) (*tensor.Dense, error) {
	rows := len(labels)
	if oneHot {
		k := vocab.Len()
		backing := make([]float32, rows*k)
		for i, l := range labels {
			code, ok := vocab.Encode(l)
			if !ok {
				return nil, fmt.Errorf("label '%s' is not in the vocabulary", l)
			}
			backing[i*k+code] = 1
		}
		return tensor.New(tensor.WithShape(rows, k), tensor.WithBacking(backing)), nil
	}

	codes := make([]int64, rows)
	for i, l := range labels {
		code, ok := vocab.Encode(l)
		if !ok {
			return nil, fmt.Errorf("label '%s' is not in the vocabulary", l)
		}
		codes[i] = int64(code)
	}
	return tensor.New(tensor.WithShape(rows), tensor.WithBacking(codes)), nil
}

// SplitTensors holds the tensors of the three splits.
type SplitTensors struct {
	Train *Tensors
	Val   *Tensors
	Test  *Tensors
}

// PreprocessSplits preprocesses the three splits against one vocabulary built
// from all of them, so codes agree across splits.
func PreprocessSplits(train, val, test *Dataset, opts Options) (*SplitTensors, error) {
	vocab := NewVocabulary(train, val, test)
	out := &SplitTensors{}
	for _, p := range []struct {
		name string
		ds   *Dataset
		dst  **Tensors
	}{
		{"train", train, &out.Train},
		{"val", val, &out.Val},
		{"test", test, &out.Test},
	} {
		t, err := Preprocess(p.ds, vocab, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to preprocess %s split: %w", p.name, err)
		}
		*p.dst = t
	}
	return out, nil
}
