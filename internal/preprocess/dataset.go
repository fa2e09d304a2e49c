// Package preprocess turns split datasets into normalised tensors.
package preprocess

import (
	"sort"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/dataset"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
)

// Dataset is a dense, fixed-width view of feature rows.
type Dataset struct {
	Labels   []string
	Features [][]uint8
	Width    int
}

// NewDataset copies rows into a dataset of the given width. Short rows are
// zero-filled and long rows truncated.
func NewDataset(rows []model.FeatureRow, width int) *Dataset {
	d := &Dataset{
		Labels:   make([]string, len(rows)),
		Features: make([][]uint8, len(rows)),
		Width:    width,
	}
	for i, row := range rows {
		d.Labels[i] = row.Label
		d.Features[i] = make([]uint8, width)
		copy(d.Features[i], row.Bytes)
	}
	return d
}

// LoadDataset reads a CSV dataset at its declared width.
func LoadDataset(path string) (*Dataset, error) {
	rows, width, err := dataset.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewDataset(rows, width), nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Labels)
}

// Clone returns a deep copy of d.
func (d *Dataset) Clone() *Dataset {
	c := &Dataset{
		Labels:   append([]string(nil), d.Labels...),
		Features: make([][]uint8, len(d.Features)),
		Width:    d.Width,
	}
	for i, f := range d.Features {
		c.Features[i] = append([]uint8(nil), f...)
	}
	return c
}

// MaskHeader zeroes the first width byte columns of every row in place.
// Applying it more than once has no further effect.
func MaskHeader(d *Dataset, width int) {
	if width > d.Width {
		width = d.Width
	}
	for _, f := range d.Features {
		for i := 0; i < width; i++ {
			f[i] = 0
		}
	}
}

// Vocabulary maps labels to stable integer codes in alphabetical order.
type Vocabulary struct {
	labels []string
	index  map[string]int
}

// NewVocabulary builds the vocabulary of the union of labels in sets.
func NewVocabulary(sets ...*Dataset) *Vocabulary {
	seen := make(map[string]struct{})
	for _, d := range sets {
		if d == nil {
			continue
		}
		for _, l := range d.Labels {
			seen[l] = struct{}{}
		}
	}
	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	return VocabularyOf(labels)
}

// VocabularyOf builds a vocabulary from an explicit label list.
func VocabularyOf(labels []string) *Vocabulary {
	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)
	v := &Vocabulary{index: make(map[string]int, len(sorted))}
	for _, l := range sorted {
		if _, dup := v.index[l]; dup {
			continue
		}
		v.index[l] = len(v.labels)
		v.labels = append(v.labels, l)
	}
	return v
}

// Encode returns the code of label.
func (v *Vocabulary) Encode(label string) (int, bool) {
	code, ok := v.index[label]
	return code, ok
}

// Labels returns the labels in code order.
func (v *Vocabulary) Labels() []string {
	return append([]string(nil), v.labels...)
}

// Len returns the number of labels.
func (v *Vocabulary) Len() int {
	return len(v.labels)
}
