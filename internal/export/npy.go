// Package export writes preprocessed tensors in NumPy's .npy format.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/preprocess"
)

// Sidecar describes an exported tensor pair. The .npy features are always
// 2-D; XShape carries the logical shape to reshape them to.
type Sidecar struct {
	Name   string   `json:"name"`
	Family string   `json:"family"`
	XShape []int    `json:"x_shape"`
	YShape []int    `json:"y_shape"`
	Labels []string `json:"labels"`
}

// XFile, YFile and SidecarFile name the files written for a tensor pair.
func XFile(name string) string       { return "X_" + name + ".npy" }
func YFile(name string) string       { return "y_" + name + ".npy" }
func SidecarFile(name string) string { return name + ".json" }

// FeatureMatrix flattens the features into a rows x features matrix.
func FeatureMatrix(t *preprocess.Tensors) (*mat.Dense, error) {
	shape := t.X.Shape()
	rows := shape[0]
	cols := 1
	for _, d := range shape[1:] {
		cols *= d
	}
	data, ok := t.X.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("unexpected feature type %T", t.X.Data())
	}
	backing := make([]float64, len(data))
	for i, v := range data {
		backing[i] = float64(v)
	}
	return mat.NewDense(rows, cols, backing), nil
}

// WriteX writes the features as a 2-D float64 array.
func WriteX(w io.Writer, t *preprocess.Tensors) error {
	m, err := FeatureMatrix(t)
	if err != nil {
		return err
	}
	return npyio.Write(w, m)
}

// WriteY writes one-hot labels as a 2-D float64 array and integer codes as
// a 1-D int64 array.
func WriteY(w io.Writer, t *preprocess.Tensors) error {
	switch data := t.Y.Data().(type) {
	case []int64:
		return npyio.Write(w, data)
	case []float32:
		shape := t.Y.Shape()
		backing := make([]float64, len(data))
		for i, v := range data {
			backing[i] = float64(v)
		}
		return npyio.Write(w, mat.NewDense(shape[0], shape[1], backing))
	default:
		return fmt.Errorf("unexpected label type %T", data)
	}
}

// NewSidecar describes t under name.
func NewSidecar(name string, t *preprocess.Tensors) *Sidecar {
	return &Sidecar{
		Name:   name,
		Family: t.Family.String(),
		XShape: append([]int(nil), t.X.Shape()...),
		YShape: append([]int(nil), t.Y.Shape()...),
		Labels: t.Vocabulary.Labels(),
	}
}

// WriteNPY writes X_<name>.npy, y_<name>.npy and <name>.json into dir.
func WriteNPY(dir, name string, t *preprocess.Tensors) (*Sidecar, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := writeFile(filepath.Join(dir, XFile(name)), func(w io.Writer) error { return WriteX(w, t) }); err != nil {
		return nil, err
	}
	if err := writeFile(filepath.Join(dir, YFile(name)), func(w io.Writer) error { return WriteY(w, t) }); err != nil {
		return nil, err
	}

	sidecar := NewSidecar(name, t)
	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode sidecar: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SidecarFile(name)), append(data, '\n'), 0644); err != nil {
		return nil, fmt.Errorf("failed to write sidecar: %w", err)
	}
	return sidecar, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create '%s': %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write '%s': %w", path, err)
	}
	return f.Close()
}
