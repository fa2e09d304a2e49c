package split

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/dataset"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
)

// ManifestName is the file written next to the split datasets.
const ManifestName = "manifest.json"

// ManifestFile describes one written split.
type ManifestFile struct {
	Split  string `json:"split"`
	Name   string `json:"name"`
	Rows   int    `json:"rows"`
	BLAKE3 string `json:"blake3"`
}

// Manifest records how a split directory was produced. It carries no
// timestamp so that identical runs produce identical manifests.
type Manifest struct {
	Suffix          string         `json:"suffix"`
	Seed            int64          `json:"seed"`
	Classes         []string       `json:"classes"`
	PacketsPerClass int            `json:"packets_per_class"`
	Width           int            `json:"width"`
	TestFraction    float64        `json:"test_fraction"`
	ValFraction     float64        `json:"val_fraction"`
	Files           []ManifestFile `json:"files"`
}

// File returns the manifest entry for the named split.
func (m *Manifest) File(name string) (ManifestFile, bool) {
	for _, f := range m.Files {
		if f.Split == name {
			return f, true
		}
	}
	return ManifestFile{}, false
}

// Paths resolves the file of every split in Names under dir. A manifest
// missing any of them is an error naming the split.
func (m *Manifest) Paths(dir string) (map[string]string, error) {
	paths := make(map[string]string, len(Names))
	for _, name := range Names {
		f, ok := m.File(name)
		if !ok {
			return nil, fmt.Errorf("manifest in '%s' has no %s split", dir, name)
		}
		paths[name] = filepath.Join(dir, f.Name)
	}
	return paths, nil
}

// BaseName returns the name of a split without extension, e.g. "train_6_5000".
func BaseName(split, suffix string) string {
	return split + "_" + suffix
}

// FileName returns the CSV name of a split, e.g. "train_6_5000.csv".
func FileName(split, suffix string) string {
	return BaseName(split, suffix) + ".csv"
}

// WriteDir writes the three splits and their manifest under root/<suffix>/.
// Existing files are overwritten.
func WriteDir(root string, r *Result) (*Manifest, error) {
	suffix := r.Options.Suffix()
	dir := filepath.Join(root, suffix)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create split directory: %w", err)
	}

	m := &Manifest{
		Suffix:          suffix,
		Seed:            r.Options.Seed,
		Classes:         r.Options.Classes,
		PacketsPerClass: r.Options.PacketsPerClass,
		Width:           r.Options.Width,
		TestFraction:    r.Options.TestFraction,
		ValFraction:     r.Options.ValFraction,
	}
	for _, name := range Names {
		file := FileName(name, suffix)
		path := filepath.Join(dir, file)
		if err := writeRows(path, r.Options.Width, r.Part(name)); err != nil {
			return nil, err
		}
		digest, err := Digest(path)
		if err != nil {
			return nil, err
		}
		m.Files = append(m.Files, ManifestFile{Split: name, Name: file, Rows: len(r.Part(name)), BLAKE3: digest})
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestName), append(data, '\n'), 0644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return m, nil
}

func writeRows(path string, width int, rows []model.FeatureRow) error {
	sink, err := dataset.NewCSVSink(path, width, true)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := sink.WriteRow(row); err != nil {
			sink.Abort()
			return err
		}
	}
	return sink.Close()
}

// Digest returns the hex BLAKE3 digest of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open '%s': %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash '%s': %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ReadManifest loads the manifest of a split directory.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}

// Verify checks every split file in dir against its manifest digest.
func Verify(dir string) (*Manifest, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	for _, f := range m.Files {
		got, err := Digest(filepath.Join(dir, f.Name))
		if err != nil {
			return nil, err
		}
		if got != f.BLAKE3 {
			return nil, fmt.Errorf("split file '%s' does not match its manifest digest", f.Name)
		}
	}
	return m, nil
}
