package split

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/dataset"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
)

func syntheticRows(perClass map[string]int) []model.FeatureRow {
	var rows []model.FeatureRow
	// Interleave classes the way an extraction run does.
	for i := 0; ; i++ {
		added := false
		for _, label := range []string{"Amazon", "Google", "YouTube", "HTTP"} {
			if i < perClass[label] {
				rows = append(rows, model.FeatureRow{Label: label, Bytes: []byte{byte(i), byte(i >> 8), 7}})
				added = true
			}
		}
		if !added {
			return rows
		}
	}
}

func testOptions() Options {
	return Options{
		Classes:         []string{"Amazon", "Google", "YouTube"},
		PacketsPerClass: 50,
		Width:           6,
		Seed:            42,
		TestFraction:    0.2,
		ValFraction:     0.2,
	}
}

func TestSplit_CountsAndBalance(t *testing.T) {
	rows := syntheticRows(map[string]int{"Amazon": 80, "Google": 50, "YouTube": 120, "HTTP": 200})
	opts := testOptions()

	r, err := Split(rows, opts)
	require.NoError(t, err)

	// 150 rows: 30 test, then 24 of the remaining 120 for val.
	assert.Equal(t, 150, r.Len())
	assert.Len(t, r.Test, 30)
	assert.Len(t, r.Val, 24)
	assert.Len(t, r.Train, 96)

	perClass := map[string]int{}
	for _, name := range Names {
		for _, row := range r.Part(name) {
			perClass[row.Label]++
			assert.Len(t, row.Bytes, opts.Width, "rows are zero-filled to the width")
			assert.Equal(t, []byte{0, 0, 0}, row.Bytes[3:])
		}
	}
	assert.Equal(t, map[string]int{"Amazon": 50, "Google": 50, "YouTube": 50}, perClass)
}

func TestSplit_SamplesWithoutReplacement(t *testing.T) {
	rows := syntheticRows(map[string]int{"Amazon": 60, "Google": 60, "YouTube": 60})

	r, err := Split(rows, testOptions())
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, name := range Names {
		for _, row := range r.Part(name) {
			key := row.Label + string(row.Bytes)
			assert.False(t, seen[key], "row drawn twice")
			seen[key] = true
		}
	}
}

func TestSplit_DoesNotMutateInput(t *testing.T) {
	rows := syntheticRows(map[string]int{"Amazon": 50, "Google": 50, "YouTube": 50})
	before := append([]model.FeatureRow(nil), rows...)

	_, err := Split(rows, testOptions())
	require.NoError(t, err)
	assert.Equal(t, before, rows)
}

func TestSplit_InsufficientSamples(t *testing.T) {
	rows := syntheticRows(map[string]int{"Amazon": 50, "Google": 40, "YouTube": 50})

	_, err := Split(rows, testOptions())

	var insufficient *InsufficientSamplesError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, "Google", insufficient.Label)
	assert.Equal(t, 40, insufficient.Have)
	assert.Equal(t, 50, insufficient.Want)
}

func TestSplit_InsufficientSamplesAtScale(t *testing.T) {
	rows := syntheticRows(map[string]int{"Amazon": 4000})
	opts := testOptions()
	opts.Classes = []string{"Amazon"}
	opts.PacketsPerClass = 5000

	_, err := Split(rows, opts)

	var insufficient *InsufficientSamplesError
	assert.True(t, errors.As(err, &insufficient))
}

func TestSplit_RejectsBadOptions(t *testing.T) {
	rows := syntheticRows(map[string]int{"Amazon": 50})
	for _, mutate := range []func(*Options){
		func(o *Options) { o.Classes = nil },
		func(o *Options) { o.Classes = []string{"Amazon", "Amazon"} },
		func(o *Options) { o.PacketsPerClass = 0 },
		func(o *Options) { o.TestFraction = 1 },
		func(o *Options) { o.Width = 0 },
	} {
		opts := testOptions()
		mutate(&opts)
		_, err := Split(rows, opts)
		assert.Error(t, err)
	}
}

func TestWriteDir_IsDeterministic(t *testing.T) {
	// 1. Write the source dataset once.
	src := filepath.Join(t.TempDir(), "data.csv")
	sink, err := dataset.NewCSVSink(src, 6, false)
	require.NoError(t, err)
	for _, row := range syntheticRows(map[string]int{"Amazon": 70, "Google": 90, "YouTube": 55, "HTTP": 30}) {
		require.NoError(t, sink.WriteRow(row))
	}
	require.NoError(t, sink.Close())

	// 2. Split it twice into separate roots.
	opts := testOptions()
	var roots []string
	for i := 0; i < 2; i++ {
		root := t.TempDir()
		r, err := SplitFile(src, opts)
		require.NoError(t, err)
		m, err := WriteDir(root, r)
		require.NoError(t, err)
		assert.Equal(t, "3_50", m.Suffix)
		roots = append(roots, root)
	}

	// 3. Every file, manifest included, must be byte-identical.
	for _, name := range []string{FileName(Train, "3_50"), FileName(Val, "3_50"), FileName(Test, "3_50"), ManifestName} {
		a, err := os.ReadFile(filepath.Join(roots[0], "3_50", name))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(roots[1], "3_50", name))
		require.NoError(t, err)
		assert.Equal(t, a, b, name)
	}

	// 4. The manifest verifies and the row counts add up.
	m, err := Verify(filepath.Join(roots[0], "3_50"))
	require.NoError(t, err)
	total := 0
	for _, f := range m.Files {
		total += f.Rows
	}
	assert.Equal(t, 150, total)

	rows, width, err := dataset.ReadFile(filepath.Join(roots[0], "3_50", FileName(Test, "3_50")))
	require.NoError(t, err)
	assert.Equal(t, 6, width)
	assert.Len(t, rows, 30)
}

func TestVerify_DetectsTampering(t *testing.T) {
	rows := syntheticRows(map[string]int{"Amazon": 50, "Google": 50, "YouTube": 50})
	r, err := Split(rows, testOptions())
	require.NoError(t, err)

	root := t.TempDir()
	_, err = WriteDir(root, r)
	require.NoError(t, err)

	dir := filepath.Join(root, "3_50")
	f, err := os.OpenFile(filepath.Join(dir, FileName(Val, "3_50")), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("Amazon,1,2,3,4,5,6\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Verify(dir)
	assert.ErrorContains(t, err, "manifest digest")
}

func TestManifest_Paths(t *testing.T) {
	m := &Manifest{Files: []ManifestFile{
		{Split: Train, Name: "train_2_10.csv"},
		{Split: Val, Name: "val_2_10.csv"},
		{Split: Test, Name: "test_2_10.csv"},
	}}
	paths, err := m.Paths("data/2_10")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("data/2_10", "val_2_10.csv"), paths[Val])
	assert.Len(t, paths, 3)

	m.Files = m.Files[:1]
	_, err = m.Paths("data/2_10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no val split")
}
