// Package labels turns the raw label-description export into the
// (flow file, label, packet count) table that drives extraction.
package labels

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
)

// Column names of the raw and cleaned label files.
const (
	ColFlowFilePath = "FlowFilePath"
	ColLabelDetails = "LabelDetails"
	ColFlowFileName = "FlowFileName"
	ColLabel        = "Label"
	ColNumPackets   = "NumPackets"
)

const (
	labelMarker = "packets"
	countMarker = "packets: "
)

// ParseError reports a label-details row that cannot be parsed. Cleaning
// stops at the first one.
type ParseError struct {
	Row     int
	Details string
	Reason  string
}

func (e *ParseError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("label row %d: %s: %q", e.Row, e.Reason, e.Details)
	}
	return fmt.Sprintf("label details: %s: %q", e.Reason, e.Details)
}

// ParseDetails extracts the label and packet count from a details string such
// as "Facebook packets: 42 bytes: 9000". The label is everything before the
// first "packets" minus the separating character, trimmed.
func ParseDetails(details string) (string, int, error) {
	idx := strings.Index(details, labelMarker)
	if idx < 0 {
		return "", 0, &ParseError{Details: details, Reason: "missing \"packets\" marker"}
	}
	end := idx - 1
	if end < 0 {
		end = 0
	}
	label := strings.TrimSpace(details[:end])
	if label == "" {
		return "", 0, &ParseError{Details: details, Reason: "empty label"}
	}

	cidx := strings.Index(details, countMarker)
	if cidx < 0 {
		return "", 0, &ParseError{Details: details, Reason: "missing \"packets: \" marker"}
	}
	rest := details[cidx+len(countMarker):]
	if stop := strings.IndexFunc(rest, unicode.IsSpace); stop >= 0 {
		rest = rest[:stop]
	}
	count, err := strconv.Atoi(rest)
	if err != nil {
		return "", 0, &ParseError{Details: details, Reason: fmt.Sprintf("invalid packet count %q", rest)}
	}
	return label, count, nil
}

// FlowFileName returns the part of path after root. Paths that do not
// contain root are returned unchanged.
func FlowFileName(path, root string) string {
	if root == "" {
		return path
	}
	idx := strings.Index(path, root)
	if idx < 0 {
		return path
	}
	return path[idx+len(root):]
}

// Clean reads raw label rows from r and writes the cleaned table to w.
// It returns the number of rows written.
func Clean(r io.Reader, w io.Writer, root string) (int, error) {
	raw := dataframe.ReadCSV(r,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if raw.Err != nil {
		return 0, fmt.Errorf("failed to read raw labels: %w", raw.Err)
	}
	if err := requireColumns(raw, ColFlowFilePath, ColLabelDetails); err != nil {
		return 0, err
	}

	paths := raw.Col(ColFlowFilePath).Records()
	details := raw.Col(ColLabelDetails).Records()

	names := make([]string, len(paths))
	labels := make([]string, len(paths))
	counts := make([]int, len(paths))
	for i := range paths {
		label, count, err := ParseDetails(details[i])
		if err != nil {
			perr := err.(*ParseError)
			perr.Row = i + 1
			return 0, perr
		}
		names[i] = FlowFileName(paths[i], root)
		labels[i] = label
		counts[i] = count
	}

	cleaned := dataframe.New(
		series.New(names, series.String, ColFlowFileName),
		series.New(labels, series.String, ColLabel),
		series.New(counts, series.Int, ColNumPackets),
	)
	if cleaned.Err != nil {
		return 0, fmt.Errorf("failed to build cleaned labels: %w", cleaned.Err)
	}
	if err := cleaned.WriteCSV(w); err != nil {
		return 0, fmt.Errorf("failed to write cleaned labels: %w", err)
	}
	return len(names), nil
}

// CleanFile cleans the raw labels at in and writes them to out. Nothing is
// written when any row fails to parse.
func CleanFile(in, out, root string) (int, error) {
	src, err := os.Open(in)
	if err != nil {
		return 0, fmt.Errorf("failed to open raw labels: %w", err)
	}
	defer src.Close()

	var buf strings.Builder
	n, err := Clean(src, &buf, root)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(out, []byte(buf.String()), 0644); err != nil {
		return 0, fmt.Errorf("failed to write cleaned labels: %w", err)
	}
	return n, nil
}

// Load reads a cleaned labels file in row order.
func Load(path string) ([]model.LabeledFlow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels: %w", err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", df.Err)
	}
	if err := requireColumns(df, ColFlowFileName, ColLabel, ColNumPackets); err != nil {
		return nil, err
	}

	names := df.Col(ColFlowFileName).Records()
	labels := df.Col(ColLabel).Records()
	counts := df.Col(ColNumPackets).Records()

	flows := make([]model.LabeledFlow, len(names))
	for i := range names {
		n, err := strconv.Atoi(strings.TrimSpace(counts[i]))
		if err != nil {
			return nil, fmt.Errorf("labels row %d: invalid %s %q", i+1, ColNumPackets, counts[i])
		}
		flows[i] = model.LabeledFlow{FlowFileName: names[i], Label: labels[i], NumPackets: n}
	}
	return flows, nil
}

func requireColumns(df dataframe.DataFrame, cols ...string) error {
	have := make(map[string]bool, df.Ncol())
	for _, name := range df.Names() {
		have[name] = true
	}
	for _, c := range cols {
		if !have[c] {
			return fmt.Errorf("labels file is missing column '%s'", c)
		}
	}
	return nil
}
