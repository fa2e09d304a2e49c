package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
)

// LabelColumn is the name of the first dataset column.
const LabelColumn = "label"

// MissingColumnError reports a dataset whose header lacks a required column.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("dataset is missing required column '%s'", e.Column)
}

// Reader streams feature rows from a flat CSV dataset.
type Reader struct {
	r     *csv.Reader
	width int
	line  int
}

// NewReader reads and validates the dataset header.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(bufio.NewReaderSize(r, 1<<20))
	// Datasets written before fixed-width padding have ragged rows.
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &MissingColumnError{Column: LabelColumn}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}
	if len(header) == 0 || header[0] != LabelColumn {
		return nil, &MissingColumnError{Column: LabelColumn}
	}
	for i := 1; i < len(header); i++ {
		if header[i] != ByteColumn(i) {
			return nil, &MissingColumnError{Column: ByteColumn(i)}
		}
	}
	if len(header) < 2 {
		return nil, &MissingColumnError{Column: ByteColumn(1)}
	}
	return &Reader{r: cr, width: len(header) - 1, line: 1}, nil
}

// Width returns the number of byte columns declared by the header.
func (r *Reader) Width() int {
	return r.width
}

// Read returns the next row. Bytes stop at the first empty field, so a row
// written from a short payload reads back at its original length.
func (r *Reader) Read() (model.FeatureRow, error) {
	record, err := r.r.Read()
	if err != nil {
		return model.FeatureRow{}, err
	}
	r.line++

	row := model.FeatureRow{Label: record[0]}
	fields := record[1:]
	if len(fields) > r.width {
		fields = fields[:r.width]
	}
	n := 0
	for n < len(fields) && fields[n] != "" {
		n++
	}
	row.Bytes = make([]byte, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseUint(fields[i], 10, 8)
		if err != nil {
			return model.FeatureRow{}, fmt.Errorf("line %d, %s: %w", r.line, ByteColumn(i+1), err)
		}
		row.Bytes[i] = byte(v)
	}
	return row, nil
}

// Scan calls fn for every row of the dataset at path.
func Scan(path string, fn func(width int, row model.FeatureRow) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	reader, err := NewReader(f)
	if err != nil {
		return err
	}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read dataset '%s': %w", path, err)
		}
		if err := fn(reader.Width(), row); err != nil {
			return err
		}
	}
}

// ReadFile loads every row of the dataset at path and returns its width.
func ReadFile(path string) ([]model.FeatureRow, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	reader, err := NewReader(f)
	if err != nil {
		return nil, 0, err
	}
	var rows []model.FeatureRow
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return rows, reader.Width(), nil
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read dataset '%s': %w", path, err)
		}
		rows = append(rows, row)
	}
}
