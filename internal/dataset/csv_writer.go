package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/config"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
)

// PartialSuffix marks output that has not been committed by Close.
const PartialSuffix = ".partial"

// ErrPartialOutput is returned when a previous run left uncommitted output behind.
var ErrPartialOutput = errors.New("partial output from an interrupted run detected")

var byteStrings [256]string

func init() {
	for i := range byteStrings {
		byteStrings[i] = strconv.Itoa(i)
	}

	Register("csv", func(def config.SinkDef, pipeline config.PipelineConfig, _ logrus.FieldLogger) (model.Sink, error) {
		return NewCSVSink(def.CSV.Path, pipeline.FeatureWidth, def.CSV.Overwrite)
	})
}

// Header returns the dataset header: label followed by byte1..byteN.
func Header(width int) []string {
	header := make([]string, 0, width+1)
	header = append(header, LabelColumn)
	for i := 1; i <= width; i++ {
		header = append(header, ByteColumn(i))
	}
	return header
}

// ByteColumn names the i-th (1-based) byte column.
func ByteColumn(i int) string {
	return "byte" + strconv.Itoa(i)
}

// CSVSink writes feature rows to a flat CSV dataset. Output goes to
// <path>.partial and is renamed onto <path> only by Close.
type CSVSink struct {
	path    string
	partial string
	width   int
	file    *os.File
	buf     *bufio.Writer
	w       *csv.Writer
	record  []string
	rows    int
}

// NewCSVSink creates the dataset and writes its header. An existing dataset at
// path is replaced on Close; a stale .partial file fails with ErrPartialOutput
// unless overwrite is set.
func NewCSVSink(path string, width int, overwrite bool) (*CSVSink, error) {
	if path == "" {
		return nil, fmt.Errorf("csv sink: path is required")
	}
	if width <= 0 {
		return nil, fmt.Errorf("csv sink: width must be positive, got %d", width)
	}

	partial := path + PartialSuffix
	if _, err := os.Stat(partial); err == nil && !overwrite {
		return nil, fmt.Errorf("%w: %s", ErrPartialOutput, partial)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create dataset directory: %w", err)
	}
	file, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset file '%s': %w", partial, err)
	}

	buf := bufio.NewWriterSize(file, 1<<20)
	s := &CSVSink{
		path:    path,
		partial: partial,
		width:   width,
		file:    file,
		buf:     buf,
		w:       csv.NewWriter(buf),
		record:  make([]string, width+1),
	}
	if err := s.w.Write(Header(width)); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write dataset header: %w", err)
	}
	return s, nil
}

// WriteRow appends one record of exactly 1+width fields. Bytes beyond the
// width are dropped; missing bytes are written as empty fields.
func (s *CSVSink) WriteRow(row model.FeatureRow) error {
	s.record[0] = row.Label
	for i := 0; i < s.width; i++ {
		if i < len(row.Bytes) {
			s.record[i+1] = byteStrings[row.Bytes[i]]
		} else {
			s.record[i+1] = ""
		}
	}
	if err := s.w.Write(s.record); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	s.rows++
	return nil
}

// Rows returns the number of rows written so far.
func (s *CSVSink) Rows() int {
	return s.rows
}

// Close flushes the dataset and commits it to its final path.
func (s *CSVSink) Close() error {
	if err := s.flushAndClose(); err != nil {
		return err
	}
	if err := os.Rename(s.partial, s.path); err != nil {
		return fmt.Errorf("failed to commit dataset: %w", err)
	}
	return nil
}

// Abort closes the file and leaves the .partial output in place.
func (s *CSVSink) Abort() error {
	return s.flushAndClose()
}

func (s *CSVSink) flushAndClose() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return fmt.Errorf("failed to flush dataset: %w", err)
	}
	if err := s.buf.Flush(); err != nil {
		s.file.Close()
		return fmt.Errorf("failed to flush dataset: %w", err)
	}
	return s.file.Close()
}
