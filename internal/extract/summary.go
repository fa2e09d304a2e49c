package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
)

// LabelSummary holds the per-label outcome of a run.
type LabelSummary struct {
	Label string `json:"label"`
	Flows int    `json:"flows"`
	Rows  int    `json:"rows"`
}

// LengthStats describes the IP payload lengths of the emitted rows.
type LengthStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
}

// SummaryData is the run report written next to the dataset.
type SummaryData struct {
	FlowsTotal     int            `json:"flows_total"`
	FlowsProcessed int            `json:"flows_processed"`
	FlowsSkipped   int            `json:"flows_skipped"`
	FlowsFailed    int            `json:"flows_failed"`
	Rows           int            `json:"rows"`
	Labels         []LabelSummary `json:"labels"`
	PayloadLength  LengthStats    `json:"payload_length"`
	Duration       string         `json:"duration"`
	Timestamp      string         `json:"timestamp"`
}

// summaryBuilder accumulates flow results while a run is in progress.
type summaryBuilder struct {
	data    SummaryData
	labels  map[string]*LabelSummary
	lengths stats.Float64Data
}

func newSummaryBuilder(total int) *summaryBuilder {
	return &summaryBuilder{
		data:   SummaryData{FlowsTotal: total},
		labels: make(map[string]*LabelSummary),
	}
}

func (b *summaryBuilder) label(name string) *LabelSummary {
	ls, ok := b.labels[name]
	if !ok {
		ls = &LabelSummary{Label: name}
		b.labels[name] = ls
	}
	return ls
}

func (b *summaryBuilder) processed(r *FlowResult) {
	b.data.FlowsProcessed++
	b.data.Rows += r.Rows
	ls := b.label(r.Label)
	ls.Flows++
	ls.Rows += r.Rows
	b.lengths = append(b.lengths, r.PayloadLengths...)
}

func (b *summaryBuilder) skipped() { b.data.FlowsSkipped++ }

func (b *summaryBuilder) failed() { b.data.FlowsFailed++ }

func (b *summaryBuilder) finish(elapsed time.Duration) *SummaryData {
	out := b.data
	out.Duration = elapsed.String()
	out.Timestamp = time.Now().UTC().Format(time.RFC3339)

	names := make([]string, 0, len(b.labels))
	for name := range b.labels {
		names = append(names, name)
	}
	sort.Strings(names)
	out.Labels = make([]LabelSummary, 0, len(names))
	for _, name := range names {
		out.Labels = append(out.Labels, *b.labels[name])
	}

	if len(b.lengths) > 0 {
		out.PayloadLength.Min, _ = stats.Min(b.lengths)
		out.PayloadLength.Max, _ = stats.Max(b.lengths)
		out.PayloadLength.Mean, _ = stats.Mean(b.lengths)
		out.PayloadLength.Median, _ = stats.Median(b.lengths)
		out.PayloadLength.P95, _ = stats.Percentile(b.lengths, 95)
	}
	return &out
}

// WriteSummary writes s as indented JSON to path.
func WriteSummary(path string, s *SummaryData) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create summary directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}
	return nil
}
