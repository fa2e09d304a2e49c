// Package extract turns labelled capture files into feature rows.
package extract

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/config"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/engine/protocol"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/engine/session"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/pkg/pcap"
)

// FlowResult describes what one capture file contributed to the dataset.
type FlowResult struct {
	Path     string
	Label    string
	Sessions int
	Stats    session.Stats
	Rows     int
	// Capped is set when the label cap stopped extraction early.
	Capped bool
	// PayloadLengths holds the IP payload length of every emitted row.
	PayloadLengths []float64
}

// Extractor emits rows for the qualifying packets of a capture.
type Extractor struct {
	flowBudget int
	strict     bool
	opts       protocol.Options
	tracker    *LabelBudgetTracker
	log        logrus.FieldLogger
}

// NewExtractor creates an extractor sharing tracker across every file it processes.
func NewExtractor(cfg config.PipelineConfig, tracker *LabelBudgetTracker, log logrus.FieldLogger) *Extractor {
	return &Extractor{
		flowBudget: cfg.PacketsPerFlowBudget,
		strict:     cfg.StrictFlowBudget,
		opts:       protocol.Options{IncludeIPv6: cfg.IncludeIPv6},
		tracker:    tracker,
		log:        log,
	}
}

// withinBudget applies the per-session budget to the count of rows already
// taken from the session. The inclusive form admits one row beyond the budget.
func (e *Extractor) withinBudget(taken int) bool {
	if e.strict {
		return taken < e.flowBudget
	}
	return taken <= e.flowBudget
}

// ExtractFlow reads the capture at path and writes one row per sampled packet
// to sink. A capture that cannot be read returns a *pcap.ReadError and leaves
// the tracker untouched.
func (e *Extractor) ExtractFlow(path, label string, sink model.Sink) (*FlowResult, error) {
	packets, err := pcap.ReadFile(path)
	if err != nil {
		return nil, err
	}

	table := session.Reconstruct(packets, e.opts)
	result := &FlowResult{
		Path:     path,
		Label:    label,
		Sessions: table.Len(),
		Stats:    table.Stats,
	}

	for _, s := range table.Sessions() {
		taken := 0
		for _, info := range s.Packets {
			if !e.withinBudget(taken) {
				break
			}
			if !info.Qualifies() {
				continue
			}
			if !e.tracker.Reserve(label) {
				result.Capped = true
				e.log.WithFields(logrus.Fields{"path": path, "label": label}).Debug("Label cap reached.")
				return result, nil
			}
			row := model.FeatureRow{Label: label, Bytes: append([]byte(nil), info.IPPayload...)}
			if err := sink.WriteRow(row); err != nil {
				e.tracker.Release(label)
				return result, fmt.Errorf("failed to write row for '%s': %w", path, err)
			}
			taken++
			result.Rows++
			result.PayloadLengths = append(result.PayloadLengths, float64(len(row.Bytes)))
		}
	}
	return result, nil
}
