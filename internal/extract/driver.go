package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/config"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/pkg/pcap"
)

// Driver runs extraction over a queue of labelled flows, strictly in order.
type Driver struct {
	flowsDir  string
	excluded  map[string]struct{}
	tracker   *LabelBudgetTracker
	extractor *Extractor
	sink      model.Sink
	notifier  model.Notifier
	log       logrus.FieldLogger
}

// NewDriver wires a driver for one run. notifier may be nil.
func NewDriver(cfg *config.Config, sink model.Sink, notifier model.Notifier, log logrus.FieldLogger) *Driver {
	tracker := NewLabelBudgetTracker(cfg.Pipeline.MaxPacketsPerLabel)
	return &Driver{
		flowsDir:  cfg.Paths.FlowsDir,
		excluded:  cfg.Pipeline.ExcludedSet(),
		tracker:   tracker,
		extractor: NewExtractor(cfg.Pipeline, tracker, log),
		sink:      sink,
		notifier:  notifier,
		log:       log,
	}
}

// Run processes flows in order. Unreadable captures are logged and skipped.
// Cancelling ctx stops the run between files; the output written so far is
// then incomplete and the caller must abort the sink.
func (d *Driver) Run(ctx context.Context, flows []model.LabeledFlow) (*SummaryData, error) {
	start := time.Now()
	total := len(flows)
	summary := newSummaryBuilder(total)

	for i, flow := range flows {
		if err := ctx.Err(); err != nil {
			d.log.WithField("processed", i).Warn("Extraction cancelled.")
			return summary.finish(time.Since(start)), err
		}

		path := filepath.Join(d.flowsDir, flow.FlowFileName)
		event := model.ProgressEvent{Index: i + 1, Total: total, Path: path, Label: flow.Label}
		entry := d.log.WithFields(logrus.Fields{"path": path, "label": flow.Label})

		if _, skip := d.excluded[flow.Label]; skip {
			summary.skipped()
			event.Status = model.StatusSkipped
			d.report(entry, event)
			continue
		}

		// A label already at its cap is not read at all.
		if !d.tracker.Allow(flow.Label) {
			summary.processed(&FlowResult{Path: path, Label: flow.Label, Capped: true})
			event.Status = model.StatusProcessed
			d.report(entry.WithField("rows", 0), event)
			continue
		}

		result, err := d.extractor.ExtractFlow(path, flow.Label, d.sink)
		var readErr *pcap.ReadError
		switch {
		case errors.As(err, &readErr):
			entry.WithError(err).Warn("Could not read capture file.")
			summary.failed()
			event.Status = model.StatusFailed
			d.report(entry, event)
			continue
		case err != nil:
			return summary.finish(time.Since(start)), fmt.Errorf("extraction failed at '%s': %w", path, err)
		}

		summary.processed(result)
		event.Status = model.StatusProcessed
		event.Rows = result.Rows
		d.report(entry.WithField("rows", result.Rows), event)
	}

	elapsed := time.Since(start)
	d.log.WithFields(logrus.Fields{
		"processed": summary.data.FlowsProcessed,
		"skipped":   summary.data.FlowsSkipped,
		"failed":    summary.data.FlowsFailed,
		"rows":      summary.data.Rows,
	}).Infof("Total time to run: %s", elapsed)
	return summary.finish(elapsed), nil
}

// Finalize commits sink after a successful run. After a failed run the sink
// is aborted, leaving its output marked partial, and runErr is returned.
func Finalize(sink model.Sink, runErr error) error {
	if runErr != nil {
		if err := sink.Abort(); err != nil {
			return fmt.Errorf("extraction did not complete (abort failed: %v): %w", err, runErr)
		}
		return fmt.Errorf("extraction did not complete, output is partial: %w", runErr)
	}
	if err := sink.Close(); err != nil {
		return fmt.Errorf("failed to commit dataset: %w", err)
	}
	return nil
}

// report logs the user-visible progress line and publishes the event.
func (d *Driver) report(entry logrus.FieldLogger, event model.ProgressEvent) {
	verb := "processed"
	if event.Status != model.StatusProcessed {
		verb = "skipped"
	}
	entry.Infof("(%d/%d) - %s (%s) has been %s", event.Index, event.Total, event.Path, event.Label, verb)

	if d.notifier == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	if err := d.notifier.Notify(event); err != nil {
		entry.WithError(err).Warn("Failed to publish progress event.")
	}
}
