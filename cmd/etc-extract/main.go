package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/config"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/dataset"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/extract"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/labels"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/logging"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/notification"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	overwrite := flag.Bool("overwrite", false, "discard partial output left by an interrupted run")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log)
	if *overwrite {
		for i := range cfg.Sinks {
			cfg.Sinks[i].CSV.Overwrite = true
		}
	}

	// 2. Load the labelled flow queue
	flows, err := labels.Load(cfg.Paths.LabelsCSV)
	if err != nil {
		log.WithError(err).Fatal("Failed to load labels.")
	}
	log.WithField("flows", len(flows)).Info("Labels loaded.")

	// 3. Initialize sinks and the progress notifier
	sink, err := dataset.Open(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open dataset sinks.")
	}
	notifier, err := notification.New(cfg.NATS, log)
	if err != nil {
		sink.Abort()
		log.WithError(err).Fatal("Failed to create notifier.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Run the batch; an interrupted run leaves its output marked partial
	driver := extract.NewDriver(cfg, sink, notifier, log)
	summary, runErr := driver.Run(ctx, flows)
	stop()
	notifier.Close()
	if err := extract.Finalize(sink, runErr); err != nil {
		log.WithError(err).Fatal("Extraction failed.")
	}

	// 5. Write the run summary
	if err := extract.WriteSummary(cfg.Paths.SummaryJSON, summary); err != nil {
		log.WithError(err).Fatal("Failed to write run summary.")
	}
	log.WithField("rows", summary.Rows).Infof("Run summary written to '%s'.", cfg.Paths.SummaryJSON)
}
