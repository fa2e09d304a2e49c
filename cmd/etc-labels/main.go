package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/config"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/labels"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/logging"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	in := flag.String("in", "", "raw labels csv (overrides paths.raw_labels_csv)")
	out := flag.String("out", "", "cleaned labels csv (overrides paths.labels_csv)")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log)

	if *in != "" {
		cfg.Paths.RawLabelsCSV = *in
	}
	if *out != "" {
		cfg.Paths.LabelsCSV = *out
	}

	// 2. Clean; any malformed row aborts the whole pass
	n, err := labels.CleanFile(cfg.Paths.RawLabelsCSV, cfg.Paths.LabelsCSV, cfg.Paths.FlowRoot)
	if err != nil {
		log.WithError(err).Fatal("Label cleaning aborted.")
	}
	log.WithField("rows", n).Infof("Wrote cleaned labels to '%s'.", cfg.Paths.LabelsCSV)
}
