package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/config"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/logging"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/split"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	classes := flag.String("classes", "", "comma separated classes (overrides split.classes)")
	perClass := flag.Int("packets-per-class", 0, "rows sampled per class (overrides split.packets_per_class)")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log)

	opts := split.OptionsFromConfig(cfg)
	if *classes != "" {
		opts.Classes = strings.Split(*classes, ",")
	}
	if *perClass > 0 {
		opts.PacketsPerClass = *perClass
	}

	// 2. Sample and partition
	log.WithField("dataset", cfg.Paths.DatasetCSV).Info("Splitting dataset...")
	result, err := split.SplitFile(cfg.Paths.DatasetCSV, opts)
	if err != nil {
		log.WithError(err).Fatal("Split aborted.")
	}

	// 3. Write the splits and manifest
	manifest, err := split.WriteDir(cfg.Paths.SplitDir, result)
	if err != nil {
		log.WithError(err).Fatal("Failed to write splits.")
	}
	for _, f := range manifest.Files {
		log.WithFields(logrus.Fields{"split": f.Split, "rows": f.Rows, "blake3": f.BLAKE3}).Infof("Wrote '%s'.", f.Name)
	}
}
