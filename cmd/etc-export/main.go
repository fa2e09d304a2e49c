package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/config"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/export"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/logging"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/preprocess"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/split"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	familyName := flag.String("family", "", "model family: flat|mlp, grid|cnn, integer|svm (overrides preprocess.family)")
	numBytes := flag.Int("num-bytes", -1, "payload window width (overrides preprocess.num_bytes)")
	suffix := flag.String("suffix", "", "split directory suffix (defaults to the configured classes and packets per class)")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log)

	if *familyName == "" {
		*familyName = cfg.Preprocess.Family
	}
	family, err := preprocess.ParseFamily(*familyName)
	if err != nil {
		log.WithError(err).Fatal("Invalid model family.")
	}
	opts := preprocess.OptionsFromConfig(cfg, family)
	if *numBytes >= 0 {
		opts.NumBytes = *numBytes
	}
	if *suffix == "" {
		*suffix = split.OptionsFromConfig(cfg).Suffix()
	}

	// 2. Verify and load the three splits
	dir := filepath.Join(cfg.Paths.SplitDir, *suffix)
	manifest, err := split.Verify(dir)
	if err != nil {
		log.WithError(err).Fatal("Split directory failed verification.")
	}
	paths, err := manifest.Paths(dir)
	if err != nil {
		log.WithError(err).Fatal("Incomplete split manifest.")
	}
	sets := make(map[string]*preprocess.Dataset, len(split.Names))
	for _, name := range split.Names {
		ds, err := preprocess.LoadDataset(paths[name])
		if err != nil {
			log.WithError(err).WithField("split", name).Fatal("Failed to load split.")
		}
		sets[name] = ds
	}

	// 3. Preprocess against one shared vocabulary and export
	tensors, err := preprocess.PreprocessSplits(sets[split.Train], sets[split.Val], sets[split.Test], opts)
	if err != nil {
		log.WithError(err).Fatal("Preprocessing failed.")
	}
	outDir := filepath.Join(cfg.Paths.ExportDir, *suffix, family.String())
	for name, t := range map[string]*preprocess.Tensors{split.Train: tensors.Train, split.Val: tensors.Val, split.Test: tensors.Test} {
		sidecar, err := export.WriteNPY(outDir, split.BaseName(name, *suffix), t)
		if err != nil {
			log.WithError(err).Fatal("Export failed.")
		}
		log.WithFields(logrus.Fields{"split": name, "x_shape": sidecar.XShape, "y_shape": sidecar.YShape}).Info("Exported tensors.")
	}
	log.Infof("Tensors written to '%s'.", outDir)
}
