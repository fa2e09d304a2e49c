package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/sirupsen/logrus"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/labels"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/pcaptest"
)

func main() {
	outDir := flag.String("o", "data", "output directory")
	labelList := flag.String("labels", "YouTube,Facebook,WhatsApp,Microsoft,Amazon,Google,HTTP", "comma separated labels")
	flowsPerLabel := flag.Int("flows", 5, "flows generated per label")
	packetsPerFlow := flag.Int("c", 200, "maximum packets per flow")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	log := logrus.New()
	rng := rand.New(rand.NewSource(*seed))

	flowDir := filepath.Join(*outDir, "flows")
	if err := os.MkdirAll(flowDir, 0755); err != nil {
		log.WithError(err).Fatal("Failed to create flow directory.")
	}

	var paths, details []string
	for _, label := range strings.Split(*labelList, ",") {
		for i := 0; i < *flowsPerLabel; i++ {
			packets := randomFlow(rng, rng.Intn(*packetsPerFlow)+1)
			name := fmt.Sprintf("%s_%d.pcap", strings.ToLower(label), i)
			if err := pcaptest.WriteFile(filepath.Join(flowDir, name), packets); err != nil {
				log.WithError(err).Fatal("Failed to write flow.")
			}
			bytes := 0
			for _, p := range packets {
				bytes += len(p.Payload)
			}
			paths = append(paths, "/captures/"+labelsRoot+name)
			details = append(details, fmt.Sprintf("%s packets: %d bytes: %d", label, len(packets), bytes))
		}
		log.WithField("label", label).Infof("Generated %d flows.", *flowsPerLabel)
	}

	raw := dataframe.New(
		series.New(paths, series.String, labels.ColFlowFilePath),
		series.New(details, series.String, labels.ColLabelDetails),
	)
	rawPath := filepath.Join(*outDir, "raw_labels.csv")
	f, err := os.Create(rawPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to create raw labels file.")
	}
	defer f.Close()
	if err := raw.WriteCSV(f); err != nil {
		log.WithError(err).Fatal("Failed to write raw labels.")
	}
	log.Infof("Successfully generated %d flows into %s.", len(paths), *outDir)
}

// labelsRoot is the flow-root marker the label cleaner strips.
const labelsRoot = "SampleFlows/"

// randomFlow returns n packets of one TCP or UDP conversation with random
// payload sizes, a quarter of them bare acknowledgements.
func randomFlow(rng *rand.Rand, n int) []pcaptest.Packet {
	base := pcaptest.Packet{
		SrcIP:   fmt.Sprintf("10.2.%d.%d", rng.Intn(256), rng.Intn(254)+1),
		DstIP:   fmt.Sprintf("%d.%d.%d.%d", rng.Intn(223)+1, rng.Intn(256), rng.Intn(256), rng.Intn(254)+1),
		SrcPort: uint16(rng.Intn(65535-1024) + 1024),
		DstPort: 443,
		UDP:     rng.Intn(4) == 0,
	}
	packets := make([]pcaptest.Packet, n)
	for i := range packets {
		p := base
		if rng.Intn(2) == 1 {
			p = base.Reverse()
		}
		if p.UDP || rng.Intn(4) != 0 {
			p.Payload = make([]byte, rng.Intn(1400)+50)
			rng.Read(p.Payload)
		}
		packets[i] = p
	}
	return packets
}
