package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PipelineConfig holds the knobs shared by every stage of the dataset pipeline.
type PipelineConfig struct {
	FeatureWidth         int      `yaml:"feature_width"`
	MaskWidth            int      `yaml:"mask_width"`
	ExcludedLabels       []string `yaml:"excluded_labels"`
	PacketsPerFlowBudget int      `yaml:"packets_per_flow_budget"`
	MaxPacketsPerLabel   int      `yaml:"max_packets_per_label"`
	// StrictFlowBudget admits exactly PacketsPerFlowBudget rows per session.
	// When false the historical inclusive check admits one extra row.
	StrictFlowBudget bool    `yaml:"strict_flow_budget"`
	IncludeIPv6      bool    `yaml:"include_ipv6"`
	SplitSeed        int64   `yaml:"split_seed"`
	TestFraction     float64 `yaml:"test_fraction"`
	ValFraction      float64 `yaml:"val_fraction"`
}

// PathsConfig locates the inputs and outputs of each stage.
type PathsConfig struct {
	FlowsDir     string `yaml:"flows_dir"`
	RawLabelsCSV string `yaml:"raw_labels_csv"`
	LabelsCSV    string `yaml:"labels_csv"`
	DatasetCSV   string `yaml:"dataset_csv"`
	SummaryJSON  string `yaml:"summary_json"`
	SplitDir     string `yaml:"split_dir"`
	ExportDir    string `yaml:"export_dir"`
	// FlowRoot is the path component stripped from raw label paths.
	FlowRoot string `yaml:"flow_root"`
}

// SplitConfig selects the classes sampled into the train/val/test sets.
type SplitConfig struct {
	Classes         []string `yaml:"classes"`
	PacketsPerClass int      `yaml:"packets_per_class"`
}

// PreprocessConfig holds the defaults used when turning split files into tensors.
type PreprocessConfig struct {
	Family       string `yaml:"family"`
	GridRows     int    `yaml:"grid_rows"`
	GridCols     int    `yaml:"grid_cols"`
	WindowOffset int    `yaml:"window_offset"`
	NumBytes     int    `yaml:"num_bytes"`
	Mask         bool   `yaml:"mask"`
}

// ClickHouseConfig holds the connection settings for the ClickHouse dataset sink.
type ClickHouseConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Database  string `yaml:"database"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Table     string `yaml:"table"`
	BatchSize int    `yaml:"batch_size"`
}

// CSVSinkConfig configures the flat CSV dataset sink.
type CSVSinkConfig struct {
	Path string `yaml:"path"`
	// Overwrite discards a stale .partial file left by an interrupted run.
	Overwrite bool `yaml:"overwrite"`
}

// SinkDef defines a single dataset sink from the config file.
type SinkDef struct {
	Type       string           `yaml:"type"`
	Enabled    bool             `yaml:"enabled"`
	CSV        CSVSinkConfig    `yaml:"csv"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// NATSConfig configures progress event publishing.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// APIConfig holds the configuration for the tensor API server.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Paths      PathsConfig      `yaml:"paths"`
	Split      SplitConfig      `yaml:"split"`
	Preprocess PreprocessConfig `yaml:"preprocess"`
	Sinks      []SinkDef        `yaml:"sinks"`
	NATS       NATSConfig       `yaml:"nats"`
	API        APIConfig        `yaml:"api"`
	Log        LogConfig        `yaml:"log"`
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			FeatureWidth:         1480,
			MaskWidth:            20,
			ExcludedLabels:       []string{"HTTP", "SSDP", "Unknown", "TLS", "HTTP_Proxy"},
			PacketsPerFlowBudget: 10000,
			MaxPacketsPerLabel:   100000,
			SplitSeed:            42,
			TestFraction:         0.2,
			ValFraction:          0.2,
		},
		Paths: PathsConfig{
			FlowsDir:     "data/flows",
			RawLabelsCSV: "data/raw_labels.csv",
			LabelsCSV:    "data/labels.csv",
			DatasetCSV:   "data/data.csv",
			SummaryJSON:  "data/summary.json",
			SplitDir:     "data",
			ExportDir:    "data/npy",
			FlowRoot:     "SampleFlows/",
		},
		Split: SplitConfig{
			Classes:         []string{"YouTube", "Facebook", "WhatsApp", "Microsoft", "Amazon", "Google"},
			PacketsPerClass: 5000,
		},
		Preprocess: PreprocessConfig{
			Family:       "flat",
			GridRows:     40,
			GridCols:     37,
			WindowOffset: 20,
			Mask:         true,
		},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "etc.extract.progress",
		},
		API: APIConfig{ListenAddr: ":8090"},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
// Keys missing from the file keep their Default values.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	// A csv sink without a path writes the dataset the split stage reads.
	for i := range cfg.Sinks {
		if cfg.Sinks[i].Type == "csv" && cfg.Sinks[i].CSV.Path == "" {
			cfg.Sinks[i].CSV.Path = cfg.Paths.DatasetCSV
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations no stage could run with.
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.FeatureWidth <= 0 {
		return fmt.Errorf("pipeline.feature_width must be positive, got %d", p.FeatureWidth)
	}
	if p.MaskWidth < 0 || p.MaskWidth > p.FeatureWidth {
		return fmt.Errorf("pipeline.mask_width must be within [0, %d], got %d", p.FeatureWidth, p.MaskWidth)
	}
	if p.PacketsPerFlowBudget <= 0 {
		return fmt.Errorf("pipeline.packets_per_flow_budget must be positive, got %d", p.PacketsPerFlowBudget)
	}
	if p.MaxPacketsPerLabel <= 0 {
		return fmt.Errorf("pipeline.max_packets_per_label must be positive, got %d", p.MaxPacketsPerLabel)
	}
	if p.TestFraction <= 0 || p.TestFraction >= 1 {
		return fmt.Errorf("pipeline.test_fraction must be in (0, 1), got %v", p.TestFraction)
	}
	if p.ValFraction <= 0 || p.ValFraction >= 1 {
		return fmt.Errorf("pipeline.val_fraction must be in (0, 1), got %v", p.ValFraction)
	}
	pp := c.Preprocess
	if pp.GridRows*pp.GridCols != p.FeatureWidth {
		return fmt.Errorf("preprocess grid %dx%d does not cover feature_width %d", pp.GridRows, pp.GridCols, p.FeatureWidth)
	}
	if pp.WindowOffset < 0 || pp.WindowOffset >= p.FeatureWidth {
		return fmt.Errorf("preprocess.window_offset must be within [0, %d), got %d", p.FeatureWidth, pp.WindowOffset)
	}
	for i, s := range c.Sinks {
		if s.Type == "" {
			return fmt.Errorf("sinks[%d]: type is required", i)
		}
		if s.Type == "csv" && s.Enabled && s.CSV.Path != c.Paths.DatasetCSV {
			return fmt.Errorf("sinks[%d]: csv.path '%s' differs from paths.dataset_csv '%s'", i, s.CSV.Path, c.Paths.DatasetCSV)
		}
	}
	return nil
}

// ExcludedSet returns the excluded labels as a lookup set.
func (p PipelineConfig) ExcludedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.ExcludedLabels))
	for _, l := range p.ExcludedLabels {
		set[l] = struct{}{}
	}
	return set
}
