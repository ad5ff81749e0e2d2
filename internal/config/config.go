package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// AppConfig captures configuration for the server, index storage, ingestion,
// and search defaults.
type AppConfig struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Paths     PathsConfig     `toml:"paths" yaml:"paths"`
	Index     IndexConfig     `toml:"index" yaml:"index"`
	Search    SearchConfig    `toml:"search" yaml:"search"`
	Ingestion IngestionConfig `toml:"ingestion" yaml:"ingestion"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `toml:"metrics" yaml:"metrics"`
}

// ServerConfig controls network settings.
type ServerConfig struct {
	Listen string `toml:"listen" yaml:"listen"`
}

// PathsConfig configures the on-disk layout.
type PathsConfig struct {
	DataDir   string `toml:"data_dir" yaml:"data_dir"`
	SourceDir string `toml:"source_dir" yaml:"source_dir"`
}

// IndexConfig provides baseline settings for the scripture index.
type IndexConfig struct {
	Name     string     `toml:"name" yaml:"name"`
	BM25     BM25Config `toml:"bm25" yaml:"bm25"`
	NgramMin int        `toml:"ngram_min" yaml:"ngram_min"`
	NgramMax int        `toml:"ngram_max" yaml:"ngram_max"`
}

// BM25Config mirrors the scoring parameters exposed by the index package.
type BM25Config struct {
	K1 float64 `toml:"k1" yaml:"k1"`
	B  float64 `toml:"b" yaml:"b"`
}

// SearchConfig bounds query-time behavior.
type SearchConfig struct {
	DefaultPageSize int `toml:"default_page_size" yaml:"default_page_size"`
	MaxPageSize     int `toml:"max_page_size" yaml:"max_page_size"`
	FragmentSize    int `toml:"fragment_size" yaml:"fragment_size"`
	MaxFragments    int `toml:"max_fragments" yaml:"max_fragments"`
}

// IngestionConfig tunes the bulk loading pipeline.
type IngestionConfig struct {
	BatchSize    int           `toml:"batch_size" yaml:"batch_size"`
	ParseWorkers int           `toml:"parse_workers" yaml:"parse_workers"`
	Timeout      time.Duration `toml:"timeout" yaml:"timeout"`
}

// LoggingConfig toggles observability around requests.
type LoggingConfig struct {
	RequestLogs *bool `toml:"request_logs" yaml:"request_logs"`
}

// MetricsConfig enables counters/telemetry endpoints.
type MetricsConfig struct {
	Enabled *bool `toml:"enabled" yaml:"enabled"`
}

// DefaultConfig returns the baseline configuration used when no file is supplied.
func DefaultConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{Listen: ":8080"},
		Paths: PathsConfig{
			DataDir:   "data/index",
			SourceDir: "data/sources",
		},
		Index: IndexConfig{
			Name:     "scriptures",
			BM25:     BM25Config{K1: 1.2, B: 0.75},
			NgramMin: 2,
			NgramMax: 4,
		},
		Search: SearchConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
			FragmentSize:    200,
			MaxFragments:    3,
		},
		Ingestion: IngestionConfig{
			BatchSize:    50,
			ParseWorkers: 4,
			Timeout:      5 * time.Minute,
		},
		Logging: LoggingConfig{RequestLogs: boolPtr(true)},
		Metrics: MetricsConfig{Enabled: boolPtr(true)},
	}
}

// Load reads the provided config path, merging it onto the defaults.
func Load(path string) (AppConfig, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var fileCfg AppConfig
	switch ext {
	case ".toml":
		if err := toml.Unmarshal(content, &fileCfg); err != nil {
			return AppConfig{}, fmt.Errorf("parse toml: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &fileCfg); err != nil {
			return AppConfig{}, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		return AppConfig{}, errors.New("config file must be .toml, .yaml, or .yml")
	}

	return mergeConfig(cfg, fileCfg), nil
}

func mergeConfig(base, override AppConfig) AppConfig {
	if override.Server.Listen != "" {
		base.Server.Listen = override.Server.Listen
	}
	if override.Paths.DataDir != "" {
		base.Paths.DataDir = override.Paths.DataDir
	}
	if override.Paths.SourceDir != "" {
		base.Paths.SourceDir = override.Paths.SourceDir
	}

	if override.Index.Name != "" {
		base.Index.Name = override.Index.Name
	}
	if override.Index.BM25.K1 != 0 {
		base.Index.BM25.K1 = override.Index.BM25.K1
	}
	if override.Index.BM25.B != 0 {
		base.Index.BM25.B = override.Index.BM25.B
	}
	if override.Index.NgramMin != 0 {
		base.Index.NgramMin = override.Index.NgramMin
	}
	if override.Index.NgramMax != 0 {
		base.Index.NgramMax = override.Index.NgramMax
	}

	if override.Search.DefaultPageSize != 0 {
		base.Search.DefaultPageSize = override.Search.DefaultPageSize
	}
	if override.Search.MaxPageSize != 0 {
		base.Search.MaxPageSize = override.Search.MaxPageSize
	}
	if override.Search.FragmentSize != 0 {
		base.Search.FragmentSize = override.Search.FragmentSize
	}
	if override.Search.MaxFragments != 0 {
		base.Search.MaxFragments = override.Search.MaxFragments
	}

	if override.Ingestion.BatchSize != 0 {
		base.Ingestion.BatchSize = override.Ingestion.BatchSize
	}
	if override.Ingestion.ParseWorkers != 0 {
		base.Ingestion.ParseWorkers = override.Ingestion.ParseWorkers
	}
	if override.Ingestion.Timeout != 0 {
		base.Ingestion.Timeout = override.Ingestion.Timeout
	}

	if override.Logging.RequestLogs != nil {
		base.Logging.RequestLogs = override.Logging.RequestLogs
	}
	if override.Metrics.Enabled != nil {
		base.Metrics.Enabled = override.Metrics.Enabled
	}

	return base
}

// ToBM25 converts the config BM25 representation into the values expected by
// the index package.
func (cfg AppConfig) ToBM25() (float64, float64) {
	return cfg.Index.BM25.K1, cfg.Index.BM25.B
}

func boolPtr(v bool) *bool {
	return &v
}
