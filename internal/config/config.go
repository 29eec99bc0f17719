package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig     `yaml:"store" mapstructure:"store"`
	Reconcile  ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Benchmarks BenchmarkConfig `yaml:"benchmarks" mapstructure:"benchmarks"`
	Ingest     IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Server     ServerConfig    `yaml:"server" mapstructure:"server"`
	Log        LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ReconcileConfig holds the tunable thresholds of the reconciliation engine.
// These are application-tunable defaults, not derived constants.
type ReconcileConfig struct {
	MinConfidenceThreshold float64  `yaml:"min_confidence_threshold" mapstructure:"min_confidence_threshold"`
	MaxBenchmarkVariance   float64  `yaml:"max_benchmark_variance" mapstructure:"max_benchmark_variance"`
	MaxDocumentVariance    float64  `yaml:"max_document_variance" mapstructure:"max_document_variance"`
	AutoResolveThreshold   float64  `yaml:"auto_resolve_threshold" mapstructure:"auto_resolve_threshold"`
	MaxCompareDocuments    int      `yaml:"max_compare_documents" mapstructure:"max_compare_documents"`
	CriticalFields         []string `yaml:"critical_fields" mapstructure:"critical_fields"`
}

// BenchmarkConfig points at the static benchmark range table.
type BenchmarkConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// IngestConfig configures batch document ingestion.
type IngestConfig struct {
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
}

// ServerConfig configures the HTTP resolution API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECONCILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("ingest.max_concurrent_documents", 5)
	v.SetDefault("reconcile.min_confidence_threshold", 70.0)
	v.SetDefault("reconcile.max_benchmark_variance", 0.20)
	v.SetDefault("reconcile.max_document_variance", 0.10)
	v.SetDefault("reconcile.auto_resolve_threshold", 95.0)
	v.SetDefault("reconcile.max_compare_documents", 25)
	v.SetDefault("reconcile.critical_fields", []string{
		"total_revenue",
		"net_operating_income",
		"total_expenses",
		"occupancy_rate",
		"licensed_beds",
	})
	v.SetDefault("benchmarks.path", "benchmarks.yaml")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Reconcile.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects malformed threshold configuration at load time.
func (c ReconcileConfig) Validate() error {
	if c.MinConfidenceThreshold < 0 || c.MinConfidenceThreshold > 100 {
		return eris.Errorf("config: min_confidence_threshold must be in [0,100], got %v", c.MinConfidenceThreshold)
	}
	if c.AutoResolveThreshold < 0 || c.AutoResolveThreshold > 100 {
		return eris.Errorf("config: auto_resolve_threshold must be in [0,100], got %v", c.AutoResolveThreshold)
	}
	if c.MaxBenchmarkVariance < 0 {
		return eris.Errorf("config: max_benchmark_variance must be non-negative, got %v", c.MaxBenchmarkVariance)
	}
	if c.MaxDocumentVariance < 0 {
		return eris.Errorf("config: max_document_variance must be non-negative, got %v", c.MaxDocumentVariance)
	}
	if c.MaxCompareDocuments < 0 {
		return eris.Errorf("config: max_compare_documents must be non-negative, got %v", c.MaxCompareDocuments)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
