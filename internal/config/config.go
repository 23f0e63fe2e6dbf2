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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	CRM       CRMConfig       `yaml:"crm" mapstructure:"crm"`
	Scan      ScanConfig      `yaml:"scan" mapstructure:"scan"`
	Match     MatchConfig     `yaml:"match" mapstructure:"match"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CRMConfig holds the Salesforce JWT auth settings for the business
// registry.
type CRMConfig struct {
	ClientID     string  `yaml:"client_id" mapstructure:"client_id"`
	Username     string  `yaml:"username" mapstructure:"username"`
	KeyPath      string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL     string  `yaml:"login_url" mapstructure:"login_url"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	AccountWhere string  `yaml:"account_where" mapstructure:"account_where"`
}

// ScanConfig configures the scan orchestrator.
type ScanConfig struct {
	CatalogPath    string  `yaml:"catalog_path" mapstructure:"catalog_path"`
	FixtureDir     string  `yaml:"fixture_dir" mapstructure:"fixture_dir"`
	RecordsPerSec  float64 `yaml:"records_per_sec" mapstructure:"records_per_sec"`
	MatchAfterScan bool    `yaml:"match_after_scan" mapstructure:"match_after_scan"`
	ProgressBuffer int     `yaml:"progress_buffer" mapstructure:"progress_buffer"`
	Timezone       string  `yaml:"timezone" mapstructure:"timezone"`
}

// MatchConfig configures the entity matcher.
type MatchConfig struct {
	BulkThreshold float64 `yaml:"bulk_threshold" mapstructure:"bulk_threshold"`
}

// ReconcileConfig configures the dedup/upsert engine's freshness policy.
type ReconcileConfig struct {
	// MissedScansToExpire expires dateless leads after this many
	// consecutive scans without an observation. Zero disables the sweep.
	MissedScansToExpire int `yaml:"missed_scans_to_expire" mapstructure:"missed_scans_to_expire"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("LEADSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadscan.db")
	v.SetDefault("crm.login_url", "https://login.salesforce.com")
	v.SetDefault("crm.rate_per_sec", 5)
	v.SetDefault("scan.fixture_dir", "fixtures")
	v.SetDefault("scan.records_per_sec", 0)
	v.SetDefault("scan.match_after_scan", true)
	v.SetDefault("scan.progress_buffer", 64)
	v.SetDefault("scan.timezone", "Europe/Madrid")
	v.SetDefault("match.bulk_threshold", 0.5)
	v.SetDefault("reconcile.missed_scans_to_expire", 0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	return &cfg, nil
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
