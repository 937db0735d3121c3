// Package config defines the typed configuration struct covering every
// option in spec.md §6, loaded once at startup and passed by value. Style
// (struct shape, validate-after-load with sensible defaults) follows
// marilsoncampos-mock_interview/golang/internal/config/config.go; the
// loading mechanism is spf13/viper instead of a bare os.ReadFile+json.Unmarshal,
// since viper's file-plus-AutomaticEnv overlay is the more complete match for
// spec.md's enumerated option set (every field overridable by environment
// variable) and directly exercises the teacher's own viper dependency.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RelationalConfig names the relational backend connection.
type RelationalConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DocumentConfig names the document backend connection.
type DocumentConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// BufferConfig controls the ingest orchestrator's flush trigger.
type BufferConfig struct {
	Size           int           `mapstructure:"size"`
	TimeoutSeconds time.Duration `mapstructure:"timeout_seconds"`
}

// PlacementConfig holds the classifier's tunable thresholds.
type PlacementConfig struct {
	MinPresence      float64 `mapstructure:"min_presence"`
	MinTypeStability float64 `mapstructure:"min_type_stability"`
}

// PKConfig holds the primary-key selector's tunable threshold.
type PKConfig struct {
	MinUnique float64 `mapstructure:"min_unique"`
}

// KafkaConfig names the optional Kafka source adapter (supplemental to
// spec.md, see SPEC_FULL.md §4.9).
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// AdminAPIConfig names the admin/introspection HTTP surface (supplemental,
// see SPEC_FULL.md §4.10).
type AdminAPIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Config is the full, validated configuration for one ingest process.
type Config struct {
	Relational   RelationalConfig `mapstructure:"relational"`
	Document     DocumentConfig   `mapstructure:"document"`
	Buffer       BufferConfig     `mapstructure:"buffer"`
	SourceURL    string           `mapstructure:"source_url"`
	MetadataDir  string           `mapstructure:"metadata_dir"`
	TableName    string           `mapstructure:"table_name"`
	Placement    PlacementConfig  `mapstructure:"placement"`
	PK           PKConfig         `mapstructure:"pk"`
	Kafka        KafkaConfig      `mapstructure:"kafka"`
	AdminAPI     AdminAPIConfig   `mapstructure:"admin_api"`
	LogLevel     string           `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("buffer.size", 50)
	v.SetDefault("buffer.timeout_seconds", 30)
	v.SetDefault("table_name", "records")
	v.SetDefault("metadata_dir", "./data")
	v.SetDefault("placement.min_presence", 0.70)
	v.SetDefault("placement.min_type_stability", 0.90)
	v.SetDefault("pk.min_unique", 0.70)
	v.SetDefault("relational.sslmode", "disable")
	v.SetDefault("admin_api.enabled", true)
	v.SetDefault("admin_api.addr", "0.0.0.0:8080")
	v.SetDefault("log_level", "INFO")
}

// Load reads configFile (if non-empty and present) and overlays it with
// environment variables, the way viper's AutomaticEnv/BindEnv is meant to be
// used: RELATIONAL_HOST, BUFFER_SIZE, PLACEMENT_MIN_PRESENCE, etc. Validation
// runs once after load.
func Load(configFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("read config file %s: %w", configFile, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Buffer.TimeoutSeconds *= time.Second

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Relational.Database == "" || c.Document.Database == "" {
		return fmt.Errorf("both relational.database and document.database must be configured")
	}
	if c.Buffer.Size <= 0 {
		c.Buffer.Size = 50
	}
	if c.Buffer.TimeoutSeconds <= 0 {
		c.Buffer.TimeoutSeconds = 30 * time.Second
	}
	if c.TableName == "" {
		c.TableName = "records"
	}
	if c.MetadataDir == "" {
		return fmt.Errorf("metadata_dir is required")
	}
	if c.Placement.MinPresence <= 0 || c.Placement.MinPresence > 1 {
		c.Placement.MinPresence = 0.70
	}
	if c.Placement.MinTypeStability <= 0 || c.Placement.MinTypeStability > 1 {
		c.Placement.MinTypeStability = 0.90
	}
	if c.PK.MinUnique <= 0 || c.PK.MinUnique > 1 {
		c.PK.MinUnique = 0.70
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka.enabled requires kafka.brokers and kafka.topic")
	}
	return nil
}
