package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Environment string            `mapstructure:"environment"`
	Server      ServerConfig      `mapstructure:"server"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Quality     QualityConfig     `mapstructure:"quality"`
	Privacy     PrivacyConfig     `mapstructure:"privacy"`
	Consistency ConsistencyConfig `mapstructure:"consistency"`
	Anomaly     AnomalyConfig     `mapstructure:"anomaly"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	HTTPPort     int `mapstructure:"http_port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
	IdleTimeout  int `mapstructure:"idle_timeout"`
}

// KafkaConfig represents Kafka producer configuration
type KafkaConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Brokers         []string `mapstructure:"brokers"`
	AlertsTopic     string   `mapstructure:"alerts_topic"`
	ViolationsTopic string   `mapstructure:"violations_topic"`
	ProducerTimeout int      `mapstructure:"producer_timeout"`
	MaxRetries      int      `mapstructure:"max_retries"`
}

// RedisConfig represents the cache adapter configuration
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig represents the relational adapter configuration
type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// QualityConfig represents validation and scoring configuration
type QualityConfig struct {
	CompletenessTarget float64       `mapstructure:"completeness_target"`
	ValidityTarget     float64       `mapstructure:"validity_target"`
	UniquenessTarget   float64       `mapstructure:"uniqueness_target"`
	TimelinessTarget   float64       `mapstructure:"timeliness_target"`
	MaxRecordAge       time.Duration `mapstructure:"max_record_age"`
}

// PrivacyConfig represents privacy engine configuration
type PrivacyConfig struct {
	HighConfidence     float64 `mapstructure:"high_confidence"`
	ExpirationWarnRate float64 `mapstructure:"expiration_warn_rate"`
}

// ConsistencyConfig represents consistency engine configuration
type ConsistencyConfig struct {
	DefaultTimeout   time.Duration `mapstructure:"default_timeout"`
	WeakNumericDelta float64       `mapstructure:"weak_numeric_delta"`
}

// AnomalyConfig represents statistical anomaly detection configuration
type AnomalyConfig struct {
	ZScoreThreshold    float64 `mapstructure:"zscore_threshold"`
	MinBaselineSamples int     `mapstructure:"min_baseline_samples"`
}

// MonitoringConfig represents the continuous monitoring loop and
// observability configuration
type MonitoringConfig struct {
	MetricsEnabled  bool          `mapstructure:"metrics_enabled"`
	Interval        time.Duration `mapstructure:"interval"`
	HealthCheckPath string        `mapstructure:"health_check_path"`
	LogLevel        string        `mapstructure:"log_level"`
	TrendWindow     time.Duration `mapstructure:"trend_window"`
}

// Load loads configuration from file and environment
func Load() (Config, error) {
	var config Config

	viper.SetDefault("environment", "development")
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 30)

	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.alerts_topic", "quality-alerts")
	viper.SetDefault("kafka.violations_topic", "consistency-violations")
	viper.SetDefault("kafka.producer_timeout", 10)
	viper.SetDefault("kafka.max_retries", 3)

	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", 300)

	viper.SetDefault("quality.completeness_target", 95.0)
	viper.SetDefault("quality.validity_target", 95.0)
	viper.SetDefault("quality.uniqueness_target", 90.0)
	viper.SetDefault("quality.timeliness_target", 90.0)
	viper.SetDefault("quality.max_record_age", "24h")

	viper.SetDefault("privacy.high_confidence", 0.8)
	viper.SetDefault("privacy.expiration_warn_rate", 0.8)

	viper.SetDefault("consistency.default_timeout", "5s")
	viper.SetDefault("consistency.weak_numeric_delta", 0.1)

	viper.SetDefault("anomaly.zscore_threshold", 2.0)
	viper.SetDefault("anomaly.min_baseline_samples", 10)

	viper.SetDefault("monitoring.metrics_enabled", true)
	viper.SetDefault("monitoring.interval", "5m")
	viper.SetDefault("monitoring.health_check_path", "/health")
	viper.SetDefault("monitoring.log_level", "info")
	viper.SetDefault("monitoring.trend_window", "1h")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/quality-engine")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("QUALITY_ENGINE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return config, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return config, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config Config) error {
	if config.Server.HTTPPort <= 0 || config.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", config.Server.HTTPPort)
	}

	if config.Kafka.Enabled && len(config.Kafka.Brokers) == 0 {
		return fmt.Errorf("at least one Kafka broker is required when kafka is enabled")
	}

	if config.Anomaly.ZScoreThreshold <= 0 {
		return fmt.Errorf("zscore threshold must be positive")
	}

	if config.Anomaly.MinBaselineSamples < 2 {
		return fmt.Errorf("min baseline samples must be at least 2")
	}

	targets := map[string]float64{
		"completeness_target": config.Quality.CompletenessTarget,
		"validity_target":     config.Quality.ValidityTarget,
		"uniqueness_target":   config.Quality.UniquenessTarget,
		"timeliness_target":   config.Quality.TimelinessTarget,
	}
	for name, target := range targets {
		if target < 0 || target > 100 {
			return fmt.Errorf("%s must be between 0 and 100", name)
		}
	}

	if config.Monitoring.Interval <= 0 {
		return fmt.Errorf("monitoring interval must be positive")
	}

	return nil
}

// GetDatabaseURL returns the database connection URL with environment
// variable substitution
func (c *Config) GetDatabaseURL() string {
	return os.ExpandEnv(c.Database.URL)
}
